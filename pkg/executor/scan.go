package executor

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/scan"
	"github.com/pg-sharding/colexec/pkg/state"
)

// registerPolicy ships the policy frame to the validator and makes the
// returned id the active snapshot. Without a policy the scan starts from
// the root snapshot.
func registerPolicy(st *state.ExecutionState, policy *frame.DataFrame) (uuid.UUID, error) {
	if policy == nil || !st.PolicyCheck() {
		st.SetActiveDF(uuid.Nil)
		return uuid.Nil, nil
	}
	data, err := frame.ToIPC(policy)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := st.Session().RegisterPolicy(st.Context(), data)
	if err != nil {
		return uuid.Nil, execerror.FailedHere(err, "register policy")
	}
	st.SetActiveDF(id)
	return id, nil
}

// maskBits turns a predicate result into the provenance mask, one entry
// per input row. Null counts as not kept.
func maskBits(mask *frame.Series, height int) ([]bool, error) {
	bits, err := mask.Bool()
	if err != nil {
		return nil, execerror.Newf(execerror.EXEC_COMPUTE, "filter predicate must be of type `Boolean`, got `%s`", mask.Dtype())
	}
	out := make([]bool, height)
	if mask.Len() == 1 && height != 1 {
		keep := bits[0] && mask.IsValid(0)
		for i := range out {
			out[i] = keep
		}
		return out, nil
	}
	for i := range out {
		if i < len(bits) {
			out[i] = bits[i] && mask.IsValid(i)
		}
	}
	return out, nil
}

// DataFrameExec scans an in-memory frame: projection first, then the
// selection, then the row limit.
type DataFrameExec struct {
	df                  *frame.DataFrame
	selection           physexpr.PhysicalExpr
	projection          []string
	nRows               *int
	predicateHasWindows bool
	policy              *frame.DataFrame
	planID              uuid.UUID
}

func NewDataFrameExec(df *frame.DataFrame, selection physexpr.PhysicalExpr, projection []string, nRows *int, predicateHasWindows bool, policy *frame.DataFrame, planID uuid.UUID) *DataFrameExec {
	return &DataFrameExec{
		df:                  df,
		selection:           selection,
		projection:          projection,
		nRows:               nRows,
		predicateHasWindows: predicateHasWindows,
		policy:              policy,
		planID:              planID,
	}
}

func (e *DataFrameExec) PlanID() uuid.UUID {
	return e.planID
}

func (e *DataFrameExec) Execute(st *state.ExecutionState) (*frame.DataFrame, error) {
	if err := st.ShouldStop(); err != nil {
		return nil, err
	}
	logStart(st, "DataFrameExec")

	policy, err := registerPolicy(st, e.policy)
	if err != nil {
		return nil, err
	}
	if err := st.ExecutePrologue(e.planID); err != nil {
		return nil, err
	}

	df := e.df
	if len(e.projection) > 0 {
		if df, err = df.Select(e.projection); err != nil {
			return nil, err
		}
	}

	height := df.Height()
	var mask *frame.Series
	if e.selection != nil {
		err := withWindowFlag(st, e.predicateHasWindows, func() error {
			var err error
			mask, err = e.selection.Evaluate(df, st)
			return err
		})
		if err != nil {
			return nil, err
		}
		if _, err := maskBits(mask, height); err != nil {
			return nil, err
		}
		if df, err = df.Filter(mask); err != nil {
			return nil, err
		}
	}
	if e.nRows != nil && *e.nRows < df.Height() {
		if mask, err = scan.LimitMask(mask, height, *e.nRows); err != nil {
			return nil, err
		}
		df = df.Head(*e.nRows)
	}
	if mask != nil {
		bits, err := maskBits(mask, height)
		if err != nil {
			return nil, err
		}
		st.SetTransform(provenance.FilterTransform(bits))
	}

	var pred uuid.UUID
	if e.selection != nil {
		pred = e.selection.ID()
	}
	arg := &provenance.GetDataArg{
		Source:      provenance.DataSource{Kind: provenance.SourceInMemory, Policy: policy},
		Predicate:   pred,
		ProjectList: e.projection,
	}
	if err := st.ExecuteEpilogue(arg); err != nil {
		return nil, err
	}
	execlog.Zero.Debug().
		Str("snapshot", st.ActiveDF().String()).
		Int("rows", df.Height()).
		Msg("data frame scanned")
	return markSnapshot(st, df), nil
}

// SourceExec reads through a scan.Source. The predicate is pushed down to
// the source, which reports the mask it applied.
type SourceExec struct {
	source     scan.Source
	projection []string
	nRows      *int
	rowIndex   *scan.RowIndex
	predicate  physexpr.PhysicalExpr
	policy     *frame.DataFrame
	planID     uuid.UUID
}

func NewSourceExec(source scan.Source, projection []string, nRows *int, rowIndex *scan.RowIndex, predicate physexpr.PhysicalExpr, policy *frame.DataFrame, planID uuid.UUID) *SourceExec {
	return &SourceExec{
		source:     source,
		projection: projection,
		nRows:      nRows,
		rowIndex:   rowIndex,
		predicate:  predicate,
		policy:     policy,
		planID:     planID,
	}
}

func (e *SourceExec) PlanID() uuid.UUID {
	return e.planID
}

func (e *SourceExec) Execute(st *state.ExecutionState) (*frame.DataFrame, error) {
	if err := st.ShouldStop(); err != nil {
		return nil, err
	}
	logStart(st, "SourceExec")

	if st.PolicyCheck() && e.policy == nil && e.source.Kind() != provenance.SourceInMemory {
		return nil, execerror.New(execerror.EXEC_INVALID_OPERATION, "Policy check requested but no policy was provided")
	}
	policy, err := registerPolicy(st, e.policy)
	if err != nil {
		return nil, err
	}
	if err := st.ExecutePrologue(e.planID); err != nil {
		return nil, err
	}

	opts := scan.ReadOptions{
		Projection: e.projection,
		NRows:      e.nRows,
		RowIndex:   e.rowIndex,
	}
	if e.predicate != nil {
		opts.Predicate = func(df *frame.DataFrame) (*frame.Series, error) {
			return e.predicate.Evaluate(df, st)
		}
	}

	var mask *frame.Series
	var height int
	df, err := st.Record(func() (*frame.DataFrame, error) {
		df, m, err := e.source.Read(st.Context(), opts)
		if err != nil {
			return nil, err
		}
		mask = m
		if m != nil {
			height = m.Len()
		}
		return df, nil
	}, "scan("+string(e.source.Kind())+")")
	if err != nil {
		return nil, execerror.FailedHere(err, "scan")
	}
	if mask != nil {
		bits, err := maskBits(mask, height)
		if err != nil {
			return nil, err
		}
		st.SetTransform(provenance.FilterTransform(bits))
	}

	var pred uuid.UUID
	if e.predicate != nil {
		pred = e.predicate.ID()
	}
	arg := &provenance.GetDataArg{
		Source: provenance.DataSource{
			Kind:     e.source.Kind(),
			Location: e.source.Location(),
			Policy:   policy,
		},
		Predicate:   pred,
		ProjectList: e.projection,
	}
	if err := st.ExecuteEpilogue(arg); err != nil {
		return nil, err
	}
	return markSnapshot(st, df), nil
}
