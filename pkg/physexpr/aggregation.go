package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/state"
)

// partialCountName names the count field of a partial mean.
const partialCountName = "__POLARS_COUNT"

// AggregationExpr reduces every group of its input to a single value.
type AggregationExpr struct {
	input        PhysicalExpr
	method       engine.GroupByMethod
	includeNulls bool
	ddof         uint8
	id           uuid.UUID
}

func NewAggregationExpr(input PhysicalExpr, method engine.GroupByMethod, id uuid.UUID) *AggregationExpr {
	return &AggregationExpr{input: input, method: method, includeNulls: true, ddof: 1, id: id}
}

// WithCountOptions sets whether Count includes nulls.
func (e *AggregationExpr) WithCountOptions(includeNulls bool) *AggregationExpr {
	e.includeNulls = includeNulls
	return e
}

func (e *AggregationExpr) WithDdof(ddof uint8) *AggregationExpr {
	e.ddof = ddof
	return e
}

func (e *AggregationExpr) Method() engine.GroupByMethod {
	return e.method
}

func (e *AggregationExpr) ID() uuid.UUID {
	return e.id
}

func (e *AggregationExpr) IsScalar() bool {
	return true
}

// Evaluate aggregates the whole frame as one group.
func (e *AggregationExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	ac, err := e.EvaluateOnGroups(df, frame.SingleGroup(df.Height()), st)
	if err != nil {
		return nil, err
	}
	return ac.Series(), nil
}

func (e *AggregationExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	ac, err := e.input.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	switch ac.State() {
	case AggLiteral:
		return nil, execerror.New(execerror.EXEC_COMPUTE, "cannot aggregate a literal")
	case AggregatedScalar:
		if e.method != engine.MethodImplode {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE,
				"cannot aggregate as %s, the column is already aggregated", e.method)
		}
	}
	name := ac.Series().Name()

	var out *frame.Series
	switch e.method {
	case engine.MethodCount:
		out = e.count(ac)
	case engine.MethodImplode:
		out = e.implode(ac)
	case engine.MethodStd:
		out, err = engine.AggStd(ac.FlatNaive(), ac.Groups(), e.ddof)
	case engine.MethodVar:
		out, err = engine.AggVar(ac.FlatNaive(), ac.Groups(), e.ddof)
	case engine.MethodQuantile:
		err = execerror.New(execerror.EXEC_INVALID_OPERATION, "quantile is evaluated by its own expression")
	default:
		out, err = engine.Aggregate(ac.FlatNaive(), ac.Groups(), e.method)
	}
	if err != nil {
		return nil, err
	}
	if out.Len() != groups.Len() {
		return nil, lengthMismatch(out.Len(), groups.Len())
	}
	out = out.Rename(name)

	if e.method == engine.MethodSum || e.method == engine.MethodMean {
		if err := e.reify(out, st); err != nil {
			return nil, err
		}
	}
	return NewAggregationContext(out, groups, true), nil
}

// reify discloses the aggregated values to the validator as arrow IPC.
func (e *AggregationExpr) reify(out *frame.Series, st *state.ExecutionState) error {
	if e.id == uuid.Nil || !st.PolicyCheck() {
		return nil
	}
	data, err := frame.SeriesToIPC(out)
	if err != nil {
		return err
	}
	return st.Session().Reify(st.Context(), e.id, data)
}

func (e *AggregationExpr) count(ac *AggregationContext) *frame.Series {
	s := ac.Series()
	if e.includeNulls || s.NullCount() == 0 {
		switch ac.UpdateGroupsMode() {
		case WithSeriesLen:
			lens := listLens(s)
			out := make([]frame.Idx, len(lens))
			for i, l := range lens {
				out[i] = frame.Idx(l)
			}
			return frame.NewIdx(s.Name(), out)
		case WithGroupsLen:
			return frame.NewIdx(s.Name(), ac.groups.GroupCount())
		}
		if ac.State() == AggregatedScalar {
			return countScalars(s, true)
		}
		return frame.NewIdx(s.Name(), ac.Groups().GroupCount())
	}

	switch ac.State() {
	case AggregatedScalar:
		return countScalars(s, false)
	case AggregatedList:
		rows, _ := s.ListRows()
		out := make([]frame.Idx, len(rows))
		for i, r := range rows {
			if r != nil && s.IsValid(i) {
				out[i] = frame.Idx(r.Len() - r.NullCount())
			}
		}
		return frame.NewIdx(s.Name(), out)
	}
	groups := ac.Groups()
	out := make([]frame.Idx, groups.Len())
	if s.Dtype() == frame.Null {
		return frame.NewIdx(s.Name(), out)
	}
	if groups.IsSlice() {
		for g, sl := range groups.Slices() {
			out[g] = frame.Idx(int(sl[1]) - s.Slice(int64(sl[0]), int(sl[1])).NullCount())
		}
		return frame.NewIdx(s.Name(), out)
	}
	for g, members := range groups.Idx().All {
		for _, m := range members {
			if s.IsValid(int(m)) {
				out[g]++
			}
		}
	}
	return frame.NewIdx(s.Name(), out)
}

func countScalars(s *frame.Series, includeNulls bool) *frame.Series {
	out := make([]frame.Idx, s.Len())
	for i := range out {
		if includeNulls || s.IsValid(i) {
			out[i] = 1
		}
	}
	return frame.NewIdx(s.Name(), out)
}

func (e *AggregationExpr) implode(ac *AggregationContext) *frame.Series {
	if ac.State() != AggregatedScalar {
		return ac.Aggregated()
	}
	s := ac.Series()
	rows := make([]*frame.Series, s.Len())
	for i := range rows {
		rows[i] = s.Slice(int64(i), 1)
	}
	return frame.NewList(s.Name(), s.Dtype(), rows)
}

func (e *AggregationExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	f, err := e.input.ToField(schema)
	if err != nil {
		return frame.Field{}, err
	}
	return frame.NewField(f.Name, engine.AggOutputDtype(e.method, f.Dtype)), nil
}

func (e *AggregationExpr) AsPartitionedAggregator() PartitionedAggregation {
	switch e.method {
	case engine.MethodMean, engine.MethodImplode, engine.MethodFirst, engine.MethodLast,
		engine.MethodMax, engine.MethodMin, engine.MethodSum, engine.MethodCount:
		return e
	}
	return nil
}

func partitionedUnsupported(m engine.GroupByMethod) error {
	return execerror.Newf(execerror.EXEC_INVALID_OPERATION, "partitioned aggregation is not supported for %s", m)
}

// EvaluatePartitioned computes the partial aggregate of one partition.
// Mean yields a struct of the partial sum and the partial count.
func (e *AggregationExpr) EvaluatePartitioned(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	name := s.Name()
	var out *frame.Series
	switch e.method {
	case engine.MethodMean:
		if s.Dtype() == frame.Int32 || s.Dtype() == frame.UInt32 {
			if s, err = s.Cast(frame.Int64, false); err != nil {
				return nil, err
			}
		}
		sum, err := engine.AggSum(s, groups)
		if err != nil {
			return nil, err
		}
		if sum, err = sum.Cast(frame.Float64, false); err != nil {
			return nil, err
		}
		count := engine.AggCount(s, groups, false).Rename(partialCountName)
		return frame.NewStruct(name, sum.Rename(name), count)
	case engine.MethodImplode:
		out = s.AggList(groups)
	case engine.MethodFirst, engine.MethodLast, engine.MethodMax, engine.MethodMin, engine.MethodSum:
		if out, err = engine.Aggregate(s, groups, e.method); err != nil {
			return nil, err
		}
	case engine.MethodCount:
		out = engine.AggCount(s, groups, e.includeNulls)
	default:
		return nil, partitionedUnsupported(e.method)
	}
	return out.Rename(name), nil
}

// Finalize merges the partials of all partitions, grouped by groups.
func (e *AggregationExpr) Finalize(partitioned *frame.Series, groups *frame.GroupsProxy, _ *state.ExecutionState) (*frame.Series, error) {
	name := partitioned.Name()
	var out *frame.Series
	var err error
	switch e.method {
	case engine.MethodCount, engine.MethodSum:
		out, err = engine.AggSum(partitioned, groups)
	case engine.MethodMean:
		out, err = finalizeMean(partitioned, groups)
	case engine.MethodImplode:
		out, err = finalizeImplode(partitioned, groups)
	case engine.MethodFirst, engine.MethodLast, engine.MethodMax, engine.MethodMin:
		out, err = engine.Aggregate(partitioned, groups, e.method)
	default:
		err = partitionedUnsupported(e.method)
	}
	if err != nil {
		return nil, err
	}
	return out.Rename(name), nil
}

func finalizeMean(partitioned *frame.Series, groups *frame.GroupsProxy) (*frame.Series, error) {
	if partitioned.Dtype() != frame.Struct {
		return frame.FullNull(partitioned.Name(), frame.Float64, groups.Len()), nil
	}
	fields, err := partitioned.StructFields()
	if err != nil {
		return nil, err
	}
	sum, err := engine.AggSum(fields[0], groups)
	if err != nil {
		return nil, err
	}
	count, err := engine.AggSum(fields[1], groups)
	if err != nil {
		return nil, err
	}
	if count, err = count.Cast(frame.Float64, false); err != nil {
		return nil, err
	}
	return engine.Binary(sum, count, engine.TrueDivide)
}

func finalizeImplode(partitioned *frame.Series, groups *frame.GroupsProxy) (*frame.Series, error) {
	rows := make([]*frame.Series, groups.Len())
	for g := range rows {
		flat, _, err := partitioned.Gather(groups.Group(g)).Flatten()
		if err != nil {
			return nil, err
		}
		rows[g] = flat
	}
	return frame.NewList(partitioned.Name(), partitioned.InnerDtype(), rows), nil
}
