package executor

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/state"
)

type SortExec struct {
	input   Executor
	by      []physexpr.PhysicalExpr
	slice   *engine.SliceArg
	options engine.SortMultipleOptions
	// set when a sort key holds a window
	hasWindows bool
	planID     uuid.UUID
}

func NewSortExec(input Executor, by []physexpr.PhysicalExpr, slice *engine.SliceArg, options engine.SortMultipleOptions, hasWindows bool, planID uuid.UUID) *SortExec {
	return &SortExec{
		input:      input,
		by:         by,
		slice:      slice,
		options:    options,
		hasWindows: hasWindows,
		planID:     planID,
	}
}

func (e *SortExec) PlanID() uuid.UUID {
	return e.planID
}

func (e *SortExec) executeImpl(df *frame.DataFrame, st *state.ExecutionState) (*frame.DataFrame, error) {
	df = df.Rechunk()

	by := make([]*frame.Series, len(e.by))
	err := withWindowFlag(st, e.hasWindows, func() error {
		for i, expr := range e.by {
			s, err := expr.Evaluate(df, st)
			if err != nil {
				return err
			}
			if _, ok := expr.(*physexpr.ColumnExpr); !ok {
				s = s.Rename(fmt.Sprintf("_SORT_BY_%d", i))
			}
			by[i] = s
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out, perm, err := engine.SortFrame(df, by, e.options, e.slice)
	if err != nil {
		return nil, err
	}
	st.SetTransform(provenance.ReorderTransform(perm))
	return out, nil
}

func (e *SortExec) Execute(st *state.ExecutionState) (*frame.DataFrame, error) {
	if err := st.ShouldStop(); err != nil {
		return nil, err
	}
	logStart(st, "SortExec")

	df, err := e.input.Execute(st)
	if err != nil {
		return nil, err
	}
	if err := st.ExecutePrologue(e.planID); err != nil {
		return nil, err
	}

	name := ""
	if st.NodeTimer() != nil {
		name = profileName("sort", e.by, df.Schema())
	}
	out, err := st.Record(func() (*frame.DataFrame, error) {
		return e.executeImpl(df, st)
	}, name)
	if err != nil {
		return nil, err
	}

	info := provenance.TransformInfo{Op: provenance.OpReorder}
	if t := st.PendingTransform(); t != nil {
		info = *t
	}
	if err := st.ExecuteEpilogue(&provenance.TransformArg{Info: info}); err != nil {
		return nil, err
	}
	return markSnapshot(st, out), nil
}
