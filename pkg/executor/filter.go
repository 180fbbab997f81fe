package executor

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/state"
	"github.com/pg-sharding/colexec/pkg/threadpool"
)

type FilterExec struct {
	predicate  physexpr.PhysicalExpr
	input      Executor
	hasWindow  bool
	streamable bool
	planID     uuid.UUID
}

func NewFilterExec(predicate physexpr.PhysicalExpr, input Executor, hasWindow, streamable bool, planID uuid.UUID) *FilterExec {
	return &FilterExec{
		predicate:  predicate,
		input:      input,
		hasWindow:  hasWindow,
		streamable: streamable,
		planID:     planID,
	}
}

func (e *FilterExec) PlanID() uuid.UUID {
	return e.planID
}

type filtered struct {
	df   *frame.DataFrame
	mask []bool
}

func (e *FilterExec) filterOne(df *frame.DataFrame, st *state.ExecutionState) (filtered, error) {
	s, err := e.predicate.Evaluate(df, st)
	if err != nil {
		return filtered{}, err
	}
	bits, err := maskBits(s, df.Height())
	if err != nil {
		return filtered{}, err
	}
	out, err := df.Filter(s)
	if err != nil {
		return filtered{}, err
	}
	return filtered{df: out, mask: bits}, nil
}

func (e *FilterExec) executeHor(df *frame.DataFrame, st *state.ExecutionState) (*frame.DataFrame, error) {
	var res filtered
	err := withWindowFlag(st, e.hasWindow, func() error {
		var err error
		res, err = e.filterOne(df, st)
		return err
	})
	if err != nil {
		return nil, err
	}
	st.SetTransform(provenance.FilterTransform(res.mask))
	return res.df, nil
}

// executeChunks filters every chunk in the pool. Outputs and masks are
// concatenated in chunk order.
func (e *FilterExec) executeChunks(chunks []*frame.DataFrame, st *state.ExecutionState) (*frame.DataFrame, error) {
	res, err := threadpool.ParMap(st.Pool(), len(chunks), func(i int) (filtered, error) {
		return e.filterOne(chunks[i], st)
	})
	if err != nil {
		return nil, err
	}
	dfs := make([]*frame.DataFrame, len(res))
	var mask []bool
	for i, r := range res {
		dfs[i] = r.df
		mask = append(mask, r.mask...)
	}
	st.SetTransform(provenance.FilterTransform(mask))
	return frame.ConcatFrames(dfs)
}

func (e *FilterExec) executeImpl(df *frame.DataFrame, st *state.ExecutionState) (*frame.DataFrame, error) {
	n := st.Pool().Size()
	if !e.streamable || df.Height() == 0 {
		return e.executeHor(df, st)
	}
	switch {
	case df.NChunks() > 1:
		return e.executeChunks(df.SplitChunks(), st)
	case df.Width() < n:
		return e.executeHor(df, st)
	default:
		return e.executeChunks(df.SplitByN(n), st)
	}
}

func (e *FilterExec) Execute(st *state.ExecutionState) (*frame.DataFrame, error) {
	if err := st.ShouldStop(); err != nil {
		return nil, err
	}
	logStart(st, "FilterExec")

	df, err := e.input.Execute(st)
	if err != nil {
		return nil, err
	}
	if err := st.ExecutePrologue(e.planID); err != nil {
		return nil, err
	}

	name := ""
	if st.NodeTimer() != nil {
		name = profileName("filter", []physexpr.PhysicalExpr{e.predicate}, df.Schema())
	}
	out, err := st.Record(func() (*frame.DataFrame, error) {
		return e.executeImpl(df, st)
	}, name)
	if err != nil {
		return nil, err
	}

	if err := st.ExecuteEpilogue(&provenance.SelectArg{Predicate: e.predicate.ID()}); err != nil {
		return nil, err
	}
	return markSnapshot(st, out), nil
}
