package executor

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/state"
)

// evaluateAggs runs every aggregation over the groups. Each result must
// hold exactly one row per group.
func evaluateAggs(df *frame.DataFrame, aggs []physexpr.PhysicalExpr, groups *frame.GroupsProxy, st *state.ExecutionState) ([]*frame.Series, error) {
	out := make([]*frame.Series, len(aggs))
	for i, e := range aggs {
		ac, err := e.EvaluateOnGroups(df, groups, st)
		if err != nil {
			return nil, err
		}
		s := ac.Finalize()
		if s.Len() != groups.Len() {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE,
				"aggregation produced %d values, expected one per group (%d)", s.Len(), groups.Len())
		}
		out[i] = s
	}
	return out, nil
}

// snapshotGroups hands the grouping over to the state for the epilogue.
func snapshotGroups(st *state.ExecutionState, groups *frame.GroupsProxy) {
	if !st.PolicyCheck() {
		return
	}
	first, all := groups.Snapshot()
	st.SetLastUsedGroupBy(&provenance.GroupsSnapshot{First: first, All: all})
}

// applyGroups calls f with the sub-frame of every group and stacks the
// outputs in group order.
func applyGroups(df *frame.DataFrame, groups *frame.GroupsProxy, f ir.DataFrameUDF) (*frame.DataFrame, error) {
	parts := make([]*frame.DataFrame, groups.Len())
	for i := range parts {
		part, err := f(df.Gather(groups.Group(i)))
		if err != nil {
			return nil, err
		}
		parts[i] = part
	}
	return frame.ConcatFrames(parts)
}

// GroupByHelper groups df by the evaluated keys and computes the
// aggregations. The grouping actually used is snapshotted on the state.
func GroupByHelper(df *frame.DataFrame, keys []*frame.Series, aggs []physexpr.PhysicalExpr, apply ir.DataFrameUDF, st *state.ExecutionState, maintainOrder bool, slice *engine.SliceArg) (*frame.DataFrame, error) {
	df = df.Rechunk()
	groups, err := engine.GroupBy(keys, maintainOrder)
	if err != nil {
		return nil, err
	}
	snapshotGroups(st, groups)

	if apply != nil {
		return applyGroups(df, groups, apply)
	}

	if slice != nil {
		groups = groups.Slice(slice.Offset, slice.Len)
	}
	cols := engine.GroupKeys(keys, groups)
	aggCols, err := evaluateAggs(df, aggs, groups, st)
	if err != nil {
		return nil, err
	}
	return frame.New(append(cols, aggCols...)...)
}

type GroupByExec struct {
	input         Executor
	keys          []physexpr.PhysicalExpr
	aggs          []physexpr.PhysicalExpr
	apply         ir.DataFrameUDF
	maintainOrder bool
	inputSchema   *frame.Schema
	slice         *engine.SliceArg
	// set when a key holds a window
	hasWindows bool
	planID     uuid.UUID
}

func NewGroupByExec(input Executor, keys, aggs []physexpr.PhysicalExpr, apply ir.DataFrameUDF, maintainOrder bool, inputSchema *frame.Schema, slice *engine.SliceArg, hasWindows bool, planID uuid.UUID) *GroupByExec {
	return &GroupByExec{
		input:         input,
		keys:          keys,
		aggs:          aggs,
		apply:         apply,
		maintainOrder: maintainOrder,
		inputSchema:   inputSchema,
		slice:         slice,
		hasWindows:    hasWindows,
		planID:        planID,
	}
}

func (e *GroupByExec) PlanID() uuid.UUID {
	return e.planID
}

func (e *GroupByExec) executeImpl(df *frame.DataFrame, st *state.ExecutionState) (*frame.DataFrame, error) {
	keys := make([]*frame.Series, len(e.keys))
	err := withWindowFlag(st, e.hasWindows, func() error {
		for i, k := range e.keys {
			s, err := k.Evaluate(df, st)
			if err != nil {
				return err
			}
			keys[i] = s
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return GroupByHelper(df, keys, e.aggs, e.apply, st, e.maintainOrder, e.slice)
}

func (e *GroupByExec) Execute(st *state.ExecutionState) (*frame.DataFrame, error) {
	if err := st.ShouldStop(); err != nil {
		return nil, err
	}
	logStart(st, "GroupByExec")
	if st.Verbose() {
		execlog.Zero.Debug().Msg("keys/aggregates are not partitionable: running default HASH AGGREGATION")
	}

	df, err := e.input.Execute(st)
	if err != nil {
		return nil, err
	}
	if err := st.ExecutePrologue(e.planID); err != nil {
		return nil, err
	}

	name := ""
	if st.NodeTimer() != nil {
		name = profileName("group_by", e.keys, e.inputSchema)
	}
	out, err := st.Record(func() (*frame.DataFrame, error) {
		return e.executeImpl(df, st)
	}, name)
	if err != nil {
		return nil, err
	}

	if st.PolicyCheck() {
		arg := &provenance.AggregateArg{
			Keys: exprIDs(e.keys),
			Aggs: exprIDs(e.aggs),
		}
		if e.inputSchema != nil {
			arg.Schema = e.inputSchema.Fields()
		}
		if g := st.TakeLastUsedGroupBy(); g != nil {
			arg.Groups = *g
		}
		if err := st.ExecuteEpilogue(arg); err != nil {
			return nil, err
		}
	}
	return markSnapshot(st, out), nil
}
