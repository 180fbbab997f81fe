package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	"github.com/pg-sharding/colexec/pkg/state"
)

// CountExpr is the row count of the frame or of every group.
type CountExpr struct {
	id uuid.UUID
}

func NewCountExpr(id uuid.UUID) *CountExpr {
	return &CountExpr{id: id}
}

func (e *CountExpr) ID() uuid.UUID {
	return e.id
}

func (e *CountExpr) IsScalar() bool {
	return true
}

func (e *CountExpr) Evaluate(df *frame.DataFrame, _ *state.ExecutionState) (*frame.Series, error) {
	return frame.NewIdx(ir.LenName, []frame.Idx{frame.Idx(df.Height())}), nil
}

func (e *CountExpr) EvaluateOnGroups(_ *frame.DataFrame, groups *frame.GroupsProxy, _ *state.ExecutionState) (*AggregationContext, error) {
	out := frame.NewIdx(ir.LenName, groups.GroupCount())
	return NewAggregationContext(out, groups, true), nil
}

func (e *CountExpr) ToField(*frame.Schema) (frame.Field, error) {
	return frame.NewField(ir.LenName, frame.IdxType), nil
}

func (e *CountExpr) AsPartitionedAggregator() PartitionedAggregation {
	return e
}

func (e *CountExpr) EvaluatePartitioned(_ *frame.DataFrame, groups *frame.GroupsProxy, _ *state.ExecutionState) (*frame.Series, error) {
	return frame.NewIdx(ir.LenName, groups.GroupCount()), nil
}

func (e *CountExpr) Finalize(partitioned *frame.Series, groups *frame.GroupsProxy, _ *state.ExecutionState) (*frame.Series, error) {
	out, err := engine.AggSum(partitioned, groups)
	if err != nil {
		return nil, err
	}
	return out.Rename(ir.LenName), nil
}
