package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/state"
)

type LiteralExpr struct {
	value *frame.Series
}

func NewLiteralExpr(value *frame.Series) *LiteralExpr {
	return &LiteralExpr{value: value}
}

func (e *LiteralExpr) Value() *frame.Series {
	return e.value
}

func (e *LiteralExpr) ID() uuid.UUID {
	return uuid.Nil
}

func (e *LiteralExpr) IsScalar() bool {
	return e.value.Len() == 1
}

func (e *LiteralExpr) Evaluate(*frame.DataFrame, *state.ExecutionState) (*frame.Series, error) {
	return e.value, nil
}

func (e *LiteralExpr) EvaluateOnGroups(_ *frame.DataFrame, groups *frame.GroupsProxy, _ *state.ExecutionState) (*AggregationContext, error) {
	if e.value.Len() == 1 {
		return FromLiteral(e.value, groups), nil
	}
	return NewAggregationContext(e.value, groups, false), nil
}

func (e *LiteralExpr) ToField(*frame.Schema) (frame.Field, error) {
	return e.value.Field(), nil
}

func (e *LiteralExpr) AsPartitionedAggregator() PartitionedAggregation {
	return e
}

func (e *LiteralExpr) EvaluatePartitioned(df *frame.DataFrame, _ *frame.GroupsProxy, st *state.ExecutionState) (*frame.Series, error) {
	return e.Evaluate(df, st)
}

func (e *LiteralExpr) Finalize(partitioned *frame.Series, _ *frame.GroupsProxy, _ *state.ExecutionState) (*frame.Series, error) {
	return partitioned, nil
}
