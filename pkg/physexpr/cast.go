package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/state"
)

type CastExpr struct {
	input  PhysicalExpr
	dtype  frame.DataType
	strict bool
}

func NewCastExpr(input PhysicalExpr, dtype frame.DataType, strict bool) *CastExpr {
	return &CastExpr{input: input, dtype: dtype, strict: strict}
}

func (e *CastExpr) ID() uuid.UUID {
	return e.input.ID()
}

func (e *CastExpr) IsScalar() bool {
	return e.input.IsScalar()
}

func (e *CastExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	return s.Cast(e.dtype, e.strict)
}

func (e *CastExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	ac, err := e.input.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	if ac.State() != AggregatedList {
		out, err := ac.Series().Cast(e.dtype, e.strict)
		if err != nil {
			return nil, err
		}
		ac.series = out
		return ac, nil
	}

	rows, err := ac.rows()
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		if rows[i], err = r.Cast(e.dtype, e.strict); err != nil {
			return nil, err
		}
	}
	ac.series = frame.NewList(ac.Series().Name(), e.dtype, rows)
	return ac, nil
}

func (e *CastExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	f, err := e.input.ToField(schema)
	if err != nil {
		return frame.Field{}, err
	}
	return frame.NewField(f.Name, e.dtype), nil
}

func (e *CastExpr) AsPartitionedAggregator() PartitionedAggregation {
	if e.input.AsPartitionedAggregator() == nil {
		return nil
	}
	return e
}

func (e *CastExpr) EvaluatePartitioned(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.AsPartitionedAggregator().EvaluatePartitioned(df, groups, st)
	if err != nil {
		return nil, err
	}
	return s.Cast(e.dtype, e.strict)
}

func (e *CastExpr) Finalize(partitioned *frame.Series, groups *frame.GroupsProxy, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.AsPartitionedAggregator().Finalize(partitioned, groups, st)
	if err != nil {
		return nil, err
	}
	return s.Cast(e.dtype, e.strict)
}
