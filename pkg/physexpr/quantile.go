package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/state"
)

type AggQuantileExpr struct {
	input    PhysicalExpr
	quantile PhysicalExpr
	interpol engine.QuantileInterpolation
}

func NewAggQuantileExpr(input, quantile PhysicalExpr, interpol engine.QuantileInterpolation) *AggQuantileExpr {
	return &AggQuantileExpr{input: input, quantile: quantile, interpol: interpol}
}

func (e *AggQuantileExpr) ID() uuid.UUID {
	return uuid.Nil
}

func (e *AggQuantileExpr) IsScalar() bool {
	return true
}

func (e *AggQuantileExpr) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}

func (e *AggQuantileExpr) getQuantile(df *frame.DataFrame, st *state.ExecutionState) (float64, error) {
	q, err := e.quantile.Evaluate(df, st)
	if err != nil {
		return 0, err
	}
	if q.Len() > 1 {
		return 0, execerror.New(execerror.EXEC_COMPUTE, "only a single quantile can be computed per aggregation")
	}
	if q.Len() == 0 || !q.IsValid(0) {
		return 0, execerror.New(execerror.EXEC_COMPUTE, "quantile must not be null")
	}
	v, err := q.AsFloat64()
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func (e *AggQuantileExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	q, err := e.getQuantile(df, st)
	if err != nil {
		return nil, err
	}
	return engine.AggQuantile(s, frame.SingleGroup(s.Len()), q, e.interpol)
}

func (e *AggQuantileExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	ac, err := e.input.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	q, err := e.getQuantile(df, st)
	if err != nil {
		return nil, err
	}
	name := ac.Series().Name()
	out, err := engine.AggQuantile(ac.FlatNaive(), ac.Groups(), q, e.interpol)
	if err != nil {
		return nil, err
	}
	if out.Len() != groups.Len() {
		return nil, lengthMismatch(out.Len(), groups.Len())
	}
	return NewAggregationContext(out.Rename(name), groups, true), nil
}

func (e *AggQuantileExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	f, err := e.input.ToField(schema)
	if err != nil {
		return frame.Field{}, err
	}
	return frame.NewField(f.Name, frame.Float64), nil
}
