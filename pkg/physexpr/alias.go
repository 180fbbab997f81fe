package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/state"
)

// AliasExpr renames the output of its input.
type AliasExpr struct {
	input PhysicalExpr
	name  string
}

func NewAliasExpr(input PhysicalExpr, name string) *AliasExpr {
	return &AliasExpr{input: input, name: name}
}

func (e *AliasExpr) Name() string {
	return e.name
}

func (e *AliasExpr) Input() PhysicalExpr {
	return e.input
}

func (e *AliasExpr) ID() uuid.UUID {
	return e.input.ID()
}

func (e *AliasExpr) IsScalar() bool {
	return e.input.IsScalar()
}

func (e *AliasExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	return s.Rename(e.name), nil
}

func (e *AliasExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	ac, err := e.input.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	ac.Rename(e.name)
	return ac, nil
}

func (e *AliasExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	f, err := e.input.ToField(schema)
	if err != nil {
		return frame.Field{}, err
	}
	return frame.NewField(e.name, f.Dtype), nil
}

func (e *AliasExpr) AsPartitionedAggregator() PartitionedAggregation {
	if e.input.AsPartitionedAggregator() == nil {
		return nil
	}
	return e
}

func (e *AliasExpr) EvaluatePartitioned(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.AsPartitionedAggregator().EvaluatePartitioned(df, groups, st)
	if err != nil {
		return nil, err
	}
	return s.Rename(e.name), nil
}

func (e *AliasExpr) Finalize(partitioned *frame.Series, groups *frame.GroupsProxy, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.AsPartitionedAggregator().Finalize(partitioned, groups, st)
	if err != nil {
		return nil, err
	}
	return s.Rename(e.name), nil
}
