package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/state"
	"github.com/pg-sharding/colexec/pkg/threadpool"
)

// PhysicalExpr computes a column out of a frame, either row aligned or per
// group.
type PhysicalExpr interface {
	Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error)
	EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error)

	ToField(schema *frame.Schema) (frame.Field, error)

	// ID is the id the validator assigned, uuid.Nil for untracked
	// expressions.
	ID() uuid.UUID

	// IsScalar reports whether the expression reduces to a single value.
	IsScalar() bool

	// AsPartitionedAggregator returns nil when the expression cannot be
	// split into partial aggregations.
	AsPartitionedAggregator() PartitionedAggregation
}

// PartitionedAggregation is a two phase aggregation: partials are computed
// per partition and merged by Finalize.
type PartitionedAggregation interface {
	EvaluatePartitioned(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*frame.Series, error)
	Finalize(partitioned *frame.Series, groups *frame.GroupsProxy, st *state.ExecutionState) (*frame.Series, error)
}

var (
	_ PhysicalExpr = &ColumnExpr{}
	_ PhysicalExpr = &LiteralExpr{}
	_ PhysicalExpr = &BinaryExpr{}
	_ PhysicalExpr = &CastExpr{}
	_ PhysicalExpr = &SortExpr{}
	_ PhysicalExpr = &SortByExpr{}
	_ PhysicalExpr = &GatherExpr{}
	_ PhysicalExpr = &FilterExpr{}
	_ PhysicalExpr = &TernaryExpr{}
	_ PhysicalExpr = &AggregationExpr{}
	_ PhysicalExpr = &AggQuantileExpr{}
	_ PhysicalExpr = &CountExpr{}
	_ PhysicalExpr = &WindowExpr{}
	_ PhysicalExpr = &RollingExpr{}
	_ PhysicalExpr = &ApplyExpr{}
	_ PhysicalExpr = &AliasExpr{}
	_ PhysicalExpr = &SliceExpr{}

	_ PartitionedAggregation = &ColumnExpr{}
	_ PartitionedAggregation = &LiteralExpr{}
	_ PartitionedAggregation = &CountExpr{}
	_ PartitionedAggregation = &AggregationExpr{}
	_ PartitionedAggregation = &AliasExpr{}
	_ PartitionedAggregation = &CastExpr{}
)

// evaluateAll evaluates exprs in order and stops at the first error.
func evaluateAll(exprs []PhysicalExpr, df *frame.DataFrame, st *state.ExecutionState) ([]*frame.Series, error) {
	out := make([]*frame.Series, len(exprs))
	for i, e := range exprs {
		s, err := e.Evaluate(df, st)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func evaluateAllOnGroups(exprs []PhysicalExpr, df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) ([]*AggregationContext, error) {
	out := make([]*AggregationContext, len(exprs))
	for i, e := range exprs {
		ac, err := e.EvaluateOnGroups(df, groups, st)
		if err != nil {
			return nil, err
		}
		out[i] = ac
	}
	return out, nil
}

// parEvaluate evaluates exprs on the state's pool. The output keeps the
// order of exprs.
func parEvaluate(st *state.ExecutionState, exprs []PhysicalExpr, df *frame.DataFrame) ([]*frame.Series, error) {
	return threadpool.ParMap(st.Pool(), len(exprs), func(i int) (*frame.Series, error) {
		return exprs[i].Evaluate(df, st)
	})
}
