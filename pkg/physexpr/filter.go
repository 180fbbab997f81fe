package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/state"
)

// FilterExpr keeps the values of input where by is true.
type FilterExpr struct {
	input PhysicalExpr
	by    PhysicalExpr
}

func NewFilterExpr(input, by PhysicalExpr) *FilterExpr {
	return &FilterExpr{input: input, by: by}
}

func (e *FilterExpr) ID() uuid.UUID {
	return uuid.Nil
}

func (e *FilterExpr) IsScalar() bool {
	return false
}

func (e *FilterExpr) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}

func (e *FilterExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	mask, err := e.by.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	return s.Filter(mask)
}

func (e *FilterExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	ac, err := e.input.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	acMask, err := e.by.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}

	if ac.State() == NotAggregated && acMask.State() == NotAggregated {
		mask := acMask.Series()
		bits, err := mask.Bool()
		if err != nil {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE, "filter predicate must be of type `Boolean`, got `%s`", mask.Dtype())
		}
		if mask.Len() != ac.Series().Len() {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE,
				"filter's length: %d differs from that of the series: %d", mask.Len(), ac.Series().Len())
		}
		filtered := ac.Groups().MapGroups(func(_ int, members []frame.Idx) []frame.Idx {
			keep := make([]frame.Idx, 0, len(members))
			for _, m := range members {
				if bits[m] && mask.IsValid(int(m)) {
					keep = append(keep, m)
				}
			}
			return keep
		})
		ac.WithGroups(filtered)
		return ac, nil
	}

	rows, err := ac.rows()
	if err != nil {
		return nil, err
	}
	masks, err := acMask.rows()
	if err != nil {
		return nil, err
	}
	out := make([]*frame.Series, len(rows))
	for g, r := range rows {
		if out[g], err = r.Filter(masks[g]); err != nil {
			return nil, err
		}
	}
	return fromRows(ac.Series().Name(), ac.elemDtype(), out, groups), nil
}

func (e *FilterExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	return e.input.ToField(schema)
}
