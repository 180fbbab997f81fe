package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/state"
)

// GatherExpr takes values by position. Negative positions count from the
// end.
type GatherExpr struct {
	input         PhysicalExpr
	idx           PhysicalExpr
	returnsScalar bool
}

func NewGatherExpr(input, idx PhysicalExpr, returnsScalar bool) *GatherExpr {
	return &GatherExpr{input: input, idx: idx, returnsScalar: returnsScalar}
}

func (e *GatherExpr) ID() uuid.UUID {
	return uuid.Nil
}

func (e *GatherExpr) IsScalar() bool {
	return e.returnsScalar
}

func (e *GatherExpr) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}

// resolveIndices converts idx into positions within a series of length n.
func resolveIndices(idx *frame.Series, n int) ([]frame.Idx, error) {
	if !idx.Dtype().IsInteger() {
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION,
			"expected an integer index, got `%s`", idx.Dtype())
	}
	if idx.HasNulls() {
		return nil, execerror.New(execerror.EXEC_COMPUTE, "gather indices must not contain nulls")
	}
	c, err := idx.Cast(frame.Int64, true)
	if err != nil {
		return nil, err
	}
	vals, err := c.Int64()
	if err != nil {
		return nil, err
	}
	out := make([]frame.Idx, len(vals))
	for i, v := range vals {
		if v < 0 {
			v += int64(n)
		}
		if v < 0 || v >= int64(n) {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE, "gather indices are out of bounds: %d for length %d", vals[i], n)
		}
		out[i] = frame.Idx(v)
	}
	return out, nil
}

func (e *GatherExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	idx, err := e.idx.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	pos, err := resolveIndices(idx, s.Len())
	if err != nil {
		return nil, err
	}
	return s.Gather(pos), nil
}

func (e *GatherExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	ac, err := e.input.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	acIdx, err := e.idx.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	name := ac.Series().Name()

	// a single literal position on row aligned values is a plain gather
	if ac.State() == NotAggregated && acIdx.State() == AggLiteral && e.returnsScalar {
		g := ac.Groups()
		take := make([]frame.Idx, g.Len())
		for i := range take {
			pos, err := resolveIndices(acIdx.Series(), g.GroupLen(i))
			if err != nil {
				return nil, err
			}
			take[i] = g.Group(i)[pos[0]]
		}
		return NewAggregationContext(ac.Series().Gather(take), groups, true), nil
	}

	rows, err := ac.rows()
	if err != nil {
		return nil, err
	}
	idxRows, err := acIdx.rows()
	if err != nil {
		return nil, err
	}
	out := make([]*frame.Series, len(rows))
	for g, r := range rows {
		pos, err := resolveIndices(idxRows[g], r.Len())
		if err != nil {
			return nil, err
		}
		out[g] = r.Gather(pos)
	}
	if e.returnsScalar {
		return fromScalarRows(name, out, groups)
	}
	return fromRows(name, ac.elemDtype(), out, groups), nil
}

func (e *GatherExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	return e.input.ToField(schema)
}
