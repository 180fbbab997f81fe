package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/state"
)

type SliceExpr struct {
	input  PhysicalExpr
	offset PhysicalExpr
	length PhysicalExpr
}

func NewSliceExpr(input, offset, length PhysicalExpr) *SliceExpr {
	return &SliceExpr{input: input, offset: offset, length: length}
}

func (e *SliceExpr) ID() uuid.UUID {
	return uuid.Nil
}

func (e *SliceExpr) IsScalar() bool {
	return false
}

func (e *SliceExpr) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}

// sliceArgs reads the i-th offset and length. A null length means up to
// the end.
func sliceArgs(offset, length *frame.Series, i int) (int64, int, error) {
	if offset.Len() == 1 {
		i = 0
	}
	if !offset.Dtype().IsInteger() || !length.Dtype().IsInteger() && length.Dtype() != frame.Null {
		return 0, 0, execerror.Newf(execerror.EXEC_INVALID_OPERATION,
			"slice offset and length must be integers, got `%s` and `%s`", offset.Dtype(), length.Dtype())
	}
	if !offset.IsValid(i) {
		return 0, 0, execerror.New(execerror.EXEC_COMPUTE, "slice offset must not be null")
	}
	off, err := offset.Cast(frame.Int64, true)
	if err != nil {
		return 0, 0, err
	}
	ov, _ := off.Int64()

	j := i
	if length.Len() == 1 {
		j = 0
	}
	if length.Dtype() == frame.Null || !length.IsValid(j) {
		return ov[i], int(^uint(0) >> 1), nil
	}
	l, err := length.Cast(frame.Int64, true)
	if err != nil {
		return 0, 0, err
	}
	lv, _ := l.Int64()
	if lv[j] < 0 {
		return 0, 0, execerror.New(execerror.EXEC_COMPUTE, "slice length must not be negative")
	}
	return ov[i], int(lv[j]), nil
}

func (e *SliceExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	offset, err := e.offset.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	length, err := e.length.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	if offset.Len() != 1 || length.Len() != 1 {
		return nil, execerror.New(execerror.EXEC_COMPUTE, "slice offset and length must be single values")
	}
	off, l, err := sliceArgs(offset, length, 0)
	if err != nil {
		return nil, err
	}
	return s.Slice(off, l), nil
}

func (e *SliceExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	ac, err := e.input.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	acOff, err := e.offset.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	acLen, err := e.length.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	for _, a := range []*AggregationContext{acOff, acLen} {
		if !perGroup(a.State()) {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE,
				"slice offset and length must produce a single value per group, got %s", a.State())
		}
	}
	offset, length := acOff.Series(), acLen.Series()

	if ac.State() == NotAggregated {
		var sliceErr error
		sliced := ac.Groups().MapGroups(func(i int, members []frame.Idx) []frame.Idx {
			off, l, err := sliceArgs(offset, length, i)
			if err != nil {
				if sliceErr == nil {
					sliceErr = err
				}
				return nil
			}
			lo, hi := frame.SliceBounds(off, l, len(members))
			return members[lo:hi]
		})
		if sliceErr != nil {
			return nil, sliceErr
		}
		ac.WithGroups(sliced)
		return ac, nil
	}

	rows, err := ac.rows()
	if err != nil {
		return nil, err
	}
	out := make([]*frame.Series, len(rows))
	for g, r := range rows {
		off, l, err := sliceArgs(offset, length, g)
		if err != nil {
			return nil, err
		}
		out[g] = r.Slice(off, l).Rechunk()
	}
	return fromRows(ac.Series().Name(), ac.elemDtype(), out, groups), nil
}

func (e *SliceExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	return e.input.ToField(schema)
}
