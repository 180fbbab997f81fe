package planner

import (
	"math"

	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/state"
)

func boolField() *frame.Field {
	f := frame.NewField("", frame.Boolean)
	return &f
}

// builtin resolves a built in function. The field is nil when the output
// dtype follows the input.
func builtin(kind ir.FunctionKind) (physexpr.ApplyFunc, *frame.Field, error) {
	switch kind {
	case ir.FnNot:
		return unary(engine.Not), boolField(), nil
	case ir.FnIsNull:
		return unary(func(s *frame.Series) (*frame.Series, error) {
			return s.IsNull(), nil
		}), boolField(), nil
	case ir.FnIsNotNull:
		return unary(func(s *frame.Series) (*frame.Series, error) {
			return s.IsNotNull(), nil
		}), boolField(), nil
	case ir.FnReverse:
		return unary(reverse), nil, nil
	case ir.FnUnique:
		return unary(unique), nil, nil
	case ir.FnCumSum:
		return unary(cumSum), nil, nil
	case ir.FnAbs:
		return unary(abs), nil, nil
	}
	return nil, nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "unknown function %d", kind)
}

func unary(f func(*frame.Series) (*frame.Series, error)) physexpr.ApplyFunc {
	return func(_ *state.ExecutionState, s []*frame.Series) (*frame.Series, error) {
		if len(s) != 1 {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE, "expected a single input, got %d", len(s))
		}
		return f(s[0])
	}
}

func reverse(s *frame.Series) (*frame.Series, error) {
	n := s.Len()
	idx := make([]frame.Idx, n)
	for i := range idx {
		idx[i] = frame.Idx(n - 1 - i)
	}
	return s.Gather(idx), nil
}

// unique keeps the first occurrence of every value, in order.
func unique(s *frame.Series) (*frame.Series, error) {
	if s.Len() == 0 {
		return s, nil
	}
	groups, err := engine.GroupBy([]*frame.Series{s}, true)
	if err != nil {
		return nil, err
	}
	return s.Gather(groups.Firsts()), nil
}

// cumSum is a running sum where nulls stay null and do not contribute.
func cumSum(s *frame.Series) (*frame.Series, error) {
	switch dt := s.Dtype(); {
	case dt.IsFloat():
		v, err := s.AsFloat64()
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(v))
		acc := 0.0
		for i, x := range v {
			if s.IsValid(i) {
				acc += x
			}
			out[i] = acc
		}
		return frame.NewFloat64(s.Name(), out).WithValidity(s.Validity()), nil
	case dt.IsInteger() || dt == frame.Boolean:
		c, err := s.Cast(frame.Int64, false)
		if err != nil {
			return nil, err
		}
		v, err := c.Int64()
		if err != nil {
			return nil, err
		}
		out := make([]int64, len(v))
		var acc int64
		for i, x := range v {
			if s.IsValid(i) {
				acc += x
			}
			out[i] = acc
		}
		return frame.NewInt64(s.Name(), out).WithValidity(s.Validity()), nil
	}
	return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "`cum_sum` operation not supported for dtype `%s`", s.Dtype())
}

func abs(s *frame.Series) (*frame.Series, error) {
	switch dt := s.Dtype(); {
	case dt.IsUnsigned():
		return s, nil
	case dt.IsFloat():
		v, err := s.AsFloat64()
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = math.Abs(x)
		}
		return frame.NewFloat64(s.Name(), out).WithValidity(s.Validity()), nil
	case dt.IsSigned():
		c, err := s.Cast(frame.Int64, false)
		if err != nil {
			return nil, err
		}
		v, err := c.Int64()
		if err != nil {
			return nil, err
		}
		out := make([]int64, len(v))
		for i, x := range v {
			if x < 0 {
				x = -x
			}
			out[i] = x
		}
		return frame.NewInt64(s.Name(), out).WithValidity(s.Validity()), nil
	}
	return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "`abs` operation not supported for dtype `%s`", s.Dtype())
}
