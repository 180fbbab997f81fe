package engine

import (
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

// ZipWith takes truthy where mask is true and falsy elsewhere; a null mask
// entry selects falsy. Unit length inputs are broadcast.
func ZipWith(mask, truthy, falsy *frame.Series) (*frame.Series, error) {
	bits, err := mask.Bool()
	if err != nil {
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "if-then-else predicate must be of type `Boolean`, got `%s`", mask.Dtype())
	}
	n := mask.Len()
	for _, s := range []*frame.Series{truthy, falsy} {
		if s.Len() != 1 && n != 1 && s.Len() != n {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE,
				"shapes of `mask`, `truthy` and `falsy` do not match: %d, %d, %d", n, truthy.Len(), falsy.Len())
		}
		if s.Len() > n {
			n = s.Len()
		}
	}
	st, ok := frame.Supertype(truthy.Dtype(), falsy.Dtype())
	if !ok {
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION,
			"if-then-else branches have no common type: `%s` and `%s`", truthy.Dtype(), falsy.Dtype())
	}
	t, err := broadcastTo(truthy, st, n)
	if err != nil {
		return nil, err
	}
	f, err := broadcastTo(falsy, st, n)
	if err != nil {
		return nil, err
	}
	both, err := t.Append(f.Rename(t.Name()))
	if err != nil {
		return nil, err
	}
	idx := make([]frame.Idx, n)
	for i := range idx {
		mi := i
		if mask.Len() == 1 {
			mi = 0
		}
		if bits[mi] && mask.IsValid(mi) {
			idx[i] = frame.Idx(i)
		} else {
			idx[i] = frame.Idx(n + i)
		}
	}
	return both.Gather(idx), nil
}

func broadcastTo(s *frame.Series, dtype frame.DataType, n int) (*frame.Series, error) {
	c, err := s.Cast(dtype, false)
	if err != nil {
		return nil, err
	}
	if c.Len() == 1 && n != 1 {
		return c.NewFromIndex(0, n), nil
	}
	return c.Rechunk(), nil
}
