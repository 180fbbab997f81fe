package physexpr

import (
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/state"
	"github.com/pg-sharding/colexec/pkg/threadpool"
)

// ParallelOpSeries reduces s with f. Large inputs are split into one part
// per pool worker, every part is reduced on its own and f runs once more
// over the concatenated partials. f must be associative for this to hold.
func ParallelOpSeries(st *state.ExecutionState, f func(*frame.Series) (*frame.Series, error), s *frame.Series, allowThreading bool) (*frame.Series, error) {
	pool := st.Pool()
	n := pool.Size()
	if !allowThreading || s.Len() <= st.ParallelReduceThreshold() || pool.Busy() || n < 2 || s.Len() < n {
		return f(s)
	}

	step := (s.Len() + n - 1) / n
	parts, err := threadpool.ParMap(pool, n, func(i int) (*frame.Series, error) {
		return f(s.Slice(int64(i*step), step))
	})
	if err != nil {
		return nil, err
	}
	combined, err := frame.Concat(parts)
	if err != nil {
		return nil, err
	}
	return f(combined.Rechunk())
}
