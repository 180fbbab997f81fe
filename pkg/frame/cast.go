package frame

import (
	"math"
	"strconv"

	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

// Cast converts s to dtype. With strict set, values that cannot be
// represented fail the cast; otherwise they become null.
func (s *Series) Cast(dtype DataType, strict bool) (*Series, error) {
	if s.dtype == dtype {
		return s, nil
	}
	if s.dtype == Null {
		return FullNull(s.name, dtype, s.length), nil
	}
	n := s.length
	validity := append([]bool(nil), s.fullValidity()...)
	fail := func(i int) error {
		if strict {
			return execerror.Newf(execerror.EXEC_COMPUTE,
				"strict conversion from `%s` to `%s` failed for value %s", s.dtype, dtype, FormatValue(s.Get(i)))
		}
		validity[i] = false
		return nil
	}

	var values any
	switch dtype {
	case Boolean:
		out := make([]bool, n)
		for i := 0; i < n; i++ {
			if !validity[i] {
				continue
			}
			switch v := s.Get(i).(type) {
			case int64:
				out[i] = v != 0
			case uint64:
				out[i] = v != 0
			case float64:
				out[i] = v != 0
			case string:
				b, err := strconv.ParseBool(v)
				if err != nil {
					if err := fail(i); err != nil {
						return nil, err
					}
				}
				out[i] = b
			default:
				return nil, castError(s.dtype, dtype)
			}
		}
		values = out
	case Int32, Int64:
		out := make([]int64, n)
		lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
		if dtype == Int32 {
			lo, hi = math.MinInt32, math.MaxInt32
		}
		for i := 0; i < n; i++ {
			if !validity[i] {
				continue
			}
			var x int64
			ok := true
			switch v := s.Get(i).(type) {
			case bool:
				if v {
					x = 1
				}
			case int64:
				x = v
			case uint64:
				ok = v <= math.MaxInt64
				x = int64(v)
			case float64:
				ok = !math.IsNaN(v) && v >= math.MinInt64 && v <= math.MaxInt64
				x = int64(v)
			case string:
				var err error
				x, err = strconv.ParseInt(v, 10, 64)
				ok = err == nil
			default:
				return nil, castError(s.dtype, dtype)
			}
			if !ok || x < lo || x > hi {
				if err := fail(i); err != nil {
					return nil, err
				}
				x = 0
			}
			out[i] = x
		}
		values = out
	case UInt32, UInt64:
		out := make([]uint64, n)
		hi := uint64(math.MaxUint64)
		if dtype == UInt32 {
			hi = math.MaxUint32
		}
		for i := 0; i < n; i++ {
			if !validity[i] {
				continue
			}
			var x uint64
			ok := true
			switch v := s.Get(i).(type) {
			case bool:
				if v {
					x = 1
				}
			case int64:
				ok = v >= 0
				x = uint64(v)
			case uint64:
				x = v
			case float64:
				ok = !math.IsNaN(v) && v >= 0 && v <= math.MaxUint64
				x = uint64(v)
			case string:
				var err error
				x, err = strconv.ParseUint(v, 10, 64)
				ok = err == nil
			default:
				return nil, castError(s.dtype, dtype)
			}
			if !ok || x > hi {
				if err := fail(i); err != nil {
					return nil, err
				}
				x = 0
			}
			out[i] = x
		}
		values = out
	case Float64:
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			if !validity[i] {
				continue
			}
			switch v := s.Get(i).(type) {
			case bool:
				if v {
					out[i] = 1
				}
			case int64:
				out[i] = float64(v)
			case uint64:
				out[i] = float64(v)
			case string:
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					if err := fail(i); err != nil {
						return nil, err
					}
				}
				out[i] = f
			default:
				return nil, castError(s.dtype, dtype)
			}
		}
		values = out
	case String:
		out := make([]string, n)
		for i := 0; i < n; i++ {
			if !validity[i] {
				continue
			}
			switch v := s.Get(i).(type) {
			case bool:
				out[i] = strconv.FormatBool(v)
			case int64:
				out[i] = strconv.FormatInt(v, 10)
			case uint64:
				out[i] = strconv.FormatUint(v, 10)
			case float64:
				out[i] = strconv.FormatFloat(v, 'f', -1, 64)
			default:
				return nil, castError(s.dtype, dtype)
			}
		}
		values = out
	default:
		return nil, castError(s.dtype, dtype)
	}

	out := newSeries(s.name, dtype, values, validity, n)
	out.chunks = s.chunks
	return out, nil
}

func castError(from, to DataType) error {
	return execerror.Newf(execerror.EXEC_INVALID_OPERATION, "cannot cast from `%s` to `%s`", from, to)
}
