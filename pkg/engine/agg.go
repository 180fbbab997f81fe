package engine

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

// GroupByMethod is a per group reduction.
type GroupByMethod int

const (
	MethodMin GroupByMethod = iota
	MethodMax
	MethodMedian
	MethodNUnique
	MethodFirst
	MethodLast
	MethodMean
	MethodImplode
	MethodSum
	MethodCount
	MethodStd
	MethodVar
	MethodQuantile
)

var methodNames = map[GroupByMethod]string{
	MethodMin:      "min",
	MethodMax:      "max",
	MethodMedian:   "median",
	MethodNUnique:  "n_unique",
	MethodFirst:    "first",
	MethodLast:     "last",
	MethodMean:     "mean",
	MethodImplode:  "implode",
	MethodSum:      "sum",
	MethodCount:    "count",
	MethodStd:      "std",
	MethodVar:      "var",
	MethodQuantile: "quantile",
}

func (m GroupByMethod) String() string {
	return methodNames[m]
}

// QuantileInterpolation picks a value between two ranks.
type QuantileInterpolation int

const (
	InterpolNearest QuantileInterpolation = iota
	InterpolLower
	InterpolHigher
	InterpolMidpoint
	InterpolLinear
)

// groupValues returns the valid float values of every group.
func groupValues(s *frame.Series, groups *frame.GroupsProxy) ([][]float64, error) {
	vals, err := s.AsFloat64()
	if err != nil {
		return nil, err
	}
	out := make([][]float64, groups.Len())
	for g := range out {
		members := groups.Group(g)
		buf := make([]float64, 0, len(members))
		for _, m := range members {
			if s.IsValid(int(m)) {
				buf = append(buf, vals[m])
			}
		}
		out[g] = buf
	}
	return out, nil
}

func floatAgg(s *frame.Series, groups *frame.GroupsProxy, fn func(v []float64) (float64, bool)) (*frame.Series, error) {
	if s.Dtype() == frame.String || s.Dtype().IsNested() {
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "numeric aggregation is not supported for `%s`", s.Dtype())
	}
	gv, err := groupValues(s, groups)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(gv))
	validity := make([]bool, len(gv))
	for g, v := range gv {
		out[g], validity[g] = fn(v)
	}
	return frame.NewFloat64(s.Name(), out).WithValidity(validity), nil
}

// AggSum sums every group. Empty and all null groups sum to zero.
func AggSum(s *frame.Series, groups *frame.GroupsProxy) (*frame.Series, error) {
	n := groups.Len()
	switch dt := s.Dtype(); {
	case dt == frame.Boolean || dt.IsUnsigned():
		c, err := s.Cast(frame.UInt64, false)
		if err != nil {
			return nil, err
		}
		v, _ := c.UInt64()
		out := make([]uint64, n)
		for g := range out {
			for _, m := range groups.Group(g) {
				if c.IsValid(int(m)) {
					out[g] += v[m]
				}
			}
		}
		return frame.NewUInt64(s.Name(), out), nil
	case dt.IsSigned():
		v, _ := s.Int64()
		out := make([]int64, n)
		for g := range out {
			for _, m := range groups.Group(g) {
				if s.IsValid(int(m)) {
					out[g] += v[m]
				}
			}
		}
		return frame.NewInt64(s.Name(), out), nil
	case dt == frame.Float64:
		v, _ := s.Float64()
		out := make([]float64, n)
		for g := range out {
			for _, m := range groups.Group(g) {
				if s.IsValid(int(m)) {
					out[g] += v[m]
				}
			}
		}
		return frame.NewFloat64(s.Name(), out), nil
	case dt == frame.Null:
		return frame.FullNull(s.Name(), frame.Null, n), nil
	}
	return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "`sum` operation not supported for dtype `%s`", s.Dtype())
}

func extremum(s *frame.Series, groups *frame.GroupsProxy, max bool) (*frame.Series, error) {
	if s.Dtype().IsNested() {
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "`min`/`max` operation not supported for dtype `%s`", s.Dtype())
	}
	if s.Dtype() == frame.Null {
		return frame.FullNull(s.Name(), frame.Null, groups.Len()), nil
	}
	cmp := comparator(s)
	idx := make([]int64, groups.Len())
	for g := range idx {
		best := int64(-1)
		for _, m := range groups.Group(g) {
			if !s.IsValid(int(m)) {
				continue
			}
			if best < 0 {
				best = int64(m)
				continue
			}
			c := cmp(int(m), int(best))
			if (max && c > 0) || (!max && c < 0) {
				best = int64(m)
			}
		}
		idx[g] = best
	}
	return s.GatherNullable(idx), nil
}

func AggMin(s *frame.Series, groups *frame.GroupsProxy) (*frame.Series, error) {
	return extremum(s, groups, false)
}

func AggMax(s *frame.Series, groups *frame.GroupsProxy) (*frame.Series, error) {
	return extremum(s, groups, true)
}

func AggMean(s *frame.Series, groups *frame.GroupsProxy) (*frame.Series, error) {
	return floatAgg(s, groups, func(v []float64) (float64, bool) {
		m, err := stats.Mean(v)
		return m, err == nil
	})
}

func AggMedian(s *frame.Series, groups *frame.GroupsProxy) (*frame.Series, error) {
	return floatAgg(s, groups, func(v []float64) (float64, bool) {
		m, err := stats.Median(v)
		return m, err == nil
	})
}

func variance(v []float64, ddof uint8) (float64, bool) {
	if len(v) <= int(ddof) {
		return 0, false
	}
	pv, err := stats.PopulationVariance(v)
	if err != nil {
		return 0, false
	}
	n := float64(len(v))
	return pv * n / (n - float64(ddof)), true
}

func AggVar(s *frame.Series, groups *frame.GroupsProxy, ddof uint8) (*frame.Series, error) {
	return floatAgg(s, groups, func(v []float64) (float64, bool) {
		return variance(v, ddof)
	})
}

func AggStd(s *frame.Series, groups *frame.GroupsProxy, ddof uint8) (*frame.Series, error) {
	return floatAgg(s, groups, func(v []float64) (float64, bool) {
		x, ok := variance(v, ddof)
		return math.Sqrt(x), ok
	})
}

// AggFirst takes the first row of every group; empty groups give null.
func AggFirst(s *frame.Series, groups *frame.GroupsProxy) *frame.Series {
	idx := make([]int64, groups.Len())
	for g := range idx {
		if groups.GroupLen(g) == 0 {
			idx[g] = -1
			continue
		}
		idx[g] = int64(groups.First(g))
	}
	return s.GatherNullable(idx)
}

func AggLast(s *frame.Series, groups *frame.GroupsProxy) *frame.Series {
	idx := make([]int64, groups.Len())
	for g := range idx {
		if groups.GroupLen(g) == 0 {
			idx[g] = -1
			continue
		}
		idx[g] = int64(groups.Last(g))
	}
	return s.GatherNullable(idx)
}

// AggNUnique counts distinct values per group, null counting as one value.
func AggNUnique(s *frame.Series, groups *frame.GroupsProxy) (*frame.Series, error) {
	keys := []*frame.Series{s}
	out := make([]frame.Idx, groups.Len())
	for g := range out {
		seen := make(map[string]struct{})
		for _, m := range groups.Group(g) {
			b, err := EncodeRow(nil, keys, int(m))
			if err != nil {
				return nil, err
			}
			seen[string(b)] = struct{}{}
		}
		out[g] = frame.Idx(len(seen))
	}
	return frame.NewIdx(s.Name(), out), nil
}

// AggCount counts the rows of every group, skipping nulls unless
// includeNulls is set.
func AggCount(s *frame.Series, groups *frame.GroupsProxy, includeNulls bool) *frame.Series {
	out := make([]frame.Idx, groups.Len())
	for g := range out {
		if includeNulls || !s.HasNulls() {
			out[g] = frame.Idx(groups.GroupLen(g))
			continue
		}
		for _, m := range groups.Group(g) {
			if s.IsValid(int(m)) {
				out[g]++
			}
		}
	}
	return frame.NewIdx(s.Name(), out)
}

// Quantile computes the q-th quantile of unsorted values.
func Quantile(v []float64, q float64, interpol QuantileInterpolation) (float64, bool) {
	if len(v) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo, hi := math.Floor(pos), math.Ceil(pos)
	switch interpol {
	case InterpolNearest:
		return sorted[int(math.Round(pos))], true
	case InterpolLower:
		return sorted[int(lo)], true
	case InterpolHigher:
		return sorted[int(hi)], true
	case InterpolMidpoint:
		return (sorted[int(lo)] + sorted[int(hi)]) / 2, true
	}
	l, h := sorted[int(lo)], sorted[int(hi)]
	return l + (h-l)*(pos-lo), true
}

func AggQuantile(s *frame.Series, groups *frame.GroupsProxy, q float64, interpol QuantileInterpolation) (*frame.Series, error) {
	if q < 0 || q > 1 || math.IsNaN(q) {
		return nil, execerror.New(execerror.EXEC_COMPUTE, "quantile should be between 0.0 and 1.0")
	}
	return floatAgg(s, groups, func(v []float64) (float64, bool) {
		return Quantile(v, q, interpol)
	})
}

// Aggregate dispatches a method without extra arguments.
func Aggregate(s *frame.Series, groups *frame.GroupsProxy, m GroupByMethod) (*frame.Series, error) {
	switch m {
	case MethodMin:
		return AggMin(s, groups)
	case MethodMax:
		return AggMax(s, groups)
	case MethodMedian:
		return AggMedian(s, groups)
	case MethodNUnique:
		return AggNUnique(s, groups)
	case MethodFirst:
		return AggFirst(s, groups), nil
	case MethodLast:
		return AggLast(s, groups), nil
	case MethodMean:
		return AggMean(s, groups)
	case MethodImplode:
		return s.AggList(groups), nil
	case MethodSum:
		return AggSum(s, groups)
	case MethodCount:
		return AggCount(s, groups, false), nil
	case MethodStd:
		return AggStd(s, groups, 1)
	case MethodVar:
		return AggVar(s, groups, 1)
	}
	return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "aggregation %s needs extra arguments", m)
}
