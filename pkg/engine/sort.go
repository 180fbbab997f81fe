package engine

import (
	"cmp"

	"github.com/pg-sharding/colexec/pkg/frame"
)

const (
	ASC = iota
	DESC
)

// SortableWithContext orders row indices by a list of key columns.
type SortableWithContext struct {
	Data      []frame.Idx
	Keys      []*frame.Series
	Order     []int
	NullsLast bool

	cmps []func(a, b int) int
}

func NewSortable(keys []*frame.Series, descending []bool, nullsLast bool) *SortableWithContext {
	n := 0
	if len(keys) > 0 {
		n = keys[0].Len()
	}
	data := make([]frame.Idx, n)
	for i := range data {
		data[i] = frame.Idx(i)
	}
	order := make([]int, len(keys))
	for i := range keys {
		if i < len(descending) && descending[i] {
			order[i] = DESC
		} else if i >= len(descending) && len(descending) == 1 && descending[0] {
			order[i] = DESC
		}
	}
	cmps := make([]func(a, b int) int, len(keys))
	for i, k := range keys {
		cmps[i] = comparator(k)
	}
	return &SortableWithContext{
		Data:      data,
		Keys:      keys,
		Order:     order,
		NullsLast: nullsLast,
		cmps:      cmps,
	}
}

func (a SortableWithContext) Len() int      { return len(a.Data) }
func (a SortableWithContext) Swap(i, j int) { a.Data[i], a.Data[j] = a.Data[j], a.Data[i] }
func (a SortableWithContext) Less(i, j int) bool {
	return a.compareRows(int(a.Data[i]), int(a.Data[j])) < 0
}

func (a SortableWithContext) compareRows(x, y int) int {
	for k, key := range a.Keys {
		xv, yv := key.IsValid(x), key.IsValid(y)
		switch {
		case !xv && !yv:
			continue
		case !xv:
			if a.NullsLast {
				return 1
			}
			return -1
		case !yv:
			if a.NullsLast {
				return -1
			}
			return 1
		}
		c := a.cmps[k](x, y)
		if a.Order[k] == DESC {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// comparator compares two valid rows of s.
func comparator(s *frame.Series) func(a, b int) int {
	switch s.Dtype() {
	case frame.Boolean:
		v, _ := s.Bool()
		return func(a, b int) int {
			switch {
			case v[a] == v[b]:
				return 0
			case !v[a]:
				return -1
			}
			return 1
		}
	case frame.Int32, frame.Int64:
		v, _ := s.Int64()
		return func(a, b int) int { return cmp.Compare(v[a], v[b]) }
	case frame.UInt32, frame.UInt64:
		v, _ := s.UInt64()
		return func(a, b int) int { return cmp.Compare(v[a], v[b]) }
	case frame.Float64:
		v, _ := s.Float64()
		return func(a, b int) int { return cmp.Compare(v[a], v[b]) }
	case frame.String:
		v, _ := s.Str()
		return func(a, b int) int { return cmp.Compare(v[a], v[b]) }
	}
	return func(a, b int) int {
		return cmp.Compare(frame.FormatValue(s.Get(a)), frame.FormatValue(s.Get(b)))
	}
}
