package frame

import (
	"sort"

	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

// GroupsIdx holds, per group, the first row and every member row in
// ascending order.
type GroupsIdx struct {
	First  []Idx
	All    [][]Idx
	Sorted bool
}

// GroupsSlice holds [start, len) ranges of contiguous groups.
type GroupsSlice [][2]Idx

// GroupsProxy is the result of a grouping operation in either index or
// slice form.
type GroupsProxy struct {
	idx     *GroupsIdx
	slices  GroupsSlice
	isSlice bool
	// rolling windows produce overlapping slices
	overlapping bool
}

func NewIdxGroups(first []Idx, all [][]Idx, sorted bool) *GroupsProxy {
	return &GroupsProxy{idx: &GroupsIdx{First: first, All: all, Sorted: sorted}}
}

// GroupsFromAll derives the first indices from the member lists.
func GroupsFromAll(all [][]Idx) *GroupsProxy {
	first := make([]Idx, len(all))
	for i, g := range all {
		if len(g) > 0 {
			first[i] = g[0]
		}
	}
	return NewIdxGroups(first, all, false)
}

func NewSliceGroups(slices GroupsSlice) *GroupsProxy {
	return &GroupsProxy{slices: slices, isSlice: true}
}

// NewOverlappingSliceGroups builds slice groups that may overlap, as rolling
// windows do. They do not partition the rows.
func NewOverlappingSliceGroups(slices GroupsSlice) *GroupsProxy {
	return &GroupsProxy{slices: slices, isSlice: true, overlapping: true}
}

// SingleGroup is one group spanning n rows.
func SingleGroup(n int) *GroupsProxy {
	return NewSliceGroups(GroupsSlice{{0, Idx(n)}})
}

// SliceGroupsFromLens lays groups of the given lengths out back to back.
func SliceGroupsFromLens(lens []int) *GroupsProxy {
	slices := make(GroupsSlice, len(lens))
	off := Idx(0)
	for i, l := range lens {
		slices[i] = [2]Idx{off, Idx(l)}
		off += Idx(l)
	}
	return NewSliceGroups(slices)
}

func (g *GroupsProxy) IsSlice() bool {
	return g.isSlice
}

func (g *GroupsProxy) IsOverlapping() bool {
	return g.overlapping
}

func (g *GroupsProxy) Len() int {
	if g.isSlice {
		return len(g.slices)
	}
	return len(g.idx.First)
}

func (g *GroupsProxy) Idx() *GroupsIdx {
	return g.idx
}

func (g *GroupsProxy) Slices() GroupsSlice {
	return g.slices
}

// Group returns the member rows of group i.
func (g *GroupsProxy) Group(i int) []Idx {
	if !g.isSlice {
		return g.idx.All[i]
	}
	start, l := g.slices[i][0], g.slices[i][1]
	out := make([]Idx, l)
	for j := range out {
		out[j] = start + Idx(j)
	}
	return out
}

// GroupLen is the size of group i.
func (g *GroupsProxy) GroupLen(i int) int {
	if g.isSlice {
		return int(g.slices[i][1])
	}
	return len(g.idx.All[i])
}

// First returns the first row of group i.
func (g *GroupsProxy) First(i int) Idx {
	if g.isSlice {
		return g.slices[i][0]
	}
	return g.idx.First[i]
}

// Last returns the last row of group i.
func (g *GroupsProxy) Last(i int) Idx {
	if g.isSlice {
		return g.slices[i][0] + g.slices[i][1] - 1
	}
	all := g.idx.All[i]
	return all[len(all)-1]
}

// GroupCount returns the size of every group.
func (g *GroupsProxy) GroupCount() []Idx {
	out := make([]Idx, g.Len())
	for i := range out {
		out[i] = Idx(g.GroupLen(i))
	}
	return out
}

// Firsts returns the first row of every group.
func (g *GroupsProxy) Firsts() []Idx {
	out := make([]Idx, g.Len())
	for i := range out {
		out[i] = g.First(i)
	}
	return out
}

// ToIdx materializes slice groups into index form.
func (g *GroupsProxy) ToIdx() *GroupsProxy {
	if !g.isSlice {
		return g
	}
	first := make([]Idx, len(g.slices))
	all := make([][]Idx, len(g.slices))
	for i := range all {
		first[i] = g.slices[i][0]
		all[i] = g.Group(i)
	}
	return NewIdxGroups(first, all, true)
}

// Slice keeps length groups starting at offset.
func (g *GroupsProxy) Slice(offset int64, length int) *GroupsProxy {
	lo, hi := SliceBounds(offset, length, g.Len())
	if g.isSlice {
		return &GroupsProxy{slices: g.slices[lo:hi], isSlice: true, overlapping: g.overlapping}
	}
	return NewIdxGroups(g.idx.First[lo:hi], g.idx.All[lo:hi], g.idx.Sorted)
}

// SortByFirst orders index groups by their first row.
func (g *GroupsProxy) SortByFirst() *GroupsProxy {
	if g.isSlice || g.idx.Sorted {
		return g
	}
	order := make([]int, g.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return g.idx.First[order[a]] < g.idx.First[order[b]]
	})
	first := make([]Idx, len(order))
	all := make([][]Idx, len(order))
	for i, o := range order {
		first[i] = g.idx.First[o]
		all[i] = g.idx.All[o]
	}
	return NewIdxGroups(first, all, true)
}

// MapGroups rebuilds index groups by transforming every member list.
func (g *GroupsProxy) MapGroups(fn func(i int, members []Idx) []Idx) *GroupsProxy {
	all := make([][]Idx, g.Len())
	for i := range all {
		all[i] = fn(i, g.Group(i))
	}
	return GroupsFromAll(all)
}

// TakeIdx returns every member row, group after group.
func (g *GroupsProxy) TakeIdx() []Idx {
	total := 0
	for i := 0; i < g.Len(); i++ {
		total += g.GroupLen(i)
	}
	out := make([]Idx, 0, total)
	for i := 0; i < g.Len(); i++ {
		out = append(out, g.Group(i)...)
	}
	return out
}

// Snapshot copies the grouping into plain arrays.
func (g *GroupsProxy) Snapshot() ([]Idx, [][]Idx) {
	first := make([]Idx, g.Len())
	all := make([][]Idx, g.Len())
	for i := range all {
		first[i] = g.First(i)
		members := g.Group(i)
		all[i] = make([]Idx, len(members))
		copy(all[i], members)
	}
	return first, all
}

// CheckPartition verifies that the groups cover 0..height-1 exactly once.
func (g *GroupsProxy) CheckPartition(height int) error {
	if g.overlapping {
		return execerror.New(execerror.EXEC_COMPUTE, "overlapping groups do not partition the rows")
	}
	seen := make([]bool, height)
	n := 0
	for i := 0; i < g.Len(); i++ {
		members := g.Group(i)
		if len(members) > 0 && members[0] != g.First(i) {
			return execerror.Newf(execerror.EXEC_COMPUTE, "group %d: first index %d is not its first member %d", i, g.First(i), members[0])
		}
		for _, m := range members {
			if m >= Idx(height) {
				return execerror.Newf(execerror.EXEC_COMPUTE, "group %d: row %d out of bounds for height %d", i, m, height)
			}
			if seen[m] {
				return execerror.Newf(execerror.EXEC_COMPUTE, "row %d belongs to more than one group", m)
			}
			seen[m] = true
			n++
		}
	}
	if n != height {
		return execerror.Newf(execerror.EXEC_COMPUTE, "groups cover %d of %d rows", n, height)
	}
	return nil
}

// AggList gathers each group's values of s into one list value per group.
func (s *Series) AggList(groups *GroupsProxy) *Series {
	rows := make([]*Series, groups.Len())
	for i := range rows {
		if groups.IsSlice() {
			sl := groups.Slices()[i]
			rows[i] = s.Slice(int64(sl[0]), int(sl[1])).Rechunk()
		} else {
			rows[i] = s.Gather(groups.Group(i))
		}
	}
	return NewList(s.name, s.dtype, rows)
}
