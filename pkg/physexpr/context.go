package physexpr

import (
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

type AggState int

const (
	// AggLiteral is a single value standing for every row.
	AggLiteral AggState = iota
	// NotAggregated is aligned with the rows of the frame.
	NotAggregated
	// AggregatedScalar holds one value per group.
	AggregatedScalar
	// AggregatedList holds one list per group.
	AggregatedList
)

func (s AggState) String() string {
	switch s {
	case AggLiteral:
		return "literal"
	case NotAggregated:
		return "not_aggregated"
	case AggregatedScalar:
		return "aggregated_scalar"
	}
	return "aggregated_list"
}

// UpdateGroups tells how the groups must be rebuilt before they are used
// against the flattened values of an AggregatedList.
type UpdateGroups int

const (
	UpdateNo UpdateGroups = iota
	// WithGroupsLen lays out slice groups with the old group sizes.
	WithGroupsLen
	// WithSeriesLen lays out slice groups with the list lengths.
	WithSeriesLen
)

// AggregationContext is the result of evaluating an expression on groups.
type AggregationContext struct {
	state        AggState
	series       *frame.Series
	groups       *frame.GroupsProxy
	updateGroups UpdateGroups
}

func NewAggregationContext(s *frame.Series, groups *frame.GroupsProxy, aggregated bool) *AggregationContext {
	ac := &AggregationContext{series: s, groups: groups, state: NotAggregated}
	if aggregated {
		ac.state = AggregatedScalar
		if s.Dtype() == frame.List {
			ac.state = AggregatedList
			ac.updateGroups = WithSeriesLen
		}
	}
	return ac
}

func FromLiteral(s *frame.Series, groups *frame.GroupsProxy) *AggregationContext {
	return &AggregationContext{series: s, groups: groups, state: AggLiteral}
}

// FromAggState builds a context with an explicit state. List states get
// their groups rebuilt from the list lengths.
func FromAggState(s *frame.Series, groups *frame.GroupsProxy, st AggState) *AggregationContext {
	ac := &AggregationContext{series: s, groups: groups, state: st}
	if st == AggregatedList {
		ac.updateGroups = WithSeriesLen
	}
	return ac
}

func (ac *AggregationContext) State() AggState {
	return ac.state
}

// Series returns the values as they are held, a list series for
// AggregatedList.
func (ac *AggregationContext) Series() *frame.Series {
	return ac.series
}

func (ac *AggregationContext) IsAggregated() bool {
	return ac.state == AggregatedScalar || ac.state == AggregatedList
}

func (ac *AggregationContext) IsLiteral() bool {
	return ac.state == AggLiteral
}

func (ac *AggregationContext) UpdateGroupsMode() UpdateGroups {
	return ac.updateGroups
}

func (ac *AggregationContext) SetUpdateGroups(u UpdateGroups) {
	ac.updateGroups = u
}

// Groups returns groups that index FlatNaive. For an AggregatedList they
// are contiguous slices over the flattened lists.
func (ac *AggregationContext) Groups() *frame.GroupsProxy {
	switch ac.updateGroups {
	case WithGroupsLen:
		counts := ac.groups.GroupCount()
		lens := make([]int, len(counts))
		for i, c := range counts {
			lens[i] = int(c)
		}
		ac.groups = frame.SliceGroupsFromLens(lens)
	case WithSeriesLen:
		ac.groups = frame.SliceGroupsFromLens(listLens(ac.series))
	}
	ac.updateGroups = UpdateNo
	return ac.groups
}

// Aggregated returns one value per group, gathering row aligned values
// into lists.
func (ac *AggregationContext) Aggregated() *frame.Series {
	switch ac.state {
	case NotAggregated:
		out := ac.series.AggList(ac.groups)
		ac.series = out
		ac.state = AggregatedList
		ac.updateGroups = WithGroupsLen
		return out
	case AggLiteral:
		n := ac.groups.Len()
		rows := make([]*frame.Series, n)
		for i := range rows {
			rows[i] = ac.series.Head(1)
		}
		out := frame.NewList(ac.series.Name(), ac.series.Dtype(), rows)
		ac.series = out
		ac.state = AggregatedList
		ac.updateGroups = WithSeriesLen
		return out
	}
	return ac.series
}

// FlatNaive returns the values without list nesting.
func (ac *AggregationContext) FlatNaive() *frame.Series {
	if ac.state != AggregatedList {
		return ac.series
	}
	flat, _, err := ac.series.Flatten()
	if err != nil {
		return ac.series
	}
	return flat
}

// Finalize returns the group-by output column: one value per group.
func (ac *AggregationContext) Finalize() *frame.Series {
	if ac.state == AggLiteral {
		return ac.series.NewFromIndex(0, ac.groups.Len())
	}
	return ac.Aggregated()
}

// WithSeries replaces the values. Aggregated values must hold exactly one
// entry per group.
func (ac *AggregationContext) WithSeries(s *frame.Series, aggregated bool) error {
	switch {
	case aggregated:
		if s.Len() != ac.groups.Len() {
			return lengthMismatch(s.Len(), ac.groups.Len())
		}
		ac.state = AggregatedScalar
		ac.updateGroups = UpdateNo
		if s.Dtype() == frame.List {
			ac.state = AggregatedList
			ac.updateGroups = WithSeriesLen
		}
	case ac.state == AggregatedScalar:
		if s.Len() != ac.groups.Len() {
			return lengthMismatch(s.Len(), ac.groups.Len())
		}
	case ac.state == AggLiteral && s.Len() == 1:
	default:
		ac.state = NotAggregated
		ac.updateGroups = UpdateNo
	}
	ac.series = s
	return nil
}

// WithGroups swaps the groups. List values are flattened first since the
// new groups index rows.
func (ac *AggregationContext) WithGroups(groups *frame.GroupsProxy) {
	if ac.state == AggregatedList {
		ac.series = ac.FlatNaive()
		ac.state = NotAggregated
	}
	ac.groups = groups
	ac.updateGroups = UpdateNo
}

// Rename renames the held values.
func (ac *AggregationContext) Rename(name string) {
	ac.series = ac.series.Rename(name)
}

// rows returns the values of every group as its own series.
func (ac *AggregationContext) rows() ([]*frame.Series, error) {
	n := ac.groups.Len()
	out := make([]*frame.Series, n)
	switch ac.state {
	case AggLiteral:
		for i := range out {
			out[i] = ac.series
		}
	case AggregatedScalar:
		for i := range out {
			out[i] = ac.series.Slice(int64(i), 1)
		}
	case AggregatedList:
		rows, err := ac.series.ListRows()
		if err != nil {
			return nil, err
		}
		if len(rows) != n {
			return nil, lengthMismatch(len(rows), n)
		}
		for i, r := range rows {
			if r == nil {
				r = frame.FullNull(ac.series.Name(), ac.series.InnerDtype(), 0)
			}
			out[i] = r.Rename(ac.series.Name())
		}
	default:
		for i := range out {
			if ac.groups.IsSlice() {
				sl := ac.groups.Slices()[i]
				out[i] = ac.series.Slice(int64(sl[0]), int(sl[1]))
			} else {
				out[i] = ac.series.Gather(ac.groups.Group(i))
			}
		}
	}
	return out, nil
}

// fromRows builds an AggregatedList context out of per group results.
func fromRows(name string, dtype frame.DataType, rows []*frame.Series, groups *frame.GroupsProxy) *AggregationContext {
	for _, r := range rows {
		if r != nil && r.Dtype() != frame.Null {
			dtype = r.Dtype()
			break
		}
	}
	return FromAggState(frame.NewList(name, dtype, rows), groups, AggregatedList)
}

// fromScalarRows concatenates single value results into an
// AggregatedScalar context.
func fromScalarRows(name string, rows []*frame.Series, groups *frame.GroupsProxy) (*AggregationContext, error) {
	for i, r := range rows {
		if r.Len() != 1 {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE,
				"expected a single value per group, group %d produced %d", i, r.Len())
		}
	}
	if len(rows) == 0 {
		return NewAggregationContext(frame.FullNull(name, frame.Null, 0), groups, true), nil
	}
	out, err := frame.Concat(rows)
	if err != nil {
		return nil, err
	}
	return NewAggregationContext(out.Rename(name).Rechunk(), groups, true), nil
}

func listLens(s *frame.Series) []int {
	rows, err := s.ListRows()
	if err != nil {
		return nil
	}
	lens := make([]int, len(rows))
	for i, r := range rows {
		if r != nil && s.IsValid(i) {
			lens[i] = r.Len()
		}
	}
	return lens
}

func lengthMismatch(got, groups int) error {
	return execerror.Newf(execerror.EXEC_COMPUTE,
		"aggregation produced %d values, expected one per group (%d)", got, groups)
}

func rowAligned(s AggState) bool {
	return s == AggLiteral || s == NotAggregated
}

func perGroup(s AggState) bool {
	return s == AggLiteral || s == AggregatedScalar
}

// elemDtype is the dtype of a single value, the inner dtype for lists.
func (ac *AggregationContext) elemDtype() frame.DataType {
	if ac.state == AggregatedList {
		return ac.series.InnerDtype()
	}
	return ac.series.Dtype()
}
