package ir

import "github.com/pg-sharding/colexec/pkg/frame"

// ApplyKind tells how a function sees its input in a grouped context.
type ApplyKind int

const (
	// ElementWise functions see the flat values; groups are kept.
	ElementWise ApplyKind = iota
	// GroupWise functions are called once per group.
	GroupWise
	// ApplyFlat functions see the flat values even when they are grouped.
	ApplyFlat
)

func (k ApplyKind) String() string {
	switch k {
	case ElementWise:
		return "elementwise"
	case GroupWise:
		return "groupwise"
	}
	return "flat"
}

type FunctionOptions struct {
	Collect       ApplyKind
	ReturnsScalar bool
	AllowRename   bool
	CheckLengths  bool
	FmtStr        string
}

// IsGroupsSensitive reports whether the function must see whole groups.
func (o FunctionOptions) IsGroupsSensitive() bool {
	return o.Collect == GroupWise
}

// SeriesUDF is a user function over one or more input columns.
type SeriesUDF func(s []*frame.Series) (*frame.Series, error)

// DataFrameUDF replaces the aggregations of a group-by: it is called with
// the rows of every group.
type DataFrameUDF func(df *frame.DataFrame) (*frame.DataFrame, error)

// WindowMapping decides how per-group results are laid back onto rows.
type WindowMapping int

const (
	GroupsToRows WindowMapping = iota
	Explode
	Join
)

func (m WindowMapping) String() string {
	switch m {
	case Explode:
		return "explode"
	case Join:
		return "join"
	}
	return "group_to_rows"
}

type ClosedWindow int

const (
	ClosedRight ClosedWindow = iota
	ClosedLeft
	ClosedBoth
	ClosedNone
)

// RollingOptions define time windows over a sorted integer index column.
// A row at t covers (t+Offset, t+Offset+Period] with the default closure.
type RollingOptions struct {
	IndexColumn string
	Period      int64
	Offset      int64
	Closed      ClosedWindow
}

// DefaultRollingOptions looks back one period from every row.
func DefaultRollingOptions(index string, period int64) RollingOptions {
	return RollingOptions{
		IndexColumn: index,
		Period:      period,
		Offset:      -period,
		Closed:      ClosedRight,
	}
}

type ProjectionOptions struct {
	RunParallel    bool
	DuplicateCheck bool
}

func DefaultProjectionOptions() ProjectionOptions {
	return ProjectionOptions{RunParallel: true, DuplicateCheck: true}
}
