package physexpr

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/state"
)

// RollingExpr evaluates phys over a time window ending at every row.
type RollingExpr struct {
	phys    PhysicalExpr
	options ir.RollingOptions
	outName string
}

func NewRollingExpr(phys PhysicalExpr, options ir.RollingOptions, outName string) *RollingExpr {
	return &RollingExpr{phys: phys, options: options, outName: outName}
}

func (e *RollingExpr) ID() uuid.UUID {
	return uuid.Nil
}

func (e *RollingExpr) IsScalar() bool {
	return false
}

func (e *RollingExpr) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}

func (e *RollingExpr) cacheKey() string {
	o := e.options
	return fmt.Sprintf("rolling(%s,%d,%d,%d)", o.IndexColumn, o.Period, o.Offset, o.Closed)
}

// RollingGroups builds one window per row of the sorted index column.
func RollingGroups(index []int64, opts ir.RollingOptions) *frame.GroupsProxy {
	slices := make(frame.GroupsSlice, len(index))
	n := len(index)
	// first position with index > v, or >= v when inclusive
	search := func(v int64, inclusive bool) int {
		if inclusive {
			return sort.Search(n, func(i int) bool { return index[i] >= v })
		}
		return sort.Search(n, func(i int) bool { return index[i] > v })
	}
	for i, t := range index {
		start := t + opts.Offset
		end := start + opts.Period
		var lo, hi int
		switch opts.Closed {
		case ir.ClosedLeft:
			lo, hi = search(start, true), search(end, true)
		case ir.ClosedBoth:
			lo, hi = search(start, true), search(end, false)
		case ir.ClosedNone:
			lo, hi = search(start, false), search(end, true)
		default:
			lo, hi = search(start, false), search(end, false)
		}
		if hi < lo {
			hi = lo
		}
		slices[i] = [2]frame.Idx{frame.Idx(lo), frame.Idx(hi - lo)}
	}
	return frame.NewOverlappingSliceGroups(slices)
}

func (e *RollingExpr) groups(df *frame.DataFrame, st *state.ExecutionState) (*frame.GroupsProxy, error) {
	key := e.cacheKey()
	if st.CacheWindow() {
		if g, ok := st.GroupTuples().Get(key); ok && g.Len() == df.Height() {
			return g, nil
		}
	}
	col, err := df.Column(e.options.IndexColumn)
	if err != nil {
		return nil, err
	}
	if col.HasNulls() {
		return nil, execerror.New(execerror.EXEC_COMPUTE, "null values in `rolling` not supported, fill nulls.")
	}
	if !col.Dtype().IsInteger() {
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION,
			"rolling index column %q must be an integer, got `%s`", e.options.IndexColumn, col.Dtype())
	}
	cast, err := col.Cast(frame.Int64, true)
	if err != nil {
		return nil, err
	}
	index, err := cast.Int64()
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(index); i++ {
		if index[i] < index[i-1] {
			return nil, execerror.New(execerror.EXEC_INVALID_OPERATION,
				"argument in operation 'rolling' is not sorted, please sort the 'expr/series/column' first")
		}
	}
	groups := RollingGroups(index, e.options)
	if st.CacheWindow() {
		st.GroupTuples().Put(key, groups)
	}
	return groups, nil
}

func (e *RollingExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	groups, err := e.groups(df, st)
	if err != nil {
		return nil, err
	}
	ac, err := e.phys.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	var out *frame.Series
	switch ac.State() {
	case AggLiteral:
		out = ac.Series().NewFromIndex(0, df.Height())
	case AggregatedScalar:
		out = ac.Series()
	default:
		return nil, execerror.Newf(execerror.EXEC_COMPUTE,
			"rolling expression must produce a single value per window, got %s", ac.State())
	}
	if out.Len() != df.Height() {
		return nil, lengthMismatch(out.Len(), df.Height())
	}
	return out.Rename(e.outName), nil
}

func (e *RollingExpr) EvaluateOnGroups(*frame.DataFrame, *frame.GroupsProxy, *state.ExecutionState) (*AggregationContext, error) {
	return nil, execerror.New(execerror.EXEC_INVALID_OPERATION,
		"rolling expression not allowed in aggregation")
}

func (e *RollingExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	f, err := e.phys.ToField(schema)
	if err != nil {
		return frame.Field{}, err
	}
	return frame.NewField(e.outName, f.Dtype), nil
}
