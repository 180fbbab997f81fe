package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/state"
)

// WindowExpr evaluates phys over the groups formed by groupBy and lays the
// per group results back onto the rows of the frame.
type WindowExpr struct {
	groupBy      []PhysicalExpr
	applyColumns []string
	outName      string
	phys         PhysicalExpr
	mapping      ir.WindowMapping
	// cacheKey identifies the partition expressions in the window caches
	cacheKey string
}

func NewWindowExpr(groupBy []PhysicalExpr, applyColumns []string, outName string, phys PhysicalExpr, mapping ir.WindowMapping, cacheKey string) *WindowExpr {
	return &WindowExpr{
		groupBy:      groupBy,
		applyColumns: applyColumns,
		outName:      outName,
		phys:         phys,
		mapping:      mapping,
		cacheKey:     cacheKey,
	}
}

func (e *WindowExpr) ID() uuid.UUID {
	return uuid.Nil
}

func (e *WindowExpr) IsScalar() bool {
	return false
}

func (e *WindowExpr) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}

// ApplyColumns are the root columns of the window function.
func (e *WindowExpr) ApplyColumns() []string {
	return e.applyColumns
}

func (e *WindowExpr) groups(df *frame.DataFrame, st *state.ExecutionState) (*frame.GroupsProxy, error) {
	cache := st.CacheWindow() && e.cacheKey != ""
	if cache {
		if g, ok := st.GroupTuples().Get(e.cacheKey); ok && coversRows(g, df.Height()) {
			return g, nil
		}
	}
	keys, err := evaluateAll(e.groupBy, df, st)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		if k.Len() == 1 && df.Height() != 1 {
			keys[i] = k.NewFromIndex(0, df.Height())
		}
	}
	groups, err := engine.GroupBy(keys, true)
	if err != nil {
		return nil, err
	}
	if cache {
		st.GroupTuples().Put(e.cacheKey, groups)
	}
	return groups, nil
}

// coversRows reports whether cached groups can belong to a frame of height
// rows: every row sits in exactly one group and no index is out of range.
func coversRows(g *frame.GroupsProxy, height int) bool {
	n := 0
	for i := 0; i < g.Len(); i++ {
		n += g.GroupLen(i)
		if g.GroupLen(i) > 0 && int(g.Last(i)) >= height {
			return false
		}
	}
	return n == height
}

// rowToGroup maps every row to the group holding it, -1 when none does.
func (e *WindowExpr) rowToGroup(height int, groups *frame.GroupsProxy, st *state.ExecutionState) []int64 {
	cache := st.CacheWindow() && e.cacheKey != ""
	if cache {
		if idx, ok := st.JoinTuples().Get(e.cacheKey); ok && len(idx) == height {
			return idx
		}
	}
	idx := make([]int64, height)
	for i := range idx {
		idx[i] = -1
	}
	for g := 0; g < groups.Len(); g++ {
		for _, m := range groups.Group(g) {
			idx[m] = int64(g)
		}
	}
	if cache {
		st.JoinTuples().Put(e.cacheKey, idx)
	}
	return idx
}

func windowLengthMismatch() error {
	return execerror.New(execerror.EXEC_COMPUTE,
		"the length of the window expression did not match that of the group")
}

// scatter places values, laid out group after group as in src, back onto
// the row positions of the groups.
func scatter(values *frame.Series, dst []frame.Idx, height int) (*frame.Series, error) {
	if values.Len() != len(dst) || len(dst) != height {
		return nil, windowLengthMismatch()
	}
	take := make([]frame.Idx, height)
	for k, row := range dst {
		take[row] = frame.Idx(k)
	}
	return values.Gather(take), nil
}

func (e *WindowExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	height := df.Height()
	if height == 0 {
		f, err := e.ToField(df.Schema())
		if err != nil {
			return nil, err
		}
		return frame.FullNull(e.outName, f.Dtype, 0), nil
	}
	groups, err := e.groups(df, st)
	if err != nil {
		return nil, err
	}
	ac, err := e.phys.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	if st.Verbose() {
		execlog.Zero.Debug().
			Str("window", e.outName).
			Str("state", ac.State().String()).
			Str("mapping", e.mapping.String()).
			Int("groups", groups.Len()).
			Msg("window expression evaluated")
	}

	var out *frame.Series
	switch {
	case ac.State() == AggLiteral:
		out = ac.Series().NewFromIndex(0, height)
	case e.mapping == ir.Explode:
		out, _, err = ac.Aggregated().Explode()
	case e.mapping == ir.Join:
		out = ac.Aggregated().GatherNullable(e.rowToGroup(height, groups, st))
	case ac.State() == AggregatedScalar:
		out = ac.Series().GatherNullable(e.rowToGroup(height, groups, st))
	case ac.State() == NotAggregated:
		out, err = e.mapNotAggregated(ac, groups, height)
	default:
		out, err = e.mapList(ac, groups, height)
	}
	if err != nil {
		return nil, err
	}
	return out.Rename(e.outName), nil
}

// mapNotAggregated handles row aligned results whose groups may have been
// reordered, e.g. by a sort within the window.
func (e *WindowExpr) mapNotAggregated(ac *AggregationContext, groups *frame.GroupsProxy, height int) (*frame.Series, error) {
	src := ac.Groups()
	if src.Len() != groups.Len() {
		return nil, windowLengthMismatch()
	}
	for g := 0; g < groups.Len(); g++ {
		if src.GroupLen(g) != groups.GroupLen(g) {
			return nil, windowLengthMismatch()
		}
	}
	values := ac.Series().Gather(src.TakeIdx())
	return scatter(values, groups.TakeIdx(), height)
}

// mapList flattens one list per group; every list must be as long as its
// group.
func (e *WindowExpr) mapList(ac *AggregationContext, groups *frame.GroupsProxy, height int) (*frame.Series, error) {
	lens := listLens(ac.Series())
	if len(lens) != groups.Len() {
		return nil, windowLengthMismatch()
	}
	for g, l := range lens {
		if l != groups.GroupLen(g) {
			return nil, windowLengthMismatch()
		}
	}
	return scatter(ac.FlatNaive(), groups.TakeIdx(), height)
}

func (e *WindowExpr) EvaluateOnGroups(*frame.DataFrame, *frame.GroupsProxy, *state.ExecutionState) (*AggregationContext, error) {
	return nil, execerror.New(execerror.EXEC_INVALID_OPERATION,
		"window expression not allowed in aggregation")
}

func (e *WindowExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	f, err := e.phys.ToField(schema)
	if err != nil {
		return frame.Field{}, err
	}
	if e.mapping == ir.Join {
		return frame.NewField(e.outName, frame.List), nil
	}
	if f.Dtype == frame.List && e.mapping == ir.Explode {
		return frame.NewField(e.outName, frame.Null), nil
	}
	return frame.NewField(e.outName, f.Dtype), nil
}
