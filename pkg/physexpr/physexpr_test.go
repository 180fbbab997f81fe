package physexpr_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// key: a b a b
// v:   1 2 3 4
// w:   4 3 2 1
func testFrame(t *testing.T) *frame.DataFrame {
	t.Helper()
	df, err := frame.New(
		frame.NewString("key", []string{"a", "b", "a", "b"}),
		frame.NewInt64("v", []int64{1, 2, 3, 4}),
		frame.NewInt64("w", []int64{4, 3, 2, 1}),
	)
	require.NoError(t, err)
	return df
}

func testGroups(t *testing.T, df *frame.DataFrame) *frame.GroupsProxy {
	t.Helper()
	key, err := df.Column("key")
	require.NoError(t, err)
	groups, err := engine.GroupBy([]*frame.Series{key}, true)
	require.NoError(t, err)
	return groups
}

func col(name string) *physexpr.ColumnExpr {
	return physexpr.NewColumnExpr(name, nil, uuid.Nil)
}

func lit(s *frame.Series) *physexpr.LiteralExpr {
	return physexpr.NewLiteralExpr(s)
}

func listValues(t *testing.T, s *frame.Series) [][]any {
	t.Helper()
	rows, err := s.ListRows()
	require.NoError(t, err)
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return out
}

func TestColumnLookup(t *testing.T) {
	assert := assert.New(t)
	st := state.New(context.Background())
	df := testFrame(t)

	// stale planning schema: "v" is not at index 0
	stale := frame.NewSchema(frame.NewField("v", frame.Int64))
	s, err := physexpr.NewColumnExpr("v", stale, uuid.Nil).Evaluate(df, st)
	assert.NoError(err)
	assert.Equal([]any{int64(1), int64(2), int64(3), int64(4)}, s.Values())

	ext, err := frame.New(frame.NewInt64("outer", []int64{7}))
	require.NoError(t, err)
	st.SetExtContexts([]*frame.DataFrame{ext})
	s, err = col("outer").Evaluate(df, st)
	assert.NoError(err)
	assert.Equal([]any{int64(7)}, s.Values())

	_, err = col("missing").Evaluate(df, st)
	assert.True(execerror.Is(err, execerror.EXEC_COLUMN_NOT_FOUND))
}

func TestColumnReify(t *testing.T) {
	v := provenance.NewLocalValidator()
	session := provenance.NewSession(v, true)
	st := state.New(context.Background())
	st.SetSession(session)

	id, err := session.BuildExpr(context.Background(), &provenance.ColumnExpr{Name: "w"})
	require.NoError(t, err)

	_, err = physexpr.NewColumnExpr("w", nil, id).Evaluate(testFrame(t), st)
	require.NoError(t, err)

	data, ok := v.Reified(id)
	require.True(t, ok)
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(data))
}

func TestGroupAggregations(t *testing.T) {
	df := testFrame(t)

	for _, tt := range []struct {
		name   string
		expr   physexpr.PhysicalExpr
		state  physexpr.AggState
		values []any
	}{
		{
			name:   "sum",
			expr:   physexpr.NewAggregationExpr(col("v"), engine.MethodSum, uuid.Nil),
			state:  physexpr.AggregatedScalar,
			values: []any{int64(4), int64(6)},
		},
		{
			name:   "count",
			expr:   physexpr.NewCountExpr(uuid.Nil),
			state:  physexpr.AggregatedScalar,
			values: []any{uint64(2), uint64(2)},
		},
		{
			name:   "quantile",
			expr:   physexpr.NewAggQuantileExpr(col("v"), lit(frame.NewFloat64("q", []float64{0.5})), engine.InterpolLinear),
			state:  physexpr.AggregatedScalar,
			values: []any{2.0, 3.0},
		},
		{
			name: "filtered sum",
			expr: physexpr.NewAggregationExpr(
				physexpr.NewFilterExpr(col("v"),
					physexpr.NewBinaryExpr(col("v"), engine.Gt, lit(frame.NewInt64("lit", []int64{1})), false)),
				engine.MethodSum, uuid.Nil),
			state:  physexpr.AggregatedScalar,
			values: []any{int64(3), int64(6)},
		},
		{
			name:   "gather second",
			expr:   physexpr.NewGatherExpr(col("v"), lit(frame.NewInt64("lit", []int64{1})), true),
			state:  physexpr.AggregatedScalar,
			values: []any{int64(3), int64(4)},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			st := state.New(context.Background())
			ac, err := tt.expr.EvaluateOnGroups(df, testGroups(t, df), st)
			require.NoError(t, err)
			assert.Equal(t, tt.state, ac.State())
			assert.Equal(t, tt.values, ac.Finalize().Values())
		})
	}
}

func TestGroupLists(t *testing.T) {
	df := testFrame(t)
	implode := func(e physexpr.PhysicalExpr) physexpr.PhysicalExpr {
		return physexpr.NewAggregationExpr(e, engine.MethodImplode, uuid.Nil)
	}

	for _, tt := range []struct {
		name string
		expr physexpr.PhysicalExpr
		rows [][]any
	}{
		{
			name: "implode",
			expr: implode(col("v")),
			rows: [][]any{{int64(1), int64(3)}, {int64(2), int64(4)}},
		},
		{
			name: "sort descending",
			expr: implode(physexpr.NewSortExpr(col("v"), engine.SortOptions{Descending: true})),
			rows: [][]any{{int64(3), int64(1)}, {int64(4), int64(2)}},
		},
		{
			name: "sort by",
			expr: implode(physexpr.NewSortByExpr(col("v"), []physexpr.PhysicalExpr{col("w")},
				engine.SortMultipleOptions{Descending: []bool{false}})),
			rows: [][]any{{int64(3), int64(1)}, {int64(4), int64(2)}},
		},
		{
			name: "slice head",
			expr: implode(physexpr.NewSliceExpr(col("v"),
				lit(frame.NewInt64("offset", []int64{0})), lit(frame.NewInt64("length", []int64{1})))),
			rows: [][]any{{int64(1)}, {int64(2)}},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			st := state.New(context.Background())
			ac, err := tt.expr.EvaluateOnGroups(df, testGroups(t, df), st)
			require.NoError(t, err)
			assert.Equal(t, physexpr.AggregatedList, ac.State())
			assert.Equal(t, tt.rows, listValues(t, ac.Finalize()))
		})
	}
}

func TestAggregateAlreadyAggregated(t *testing.T) {
	df := testFrame(t)
	st := state.New(context.Background())
	inner := physexpr.NewAggregationExpr(col("v"), engine.MethodSum, uuid.Nil)
	_, err := physexpr.NewAggregationExpr(inner, engine.MethodMax, uuid.Nil).
		EvaluateOnGroups(df, testGroups(t, df), st)
	assert.True(t, execerror.Is(err, execerror.EXEC_COMPUTE))
}

func TestPartitionedMean(t *testing.T) {
	df, err := frame.New(frame.NewInt64("v", []int64{1, 2, 6}))
	require.NoError(t, err)
	st := state.New(context.Background())

	agg := physexpr.NewAggregationExpr(col("v"), engine.MethodMean, uuid.Nil).AsPartitionedAggregator()
	require.NotNil(t, agg)

	// every row is its own partial group
	partials := frame.NewIdxGroups([]frame.Idx{0, 1, 2}, [][]frame.Idx{{0}, {1}, {2}}, true)
	partitioned, err := agg.EvaluatePartitioned(df, partials, st)
	require.NoError(t, err)
	assert.Equal(t, frame.Struct, partitioned.Dtype())

	merged := frame.NewIdxGroups([]frame.Idx{0, 2}, [][]frame.Idx{{0, 1}, {2}}, true)
	out, err := agg.Finalize(partitioned, merged, st)
	require.NoError(t, err)
	assert.Equal(t, "v", out.Name())
	assert.Equal(t, []any{1.5, 6.0}, out.Values())
}

func TestPartitionedUnsupported(t *testing.T) {
	agg := physexpr.NewAggregationExpr(col("v"), engine.MethodStd, uuid.Nil)
	assert.Nil(t, agg.AsPartitionedAggregator())
}

func TestWindowMappings(t *testing.T) {
	df := testFrame(t)

	for _, tt := range []struct {
		name    string
		phys    physexpr.PhysicalExpr
		mapping ir.WindowMapping
		check   func(t *testing.T, out *frame.Series)
	}{
		{
			name:    "scalar to rows",
			phys:    physexpr.NewAggregationExpr(col("v"), engine.MethodSum, uuid.Nil),
			mapping: ir.GroupsToRows,
			check: func(t *testing.T, out *frame.Series) {
				assert.Equal(t, []any{int64(4), int64(6), int64(4), int64(6)}, out.Values())
			},
		},
		{
			name:    "sorted within groups",
			phys:    physexpr.NewSortExpr(col("v"), engine.SortOptions{Descending: true}),
			mapping: ir.GroupsToRows,
			check: func(t *testing.T, out *frame.Series) {
				assert.Equal(t, []any{int64(3), int64(4), int64(1), int64(2)}, out.Values())
			},
		},
		{
			name:    "join",
			phys:    physexpr.NewAggregationExpr(col("v"), engine.MethodImplode, uuid.Nil),
			mapping: ir.Join,
			check: func(t *testing.T, out *frame.Series) {
				assert.Equal(t, [][]any{
					{int64(1), int64(3)}, {int64(2), int64(4)},
					{int64(1), int64(3)}, {int64(2), int64(4)},
				}, listValues(t, out))
			},
		},
		{
			name:    "explode",
			phys:    physexpr.NewAggregationExpr(col("v"), engine.MethodImplode, uuid.Nil),
			mapping: ir.Explode,
			check: func(t *testing.T, out *frame.Series) {
				assert.Equal(t, []any{int64(1), int64(3), int64(2), int64(4)}, out.Values())
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			st := state.New(context.Background())
			w := physexpr.NewWindowExpr([]physexpr.PhysicalExpr{col("key")}, []string{"v"}, "out", tt.phys, tt.mapping, "")
			out, err := w.Evaluate(df, st)
			require.NoError(t, err)
			assert.Equal(t, "out", out.Name())
			tt.check(t, out)
		})
	}
}

func TestWindowCachesGroups(t *testing.T) {
	df := testFrame(t)
	st := state.New(context.Background())
	require.True(t, st.CacheWindow())

	sum := physexpr.NewAggregationExpr(col("v"), engine.MethodSum, uuid.Nil)
	w := physexpr.NewWindowExpr([]physexpr.PhysicalExpr{col("key")}, []string{"v"}, "v", sum, ir.GroupsToRows, "[col(key)]")
	_, err := w.Evaluate(df, st)
	require.NoError(t, err)
	assert.Equal(t, 1, st.GroupTuples().Len())
	assert.Equal(t, 1, st.JoinTuples().Len())

	st.ClearWindowExprCache()
	assert.Equal(t, 0, st.GroupTuples().Len())
}

func TestWindowLengthMismatch(t *testing.T) {
	df := testFrame(t)
	st := state.New(context.Background())
	filtered := physexpr.NewFilterExpr(col("v"),
		physexpr.NewBinaryExpr(col("v"), engine.Gt, lit(frame.NewInt64("lit", []int64{1})), false))
	w := physexpr.NewWindowExpr([]physexpr.PhysicalExpr{col("key")}, []string{"v"}, "v", filtered, ir.GroupsToRows, "")
	_, err := w.Evaluate(df, st)
	assert.ErrorContains(t, err, "did not match that of the group")
}

func TestRolling(t *testing.T) {
	df, err := frame.New(
		frame.NewInt64("t", []int64{1, 2, 3, 5}),
		frame.NewInt64("v", []int64{1, 1, 1, 1}),
	)
	require.NoError(t, err)
	st := state.New(context.Background())

	sum := physexpr.NewAggregationExpr(col("v"), engine.MethodSum, uuid.Nil)
	r := physexpr.NewRollingExpr(sum, ir.DefaultRollingOptions("t", 2), "rolling_sum")
	out, err := r.Evaluate(df, st)
	require.NoError(t, err)
	assert.Equal(t, "rolling_sum", out.Name())
	assert.Equal(t, []any{int64(1), int64(2), int64(2), int64(1)}, out.Values())
}

func TestRollingClosedWindows(t *testing.T) {
	index := []int64{1, 2, 3, 5}
	for _, tt := range []struct {
		closed ir.ClosedWindow
		lens   []frame.Idx
	}{
		{ir.ClosedRight, []frame.Idx{1, 2, 2, 1}},
		{ir.ClosedLeft, []frame.Idx{0, 1, 2, 1}},
		{ir.ClosedBoth, []frame.Idx{1, 2, 3, 2}},
		{ir.ClosedNone, []frame.Idx{0, 1, 1, 0}},
	} {
		opts := ir.DefaultRollingOptions("t", 2)
		opts.Closed = tt.closed
		groups := physexpr.RollingGroups(index, opts)
		assert.True(t, groups.IsOverlapping())
		assert.Equal(t, tt.lens, groups.GroupCount(), "closed %d", tt.closed)
	}
}

func TestRollingRejectsUnsortedIndex(t *testing.T) {
	df, err := frame.New(
		frame.NewInt64("t", []int64{3, 1}),
		frame.NewInt64("v", []int64{1, 1}),
	)
	require.NoError(t, err)
	st := state.New(context.Background())

	sum := physexpr.NewAggregationExpr(col("v"), engine.MethodSum, uuid.Nil)
	_, err = physexpr.NewRollingExpr(sum, ir.DefaultRollingOptions("t", 2), "v").Evaluate(df, st)
	assert.True(t, execerror.Is(err, execerror.EXEC_INVALID_OPERATION))
}

func TestTernary(t *testing.T) {
	df := testFrame(t)
	st := state.New(context.Background())
	pred := physexpr.NewBinaryExpr(col("v"), engine.Gt, lit(frame.NewInt64("lit", []int64{2})), false)

	for _, threaded := range []bool{false, true} {
		e := physexpr.NewTernaryExpr(pred, col("v"), lit(frame.NewInt64("lit", []int64{0})), threaded)
		out, err := e.Evaluate(df, st)
		require.NoError(t, err)
		assert.Equal(t, "v", out.Name())
		assert.Equal(t, []any{int64(0), int64(0), int64(3), int64(4)}, out.Values())
	}

	e := physexpr.NewTernaryExpr(pred, col("v"), col("w"), false)
	ac, err := e.EvaluateOnGroups(df, testGroups(t, df), st)
	require.NoError(t, err)
	assert.Equal(t, physexpr.NotAggregated, ac.State())
	assert.Equal(t, []any{int64(4), int64(3), int64(3), int64(4)}, ac.Series().Values())
}

func sumUDF(_ *state.ExecutionState, s []*frame.Series) (*frame.Series, error) {
	return engine.AggSum(s[0], frame.SingleGroup(s[0].Len()))
}

func TestApplyGroupWise(t *testing.T) {
	df := testFrame(t)
	st := state.New(context.Background())
	e := physexpr.NewApplyExpr([]physexpr.PhysicalExpr{col("v")}, sumUDF,
		ir.FunctionOptions{Collect: ir.GroupWise, ReturnsScalar: true}, nil, false)

	ac, err := e.EvaluateOnGroups(df, testGroups(t, df), st)
	require.NoError(t, err)
	assert.Equal(t, physexpr.AggregatedScalar, ac.State())
	assert.Equal(t, []any{int64(4), int64(6)}, ac.Series().Values())
}

func TestApplyElementWiseKeepsName(t *testing.T) {
	df := testFrame(t)
	st := state.New(context.Background())
	double := physexpr.LiftUDF(func(s []*frame.Series) (*frame.Series, error) {
		return engine.Binary(s[0], frame.NewInt64("two", []int64{2}), engine.Multiply)
	})
	e := physexpr.NewApplyExpr([]physexpr.PhysicalExpr{col("w")}, double,
		ir.FunctionOptions{Collect: ir.ElementWise}, nil, false)

	out, err := e.Evaluate(df, st)
	require.NoError(t, err)
	assert.Equal(t, "w", out.Name())
	assert.Equal(t, []any{int64(8), int64(6), int64(4), int64(2)}, out.Values())
}

func TestParallelOpSeries(t *testing.T) {
	st := state.New(context.Background())
	st.SetParallelReduceThreshold(0)

	v := make([]int64, 100)
	for i := range v {
		v[i] = int64(i + 1)
	}
	sum := func(s *frame.Series) (*frame.Series, error) {
		return engine.AggSum(s, frame.SingleGroup(s.Len()))
	}
	out, err := physexpr.ParallelOpSeries(st, sum, frame.NewInt64("v", v), true)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(5050)}, out.Values())
}

func TestAggregationLengthMismatch(t *testing.T) {
	df := testFrame(t)
	st := state.New(context.Background())
	ac, err := physexpr.NewAggregationExpr(col("v"), engine.MethodSum, uuid.Nil).
		EvaluateOnGroups(df, testGroups(t, df), st)
	require.NoError(t, err)

	err = ac.WithSeries(frame.NewInt64("v", []int64{1, 2, 3}), true)
	assert.EqualError(t, err, "ComputeError: aggregation produced 3 values, expected one per group (2)")
}
