package planner_test

import (
	"context"
	"testing"

	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/planner"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func convState() *planner.ExpressionConversionState {
	return planner.NewExpressionConversionState(context.Background(), true, nil)
}

func TestCreatePhysicalExprErrors(t *testing.T) {
	arena := ir.NewExprArena()
	schema := frame.NewSchema(frame.NewField("v", frame.Int64))

	implodeThenSum := arena.Sum(arena.Implode(arena.Col("v")))
	implodeThenSlice := arena.Add(&ir.Slice{
		Input:  arena.Implode(arena.Col("v")),
		Offset: arena.Lit(frame.Int64, 0),
		Length: arena.Lit(frame.Int64, 1),
	})

	for _, tt := range []struct {
		name string
		node ir.Node
		ctxt planner.Context
		want string
	}{
		{
			name: "wildcard",
			node: arena.Add(&ir.Wildcard{}),
			ctxt: planner.Default,
			want: "ComputeError: wildcard column selection not supported at this point",
		},
		{
			name: "nth",
			node: arena.Add(&ir.Nth{N: 1}),
			ctxt: planner.Default,
			want: "ComputeError: nth column selection not supported at this point",
		},
		{
			name: "empty sort_by",
			node: arena.Add(&ir.SortBy{Expr: arena.Col("v")}),
			ctxt: planner.Default,
			want: "InvalidOperation: 'sort_by' got an empty set",
		},
		{
			name: "implode then aggregation",
			node: implodeThenSum,
			ctxt: planner.Aggregation,
			want: "InvalidOperation: 'implode' followed by an aggregation is not allowed",
		},
		{
			name: "implode then slice",
			node: implodeThenSlice,
			ctxt: planner.Aggregation,
			want: "InvalidOperation: 'implode' followed by a slice during aggregation is not allowed",
		},
		{
			name: "window without root column",
			node: arena.Over(arena.Add(&ir.AnonymousFunction{
				Function: func([]*frame.Series) (*frame.Series, error) { return nil, nil },
			}), arena.Col("v")),
			ctxt: planner.Default,
			want: "ComputeError: cannot apply a window function, did not find a root column; " +
				"this is likely due to a syntax error in this expression: ",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := planner.CreatePhysicalExpr(ir.NewExprIR(arena, tt.node), tt.ctxt, arena, schema, convState())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestImplodeInDefaultContext(t *testing.T) {
	arena := ir.NewExprArena()
	schema := frame.NewSchema(frame.NewField("v", frame.Int64))

	_, err := planner.CreatePhysicalExpr(ir.NewExprIR(arena, arena.Sum(arena.Implode(arena.Col("v")))),
		planner.Default, arena, schema, convState())
	assert.NoError(t, err)
}

func TestWindowApplyColumns(t *testing.T) {
	arena := ir.NewExprArena()
	schema := frame.NewSchema(
		frame.NewField("k", frame.String),
		frame.NewField("v", frame.Int64),
		frame.NewField("w", frame.Int64),
	)

	for _, tt := range []struct {
		name string
		node ir.Node
		want []string
	}{
		{
			name: "column",
			node: arena.Over(arena.Sum(arena.Col("v")), arena.Col("k")),
			want: []string{"v"},
		},
		{
			name: "sorted and deduplicated",
			node: arena.Over(arena.Binary(
				arena.Sum(arena.Col("w")), engine.Plus, arena.Sum(arena.Binary(arena.Col("v"), engine.Plus, arena.Col("w"))),
			), arena.Col("k")),
			want: []string{"v", "w"},
		},
		{
			name: "literal",
			node: arena.Over(arena.Lit(frame.Int64, 1), arena.Col("k")),
			want: []string{ir.LiteralName},
		},
		{
			name: "len",
			node: arena.Over(arena.LenExpr(), arena.Col("k")),
			want: []string{ir.LenName},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			s := convState()
			p, err := planner.CreatePhysicalExpr(ir.NewExprIR(arena, tt.node), planner.Default, arena, schema, s)
			require.NoError(t, err)
			w, ok := p.(*physexpr.WindowExpr)
			require.True(t, ok, "got %T", p)
			assert.Equal(t, tt.want, w.ApplyColumns())
			assert.True(t, s.HasWindows)
		})
	}
}

func TestAliasedExpression(t *testing.T) {
	assert := assert.New(t)
	arena := ir.NewExprArena()
	schema := frame.NewSchema(frame.NewField("v", frame.Int64))

	p, err := planner.CreatePhysicalExpr(ir.NewExprIR(arena, arena.Alias(arena.Col("v"), "x")),
		planner.Default, arena, schema, convState())
	require.NoError(t, err)
	alias, ok := p.(*physexpr.AliasExpr)
	require.True(t, ok)
	assert.Equal("x", alias.Name())
}

func TestBuiltins(t *testing.T) {
	df, err := frame.New(
		frame.NewInt64("i", []int64{-1, 2, -3, 2}),
		frame.NewBool("b", []bool{true, false, true, true}),
	)
	require.NoError(t, err)

	for _, tt := range []struct {
		fn   ir.FunctionKind
		col  string
		want []any
	}{
		{fn: ir.FnReverse, col: "i", want: []any{int64(2), int64(-3), int64(2), int64(-1)}},
		{fn: ir.FnUnique, col: "i", want: []any{int64(-1), int64(2), int64(-3)}},
		{fn: ir.FnCumSum, col: "i", want: []any{int64(-1), int64(1), int64(-2), int64(0)}},
		{fn: ir.FnAbs, col: "i", want: []any{int64(1), int64(2), int64(3), int64(2)}},
		{fn: ir.FnNot, col: "b", want: []any{false, true, false, false}},
	} {
		t.Run(tt.fn.String(), func(t *testing.T) {
			arena := ir.NewExprArena()
			n := arena.Add(&ir.Function{
				Input:    []ir.Node{arena.Col(tt.col)},
				Function: tt.fn,
				Options:  ir.FunctionOptions{Collect: ir.ElementWise},
			})
			p, err := planner.CreatePhysicalExpr(ir.NewExprIR(arena, n), planner.Default, arena, df.Schema(), convState())
			require.NoError(t, err)

			out, err := p.Evaluate(df, state.New(context.Background()))
			require.NoError(t, err)
			assert.Equal(t, tt.col, out.Name())
			assert.Equal(t, tt.want, out.Values())
		})
	}
}

// buildPipeline plans scan -> filter(v > 1) -> group_by(k).agg(sum(v)) -> sort(k).
func buildPipeline(t *testing.T) (ir.Node, *ir.PlanArena, *ir.ExprArena) {
	t.Helper()
	df, err := frame.New(
		frame.NewString("k", []string{"a", "b", "a", "b"}),
		frame.NewInt64("v", []int64{1, 2, 3, 4}),
	)
	require.NoError(t, err)

	arena := ir.NewExprArena()
	lp := ir.NewArena[ir.IR]()

	scan := lp.Add(&ir.DataFrameScan{DF: df})
	filter := lp.Add(&ir.Selection{
		Input:     scan,
		Predicate: ir.NewExprIR(arena, arena.Binary(arena.Col("v"), engine.Gt, arena.Lit(frame.Int64, 1))),
	})
	groupBy := lp.Add(&ir.GroupBy{
		Input:         filter,
		Keys:          arena.Exprs(arena.Col("k")),
		Aggs:          arena.Exprs(arena.Sum(arena.Col("v"))),
		Schema:        df.Schema(),
		MaintainOrder: true,
	})
	sort := lp.Add(&ir.SortPlan{
		Input: groupBy,
		By:    arena.Exprs(arena.Col("k")),
	})
	return sort, lp, arena
}

func TestPhysicalPlan(t *testing.T) {
	for _, tt := range []struct {
		name        string
		policyCheck bool
	}{
		{name: "unchecked", policyCheck: false},
		{name: "checked", policyCheck: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			root, lp, arena := buildPipeline(t)

			v := provenance.NewLocalValidator()
			st := state.New(context.Background())
			st.SetSession(provenance.NewSession(v, tt.policyCheck))

			exec, err := planner.CreatePhysicalPlan(root, lp, arena, st)
			require.NoError(t, err)
			out, err := exec.Execute(st)
			require.NoError(t, err)

			keys, err := out.Column("k")
			require.NoError(t, err)
			sums, err := out.Column("v")
			require.NoError(t, err)
			assert.Equal([]any{"a", "b"}, keys.Values())
			assert.Equal([]any{int64(3), int64(6)}, sums.Values())

			var plans, prologues, epilogues int
			for _, e := range v.Events() {
				switch e.Kind {
				case provenance.EventPlan:
					plans++
				case provenance.EventPrologue:
					prologues++
				case provenance.EventEpilogue:
					epilogues++
				}
			}
			if !tt.policyCheck {
				assert.Empty(v.Events())
				return
			}
			assert.Equal(4, plans)
			assert.Equal(4, prologues)
			assert.Equal(4, epilogues)
			assert.Equal(st.ActiveDF(), out.UUID())
		})
	}
}

func TestPhysicalPlanBreadcrumbs(t *testing.T) {
	assert := assert.New(t)
	df, err := frame.New(frame.NewInt64("v", []int64{1}))
	require.NoError(t, err)

	arena := ir.NewExprArena()
	lp := ir.NewArena[ir.IR]()
	scan := lp.Add(&ir.DataFrameScan{DF: df})
	filter := lp.Add(&ir.Selection{Input: scan, Predicate: ir.NewExprIR(arena, arena.Add(&ir.Wildcard{}))})
	sel := lp.Add(&ir.Select{Input: filter, Exprs: arena.Exprs(arena.Col("v")), Schema: df.Schema()})

	st := state.New(context.Background())
	_, err = planner.CreatePhysicalPlan(sel, lp, arena, st)
	require.Error(t, err)
	assert.Equal("'select' input failed to resolve: 'filter' failed: "+
		"ComputeError: wildcard column selection not supported at this point", err.Error())
	assert.True(execerror.Is(err, execerror.EXEC_COMPUTE))
}

func TestPhysicalPlanJoin(t *testing.T) {
	assert := assert.New(t)
	left, err := frame.New(
		frame.NewInt64("id", []int64{1, 2, 3}),
		frame.NewInt64("l", []int64{10, 20, 30}),
	)
	require.NoError(t, err)
	right, err := frame.New(
		frame.NewInt64("id", []int64{3, 1}),
		frame.NewInt64("r", []int64{300, 100}),
	)
	require.NoError(t, err)

	arena := ir.NewExprArena()
	lp := ir.NewArena[ir.IR]()
	join := lp.Add(&ir.JoinPlan{
		Left:    lp.Add(&ir.DataFrameScan{DF: left}),
		Right:   lp.Add(&ir.DataFrameScan{DF: right}),
		LeftOn:  arena.Exprs(arena.Col("id")),
		RightOn: arena.Exprs(arena.Col("id")),
		Options: ir.JoinOptions{Args: engine.JoinArgs{How: engine.JoinInner}, AllowParallel: true},
	})

	v := provenance.NewLocalValidator()
	st := state.New(context.Background())
	st.SetSession(provenance.NewSession(v, true))

	exec, err := planner.CreatePhysicalPlan(join, lp, arena, st)
	require.NoError(t, err)
	out, err := exec.Execute(st)
	require.NoError(t, err)

	assert.Equal([]string{"id", "l", "r"}, out.Names())
	ids, err := out.Column("id")
	require.NoError(t, err)
	assert.Equal([]any{int64(1), int64(3)}, ids.Values())
}

func TestInvalidNodePlansDummy(t *testing.T) {
	lp := ir.NewArena[ir.IR]()
	n := lp.Add(&ir.Invalid{})

	exec, err := planner.CreatePhysicalPlan(n, lp, ir.NewExprArena(), state.New(context.Background()))
	require.NoError(t, err)
	_, err = exec.Execute(state.New(context.Background()))
	assert.True(t, execerror.Is(err, execerror.EXEC_INVALID_OPERATION))
}

func chunkedFrame(t *testing.T, values []int64, chunks int) *frame.DataFrame {
	t.Helper()
	lens := make([]int, chunks)
	for i := range lens {
		lens[i] = len(values) / chunks
	}
	lens[chunks-1] += len(values) % chunks

	v, err := frame.NewInt64("v", values).WithChunks(lens)
	require.NoError(t, err)
	df, err := frame.New(v)
	require.NoError(t, err)
	return df
}

func execute(t *testing.T, root ir.Node, lp *ir.PlanArena, arena *ir.ExprArena, st *state.ExecutionState) *frame.DataFrame {
	t.Helper()
	exec, err := planner.CreatePhysicalPlan(root, lp, arena, st)
	require.NoError(t, err)
	out, err := exec.Execute(st)
	require.NoError(t, err)
	return out
}

func TestAggregatingExpressionsIgnoreChunks(t *testing.T) {
	values := []int64{1, 2, 10, 20}

	for _, tt := range []struct {
		name   string
		build  func(arena *ir.ExprArena, lp *ir.PlanArena, scan ir.Node, schema *frame.Schema) ir.Node
		column string
		want   []any
	}{
		{
			name: "filter above mean",
			build: func(arena *ir.ExprArena, lp *ir.PlanArena, scan ir.Node, _ *frame.Schema) ir.Node {
				v := arena.Col("v")
				return lp.Add(&ir.Selection{
					Input:     scan,
					Predicate: ir.NewExprIR(arena, arena.Binary(v, engine.Gt, arena.Mean(v))),
				})
			},
			column: "v",
			want:   []any{int64(10), int64(20)},
		},
		{
			name: "select minus sum",
			build: func(arena *ir.ExprArena, lp *ir.PlanArena, scan ir.Node, schema *frame.Schema) ir.Node {
				v := arena.Col("v")
				return lp.Add(&ir.Select{
					Input:   scan,
					Exprs:   arena.Exprs(arena.Alias(arena.Binary(v, engine.Minus, arena.Sum(v)), "d")),
					Schema:  schema,
					Options: ir.DefaultProjectionOptions(),
				})
			},
			column: "d",
			want:   []any{int64(-32), int64(-31), int64(-23), int64(-13)},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			for chunks := 1; chunks <= len(values); chunks++ {
				df := chunkedFrame(t, values, chunks)
				arena := ir.NewExprArena()
				lp := ir.NewArena[ir.IR]()
				root := tt.build(arena, lp, lp.Add(&ir.DataFrameScan{DF: df}), df.Schema())

				out := execute(t, root, lp, arena, state.New(context.Background()))
				got, err := out.Column(tt.column)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got.Values(), "chunks=%d", chunks)
			}
		})
	}
}

func TestWindowCacheDoesNotLeakAcrossOperators(t *testing.T) {
	df, err := frame.New(
		frame.NewString("k", []string{"a", "a", "a", "b", "b", "b"}),
		frame.NewInt64("v", []int64{1, 2, 3, 4, 5, 6}),
	)
	require.NoError(t, err)

	arena := ir.NewExprArena()
	lp := ir.NewArena[ir.IR]()
	window := func() ir.Node {
		return arena.Over(arena.Sum(arena.Col("v")), arena.Col("k"))
	}

	scan := lp.Add(&ir.DataFrameScan{DF: df})
	sort := lp.Add(&ir.SortPlan{Input: scan, By: arena.Exprs(window())})
	filter := lp.Add(&ir.Selection{
		Input:     sort,
		Predicate: ir.NewExprIR(arena, arena.Binary(arena.Col("v"), engine.Gt, arena.Lit(frame.Int64, 4))),
	})
	sel := lp.Add(&ir.Select{
		Input:   filter,
		Exprs:   arena.Exprs(arena.Alias(window(), "s")),
		Schema:  df.Schema(),
		Options: ir.DefaultProjectionOptions(),
	})

	st := state.New(context.Background())
	out := execute(t, sel, lp, arena, st)
	s, err := out.Column("s")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(11), int64(11)}, s.Values())
	assert.Zero(t, st.GroupTuples().Len())
}

func TestDataFrameScanRowLimit(t *testing.T) {
	df, err := frame.New(frame.NewInt64("v", []int64{1, 2, 3, 4, 5}))
	require.NoError(t, err)
	two := 2

	for _, tt := range []struct {
		name      string
		predicate bool
		want      []any
		mask      []bool
	}{
		{
			name:      "after predicate",
			predicate: true,
			want:      []any{int64(2), int64(3)},
			mask:      []bool{false, true, true, false, false},
		},
		{
			name: "without predicate",
			want: []any{int64(1), int64(2)},
			mask: []bool{true, true, false, false, false},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			arena := ir.NewExprArena()
			lp := ir.NewArena[ir.IR]()
			scan := &ir.DataFrameScan{DF: df, NRows: &two}
			if tt.predicate {
				pred := ir.NewExprIR(arena, arena.Binary(arena.Col("v"), engine.Gt, arena.Lit(frame.Int64, 1)))
				scan.Selection = &pred
			}

			v := provenance.NewLocalValidator()
			st := state.New(context.Background())
			st.SetSession(provenance.NewSession(v, true))
			out := execute(t, lp.Add(scan), lp, arena, st)

			got, err := out.Column("v")
			require.NoError(t, err)
			assert.Equal(tt.want, got.Values())

			var epilogue *provenance.Epilogue
			for _, e := range v.Events() {
				if e.Kind == provenance.EventEpilogue {
					epilogue = e.Payload
				}
			}
			require.NotNil(t, epilogue)
			require.NotNil(t, epilogue.Transform)
			assert.Equal(tt.mask, epilogue.Transform.Mask)
		})
	}
}
