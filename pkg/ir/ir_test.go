package ir_test

import (
	"testing"

	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	arena := ir.NewExprArena()

	for _, tt := range []struct {
		name string
		node ir.Node
		want string
	}{
		{
			name: "column",
			node: arena.Col("a"),
			want: `col("a")`,
		},
		{
			name: "binary",
			node: arena.Binary(arena.Col("a"), engine.Plus, arena.Lit(frame.Int64, 1)),
			want: `[(col("a")) + (lit(1))]`,
		},
		{
			name: "window",
			node: arena.Over(arena.Sum(arena.Col("v")), arena.Col("k")),
			want: `col("v").sum().over([col("k")])`,
		},
		{
			name: "alias",
			node: arena.Alias(arena.LenExpr(), "n"),
			want: `len().alias("n")`,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ir.Format(arena, tt.node))
		})
	}
}

func TestExprIROutputName(t *testing.T) {
	assert := assert.New(t)
	arena := ir.NewExprArena()

	sum := arena.Sum(arena.Col("v"))
	e := ir.NewExprIR(arena, sum)
	assert.Equal("v", e.OutputName)
	assert.False(e.IsAlias)
	assert.Equal(sum, e.Node)

	aliased := ir.NewExprIR(arena, arena.Alias(sum, "total"))
	assert.Equal("total", aliased.OutputName)
	assert.True(aliased.IsAlias)
	assert.Equal(sum, aliased.Node)

	lit := ir.NewExprIR(arena, arena.Lit(frame.Int64, 1))
	assert.Equal(ir.LiteralName, lit.OutputName)
}

func TestLeafNamesAndHasWindow(t *testing.T) {
	assert := assert.New(t)
	arena := ir.NewExprArena()

	n := arena.Binary(arena.Col("b"), engine.Multiply, arena.Over(arena.Sum(arena.Col("a")), arena.Col("k")))
	assert.Equal([]string{"b", "a", "k"}, ir.LeafNames(arena, n))
	assert.True(ir.HasWindow(arena, n))
	assert.False(ir.HasWindow(arena, arena.Col("x")))
}

func TestSchemaOf(t *testing.T) {
	lp := ir.NewArena[ir.IR]()
	df, err := frame.New(frame.NewInt64("a", []int64{1}))
	require.NoError(t, err)

	scan := lp.Add(&ir.DataFrameScan{DF: df})
	sel := lp.Add(&ir.Selection{Input: scan})
	assert.Equal(t, []string{"a"}, ir.SchemaOf(lp, sel).Names())

	assert.Panics(t, func() { lp.Get(42) })
}

func TestIsElementWise(t *testing.T) {
	arena := ir.NewExprArena()
	v := arena.Col("v")

	for _, tt := range []struct {
		name string
		node ir.Node
		want bool
	}{
		{name: "column", node: v, want: true},
		{name: "binary with unit literal", node: arena.Binary(v, engine.Gt, arena.Lit(frame.Int64, 1)), want: true},
		{name: "ternary", node: arena.When(arena.Binary(v, engine.Gt, arena.Lit(frame.Int64, 1)), v, arena.Lit(frame.Int64, 0)), want: true},
		{name: "abs", node: arena.Add(&ir.Function{Input: []ir.Node{v}, Function: ir.FnAbs}), want: true},
		{name: "mean in comparison", node: arena.Binary(v, engine.Gt, arena.Mean(v)), want: false},
		{name: "sum in arithmetic", node: arena.Alias(arena.Binary(v, engine.Minus, arena.Sum(v)), "d"), want: false},
		{name: "len", node: arena.LenExpr(), want: false},
		{name: "cum_sum", node: arena.Add(&ir.Function{Input: []ir.Node{v}, Function: ir.FnCumSum}), want: false},
		{name: "window", node: arena.Over(arena.Sum(v), arena.Col("k")), want: false},
		{name: "literal column", node: arena.LitSeries(frame.NewInt64("l", []int64{1, 2})), want: false},
		{
			name: "group wise udf",
			node: arena.Add(&ir.AnonymousFunction{Input: []ir.Node{v}, Options: ir.FunctionOptions{Collect: ir.GroupWise}}),
			want: false,
		},
		{
			name: "element wise udf",
			node: arena.Add(&ir.AnonymousFunction{Input: []ir.Node{v}, Options: ir.FunctionOptions{Collect: ir.ElementWise}}),
			want: true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ir.IsElementWise(arena, tt.node))
		})
	}
}
