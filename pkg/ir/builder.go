package ir

import (
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
)

func (a *ExprArena) Col(name string) Node {
	return a.Add(&Column{Name: name})
}

// Lit adds a unit length literal. v is anything frame.FromValues accepts.
func (a *ExprArena) Lit(dtype frame.DataType, v any) Node {
	s, err := frame.FromValues(LiteralName, dtype, []any{v})
	if err != nil {
		panic(err)
	}
	return a.Add(&Literal{Value: s})
}

func (a *ExprArena) LitSeries(s *frame.Series) Node {
	return a.Add(&Literal{Value: s})
}

func (a *ExprArena) Binary(l Node, op engine.Operator, r Node) Node {
	return a.Add(&BinaryExpr{Left: l, Op: op, Right: r})
}

func (a *ExprArena) AggOf(m engine.GroupByMethod, in Node) Node {
	return a.Add(&Agg{Method: m, Input: in, IncludeNulls: true, Ddof: 1})
}

func (a *ExprArena) Sum(in Node) Node {
	return a.AggOf(engine.MethodSum, in)
}

func (a *ExprArena) Mean(in Node) Node {
	return a.AggOf(engine.MethodMean, in)
}

func (a *ExprArena) Implode(in Node) Node {
	return a.AggOf(engine.MethodImplode, in)
}

func (a *ExprArena) Quantile(in, q Node, interpol engine.QuantileInterpolation) Node {
	return a.Add(&Agg{Method: engine.MethodQuantile, Input: in, Quantile: q, Interpol: interpol})
}

func (a *ExprArena) Alias(in Node, name string) Node {
	return a.Add(&Alias{Input: in, Name: name})
}

func (a *ExprArena) Over(fn Node, partitionBy ...Node) Node {
	return a.Add(&Window{Function: fn, PartitionBy: partitionBy, Kind: Over, Mapping: GroupsToRows})
}

func (a *ExprArena) RollingOver(fn Node, opts RollingOptions) Node {
	return a.Add(&Window{Function: fn, Kind: Rolling, Rolling: opts})
}

func (a *ExprArena) When(pred, truthy, falsy Node) Node {
	return a.Add(&Ternary{Predicate: pred, Truthy: truthy, Falsy: falsy})
}

func (a *ExprArena) LenExpr() Node {
	return a.Add(&Len{})
}

// Exprs wraps nodes as top level expressions.
func (a *ExprArena) Exprs(nodes ...Node) []ExprIR {
	out := make([]ExprIR, len(nodes))
	for i, n := range nodes {
		out[i] = NewExprIR(a, n)
	}
	return out
}
