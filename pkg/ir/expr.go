package ir

import (
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
)

// AExpr is an expression node stored in an ExprArena.
type AExpr interface {
	// Inputs lists the child nodes in evaluation order.
	Inputs() []Node
}

type Column struct {
	Name string
}

// Literal holds a constant. A unit length value broadcasts.
type Literal struct {
	Value *frame.Series
}

type BinaryExpr struct {
	Left  Node
	Op    engine.Operator
	Right Node
}

type Cast struct {
	Expr   Node
	Dtype  frame.DataType
	Strict bool
}

type Sort struct {
	Expr    Node
	Options engine.SortOptions
}

type SortBy struct {
	Expr    Node
	By      []Node
	Options engine.SortMultipleOptions
}

type Gather struct {
	Expr          Node
	Idx           Node
	ReturnsScalar bool
}

type Filter struct {
	Input Node
	By    Node
}

type Ternary struct {
	Predicate Node
	Truthy    Node
	Falsy     Node
}

type Agg struct {
	Method engine.GroupByMethod
	Input  Node
	// only read for MethodQuantile
	Quantile Node
	Interpol engine.QuantileInterpolation
	// only read for MethodCount
	IncludeNulls bool
	// only read for MethodStd and MethodVar
	Ddof uint8
}

type WindowKind int

const (
	Over WindowKind = iota
	Rolling
)

type Window struct {
	Function    Node
	PartitionBy []Node
	Kind        WindowKind
	Mapping     WindowMapping
	Rolling     RollingOptions
}

type FunctionKind int

const (
	FnNot FunctionKind = iota
	FnIsNull
	FnIsNotNull
	FnReverse
	FnUnique
	FnCumSum
	FnAbs
)

var functionNames = map[FunctionKind]string{
	FnNot:       "not",
	FnIsNull:    "is_null",
	FnIsNotNull: "is_not_null",
	FnReverse:   "reverse",
	FnUnique:    "unique",
	FnCumSum:    "cum_sum",
	FnAbs:       "abs",
}

func (f FunctionKind) String() string {
	return functionNames[f]
}

// Function is a built in function.
type Function struct {
	Input    []Node
	Function FunctionKind
	Options  FunctionOptions
}

// AnonymousFunction is a user supplied function.
type AnonymousFunction struct {
	Input      []Node
	Function   SeriesUDF
	OutputType *frame.DataType
	Options    FunctionOptions
}

type Slice struct {
	Input  Node
	Offset Node
	Length Node
}

type ExplodeExpr struct {
	Input Node
}

type Alias struct {
	Input Node
	Name  string
}

// Len counts the rows of the frame or of every group.
type Len struct{}

// Wildcard and Nth must be expanded before planning.
type Wildcard struct{}

type Nth struct {
	N int64
}

func (*Column) Inputs() []Node              { return nil }
func (*Literal) Inputs() []Node             { return nil }
func (e *BinaryExpr) Inputs() []Node        { return []Node{e.Left, e.Right} }
func (e *Cast) Inputs() []Node              { return []Node{e.Expr} }
func (e *Sort) Inputs() []Node              { return []Node{e.Expr} }
func (e *SortBy) Inputs() []Node            { return append([]Node{e.Expr}, e.By...) }
func (e *Gather) Inputs() []Node            { return []Node{e.Expr, e.Idx} }
func (e *Filter) Inputs() []Node            { return []Node{e.Input, e.By} }
func (e *Ternary) Inputs() []Node           { return []Node{e.Predicate, e.Truthy, e.Falsy} }
func (e *Window) Inputs() []Node            { return append([]Node{e.Function}, e.PartitionBy...) }
func (e *Function) Inputs() []Node          { return e.Input }
func (e *AnonymousFunction) Inputs() []Node { return e.Input }
func (e *Slice) Inputs() []Node             { return []Node{e.Input, e.Offset, e.Length} }
func (e *ExplodeExpr) Inputs() []Node       { return []Node{e.Input} }
func (e *Alias) Inputs() []Node             { return []Node{e.Input} }
func (*Len) Inputs() []Node                 { return nil }
func (*Wildcard) Inputs() []Node            { return nil }
func (*Nth) Inputs() []Node                 { return nil }

func (e *Agg) Inputs() []Node {
	if e.Method == engine.MethodQuantile {
		return []Node{e.Input, e.Quantile}
	}
	return []Node{e.Input}
}

var (
	_ AExpr = &Column{}
	_ AExpr = &Literal{}
	_ AExpr = &BinaryExpr{}
	_ AExpr = &Cast{}
	_ AExpr = &Sort{}
	_ AExpr = &SortBy{}
	_ AExpr = &Gather{}
	_ AExpr = &Filter{}
	_ AExpr = &Ternary{}
	_ AExpr = &Agg{}
	_ AExpr = &Window{}
	_ AExpr = &Function{}
	_ AExpr = &AnonymousFunction{}
	_ AExpr = &Slice{}
	_ AExpr = &ExplodeExpr{}
	_ AExpr = &Alias{}
	_ AExpr = &Len{}
	_ AExpr = &Wildcard{}
	_ AExpr = &Nth{}
)

// ExprIR is a top level expression of a plan node together with the name
// of the column it produces.
type ExprIR struct {
	Node       Node
	OutputName string
	// set when the name comes from an explicit alias
	IsAlias bool
}

func NewExprIR(arena *ExprArena, n Node) ExprIR {
	e := ExprIR{Node: n}
	if name, ok := OutputName(arena, n); ok {
		e.OutputName = name
	}
	if a, ok := arena.Get(n).(*Alias); ok {
		e.Node = a.Input
		e.IsAlias = true
	}
	return e
}

// OutputName walks to the leaf that names the result of n.
func OutputName(arena *ExprArena, n Node) (string, bool) {
	for {
		switch e := arena.Get(n).(type) {
		case *Column:
			return e.Name, true
		case *Alias:
			return e.Name, true
		case *Literal:
			return LiteralName, true
		case *Len:
			return LenName, true
		case *Window:
			n = e.Function
		case *Function:
			if len(e.Input) == 0 {
				return "", false
			}
			n = e.Input[0]
		case *AnonymousFunction:
			if len(e.Input) == 0 {
				return "", false
			}
			n = e.Input[0]
		default:
			in := e.Inputs()
			if len(in) == 0 {
				return "", false
			}
			n = in[0]
		}
	}
}

const (
	LiteralName = "literal"
	LenName     = "len"
)

// LeafNames returns the column names n reads, in visit order.
func LeafNames(arena *ExprArena, n Node) []string {
	var out []string
	Walk(arena, n, func(_ Node, e AExpr) bool {
		if c, ok := e.(*Column); ok {
			out = append(out, c.Name)
		}
		return true
	})
	return out
}

// Walk visits n and its descendants depth first. fn returning false skips
// the children of a node.
func Walk(arena *ExprArena, n Node, fn func(Node, AExpr) bool) {
	stack := []Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e := arena.Get(cur)
		if !fn(cur, e) {
			continue
		}
		in := e.Inputs()
		for i := len(in) - 1; i >= 0; i-- {
			stack = append(stack, in[i])
		}
	}
}

// Has reports whether any node under n satisfies pred.
func Has(arena *ExprArena, n Node, pred func(AExpr) bool) bool {
	found := false
	Walk(arena, n, func(_ Node, e AExpr) bool {
		if pred(e) {
			found = true
		}
		return !found
	})
	return found
}

// HasWindow reports whether n contains a window function.
func HasWindow(arena *ExprArena, n Node) bool {
	return Has(arena, n, func(e AExpr) bool {
		_, ok := e.(*Window)
		return ok
	})
}

// IsElementWise reports whether every output row of n depends only on the
// same input row. Such expressions give the same result when the frame is
// evaluated chunk by chunk.
func IsElementWise(arena *ExprArena, n Node) bool {
	return !Has(arena, n, func(e AExpr) bool {
		switch e := e.(type) {
		case *Column, *BinaryExpr, *Cast, *Ternary, *Alias:
			return false
		case *Literal:
			return e.Value.Len() != 1
		case *Function:
			switch e.Function {
			case FnNot, FnIsNull, FnIsNotNull, FnAbs:
				return e.Options.ReturnsScalar
			}
			return true
		case *AnonymousFunction:
			return e.Options.Collect != ElementWise || e.Options.ReturnsScalar
		}
		return true
	})
}

// AllElementWise is IsElementWise over a list of top level expressions.
func AllElementWise(arena *ExprArena, exprs []ExprIR) bool {
	for _, e := range exprs {
		if !IsElementWise(arena, e.Node) {
			return false
		}
	}
	return true
}
