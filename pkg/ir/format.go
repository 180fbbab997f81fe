package ir

import (
	"fmt"
	"strings"

	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
)

// Format renders n the way it appears in error messages and cache keys.
func Format(arena *ExprArena, n Node) string {
	var b strings.Builder
	format(&b, arena, n)
	return b.String()
}

func formatList(b *strings.Builder, arena *ExprArena, nodes []Node) {
	b.WriteByte('[')
	for i, n := range nodes {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, arena, n)
	}
	b.WriteByte(']')
}

func format(b *strings.Builder, arena *ExprArena, n Node) {
	switch e := arena.Get(n).(type) {
	case *Column:
		fmt.Fprintf(b, "col(%q)", e.Name)
	case *Literal:
		if e.Value.Len() == 1 {
			fmt.Fprintf(b, "lit(%s)", frame.FormatValue(e.Value.Get(0)))
		} else {
			fmt.Fprintf(b, "Series[%s]", e.Value.Name())
		}
	case *BinaryExpr:
		b.WriteString("[(")
		format(b, arena, e.Left)
		fmt.Fprintf(b, ") %s (", e.Op)
		format(b, arena, e.Right)
		b.WriteString(")]")
	case *Cast:
		format(b, arena, e.Expr)
		fmt.Fprintf(b, ".cast(%s)", e.Dtype)
	case *Sort:
		format(b, arena, e.Expr)
		fmt.Fprintf(b, ".sort(descending=%t)", e.Options.Descending)
	case *SortBy:
		format(b, arena, e.Expr)
		b.WriteString(".sort_by(")
		formatList(b, arena, e.By)
		b.WriteByte(')')
	case *Gather:
		format(b, arena, e.Expr)
		b.WriteString(".gather(")
		format(b, arena, e.Idx)
		b.WriteByte(')')
	case *Filter:
		format(b, arena, e.Input)
		b.WriteString(".filter(")
		format(b, arena, e.By)
		b.WriteByte(')')
	case *Ternary:
		b.WriteString(".when(")
		format(b, arena, e.Predicate)
		b.WriteString(").then(")
		format(b, arena, e.Truthy)
		b.WriteString(").otherwise(")
		format(b, arena, e.Falsy)
		b.WriteByte(')')
	case *Agg:
		format(b, arena, e.Input)
		if e.Method == engine.MethodQuantile {
			b.WriteString(".quantile(")
			format(b, arena, e.Quantile)
			b.WriteByte(')')
		} else {
			fmt.Fprintf(b, ".%s()", e.Method)
		}
	case *Window:
		format(b, arena, e.Function)
		if e.Kind == Rolling {
			fmt.Fprintf(b, ".rolling(by=%q, period=%d, offset=%d)", e.Rolling.IndexColumn, e.Rolling.Period, e.Rolling.Offset)
		} else {
			b.WriteString(".over(")
			formatList(b, arena, e.PartitionBy)
			b.WriteByte(')')
		}
	case *Function:
		if len(e.Input) > 0 {
			format(b, arena, e.Input[0])
		}
		fmt.Fprintf(b, ".%s()", e.Function)
	case *AnonymousFunction:
		if len(e.Input) > 0 {
			format(b, arena, e.Input[0])
		}
		name := e.Options.FmtStr
		if name == "" {
			name = "map"
		}
		fmt.Fprintf(b, ".%s()", name)
	case *Slice:
		format(b, arena, e.Input)
		b.WriteString(".slice(offset=")
		format(b, arena, e.Offset)
		b.WriteString(", length=")
		format(b, arena, e.Length)
		b.WriteByte(')')
	case *ExplodeExpr:
		format(b, arena, e.Input)
		b.WriteString(".explode()")
	case *Alias:
		format(b, arena, e.Input)
		fmt.Fprintf(b, ".alias(%q)", e.Name)
	case *Len:
		b.WriteString("len()")
	case *Wildcard:
		b.WriteString("*")
	case *Nth:
		fmt.Fprintf(b, "nth(%d)", e.N)
	default:
		fmt.Fprintf(b, "%T", e)
	}
}
