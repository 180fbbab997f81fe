package ir

import "fmt"

// Node is the index of an item in an Arena.
type Node int

// Arena owns the nodes of an expression or plan tree. Nodes reference each
// other by index, never by pointer.
type Arena[T any] struct {
	items []T
}

func NewArena[T any]() *Arena[T] {
	return &Arena[T]{}
}

func (a *Arena[T]) Add(v T) Node {
	a.items = append(a.items, v)
	return Node(len(a.items) - 1)
}

// Get panics on an index the arena never handed out.
func (a *Arena[T]) Get(n Node) T {
	if int(n) < 0 || int(n) >= len(a.items) {
		panic(fmt.Sprintf("arena: node %d out of range [0, %d)", n, len(a.items)))
	}
	return a.items[n]
}

func (a *Arena[T]) Replace(n Node, v T) {
	a.items[n] = v
}

func (a *Arena[T]) Len() int {
	return len(a.items)
}

// ExprArena holds expression nodes and the builders for them.
type ExprArena struct {
	Arena[AExpr]
}

func NewExprArena() *ExprArena {
	return &ExprArena{}
}

type PlanArena = Arena[IR]
