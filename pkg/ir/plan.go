package ir

import (
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/scan"
)

// IR is a logical plan node stored in a PlanArena. Schemas are resolved by
// whoever built the plan.
type IR interface {
	Inputs() []Node
}

// DataFrameScan reads an in-memory frame.
type DataFrameScan struct {
	DF         *frame.DataFrame
	Schema     *frame.Schema
	Projection []string
	Selection  *ExprIR
	// row limit applied after the selection
	NRows *int
	// optional policy frame registered with the validator
	Policy *frame.DataFrame
}

// SourceScan reads through a scan.Source.
type SourceScan struct {
	Source     scan.Source
	Schema     *frame.Schema
	Projection []string
	NRows      *int
	RowIndex   *scan.RowIndex
	Predicate  *ExprIR
	Policy     *frame.DataFrame
}

type Selection struct {
	Input     Node
	Predicate ExprIR
}

type Select struct {
	Input   Node
	Exprs   []ExprIR
	Schema  *frame.Schema
	Options ProjectionOptions
}

type HStack struct {
	Input   Node
	Exprs   []ExprIR
	Schema  *frame.Schema
	Options ProjectionOptions
}

type GroupBy struct {
	Input         Node
	Keys          []ExprIR
	Aggs          []ExprIR
	Schema        *frame.Schema
	MaintainOrder bool
	Apply         DataFrameUDF
	Slice         *engine.SliceArg
}

type SortPlan struct {
	Input   Node
	By      []ExprIR
	Slice   *engine.SliceArg
	Options engine.SortMultipleOptions
}

type JoinOptions struct {
	Args          engine.JoinArgs
	AllowParallel bool
	ForceParallel bool
}

type JoinPlan struct {
	Left    Node
	Right   Node
	LeftOn  []ExprIR
	RightOn []ExprIR
	Schema  *frame.Schema
	Options JoinOptions
}

// Cache shares the result of Input between CacheHits readers.
type Cache struct {
	Input     Node
	ID        string
	CacheHits uint32
}

// Invalid marks a node that must never run.
type Invalid struct{}

func (*DataFrameScan) Inputs() []Node { return nil }
func (*SourceScan) Inputs() []Node    { return nil }
func (p *Selection) Inputs() []Node   { return []Node{p.Input} }
func (p *Select) Inputs() []Node      { return []Node{p.Input} }
func (p *HStack) Inputs() []Node      { return []Node{p.Input} }
func (p *GroupBy) Inputs() []Node     { return []Node{p.Input} }
func (p *SortPlan) Inputs() []Node    { return []Node{p.Input} }
func (p *JoinPlan) Inputs() []Node    { return []Node{p.Left, p.Right} }
func (p *Cache) Inputs() []Node       { return []Node{p.Input} }
func (*Invalid) Inputs() []Node       { return nil }

var (
	_ IR = &DataFrameScan{}
	_ IR = &SourceScan{}
	_ IR = &Selection{}
	_ IR = &Select{}
	_ IR = &HStack{}
	_ IR = &GroupBy{}
	_ IR = &SortPlan{}
	_ IR = &JoinPlan{}
	_ IR = &Cache{}
	_ IR = &Invalid{}
)

// SchemaOf returns the output schema of n.
func SchemaOf(lp *PlanArena, n Node) *frame.Schema {
	switch p := lp.Get(n).(type) {
	case *DataFrameScan:
		if p.Schema != nil {
			return p.Schema
		}
		return p.DF.Schema()
	case *SourceScan:
		return p.Schema
	case *Select:
		return p.Schema
	case *HStack:
		return p.Schema
	case *GroupBy:
		return p.Schema
	case *JoinPlan:
		return p.Schema
	case *Invalid:
		return frame.NewSchema()
	}
	return SchemaOf(lp, lp.Get(n).Inputs()[0])
}
