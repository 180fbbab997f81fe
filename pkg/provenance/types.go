package provenance

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

// PlanArgument describes the effect of one operator.
type PlanArgument interface {
	Kind() string
}

const (
	KindSelect     = "select"
	KindProjection = "projection"
	KindAggregate  = "aggregate"
	KindTransform  = "transform"
	KindHstack     = "hstack"
	KindGetData    = "get_data"
)

// SelectArg is a filter by the predicate expression.
type SelectArg struct {
	Predicate uuid.UUID `json:"predicate"`
}

type ProjectionArg struct {
	Exprs []uuid.UUID `json:"exprs"`
}

// GroupsSnapshot is a grouping decomposition as plain index arrays.
type GroupsSnapshot struct {
	First []frame.Idx   `json:"first"`
	All   [][]frame.Idx `json:"all"`
}

type AggregateArg struct {
	Keys   []uuid.UUID    `json:"keys"`
	Aggs   []uuid.UUID    `json:"aggs"`
	Groups GroupsSnapshot `json:"groups"`
	Schema []frame.Field  `json:"schema"`
}

type TransformArg struct {
	Info TransformInfo `json:"info"`
}

type HstackArg struct {
	Exprs []uuid.UUID `json:"exprs"`
}

type SourceKind string

const (
	SourceInMemory SourceKind = "in_memory"
	SourceFile     SourceKind = "file"
	SourceDatabase SourceKind = "database"
)

type DataSource struct {
	Kind SourceKind `json:"kind"`
	// file paths or the query, empty for in memory frames
	Location []string `json:"location,omitempty"`
	// id the validator returned for the policy frame
	Policy uuid.UUID `json:"policy"`
}

type GetDataArg struct {
	Source      DataSource `json:"source"`
	Predicate   uuid.UUID  `json:"predicate"`
	ProjectList []string   `json:"project_list,omitempty"`
}

func (*SelectArg) Kind() string     { return KindSelect }
func (*ProjectionArg) Kind() string { return KindProjection }
func (*AggregateArg) Kind() string  { return KindAggregate }
func (*TransformArg) Kind() string  { return KindTransform }
func (*HstackArg) Kind() string     { return KindHstack }
func (*GetDataArg) Kind() string    { return KindGetData }

var (
	_ PlanArgument = &SelectArg{}
	_ PlanArgument = &ProjectionArg{}
	_ PlanArgument = &AggregateArg{}
	_ PlanArgument = &TransformArg{}
	_ PlanArgument = &HstackArg{}
	_ PlanArgument = &GetDataArg{}
)

type TransformOp string

const (
	OpFilter  TransformOp = "filter"
	OpReorder TransformOp = "reorder"
	OpJoin    TransformOp = "join"
)

// TransformInfo is the row-level effect an operator had on its input:
// the kept rows of a filter, the permutation of a sort or the two input
// snapshots of a join.
type TransformInfo struct {
	Op   TransformOp `json:"op"`
	Mask []bool      `json:"mask,omitempty"`
	Perm []frame.Idx `json:"perm,omitempty"`
	Lhs  uuid.UUID   `json:"lhs"`
	Rhs  uuid.UUID   `json:"rhs"`
}

func FilterTransform(mask []bool) *TransformInfo {
	return &TransformInfo{Op: OpFilter, Mask: mask}
}

func ReorderTransform(perm []frame.Idx) *TransformInfo {
	return &TransformInfo{Op: OpReorder, Perm: perm}
}

func JoinTransform(lhs, rhs uuid.UUID) *TransformInfo {
	return &TransformInfo{Op: OpJoin, Lhs: lhs, Rhs: rhs}
}

// Epilogue is sent once an operator has produced its output.
type Epilogue struct {
	Arg       PlanArgument
	Transform *TransformInfo
}

// ExprArgument describes an expression the validator tracks.
type ExprArgument interface {
	Kind() string
}

const (
	KindColumnExpr = "column"
	KindCountExpr  = "count"
	KindAggExpr    = "agg"
)

type ColumnExpr struct {
	Name string `json:"name"`
}

type CountExpr struct{}

type AggExpr struct {
	Input  uuid.UUID `json:"input"`
	Method AggMethod `json:"method"`
}

func (*ColumnExpr) Kind() string { return KindColumnExpr }
func (*CountExpr) Kind() string  { return KindCountExpr }
func (*AggExpr) Kind() string    { return KindAggExpr }

var (
	_ ExprArgument = &ColumnExpr{}
	_ ExprArgument = &CountExpr{}
	_ ExprArgument = &AggExpr{}
)

type AggMethod string

const (
	AggSum  AggMethod = "sum"
	AggMean AggMethod = "mean"
	AggMin  AggMethod = "min"
	AggMax  AggMethod = "max"
	AggLen  AggMethod = "len"
)

// AggMethodFor maps an engine aggregation onto a method the validator
// understands.
func AggMethodFor(m engine.GroupByMethod) (AggMethod, error) {
	switch m {
	case engine.MethodSum:
		return AggSum, nil
	case engine.MethodMean:
		return AggMean, nil
	case engine.MethodMin:
		return AggMin, nil
	case engine.MethodMax:
		return AggMax, nil
	case engine.MethodCount:
		return AggLen, nil
	case engine.MethodNUnique:
		return AggMin, nil
	}
	return "", execerror.New(execerror.EXEC_VALIDATOR, "Aggregation method not supported")
}
