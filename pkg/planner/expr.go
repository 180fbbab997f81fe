package planner

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/state"
	"golang.org/x/exp/slices"
)

// Context tells whether an expression runs over whole columns or per group.
type Context int

const (
	Default Context = iota
	Aggregation
)

type localConversionState struct {
	hasImplode bool
	hasWindow  bool
	hasLit     bool
}

// ExpressionConversionState carries facts across the expressions of one
// plan node. The local part is reset for every top level expression.
type ExpressionConversionState struct {
	AllowThreading bool
	HasWindows     bool
	hasCache       bool
	local          localConversionState

	ctx     context.Context
	session *provenance.Session
}

func NewExpressionConversionState(ctx context.Context, allowThreading bool, session *provenance.Session) *ExpressionConversionState {
	return &ExpressionConversionState{AllowThreading: allowThreading, ctx: ctx, session: session}
}

func (s *ExpressionConversionState) reset() {
	s.local = localConversionState{}
}

func (s *ExpressionConversionState) setWindow() {
	s.HasWindows = true
	s.local.hasWindow = true
}

// SetHasCache disables parallel reductions below a cache node.
func (s *ExpressionConversionState) SetHasCache(v bool) {
	s.hasCache = v
}

func (s *ExpressionConversionState) buildExpr(arg provenance.ExprArgument) (uuid.UUID, error) {
	id, err := s.session.BuildExpr(s.ctx, arg)
	if err != nil {
		return uuid.Nil, execerror.Newf(execerror.EXEC_COMPUTE, "%s", err)
	}
	return id, nil
}

type stateChecker func(*ExpressionConversionState) error

func okChecker(*ExpressionConversionState) error {
	return nil
}

// CreatePhysicalExpressions lowers top level expressions, wrapping aliased
// ones in an alias.
func CreatePhysicalExpressions(exprs []ir.ExprIR, ctxt Context, arena *ir.ExprArena, schema *frame.Schema, s *ExpressionConversionState) ([]physexpr.PhysicalExpr, error) {
	out := make([]physexpr.PhysicalExpr, len(exprs))
	for i, e := range exprs {
		s.reset()
		p, err := CreatePhysicalExpr(e, ctxt, arena, schema, s)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func CreatePhysicalExpr(e ir.ExprIR, ctxt Context, arena *ir.ExprArena, schema *frame.Schema, s *ExpressionConversionState) (physexpr.PhysicalExpr, error) {
	p, err := createPhysicalExprInner(e.Node, ctxt, arena, schema, s)
	if err != nil {
		return nil, err
	}
	if e.IsAlias {
		return physexpr.NewAliasExpr(p, e.OutputName), nil
	}
	return p, nil
}

func createFromNodes(nodes []ir.Node, ctxt Context, arena *ir.ExprArena, schema *frame.Schema, s *ExpressionConversionState, check stateChecker) ([]physexpr.PhysicalExpr, error) {
	out := make([]physexpr.PhysicalExpr, len(nodes))
	for i, n := range nodes {
		s.reset()
		p, err := createPhysicalExprInner(n, ctxt, arena, schema, s)
		if err != nil {
			return nil, err
		}
		if err := check(s); err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func implodeFollowedByAgg() error {
	return execerror.New(execerror.EXEC_INVALID_OPERATION, "'implode' followed by an aggregation is not allowed")
}

func createPhysicalExprInner(n ir.Node, ctxt Context, arena *ir.ExprArena, schema *frame.Schema, s *ExpressionConversionState) (physexpr.PhysicalExpr, error) {
	inner := func(n ir.Node) (physexpr.PhysicalExpr, error) {
		return createPhysicalExprInner(n, ctxt, arena, schema, s)
	}

	switch e := arena.Get(n).(type) {
	case *ir.Len:
		id, err := s.buildExpr(&provenance.CountExpr{})
		if err != nil {
			return nil, err
		}
		return physexpr.NewCountExpr(id), nil

	case *ir.Window:
		return createWindow(n, e, arena, schema, s)

	case *ir.Literal:
		s.local.hasLit = true
		return physexpr.NewLiteralExpr(e.Value), nil

	case *ir.BinaryExpr:
		l, err := inner(e.Left)
		if err != nil {
			return nil, err
		}
		r, err := inner(e.Right)
		if err != nil {
			return nil, err
		}
		// with a literal operand there is nothing worth forking for
		return physexpr.NewBinaryExpr(l, e.Op, r, !s.local.hasLit && s.AllowThreading), nil

	case *ir.Column:
		id, err := s.buildExpr(&provenance.ColumnExpr{Name: e.Name})
		if err != nil {
			return nil, err
		}
		return physexpr.NewColumnExpr(e.Name, schema, id), nil

	case *ir.Sort:
		in, err := inner(e.Expr)
		if err != nil {
			return nil, err
		}
		return physexpr.NewSortExpr(in, e.Options), nil

	case *ir.Gather:
		in, err := inner(e.Expr)
		if err != nil {
			return nil, err
		}
		idx, err := inner(e.Idx)
		if err != nil {
			return nil, err
		}
		return physexpr.NewGatherExpr(in, idx, e.ReturnsScalar), nil

	case *ir.SortBy:
		if len(e.By) == 0 {
			return nil, execerror.New(execerror.EXEC_INVALID_OPERATION, "'sort_by' got an empty set")
		}
		in, err := inner(e.Expr)
		if err != nil {
			return nil, err
		}
		by := make([]physexpr.PhysicalExpr, len(e.By))
		for i, b := range e.By {
			if by[i], err = inner(b); err != nil {
				return nil, err
			}
		}
		return physexpr.NewSortByExpr(in, by, e.Options), nil

	case *ir.Filter:
		in, err := inner(e.Input)
		if err != nil {
			return nil, err
		}
		by, err := inner(e.By)
		if err != nil {
			return nil, err
		}
		return physexpr.NewFilterExpr(in, by), nil

	case *ir.Agg:
		return createAgg(e, ctxt, arena, schema, s)

	case *ir.Cast:
		in, err := inner(e.Expr)
		if err != nil {
			return nil, err
		}
		return physexpr.NewCastExpr(in, e.Dtype, e.Strict), nil

	case *ir.Ternary:
		litCount := 0
		parts := make([]physexpr.PhysicalExpr, 3)
		for i, node := range []ir.Node{e.Predicate, e.Truthy, e.Falsy} {
			s.reset()
			p, err := inner(node)
			if err != nil {
				return nil, err
			}
			if s.local.hasLit {
				litCount++
			}
			parts[i] = p
		}
		return physexpr.NewTernaryExpr(parts[0], parts[1], parts[2], litCount < 2 && s.AllowThreading), nil

	case *ir.AnonymousFunction:
		inputs, err := createFunctionInputs(e.Input, e.Options, ctxt, arena, schema, s)
		if err != nil {
			return nil, err
		}
		var field *frame.Field
		if e.OutputType != nil {
			f := frame.NewField("", *e.OutputType)
			field = &f
		}
		return physexpr.NewApplyExpr(inputs, physexpr.LiftUDF(e.Function), e.Options, field, !s.hasCache), nil

	case *ir.Function:
		inputs, err := createFunctionInputs(e.Input, e.Options, ctxt, arena, schema, s)
		if err != nil {
			return nil, err
		}
		fn, field, err := builtin(e.Function)
		if err != nil {
			return nil, err
		}
		return physexpr.NewApplyExpr(inputs, fn, e.Options, field, !s.hasCache), nil

	case *ir.Slice:
		in, err := inner(e.Input)
		if err != nil {
			return nil, err
		}
		offset, err := inner(e.Offset)
		if err != nil {
			return nil, err
		}
		length, err := inner(e.Length)
		if err != nil {
			return nil, err
		}
		if s.local.hasImplode && ctxt == Aggregation {
			return nil, execerror.New(execerror.EXEC_INVALID_OPERATION,
				"'implode' followed by a slice during aggregation is not allowed")
		}
		return physexpr.NewSliceExpr(in, offset, length), nil

	case *ir.ExplodeExpr:
		in, err := inner(e.Input)
		if err != nil {
			return nil, err
		}
		explode := func(_ *state.ExecutionState, s []*frame.Series) (*frame.Series, error) {
			out, _, err := s[0].Explode()
			return out, err
		}
		return physexpr.NewApplyExpr([]physexpr.PhysicalExpr{in}, explode,
			ir.FunctionOptions{Collect: ir.GroupWise}, nil, false), nil

	case *ir.Alias:
		in, err := inner(e.Input)
		if err != nil {
			return nil, err
		}
		return physexpr.NewAliasExpr(in, e.Name), nil

	case *ir.Wildcard:
		return nil, execerror.New(execerror.EXEC_COMPUTE, "wildcard column selection not supported at this point")

	case *ir.Nth:
		return nil, execerror.New(execerror.EXEC_COMPUTE, "nth column selection not supported at this point")
	}
	return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "cannot plan expression %s", ir.Format(arena, n))
}

func createFunctionInputs(nodes []ir.Node, opts ir.FunctionOptions, ctxt Context, arena *ir.ExprArena, schema *frame.Schema, s *ExpressionConversionState) ([]physexpr.PhysicalExpr, error) {
	reducing := opts.ReturnsScalar && opts.Collect == ir.GroupWise
	// the checker below runs after the local state was reset
	hasWindow := s.local.hasWindow
	return createFromNodes(nodes, ctxt, arena, schema, s, func(s *ExpressionConversionState) error {
		if (reducing || hasWindow) && s.local.hasImplode && ctxt == Aggregation {
			return implodeFollowedByAgg()
		}
		return nil
	})
}

func createWindow(n ir.Node, e *ir.Window, arena *ir.ExprArena, schema *frame.Schema, s *ExpressionConversionState) (physexpr.PhysicalExpr, error) {
	s.setWindow()
	phys, err := createPhysicalExprInner(e.Function, Aggregation, arena, schema, s)
	if err != nil {
		return nil, err
	}

	function := e.Function
	outName, ok := ir.OutputName(arena, e.Function)
	if a, isAlias := arena.Get(function).(*ir.Alias); isAlias {
		function = a.Input
		outName, ok = a.Name, true
	}
	if !ok {
		outName = ir.LiteralName
	}
	// the recursion may have reset the local state
	s.setWindow()

	if e.Kind == ir.Rolling {
		return physexpr.NewRollingExpr(phys, e.Rolling, outName), nil
	}

	groupBy, err := createFromNodes(e.PartitionBy, Default, arena, schema, s, okChecker)
	if err != nil {
		return nil, err
	}
	applyColumns := dedupSorted(ir.LeafNames(arena, function))
	if len(applyColumns) == 0 {
		switch {
		case ir.Has(arena, function, func(x ir.AExpr) bool { _, ok := x.(*ir.Literal); return ok }):
			applyColumns = []string{ir.LiteralName}
		case ir.Has(arena, function, func(x ir.AExpr) bool { _, ok := x.(*ir.Len); return ok }):
			applyColumns = []string{ir.LenName}
		default:
			return nil, execerror.Newf(execerror.EXEC_COMPUTE,
				"cannot apply a window function, did not find a root column; this is likely due to a syntax error in this expression: %s",
				ir.Format(arena, function))
		}
	}
	cacheKey := ""
	if len(e.PartitionBy) > 0 {
		cacheKey = formatNodes(arena, e.PartitionBy)
	}
	return physexpr.NewWindowExpr(groupBy, applyColumns, outName, phys, e.Mapping, cacheKey), nil
}

func formatNodes(arena *ir.ExprArena, nodes []ir.Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = ir.Format(arena, n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func createAgg(e *ir.Agg, ctxt Context, arena *ir.ExprArena, schema *frame.Schema, s *ExpressionConversionState) (physexpr.PhysicalExpr, error) {
	input, err := createPhysicalExprInner(e.Input, ctxt, arena, schema, s)
	if err != nil {
		return nil, err
	}
	if s.local.hasImplode && ctxt == Aggregation {
		return nil, implodeFollowedByAgg()
	}
	if e.Method == engine.MethodImplode {
		s.local.hasImplode = true
	}

	if e.Method == engine.MethodQuantile {
		q, err := createPhysicalExprInner(e.Quantile, ctxt, arena, schema, s)
		if err != nil {
			return nil, err
		}
		return physexpr.NewAggQuantileExpr(input, q, e.Interpol), nil
	}

	if ctxt == Default {
		fn := defaultContextAgg(e, s.AllowThreading && !s.hasCache)
		return physexpr.NewApplyExpr([]physexpr.PhysicalExpr{input}, fn,
			ir.FunctionOptions{Collect: ir.ElementWise, ReturnsScalar: true}, nil, false), nil
	}

	id := uuid.Nil
	if s.session.Enabled() {
		method, err := provenance.AggMethodFor(e.Method)
		if err != nil {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE, "Aggregation method not supported: %s", e.Method)
		}
		if id, err = s.buildExpr(&provenance.AggExpr{Input: input.ID(), Method: method}); err != nil {
			return nil, err
		}
	}
	agg := physexpr.NewAggregationExpr(input, e.Method, id).WithDdof(e.Ddof)
	if e.Method == engine.MethodCount {
		agg = agg.WithCountOptions(e.IncludeNulls)
	}
	return agg, nil
}

// defaultContextAgg reduces a whole column to a single value. Sum, min and
// max are split over the pool for large inputs.
func defaultContextAgg(e *ir.Agg, allowThreading bool) physexpr.ApplyFunc {
	whole := func(s *frame.Series) *frame.GroupsProxy {
		return frame.SingleGroup(s.Len())
	}
	return func(st *state.ExecutionState, in []*frame.Series) (*frame.Series, error) {
		s := in[0]
		switch e.Method {
		case engine.MethodSum, engine.MethodMin, engine.MethodMax:
			return physexpr.ParallelOpSeries(st, func(s *frame.Series) (*frame.Series, error) {
				return engine.Aggregate(s, whole(s), e.Method)
			}, s, allowThreading && st.AllowThreading())
		case engine.MethodFirst:
			if s.Len() == 0 {
				return frame.FullNull(s.Name(), s.Dtype(), 1), nil
			}
			return s.Head(1), nil
		case engine.MethodLast:
			if s.Len() == 0 {
				return frame.FullNull(s.Name(), s.Dtype(), 1), nil
			}
			return s.Tail(1), nil
		case engine.MethodImplode:
			return frame.NewList(s.Name(), s.Dtype(), []*frame.Series{s}), nil
		case engine.MethodCount:
			n := s.Len()
			if !e.IncludeNulls {
				n -= s.NullCount()
			}
			return frame.NewIdx(s.Name(), []frame.Idx{frame.Idx(n)}), nil
		case engine.MethodStd:
			return engine.AggStd(s, whole(s), e.Ddof)
		case engine.MethodVar:
			return engine.AggVar(s, whole(s), e.Ddof)
		}
		return engine.Aggregate(s, whole(s), e.Method)
	}
}

func dedupSorted(names []string) []string {
	if len(names) == 0 {
		return names
	}
	sorted := append([]string(nil), names...)
	slices.Sort(sorted)
	out := sorted[:1]
	for _, n := range sorted[1:] {
		if n != out[len(out)-1] {
			out = append(out, n)
		}
	}
	return out
}
