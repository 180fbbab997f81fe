package planner

import (
	"context"

	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/executor"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/state"
)

// PhysicalPlanner lowers a logical plan into an executor tree. With policy
// checking on, every operator is registered with the validator as it is
// built, children first.
type PhysicalPlanner struct {
	lp    *ir.PlanArena
	arena *ir.ExprArena

	ctx            context.Context
	session        *provenance.Session
	allowThreading bool

	// set while planning below a cache node
	underCache bool
}

func NewPhysicalPlanner(ctx context.Context, lp *ir.PlanArena, arena *ir.ExprArena, session *provenance.Session, allowThreading bool) *PhysicalPlanner {
	return &PhysicalPlanner{
		lp:             lp,
		arena:          arena,
		ctx:            ctx,
		session:        session,
		allowThreading: allowThreading,
	}
}

// CreatePhysicalPlan plans root with the session and threading settings of
// st.
func CreatePhysicalPlan(root ir.Node, lp *ir.PlanArena, arena *ir.ExprArena, st *state.ExecutionState) (executor.Executor, error) {
	p := NewPhysicalPlanner(st.Context(), lp, arena, st.Session(), st.AllowThreading())
	return p.Create(root)
}

func (p *PhysicalPlanner) exprState() *ExpressionConversionState {
	s := NewExpressionConversionState(p.ctx, p.allowThreading, p.session)
	s.SetHasCache(p.underCache)
	return s
}

func (p *PhysicalPlanner) buildPlan(arg provenance.PlanArgument) (uuid.UUID, error) {
	id, err := p.session.BuildPlan(p.ctx, arg)
	if err != nil {
		return uuid.Nil, execerror.Newf(execerror.EXEC_COMPUTE, "%s", err)
	}
	return id, nil
}

func (p *PhysicalPlanner) physical(e ir.ExprIR, ctxt Context, schema *frame.Schema, s *ExpressionConversionState) (physexpr.PhysicalExpr, error) {
	s.reset()
	return CreatePhysicalExpr(e, ctxt, p.arena, schema, s)
}

// Create builds the executor for node n and its inputs.
func (p *PhysicalPlanner) Create(n ir.Node) (executor.Executor, error) {
	switch lp := p.lp.Get(n).(type) {
	case *ir.DataFrameScan:
		return p.createDataFrameScan(lp)
	case *ir.SourceScan:
		return p.createSourceScan(lp)
	case *ir.Selection:
		return p.createSelection(lp)
	case *ir.Select:
		return p.createSelect(lp)
	case *ir.HStack:
		return p.createHStack(lp)
	case *ir.GroupBy:
		return p.createGroupBy(lp)
	case *ir.SortPlan:
		return p.createSort(lp)
	case *ir.JoinPlan:
		return p.createJoin(lp)
	case *ir.Cache:
		return p.createCache(lp)
	case *ir.Invalid:
		return &executor.Dummy{}, nil
	case nil:
		return nil, execerror.New(execerror.EXEC_INVALID_OPERATION, "empty plan node")
	default:
		return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "cannot plan node %T", lp)
	}
}

func (p *PhysicalPlanner) createDataFrameScan(lp *ir.DataFrameScan) (executor.Executor, error) {
	schema := lp.Schema
	if schema == nil {
		schema = lp.DF.Schema()
	}
	s := p.exprState()
	var selection physexpr.PhysicalExpr
	pred := uuid.Nil
	if lp.Selection != nil {
		var err error
		if selection, err = p.physical(*lp.Selection, Default, schema, s); err != nil {
			return nil, execerror.FailedHere(err, "scan")
		}
		pred = selection.ID()
	}
	planID, err := p.buildPlan(&provenance.GetDataArg{
		Source:      provenance.DataSource{Kind: provenance.SourceInMemory},
		Predicate:   pred,
		ProjectList: lp.Projection,
	})
	if err != nil {
		return nil, execerror.FailedHere(err, "scan")
	}
	return executor.NewDataFrameExec(lp.DF, selection, lp.Projection, lp.NRows, s.HasWindows, lp.Policy, planID), nil
}

func (p *PhysicalPlanner) createSourceScan(lp *ir.SourceScan) (executor.Executor, error) {
	s := p.exprState()
	var predicate physexpr.PhysicalExpr
	pred := uuid.Nil
	if lp.Predicate != nil {
		var err error
		if predicate, err = p.physical(*lp.Predicate, Default, lp.Schema, s); err != nil {
			return nil, execerror.FailedHere(err, "scan")
		}
		pred = predicate.ID()
	}
	planID, err := p.buildPlan(&provenance.GetDataArg{
		Source: provenance.DataSource{
			Kind:     lp.Source.Kind(),
			Location: lp.Source.Location(),
		},
		Predicate:   pred,
		ProjectList: lp.Projection,
	})
	if err != nil {
		return nil, execerror.FailedHere(err, "scan")
	}
	return executor.NewSourceExec(lp.Source, lp.Projection, lp.NRows, lp.RowIndex, predicate, lp.Policy, planID), nil
}

func (p *PhysicalPlanner) createSelection(lp *ir.Selection) (executor.Executor, error) {
	input, err := p.Create(lp.Input)
	if err != nil {
		return nil, execerror.FailedInput(err, "filter")
	}
	schema := ir.SchemaOf(p.lp, lp.Input)
	s := p.exprState()
	pred, err := p.physical(lp.Predicate, Default, schema, s)
	if err != nil {
		return nil, execerror.FailedHere(err, "filter")
	}
	planID, err := p.buildPlan(&provenance.SelectArg{Predicate: pred.ID()})
	if err != nil {
		return nil, execerror.FailedHere(err, "filter")
	}
	streamable := !s.HasWindows && ir.IsElementWise(p.arena, lp.Predicate.Node)
	return executor.NewFilterExec(pred, input, s.HasWindows, streamable, planID), nil
}

func (p *PhysicalPlanner) createSelect(lp *ir.Select) (executor.Executor, error) {
	input, err := p.Create(lp.Input)
	if err != nil {
		return nil, execerror.FailedInput(err, "select")
	}
	schema := ir.SchemaOf(p.lp, lp.Input)
	s := p.exprState()
	exprs, err := CreatePhysicalExpressions(lp.Exprs, Default, p.arena, schema, s)
	if err != nil {
		return nil, execerror.FailedHere(err, "select")
	}
	planID, err := p.buildPlan(&provenance.ProjectionArg{Exprs: ids(exprs)})
	if err != nil {
		return nil, execerror.FailedHere(err, "select")
	}
	streamable := !s.HasWindows && ir.AllElementWise(p.arena, lp.Exprs)
	return executor.NewProjectionExec(input, exprs, s.HasWindows, schema, lp.Options, streamable, planID), nil
}

func (p *PhysicalPlanner) createHStack(lp *ir.HStack) (executor.Executor, error) {
	input, err := p.Create(lp.Input)
	if err != nil {
		return nil, execerror.FailedInput(err, "with_columns")
	}
	schema := ir.SchemaOf(p.lp, lp.Input)
	s := p.exprState()
	exprs, err := CreatePhysicalExpressions(lp.Exprs, Default, p.arena, schema, s)
	if err != nil {
		return nil, execerror.FailedHere(err, "with_columns")
	}
	planID, err := p.buildPlan(&provenance.HstackArg{Exprs: ids(exprs)})
	if err != nil {
		return nil, execerror.FailedHere(err, "with_columns")
	}
	return executor.NewStackExec(input, exprs, s.HasWindows, schema, lp.Options, planID), nil
}

func (p *PhysicalPlanner) createGroupBy(lp *ir.GroupBy) (executor.Executor, error) {
	input, err := p.Create(lp.Input)
	if err != nil {
		return nil, execerror.FailedInput(err, "group_by")
	}
	schema := ir.SchemaOf(p.lp, lp.Input)
	s := p.exprState()
	keys, err := CreatePhysicalExpressions(lp.Keys, Default, p.arena, schema, s)
	if err != nil {
		return nil, execerror.FailedHere(err, "group_by")
	}
	aggs, err := CreatePhysicalExpressions(lp.Aggs, Aggregation, p.arena, schema, s)
	if err != nil {
		return nil, execerror.FailedHere(err, "group_by")
	}
	planID, err := p.buildPlan(&provenance.AggregateArg{
		Keys:   ids(keys),
		Aggs:   ids(aggs),
		Schema: schema.Fields(),
	})
	if err != nil {
		return nil, execerror.FailedHere(err, "group_by")
	}
	return executor.NewGroupByExec(input, keys, aggs, lp.Apply, lp.MaintainOrder, schema, lp.Slice, s.HasWindows, planID), nil
}

func (p *PhysicalPlanner) createSort(lp *ir.SortPlan) (executor.Executor, error) {
	input, err := p.Create(lp.Input)
	if err != nil {
		return nil, execerror.FailedInput(err, "sort")
	}
	schema := ir.SchemaOf(p.lp, lp.Input)
	s := p.exprState()
	by, err := CreatePhysicalExpressions(lp.By, Default, p.arena, schema, s)
	if err != nil {
		return nil, execerror.FailedHere(err, "sort")
	}
	planID, err := p.buildPlan(&provenance.TransformArg{Info: provenance.TransformInfo{Op: provenance.OpReorder}})
	if err != nil {
		return nil, execerror.FailedHere(err, "sort")
	}
	return executor.NewSortExec(input, by, lp.Slice, lp.Options, s.HasWindows, planID), nil
}

func (p *PhysicalPlanner) createJoin(lp *ir.JoinPlan) (executor.Executor, error) {
	left, err := p.Create(lp.Left)
	if err != nil {
		return nil, execerror.FailedInput(err, "join left")
	}
	right, err := p.Create(lp.Right)
	if err != nil {
		return nil, execerror.FailedInput(err, "join right")
	}
	sLeft, sRight := p.exprState(), p.exprState()
	leftOn, err := CreatePhysicalExpressions(lp.LeftOn, Default, p.arena, ir.SchemaOf(p.lp, lp.Left), sLeft)
	if err != nil {
		return nil, execerror.FailedHere(err, "join")
	}
	rightOn, err := CreatePhysicalExpressions(lp.RightOn, Default, p.arena, ir.SchemaOf(p.lp, lp.Right), sRight)
	if err != nil {
		return nil, execerror.FailedHere(err, "join")
	}
	planID, err := p.buildPlan(&provenance.TransformArg{Info: provenance.TransformInfo{Op: provenance.OpJoin}})
	if err != nil {
		return nil, execerror.FailedHere(err, "join")
	}

	// branches below a cache would race for the same entry
	parallel := lp.Options.ForceParallel ||
		(lp.Options.AllowParallel && p.allowThreading && !p.hasCache(lp.Left) && !p.hasCache(lp.Right))
	execlog.Zero.Debug().
		Bool("parallel", parallel).
		Str("how", lp.Options.Args.How.String()).
		Msg("planned join")
	hasWindows := sLeft.HasWindows || sRight.HasWindows
	return executor.NewJoinExec(left, right, leftOn, rightOn, parallel, lp.Options.Args, hasWindows, planID), nil
}

func (p *PhysicalPlanner) createCache(lp *ir.Cache) (executor.Executor, error) {
	prev := p.underCache
	p.underCache = true
	input, err := p.Create(lp.Input)
	p.underCache = prev
	if err != nil {
		return nil, execerror.FailedInput(err, "cache")
	}
	return executor.NewCacheExec(input, lp.ID, lp.CacheHits), nil
}

// hasCache reports whether a cache node sits anywhere below n.
func (p *PhysicalPlanner) hasCache(n ir.Node) bool {
	if _, ok := p.lp.Get(n).(*ir.Cache); ok {
		return true
	}
	for _, in := range p.lp.Get(n).Inputs() {
		if p.hasCache(in) {
			return true
		}
	}
	return false
}

func ids(exprs []physexpr.PhysicalExpr) []uuid.UUID {
	out := make([]uuid.UUID, len(exprs))
	for i, e := range exprs {
		out[i] = e.ID()
	}
	return out
}
