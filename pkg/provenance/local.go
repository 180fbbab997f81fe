package provenance

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

type EventKind string

const (
	EventPlan     EventKind = "plan"
	EventExpr     EventKind = "expr"
	EventPrologue EventKind = "prologue"
	EventEpilogue EventKind = "epilogue"
	EventReify    EventKind = "reify"
	EventPolicy   EventKind = "policy"
)

// Event is one call the local validator accepted.
type Event struct {
	Kind     EventKind
	CtxID    uuid.UUID
	ID       uuid.UUID
	ActiveDF uuid.UUID
	Plan     PlanArgument
	Expr     ExprArgument
	Payload  *Epilogue
	Data     []byte
}

// LocalValidator is an in-process validator. It checks the structural
// soundness of every record and keeps the snapshot lineage.
type LocalValidator struct {
	mu        sync.Mutex
	plans     map[uuid.UUID]PlanArgument
	exprs     map[uuid.UUID]ExprArgument
	snapshots map[uuid.UUID][]uuid.UUID
	reified   map[uuid.UUID][]byte
	events    []Event
}

var _ Validator = &LocalValidator{}

func NewLocalValidator() *LocalValidator {
	return &LocalValidator{
		plans:     map[uuid.UUID]PlanArgument{},
		exprs:     map[uuid.UUID]ExprArgument{},
		snapshots: map[uuid.UUID][]uuid.UUID{},
		reified:   map[uuid.UUID][]byte{},
	}
}

func newID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, execerror.Newf(execerror.EXEC_VALIDATOR, "failed to generate id: %s", err)
	}
	return id, nil
}

func (v *LocalValidator) knownExpr(id uuid.UUID) bool {
	_, ok := v.exprs[id]
	return ok
}

func (v *LocalValidator) knownSnapshot(id uuid.UUID) bool {
	if id == uuid.Nil {
		return true
	}
	_, ok := v.snapshots[id]
	return ok
}

func (v *LocalValidator) checkExprs(ids []uuid.UUID) error {
	for _, id := range ids {
		if id != uuid.Nil && !v.knownExpr(id) {
			return execerror.Newf(execerror.EXEC_VALIDATOR, "expression %s is not registered", id)
		}
	}
	return nil
}

func (v *LocalValidator) checkPlan(arg PlanArgument) error {
	switch a := arg.(type) {
	case *SelectArg:
		return v.checkExprs([]uuid.UUID{a.Predicate})
	case *ProjectionArg:
		return v.checkExprs(a.Exprs)
	case *HstackArg:
		return v.checkExprs(a.Exprs)
	case *AggregateArg:
		if err := v.checkExprs(a.Keys); err != nil {
			return err
		}
		if err := v.checkExprs(a.Aggs); err != nil {
			return err
		}
		return checkGroups(a.Groups)
	case *GetDataArg:
		if !v.knownSnapshot(a.Source.Policy) {
			return execerror.Newf(execerror.EXEC_VALIDATOR, "policy %s is not registered", a.Source.Policy)
		}
		return v.checkExprs([]uuid.UUID{a.Predicate})
	case *TransformArg:
		return v.checkTransform(&a.Info)
	case nil:
		return nil
	}
	return execerror.Newf(execerror.EXEC_VALIDATOR, "unsupported plan argument %T", arg)
}

// checkGroups verifies that no row belongs to two groups and that every
// first index is the first member.
func checkGroups(g GroupsSnapshot) error {
	if len(g.First) != len(g.All) {
		return execerror.Newf(execerror.EXEC_VALIDATOR, "groups snapshot has %d firsts and %d groups", len(g.First), len(g.All))
	}
	seen := map[uint64]struct{}{}
	for i, members := range g.All {
		if len(members) > 0 && members[0] != g.First[i] {
			return execerror.Newf(execerror.EXEC_VALIDATOR, "group %d does not start at its first index", i)
		}
		for _, m := range members {
			if _, ok := seen[m]; ok {
				return execerror.Newf(execerror.EXEC_VALIDATOR, "row %d belongs to more than one group", m)
			}
			seen[m] = struct{}{}
		}
	}
	return nil
}

func (v *LocalValidator) checkTransform(t *TransformInfo) error {
	if t == nil {
		return nil
	}
	switch t.Op {
	case OpFilter:
		return nil
	case OpReorder:
		seen := make(map[uint64]struct{}, len(t.Perm))
		for _, p := range t.Perm {
			if _, ok := seen[p]; ok {
				return execerror.Newf(execerror.EXEC_VALIDATOR, "permutation repeats row %d", p)
			}
			seen[p] = struct{}{}
		}
		return nil
	case OpJoin:
		if !v.knownSnapshot(t.Lhs) || !v.knownSnapshot(t.Rhs) {
			return execerror.Newf(execerror.EXEC_VALIDATOR, "join inputs %s and %s are not known snapshots", t.Lhs, t.Rhs)
		}
		return nil
	}
	return execerror.Newf(execerror.EXEC_VALIDATOR, "unknown transform %q", t.Op)
}

func (v *LocalValidator) BuildPlan(_ context.Context, ctxID uuid.UUID, arg PlanArgument) (uuid.UUID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkPlan(arg); err != nil {
		return uuid.Nil, err
	}
	id, err := newID()
	if err != nil {
		return uuid.Nil, err
	}
	v.plans[id] = arg
	v.events = append(v.events, Event{Kind: EventPlan, CtxID: ctxID, ID: id, Plan: arg})
	return id, nil
}

func (v *LocalValidator) BuildExpr(_ context.Context, ctxID uuid.UUID, arg ExprArgument) (uuid.UUID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if a, ok := arg.(*AggExpr); ok && !v.knownExpr(a.Input) {
		return uuid.Nil, execerror.Newf(execerror.EXEC_VALIDATOR, "aggregation input %s is not registered", a.Input)
	}
	id, err := newID()
	if err != nil {
		return uuid.Nil, err
	}
	v.exprs[id] = arg
	v.events = append(v.events, Event{Kind: EventExpr, CtxID: ctxID, ID: id, Expr: arg})
	return id, nil
}

func (v *LocalValidator) ExecutePrologue(_ context.Context, ctxID uuid.UUID, planID uuid.UUID, activeDF uuid.UUID) (uuid.UUID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.plans[planID]; !ok {
		return uuid.Nil, execerror.Newf(execerror.EXEC_VALIDATOR, "plan %s is not registered", planID)
	}
	if !v.knownSnapshot(activeDF) {
		return uuid.Nil, execerror.Newf(execerror.EXEC_VALIDATOR, "snapshot %s is not known", activeDF)
	}
	id, err := newID()
	if err != nil {
		return uuid.Nil, err
	}
	v.snapshots[id] = []uuid.UUID{activeDF}
	v.events = append(v.events, Event{Kind: EventPrologue, CtxID: ctxID, ID: id, ActiveDF: activeDF})
	return id, nil
}

func (v *LocalValidator) ExecuteEpilogue(_ context.Context, ctxID uuid.UUID, activeDF uuid.UUID, payload *Epilogue) (uuid.UUID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if payload == nil {
		return uuid.Nil, execerror.New(execerror.EXEC_VALIDATOR, "empty epilogue")
	}
	if err := v.checkPlan(payload.Arg); err != nil {
		return uuid.Nil, err
	}
	if err := v.checkTransform(payload.Transform); err != nil {
		return uuid.Nil, err
	}
	if !v.knownSnapshot(activeDF) {
		return uuid.Nil, execerror.Newf(execerror.EXEC_VALIDATOR, "snapshot %s is not known", activeDF)
	}
	id, err := newID()
	if err != nil {
		return uuid.Nil, err
	}
	parents := []uuid.UUID{activeDF}
	if t := payload.Transform; t != nil && t.Op == OpJoin {
		parents = []uuid.UUID{t.Lhs, t.Rhs}
	}
	v.snapshots[id] = parents
	v.events = append(v.events, Event{Kind: EventEpilogue, CtxID: ctxID, ID: id, ActiveDF: activeDF, Payload: payload})
	kind := ""
	if payload.Arg != nil {
		kind = payload.Arg.Kind()
	}
	execlog.Zero.Debug().
		Str("ctx", ctxID.String()).
		Str("kind", kind).
		Str("snapshot", id.String()).
		Msg("epilogue accepted")
	return id, nil
}

func (v *LocalValidator) ReifyExpression(_ context.Context, ctxID uuid.UUID, exprID uuid.UUID, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.knownExpr(exprID) {
		return execerror.Newf(execerror.EXEC_VALIDATOR, "expression %s is not registered", exprID)
	}
	v.reified[exprID] = data
	v.events = append(v.events, Event{Kind: EventReify, CtxID: ctxID, ID: exprID, Data: data})
	return nil
}

func (v *LocalValidator) RegisterPolicy(_ context.Context, ctxID uuid.UUID, policy []byte) (uuid.UUID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(policy) == 0 {
		return uuid.Nil, execerror.New(execerror.EXEC_VALIDATOR, "empty policy")
	}
	id, err := newID()
	if err != nil {
		return uuid.Nil, err
	}
	v.snapshots[id] = nil
	v.events = append(v.events, Event{Kind: EventPolicy, CtxID: ctxID, ID: id, Data: policy})
	return id, nil
}

// Events returns a copy of the accepted calls in arrival order.
func (v *LocalValidator) Events() []Event {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Event(nil), v.events...)
}

// Parents returns the snapshots a snapshot was derived from.
func (v *LocalValidator) Parents(id uuid.UUID) []uuid.UUID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshots[id]
}

// Reified returns the payload shipped for an expression.
func (v *LocalValidator) Reified(id uuid.UUID) ([]byte, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.reified[id]
	return b, ok
}
