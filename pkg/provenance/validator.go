package provenance

import (
	"context"

	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/execlog"
)

// Validator checks the provenance trail of a plan execution. Every call is
// scoped by the execution context id.
type Validator interface {
	BuildPlan(ctx context.Context, ctxID uuid.UUID, arg PlanArgument) (uuid.UUID, error)
	BuildExpr(ctx context.Context, ctxID uuid.UUID, arg ExprArgument) (uuid.UUID, error)
	ExecutePrologue(ctx context.Context, ctxID uuid.UUID, planID uuid.UUID, activeDF uuid.UUID) (uuid.UUID, error)
	ExecuteEpilogue(ctx context.Context, ctxID uuid.UUID, activeDF uuid.UUID, payload *Epilogue) (uuid.UUID, error)
	ReifyExpression(ctx context.Context, ctxID uuid.UUID, exprID uuid.UUID, data []byte) error
	RegisterPolicy(ctx context.Context, ctxID uuid.UUID, policy []byte) (uuid.UUID, error)
}

// Session binds a validator to one execution context.
type Session struct {
	CtxID       uuid.UUID
	Validator   Validator
	PolicyCheck bool
}

func NewSession(v Validator, policyCheck bool) *Session {
	return &Session{
		CtxID:       uuid.New(),
		Validator:   v,
		PolicyCheck: policyCheck,
	}
}

// Enabled reports whether the protocol runs at all.
func (s *Session) Enabled() bool {
	return s != nil && s.PolicyCheck && s.Validator != nil
}

// BuildPlan registers an operator. It returns the nil id when policy
// checking is off.
func (s *Session) BuildPlan(ctx context.Context, arg PlanArgument) (uuid.UUID, error) {
	if !s.Enabled() {
		return uuid.Nil, nil
	}
	id, err := s.Validator.BuildPlan(ctx, s.CtxID, arg)
	if err != nil {
		return uuid.Nil, err
	}
	execlog.Zero.Debug().
		Str("ctx", s.CtxID.String()).
		Str("kind", arg.Kind()).
		Str("plan", id.String()).
		Msg("registered plan")
	return id, nil
}

// BuildExpr registers an expression. It returns the nil id when policy
// checking is off.
func (s *Session) BuildExpr(ctx context.Context, arg ExprArgument) (uuid.UUID, error) {
	if !s.Enabled() {
		return uuid.Nil, nil
	}
	return s.Validator.BuildExpr(ctx, s.CtxID, arg)
}

func (s *Session) Reify(ctx context.Context, exprID uuid.UUID, data []byte) error {
	if !s.Enabled() {
		return nil
	}
	return s.Validator.ReifyExpression(ctx, s.CtxID, exprID, data)
}

func (s *Session) RegisterPolicy(ctx context.Context, policy []byte) (uuid.UUID, error) {
	if !s.Enabled() {
		return uuid.Nil, nil
	}
	return s.Validator.RegisterPolicy(ctx, s.CtxID, policy)
}
