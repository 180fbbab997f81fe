package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/state"
)

type BinaryExpr struct {
	left  PhysicalExpr
	op    engine.Operator
	right PhysicalExpr
	// both sides may be evaluated concurrently
	allowThreading bool
}

func NewBinaryExpr(left PhysicalExpr, op engine.Operator, right PhysicalExpr, allowThreading bool) *BinaryExpr {
	return &BinaryExpr{left: left, op: op, right: right, allowThreading: allowThreading}
}

func (e *BinaryExpr) ID() uuid.UUID {
	return uuid.Nil
}

func (e *BinaryExpr) IsScalar() bool {
	return e.left.IsScalar() && e.right.IsScalar()
}

func (e *BinaryExpr) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}

func (e *BinaryExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	var l, r *frame.Series
	var errL, errR error
	// window caches are not safe for concurrent writers
	if e.allowThreading && !st.HasWindow() {
		errL, errR = st.Pool().Join(func() error {
			l, errL = e.left.Evaluate(df, st)
			return errL
		}, func() error {
			r, errR = e.right.Evaluate(df, st)
			return errR
		})
	} else {
		l, errL = e.left.Evaluate(df, st)
		if errL == nil {
			r, errR = e.right.Evaluate(df, st)
		}
	}
	if errL != nil {
		return nil, errL
	}
	if errR != nil {
		return nil, errR
	}
	return engine.Binary(l, r, e.op)
}

func (e *BinaryExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	acL, err := e.left.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	acR, err := e.right.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	ls, rs := acL.State(), acR.State()
	switch {
	case ls == AggLiteral && rs == AggLiteral:
		out, err := engine.Binary(acL.Series(), acR.Series(), e.op)
		if err != nil {
			return nil, err
		}
		return FromLiteral(out, groups), nil
	case rowAligned(ls) && rowAligned(rs):
		out, err := engine.Binary(acL.Series(), acR.Series(), e.op)
		if err != nil {
			return nil, err
		}
		ac := acL
		if ls == AggLiteral {
			ac = acR
		}
		if err := ac.WithSeries(out.Rename(acL.Series().Name()), false); err != nil {
			return nil, err
		}
		return ac, nil
	case perGroup(ls) && perGroup(rs):
		out, err := engine.Binary(acL.Series(), acR.Series(), e.op)
		if err != nil {
			return nil, err
		}
		if out.Len() != groups.Len() {
			return nil, lengthMismatch(out.Len(), groups.Len())
		}
		return NewAggregationContext(out, groups, true), nil
	}

	lrows, err := acL.rows()
	if err != nil {
		return nil, err
	}
	rrows, err := acR.rows()
	if err != nil {
		return nil, err
	}
	out := make([]*frame.Series, len(lrows))
	for g := range out {
		if out[g], err = engine.Binary(lrows[g], rrows[g], e.op); err != nil {
			return nil, err
		}
	}
	return fromRows(acL.Series().Name(), acL.elemDtype(), out, groups), nil
}

func (e *BinaryExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	l, err := e.left.ToField(schema)
	if err != nil {
		return frame.Field{}, err
	}
	r, err := e.right.ToField(schema)
	if err != nil {
		return frame.Field{}, err
	}
	dt, err := e.op.OutputDtype(l.Dtype, r.Dtype)
	if err != nil {
		return frame.Field{}, err
	}
	return frame.NewField(l.Name, dt), nil
}
