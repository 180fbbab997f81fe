package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/state"
)

// TernaryExpr is when(predicate).then(truthy).otherwise(falsy).
type TernaryExpr struct {
	predicate      PhysicalExpr
	truthy         PhysicalExpr
	falsy          PhysicalExpr
	allowThreading bool
}

func NewTernaryExpr(predicate, truthy, falsy PhysicalExpr, allowThreading bool) *TernaryExpr {
	return &TernaryExpr{predicate: predicate, truthy: truthy, falsy: falsy, allowThreading: allowThreading}
}

func (e *TernaryExpr) ID() uuid.UUID {
	return uuid.Nil
}

func (e *TernaryExpr) IsScalar() bool {
	return e.predicate.IsScalar() && e.truthy.IsScalar() && e.falsy.IsScalar()
}

func (e *TernaryExpr) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}

func (e *TernaryExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	var mask, t, f *frame.Series
	if e.allowThreading && !st.HasWindow() {
		exprs := []PhysicalExpr{e.predicate, e.truthy, e.falsy}
		out, err := parEvaluate(st, exprs, df)
		if err != nil {
			return nil, err
		}
		mask, t, f = out[0], out[1], out[2]
	} else {
		out, err := evaluateAll([]PhysicalExpr{e.predicate, e.truthy, e.falsy}, df, st)
		if err != nil {
			return nil, err
		}
		mask, t, f = out[0], out[1], out[2]
	}
	out, err := engine.ZipWith(mask, t, f)
	if err != nil {
		return nil, err
	}
	return out.Rename(t.Name()), nil
}

func (e *TernaryExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	acs, err := evaluateAllOnGroups([]PhysicalExpr{e.predicate, e.truthy, e.falsy}, df, groups, st)
	if err != nil {
		return nil, err
	}
	acM, acT, acF := acs[0], acs[1], acs[2]
	name := acT.Series().Name()

	allLiteral, aligned, scalar := true, true, true
	for _, ac := range acs {
		allLiteral = allLiteral && ac.State() == AggLiteral
		aligned = aligned && rowAligned(ac.State())
		scalar = scalar && perGroup(ac.State())
	}
	switch {
	case allLiteral:
		out, err := engine.ZipWith(acM.Series(), acT.Series(), acF.Series())
		if err != nil {
			return nil, err
		}
		return FromLiteral(out.Rename(name), groups), nil
	case aligned:
		out, err := engine.ZipWith(acM.Series(), acT.Series(), acF.Series())
		if err != nil {
			return nil, err
		}
		for _, ac := range acs {
			if ac.State() == NotAggregated {
				if err := ac.WithSeries(out.Rename(name), false); err != nil {
					return nil, err
				}
				return ac, nil
			}
		}
	case scalar:
		out, err := engine.ZipWith(acM.Series(), acT.Series(), acF.Series())
		if err != nil {
			return nil, err
		}
		if out.Len() != groups.Len() {
			return nil, lengthMismatch(out.Len(), groups.Len())
		}
		return NewAggregationContext(out.Rename(name), groups, true), nil
	}

	masks, err := acM.rows()
	if err != nil {
		return nil, err
	}
	truthy, err := acT.rows()
	if err != nil {
		return nil, err
	}
	falsy, err := acF.rows()
	if err != nil {
		return nil, err
	}
	out := make([]*frame.Series, len(masks))
	for g := range out {
		if out[g], err = engine.ZipWith(masks[g], truthy[g], falsy[g]); err != nil {
			return nil, err
		}
		out[g] = out[g].Rename(name)
	}
	return fromRows(name, acT.elemDtype(), out, groups), nil
}

func (e *TernaryExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	t, err := e.truthy.ToField(schema)
	if err != nil {
		return frame.Field{}, err
	}
	f, err := e.falsy.ToField(schema)
	if err != nil {
		return frame.Field{}, err
	}
	if st, ok := frame.Supertype(t.Dtype, f.Dtype); ok {
		return frame.NewField(t.Name, st), nil
	}
	return t, nil
}
