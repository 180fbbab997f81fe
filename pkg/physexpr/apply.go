package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/state"
)

// ApplyFunc is a column function that may consult the execution state.
type ApplyFunc func(st *state.ExecutionState, s []*frame.Series) (*frame.Series, error)

// LiftUDF wraps a user function that ignores the state.
func LiftUDF(f ir.SeriesUDF) ApplyFunc {
	return func(_ *state.ExecutionState, s []*frame.Series) (*frame.Series, error) {
		return f(s)
	}
}

// ApplyExpr calls a function on the values of its inputs. Collect decides
// what the function sees inside a group-by.
type ApplyExpr struct {
	inputs         []PhysicalExpr
	function       ApplyFunc
	collect        ir.ApplyKind
	returnsScalar  bool
	allowRename    bool
	checkLengths   bool
	outputField    *frame.Field
	allowThreading bool
}

func NewApplyExpr(inputs []PhysicalExpr, function ApplyFunc, options ir.FunctionOptions, outputField *frame.Field, allowThreading bool) *ApplyExpr {
	return &ApplyExpr{
		inputs:         inputs,
		function:       function,
		collect:        options.Collect,
		returnsScalar:  options.ReturnsScalar,
		allowRename:    options.AllowRename,
		checkLengths:   options.CheckLengths,
		outputField:    outputField,
		allowThreading: allowThreading,
	}
}

func (e *ApplyExpr) ID() uuid.UUID {
	return uuid.Nil
}

func (e *ApplyExpr) IsScalar() bool {
	return e.returnsScalar
}

func (e *ApplyExpr) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}

func (e *ApplyExpr) call(st *state.ExecutionState, inputs []*frame.Series) (*frame.Series, error) {
	out, err := e.function(st, inputs)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, execerror.New(execerror.EXEC_COMPUTE, "function returned no output")
	}
	if !e.allowRename && len(inputs) > 0 {
		out = out.Rename(inputs[0].Name())
	}
	return out, nil
}

func (e *ApplyExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	var inputs []*frame.Series
	var err error
	if e.allowThreading && len(e.inputs) > 1 && !st.HasWindow() {
		inputs, err = parEvaluate(st, e.inputs, df)
	} else {
		inputs, err = evaluateAll(e.inputs, df, st)
	}
	if err != nil {
		return nil, err
	}
	return e.call(st, inputs)
}

func (e *ApplyExpr) checkLen(out *frame.Series, n int) error {
	if e.checkLengths && !e.returnsScalar && out.Len() != n {
		return execerror.Newf(execerror.EXEC_COMPUTE,
			"function output length %d does not match its input length %d", out.Len(), n)
	}
	return nil
}

func (e *ApplyExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	acs, err := evaluateAllOnGroups(e.inputs, df, groups, st)
	if err != nil {
		return nil, err
	}
	if len(acs) == 1 {
		switch e.collect {
		case ir.ElementWise:
			return e.elementWise(acs[0], st)
		case ir.ApplyFlat:
			return e.flat(acs[0], st)
		}
		return e.groupWise(acs, groups, st)
	}

	if e.collect != ir.GroupWise {
		aligned := true
		for _, ac := range acs {
			aligned = aligned && rowAligned(ac.State())
		}
		if aligned {
			inputs := make([]*frame.Series, len(acs))
			for i, ac := range acs {
				inputs[i] = ac.Series()
			}
			out, err := e.call(st, inputs)
			if err != nil {
				return nil, err
			}
			for _, ac := range acs {
				if ac.State() == NotAggregated {
					if err := e.checkLen(out, ac.Series().Len()); err != nil {
						return nil, err
					}
					if err := ac.WithSeries(out, false); err != nil {
						return nil, err
					}
					return ac, nil
				}
			}
			return FromLiteral(out, groups), nil
		}
	}
	return e.groupWise(acs, groups, st)
}

// elementWise maps the values and keeps the groups.
func (e *ApplyExpr) elementWise(ac *AggregationContext, st *state.ExecutionState) (*AggregationContext, error) {
	if ac.State() == AggregatedList {
		flat := ac.FlatNaive()
		out, err := e.call(st, []*frame.Series{flat})
		if err != nil {
			return nil, err
		}
		if out.Len() != flat.Len() {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE,
				"element wise function changed the length from %d to %d", flat.Len(), out.Len())
		}
		lens := listLens(ac.Series())
		rows := make([]*frame.Series, len(lens))
		off := int64(0)
		for i, l := range lens {
			rows[i] = out.Slice(off, l)
			off += int64(l)
		}
		return fromRows(out.Name(), out.Dtype(), rows, ac.groups), nil
	}
	in := ac.Series()
	out, err := e.call(st, []*frame.Series{in})
	if err != nil {
		return nil, err
	}
	if err := e.checkLen(out, in.Len()); err != nil {
		return nil, err
	}
	if err := ac.WithSeries(out, ac.State() == AggregatedScalar); err != nil {
		return nil, err
	}
	return ac, nil
}

// flat hands the function the flattened values and drops the grouping of
// the result.
func (e *ApplyExpr) flat(ac *AggregationContext, st *state.ExecutionState) (*AggregationContext, error) {
	flat := ac.FlatNaive()
	groups := ac.Groups()
	out, err := e.call(st, []*frame.Series{flat})
	if err != nil {
		return nil, err
	}
	if e.returnsScalar && out.Len() == 1 {
		return FromLiteral(out, groups), nil
	}
	if err := e.checkLen(out, flat.Len()); err != nil {
		return nil, err
	}
	return NewAggregationContext(out, groups, false), nil
}

// groupWise calls the function once per group.
func (e *ApplyExpr) groupWise(acs []*AggregationContext, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	rows := make([][]*frame.Series, len(acs))
	for i, ac := range acs {
		r, err := ac.rows()
		if err != nil {
			return nil, err
		}
		rows[i] = r
	}
	out := make([]*frame.Series, groups.Len())
	for g := range out {
		inputs := make([]*frame.Series, len(acs))
		for i := range acs {
			inputs[i] = rows[i][g]
		}
		s, err := e.call(st, inputs)
		if err != nil {
			return nil, err
		}
		out[g] = s
	}
	name := acs[0].Series().Name()
	if len(out) > 0 {
		name = out[0].Name()
	}
	if e.returnsScalar {
		return fromScalarRows(name, out, groups)
	}
	return fromRows(name, acs[0].elemDtype(), out, groups), nil
}

func (e *ApplyExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	if len(e.inputs) == 0 {
		if e.outputField != nil {
			return *e.outputField, nil
		}
		return frame.Field{}, execerror.New(execerror.EXEC_COMPUTE, "function without inputs has no output field")
	}
	f, err := e.inputs[0].ToField(schema)
	if err != nil {
		return frame.Field{}, err
	}
	if e.outputField != nil {
		name := f.Name
		if e.allowRename && e.outputField.Name != "" {
			name = e.outputField.Name
		}
		return frame.NewField(name, e.outputField.Dtype), nil
	}
	return f, nil
}
