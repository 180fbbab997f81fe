package physexpr

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/state"
)

type SortExpr struct {
	input   PhysicalExpr
	options engine.SortOptions
}

func NewSortExpr(input PhysicalExpr, options engine.SortOptions) *SortExpr {
	return &SortExpr{input: input, options: options}
}

func (e *SortExpr) ID() uuid.UUID {
	return uuid.Nil
}

func (e *SortExpr) IsScalar() bool {
	return false
}

func (e *SortExpr) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}

func (e *SortExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	return engine.SortSeries(s, e.options)
}

// EvaluateOnGroups sorts within every group. Row aligned values keep their
// place and the groups are reordered instead.
func (e *SortExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	ac, err := e.input.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	opts := engine.SortMultipleOptions{
		Descending: []bool{e.options.Descending},
		NullsLast:  e.options.NullsLast,
	}
	switch ac.State() {
	case NotAggregated:
		s := ac.Series()
		var sortErr error
		sorted := ac.Groups().MapGroups(func(_ int, members []frame.Idx) []frame.Idx {
			out, err := sortMembers(members, []*frame.Series{s}, opts)
			if err != nil && sortErr == nil {
				sortErr = err
			}
			return out
		})
		if sortErr != nil {
			return nil, sortErr
		}
		ac.WithGroups(sorted)
		return ac, nil
	case AggregatedList:
		rows, err := ac.rows()
		if err != nil {
			return nil, err
		}
		for i, r := range rows {
			if rows[i], err = engine.SortSeries(r, e.options); err != nil {
				return nil, err
			}
		}
		return fromRows(ac.Series().Name(), ac.elemDtype(), rows, groups), nil
	}
	return ac, nil
}

// sortMembers orders the member rows of one group by the key columns.
func sortMembers(members []frame.Idx, keys []*frame.Series, opts engine.SortMultipleOptions) ([]frame.Idx, error) {
	if len(members) < 2 {
		return members, nil
	}
	local := make([]*frame.Series, len(keys))
	for i, k := range keys {
		local[i] = k.Gather(members)
	}
	perm, err := engine.ArgSort(local, opts)
	if err != nil {
		return nil, err
	}
	out := make([]frame.Idx, len(perm))
	for i, p := range perm {
		out[i] = members[p]
	}
	return out, nil
}

func (e *SortExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	return e.input.ToField(schema)
}

// SortByExpr orders its input by one or more key expressions.
type SortByExpr struct {
	input   PhysicalExpr
	by      []PhysicalExpr
	options engine.SortMultipleOptions
}

func NewSortByExpr(input PhysicalExpr, by []PhysicalExpr, options engine.SortMultipleOptions) *SortByExpr {
	return &SortByExpr{input: input, by: by, options: options}
}

func (e *SortByExpr) ID() uuid.UUID {
	return uuid.Nil
}

func (e *SortByExpr) IsScalar() bool {
	return false
}

func (e *SortByExpr) AsPartitionedAggregator() PartitionedAggregation {
	return nil
}

func sortByLengthError(by, input int) error {
	return execerror.Newf(execerror.EXEC_COMPUTE,
		"`sort_by` produced different length (%d) than the Series that has to be sorted (%d)", by, input)
}

func (e *SortByExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	s, err := e.input.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	keys, err := evaluateAll(e.by, df, st)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if k.Len() != s.Len() {
			return nil, sortByLengthError(k.Len(), s.Len())
		}
	}
	perm, err := engine.ArgSort(keys, e.options)
	if err != nil {
		return nil, err
	}
	return s.Gather(perm), nil
}

func (e *SortByExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	ac, err := e.input.EvaluateOnGroups(df, groups, st)
	if err != nil {
		return nil, err
	}
	byAcs, err := evaluateAllOnGroups(e.by, df, groups, st)
	if err != nil {
		return nil, err
	}

	aligned := ac.State() == NotAggregated
	for _, b := range byAcs {
		aligned = aligned && b.State() == NotAggregated
	}
	if aligned {
		keys := make([]*frame.Series, len(byAcs))
		for i, b := range byAcs {
			keys[i] = b.Series()
			if keys[i].Len() != ac.Series().Len() {
				return nil, sortByLengthError(keys[i].Len(), ac.Series().Len())
			}
		}
		var sortErr error
		sorted := ac.Groups().MapGroups(func(_ int, members []frame.Idx) []frame.Idx {
			out, err := sortMembers(members, keys, e.options)
			if err != nil && sortErr == nil {
				sortErr = err
			}
			return out
		})
		if sortErr != nil {
			return nil, sortErr
		}
		ac.WithGroups(sorted)
		return ac, nil
	}

	rows, err := ac.rows()
	if err != nil {
		return nil, err
	}
	byRows := make([][]*frame.Series, len(byAcs))
	for i, b := range byAcs {
		if byRows[i], err = b.rows(); err != nil {
			return nil, err
		}
	}
	out := make([]*frame.Series, len(rows))
	for g, r := range rows {
		keys := make([]*frame.Series, len(byRows))
		for i := range byRows {
			keys[i] = byRows[i][g]
			if keys[i].Len() != r.Len() {
				return nil, sortByLengthError(keys[i].Len(), r.Len())
			}
		}
		perm, err := engine.ArgSort(keys, e.options)
		if err != nil {
			return nil, err
		}
		out[g] = r.Gather(perm)
	}
	return fromRows(ac.Series().Name(), ac.elemDtype(), out, groups), nil
}

func (e *SortByExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	return e.input.ToField(schema)
}
