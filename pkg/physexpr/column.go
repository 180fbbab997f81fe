package physexpr

import (
	"encoding/binary"

	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/state"
)

// ColumnExpr reads a column by name. The index resolved against the
// planning schema is tried first.
type ColumnExpr struct {
	name   string
	schema *frame.Schema
	id     uuid.UUID
}

func NewColumnExpr(name string, schema *frame.Schema, id uuid.UUID) *ColumnExpr {
	return &ColumnExpr{name: name, schema: schema, id: id}
}

func (e *ColumnExpr) Name() string {
	return e.name
}

func (e *ColumnExpr) ID() uuid.UUID {
	return e.id
}

func (e *ColumnExpr) IsScalar() bool {
	return false
}

func (e *ColumnExpr) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	s, idx, err := e.lookup(df, st)
	if err != nil {
		return nil, err
	}
	if idx >= 0 && e.id != uuid.Nil && st.PolicyCheck() {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(idx))
		if err := st.Session().Reify(st.Context(), e.id, buf); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// lookup returns the column and its position, -1 when it came from an
// external context.
func (e *ColumnExpr) lookup(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, int, error) {
	if e.schema != nil {
		if i, ok := e.schema.IndexOf(e.name); ok && i < df.Width() {
			if c := df.ColumnAt(i); c.Name() == e.name {
				return c, i, nil
			}
		}
	}
	return e.processByStateSchema(df, st)
}

func (e *ColumnExpr) processByStateSchema(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, int, error) {
	if schema := st.Schema(); schema != nil {
		if i, ok := schema.IndexOf(e.name); ok && i < df.Width() {
			if c := df.ColumnAt(i); c.Name() == e.name {
				return c, i, nil
			}
		}
	}
	return e.processByLinearSearch(df, st)
}

// processByLinearSearch is the single fallback for a schema that does not
// match the frame: a missing column is a recoverable ColumnNotFound.
func (e *ColumnExpr) processByLinearSearch(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, int, error) {
	if i := df.ColumnIndex(e.name); i >= 0 {
		if e.schema != nil {
			execlog.Zero.Debug().
				Str("column", e.name).
				Int("index", i).
				Msg("column index does not match the planning schema, found by name")
		}
		return df.ColumnAt(i), i, nil
	}
	for _, ext := range st.ExtContexts() {
		if i := ext.ColumnIndex(e.name); i >= 0 {
			return ext.ColumnAt(i), -1, nil
		}
	}
	return nil, -1, execerror.Newf(execerror.EXEC_COLUMN_NOT_FOUND, "%q not found", e.name)
}

func (e *ColumnExpr) EvaluateOnGroups(df *frame.DataFrame, groups *frame.GroupsProxy, st *state.ExecutionState) (*AggregationContext, error) {
	s, err := e.Evaluate(df, st)
	if err != nil {
		return nil, err
	}
	return NewAggregationContext(s, groups, false), nil
}

func (e *ColumnExpr) ToField(schema *frame.Schema) (frame.Field, error) {
	f, ok := schema.Get(e.name)
	if !ok {
		return frame.Field{}, execerror.Newf(execerror.EXEC_COLUMN_NOT_FOUND, "could not find %q in schema", e.name)
	}
	return f, nil
}

func (e *ColumnExpr) AsPartitionedAggregator() PartitionedAggregation {
	return e
}

func (e *ColumnExpr) EvaluatePartitioned(df *frame.DataFrame, _ *frame.GroupsProxy, st *state.ExecutionState) (*frame.Series, error) {
	return e.Evaluate(df, st)
}

func (e *ColumnExpr) Finalize(partitioned *frame.Series, _ *frame.GroupsProxy, _ *state.ExecutionState) (*frame.Series, error) {
	return partitioned, nil
}
