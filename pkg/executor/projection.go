package executor

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/state"
	"github.com/pg-sharding/colexec/pkg/threadpool"
)

// ProjectionExec replaces the column set with the evaluated expressions.
type ProjectionExec struct {
	input       Executor
	exprs       []physexpr.PhysicalExpr
	hasWindows  bool
	inputSchema *frame.Schema
	options     ir.ProjectionOptions
	streamable  bool
	planID      uuid.UUID
}

func NewProjectionExec(input Executor, exprs []physexpr.PhysicalExpr, hasWindows bool, inputSchema *frame.Schema, options ir.ProjectionOptions, streamable bool, planID uuid.UUID) *ProjectionExec {
	return &ProjectionExec{
		input:       input,
		exprs:       exprs,
		hasWindows:  hasWindows,
		inputSchema: inputSchema,
		options:     options,
		streamable:  streamable,
		planID:      planID,
	}
}

func (e *ProjectionExec) PlanID() uuid.UUID {
	return e.planID
}

func (e *ProjectionExec) project(df *frame.DataFrame, st *state.ExecutionState) (*frame.DataFrame, error) {
	cols, err := evaluatePhysicalExpressions(df, e.exprs, st, e.hasWindows, e.options.RunParallel)
	if err != nil {
		return nil, err
	}
	return CheckExpandLiterals(cols, df.Height() == 0, e.options.DuplicateCheck)
}

func (e *ProjectionExec) executeImpl(df *frame.DataFrame, st *state.ExecutionState) (*frame.DataFrame, error) {
	if e.streamable && e.options.RunParallel && df.NChunks() > 1 && df.Height() > 0 {
		chunks := df.SplitChunks()
		parts, err := threadpool.ParMap(st.Pool(), len(chunks), func(i int) (*frame.DataFrame, error) {
			return e.project(chunks[i], st)
		})
		if err != nil {
			return nil, err
		}
		return frame.ConcatFrames(parts)
	}
	return e.project(df, st)
}

func (e *ProjectionExec) Execute(st *state.ExecutionState) (*frame.DataFrame, error) {
	if err := st.ShouldStop(); err != nil {
		return nil, err
	}
	logStart(st, "ProjectionExec")

	df, err := e.input.Execute(st)
	if err != nil {
		return nil, err
	}
	if err := st.ExecutePrologue(e.planID); err != nil {
		return nil, err
	}

	name := ""
	if st.NodeTimer() != nil {
		name = profileName("select", e.exprs, e.inputSchema)
	}
	out, err := st.Record(func() (*frame.DataFrame, error) {
		return e.executeImpl(df, st)
	}, name)
	if err != nil {
		return nil, err
	}

	if err := st.ExecuteEpilogue(&provenance.ProjectionArg{Exprs: exprIDs(e.exprs)}); err != nil {
		return nil, err
	}
	if !st.PolicyCheck() {
		out.SetUUID(df.UUID())
		return out, nil
	}
	return markSnapshot(st, out), nil
}

// StackExec adds the evaluated expressions to the input, replacing columns
// with the same name.
type StackExec struct {
	input       Executor
	exprs       []physexpr.PhysicalExpr
	hasWindows  bool
	inputSchema *frame.Schema
	options     ir.ProjectionOptions
	planID      uuid.UUID
}

func NewStackExec(input Executor, exprs []physexpr.PhysicalExpr, hasWindows bool, inputSchema *frame.Schema, options ir.ProjectionOptions, planID uuid.UUID) *StackExec {
	return &StackExec{
		input:       input,
		exprs:       exprs,
		hasWindows:  hasWindows,
		inputSchema: inputSchema,
		options:     options,
		planID:      planID,
	}
}

func (e *StackExec) PlanID() uuid.UUID {
	return e.planID
}

func (e *StackExec) executeImpl(df *frame.DataFrame, st *state.ExecutionState) (*frame.DataFrame, error) {
	cols, err := evaluatePhysicalExpressions(df, e.exprs, st, e.hasWindows, e.options.RunParallel)
	if err != nil {
		return nil, err
	}
	if e.options.DuplicateCheck {
		seen := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			if _, ok := seen[c.Name()]; ok {
				return nil, execerror.Newf(execerror.EXEC_COMPUTE,
					"column with name '%s' has more than one occurrence", c.Name())
			}
			seen[c.Name()] = struct{}{}
		}
	}
	out := df
	for _, c := range cols {
		if c.Len() == 1 && df.Height() != 1 {
			c = c.NewFromIndex(0, df.Height())
		}
		if out, err = out.WithColumn(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *StackExec) Execute(st *state.ExecutionState) (*frame.DataFrame, error) {
	if err := st.ShouldStop(); err != nil {
		return nil, err
	}
	logStart(st, "StackExec")

	df, err := e.input.Execute(st)
	if err != nil {
		return nil, err
	}
	if err := st.ExecutePrologue(e.planID); err != nil {
		return nil, err
	}

	name := ""
	if st.NodeTimer() != nil {
		name = profileName("with_column", e.exprs, e.inputSchema)
	}
	out, err := st.Record(func() (*frame.DataFrame, error) {
		return e.executeImpl(df, st)
	}, name)
	if err != nil {
		return nil, err
	}

	if err := st.ExecuteEpilogue(&provenance.HstackArg{Exprs: exprIDs(e.exprs)}); err != nil {
		return nil, err
	}
	return markSnapshot(st, out), nil
}
