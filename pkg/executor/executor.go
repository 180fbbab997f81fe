package executor

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/state"
	"github.com/pg-sharding/colexec/pkg/threadpool"
)

// Executor produces a frame out of its inputs. Execute is called once;
// on failure no partial frame is returned.
type Executor interface {
	Execute(st *state.ExecutionState) (*frame.DataFrame, error)

	// PlanID is the id the validator assigned when the operator was
	// registered, uuid.Nil when policy checking is off.
	PlanID() uuid.UUID
}

var (
	_ Executor = &DataFrameExec{}
	_ Executor = &SourceExec{}
	_ Executor = &FilterExec{}
	_ Executor = &ProjectionExec{}
	_ Executor = &StackExec{}
	_ Executor = &GroupByExec{}
	_ Executor = &SortExec{}
	_ Executor = &JoinExec{}
	_ Executor = &CacheExec{}
	_ Executor = &Dummy{}
)

// Dummy stands in for nodes that must never run.
type Dummy struct{}

func (*Dummy) Execute(*state.ExecutionState) (*frame.DataFrame, error) {
	return nil, execerror.New(execerror.EXEC_INVALID_OPERATION, "dummy executor must not be executed")
}

func (*Dummy) PlanID() uuid.UUID {
	return uuid.Nil
}

func exprIDs(exprs []physexpr.PhysicalExpr) []uuid.UUID {
	ids := make([]uuid.UUID, len(exprs))
	for i, e := range exprs {
		ids[i] = e.ID()
	}
	return ids
}

// profileName renders "<op>(a, b)" for the node timer.
func profileName(op string, exprs []physexpr.PhysicalExpr, schema *frame.Schema) string {
	names := make([]string, 0, len(exprs))
	for _, e := range exprs {
		f, err := e.ToField(schema)
		if err != nil {
			names = append(names, "?")
			continue
		}
		names = append(names, f.Name)
	}
	return op + "(" + strings.Join(names, ", ") + ")"
}

// markSnapshot stamps the active snapshot on the operator output.
func markSnapshot(st *state.ExecutionState, df *frame.DataFrame) *frame.DataFrame {
	if !st.PolicyCheck() {
		return df
	}
	out := frame.NewUnchecked(df.Columns())
	out.SetUUID(st.ActiveDF())
	return out
}

func withWindowFlag(st *state.ExecutionState, hasWindows bool, fn func() error) error {
	if !hasWindows {
		return fn()
	}
	st.SetFlags(func(f state.StateFlags) state.StateFlags { return f | state.HAS_WINDOW })
	defer func() {
		st.SetFlags(func(f state.StateFlags) state.StateFlags { return f &^ state.HAS_WINDOW })
		st.ClearWindowExprCache()
	}()
	return fn()
}

// evaluatePhysicalExpressions evaluates exprs against df. Window
// expressions share the state caches and always run in order.
func evaluatePhysicalExpressions(df *frame.DataFrame, exprs []physexpr.PhysicalExpr, st *state.ExecutionState, hasWindows, runParallel bool) ([]*frame.Series, error) {
	var out []*frame.Series
	err := withWindowFlag(st, hasWindows, func() error {
		var err error
		if runParallel && !hasWindows && len(exprs) > 1 {
			out, err = threadpool.ParMap(st.Pool(), len(exprs), func(i int) (*frame.Series, error) {
				return exprs[i].Evaluate(df, st)
			})
			return err
		}
		out = make([]*frame.Series, len(exprs))
		for i, e := range exprs {
			if out[i], err = e.Evaluate(df, st); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// CheckExpandLiterals assembles selected columns into a frame. Length one
// columns are broadcast to the frame height, other length mismatches fail.
// A zero height input keeps a zero height output even if literals were
// selected.
func CheckExpandLiterals(cols []*frame.Series, zeroHeight, duplicateCheck bool) (*frame.DataFrame, error) {
	if len(cols) == 0 {
		return frame.Empty(), nil
	}
	height := 0
	equal := true
	seen := make(map[string]struct{}, len(cols))
	for _, s := range cols {
		if s.Len() > height {
			height = s.Len()
		}
		if s.Len() != cols[0].Len() {
			equal = false
		}
		if duplicateCheck {
			if _, ok := seen[s.Name()]; ok {
				return nil, execerror.Newf(execerror.EXEC_COMPUTE,
					"column with name '%s' has more than one occurrence", s.Name())
			}
			seen[s.Name()] = struct{}{}
		}
	}

	if !equal {
		expanded := make([]*frame.Series, len(cols))
		for i, s := range cols {
			switch {
			case s.Len() == 1 && height > 1:
				expanded[i] = s.NewFromIndex(0, height)
			case s.Len() == height || s.Len() == 0:
				expanded[i] = s
			default:
				return nil, execerror.Newf(execerror.EXEC_COMPUTE,
					"series length %d doesn't match the DataFrame height of %d", s.Len(), height)
			}
		}
		cols = expanded
	}

	df := frame.NewUnchecked(cols)
	if zeroHeight {
		df = df.Head(0)
	}
	return df, nil
}

func logStart(st *state.ExecutionState, op string) {
	if st.Verbose() {
		execlog.Zero.Debug().Int("branch", st.BranchIdx()).Msgf("run %s", op)
	}
}
