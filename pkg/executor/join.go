package executor

import (
	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/state"
)

type JoinExec struct {
	left     Executor
	right    Executor
	leftOn   []physexpr.PhysicalExpr
	rightOn  []physexpr.PhysicalExpr
	parallel bool
	args     engine.JoinArgs
	// set when a key expression holds a window
	hasWindows bool
	planID     uuid.UUID
}

func NewJoinExec(left, right Executor, leftOn, rightOn []physexpr.PhysicalExpr, parallel bool, args engine.JoinArgs, hasWindows bool, planID uuid.UUID) *JoinExec {
	return &JoinExec{
		left:       left,
		right:      right,
		leftOn:     leftOn,
		rightOn:    rightOn,
		parallel:   parallel,
		args:       args,
		hasWindows: hasWindows,
		planID:     planID,
	}
}

func (e *JoinExec) PlanID() uuid.UUID {
	return e.planID
}

// executeInputs runs both sides on forked states. It returns the frames
// together with the snapshot each branch ended on.
func (e *JoinExec) executeInputs(st *state.ExecutionState) (left, right *frame.DataFrame, lhs, rhs uuid.UUID, err error) {
	stLeft := st.Fork()
	stRight := st.Fork()
	stRight.SetBranchIdx(st.BranchIdx() + 1)

	runLeft := func() error {
		var err error
		left, err = e.left.Execute(stLeft)
		return execerror.FailedInput(err, "join left")
	}
	runRight := func() error {
		var err error
		right, err = e.right.Execute(stRight)
		return execerror.FailedInput(err, "join right")
	}

	if e.parallel {
		errLeft, errRight := st.Pool().Join(runLeft, runRight)
		if errLeft != nil {
			return nil, nil, uuid.Nil, uuid.Nil, errLeft
		}
		if errRight != nil {
			return nil, nil, uuid.Nil, uuid.Nil, errRight
		}
	} else {
		if err := runLeft(); err != nil {
			return nil, nil, uuid.Nil, uuid.Nil, err
		}
		if err := runRight(); err != nil {
			return nil, nil, uuid.Nil, uuid.Nil, err
		}
	}
	return left, right, stLeft.ActiveDF(), stRight.ActiveDF(), nil
}

// withKeys evaluates the key expressions and adds them to df so the join
// can refer to them by name.
func withKeys(df *frame.DataFrame, on []physexpr.PhysicalExpr, st *state.ExecutionState, hasWindows bool) (*frame.DataFrame, []string, error) {
	names := make([]string, len(on))
	err := withWindowFlag(st, hasWindows, func() error {
		for i, expr := range on {
			s, err := expr.Evaluate(df, st)
			if err != nil {
				return err
			}
			if df, err = df.WithColumn(s); err != nil {
				return err
			}
			names[i] = s.Name()
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return df, names, nil
}

func (e *JoinExec) Execute(st *state.ExecutionState) (*frame.DataFrame, error) {
	if err := st.ShouldStop(); err != nil {
		return nil, err
	}
	logStart(st, "JoinExec")
	if st.Verbose() {
		execlog.Zero.Debug().Bool("parallel", e.parallel).Msg("join")
	}

	left, right, lhs, rhs, err := e.executeInputs(st)
	if err != nil {
		return nil, err
	}
	if err := st.ExecutePrologue(e.planID); err != nil {
		return nil, err
	}

	name := ""
	if st.NodeTimer() != nil {
		name = profileName("join", e.leftOn, left.Schema())
	}
	out, err := st.Record(func() (*frame.DataFrame, error) {
		left, leftNames, err := withKeys(left, e.leftOn, st, e.hasWindows)
		if err != nil {
			return nil, err
		}
		right, rightNames, err := withKeys(right, e.rightOn, st, e.hasWindows)
		if err != nil {
			return nil, err
		}
		df, _, err := engine.JoinFrames(left, right, leftNames, rightNames, e.args)
		if err != nil {
			if st.Verbose() {
				execlog.Zero.Debug().Err(err).Msg("join failed")
			}
			return nil, err
		}
		if st.Verbose() {
			execlog.Zero.Debug().Str("how", e.args.How.String()).Msg("join dataframes finished")
		}
		return df, nil
	}, name)
	if err != nil {
		return nil, err
	}

	info := provenance.JoinTransform(lhs, rhs)
	st.SetTransform(info)
	if err := st.ExecuteEpilogue(&provenance.TransformArg{Info: *info}); err != nil {
		return nil, err
	}
	return markSnapshot(st, out), nil
}
