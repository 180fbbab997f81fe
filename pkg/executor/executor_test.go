package executor_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/executor"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/ir"
	mockprov "github.com/pg-sharding/colexec/pkg/mock/provenance"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/physexpr"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func col(name string) physexpr.PhysicalExpr {
	return physexpr.NewColumnExpr(name, nil, uuid.Nil)
}

func memScan(df *frame.DataFrame, projection ...string) executor.Executor {
	return executor.NewDataFrameExec(df, nil, projection, nil, false, nil, uuid.Nil)
}

func checkedState(v provenance.Validator) *state.ExecutionState {
	st := state.New(context.Background())
	st.SetSession(provenance.NewSession(v, true))
	return st
}

func lastEpilogue(t *testing.T, v *provenance.LocalValidator) *provenance.Epilogue {
	t.Helper()
	events := v.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == provenance.EventEpilogue {
			return events[i].Payload
		}
	}
	require.FailNow(t, "no epilogue recorded")
	return nil
}

func TestFilter(t *testing.T) {
	assert := assert.New(t)

	df, err := frame.New(
		frame.NewInt64("v", []int64{10, 20, 30, 40, 50}),
		frame.NewBool("keep", []bool{true, false, true, true, false}),
	)
	require.NoError(t, err)

	v := provenance.NewLocalValidator()
	st := checkedState(v)
	out, err := executor.NewFilterExec(col("keep"), memScan(df), false, true, uuid.Nil).Execute(st)
	require.NoError(t, err)

	vs, err := out.Column("v")
	require.NoError(t, err)
	assert.Equal([]any{int64(10), int64(30), int64(40)}, vs.Values())

	p := lastEpilogue(t, v)
	assert.Equal(provenance.KindSelect, p.Arg.Kind())
	require.NotNil(t, p.Transform)
	assert.Equal(provenance.OpFilter, p.Transform.Op)
	assert.Equal([]bool{true, false, true, true, false}, p.Transform.Mask)
	assert.Equal(st.ActiveDF(), out.UUID())
	assert.Nil(st.PendingTransform())
}

func TestFilterRejectsNonBoolean(t *testing.T) {
	df, err := frame.New(frame.NewInt64("v", []int64{1, 2}))
	require.NoError(t, err)

	_, err = executor.NewFilterExec(col("v"), memScan(df), false, true, uuid.Nil).Execute(state.New(context.Background()))
	assert.EqualError(t, err, "ComputeError: filter predicate must be of type `Boolean`, got `i64`")
}

func TestFilterChunksConcatStable(t *testing.T) {
	const n = 20
	values := make([]int64, n)
	keep := make([]bool, n)
	var want []any
	for i := range values {
		values[i] = int64(i)
		keep[i] = i%3 != 0
		if keep[i] {
			want = append(want, int64(i))
		}
	}

	for chunks := 1; chunks <= 4; chunks++ {
		lens := make([]int, chunks)
		for i := range lens {
			lens[i] = n / chunks
		}
		lens[chunks-1] += n % chunks

		vs, err := frame.NewInt64("v", values).WithChunks(lens)
		require.NoError(t, err)
		ks, err := frame.NewBool("keep", keep).WithChunks(lens)
		require.NoError(t, err)
		df, err := frame.New(vs, ks)
		require.NoError(t, err)

		v := provenance.NewLocalValidator()
		out, err := executor.NewFilterExec(col("keep"), memScan(df), false, true, uuid.Nil).Execute(checkedState(v))
		require.NoError(t, err)

		got, err := out.Column("v")
		require.NoError(t, err)
		if diff := cmp.Diff(want, got.Values()); diff != "" {
			t.Errorf("chunks=%d: filtered values mismatch (-want +got):\n%s", chunks, diff)
		}
		assert.Equal(t, keep, lastEpilogue(t, v).Transform.Mask, "chunks=%d", chunks)
	}
}

func TestGroupBySum(t *testing.T) {
	assert := assert.New(t)

	df, err := frame.New(
		frame.NewString("k", []string{"a", "a", "b"}),
		frame.NewInt64("v", []int64{1, 2, 3}),
	)
	require.NoError(t, err)

	v := provenance.NewLocalValidator()
	st := checkedState(v)
	sum := physexpr.NewAggregationExpr(col("v"), engine.MethodSum, uuid.Nil)
	exec := executor.NewGroupByExec(memScan(df), []physexpr.PhysicalExpr{col("k")}, []physexpr.PhysicalExpr{sum},
		nil, true, df.Schema(), nil, false, uuid.Nil)

	out, err := exec.Execute(st)
	require.NoError(t, err)

	keys, err := out.Column("k")
	require.NoError(t, err)
	sums, err := out.Column("v")
	require.NoError(t, err)
	assert.Equal([]any{"a", "b"}, keys.Values())
	assert.Equal([]any{int64(3), int64(3)}, sums.Values())

	arg, ok := lastEpilogue(t, v).Arg.(*provenance.AggregateArg)
	require.True(t, ok)
	assert.Equal([]frame.Idx{0, 2}, arg.Groups.First)
	assert.Equal([][]frame.Idx{{0, 1}, {2}}, arg.Groups.All)
	assert.Len(arg.Schema, 2)
}

func TestGroupByApply(t *testing.T) {
	df, err := frame.New(
		frame.NewString("k", []string{"a", "b", "a"}),
		frame.NewInt64("v", []int64{1, 2, 3}),
	)
	require.NoError(t, err)

	firstRow := func(df *frame.DataFrame) (*frame.DataFrame, error) {
		return df.Head(1), nil
	}
	exec := executor.NewGroupByExec(memScan(df), []physexpr.PhysicalExpr{col("k")}, nil,
		firstRow, true, df.Schema(), nil, false, uuid.Nil)
	out, err := exec.Execute(state.New(context.Background()))
	require.NoError(t, err)

	vs, err := out.Column("v")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, vs.Values())
}

func TestSortReportsPermutation(t *testing.T) {
	assert := assert.New(t)

	df, err := frame.New(frame.NewInt64("v", []int64{3, 1, 2}))
	require.NoError(t, err)

	v := provenance.NewLocalValidator()
	exec := executor.NewSortExec(memScan(df), []physexpr.PhysicalExpr{col("v")}, nil, engine.SortMultipleOptions{}, false, uuid.Nil)
	out, err := exec.Execute(checkedState(v))
	require.NoError(t, err)

	vs, err := out.Column("v")
	require.NoError(t, err)
	assert.Equal([]any{int64(1), int64(2), int64(3)}, vs.Values())

	p := lastEpilogue(t, v)
	assert.Equal(provenance.KindTransform, p.Arg.Kind())
	assert.Equal([]frame.Idx{1, 2, 0}, p.Transform.Perm)
	assert.Equal(df.Gather(p.Transform.Perm).Columns()[0].Values(), vs.Values())
}

func TestJoinProvenance(t *testing.T) {
	for _, tt := range []struct {
		name     string
		parallel bool
	}{
		{name: "sequential", parallel: false},
		{name: "parallel", parallel: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			ctrl := gomock.NewController(t)

			left, err := frame.New(
				frame.NewInt64("id", []int64{1, 2, 3}),
				frame.NewInt64("l", []int64{10, 20, 30}),
			)
			require.NoError(t, err)
			right, err := frame.New(
				frame.NewInt64("id", []int64{2, 3, 4}),
				frame.NewInt64("r", []int64{200, 300, 400}),
			)
			require.NoError(t, err)

			lhsID, rhsID, joinID := uuid.New(), uuid.New(), uuid.New()
			var mu sync.Mutex
			var recorded *provenance.TransformInfo

			v := mockprov.NewMockValidator(ctrl)
			v.EXPECT().ExecuteEpilogue(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, _ uuid.UUID, _ uuid.UUID, p *provenance.Epilogue) (uuid.UUID, error) {
					switch arg := p.Arg.(type) {
					case *provenance.GetDataArg:
						if arg.ProjectList[1] == "l" {
							return lhsID, nil
						}
						return rhsID, nil
					case *provenance.TransformArg:
						mu.Lock()
						defer mu.Unlock()
						recorded = p.Transform
						return joinID, nil
					}
					return uuid.Nil, execerror.New(execerror.EXEC_VALIDATOR, "unexpected epilogue")
				}).Times(3)

			st := checkedState(v)
			exec := executor.NewJoinExec(
				memScan(left, "id", "l"), memScan(right, "id", "r"),
				[]physexpr.PhysicalExpr{col("id")}, []physexpr.PhysicalExpr{col("id")},
				tt.parallel, engine.JoinArgs{How: engine.JoinInner}, false, uuid.Nil)

			out, err := exec.Execute(st)
			require.NoError(t, err)

			require.NotNil(t, recorded)
			assert.Equal(provenance.OpJoin, recorded.Op)
			assert.Equal(lhsID, recorded.Lhs)
			assert.Equal(rhsID, recorded.Rhs)
			assert.Equal(joinID, st.ActiveDF())
			assert.Equal(joinID, out.UUID())

			assert.Equal([]string{"id", "l", "r"}, out.Names())
			ids, err := out.Column("id")
			require.NoError(t, err)
			assert.Equal([]any{int64(2), int64(3)}, ids.Values())
		})
	}
}

func TestCancellation(t *testing.T) {
	assert := assert.New(t)

	df, err := frame.New(frame.NewBool("keep", []bool{true}))
	require.NoError(t, err)

	st := state.New(context.Background())
	branch := st.Fork()
	st.Cancel()

	for _, exec := range []executor.Executor{
		memScan(df),
		executor.NewFilterExec(col("keep"), memScan(df), false, true, uuid.Nil),
		executor.NewSortExec(memScan(df), []physexpr.PhysicalExpr{col("keep")}, nil, engine.SortMultipleOptions{}, false, uuid.Nil),
	} {
		out, err := exec.Execute(branch)
		assert.Nil(out)
		assert.True(execerror.Is(err, execerror.EXEC_INTERRUPTED))
		assert.EqualError(err, "ComputeError: query interrupted")
	}
}

func TestProjectionBroadcastsLiterals(t *testing.T) {
	assert := assert.New(t)

	df, err := frame.New(frame.NewInt64("v", []int64{1, 2, 3}))
	require.NoError(t, err)

	exec := executor.NewProjectionExec(memScan(df), []physexpr.PhysicalExpr{
		col("v"),
		physexpr.NewAliasExpr(physexpr.NewLiteralExpr(frame.NewInt64(ir.LiteralName, []int64{7})), "seven"),
	}, false, df.Schema(), ir.DefaultProjectionOptions(), true, uuid.Nil)

	out, err := exec.Execute(state.New(context.Background()))
	require.NoError(t, err)
	assert.Equal([]string{"v", "seven"}, out.Names())
	seven, err := out.Column("seven")
	require.NoError(t, err)
	assert.Equal([]any{int64(7), int64(7), int64(7)}, seven.Values())
}

func TestStackReplacesAndAppends(t *testing.T) {
	assert := assert.New(t)

	df, err := frame.New(
		frame.NewInt64("a", []int64{1, 2}),
		frame.NewInt64("b", []int64{3, 4}),
	)
	require.NoError(t, err)

	exec := executor.NewStackExec(memScan(df), []physexpr.PhysicalExpr{
		physexpr.NewAliasExpr(physexpr.NewBinaryExpr(col("a"), engine.Plus, col("b"), false), "a"),
		physexpr.NewAliasExpr(col("b"), "c"),
	}, false, df.Schema(), ir.DefaultProjectionOptions(), uuid.Nil)

	out, err := exec.Execute(state.New(context.Background()))
	require.NoError(t, err)
	assert.Equal([]string{"a", "b", "c"}, out.Names())
	a, err := out.Column("a")
	require.NoError(t, err)
	assert.Equal([]any{int64(4), int64(6)}, a.Values())
}

func TestCheckExpandLiterals(t *testing.T) {
	for _, tt := range []struct {
		name       string
		cols       []*frame.Series
		zeroHeight bool
		dupCheck   bool
		height     int
		err        string
	}{
		{
			name:   "broadcast",
			cols:   []*frame.Series{frame.NewInt64("a", []int64{1, 2, 3}), frame.NewInt64("b", []int64{9})},
			height: 3,
		},
		{
			name: "mismatch",
			cols: []*frame.Series{frame.NewInt64("a", []int64{1, 2, 3}), frame.NewInt64("b", []int64{1, 2})},
			err:  "ComputeError: series length 2 doesn't match the DataFrame height of 3",
		},
		{
			name:     "duplicate",
			cols:     []*frame.Series{frame.NewInt64("a", []int64{1}), frame.NewInt64("a", []int64{2})},
			dupCheck: true,
			err:      "ComputeError: column with name 'a' has more than one occurrence",
		},
		{
			name:     "duplicate allowed",
			cols:     []*frame.Series{frame.NewInt64("a", []int64{1}), frame.NewInt64("a", []int64{2})},
			dupCheck: false,
			height:   1,
		},
		{
			name:       "zero height keeps literals empty",
			cols:       []*frame.Series{frame.NewInt64("a", nil), frame.NewInt64("b", []int64{9})},
			zeroHeight: true,
			height:     0,
		},
		{
			name:       "zero height with only literals",
			cols:       []*frame.Series{frame.NewInt64("a", []int64{7}), frame.NewString("b", []string{"x"})},
			zeroHeight: true,
			height:     0,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			df, err := executor.CheckExpandLiterals(tt.cols, tt.zeroHeight, tt.dupCheck)
			if tt.err != "" {
				assert.EqualError(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.height, df.Height())
		})
	}
}

type countingExec struct {
	df    *frame.DataFrame
	calls int
}

func (c *countingExec) Execute(*state.ExecutionState) (*frame.DataFrame, error) {
	c.calls++
	return c.df, nil
}

func (c *countingExec) PlanID() uuid.UUID {
	return uuid.Nil
}

func TestCacheExec(t *testing.T) {
	assert := assert.New(t)

	df, err := frame.New(frame.NewInt64("v", []int64{1}))
	require.NoError(t, err)
	input := &countingExec{df: df}
	st := state.New(context.Background())

	for i := 0; i < 2; i++ {
		out, err := executor.NewCacheExec(input, "c1", 2).Execute(st.Fork())
		require.NoError(t, err)
		assert.True(df.Equal(out))
	}
	assert.Equal(1, input.calls)
	assert.Equal(0, st.DFCacheLen())
}

func TestDummy(t *testing.T) {
	_, err := (&executor.Dummy{}).Execute(state.New(context.Background()))
	assert.True(t, execerror.Is(err, execerror.EXEC_INVALID_OPERATION))
}

func TestProjectionOfLiteralsOverEmptyInput(t *testing.T) {
	assert := assert.New(t)

	df, err := frame.New(frame.NewInt64("v", nil))
	require.NoError(t, err)

	exec := executor.NewProjectionExec(memScan(df), []physexpr.PhysicalExpr{
		physexpr.NewAliasExpr(physexpr.NewLiteralExpr(frame.NewInt64(ir.LiteralName, []int64{7})), "seven"),
	}, false, df.Schema(), ir.DefaultProjectionOptions(), true, uuid.Nil)

	out, err := exec.Execute(state.New(context.Background()))
	require.NoError(t, err)
	assert.Equal(0, out.Height())
	seven, err := out.Column("seven")
	require.NoError(t, err)
	assert.Equal(frame.Int64, seven.Dtype())
}

// spanCapture remembers the span active while it is evaluated.
type spanCapture struct {
	physexpr.PhysicalExpr
	span opentracing.Span
}

func (c *spanCapture) Evaluate(df *frame.DataFrame, st *state.ExecutionState) (*frame.Series, error) {
	c.span = opentracing.SpanFromContext(st.Context())
	return c.PhysicalExpr.Evaluate(df, st)
}

func TestOperatorSpanVisibleToExpressions(t *testing.T) {
	tracer := mocktracer.New()
	prev := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(tracer)
	defer opentracing.SetGlobalTracer(prev)

	df, err := frame.New(
		frame.NewInt64("v", []int64{3, 1, 2}),
		frame.NewBool("keep", []bool{true, false, true}),
	)
	require.NoError(t, err)

	for _, tt := range []struct {
		name string
		exec func(expr physexpr.PhysicalExpr) executor.Executor
	}{
		{
			name: "filter",
			exec: func(expr physexpr.PhysicalExpr) executor.Executor {
				return executor.NewFilterExec(expr, memScan(df), false, false, uuid.Nil)
			},
		},
		{
			name: "sort",
			exec: func(expr physexpr.PhysicalExpr) executor.Executor {
				return executor.NewSortExec(memScan(df), []physexpr.PhysicalExpr{expr}, nil, engine.SortMultipleOptions{}, false, uuid.Nil)
			},
		},
		{
			name: "select",
			exec: func(expr physexpr.PhysicalExpr) executor.Executor {
				return executor.NewProjectionExec(memScan(df), []physexpr.PhysicalExpr{expr}, false, df.Schema(),
					ir.DefaultProjectionOptions(), false, uuid.Nil)
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tracer.Reset()
			capture := &spanCapture{PhysicalExpr: col("keep")}
			_, err := tt.exec(capture).Execute(state.New(context.Background()))
			require.NoError(t, err)

			require.NotNil(t, capture.span)
			finished := tracer.FinishedSpans()
			require.Len(t, finished, 1)
			got := capture.span.(*mocktracer.MockSpan)
			assert.Equal(t, finished[0].SpanContext.SpanID, got.SpanContext.SpanID)
		})
	}
}
