package provenance_test

import (
	"context"
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/config"
	"github.com/pg-sharding/colexec/pkg/engine"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func TestAggMethodFor(t *testing.T) {
	for _, tt := range []struct {
		in      engine.GroupByMethod
		want    provenance.AggMethod
		wantErr bool
	}{
		{in: engine.MethodSum, want: provenance.AggSum},
		{in: engine.MethodMean, want: provenance.AggMean},
		{in: engine.MethodCount, want: provenance.AggLen},
		{in: engine.MethodNUnique, want: provenance.AggMin},
		{in: engine.MethodMedian, wantErr: true},
	} {
		got, err := provenance.AggMethodFor(tt.in)
		if tt.wantErr {
			assert.EqualError(t, err, "ValidatorError: Aggregation method not supported")
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestSessionDisabled(t *testing.T) {
	s := provenance.NewSession(provenance.NewLocalValidator(), false)
	id, err := s.BuildPlan(context.Background(), &provenance.SelectArg{})
	assert.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)
	assert.False(t, s.Enabled())
}

func TestLocalValidatorLineage(t *testing.T) {
	ctx := context.Background()
	v := provenance.NewLocalValidator()
	s := provenance.NewSession(v, true)

	col, err := s.BuildExpr(ctx, &provenance.ColumnExpr{Name: "a"})
	require.NoError(t, err)
	plan, err := s.BuildPlan(ctx, &provenance.SelectArg{Predicate: col})
	require.NoError(t, err)

	snap, err := v.ExecutePrologue(ctx, s.CtxID, plan, uuid.Nil)
	require.NoError(t, err)
	next, err := v.ExecuteEpilogue(ctx, s.CtxID, snap, &provenance.Epilogue{
		Arg:       &provenance.SelectArg{Predicate: col},
		Transform: provenance.FilterTransform([]bool{true, false}),
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{snap}, v.Parents(next))

	joined, err := v.ExecuteEpilogue(ctx, s.CtxID, next, &provenance.Epilogue{
		Transform: provenance.JoinTransform(snap, next),
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{snap, next}, v.Parents(joined))
	assert.Len(t, v.Events(), 5)
}

func TestLocalValidatorRejects(t *testing.T) {
	ctx := context.Background()
	v := provenance.NewLocalValidator()
	ctxID := uuid.New()

	_, err := v.BuildExpr(ctx, ctxID, &provenance.AggExpr{Input: uuid.New(), Method: provenance.AggSum})
	assert.True(t, execerror.Is(err, execerror.EXEC_VALIDATOR))

	_, err = v.ExecutePrologue(ctx, ctxID, uuid.New(), uuid.Nil)
	assert.Error(t, err)

	_, err = v.ExecuteEpilogue(ctx, ctxID, uuid.Nil, &provenance.Epilogue{
		Transform: provenance.ReorderTransform([]frame.Idx{0, 1, 1}),
	})
	assert.ErrorContains(t, err, "permutation repeats row 1")

	_, err = v.ExecuteEpilogue(ctx, ctxID, uuid.Nil, &provenance.Epilogue{
		Transform: provenance.JoinTransform(uuid.New(), uuid.Nil),
	})
	assert.Error(t, err)

	_, err = v.ExecuteEpilogue(ctx, ctxID, uuid.Nil, &provenance.Epilogue{
		Arg: &provenance.AggregateArg{Groups: provenance.GroupsSnapshot{
			First: []frame.Idx{0, 1},
			All:   [][]frame.Idx{{0, 1}, {1}},
		}},
	})
	assert.ErrorContains(t, err, "more than one group")
}

func TestEpilogueJSON(t *testing.T) {
	in := &provenance.Epilogue{
		Arg: &provenance.AggregateArg{
			Keys:   []uuid.UUID{uuid.New()},
			Groups: provenance.GroupsSnapshot{First: []frame.Idx{0}, All: [][]frame.Idx{{0, 1}}},
			Schema: []frame.Field{frame.NewField("k", frame.String)},
		},
		Transform: provenance.ReorderTransform([]frame.Idx{1, 0}),
	}
	data, err := in.MarshalJSON()
	require.NoError(t, err)

	out := &provenance.Epilogue{}
	require.NoError(t, out.UnmarshalJSON(data))
	assert.Equal(t, in, out)
}

func TestGRPCValidatorRoundTrip(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	local := provenance.NewLocalValidator()
	provenance.RegisterValidatorServer(srv, local)
	go func() {
		_ = srv.Serve(lis)
	}()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	cfg := config.DefaultEngine().Validator
	// force the compressed path
	cfg.CompressThreshold = 1
	remote := provenance.NewGRPCValidator(conn, &cfg)

	ctx := context.Background()
	ctxID := uuid.New()
	col, err := remote.BuildExpr(ctx, ctxID, &provenance.ColumnExpr{Name: "v"})
	require.NoError(t, err)
	agg, err := remote.BuildExpr(ctx, ctxID, &provenance.AggExpr{Input: col, Method: provenance.AggSum})
	require.NoError(t, err)
	require.NoError(t, remote.ReifyExpression(ctx, ctxID, agg, []byte{1, 2, 3}))

	got, ok := local.Reified(agg)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got)

	plan, err := remote.BuildPlan(ctx, ctxID, &provenance.HstackArg{Exprs: []uuid.UUID{agg}})
	require.NoError(t, err)
	snap, err := remote.ExecutePrologue(ctx, ctxID, plan, uuid.Nil)
	require.NoError(t, err)
	_, err = remote.ExecuteEpilogue(ctx, ctxID, snap, &provenance.Epilogue{Arg: &provenance.HstackArg{Exprs: []uuid.UUID{agg}}})
	require.NoError(t, err)

	_, err = remote.ExecutePrologue(ctx, ctxID, uuid.New(), uuid.Nil)
	assert.True(t, execerror.Is(err, execerror.EXEC_VALIDATOR))
}
