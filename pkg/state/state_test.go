package state_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pg-sharding/colexec/pkg/config"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	mockprov "github.com/pg-sharding/colexec/pkg/mock/provenance"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/pg-sharding/colexec/pkg/state"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestForkClearsLocalCaches(t *testing.T) {
	assert := assert.New(t)

	st := state.New(context.Background())
	schema := frame.NewSchema(frame.NewField("a", frame.Int64))
	st.SetSchema(schema)
	st.GroupTuples().Put("k", frame.SingleGroup(1))
	st.SetActiveDF(uuid.New())

	forked := st.Fork()
	assert.Nil(forked.Schema())
	assert.Equal(0, forked.GroupTuples().Len())
	assert.Equal(st.ActiveDF(), forked.ActiveDF())

	cloned := st.Clone()
	assert.Equal(schema, cloned.Schema())
	assert.Equal(1, cloned.GroupTuples().Len())

	// the clone gets its own schema slot
	cloned.ClearSchemaCache()
	assert.Equal(schema, st.Schema())
}

func TestCancelIsShared(t *testing.T) {
	st := state.New(context.Background())
	forked := st.Fork()
	cloned := forked.Clone()
	assert.NoError(t, cloned.ShouldStop())

	st.Cancel()
	err := cloned.ShouldStop()
	assert.True(t, execerror.Is(err, execerror.EXEC_INTERRUPTED))
	assert.EqualError(t, err, "ComputeError: query interrupted")
}

func TestDFCacheIsShared(t *testing.T) {
	assert := assert.New(t)

	st := state.New(context.Background())
	forked := st.Fork()

	calls := 0
	compute := func() (*frame.DataFrame, error) {
		calls++
		return frame.New(frame.NewInt64("a", []int64{1}))
	}
	e1, hits := st.GetDFCache("c")
	assert.Equal(uint32(1), hits)
	_, err := e1.Get(compute)
	assert.NoError(err)

	e2, hits := forked.GetDFCache("c")
	assert.Equal(uint32(2), hits)
	df, err := e2.Get(compute)
	assert.NoError(err)
	assert.Equal(1, df.Height())
	assert.Equal(1, calls)

	forked.RemoveDFCache("c")
	assert.Equal(0, st.DFCacheLen())
}

func TestNodeTimer(t *testing.T) {
	st := state.New(context.Background())
	origin := time.Now()
	st.TimeNodes(origin)
	forked := st.Fork()

	_, err := forked.Record(func() (*frame.DataFrame, error) {
		return frame.Empty(), nil
	}, "filter")
	assert.NoError(t, err)
	assert.Equal(t, 1, st.NodeTimer().Len())

	_, ok := st.NodeTimer().Quantile("filter", 0.5)
	assert.True(t, ok)

	df, err := st.NodeTimer().Frame()
	assert.NoError(t, err)
	assert.Equal(t, []string{"node", "start", "end"}, df.Names())
}

func TestLastUsedGroupByIsMoved(t *testing.T) {
	st := state.New(context.Background())
	st.SetLastUsedGroupBy(&provenance.GroupsSnapshot{First: []frame.Idx{0}})
	assert.NotNil(t, st.TakeLastUsedGroupBy())
	assert.Nil(t, st.TakeLastUsedGroupBy())
}

func TestPrologueEpilogue(t *testing.T) {
	ctrl := gomock.NewController(t)
	v := mockprov.NewMockValidator(ctrl)

	session := provenance.NewSession(v, true)
	st := state.NewFromConfig(context.Background(), config.EngineConfig(), session)

	plan, snap, final := uuid.New(), uuid.New(), uuid.New()
	v.EXPECT().ExecutePrologue(gomock.Any(), session.CtxID, plan, uuid.Nil).Return(snap, nil)

	mask := []bool{true, false}
	v.EXPECT().ExecuteEpilogue(gomock.Any(), session.CtxID, snap, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, _ uuid.UUID, payload *provenance.Epilogue) (uuid.UUID, error) {
			assert.Equal(t, provenance.OpFilter, payload.Transform.Op)
			assert.Equal(t, mask, payload.Transform.Mask)
			return final, nil
		})

	assert.NoError(t, st.ExecutePrologue(plan))
	st.SetTransform(provenance.FilterTransform(mask))
	assert.NoError(t, st.ExecuteEpilogue(&provenance.SelectArg{}))
	assert.Equal(t, final, st.ActiveDF())
	assert.Nil(t, st.PendingTransform())
}

func TestProtocolSkippedWithoutPolicyCheck(t *testing.T) {
	ctrl := gomock.NewController(t)
	v := mockprov.NewMockValidator(ctrl)

	st := state.New(context.Background())
	st.SetSession(provenance.NewSession(v, false))
	st.SetTransform(provenance.ReorderTransform([]frame.Idx{0}))

	assert.NoError(t, st.ExecutePrologue(uuid.New()))
	assert.NoError(t, st.ExecuteEpilogue(&provenance.SelectArg{}))
	assert.Nil(t, st.PendingTransform())
}
