package frame_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesFilter(t *testing.T) {
	assert := assert.New(t)

	s := frame.NewInt64("a", []int64{10, 20, 30, 40, 50})
	mask := frame.NewBool("m", []bool{true, false, true, true, false})

	out, err := s.Filter(mask)
	assert.NoError(err)
	assert.Equal([]any{int64(10), int64(30), int64(40)}, out.Values())

	_, err = s.Filter(frame.NewInt64("m", []int64{1}))
	assert.True(execerror.Is(err, execerror.EXEC_COMPUTE))
}

func TestSeriesSliceKeepsChunks(t *testing.T) {
	assert := assert.New(t)

	a := frame.NewInt64("a", []int64{1, 2, 3})
	b := frame.NewInt64("a", []int64{4, 5})
	s, err := a.Append(b)
	require.NoError(t, err)
	assert.Equal(2, s.NChunks())

	sl := s.Slice(2, 2)
	assert.Equal([]int{1, 1}, sl.ChunkLens())
	assert.Equal([]any{int64(3), int64(4)}, sl.Values())

	tail := s.Slice(-1, 5)
	assert.Equal([]any{int64(5)}, tail.Values())

	parts := s.SplitChunks()
	assert.Len(parts, 2)
	assert.Equal(3, parts[0].Len())
}

func TestFromValuesAndNulls(t *testing.T) {
	assert := assert.New(t)

	s, err := frame.FromValues("x", frame.Float64, []any{1.5, nil, 3})
	require.NoError(t, err)
	assert.Equal(1, s.NullCount())
	assert.Nil(s.Get(1))
	assert.Equal(3.0, s.Get(2))

	_, err = frame.FromValues("x", frame.Boolean, []any{"yes"})
	assert.Error(err)
}

func TestCast(t *testing.T) {
	for _, tt := range []struct {
		name    string
		in      *frame.Series
		to      frame.DataType
		strict  bool
		want    []any
		wantErr bool
	}{
		{
			name: "int to float",
			in:   frame.NewInt64("a", []int64{1, 2}),
			to:   frame.Float64,
			want: []any{1.0, 2.0},
		},
		{
			name: "string to int lenient",
			in:   frame.NewString("a", []string{"1", "x"}),
			to:   frame.Int64,
			want: []any{int64(1), nil},
		},
		{
			name:    "string to int strict",
			in:      frame.NewString("a", []string{"1", "x"}),
			to:      frame.Int64,
			strict:  true,
			wantErr: true,
		},
		{
			name: "overflow i32",
			in:   frame.NewInt64("a", []int64{1 << 40}),
			to:   frame.Int32,
			want: []any{nil},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.in.Cast(tt.to, tt.strict)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, out.Dtype())
			assert.Equal(t, tt.want, out.Values())
		})
	}
}

func TestDataFrameBasics(t *testing.T) {
	assert := assert.New(t)

	df, err := frame.New(
		frame.NewString("k", []string{"a", "a", "b"}),
		frame.NewInt64("v", []int64{1, 2, 3}),
	)
	require.NoError(t, err)
	assert.Equal(3, df.Height())
	assert.Equal([]string{"k", "v"}, df.Names())

	_, err = frame.New(frame.NewInt64("a", []int64{1}), frame.NewInt64("a", []int64{2}))
	assert.Error(err)

	_, err = df.Column("zzz")
	assert.True(execerror.Is(err, execerror.EXEC_COLUMN_NOT_FOUND))

	withLit, err := df.WithColumn(frame.NewInt64("lit", []int64{7}))
	require.NoError(t, err)
	lit, _ := withLit.Column("lit")
	assert.Equal([]any{int64(7), int64(7), int64(7)}, lit.Values())

	_, err = df.HStack([]*frame.Series{frame.NewInt64("v", []int64{1, 2, 3})}, true)
	assert.Error(err)
}

func TestSplitAndConcatIsStable(t *testing.T) {
	vals := make([]int64, 17)
	for i := range vals {
		vals[i] = int64(i)
	}
	df, err := frame.New(frame.NewInt64("a", vals))
	require.NoError(t, err)

	for n := 1; n <= 8; n++ {
		parts := df.SplitByN(n)
		out, err := frame.ConcatFrames(parts)
		require.NoError(t, err)
		col, _ := out.Column("a")
		if diff := cmp.Diff(vals, mustInt64(t, col)); diff != "" {
			t.Fatalf("n=%d mismatch (-want +got):\n%s", n, diff)
		}
		assert.Equal(t, len(parts), out.NChunks())
	}
}

func mustInt64(t *testing.T, s *frame.Series) []int64 {
	v, err := s.Int64()
	require.NoError(t, err)
	return v
}

func TestGroupsPartition(t *testing.T) {
	assert := assert.New(t)

	g := frame.GroupsFromAll([][]frame.Idx{{0, 1}, {2}})
	assert.NoError(g.CheckPartition(3))
	assert.Error(g.CheckPartition(4))

	dup := frame.GroupsFromAll([][]frame.Idx{{0, 1}, {1, 2}})
	assert.Error(dup.CheckPartition(3))

	sl := frame.SliceGroupsFromLens([]int{2, 0, 3})
	assert.NoError(sl.CheckPartition(5))
	assert.Equal([]frame.Idx{2, 0, 3}, sl.GroupCount())
	assert.Equal([]frame.Idx{2, 3, 4}, sl.Group(2))

	first, all := sl.ToIdx().Snapshot()
	assert.Equal([]frame.Idx{0, 2, 2}, first)
	assert.Equal([][]frame.Idx{{0, 1}, {}, {2, 3, 4}}, all)
}

func TestAggList(t *testing.T) {
	assert := assert.New(t)

	s := frame.NewInt64("v", []int64{1, 2, 3})
	g := frame.GroupsFromAll([][]frame.Idx{{0, 2}, {1}})
	l := s.AggList(g)
	assert.Equal(frame.List, l.Dtype())
	rows, err := l.ListRows()
	require.NoError(t, err)
	assert.Equal([]any{int64(1), int64(3)}, rows[0].Values())

	flat, lens, err := l.Flatten()
	require.NoError(t, err)
	assert.Equal([]int{2, 1}, lens)
	assert.Equal([]any{int64(1), int64(3), int64(2)}, flat.Values())
}

func TestArrowIPCRoundTrip(t *testing.T) {
	assert := assert.New(t)

	nums, err := frame.FromValues("n", frame.Int32, []any{1, nil, 3})
	require.NoError(t, err)
	df, err := frame.New(nums, frame.NewString("s", []string{"x", "y", "z"}))
	require.NoError(t, err)

	data, err := frame.ToIPC(df)
	require.NoError(t, err)
	back, err := frame.FromIPC(data)
	require.NoError(t, err)
	assert.True(df.Equal(back), back.String())
}
