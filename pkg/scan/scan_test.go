package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v11/arrow/ipc"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/apache/arrow/go/v11/parquet"
	"github.com/apache/arrow/go/v11/parquet/pqarrow"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/provenance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(t *testing.T, ks []string, vs []int64) *frame.DataFrame {
	t.Helper()
	df, err := frame.New(frame.NewString("k", ks), frame.NewInt64("v", vs))
	require.NoError(t, err)
	return df
}

func column(t *testing.T, df *frame.DataFrame, name string) []any {
	t.Helper()
	s, err := df.Column(name)
	require.NoError(t, err)
	return s.Values()
}

func vAbove(n int64) Predicate {
	return func(df *frame.DataFrame) (*frame.Series, error) {
		s, err := df.Column("v")
		if err != nil {
			return nil, err
		}
		vals, err := s.Int64()
		if err != nil {
			return nil, err
		}
		mask := make([]bool, len(vals))
		for i, v := range vals {
			mask[i] = v > n
		}
		return frame.NewBool("mask", mask), nil
	}
}

func TestFinish(t *testing.T) {
	df := testFrame(t, []string{"a", "b", "c", "d"}, []int64{1, 2, 3, 4})
	two := 2

	t.Run("projection", func(t *testing.T) {
		out, mask, err := Finish(df, ReadOptions{Projection: []string{"v"}})
		require.NoError(t, err)
		assert.Nil(t, mask)
		assert.Equal(t, []string{"v"}, out.Names())
	})

	t.Run("missing column", func(t *testing.T) {
		_, _, err := Finish(df, ReadOptions{Projection: []string{"x"}})
		assert.EqualError(t, err, "ColumnNotFound: Column x not found")
	})

	t.Run("row index before predicate", func(t *testing.T) {
		out, mask, err := Finish(df, ReadOptions{
			RowIndex:  &RowIndex{Name: "idx", Offset: 10},
			Predicate: vAbove(2),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"idx", "k", "v"}, out.Names())
		assert.Equal(t, []any{frame.Idx(12), frame.Idx(13)}, column(t, out, "idx"))
		assert.Equal(t, []any{false, false, true, true}, mask.Values())
	})

	t.Run("n_rows after predicate", func(t *testing.T) {
		out, mask, err := Finish(df, ReadOptions{NRows: &two, Predicate: vAbove(1)})
		require.NoError(t, err)
		assert.Equal(t, []any{int64(2), int64(3)}, column(t, out, "v"))
		assert.Equal(t, []any{false, true, true, false}, mask.Values())
	})

	t.Run("n_rows without predicate", func(t *testing.T) {
		out, mask, err := Finish(df, ReadOptions{NRows: &two})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Height())
		assert.Equal(t, []any{true, true, false, false}, mask.Values())
	})
}

func TestFinishMaskMatchesOutput(t *testing.T) {
	df, err := frame.New(frame.NewInt64("v", []int64{10, 20, 30, 40, 50}))
	require.NoError(t, err)
	keep := func(*frame.DataFrame) (*frame.Series, error) {
		return frame.NewBool("keep", []bool{true, false, true, true, false}), nil
	}

	for _, tt := range []struct {
		name  string
		nRows int
		want  []any
		mask  []any
	}{
		{name: "one", nRows: 1, want: []any{int64(10)}, mask: []any{true, false, false, false, false}},
		{name: "two", nRows: 2, want: []any{int64(10), int64(30)}, mask: []any{true, false, true, false, false}},
		{name: "above kept", nRows: 10, want: []any{int64(10), int64(30), int64(40)}, mask: []any{true, false, true, true, false}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.nRows
			out, mask, err := Finish(df, ReadOptions{Predicate: keep, NRows: &n})
			require.NoError(t, err)
			assert.Equal(t, tt.want, column(t, out, "v"))
			assert.Equal(t, tt.mask, mask.Values())

			kept := 0
			for _, b := range mask.Values() {
				if b == true {
					kept++
				}
			}
			assert.Equal(t, out.Height(), kept)
		})
	}
}

func TestLimitMask(t *testing.T) {
	assert := assert.New(t)

	out, err := LimitMask(nil, 3, 2)
	require.NoError(t, err)
	assert.Equal([]any{true, true, false}, out.Values())

	out, err = LimitMask(frame.NewBool("m", []bool{true}), 3, 2)
	require.NoError(t, err)
	assert.Equal([]any{true, true, false}, out.Values())

	_, err = LimitMask(frame.NewInt64("m", []int64{1}), 3, 2)
	assert.True(execerror.Is(err, execerror.EXEC_COMPUTE))
}

func TestMemorySource(t *testing.T) {
	assert := assert.New(t)
	src := &MemorySource{DF: testFrame(t, []string{"a"}, []int64{1})}

	out, _, err := src.Read(context.Background(), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(1, out.Height())
	assert.Equal(provenance.SourceInMemory, src.Kind())
	assert.Empty(src.Location())
}

func writeParquet(t *testing.T, path string, df *frame.DataFrame) {
	t.Helper()
	rec, err := frame.ToArrowRecord(memory.NewGoAllocator(), df)
	require.NoError(t, err)
	defer rec.Release()

	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := pqarrow.NewFileWriter(rec.Schema(), f, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	require.NoError(t, err)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
}

func TestParquetSource(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "0.parquet")
	second := filepath.Join(dir, "1.parquet")
	writeParquet(t, first, testFrame(t, []string{"a", "b"}, []int64{1, 2}))
	writeParquet(t, second, testFrame(t, []string{"c", "d"}, []int64{3, 4}))

	src := &ParquetSource{Paths: []string{first, second}}

	t.Run("projection across files", func(t *testing.T) {
		out, _, err := src.Read(context.Background(), ReadOptions{Projection: []string{"v"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"v"}, out.Names())
		assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4)}, column(t, out, "v"))
	})

	t.Run("row index is cumulative", func(t *testing.T) {
		three := 3
		out, _, err := src.Read(context.Background(), ReadOptions{
			NRows:    &three,
			RowIndex: &RowIndex{Name: "idx"},
		})
		require.NoError(t, err)
		assert.Equal(t, []any{frame.Idx(0), frame.Idx(1), frame.Idx(2)}, column(t, out, "idx"))
		assert.Equal(t, []any{"a", "b", "c"}, column(t, out, "k"))
	})

	t.Run("missing column", func(t *testing.T) {
		_, _, err := src.Read(context.Background(), ReadOptions{Projection: []string{"x"}})
		assert.True(t, execerror.Is(err, execerror.EXEC_COLUMN_NOT_FOUND))
	})

	assert.Equal(t, provenance.SourceFile, src.Kind())
	assert.Equal(t, []string{first, second}, src.Location())
}

func TestCSVSource(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("k;v\na;1\nb;\nc;3\n"), 0o600))

	src := &CSVSource{
		Path:   path,
		Schema: frame.NewSchema(frame.NewField("k", frame.String), frame.NewField("v", frame.Int64)),
		Header: true,
		Comma:  ';',
	}
	out, _, err := src.Read(context.Background(), ReadOptions{})
	require.NoError(t, err)
	assert.Equal([]any{"a", "b", "c"}, column(t, out, "k"))
	assert.Equal([]any{int64(1), nil, int64(3)}, column(t, out, "v"))
}

func TestIPCSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.arrow")
	rec, err := frame.ToArrowRecord(memory.NewGoAllocator(), testFrame(t, []string{"a", "b"}, []int64{5, 6}))
	require.NoError(t, err)
	defer rec.Release()

	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()))
	require.NoError(t, err)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	out, _, err := (&IPCSource{Path: path}).Read(context.Background(), ReadOptions{Predicate: vAbove(5)})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(6), int64(6)}, column(t, out, "v"))
}

type fakeRows struct {
	names []string
	rows  [][]any
	pos   int
}

func (r *fakeRows) Close()                        {}
func (r *fakeRows) Err() error                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *fakeRows) Scan(...any) error             { return nil }
func (r *fakeRows) RawValues() [][]byte           { return nil }
func (r *fakeRows) Conn() *pgx.Conn               { return nil }

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.names))
	for i, n := range r.names {
		fds[i] = pgconn.FieldDescription{Name: n}
	}
	return fds
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.rows)
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.pos-1], nil
}

type fakeConn struct {
	rows *fakeRows
}

func (c *fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return c.rows, nil
}

func TestPostgresSource(t *testing.T) {
	assert := assert.New(t)
	src := &PostgresSource{
		Query: "SELECT id, name, score FROM t",
		conn: &fakeConn{rows: &fakeRows{
			names: []string{"id", "name", "score"},
			rows: [][]any{
				{int64(1), "x", nil},
				{int64(2), nil, float32(1.5)},
			},
		}},
	}

	out, _, err := src.Read(context.Background(), ReadOptions{Projection: []string{"id", "score"}})
	require.NoError(t, err)
	assert.Equal([]string{"id", "score"}, out.Names())
	assert.Equal([]any{int64(1), int64(2)}, column(t, out, "id"))
	assert.Equal([]any{nil, 1.5}, column(t, out, "score"))
	assert.Equal(provenance.SourceDatabase, src.Kind())
}

func TestRowsToFrame(t *testing.T) {
	for _, tt := range []struct {
		name  string
		value any
		want  frame.DataType
	}{
		{name: "bool", value: true, want: frame.Boolean},
		{name: "int32", value: int32(1), want: frame.Int32},
		{name: "int64", value: int64(1), want: frame.Int64},
		{name: "float", value: 1.0, want: frame.Float64},
		{name: "bytes", value: []byte("abc"), want: frame.String},
		{name: "null", value: nil, want: frame.Null},
	} {
		t.Run(tt.name, func(t *testing.T) {
			df, err := rowsToFrame([]string{"c"}, [][]any{{nil}, {tt.value}})
			require.NoError(t, err)
			s, err := df.Column("c")
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Dtype())
			assert.Equal(t, 2, s.Len())
		})
	}
}
