package scan

import (
	"context"

	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/apache/arrow/go/v11/parquet/file"
	"github.com/apache/arrow/go/v11/parquet/pqarrow"
	"github.com/pg-sharding/colexec/pkg/execlog"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/provenance"
)

// ParquetSource reads one or more parquet files as a single frame. Files
// are read in order and must share a schema.
type ParquetSource struct {
	Paths     []string
	BatchSize int64
}

func (s *ParquetSource) Kind() provenance.SourceKind {
	return provenance.SourceFile
}

func (s *ParquetSource) Location() []string {
	return s.Paths
}

func (s *ParquetSource) readFile(ctx context.Context, path string, projection []string) (*frame.DataFrame, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, execerror.Newf(execerror.EXEC_COMPUTE, "failed to open %s: %s", path, err)
	}
	defer rdr.Close()

	props := pqarrow.ArrowReadProperties{Parallel: false, BatchSize: s.BatchSize}
	fr, err := pqarrow.NewFileReader(rdr, props, memory.DefaultAllocator)
	if err != nil {
		return nil, err
	}
	schema, err := fr.Schema()
	if err != nil {
		return nil, err
	}

	var indices []int
	if len(projection) > 0 {
		indices = make([]int, len(projection))
		for i, name := range projection {
			found := schema.FieldIndices(name)
			if len(found) == 0 {
				return nil, execerror.Newf(execerror.EXEC_COLUMN_NOT_FOUND, "Column %s not found", name)
			}
			indices[i] = found[0]
		}
	} else {
		indices = make([]int, rdr.MetaData().Schema.NumColumns())
		for i := range indices {
			indices[i] = i
		}
	}
	rowGroups := make([]int, rdr.NumRowGroups())
	for i := range rowGroups {
		rowGroups[i] = i
	}

	tbl, err := fr.ReadRowGroups(ctx, indices, rowGroups)
	if err != nil {
		return nil, err
	}
	defer tbl.Release()
	return frame.FromArrowTable(tbl)
}

// Read stacks the files and then finishes the frame. Without a predicate
// it stops opening files once NRows rows were read.
func (s *ParquetSource) Read(ctx context.Context, opts ReadOptions) (*frame.DataFrame, *frame.Series, error) {
	if len(s.Paths) == 0 {
		return nil, nil, execerror.New(execerror.EXEC_INVALID_OPERATION, "parquet source has no paths")
	}
	var parts []*frame.DataFrame
	rows := 0
	for _, path := range s.Paths {
		if err := ctx.Err(); err != nil {
			return nil, nil, execerror.Interrupted()
		}
		if opts.Predicate == nil && opts.NRows != nil && rows >= *opts.NRows {
			break
		}
		df, err := s.readFile(ctx, path, opts.Projection)
		if err != nil {
			return nil, nil, err
		}
		execlog.Zero.Debug().
			Str("path", path).
			Int("rows", df.Height()).
			Msg("read parquet file")
		rows += df.Height()
		parts = append(parts, df)
	}
	df, err := frame.ConcatFrames(parts)
	if err != nil {
		return nil, nil, err
	}
	return Finish(df, opts)
}

var _ Source = &ParquetSource{}
