package scan

import (
	"context"
	"os"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/csv"
	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/provenance"
)

// CSVSource reads a delimited text file with a known schema. Empty cells
// read as null.
type CSVSource struct {
	Path   string
	Schema *frame.Schema
	Header bool
	Comma  rune
}

func (s *CSVSource) Kind() provenance.SourceKind {
	return provenance.SourceFile
}

func (s *CSVSource) Location() []string {
	return []string{s.Path}
}

func (s *CSVSource) arrowSchema() (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, s.Schema.Len())
	for _, f := range s.Schema.Fields() {
		dt, err := frame.ArrowType(f.Dtype, frame.Null)
		if err != nil {
			return nil, err
		}
		fields = append(fields, arrow.Field{Name: f.Name, Type: dt, Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

func (s *CSVSource) Read(ctx context.Context, opts ReadOptions) (*frame.DataFrame, *frame.Series, error) {
	if s.Schema == nil {
		return nil, nil, execerror.New(execerror.EXEC_INVALID_OPERATION, "csv source requires a schema")
	}
	schema, err := s.arrowSchema()
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, nil, execerror.Newf(execerror.EXEC_COMPUTE, "failed to open %s: %s", s.Path, err)
	}
	defer f.Close()

	comma := s.Comma
	if comma == 0 {
		comma = ','
	}
	r := csv.NewReader(f, schema,
		csv.WithHeader(s.Header),
		csv.WithComma(comma),
		csv.WithNullReader(true, ""),
	)
	defer r.Release()

	var parts []*frame.DataFrame
	for r.Next() {
		if err := ctx.Err(); err != nil {
			return nil, nil, execerror.Interrupted()
		}
		df, err := frame.FromArrowRecord(r.Record())
		if err != nil {
			return nil, nil, err
		}
		parts = append(parts, df)
	}
	if err := r.Err(); err != nil {
		return nil, nil, execerror.Newf(execerror.EXEC_COMPUTE, "failed to read %s: %s", s.Path, err)
	}
	if len(parts) == 0 {
		return Finish(emptyFrame(s.Schema), opts)
	}
	df, err := frame.ConcatFrames(parts)
	if err != nil {
		return nil, nil, err
	}
	return Finish(df, opts)
}

func emptyFrame(schema *frame.Schema) *frame.DataFrame {
	cols := make([]*frame.Series, 0, schema.Len())
	for _, f := range schema.Fields() {
		s, _ := frame.FromValues(f.Name, f.Dtype, nil)
		if s == nil {
			s = frame.NewNull(f.Name, 0)
		}
		cols = append(cols, s)
	}
	return frame.NewUnchecked(cols)
}

var _ Source = &CSVSource{}
