package scan

import (
	"context"

	"github.com/pg-sharding/colexec/pkg/frame"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
	"github.com/pg-sharding/colexec/pkg/provenance"
)

// RowIndex asks a source to prepend a running row number column.
type RowIndex struct {
	Name   string
	Offset frame.Idx
}

// Predicate evaluates a boolean mask over a frame a source has read.
type Predicate func(df *frame.DataFrame) (*frame.Series, error)

type ReadOptions struct {
	Projection []string
	NRows      *int
	RowIndex   *RowIndex
	Predicate  Predicate
}

// Source hands data to a scan. Read returns the frame together with the
// selection mask it applied, nil when every row was kept.
type Source interface {
	Read(ctx context.Context, opts ReadOptions) (*frame.DataFrame, *frame.Series, error)
	Kind() provenance.SourceKind
	Location() []string
}

// Finish applies projection, row index, predicate and row limit, in that
// order, to a freshly read frame. The returned mask selects exactly the rows
// of the output, so it is set whenever the predicate or the limit dropped
// rows.
func Finish(df *frame.DataFrame, opts ReadOptions) (*frame.DataFrame, *frame.Series, error) {
	var err error
	if len(opts.Projection) > 0 {
		if df, err = project(df, opts.Projection); err != nil {
			return nil, nil, err
		}
	}
	if opts.RowIndex != nil {
		if df, err = withRowIndex(df, *opts.RowIndex); err != nil {
			return nil, nil, err
		}
	}
	height := df.Height()
	var mask *frame.Series
	if opts.Predicate != nil {
		if mask, err = opts.Predicate(df); err != nil {
			return nil, nil, err
		}
		if df, err = df.Filter(mask); err != nil {
			return nil, nil, err
		}
	}
	if opts.NRows != nil && *opts.NRows < df.Height() {
		if mask, err = LimitMask(mask, height, *opts.NRows); err != nil {
			return nil, nil, err
		}
		df = df.Head(*opts.NRows)
	}
	return df, mask, nil
}

// LimitMask keeps the first n rows selected by mask out of height rows. A
// nil mask selects every row, a null entry selects none.
func LimitMask(mask *frame.Series, height, n int) (*frame.Series, error) {
	name := "mask"
	var bits []bool
	if mask != nil {
		var err error
		if bits, err = mask.Bool(); err != nil {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE,
				"filter predicate must be of type `Boolean`, got `%s`", mask.Dtype())
		}
		name = mask.Name()
	}
	out := make([]bool, height)
	kept := 0
	for i := range out {
		if kept == n {
			break
		}
		if mask != nil {
			j := i
			if mask.Len() == 1 {
				j = 0
			}
			if j >= len(bits) || !bits[j] || !mask.IsValid(j) {
				continue
			}
		}
		out[i] = true
		kept++
	}
	return frame.NewBool(name, out), nil
}

func project(df *frame.DataFrame, names []string) (*frame.DataFrame, error) {
	for _, n := range names {
		if df.ColumnIndex(n) < 0 {
			return nil, execerror.Newf(execerror.EXEC_COLUMN_NOT_FOUND, "Column %s not found", n)
		}
	}
	return df.Select(names)
}

func withRowIndex(df *frame.DataFrame, ri RowIndex) (*frame.DataFrame, error) {
	idx := make([]frame.Idx, df.Height())
	for i := range idx {
		idx[i] = ri.Offset + frame.Idx(i)
	}
	cols := append([]*frame.Series{frame.NewIdx(ri.Name, idx)}, df.Columns()...)
	out, err := frame.New(cols...)
	if err != nil {
		return nil, err
	}
	out.SetUUID(df.UUID())
	return out, nil
}

// ProjectionIndices resolves names against schema.
func ProjectionIndices(schema *frame.Schema, names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		idx, ok := schema.IndexOf(n)
		if !ok {
			return nil, execerror.Newf(execerror.EXEC_COLUMN_NOT_FOUND, "Column %s not found", n)
		}
		out[i] = idx
	}
	return out, nil
}
