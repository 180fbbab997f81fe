package frame

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

// DataFrame is an ordered set of named, equal length columns.
//
// The uuid names the snapshot for provenance correlation only; two frames
// with equal data may carry different ids.
type DataFrame struct {
	columns []*Series
	uuid    uuid.UUID
}

// New builds a frame, checking lengths and name uniqueness.
func New(columns ...*Series) (*DataFrame, error) {
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		if i > 0 && c.Len() != columns[0].Len() {
			return nil, execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH,
				"could not create a new DataFrame: series %q has length %d while series %q has length %d",
				columns[0].Name(), columns[0].Len(), c.Name(), c.Len())
		}
		if _, ok := seen[c.Name()]; ok {
			return nil, duplicateError(c.Name())
		}
		seen[c.Name()] = struct{}{}
	}
	return &DataFrame{columns: columns}, nil
}

// NewUnchecked builds a frame without validating the columns.
func NewUnchecked(columns []*Series) *DataFrame {
	return &DataFrame{columns: columns}
}

func Empty() *DataFrame {
	return &DataFrame{}
}

func duplicateError(name string) error {
	return execerror.Newf(execerror.EXEC_COMPUTE, "column with name '%s' has more than one occurrence", name)
}

func (df *DataFrame) UUID() uuid.UUID {
	return df.uuid
}

func (df *DataFrame) SetUUID(id uuid.UUID) {
	df.uuid = id
}

// Height is the number of rows.
func (df *DataFrame) Height() int {
	if len(df.columns) == 0 {
		return 0
	}
	return df.columns[0].Len()
}

func (df *DataFrame) Width() int {
	return len(df.columns)
}

func (df *DataFrame) IsEmpty() bool {
	return df.Height() == 0
}

func (df *DataFrame) Columns() []*Series {
	return df.columns
}

func (df *DataFrame) Names() []string {
	names := make([]string, len(df.columns))
	for i, c := range df.columns {
		names[i] = c.Name()
	}
	return names
}

func (df *DataFrame) Schema() *Schema {
	fields := make([]Field, len(df.columns))
	for i, c := range df.columns {
		fields[i] = c.Field()
	}
	return NewSchema(fields...)
}

// ColumnIndex returns the position of name or -1.
func (df *DataFrame) ColumnIndex(name string) int {
	for i, c := range df.columns {
		if c.Name() == name {
			return i
		}
	}
	return -1
}

func (df *DataFrame) Column(name string) (*Series, error) {
	i := df.ColumnIndex(name)
	if i < 0 {
		return nil, execerror.Newf(execerror.EXEC_COLUMN_NOT_FOUND, "could not find %q in schema", name)
	}
	return df.columns[i], nil
}

func (df *DataFrame) ColumnAt(i int) *Series {
	return df.columns[i]
}

// Select returns the named columns in the requested order.
func (df *DataFrame) Select(names []string) (*DataFrame, error) {
	cols := make([]*Series, 0, len(names))
	for _, n := range names {
		c, err := df.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return New(cols...)
}

// WithColumn replaces the column of the same name or appends s.
func (df *DataFrame) WithColumn(s *Series) (*DataFrame, error) {
	if df.Width() > 0 && s.Len() != df.Height() {
		if s.Len() != 1 {
			return nil, execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH,
				"unable to add a column of length %d to a DataFrame of height %d", s.Len(), df.Height())
		}
		s = s.NewFromIndex(0, df.Height())
	}
	cols := make([]*Series, len(df.columns), len(df.columns)+1)
	copy(cols, df.columns)
	if i := df.ColumnIndex(s.Name()); i >= 0 {
		cols[i] = s
	} else {
		cols = append(cols, s)
	}
	return &DataFrame{columns: cols, uuid: df.uuid}, nil
}

// HStack appends columns. Names must not collide when checkDuplicates is set.
func (df *DataFrame) HStack(columns []*Series, checkDuplicates bool) (*DataFrame, error) {
	cols := make([]*Series, 0, len(df.columns)+len(columns))
	cols = append(cols, df.columns...)
	cols = append(cols, columns...)
	if checkDuplicates {
		seen := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			if _, ok := seen[c.Name()]; ok {
				return nil, duplicateError(c.Name())
			}
			seen[c.Name()] = struct{}{}
		}
	}
	for _, c := range columns {
		if len(cols) > 0 && c.Len() != cols[0].Len() {
			return nil, execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH,
				"unable to hstack series %q of length %d to a DataFrame of height %d", c.Name(), c.Len(), cols[0].Len())
		}
	}
	return &DataFrame{columns: cols, uuid: df.uuid}, nil
}

// Drop removes the named column if present.
func (df *DataFrame) Drop(name string) *DataFrame {
	cols := make([]*Series, 0, len(df.columns))
	for _, c := range df.columns {
		if c.Name() != name {
			cols = append(cols, c)
		}
	}
	return &DataFrame{columns: cols, uuid: df.uuid}
}

func (df *DataFrame) mapColumns(fn func(*Series) *Series) *DataFrame {
	cols := make([]*Series, len(df.columns))
	for i, c := range df.columns {
		cols[i] = fn(c)
	}
	return &DataFrame{columns: cols, uuid: df.uuid}
}

// Filter keeps the rows where mask is true.
func (df *DataFrame) Filter(mask *Series) (*DataFrame, error) {
	bits, err := mask.Bool()
	if err != nil {
		return nil, execerror.Newf(execerror.EXEC_COMPUTE, "filter predicate must be of type `Boolean`, got `%s`", mask.Dtype())
	}
	if mask.Len() == 1 && df.Height() != 1 {
		if bits[0] && mask.IsValid(0) {
			return df, nil
		}
		return df.Slice(0, 0), nil
	}
	if mask.Len() != df.Height() {
		return nil, execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH,
			"filter's length: %d differs from that of the DataFrame: %d", mask.Len(), df.Height())
	}
	return df.Gather(MaskToIdx(bits, mask.Validity())), nil
}

func (df *DataFrame) Gather(idx []Idx) *DataFrame {
	return df.mapColumns(func(s *Series) *Series { return s.Gather(idx) })
}

func (df *DataFrame) Slice(offset int64, length int) *DataFrame {
	return df.mapColumns(func(s *Series) *Series { return s.Slice(offset, length) })
}

func (df *DataFrame) Head(n int) *DataFrame {
	return df.Slice(0, n)
}

func (df *DataFrame) Rechunk() *DataFrame {
	return df.mapColumns(func(s *Series) *Series { return s.Rechunk() })
}

// NChunks is the chunk count of the first column.
func (df *DataFrame) NChunks() int {
	if len(df.columns) == 0 {
		return 0
	}
	return df.columns[0].NChunks()
}

// chunksAligned reports whether every column shares one chunk layout.
func (df *DataFrame) chunksAligned() bool {
	if len(df.columns) == 0 {
		return true
	}
	ref := df.columns[0].ChunkLens()
	for _, c := range df.columns[1:] {
		lens := c.ChunkLens()
		if len(lens) != len(ref) {
			return false
		}
		for i := range lens {
			if lens[i] != ref[i] {
				return false
			}
		}
	}
	return true
}

// SplitChunks returns one frame per physical chunk, in order. Misaligned
// columns are rechunked first.
func (df *DataFrame) SplitChunks() []*DataFrame {
	src := df
	if !df.chunksAligned() {
		src = df.Rechunk()
	}
	if src.NChunks() <= 1 {
		return []*DataFrame{src}
	}
	out := make([]*DataFrame, 0, src.NChunks())
	off := 0
	for _, l := range src.columns[0].ChunkLens() {
		out = append(out, src.Slice(int64(off), l))
		off += l
	}
	return out
}

// SplitByN cuts the frame into at most n contiguous pieces of nearly equal
// height.
func (df *DataFrame) SplitByN(n int) []*DataFrame {
	h := df.Height()
	if n <= 1 || h <= 1 {
		return []*DataFrame{df}
	}
	if n > h {
		n = h
	}
	size := h / n
	out := make([]*DataFrame, 0, n)
	for i := 0; i < n; i++ {
		length := size
		if i == n-1 {
			length = h - size*(n-1)
		}
		out = append(out, df.Slice(int64(i*size), length))
	}
	return out
}

// VStack appends the rows of other; schemas must match by position.
func (df *DataFrame) VStack(other *DataFrame) (*DataFrame, error) {
	if df.Width() == 0 {
		return other, nil
	}
	if other.Width() != df.Width() {
		return nil, execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH,
			"unable to append to a DataFrame of width %d with a DataFrame of width %d", df.Width(), other.Width())
	}
	cols := make([]*Series, df.Width())
	for i, c := range df.columns {
		oc := other.columns[i]
		if oc.Name() != c.Name() {
			return nil, execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH,
				"cannot vstack: because column names in the two DataFrames do not match for left.name='%s' != right.name='%s'",
				c.Name(), oc.Name())
		}
		var err error
		if cols[i], err = c.Append(oc); err != nil {
			return nil, err
		}
	}
	return &DataFrame{columns: cols, uuid: df.uuid}, nil
}

// ConcatFrames vertically concatenates frames, keeping their chunks.
func ConcatFrames(dfs []*DataFrame) (*DataFrame, error) {
	if len(dfs) == 0 {
		return Empty(), nil
	}
	out := dfs[0]
	for _, df := range dfs[1:] {
		var err error
		if out, err = out.VStack(df); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Equal compares column names, dtypes and values.
func (df *DataFrame) Equal(other *DataFrame) bool {
	if df.Width() != other.Width() || df.Height() != other.Height() {
		return false
	}
	for i, c := range df.columns {
		if c.Name() != other.columns[i].Name() || !c.Equal(other.columns[i]) {
			return false
		}
	}
	return true
}

// String renders the frame as an ascii table.
func (df *DataFrame) String() string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "shape: (%d, %d)\n", df.Height(), df.Width())

	table := tablewriter.NewWriter(sb)
	table.SetAutoFormatHeaders(false)
	header := make([]string, df.Width())
	for i, c := range df.columns {
		header[i] = fmt.Sprintf("%s (%s)", c.Name(), c.Dtype())
	}
	table.SetHeader(header)
	for r := 0; r < df.Height(); r++ {
		row := make([]string, df.Width())
		for i, c := range df.columns {
			row[i] = FormatValue(c.Get(r))
		}
		table.Append(row)
	}
	table.Render()
	return sb.String()
}
