package frame

import (
	"bytes"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/ipc"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

// ArrowType maps a DataType onto the arrow type used for interchange.
func ArrowType(dtype DataType, inner DataType) (arrow.DataType, error) {
	switch dtype {
	case Null:
		return arrow.Null, nil
	case Boolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case Int32:
		return arrow.PrimitiveTypes.Int32, nil
	case Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case UInt32:
		return arrow.PrimitiveTypes.Uint32, nil
	case UInt64:
		return arrow.PrimitiveTypes.Uint64, nil
	case Float64:
		return arrow.PrimitiveTypes.Float64, nil
	case String:
		return arrow.BinaryTypes.String, nil
	case List:
		elem, err := ArrowType(inner, Null)
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(elem), nil
	}
	return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "no arrow type for `%s`", dtype)
}

func seriesArrowType(s *Series) (arrow.DataType, error) {
	if s.Dtype() != Struct {
		return ArrowType(s.Dtype(), s.InnerDtype())
	}
	fields, _ := s.StructFields()
	afs := make([]arrow.Field, len(fields))
	for i, f := range fields {
		dt, err := seriesArrowType(f)
		if err != nil {
			return nil, err
		}
		afs[i] = arrow.Field{Name: f.Name(), Type: dt, Nullable: true}
	}
	return arrow.StructOf(afs...), nil
}

// ToArrowArray builds an arrow array out of s.
func ToArrowArray(mem memory.Allocator, s *Series) (arrow.Array, error) {
	dt, err := seriesArrowType(s)
	if err != nil {
		return nil, err
	}
	b := array.NewBuilder(mem, dt)
	defer b.Release()
	for i := 0; i < s.Len(); i++ {
		if err := appendArrowValue(b, s.Get(i)); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

func appendArrowValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch bb := b.(type) {
	case *array.BooleanBuilder:
		bb.Append(v.(bool))
	case *array.Int32Builder:
		bb.Append(int32(v.(int64)))
	case *array.Int64Builder:
		bb.Append(v.(int64))
	case *array.Uint32Builder:
		bb.Append(uint32(v.(uint64)))
	case *array.Uint64Builder:
		bb.Append(v.(uint64))
	case *array.Float64Builder:
		bb.Append(v.(float64))
	case *array.StringBuilder:
		bb.Append(v.(string))
	case *array.ListBuilder:
		bb.Append(true)
		inner := v.(*Series)
		vb := bb.ValueBuilder()
		for i := 0; i < inner.Len(); i++ {
			if err := appendArrowValue(vb, inner.Get(i)); err != nil {
				return err
			}
		}
	case *array.StructBuilder:
		bb.Append(true)
		row := v.([]any)
		for i := range row {
			if err := appendArrowValue(bb.FieldBuilder(i), row[i]); err != nil {
				return err
			}
		}
	case *array.NullBuilder:
		bb.AppendNull()
	default:
		return execerror.Newf(execerror.EXEC_INVALID_OPERATION, "unsupported arrow builder %T", b)
	}
	return nil
}

// FromArrowArray converts an arrow array into a single chunk series.
func FromArrowArray(name string, arr arrow.Array) (*Series, error) {
	n := arr.Len()
	validity := make([]bool, n)
	for i := range validity {
		validity[i] = arr.IsValid(i)
	}
	switch a := arr.(type) {
	case *array.Null:
		return NewNull(name, n), nil
	case *array.Boolean:
		out := make([]bool, n)
		for i := range out {
			out[i] = a.Value(i)
		}
		return newSeries(name, Boolean, out, validity, n), nil
	case *array.Int8:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(a.Value(i))
		}
		return newSeries(name, Int32, out, validity, n), nil
	case *array.Int16:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(a.Value(i))
		}
		return newSeries(name, Int32, out, validity, n), nil
	case *array.Int32:
		out := make([]int64, n)
		for i := range out {
			out[i] = int64(a.Value(i))
		}
		return newSeries(name, Int32, out, validity, n), nil
	case *array.Int64:
		out := make([]int64, n)
		copy(out, a.Int64Values())
		return newSeries(name, Int64, out, validity, n), nil
	case *array.Uint32:
		out := make([]uint64, n)
		for i := range out {
			out[i] = uint64(a.Value(i))
		}
		return newSeries(name, UInt32, out, validity, n), nil
	case *array.Uint64:
		out := make([]uint64, n)
		copy(out, a.Uint64Values())
		return newSeries(name, UInt64, out, validity, n), nil
	case *array.Float32:
		out := make([]float64, n)
		for i := range out {
			out[i] = float64(a.Value(i))
		}
		return newSeries(name, Float64, out, validity, n), nil
	case *array.Float64:
		out := make([]float64, n)
		copy(out, a.Float64Values())
		return newSeries(name, Float64, out, validity, n), nil
	case *array.String:
		out := make([]string, n)
		for i := range out {
			out[i] = a.Value(i)
		}
		return newSeries(name, String, out, validity, n), nil
	case *array.LargeString:
		out := make([]string, n)
		for i := range out {
			out[i] = a.Value(i)
		}
		return newSeries(name, String, out, validity, n), nil
	case *array.List:
		values, err := FromArrowArray(name, a.ListValues())
		if err != nil {
			return nil, err
		}
		offsets := a.Offsets()
		rows := make([]*Series, n)
		for i := range rows {
			if !validity[i] {
				continue
			}
			lo, hi := int(offsets[i]), int(offsets[i+1])
			rows[i] = values.Slice(int64(lo), hi-lo).Rechunk()
		}
		return NewList(name, values.Dtype(), rows), nil
	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		fields := make([]*Series, a.NumField())
		for i := range fields {
			f, err := FromArrowArray(st.Field(i).Name, a.Field(i))
			if err != nil {
				return nil, err
			}
			fields[i] = f
		}
		s, err := NewStruct(name, fields...)
		if err != nil {
			return nil, err
		}
		return s.WithValidity(validity), nil
	}
	return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "unsupported arrow type %s for column %q", arr.DataType(), name)
}

// FromArrowChunks converts chunked arrow data keeping the chunk layout.
func FromArrowChunks(name string, chunks []arrow.Array) (*Series, error) {
	parts := make([]*Series, 0, len(chunks))
	for _, c := range chunks {
		s, err := FromArrowArray(name, c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return NewNull(name, 0), nil
	}
	return Concat(parts)
}

// FromArrowRecord converts a record batch into a frame.
func FromArrowRecord(rec arrow.Record) (*DataFrame, error) {
	cols := make([]*Series, rec.NumCols())
	for i := range cols {
		s, err := FromArrowArray(rec.ColumnName(i), rec.Column(i))
		if err != nil {
			return nil, err
		}
		cols[i] = s
	}
	return New(cols...)
}

// FromArrowTable converts a table; every arrow chunk becomes a chunk.
func FromArrowTable(tbl arrow.Table) (*DataFrame, error) {
	cols := make([]*Series, tbl.NumCols())
	for i := range cols {
		col := tbl.Column(i)
		s, err := FromArrowChunks(col.Name(), col.Data().Chunks())
		if err != nil {
			return nil, err
		}
		cols[i] = s
	}
	return New(cols...)
}

// ToArrowRecord converts df into a record batch. The caller releases it.
func ToArrowRecord(mem memory.Allocator, df *DataFrame) (arrow.Record, error) {
	fields := make([]arrow.Field, df.Width())
	arrs := make([]arrow.Array, df.Width())
	defer func() {
		for _, a := range arrs {
			if a != nil {
				a.Release()
			}
		}
	}()
	for i, c := range df.Columns() {
		a, err := ToArrowArray(mem, c)
		if err != nil {
			return nil, err
		}
		arrs[i] = a
		fields[i] = arrow.Field{Name: c.Name(), Type: a.DataType(), Nullable: true}
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), arrs, int64(df.Height())), nil
}

// ToIPC encodes df as an arrow IPC stream.
func ToIPC(df *DataFrame) ([]byte, error) {
	mem := memory.NewGoAllocator()
	rec, err := ToArrowRecord(mem, df)
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := w.Write(rec); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SeriesToIPC encodes series as the columns of one IPC stream.
func SeriesToIPC(series ...*Series) ([]byte, error) {
	df, err := New(series...)
	if err != nil {
		return nil, err
	}
	return ToIPC(df)
}

// FromIPC decodes an arrow IPC stream written by ToIPC.
func FromIPC(data []byte) (*DataFrame, error) {
	r, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Release()

	var parts []*DataFrame
	for r.Next() {
		df, err := FromArrowRecord(r.Record())
		if err != nil {
			return nil, err
		}
		parts = append(parts, df)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return ConcatFrames(parts)
}
