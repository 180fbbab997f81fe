package frame

import (
	"fmt"
	"strings"

	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

type listValues []*Series

type structValues []*Series

// Series is a named, typed, chunked and nullable column.
//
// Values are stored flat in a single physical slice; chunk boundaries are
// kept as a list of chunk lengths so that chunk-wise parallelism and
// concatenation behave like a real chunked array.
type Series struct {
	name  string
	dtype DataType
	// element type of a List series
	inner DataType

	// []bool, []int64, []uint64, []float64, []string, listValues, structValues or nil
	values any
	// nil when every value is valid
	validity []bool
	chunks   []int
	length   int
}

func newSeries(name string, dtype DataType, values any, validity []bool, n int) *Series {
	s := &Series{
		name:     name,
		dtype:    dtype,
		values:   values,
		validity: normalizeValidity(validity),
		length:   n,
	}
	if n > 0 {
		s.chunks = []int{n}
	}
	return s
}

func normalizeValidity(validity []bool) []bool {
	for _, v := range validity {
		if !v {
			return validity
		}
	}
	return nil
}

func NewBool(name string, v []bool) *Series {
	return newSeries(name, Boolean, v, nil, len(v))
}

func NewInt32(name string, v []int32) *Series {
	w := make([]int64, len(v))
	for i, x := range v {
		w[i] = int64(x)
	}
	return newSeries(name, Int32, w, nil, len(v))
}

func NewInt64(name string, v []int64) *Series {
	return newSeries(name, Int64, v, nil, len(v))
}

func NewUInt32(name string, v []uint32) *Series {
	w := make([]uint64, len(v))
	for i, x := range v {
		w[i] = uint64(x)
	}
	return newSeries(name, UInt32, w, nil, len(v))
}

func NewUInt64(name string, v []uint64) *Series {
	return newSeries(name, UInt64, v, nil, len(v))
}

// NewIdx builds an IdxType series.
func NewIdx(name string, v []Idx) *Series {
	return NewUInt64(name, v)
}

func NewFloat64(name string, v []float64) *Series {
	return newSeries(name, Float64, v, nil, len(v))
}

func NewString(name string, v []string) *Series {
	return newSeries(name, String, v, nil, len(v))
}

// NewNull returns a Null typed series of n nulls.
func NewNull(name string, n int) *Series {
	return newSeries(name, Null, nil, make([]bool, n), n)
}

// NewList builds a list series; a nil row is a null list.
func NewList(name string, inner DataType, rows []*Series) *Series {
	var validity []bool
	for i, r := range rows {
		if r == nil {
			if validity == nil {
				validity = make([]bool, len(rows))
				for j := range validity {
					validity[j] = true
				}
			}
			validity[i] = false
		}
	}
	s := newSeries(name, List, listValues(rows), validity, len(rows))
	s.inner = inner
	return s
}

// NewStruct builds a struct series out of equal length fields.
func NewStruct(name string, fields ...*Series) (*Series, error) {
	n := 0
	for i, f := range fields {
		if i == 0 {
			n = f.Len()
		} else if f.Len() != n {
			return nil, execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH,
				"struct fields must have equal length, got %d and %d", n, f.Len())
		}
	}
	cp := make(structValues, len(fields))
	for i, f := range fields {
		cp[i] = f.Rechunk()
	}
	return newSeries(name, Struct, cp, nil, n), nil
}

// WithValidity returns a copy of s with the given validity mask applied.
func (s *Series) WithValidity(validity []bool) *Series {
	out := s.shallow()
	out.validity = normalizeValidity(validity)
	return out
}

// FullNull returns n nulls of the given dtype.
func FullNull(name string, dtype DataType, n int) *Series {
	validity := make([]bool, n)
	var s *Series
	switch dtype {
	case Boolean:
		s = newSeries(name, dtype, make([]bool, n), validity, n)
	case Int32, Int64:
		s = newSeries(name, dtype, make([]int64, n), validity, n)
	case UInt32, UInt64:
		s = newSeries(name, dtype, make([]uint64, n), validity, n)
	case Float64:
		s = newSeries(name, dtype, make([]float64, n), validity, n)
	case String:
		s = newSeries(name, dtype, make([]string, n), validity, n)
	case List:
		s = newSeries(name, dtype, make(listValues, n), validity, n)
	default:
		s = NewNull(name, n)
		s.dtype = Null
	}
	if n > 0 {
		s.validity = validity
	}
	return s
}

// FromValues builds a series of dtype out of loosely typed Go values, nil
// meaning null.
func FromValues(name string, dtype DataType, vals []any) (*Series, error) {
	n := len(vals)
	validity := make([]bool, n)
	for i, v := range vals {
		validity[i] = v != nil
	}
	switch dtype {
	case Null:
		return NewNull(name, n), nil
	case Boolean:
		out := make([]bool, n)
		for i, v := range vals {
			if v == nil {
				continue
			}
			b, ok := v.(bool)
			if !ok {
				return nil, conversionError(v, dtype)
			}
			out[i] = b
		}
		return newSeries(name, dtype, out, validity, n), nil
	case Int32, Int64:
		out := make([]int64, n)
		for i, v := range vals {
			if v == nil {
				continue
			}
			x, ok := toInt64(v)
			if !ok {
				return nil, conversionError(v, dtype)
			}
			out[i] = x
		}
		return newSeries(name, dtype, out, validity, n), nil
	case UInt32, UInt64:
		out := make([]uint64, n)
		for i, v := range vals {
			if v == nil {
				continue
			}
			x, ok := toInt64(v)
			if !ok || x < 0 {
				return nil, conversionError(v, dtype)
			}
			out[i] = uint64(x)
		}
		return newSeries(name, dtype, out, validity, n), nil
	case Float64:
		out := make([]float64, n)
		for i, v := range vals {
			if v == nil {
				continue
			}
			x, ok := toFloat64(v)
			if !ok {
				return nil, conversionError(v, dtype)
			}
			out[i] = x
		}
		return newSeries(name, dtype, out, validity, n), nil
	case String:
		out := make([]string, n)
		for i, v := range vals {
			if v == nil {
				continue
			}
			str, ok := v.(string)
			if !ok {
				return nil, conversionError(v, dtype)
			}
			out[i] = str
		}
		return newSeries(name, dtype, out, validity, n), nil
	case List:
		rows := make([]*Series, n)
		inner := Null
		for i, v := range vals {
			if v == nil {
				continue
			}
			r, ok := v.(*Series)
			if !ok {
				return nil, conversionError(v, dtype)
			}
			rows[i] = r
			inner = r.Dtype()
		}
		return NewList(name, inner, rows), nil
	}
	return nil, execerror.Newf(execerror.EXEC_INVALID_OPERATION, "cannot build series of dtype %s from values", dtype)
}

func conversionError(v any, dtype DataType) error {
	return execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH, "cannot convert value %v (%T) to %s", v, v, dtype)
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func (s *Series) shallow() *Series {
	cp := *s
	return &cp
}

func (s *Series) Name() string {
	return s.name
}

// Rename returns a copy of s with a new name.
func (s *Series) Rename(name string) *Series {
	out := s.shallow()
	out.name = name
	return out
}

func (s *Series) Dtype() DataType {
	return s.dtype
}

// InnerDtype is the element type of a List series.
func (s *Series) InnerDtype() DataType {
	return s.inner
}

func (s *Series) Field() Field {
	return Field{Name: s.name, Dtype: s.dtype}
}

func (s *Series) Len() int {
	return s.length
}

func (s *Series) IsEmpty() bool {
	return s.length == 0
}

func (s *Series) NullCount() int {
	if s.validity == nil {
		return 0
	}
	c := 0
	for _, v := range s.validity {
		if !v {
			c++
		}
	}
	return c
}

func (s *Series) HasNulls() bool {
	return s.validity != nil
}

func (s *Series) IsValid(i int) bool {
	return s.validity == nil || s.validity[i]
}

// Validity returns the validity mask, nil when there are no nulls.
func (s *Series) Validity() []bool {
	return s.validity
}

// Get returns the i-th value as a plain Go value, nil for null.
func (s *Series) Get(i int) any {
	if !s.IsValid(i) {
		return nil
	}
	switch v := s.values.(type) {
	case []bool:
		return v[i]
	case []int64:
		return v[i]
	case []uint64:
		return v[i]
	case []float64:
		return v[i]
	case []string:
		return v[i]
	case listValues:
		return v[i]
	case structValues:
		row := make([]any, len(v))
		for j, f := range v {
			row[j] = f.Get(i)
		}
		return row
	}
	return nil
}

func dtypeError(expected string, got DataType) error {
	return execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH, "invalid series dtype: expected `%s`, got `%s`", expected, got)
}

func (s *Series) Bool() ([]bool, error) {
	v, ok := s.values.([]bool)
	if !ok {
		return nil, dtypeError("Boolean", s.dtype)
	}
	return v, nil
}

// Int64 returns the values of an Int32 or Int64 series.
func (s *Series) Int64() ([]int64, error) {
	v, ok := s.values.([]int64)
	if !ok {
		return nil, dtypeError("Int64", s.dtype)
	}
	return v, nil
}

// UInt64 returns the values of a UInt32 or UInt64 series.
func (s *Series) UInt64() ([]uint64, error) {
	v, ok := s.values.([]uint64)
	if !ok {
		return nil, dtypeError("UInt64", s.dtype)
	}
	return v, nil
}

func (s *Series) Float64() ([]float64, error) {
	v, ok := s.values.([]float64)
	if !ok {
		return nil, dtypeError("Float64", s.dtype)
	}
	return v, nil
}

func (s *Series) Str() ([]string, error) {
	v, ok := s.values.([]string)
	if !ok {
		return nil, dtypeError("String", s.dtype)
	}
	return v, nil
}

func (s *Series) ListRows() ([]*Series, error) {
	v, ok := s.values.(listValues)
	if !ok {
		return nil, dtypeError("List", s.dtype)
	}
	return v, nil
}

func (s *Series) StructFields() ([]*Series, error) {
	v, ok := s.values.(structValues)
	if !ok {
		return nil, dtypeError("Struct", s.dtype)
	}
	return v, nil
}

// StructField returns the struct field with the given name.
func (s *Series) StructField(name string) (*Series, error) {
	fields, err := s.StructFields()
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if f.Name() == name {
			return f.WithValidity(andValidity(f.validity, s.validity, s.length)), nil
		}
	}
	return nil, execerror.Newf(execerror.EXEC_COLUMN_NOT_FOUND, "could not find %q in struct", name)
}

// AsFloat64 converts any numeric or boolean series to float values.
func (s *Series) AsFloat64() ([]float64, error) {
	out := make([]float64, s.length)
	switch v := s.values.(type) {
	case []float64:
		return v, nil
	case []int64:
		for i, x := range v {
			out[i] = float64(x)
		}
	case []uint64:
		for i, x := range v {
			out[i] = float64(x)
		}
	case []bool:
		for i, x := range v {
			if x {
				out[i] = 1
			}
		}
	default:
		if s.dtype == Null {
			return out, nil
		}
		return nil, dtypeError("numeric", s.dtype)
	}
	return out, nil
}

func andValidity(a, b []bool, n int) []bool {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = a[i] && b[i]
	}
	return out
}

// NChunks returns the number of physical chunks.
func (s *Series) NChunks() int {
	return len(s.chunks)
}

func (s *Series) ChunkLens() []int {
	return s.chunks
}

// Rechunk collapses all chunks into one.
func (s *Series) Rechunk() *Series {
	if len(s.chunks) <= 1 {
		return s
	}
	out := s.shallow()
	out.chunks = []int{s.length}
	return out
}

// WithChunks returns s split at the given chunk lengths. The lengths must
// sum to Len.
func (s *Series) WithChunks(lens []int) (*Series, error) {
	total := 0
	chunks := make([]int, 0, len(lens))
	for _, l := range lens {
		total += l
		if l > 0 {
			chunks = append(chunks, l)
		}
	}
	if total != s.length {
		return nil, execerror.Newf(execerror.EXEC_COMPUTE, "chunk lengths sum to %d, series has length %d", total, s.length)
	}
	out := s.shallow()
	out.chunks = chunks
	return out, nil
}

// SplitChunks returns one single-chunk series per physical chunk.
func (s *Series) SplitChunks() []*Series {
	if len(s.chunks) <= 1 {
		return []*Series{s}
	}
	out := make([]*Series, 0, len(s.chunks))
	off := 0
	for _, l := range s.chunks {
		out = append(out, s.Slice(int64(off), l))
		off += l
	}
	return out
}

// Slice returns length values starting at offset. A negative offset
// counts from the end. Out of bounds ranges are clamped.
func (s *Series) Slice(offset int64, length int) *Series {
	lo, hi := SliceBounds(offset, length, s.length)
	out := s.shallow()
	out.values = sliceAny(s.values, lo, hi)
	if s.validity != nil {
		out.validity = normalizeValidity(s.validity[lo:hi])
	}
	out.length = hi - lo
	out.chunks = nil
	off := 0
	for _, l := range s.chunks {
		clo, chi := max(off, lo), min(off+l, hi)
		if chi > clo {
			out.chunks = append(out.chunks, chi-clo)
		}
		off += l
	}
	return out
}

// SliceBounds resolves a possibly negative offset against n.
func SliceBounds(offset int64, length int, n int) (int, int) {
	if offset < 0 {
		offset += int64(n)
		if offset < 0 {
			offset = 0
		}
	}
	lo := int(min(offset, int64(n)))
	hi := n
	if length >= 0 && lo+length < n {
		hi = lo + length
	}
	return lo, hi
}

func (s *Series) Head(n int) *Series {
	return s.Slice(0, n)
}

func (s *Series) Tail(n int) *Series {
	if n >= s.length {
		return s
	}
	return s.Slice(int64(s.length-n), n)
}

// Gather takes the rows at idx. Indices must be in bounds.
func (s *Series) Gather(idx []Idx) *Series {
	out := s.shallow()
	out.values = gatherAny(s.values, idx)
	if s.validity != nil {
		out.validity = normalizeValidity(gatherSlice(s.validity, idx))
	} else if s.dtype == Null {
		out.validity = make([]bool, len(idx))
	}
	out.length = len(idx)
	out.chunks = nil
	if len(idx) > 0 {
		out.chunks = []int{len(idx)}
	}
	return out
}

// TryGather is Gather with a bounds check.
func (s *Series) TryGather(idx []Idx) (*Series, error) {
	for _, i := range idx {
		if i >= uint64(s.length) {
			return nil, execerror.Newf(execerror.EXEC_COMPUTE, "gather indices are out of bounds: %d >= %d", i, s.length)
		}
	}
	return s.Gather(idx), nil
}

// GatherNullable takes rows at idx where a negative index yields a null.
func (s *Series) GatherNullable(idx []int64) *Series {
	take := make([]Idx, len(idx))
	validity := make([]bool, len(idx))
	for i, j := range idx {
		if j >= 0 {
			take[i] = Idx(j)
			validity[i] = s.IsValid(int(j))
		}
	}
	if s.length == 0 {
		return FullNull(s.name, s.dtype, len(idx))
	}
	out := s.Gather(take)
	out.validity = normalizeValidity(validity)
	return out
}

// NewFromIndex repeats the i-th value n times.
func (s *Series) NewFromIndex(i int, n int) *Series {
	idx := make([]Idx, n)
	for j := range idx {
		idx[j] = Idx(i)
	}
	return s.Gather(idx)
}

// Filter keeps the rows where mask is true. Null mask entries drop the row.
// A length one mask is broadcast.
func (s *Series) Filter(mask *Series) (*Series, error) {
	bits, err := mask.Bool()
	if err != nil {
		return nil, execerror.Newf(execerror.EXEC_COMPUTE, "filter predicate must be of type `Boolean`, got `%s`", mask.Dtype())
	}
	if mask.Len() == 1 && s.length != 1 {
		if bits[0] && mask.IsValid(0) {
			return s, nil
		}
		return s.Slice(0, 0), nil
	}
	if mask.Len() != s.length {
		return nil, execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH,
			"filter's length: %d differs from that of the series: %d", mask.Len(), s.length)
	}
	idx := MaskToIdx(bits, mask.validity)
	return s.Gather(idx), nil
}

// MaskToIdx returns the positions of true and valid entries.
func MaskToIdx(bits []bool, validity []bool) []Idx {
	idx := make([]Idx, 0, len(bits))
	for i, b := range bits {
		if b && (validity == nil || validity[i]) {
			idx = append(idx, Idx(i))
		}
	}
	return idx
}

// Append concatenates other after s, keeping both chunk layouts.
func (s *Series) Append(other *Series) (*Series, error) {
	if other.length == 0 && other.dtype != s.dtype {
		return s, nil
	}
	if s.length == 0 && s.dtype != other.dtype {
		return other.Rename(s.name), nil
	}
	left, right := s, other
	if left.dtype != right.dtype {
		if left.dtype == Null {
			left = FullNull(left.name, right.dtype, left.length)
		} else if right.dtype == Null {
			right = FullNull(right.name, left.dtype, right.length)
		} else {
			return nil, execerror.Newf(execerror.EXEC_SCHEMA_MISMATCH,
				"cannot append series, data types don't match: %s and %s", left.dtype, right.dtype)
		}
	}
	out := left.shallow()
	out.values = appendAny(left.values, right.values)
	if left.validity != nil || right.validity != nil {
		v := make([]bool, 0, left.length+right.length)
		v = append(v, left.fullValidity()...)
		v = append(v, right.fullValidity()...)
		out.validity = normalizeValidity(v)
	}
	out.length = left.length + right.length
	out.chunks = append(append([]int{}, left.chunks...), right.chunks...)
	if out.dtype == List && out.inner == Null {
		out.inner = right.inner
	}
	return out, nil
}

func (s *Series) fullValidity() []bool {
	if s.validity != nil {
		return s.validity
	}
	v := make([]bool, s.length)
	for i := range v {
		v[i] = true
	}
	return v
}

// Concat appends all series in order.
func Concat(series []*Series) (*Series, error) {
	if len(series) == 0 {
		return nil, execerror.New(execerror.EXEC_COMPUTE, "cannot concat empty list of series")
	}
	out := series[0]
	for _, s := range series[1:] {
		var err error
		if out, err = out.Append(s); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// IsNull returns a boolean series marking null entries.
func (s *Series) IsNull() *Series {
	out := make([]bool, s.length)
	for i := range out {
		out[i] = !s.IsValid(i)
	}
	return NewBool(s.name, out)
}

func (s *Series) IsNotNull() *Series {
	out := make([]bool, s.length)
	for i := range out {
		out[i] = s.IsValid(i)
	}
	return NewBool(s.name, out)
}

// Flatten concatenates the rows of a list series. Null rows contribute
// nothing; lens holds the length of every row.
func (s *Series) Flatten() (*Series, []int, error) {
	rows, err := s.ListRows()
	if err != nil {
		return nil, nil, err
	}
	lens := make([]int, len(rows))
	parts := make([]*Series, 0, len(rows))
	for i, r := range rows {
		if r == nil || !s.IsValid(i) {
			continue
		}
		lens[i] = r.Len()
		if r.Len() > 0 {
			parts = append(parts, r)
		}
	}
	if len(parts) == 0 {
		return FullNull(s.name, s.inner, 0), lens, nil
	}
	flat, err := Concat(parts)
	if err != nil {
		return nil, nil, err
	}
	return flat.Rename(s.name).Rechunk(), lens, nil
}

// Explode flattens a list series where empty and null rows yield a single
// null. Non list series are returned as is.
func (s *Series) Explode() (*Series, []int, error) {
	if s.dtype != List {
		lens := make([]int, s.length)
		for i := range lens {
			lens[i] = 1
		}
		return s, lens, nil
	}
	rows, _ := s.ListRows()
	lens := make([]int, len(rows))
	parts := make([]*Series, 0, len(rows))
	for i, r := range rows {
		if r == nil || !s.IsValid(i) || r.Len() == 0 {
			parts = append(parts, FullNull(s.name, s.inner, 1))
			lens[i] = 1
			continue
		}
		parts = append(parts, r)
		lens[i] = r.Len()
	}
	if len(parts) == 0 {
		return FullNull(s.name, s.inner, 0), lens, nil
	}
	flat, err := Concat(parts)
	if err != nil {
		return nil, nil, err
	}
	return flat.Rename(s.name).Rechunk(), lens, nil
}

// Equal reports whether both series hold the same dtype, values and nulls.
// Names are not compared.
func (s *Series) Equal(other *Series) bool {
	if s.dtype != other.dtype || s.length != other.length {
		return false
	}
	for i := 0; i < s.length; i++ {
		if !valueEqual(s.Get(i), other.Get(i)) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *Series:
		y, ok := b.(*Series)
		return ok && x.Equal(y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valueEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// Values returns all values as plain Go values, nil for nulls.
func (s *Series) Values() []any {
	out := make([]any, s.length)
	for i := range out {
		out[i] = s.Get(i)
	}
	return out
}

func (s *Series) String() string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "shape: (%d,)\nSeries: '%s' [%s]\n[", s.length, s.name, s.dtype)
	for i := 0; i < s.length; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(FormatValue(s.Get(i)))
	}
	sb.WriteString("]")
	return sb.String()
}

// FormatValue renders a single value the way tables and series print it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", x)
	case *Series:
		parts := make([]string, x.Len())
		for i := range parts {
			parts[i] = FormatValue(x.Get(i))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []any:
		parts := make([]string, len(x))
		for i := range parts {
			parts[i] = FormatValue(x[i])
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
	return fmt.Sprintf("%v", v)
}

func gatherSlice[T any](v []T, idx []Idx) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}

func gatherAny(values any, idx []Idx) any {
	switch v := values.(type) {
	case []bool:
		return gatherSlice(v, idx)
	case []int64:
		return gatherSlice(v, idx)
	case []uint64:
		return gatherSlice(v, idx)
	case []float64:
		return gatherSlice(v, idx)
	case []string:
		return gatherSlice(v, idx)
	case listValues:
		return listValues(gatherSlice(v, idx))
	case structValues:
		out := make(structValues, len(v))
		for i, f := range v {
			out[i] = f.Gather(idx)
		}
		return out
	}
	return nil
}

func sliceAny(values any, lo, hi int) any {
	switch v := values.(type) {
	case []bool:
		return v[lo:hi]
	case []int64:
		return v[lo:hi]
	case []uint64:
		return v[lo:hi]
	case []float64:
		return v[lo:hi]
	case []string:
		return v[lo:hi]
	case listValues:
		return v[lo:hi]
	case structValues:
		out := make(structValues, len(v))
		for i, f := range v {
			out[i] = f.Slice(int64(lo), hi-lo)
		}
		return out
	}
	return nil
}

func concatSlices[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

func appendAny(a, b any) any {
	switch v := a.(type) {
	case []bool:
		return concatSlices(v, b.([]bool))
	case []int64:
		return concatSlices(v, b.([]int64))
	case []uint64:
		return concatSlices(v, b.([]uint64))
	case []float64:
		return concatSlices(v, b.([]float64))
	case []string:
		return concatSlices(v, b.([]string))
	case listValues:
		return listValues(concatSlices(v, b.(listValues)))
	case structValues:
		w := b.(structValues)
		out := make(structValues, len(v))
		for i := range v {
			out[i], _ = v[i].Append(w[i])
		}
		return out
	}
	return nil
}
