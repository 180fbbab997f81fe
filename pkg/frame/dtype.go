package frame

import "fmt"

// DataType is the logical type of a Series.
type DataType int

const (
	Null DataType = iota
	Boolean
	Int32
	Int64
	UInt32
	UInt64
	Float64
	String
	List
	Struct
)

// Idx is the row index type used by groups, permutations and gathers.
type Idx = uint64

// IdxType is the DataType of Series holding row indices and counts.
const IdxType = UInt64

var dtypeNames = map[DataType]string{
	Null:    "null",
	Boolean: "bool",
	Int32:   "i32",
	Int64:   "i64",
	UInt32:  "u32",
	UInt64:  "u64",
	Float64: "f64",
	String:  "str",
	List:    "list",
	Struct:  "struct",
}

func (d DataType) String() string {
	if n, ok := dtypeNames[d]; ok {
		return n
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

func (d DataType) IsSigned() bool {
	return d == Int32 || d == Int64
}

func (d DataType) IsUnsigned() bool {
	return d == UInt32 || d == UInt64
}

func (d DataType) IsInteger() bool {
	return d.IsSigned() || d.IsUnsigned()
}

func (d DataType) IsFloat() bool {
	return d == Float64
}

func (d DataType) IsNumeric() bool {
	return d.IsInteger() || d.IsFloat()
}

func (d DataType) IsNested() bool {
	return d == List || d == Struct
}

// Supertype returns the type both l and r can be losslessly cast to,
// or false when none exists.
func Supertype(l, r DataType) (DataType, bool) {
	if l == r {
		return l, true
	}
	if l == Null {
		return r, true
	}
	if r == Null {
		return l, true
	}
	switch {
	case l.IsFloat() && r.IsNumeric(), r.IsFloat() && l.IsNumeric():
		return Float64, true
	case l.IsUnsigned() && r.IsUnsigned():
		return UInt64, true
	case l.IsInteger() && r.IsInteger():
		return Int64, true
	case l == Boolean && r.IsNumeric():
		return r, true
	case r == Boolean && l.IsNumeric():
		return l, true
	case l == String || r == String:
		if l.IsNested() || r.IsNested() {
			return Null, false
		}
		return String, true
	}
	return Null, false
}

// Field is a named DataType.
type Field struct {
	Name  string
	Dtype DataType
}

func NewField(name string, dtype DataType) Field {
	return Field{Name: name, Dtype: dtype}
}

func (f Field) String() string {
	return fmt.Sprintf("%s: %s", f.Name, f.Dtype)
}
