package frame

import (
	"strings"

	"github.com/pg-sharding/colexec/pkg/models/execerror"
)

// Schema is an ordered set of uniquely named fields.
type Schema struct {
	fields []Field
	index  map[string]int
}

func NewSchema(fields ...Field) *Schema {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		s.With(f)
	}
	return s
}

// With inserts f, replacing a field of the same name in place.
func (s *Schema) With(f Field) {
	if i, ok := s.index[f.Name]; ok {
		s.fields[i] = f
		return
	}
	s.index[f.Name] = len(s.fields)
	s.fields = append(s.fields, f)
}

func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

func (s *Schema) Fields() []Field {
	return s.fields
}

func (s *Schema) At(i int) (Field, bool) {
	if i < 0 || i >= len(s.fields) {
		return Field{}, false
	}
	return s.fields[i], true
}

func (s *Schema) IndexOf(name string) (int, bool) {
	if s == nil {
		return 0, false
	}
	i, ok := s.index[name]
	return i, ok
}

func (s *Schema) Get(name string) (Field, bool) {
	i, ok := s.IndexOf(name)
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Try is Get returning a ColumnNotFound error.
func (s *Schema) Try(name string) (Field, error) {
	f, ok := s.Get(name)
	if !ok {
		return Field{}, execerror.Newf(execerror.EXEC_COLUMN_NOT_FOUND, "could not find %q in schema", name)
	}
	return f, nil
}

func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

func (s *Schema) Clone() *Schema {
	return NewSchema(s.fields...)
}

func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
