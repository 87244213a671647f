package schema

import "github.com/nebulastream/nesengine/engerrors"

// Layout selects how a Schema's tuples are packed inside a buffer payload.
type Layout int

const (
	RowLayout Layout = iota
	ColumnLayout
)

// Schema is an ordered list of named, typed fields plus the memory layout
// used to pack tuples of that shape into a buffer payload.
type Schema struct {
	Fields []Field
	Layout Layout
}

// New builds a schema over fields using the given layout.
func New(layout Layout, fields ...Field) Schema {
	return Schema{Fields: append([]Field(nil), fields...), Layout: layout}
}

// IndexOf returns the position of a named field, or -1 if absent.
func (s Schema) IndexOf(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Field looks up a field by name.
func (s Schema) Field(name string) (Field, bool) {
	idx := s.IndexOf(name)
	if idx < 0 {
		return Field{}, false
	}
	return s.Fields[idx], true
}

// TupleSize is the sum of every field's fixed footprint (the row stride,
// or the sum of per-field column strides).
func (s Schema) TupleSize() int {
	total := 0
	for _, f := range s.Fields {
		total += f.Size()
	}
	return total
}

// WithFields returns a copy of s with additional fields appended, used by
// operators that introduce implicit output columns (window start/end,
// qualified key columns).
func (s Schema) WithFields(extra ...Field) Schema {
	out := Schema{Layout: s.Layout, Fields: make([]Field, 0, len(s.Fields)+len(extra))}
	out.Fields = append(out.Fields, s.Fields...)
	out.Fields = append(out.Fields, extra...)
	return out
}

// Qualify returns a copy of s with every field name prefixed by
// qualifier+".", used when a binary operator must disambiguate columns
// coming from two inputs with colliding names.
func (s Schema) Qualify(qualifier string) Schema {
	out := Schema{Layout: s.Layout, Fields: make([]Field, len(s.Fields))}
	for i, f := range s.Fields {
		out.Fields[i] = Field{Name: qualifier + "." + f.Name, Type: f.Type, Width: f.Width}
	}
	return out
}

// Resolve validates that every name in fieldNames exists in s, returning
// SchemaInferenceFailure on the first miss.
func (s Schema) Resolve(fieldNames ...string) error {
	for _, name := range fieldNames {
		if s.IndexOf(name) < 0 {
			return engerrors.New(engerrors.SchemaInferenceFailure, "unknown field").
				WithContext("field", name)
		}
	}
	return nil
}
