// Package recordschema describes the row-wise record layout that flows
// through tuple buffers: an ordered list of fixed-width fields.
package recordschema

import "edgeflow.io/edgeflow/pkg/edgeerrs"

// PhysicalType is a fixed-width wire/memory type for a field.
type PhysicalType int

const (
	// Invalid is the zero value; a schema may not contain it.
	Invalid PhysicalType = iota
	Int8
	Int16
	Int32
	Int64
	UInt8
	UInt16
	UInt32
	UInt64
	Float32
	Float64
	Bool
)

// Width returns the fixed byte width of t, or 0 for Invalid.
func (t PhysicalType) Width() int {
	switch t {
	case Int8, UInt8, Bool:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Int64, UInt64, Float64:
		return 8
	default:
		return 0
	}
}

func (t PhysicalType) String() string {
	switch t {
	case Int8:
		return "INT8"
	case Int16:
		return "INT16"
	case Int32:
		return "INT32"
	case Int64:
		return "INT64"
	case UInt8:
		return "UINT8"
	case UInt16:
		return "UINT16"
	case UInt32:
		return "UINT32"
	case UInt64:
		return "UINT64"
	case Float32:
		return "FLOAT32"
	case Float64:
		return "FLOAT64"
	case Bool:
		return "BOOL"
	default:
		return "INVALID"
	}
}

// Field is a single named, fixed-width column in a Schema.
type Field struct {
	Name string
	Type PhysicalType
}

// Schema is an ordered list of fields. It is immutable once built with
// New; record size is the sum of field widths.
type Schema struct {
	fields  []Field
	offsets []int
	size    int
}

// New validates fields and precomputes byte offsets for a row layout.
func New(fields ...Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, edgeerrs.ConfigInvalid.New("schema must have at least one field")
	}
	s := &Schema{
		fields:  append([]Field(nil), fields...),
		offsets: make([]int, len(fields)),
	}
	offset := 0
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, edgeerrs.ConfigInvalid.New("field %d has empty name", i)
		}
		if seen[f.Name] {
			return nil, edgeerrs.ConfigInvalid.New("duplicate field name %q", f.Name)
		}
		seen[f.Name] = true
		width := f.Type.Width()
		if width == 0 {
			return nil, edgeerrs.ConfigInvalid.New("field %q has invalid physical type", f.Name)
		}
		s.offsets[i] = offset
		offset += width
	}
	s.size = offset
	return s, nil
}

// Fields returns the ordered field list.
func (s *Schema) Fields() []Field { return s.fields }

// RecordSizeBytes is the sum of all field widths: the fixed row stride.
func (s *Schema) RecordSizeBytes() int { return s.size }

// Offset returns the byte offset of the named field within a row, and
// whether the field exists.
func (s *Schema) Offset(name string) (int, bool) {
	for i, f := range s.fields {
		if f.Name == name {
			return s.offsets[i], true
		}
	}
	return 0, false
}

// Get returns the field at position i and its byte offset.
func (s *Schema) Get(i int) (Field, int) {
	return s.fields[i], s.offsets[i]
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Concat builds the output schema of a join: left fields, then right
// fields, each verbatim (the caller is responsible for prefixing any
// window/key columns before calling Concat).
func Concat(a, b *Schema) (*Schema, error) {
	fields := make([]Field, 0, a.Len()+b.Len())
	fields = append(fields, a.Fields()...)
	fields = append(fields, b.Fields()...)
	return New(fields...)
}
