package recordschema

import (
	"encoding/binary"
	"math"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
)

// RowLayout writes and reads fixed-width rows into a byte slice at
// precomputed field offsets, always little-endian whatever the host's
// byte order: no reflection, no per-call allocation on the hot path.
type RowLayout struct {
	schema *Schema
}

// NewRowLayout binds a row layout to schema.
func NewRowLayout(schema *Schema) *RowLayout {
	return &RowLayout{schema: schema}
}

// Schema returns the bound schema.
func (r *RowLayout) Schema() *Schema { return r.schema }

// RowAt returns the byte range [start, end) of the row-th record within
// a buffer of the bound schema's stride.
func (r *RowLayout) RowAt(buf []byte, row int) []byte {
	stride := r.schema.RecordSizeBytes()
	start := row * stride
	return buf[start : start+stride]
}

func fieldSlice(row []byte, offset, width int) []byte {
	return row[offset : offset+width]
}

// WriteUint64 writes v into the named field of the row-th record.
func (r *RowLayout) WriteUint64(buf []byte, row int, field string, v uint64) error {
	off, ok := r.schema.Offset(field)
	if !ok {
		return edgeerrs.ConfigInvalid.New("no such field %q", field)
	}
	rowBytes := r.RowAt(buf, row)
	binary.LittleEndian.PutUint64(fieldSlice(rowBytes, off, 8), v)
	return nil
}

// ReadUint64 reads the named field of the row-th record.
func (r *RowLayout) ReadUint64(buf []byte, row int, field string) (uint64, error) {
	off, ok := r.schema.Offset(field)
	if !ok {
		return 0, edgeerrs.ConfigInvalid.New("no such field %q", field)
	}
	rowBytes := r.RowAt(buf, row)
	return binary.LittleEndian.Uint64(fieldSlice(rowBytes, off, 8)), nil
}

// WriteInt64 writes a signed 64-bit value.
func (r *RowLayout) WriteInt64(buf []byte, row int, field string, v int64) error {
	return r.WriteUint64(buf, row, field, uint64(v))
}

// ReadInt64 reads a signed 64-bit value.
func (r *RowLayout) ReadInt64(buf []byte, row int, field string) (int64, error) {
	v, err := r.ReadUint64(buf, row, field)
	return int64(v), err
}

// WriteFloat64 writes a float64 value.
func (r *RowLayout) WriteFloat64(buf []byte, row int, field string, v float64) error {
	return r.WriteUint64(buf, row, field, math.Float64bits(v))
}

// ReadFloat64 reads a float64 value.
func (r *RowLayout) ReadFloat64(buf []byte, row int, field string) (float64, error) {
	v, err := r.ReadUint64(buf, row, field)
	return math.Float64frombits(v), err
}

// CopyField copies the raw bytes of one field from a source row (laid
// out per srcLayout) into the destination row at the position named by
// dstField. Widths must match; used to copy a join key or payload field
// verbatim without knowing its logical type.
func CopyField(dst []byte, dstLayout *RowLayout, dstRow int, dstField string,
	src []byte, srcLayout *RowLayout, srcRow int, srcField string) error {
	dOff, ok := dstLayout.schema.Offset(dstField)
	if !ok {
		return edgeerrs.ConfigInvalid.New("no such destination field %q", dstField)
	}
	sOff, ok := srcLayout.schema.Offset(srcField)
	if !ok {
		return edgeerrs.ConfigInvalid.New("no such source field %q", srcField)
	}
	dWidth := fieldWidth(dstLayout.schema, dstField)
	sWidth := fieldWidth(srcLayout.schema, srcField)
	if dWidth != sWidth {
		return edgeerrs.ConfigInvalid.New("field width mismatch: %s=%d %s=%d", dstField, dWidth, srcField, sWidth)
	}
	dRow := dstLayout.RowAt(dst, dstRow)
	sRow := srcLayout.RowAt(src, srcRow)
	copy(fieldSlice(dRow, dOff, dWidth), fieldSlice(sRow, sOff, sWidth))
	return nil
}

func fieldWidth(s *Schema, name string) int {
	for _, f := range s.Fields() {
		if f.Name == name {
			return f.Type.Width()
		}
	}
	return 0
}
