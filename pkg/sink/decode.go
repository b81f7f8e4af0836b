// Package sink implements the terminal operators a pipeline's output can
// be bound to: file, print, null, zmq, kafka and mqtt sinks, each
// consuming tuple buffers in the record layout pkg/recordschema
// describes. The network sink lives in pkg/networkio.
package sink

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/recordschema"
)

// SerializeFormat selects the text/binary encoding a sink writes rows
// in. BinaryNative writes the row's raw in-memory bytes verbatim.
type SerializeFormat int

const (
	CSVFormat SerializeFormat = iota
	JSONFormat
	BinaryNativeFormat
)

// fieldString reads field out of row at the schema's declared width and
// renders it as a string, the inverse of pkg/source/encode.go's
// writeFieldString. It reads directly at the field's byte offset rather
// than going through recordschema.RowLayout, for the same reason
// writeFieldString writes directly: RowLayout's typed accessors assume
// 8-byte fields.
func fieldString(schema *recordschema.Schema, row []byte, field recordschema.Field) (string, error) {
	off, ok := schema.Offset(field.Name)
	if !ok {
		return "", edgeerrs.ConfigInvalid.New("unknown field %q", field.Name)
	}
	src := row[off : off+field.Type.Width()]

	switch field.Type {
	case recordschema.Float32:
		bits := binary.LittleEndian.Uint32(src)
		return strconv.FormatFloat(float64(math.Float32frombits(bits)), 'g', -1, 32), nil
	case recordschema.Float64:
		bits := binary.LittleEndian.Uint64(src)
		return strconv.FormatFloat(math.Float64frombits(bits), 'g', -1, 64), nil
	case recordschema.Bool:
		return strconv.FormatBool(src[0] != 0), nil
	case recordschema.Int8:
		return strconv.FormatInt(int64(int8(src[0])), 10), nil
	case recordschema.UInt8:
		return strconv.FormatUint(uint64(src[0]), 10), nil
	case recordschema.Int16:
		return strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(src))), 10), nil
	case recordschema.UInt16:
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint16(src)), 10), nil
	case recordschema.Int32:
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(src))), 10), nil
	case recordschema.UInt32:
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(src)), 10), nil
	case recordschema.Int64:
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(src)), 10), nil
	case recordschema.UInt64:
		return strconv.FormatUint(binary.LittleEndian.Uint64(src), 10), nil
	default:
		return "", edgeerrs.ConfigInvalid.New("unsupported physical type %s", field.Type)
	}
}

// fieldValue is fieldString's typed counterpart, used for JSON output
// where numeric fields must not be quoted.
func fieldValue(schema *recordschema.Schema, row []byte, field recordschema.Field) (interface{}, error) {
	off, ok := schema.Offset(field.Name)
	if !ok {
		return nil, edgeerrs.ConfigInvalid.New("unknown field %q", field.Name)
	}
	src := row[off : off+field.Type.Width()]

	switch field.Type {
	case recordschema.Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(src))), nil
	case recordschema.Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(src)), nil
	case recordschema.Bool:
		return src[0] != 0, nil
	case recordschema.Int8:
		return int64(int8(src[0])), nil
	case recordschema.UInt8:
		return uint64(src[0]), nil
	case recordschema.Int16:
		return int64(int16(binary.LittleEndian.Uint16(src))), nil
	case recordschema.UInt16:
		return uint64(binary.LittleEndian.Uint16(src)), nil
	case recordschema.Int32:
		return int64(int32(binary.LittleEndian.Uint32(src))), nil
	case recordschema.UInt32:
		return uint64(binary.LittleEndian.Uint32(src)), nil
	case recordschema.Int64:
		return int64(binary.LittleEndian.Uint64(src)), nil
	case recordschema.UInt64:
		return binary.LittleEndian.Uint64(src), nil
	default:
		return nil, edgeerrs.ConfigInvalid.New("unsupported physical type %s", field.Type)
	}
}

// rowAt returns the byte range of row i in buf for schema.
func rowAt(schema *recordschema.Schema, buf []byte, row int) []byte {
	stride := schema.RecordSizeBytes()
	return buf[row*stride : (row+1)*stride]
}

func formatCSVRow(schema *recordschema.Schema, row []byte) (string, error) {
	fields := schema.Fields()
	out := make([]byte, 0, 64)
	for i, f := range fields {
		s, err := fieldString(schema, row, f)
		if err != nil {
			return "", err
		}
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, s...)
	}
	return string(out), nil
}

func formatJSONRow(schema *recordschema.Schema, row []byte) (string, error) {
	m := make(map[string]interface{}, schema.Len())
	for _, f := range schema.Fields() {
		v, err := fieldValue(schema, row, f)
		if err != nil {
			return "", err
		}
		m[f.Name] = v
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", edgeerrs.Io.Wrap(err)
	}
	return string(b), nil
}
