package source

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/recordschema"
)

// parsePayload parses one raw message (one tuple) per format and writes
// its fields into buf at row, shared by the TCP, MQTT and Kafka
// sources.
func parsePayload(format InputFormat, schema *recordschema.Schema, payload []byte, buf []byte, row int) error {
	switch format {
	case JSONInput:
		var obj map[string]interface{}
		if err := json.Unmarshal(bytes.TrimSpace(payload), &obj); err != nil {
			return edgeerrs.ProtocolViolation.New("invalid json tuple: %v", err)
		}
		for _, field := range schema.Fields() {
			v, ok := obj[field.Name]
			if !ok {
				return edgeerrs.ProtocolViolation.New("json tuple missing field %q", field.Name)
			}
			if err := writeFieldString(schema, buf, row, field, fmt.Sprint(v)); err != nil {
				return err
			}
		}
		return nil
	default:
		cols := strings.Split(string(bytes.TrimSpace(payload)), ",")
		fields := schema.Fields()
		if len(cols) < len(fields) {
			return edgeerrs.ProtocolViolation.New("tuple has %d columns, schema wants %d", len(cols), len(fields))
		}
		for i, field := range fields {
			if err := writeFieldString(schema, buf, row, field, strings.TrimSpace(cols[i])); err != nil {
				return err
			}
		}
		return nil
	}
}

// writeFieldString parses raw text into field's physical type and writes
// it at row/field of buf, laid out per schema. Unlike
// recordschema.RowLayout's WriteUint64/WriteInt64/WriteFloat64 (which
// assume an 8-byte field), this writes exactly field.Type.Width() bytes,
// so it is safe for the narrow integer/bool fields a CSV or TCP record
// may contain. Shared by the CSV and TCP (CSV/JSON-framed) sources.
func writeFieldString(schema *recordschema.Schema, buf []byte, row int, field recordschema.Field, raw string) error {
	off, ok := schema.Offset(field.Name)
	if !ok {
		return edgeerrs.ConfigInvalid.New("no such field %q", field.Name)
	}
	dst := buf[row*schema.RecordSizeBytes()+off:]
	parseInt := func(bitSize int) (int64, error) {
		switch field.Type {
		case recordschema.UInt8, recordschema.UInt16, recordschema.UInt32, recordschema.UInt64:
			u, err := strconv.ParseUint(raw, 10, bitSize)
			return int64(u), err
		}
		return strconv.ParseInt(raw, 10, bitSize)
	}

	switch field.Type {
	case recordschema.Float32:
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return edgeerrs.ProtocolViolation.New("field %q: %v", field.Name, err)
		}
		binary.LittleEndian.PutUint32(dst[:4], math.Float32bits(float32(v)))
	case recordschema.Float64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return edgeerrs.ProtocolViolation.New("field %q: %v", field.Name, err)
		}
		binary.LittleEndian.PutUint64(dst[:8], math.Float64bits(v))
	case recordschema.Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return edgeerrs.ProtocolViolation.New("field %q: %v", field.Name, err)
		}
		if v {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case recordschema.Int8, recordschema.UInt8:
		v, err := parseInt(8)
		if err != nil {
			return edgeerrs.ProtocolViolation.New("field %q: %v", field.Name, err)
		}
		dst[0] = byte(v)
	case recordschema.Int16, recordschema.UInt16:
		v, err := parseInt(16)
		if err != nil {
			return edgeerrs.ProtocolViolation.New("field %q: %v", field.Name, err)
		}
		binary.LittleEndian.PutUint16(dst[:2], uint16(v))
	case recordschema.Int32, recordschema.UInt32:
		v, err := parseInt(32)
		if err != nil {
			return edgeerrs.ProtocolViolation.New("field %q: %v", field.Name, err)
		}
		binary.LittleEndian.PutUint32(dst[:4], uint32(v))
	case recordschema.Int64, recordschema.UInt64:
		v, err := parseInt(64)
		if err != nil {
			return edgeerrs.ProtocolViolation.New("field %q: %v", field.Name, err)
		}
		binary.LittleEndian.PutUint64(dst[:8], uint64(v))
	default:
		return edgeerrs.ConfigInvalid.New("field %q: invalid physical type", field.Name)
	}
	return nil
}
