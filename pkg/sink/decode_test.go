package sink_test

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/sink"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

func writeFloat32(row []byte, off int, v float32) error {
	binary.LittleEndian.PutUint32(row[off:off+4], math.Float32bits(v))
	return nil
}

func TestFileSinkCSVRendersMixedWidthFields(t *testing.T) {
	schema, err := recordschema.New(
		recordschema.Field{Name: "flag", Type: recordschema.Bool},
		recordschema.Field{Name: "tiny", Type: recordschema.Int8},
		recordschema.Field{Name: "u16", Type: recordschema.UInt16},
		recordschema.Field{Name: "i32", Type: recordschema.Int32},
		recordschema.Field{Name: "u64", Type: recordschema.UInt64},
		recordschema.Field{Name: "f32", Type: recordschema.Float32},
	)
	require.NoError(t, err)
	layout := recordschema.NewRowLayout(schema)

	pool := tuplebuf.NewPool(1, 4096)
	buf := pool.Acquire()
	require.NoError(t, layout.WriteUint64(buf.Bytes(), 0, "u64", 123)) // width 8, written first to avoid overlap checks below
	row := layout.RowAt(buf.Bytes(), 0)

	off, ok := schema.Offset("flag")
	require.True(t, ok)
	row[off] = 1
	off, _ = schema.Offset("tiny")
	row[off] = byte(int8(-5))
	off, _ = schema.Offset("u16")
	row[off], row[off+1] = 0x2C, 0x01 // little-endian 300
	off, _ = schema.Offset("i32")
	row[off], row[off+1], row[off+2], row[off+3] = 0xFF, 0xFF, 0xFF, 0xFF // -1
	off, _ = schema.Offset("f32")
	require.NoError(t, writeFloat32(row, off, 1.5))

	buf.SetNumberOfTuples(1)

	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := sink.NewFileSink(sink.FileConfig{Path: path, Format: sink.CSVFormat}, schema, nil)
	require.NoError(t, err)
	require.NoError(t, s.Emit(buf))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "true,-5,300,-1,123,1.5\n", string(data))
}
