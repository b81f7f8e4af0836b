package sink_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/sink"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

func mustSinkSchema(t *testing.T) *recordschema.Schema {
	t.Helper()
	s, err := recordschema.New(
		recordschema.Field{Name: "id", Type: recordschema.Int64},
		recordschema.Field{Name: "value", Type: recordschema.Float64},
	)
	require.NoError(t, err)
	return s
}

func bufferWithRows(t *testing.T, schema *recordschema.Schema, rows [][2]float64) *tuplebuf.Buffer {
	t.Helper()
	pool := tuplebuf.NewPool(1, 4096)
	buf := pool.Acquire()
	layout := recordschema.NewRowLayout(schema)
	for i, r := range rows {
		require.NoError(t, layout.WriteInt64(buf.Bytes(), i, "id", int64(r[0])))
		require.NoError(t, layout.WriteFloat64(buf.Bytes(), i, "value", r[1]))
	}
	buf.SetNumberOfTuples(uint64(len(rows)))
	return buf
}

func TestFileSinkWritesCSVLines(t *testing.T) {
	schema := mustSinkSchema(t)
	path := filepath.Join(t.TempDir(), "out.csv")

	s, err := sink.NewFileSink(sink.FileConfig{Path: path, Format: sink.CSVFormat}, schema, nil)
	require.NoError(t, err)

	buf := bufferWithRows(t, schema, [][2]float64{{1, 2.5}, {2, 3.5}})
	require.NoError(t, s.Emit(buf))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "1,2.5\n2,3.5\n", string(data))
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	schema := mustSinkSchema(t)
	path := filepath.Join(t.TempDir(), "out.jsonl")

	s, err := sink.NewFileSink(sink.FileConfig{Path: path, Format: sink.JSONFormat}, schema, nil)
	require.NoError(t, err)

	buf := bufferWithRows(t, schema, [][2]float64{{7, 1.25}})
	require.NoError(t, s.Emit(buf))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":7,"value":1.25}`, string(data))
}

func TestFileSinkAppendsWithoutTruncating(t *testing.T) {
	schema := mustSinkSchema(t)
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("0,0\n"), 0o644))

	s, err := sink.NewFileSink(sink.FileConfig{Path: path, Format: sink.CSVFormat, Append: true}, schema, nil)
	require.NoError(t, err)

	buf := bufferWithRows(t, schema, [][2]float64{{1, 2}})
	require.NoError(t, s.Emit(buf))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "0,0\n1,2\n", string(data))
}

func TestFileSinkRejectsEmptyPath(t *testing.T) {
	_, err := sink.NewFileSink(sink.FileConfig{}, mustSinkSchema(t), nil)
	require.Error(t, err)
}
