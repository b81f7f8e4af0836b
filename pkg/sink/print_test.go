package sink_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/sink"
)

func TestPrintSinkWritesCSVAndFlushesOnEmit(t *testing.T) {
	schema := mustSinkSchema(t)
	var out bytes.Buffer

	s := sink.NewPrintSink(sink.PrintConfig{Stream: &out, Format: sink.CSVFormat}, schema)
	buf := bufferWithRows(t, schema, [][2]float64{{1, 2}})

	require.NoError(t, s.Emit(buf))
	require.Equal(t, "1,2\n", out.String())
}

func TestPrintSinkWritesJSON(t *testing.T) {
	schema := mustSinkSchema(t)
	var out bytes.Buffer

	s := sink.NewPrintSink(sink.PrintConfig{Stream: &out, Format: sink.JSONFormat}, schema)
	buf := bufferWithRows(t, schema, [][2]float64{{9, 0.5}})

	require.NoError(t, s.Emit(buf))
	require.JSONEq(t, `{"id":9,"value":0.5}`, out.String())
}
