package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/config"
)

const sampleYAML = `
pool:
  buffer_size_bytes: 4096
  buffer_count: 16
worker_pool:
  kind: static
  num_threads: 2
sources:
  - name: readings
    type: csv
    origin_id: 1
    csv:
      file_path: /tmp/readings.csv
      tuples_per_buffer: 100
sinks:
  - name: out
    type: file
    file:
      path: /tmp/out.csv
      format: csv
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	path := writeTemp(t, sampleYAML)

	w, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, 4096, w.Pool.BufferSizeBytes)
	require.Equal(t, 16, w.Pool.BufferCount)
	require.Equal(t, "static", w.WorkerPool.Kind)
	require.Equal(t, ":9090", w.Metrics.ListenAddr) // default retained
	require.Equal(t, "inprocess", w.ReconfigBus.Kind)

	require.Len(t, w.Sources, 1)
	require.Equal(t, "csv", w.Sources[0].Type)
	require.Equal(t, "/tmp/readings.csv", w.Sources[0].CSV.FilePath)

	require.Len(t, w.Sinks, 1)
	require.Equal(t, "file", w.Sinks[0].Type)
	require.Equal(t, "/tmp/out.csv", w.Sinks[0].File.Path)
}

func TestLoadRejectsMissingSourceType(t *testing.T) {
	path := writeTemp(t, `
sources:
  - name: bad
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadWorkerPoolKind(t *testing.T) {
	path := writeTemp(t, `
worker_pool:
  kind: chaotic
`)
	_, err := config.Load(path)
	require.Error(t, err)
}
