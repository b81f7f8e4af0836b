package sink_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/sink"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

func TestNullSinkDiscardsEverything(t *testing.T) {
	s := sink.NewNullSink()
	pool := tuplebuf.NewPool(1, 4096)
	buf := pool.Acquire()
	buf.SetNumberOfTuples(3)

	require.NoError(t, s.Emit(buf))
	require.NoError(t, s.Close())
}
