package source_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/source"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

func TestMemorySourceReplaysAreaBuffersToProduceTimes(t *testing.T) {
	area := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	pool := tuplebuf.NewPool(8, 64)
	emit, collected := collectEmitter()
	successor := &collectingSuccessor{}

	src, err := source.NewMemorySource(source.MemoryConfig{
		MemoryArea:          area,
		RecordSizeBytes:     4,
		BuffersToProduce:    3,
		GatheringIntervalMS: 1,
	}, 7, pool, emit, successor, nil)
	require.NoError(t, err)

	require.NoError(t, src.Start(context.Background()))

	bufs := collected()
	require.Len(t, bufs, 3)
	for i, b := range bufs {
		require.EqualValues(t, 7, b.OriginID())
		require.EqualValues(t, i, b.SequenceNumber())
		require.EqualValues(t, 2, b.NumberOfTuples())
		require.Equal(t, area, b.Bytes()[:len(area)])
	}
}
