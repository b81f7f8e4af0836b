package tuplebuf_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

func TestAcquireReleaseReclaims(t *testing.T) {
	pool := tuplebuf.NewPool(1, 128, tuplebuf.WithDebug())

	buf := pool.Acquire()
	require.Equal(t, 128, buf.CapacityBytes())
	require.EqualValues(t, 1, buf.RefCount())

	_, err := pool.AcquireNonBlocking()
	require.Error(t, err)
	require.True(t, edgeerrs.ResourceExhausted.Has(err))

	buf.Release()

	buf2, err := pool.AcquireNonBlocking()
	require.NoError(t, err)
	require.NotNil(t, buf2)
}

func TestRetainSharesStorage(t *testing.T) {
	pool := tuplebuf.NewPool(1, 64)
	buf := pool.Acquire()
	buf.SetNumberOfTuples(3)

	clone := buf.Retain()
	require.EqualValues(t, 2, buf.RefCount())
	require.Equal(t, buf.Bytes(), clone.Bytes())
	require.EqualValues(t, 3, clone.NumberOfTuples())

	clone.Release()
	require.EqualValues(t, 1, buf.RefCount())
	buf.Release()
}

func TestDoubleReleasePanicsInDebugMode(t *testing.T) {
	pool := tuplebuf.NewPool(1, 32, tuplebuf.WithDebug())
	buf := pool.Acquire()
	buf.Release()
	require.Panics(t, func() { buf.Release() })
}

func TestAcquireUnpooledBypassesPoolAccounting(t *testing.T) {
	buf := tuplebuf.AcquireUnpooled(512)
	require.Equal(t, 512, buf.CapacityBytes())
	require.NotPanics(t, func() { buf.Release() })
	require.Panics(t, func() { buf.Release() })
}

func TestMetadataRoundTrip(t *testing.T) {
	pool := tuplebuf.NewPool(1, 16)
	buf := pool.Acquire()
	buf.SetOriginID(7)
	buf.SetSequenceNumber(42)
	buf.SetWatermarkTS(1000)
	buf.SetNumberOfTuples(5)

	require.EqualValues(t, 7, buf.OriginID())
	require.EqualValues(t, 42, buf.SequenceNumber())
	require.EqualValues(t, 1000, buf.WatermarkTS())
	require.EqualValues(t, 5, buf.NumberOfTuples())
}
