package networkio_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/networkio"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

func TestRegistryRegisterConsumerIsIdempotent(t *testing.T) {
	r := networkio.NewRegistry()
	p := networkio.Partition{OperatorID: 1, SubplanID: 1, SenderLocation: "a", ReceiverLocation: "b"}

	calls := 0
	first := func(buf *tuplebuf.Buffer) error { calls++; return nil }
	second := func(buf *tuplebuf.Buffer) error { calls += 100; return nil }

	r.RegisterConsumer(p, first)
	r.RegisterConsumer(p, second)

	emit, ok := r.Lookup(p)
	require.True(t, ok)
	require.NoError(t, emit(nil))
	require.Equal(t, 1, calls, "second registration for an already-bound partition must be a no-op")
}

func TestRegistryUnregisterConsumer(t *testing.T) {
	r := networkio.NewRegistry()
	p := networkio.Partition{OperatorID: 2, SubplanID: 1, SenderLocation: "a", ReceiverLocation: "b"}
	r.RegisterConsumer(p, func(buf *tuplebuf.Buffer) error { return nil })

	r.UnregisterConsumer(p)
	_, ok := r.Lookup(p)
	require.False(t, ok)
}

func TestRegistryLookupMissingPartition(t *testing.T) {
	r := networkio.NewRegistry()
	_, ok := r.Lookup(networkio.Partition{OperatorID: 99})
	require.False(t, ok)
}
