package networkio_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"edgeflow.io/edgeflow/pkg/networkio"
)

func TestBufferFrameRoundTrip(t *testing.T) {
	h := networkio.BufferHeader{OriginID: 7, Sequence: 42, Watermark: 1000, TupleCount: 3}
	payload := []byte("abcdef")

	encoded := networkio.AppendBufferFrame(nil, h, payload)
	rem, got, gotPayload, ok, err := networkio.ParseBufferFrame(encoded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, rem)
	require.Equal(t, h, got)
	require.Equal(t, payload, gotPayload)
}

func TestBufferFrameParseReportsNotReadyOnPartialFrame(t *testing.T) {
	h := networkio.BufferHeader{OriginID: 1, Sequence: 1, Watermark: 1, TupleCount: 1}
	encoded := networkio.AppendBufferFrame(nil, h, []byte("xyz"))

	_, _, _, ok, err := networkio.ParseBufferFrame(encoded[:len(encoded)-1])
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBufferFrameParseConsumesOnlyOneFrame(t *testing.T) {
	h1 := networkio.BufferHeader{OriginID: 1, Sequence: 1, Watermark: 10, TupleCount: 1}
	h2 := networkio.BufferHeader{OriginID: 2, Sequence: 2, Watermark: 20, TupleCount: 2}
	var buf []byte
	buf = networkio.AppendBufferFrame(buf, h1, []byte("a"))
	buf = networkio.AppendBufferFrame(buf, h2, []byte("bb"))

	rem, got1, payload1, ok, err := networkio.ParseBufferFrame(buf)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, h1, got1)
	require.Equal(t, []byte("a"), payload1)

	_, got2, payload2, ok, err := networkio.ParseBufferFrame(rem)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, h2, got2)
	require.Equal(t, []byte("bb"), payload2)
}

func TestBufferFrameStreamRoundTrip(t *testing.T) {
	h := networkio.BufferHeader{OriginID: 2, Sequence: 3, Watermark: 4, TupleCount: 5}
	var buf bytes.Buffer
	require.NoError(t, networkio.WriteBufferFrame(&buf, h, []byte("hello")))

	got, payload, err := networkio.ReadBufferFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.Equal(t, []byte("hello"), payload)
}

func TestEventFrameRoundTrip(t *testing.T) {
	encoded := networkio.AppendPropagateEpoch(nil, networkio.PropagateEpoch{QueryID: 9, EpochTS: 123})
	rem, kind, payload, ok, err := networkio.ParseEventFrame(encoded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, rem)
	require.Equal(t, networkio.PropagateEpochEvent, kind)

	ack, err := networkio.ParsePropagateEpoch(payload)
	require.NoError(t, err)
	require.EqualValues(t, 9, ack.QueryID)
	require.EqualValues(t, 123, ack.EpochTS)
}

func TestEventFrameStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, networkio.WriteEventFrame(&buf, networkio.StartSourceEvent, nil))

	kind, payload, err := networkio.ReadEventFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, networkio.StartSourceEvent, kind)
	require.Empty(t, payload)
}
