package networkio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryReplayStoreTrimKeepsOnlyLaterEntries(t *testing.T) {
	store := newMemoryReplayStore()
	require.NoError(t, store.Append(BufferHeader{Watermark: 10}, []byte("a")))
	require.NoError(t, store.Append(BufferHeader{Watermark: 20}, []byte("b")))
	require.NoError(t, store.Append(BufferHeader{Watermark: 30}, []byte("c")))

	store.TrimUntil(20)

	pending := store.Pending()
	require.Len(t, pending, 1)
	require.EqualValues(t, 30, pending[0].header.Watermark)
}

func TestMemoryReplayStorePendingIsASnapshot(t *testing.T) {
	store := newMemoryReplayStore()
	require.NoError(t, store.Append(BufferHeader{Watermark: 1}, []byte("a")))

	snapshot := store.Pending()
	require.NoError(t, store.Append(BufferHeader{Watermark: 2}, []byte("b")))

	require.Len(t, snapshot, 1, "Pending must return a copy, unaffected by later appends")
}

func TestEncodeReplayFrameRoundTrip(t *testing.T) {
	h := BufferHeader{OriginID: 7, Sequence: 42, Watermark: 1000}
	frame := encodeReplayFrame(h, []byte("payload"))
	require.Equal(t, "payload", string(frame[24:]))
	require.Len(t, frame, 24+len("payload"))
}
