package source

import "edgeflow.io/edgeflow/pkg/edgeerrs"

// ringBuffer is an append-and-consume byte buffer for data arriving
// faster than it can be framed into tuples: bytes are appended at the
// tail as they're read off the socket and consumed from the head as
// complete frames are extracted (the receive-side circular buffer of
// original TCPSource.cpp). Unlike the original, growth is bounded:
// appending past maxBytes is reported as an Io error rather than
// growing without limit, so a stalled consumer or a sender that never
// produces a separator/terminator can't exhaust memory.
type ringBuffer struct {
	buf      []byte
	maxBytes int
}

func newRingBuffer(maxBytes int) *ringBuffer {
	return &ringBuffer{maxBytes: maxBytes}
}

// Append adds p to the tail of the buffer.
func (r *ringBuffer) Append(p []byte) error {
	if len(r.buf)+len(p) > r.maxBytes {
		return edgeerrs.Io.New("tcp source: receive ring buffer would exceed bound of %d bytes", r.maxBytes)
	}
	r.buf = append(r.buf, p...)
	return nil
}

// Len returns the number of unconsumed bytes.
func (r *ringBuffer) Len() int { return len(r.buf) }

// IndexOf returns the offset of the first occurrence of token, or -1.
func (r *ringBuffer) IndexOf(token byte) int {
	for i, b := range r.buf {
		if b == token {
			return i
		}
	}
	return -1
}

// PopN removes and returns the first n bytes. n must not exceed Len();
// PopN does not check this, so callers check Len() first.
func (r *ringBuffer) PopN(n int) []byte {
	out := make([]byte, n)
	copy(out, r.buf[:n])
	r.buf = r.buf[n:]
	return out
}

// Discard drops the first n bytes without returning them (used to skip
// a consumed separator byte).
func (r *ringBuffer) Discard(n int) {
	r.buf = r.buf[n:]
}
