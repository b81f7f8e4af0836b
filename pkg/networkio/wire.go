package networkio

import (
	"encoding/binary"
	"io"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
)

// BufferHeader is the fixed metadata carried in front of every tuple
// buffer's payload on the data channel: origin and
// sequence number for gap-free reassembly, the buffer's watermark, and
// its tuple count.
type BufferHeader struct {
	OriginID   uint64
	Sequence   uint64
	Watermark  uint64
	TupleCount uint32
}

const bufferHeaderSize = 8 + 8 + 8 + 4

// AppendBufferFrame appends a length-prefixed data frame (header +
// payload) to buf and returns the extended slice, following the same
// append-style wire helper shape as drpcwire's AppendHeader.
func AppendBufferFrame(buf []byte, h BufferHeader, payload []byte) []byte {
	frameLen := uint32(bufferHeaderSize + len(payload))
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], frameLen)
	buf = append(buf, lenPrefix[:]...)

	var hdr [bufferHeaderSize]byte
	binary.BigEndian.PutUint64(hdr[0:8], h.OriginID)
	binary.BigEndian.PutUint64(hdr[8:16], h.Sequence)
	binary.BigEndian.PutUint64(hdr[16:24], h.Watermark)
	binary.BigEndian.PutUint32(hdr[24:28], h.TupleCount)
	buf = append(buf, hdr[:]...)

	return append(buf, payload...)
}

// ParseBufferFrame parses one data frame from the front of buf. ok is
// false (with a nil error) when buf does not yet hold a complete frame,
// mirroring drpcwire's ParseHeader "not enough bytes yet" contract so
// callers can keep accumulating from a ring buffer or socket.
func ParseBufferFrame(buf []byte) (rem []byte, h BufferHeader, payload []byte, ok bool, err error) {
	if len(buf) < 4 {
		return buf, BufferHeader{}, nil, false, nil
	}
	frameLen := binary.BigEndian.Uint32(buf[:4])
	if uint64(len(buf)) < 4+uint64(frameLen) {
		return buf, BufferHeader{}, nil, false, nil
	}
	if frameLen < bufferHeaderSize {
		return buf, BufferHeader{}, nil, false, edgeerrs.ProtocolViolation.New("buffer frame shorter than header: %d bytes", frameLen)
	}

	body := buf[4 : 4+frameLen]
	h.OriginID = binary.BigEndian.Uint64(body[0:8])
	h.Sequence = binary.BigEndian.Uint64(body[8:16])
	h.Watermark = binary.BigEndian.Uint64(body[16:24])
	h.TupleCount = binary.BigEndian.Uint32(body[24:28])
	payload = body[bufferHeaderSize:]
	rem = buf[4+frameLen:]
	return rem, h, payload, true, nil
}

// ReadBufferFrame reads exactly one data frame off r, blocking until the
// full frame has arrived.
func ReadBufferFrame(r io.Reader) (BufferHeader, []byte, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return BufferHeader{}, nil, err
	}
	frameLen := binary.BigEndian.Uint32(lenPrefix[:])
	if frameLen < bufferHeaderSize {
		return BufferHeader{}, nil, edgeerrs.ProtocolViolation.New("buffer frame shorter than header: %d bytes", frameLen)
	}
	body := make([]byte, frameLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return BufferHeader{}, nil, err
	}
	var h BufferHeader
	h.OriginID = binary.BigEndian.Uint64(body[0:8])
	h.Sequence = binary.BigEndian.Uint64(body[8:16])
	h.Watermark = binary.BigEndian.Uint64(body[16:24])
	h.TupleCount = binary.BigEndian.Uint32(body[24:28])
	return h, body[bufferHeaderSize:], nil
}

// WriteBufferFrame writes one data frame to w.
func WriteBufferFrame(w io.Writer, h BufferHeader, payload []byte) error {
	_, err := w.Write(AppendBufferFrame(nil, h, payload))
	return err
}

// EventKind tags the control-event type carried by each frame on the
// event-only reverse channel.
type EventKind byte

const (
	// StartSourceEvent carries no payload; it signals the receiver that
	// the sender is ready to begin producing on this partition.
	StartSourceEvent EventKind = iota + 1
	// PropagateEpochEvent acknowledges that the receiver has durably
	// processed every buffer up to and including the carried epoch.
	PropagateEpochEvent
)

// PropagateEpoch is the payload of a PropagateEpochEvent.
type PropagateEpoch struct {
	QueryID uint64
	EpochTS uint64
}

// AppendEventFrame appends a length-prefixed event frame (1-byte kind +
// payload) to buf.
func AppendEventFrame(buf []byte, kind EventKind, payload []byte) []byte {
	frameLen := uint32(1 + len(payload))
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], frameLen)
	buf = append(buf, lenPrefix[:]...)
	buf = append(buf, byte(kind))
	return append(buf, payload...)
}

// ParseEventFrame parses one event frame from the front of buf, with the
// same "not ready yet" contract as ParseBufferFrame.
func ParseEventFrame(buf []byte) (rem []byte, kind EventKind, payload []byte, ok bool, err error) {
	if len(buf) < 4 {
		return buf, 0, nil, false, nil
	}
	frameLen := binary.BigEndian.Uint32(buf[:4])
	if uint64(len(buf)) < 4+uint64(frameLen) {
		return buf, 0, nil, false, nil
	}
	if frameLen < 1 {
		return buf, 0, nil, false, edgeerrs.ProtocolViolation.New("event frame empty")
	}
	body := buf[4 : 4+frameLen]
	kind = EventKind(body[0])
	payload = body[1:]
	rem = buf[4+frameLen:]
	return rem, kind, payload, true, nil
}

// ReadEventFrame reads exactly one event frame off r.
func ReadEventFrame(r io.Reader) (EventKind, []byte, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return 0, nil, err
	}
	frameLen := binary.BigEndian.Uint32(lenPrefix[:])
	if frameLen < 1 {
		return 0, nil, edgeerrs.ProtocolViolation.New("event frame empty")
	}
	body := make([]byte, frameLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return EventKind(body[0]), body[1:], nil
}

// WriteEventFrame writes one event frame to w.
func WriteEventFrame(w io.Writer, kind EventKind, payload []byte) error {
	_, err := w.Write(AppendEventFrame(nil, kind, payload))
	return err
}

// AppendPropagateEpoch appends a PropagateEpochEvent frame to buf.
func AppendPropagateEpoch(buf []byte, e PropagateEpoch) []byte {
	var p [16]byte
	binary.BigEndian.PutUint64(p[0:8], e.QueryID)
	binary.BigEndian.PutUint64(p[8:16], e.EpochTS)
	return AppendEventFrame(buf, PropagateEpochEvent, p[:])
}

// ParsePropagateEpoch decodes a PropagateEpochEvent's payload.
func ParsePropagateEpoch(payload []byte) (PropagateEpoch, error) {
	if len(payload) < 16 {
		return PropagateEpoch{}, edgeerrs.ProtocolViolation.New("propagate-epoch payload too short: %d bytes", len(payload))
	}
	return PropagateEpoch{
		QueryID: binary.BigEndian.Uint64(payload[0:8]),
		EpochTS: binary.BigEndian.Uint64(payload[8:16]),
	}, nil
}
