package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/pipeline"
	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// Framing selects how a TCPSource splits a byte stream into tuples.
type Framing int

const (
	// TupleSeparator scans for a single delimiter byte ending each tuple.
	TupleSeparator Framing = iota
	// FixedTupleSize reads a constant number of bytes per tuple.
	FixedTupleSize
	// SizePrefix reads a fixed-width ASCII-decimal length prefix, then
	// that many content bytes.
	SizePrefix
)

// InputFormat selects how a tuple's raw bytes are parsed into fields.
type InputFormat int

const (
	CSVInput InputFormat = iota
	JSONInput
)

// FramingConfig parameterizes Framing.
type FramingConfig struct {
	Mode        Framing
	Separator   byte // TupleSeparator
	FixedSize   int  // FixedTupleSize
	PrefixBytes int  // SizePrefix
}

// TCPConfig is the physical source configuration for a TCP source
//.
type TCPConfig struct {
	Host             string
	Port             int
	Framing          FramingConfig
	InputFormat      InputFormat
	FlushIntervalMS  int
	TuplesPerBuffer  int
	BuffersToProduce int // 0 = unbounded
	DialTimeout      time.Duration
	// MaxRingBytes bounds the receive ring buffer; 0 defaults to
	// 16 * TuplesPerBuffer * schema record size.
	MaxRingBytes int
}

// TCPSource connects to (host, port), frames the incoming byte stream
// into tuples per the configured Framing, and parses each tuple with
// the configured InputFormat. A per-buffer flush interval bounds tail
// latency: if no full buffer has accumulated by the deadline, the
// partial buffer is emitted anyway.
type TCPSource struct {
	base
	cfg    TCPConfig
	schema *recordschema.Schema
	conn   net.Conn
	ring   *ringBuffer

	pendingSize *int // SizePrefix: length already parsed, awaiting content
}

// NewTCPSource builds a TCP source bound to schema.
func NewTCPSource(cfg TCPConfig, schema *recordschema.Schema, originID uint64,
	alloc BufferAllocator, emit Emitter, successor pipeline.Successor, log *zap.Logger) (*TCPSource, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, edgeerrs.ConfigInvalid.New("tcp source: host and port are required")
	}
	if cfg.TuplesPerBuffer <= 0 {
		return nil, edgeerrs.ConfigInvalid.New("tcp source: tuples_per_buffer must be positive")
	}
	if cfg.MaxRingBytes <= 0 {
		cfg.MaxRingBytes = 16 * cfg.TuplesPerBuffer * schema.RecordSizeBytes()
	}
	gathering := GatheringConfig{Mode: Adaptive}
	return &TCPSource{
		base:   newBase(originID, alloc, emit, successor, gathering, cfg.BuffersToProduce, log),
		cfg:    cfg,
		schema: schema,
		ring:   newRingBuffer(cfg.MaxRingBytes),
	}, nil
}

// Start dials the server and runs the gathering loop until the
// connection is closed, Stop is called, or ctx is cancelled.
func (s *TCPSource) Start(ctx context.Context) error {
	dialTimeout := s.cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		_ = s.sendEoS(Failure)
		return edgeerrs.Io.New("tcp source: connect to %s: %v", addr, err)
	}
	s.conn = conn
	defer conn.Close()

	return s.run(ctx, s.fillBuffer)
}

func (s *TCPSource) fillBuffer(buf *tuplebuf.Buffer) (int, bool, error) {
	stride := s.schema.RecordSizeBytes()
	capacity := buf.CapacityBytes() / stride
	if capacity > s.cfg.TuplesPerBuffer {
		capacity = s.cfg.TuplesPerBuffer
	}

	var deadline time.Time
	if s.cfg.FlushIntervalMS > 0 {
		deadline = time.Now().Add(time.Duration(s.cfg.FlushIntervalMS) * time.Millisecond)
	}

	readBuf := make([]byte, 4096)
	tuples := 0
	for tuples < capacity {
		frame, ok, err := s.extractFrame()
		if err != nil {
			return tuples, false, err
		}
		if ok {
			if err := s.parseFrame(frame, buf.Bytes(), tuples); err != nil {
				return tuples, false, err
			}
			tuples++
			continue
		}

		if !deadline.IsZero() {
			if err := s.conn.SetReadDeadline(deadline); err != nil {
				return tuples, false, edgeerrs.Io.Wrap(err)
			}
		}
		n, err := s.conn.Read(readBuf)
		if err != nil {
			if ne, isNet := err.(net.Error); isNet && ne.Timeout() {
				return tuples, true, nil
			}
			if err == io.EOF {
				return tuples, false, nil
			}
			return tuples, false, edgeerrs.Io.Wrap(err)
		}
		if err := s.ring.Append(readBuf[:n]); err != nil {
			return tuples, false, err
		}
	}
	return tuples, true, nil
}

// extractFrame pulls one complete tuple's raw bytes out of the ring
// buffer, or ok=false if not enough bytes have arrived yet.
func (s *TCPSource) extractFrame() ([]byte, bool, error) {
	switch s.cfg.Framing.Mode {
	case TupleSeparator:
		idx := s.ring.IndexOf(s.cfg.Framing.Separator)
		if idx < 0 {
			return nil, false, nil
		}
		frame := s.ring.PopN(idx)
		s.ring.Discard(1)
		return frame, true, nil

	case FixedTupleSize:
		n := s.cfg.Framing.FixedSize
		if s.ring.Len() < n {
			return nil, false, nil
		}
		return s.ring.PopN(n), true, nil

	case SizePrefix:
		if s.pendingSize == nil {
			p := s.cfg.Framing.PrefixBytes
			if s.ring.Len() < p {
				return nil, false, nil
			}
			raw := s.ring.PopN(p)
			n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
			if err != nil {
				return nil, false, edgeerrs.ProtocolViolation.New("tcp source: invalid size prefix %q: %v", raw, err)
			}
			s.pendingSize = &n
		}
		if s.ring.Len() < *s.pendingSize {
			return nil, false, nil
		}
		frame := s.ring.PopN(*s.pendingSize)
		s.pendingSize = nil
		return frame, true, nil

	default:
		return nil, false, edgeerrs.ConfigInvalid.New("tcp source: unknown framing mode %d", s.cfg.Framing.Mode)
	}
}

func (s *TCPSource) parseFrame(frame []byte, buf []byte, row int) error {
	return parsePayload(s.cfg.InputFormat, s.schema, frame, buf, row)
}
