package networkio

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// replayEntry is a frame kept in the upstream-backup log until the
// receiver acknowledges an epoch past it.
type replayEntry struct {
	header  BufferHeader
	payload []byte
}

// ReplayStore is the upstream-backup log a NetworkSink appends every
// outgoing frame to and trims as the receiver acknowledges epochs. The
// default is an in-memory store (replay state is lost across a worker
// restart); NewAMQPReplayStore backs it with a durable AMQP queue
// instead, for deployments where a sink restart must not lose frames
// the receiver hasn't acknowledged yet.
type ReplayStore interface {
	Append(h BufferHeader, payload []byte) error
	TrimUntil(epoch uint64)
	Pending() []replayEntry
}

// memoryReplayStore is the default ReplayStore: a mutex-guarded slice.
type memoryReplayStore struct {
	mu      sync.Mutex
	entries []replayEntry
}

func newMemoryReplayStore() *memoryReplayStore { return &memoryReplayStore{} }

func (s *memoryReplayStore) Append(h BufferHeader, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, replayEntry{header: h, payload: payload})
	return nil
}

func (s *memoryReplayStore) TrimUntil(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.header.Watermark > epoch {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

func (s *memoryReplayStore) Pending() []replayEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]replayEntry(nil), s.entries...)
}

// NetworkSink is the sending end of an inter-worker partition channel.
// It dials the receiver's data connection, frames outgoing buffers, and
// keeps an upstream-backup log of unacknowledged frames so a dropped
// connection can be recovered by reconnecting and replaying from the
// last epoch the receiver acknowledged instead of losing data.
type NetworkSink struct {
	partition  Partition
	waitTime   time.Duration
	retryTimes int
	log        *zap.Logger

	mu           sync.Mutex
	conn         net.Conn
	ackListener  net.Listener
	lastAckedETS uint64
	replay       ReplayStore
	deleted      bool
}

// NewNetworkSink builds a NetworkSink for partition, retrying a dial up
// to retryTimes times spaced waitTime apart. The upstream-backup log is
// kept in memory; use NewNetworkSinkWithReplayStore for a durable log.
func NewNetworkSink(partition Partition, waitTime time.Duration, retryTimes int, log *zap.Logger) *NetworkSink {
	return NewNetworkSinkWithReplayStore(partition, waitTime, retryTimes, newMemoryReplayStore(), log)
}

// NewNetworkSinkWithReplayStore builds a NetworkSink backed by an
// explicit ReplayStore, e.g. NewAMQPReplayStore for a durable log.
func NewNetworkSinkWithReplayStore(partition Partition, waitTime time.Duration, retryTimes int, replay ReplayStore, log *zap.Logger) *NetworkSink {
	if log == nil {
		log = zap.NewNop()
	}
	if replay == nil {
		replay = newMemoryReplayStore()
	}
	return &NetworkSink{partition: partition, waitTime: waitTime, retryTimes: retryTimes, replay: replay, log: log}
}

// Start opens the data channel to the receiver and begins listening for
// the receiver's event-only reverse channel carrying epoch acks.
func (s *NetworkSink) Start(ctx context.Context) error {
	conn, err := OpenChannel(ctx, s.partition.ReceiverLocation, s.waitTime, s.retryTimes, s.isDeleted)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.partition.SenderLocation)
	if err != nil {
		s.log.Warn("network sink could not open event-ack listener, replay trimming disabled", zap.Error(err))
		return nil
	}
	s.mu.Lock()
	s.ackListener = ln
	s.mu.Unlock()
	go s.acceptAcks(ln)
	return nil
}

func (s *NetworkSink) isDeleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}

func (s *NetworkSink) acceptAcks(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.serveAckConn(conn)
	}
}

func (s *NetworkSink) serveAckConn(conn net.Conn) {
	defer conn.Close()
	for {
		kind, payload, err := ReadEventFrame(conn)
		if err != nil {
			if err != io.EOF {
				s.log.Warn("network sink ack connection read failed", zap.Error(err))
			}
			return
		}
		if kind != PropagateEpochEvent {
			continue
		}
		ack, err := ParsePropagateEpoch(payload)
		if err != nil {
			s.log.Warn("malformed epoch acknowledgement", zap.Error(err))
			continue
		}
		s.trimReplayLog(ack.EpochTS)
	}
}

func (s *NetworkSink) trimReplayLog(epoch uint64) {
	s.mu.Lock()
	if epoch <= s.lastAckedETS {
		s.mu.Unlock()
		return
	}
	s.lastAckedETS = epoch
	s.mu.Unlock()
	s.replay.TrimUntil(epoch)
}

// Emit frames buf onto the wire, appending it to the upstream-backup
// replay log first so a connection that dies mid-write is still
// recoverable by Reconnect.
func (s *NetworkSink) Emit(buf *tuplebuf.Buffer) error {
	h := BufferHeader{
		OriginID:   buf.OriginID(),
		Sequence:   buf.SequenceNumber(),
		Watermark:  buf.WatermarkTS(),
		TupleCount: uint32(buf.NumberOfTuples()),
	}
	payload := append([]byte(nil), buf.Bytes()...)

	if err := s.replay.Append(h, payload); err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := WriteBufferFrame(conn, h, payload); err != nil {
		return edgeerrs.Io.Wrap(err)
	}
	return nil
}

// Reconnect re-opens the data channel and replays every frame in the
// upstream-backup log that has not yet been acknowledged.
func (s *NetworkSink) Reconnect(ctx context.Context) error {
	conn, err := OpenChannel(ctx, s.partition.ReceiverLocation, s.waitTime, s.retryTimes, s.isDeleted)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	pending := s.replay.Pending()
	if conn == nil {
		return nil
	}

	for _, e := range pending {
		if err := WriteBufferFrame(conn, e.header, e.payload); err != nil {
			return edgeerrs.Io.Wrap(err)
		}
	}
	return nil
}

// Release closes the data and event channels. kind governs whether
// in-flight acknowledgements are given a moment to drain first.
func (s *NetworkSink) Release(kind ReleaseKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = true
	releaseConn(s.conn, kind)
	s.conn = nil
	if s.ackListener != nil {
		s.ackListener.Close()
		s.ackListener = nil
	}
	return nil
}
