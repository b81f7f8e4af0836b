package networkio

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/pipeline"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// BufferAllocator is the subset of tuplebuf.Pool a network source needs
// to materialize incoming wire frames into pooled buffers.
type BufferAllocator interface {
	Acquire() *tuplebuf.Buffer
	BufferSize() int
}

// NetworkSource is the receiving end of an inter-worker partition
// channel. It accepts the inbound data connection for its Partition,
// decodes framed buffers off the wire, and forwards them to a local
// successor. A separate event-only connection dialed back to the
// sender acknowledges processed epochs, driving the sender's
// upstream-backup replay.
//
// Initialize lazily opens that reverse event channel; the original this
// is ported from guarded the registration behind a condition that
// always short-circuited, so the channel was never actually opened.
// Here Initialize performs the registration unconditionally. Each
// termination kind (SoftEoS/HardEoS/FailEoS/Destroy) independently tears
// down the channel and unregisters the consumer; only a graceful end of
// stream is propagated to the local successor, since a hard or failed
// stop is expected to be followed by the sender reconnecting and
// replaying rather than the channel going away for good.
type NetworkSource struct {
	partition Partition
	registry  *Registry
	alloc     BufferAllocator
	emit      Emitter
	successor pipeline.Successor
	log       *zap.Logger

	mu          sync.Mutex
	listener    net.Listener
	eventConn   net.Conn
	lastAcked   uint64
	initialized bool
	closed      int32
}

// NewNetworkSource builds a NetworkSource for partition. alloc supplies
// the buffers materialized from incoming frames; emit forwards them to
// the local successor operator.
func NewNetworkSource(partition Partition, registry *Registry, alloc BufferAllocator, emit Emitter, successor pipeline.Successor, log *zap.Logger) *NetworkSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &NetworkSource{
		partition: partition,
		registry:  registry,
		alloc:     alloc,
		emit:      emit,
		successor: successor,
		log:       log,
	}
}

// Reconfigure implements pipeline.Successor.
func (s *NetworkSource) Reconfigure(msg pipeline.Message) error {
	switch msg.Type {
	case pipeline.Initialize:
		return s.initialize()
	case pipeline.SoftEoS:
		s.teardown(ReleaseGraceful)
		return s.successor.Reconfigure(msg)
	case pipeline.HardEoS:
		s.teardown(ReleaseForceful)
		s.log.Warn("network source received hard end of stream, not propagating to successor",
			zap.Uint64("operator_id", s.partition.OperatorID))
		return nil
	case pipeline.FailEoS:
		s.teardown(ReleaseForceful)
		s.log.Warn("network source received failure end of stream, not propagating to successor",
			zap.Uint64("operator_id", s.partition.OperatorID))
		return nil
	case pipeline.Destroy:
		s.teardown(ReleaseForceful)
		return nil
	default:
		return edgeerrs.StateInvariant.New("network source: unhandled reconfigure type %v", msg.Type)
	}
}

func (s *NetworkSource) initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	s.initialized = true
	s.registry.RegisterConsumer(s.partition, s.emit)

	conn, err := OpenChannel(context.Background(), s.partition.SenderLocation, 500*time.Millisecond, 5, nil)
	if err != nil {
		s.log.Warn("network source could not open event-ack channel, epoch acks will not be sent",
			zap.Error(err))
		return nil
	}
	s.eventConn = conn
	return nil
}

// Start listens on the partition's receiver location and serves
// incoming data connections until ctx is done or the source is torn
// down via Reconfigure.
func (s *NetworkSource) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.partition.ReceiverLocation)
	if err != nil {
		return edgeerrs.Io.Wrap(err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 || ctx.Err() != nil {
				return nil
			}
			return edgeerrs.Io.Wrap(err)
		}
		go s.serveConn(conn)
	}
}

func (s *NetworkSource) serveConn(conn net.Conn) {
	defer conn.Close()
	for {
		h, payload, err := ReadBufferFrame(conn)
		if err != nil {
			if err != io.EOF {
				s.log.Warn("network source connection read failed", zap.Error(err))
			}
			return
		}

		buf := s.alloc.Acquire()
		copy(buf.Bytes(), payload)
		buf.SetOriginID(h.OriginID)
		buf.SetSequenceNumber(h.Sequence)
		buf.SetWatermarkTS(h.Watermark)
		buf.SetNumberOfTuples(uint64(h.TupleCount))

		if err := s.emit(buf); err != nil {
			s.log.Error("network source emit to local successor failed", zap.Error(err))
			buf.Release()
			return
		}
		s.ackEpoch(h.Watermark)
	}
}

func (s *NetworkSource) ackEpoch(epoch uint64) {
	s.mu.Lock()
	conn := s.eventConn
	advance := epoch > s.lastAcked
	if advance {
		s.lastAcked = epoch
	}
	s.mu.Unlock()

	if conn == nil || !advance {
		return
	}
	ack := AppendPropagateEpoch(nil, PropagateEpoch{QueryID: s.partition.OperatorID, EpochTS: epoch})
	if _, err := conn.Write(ack); err != nil {
		s.log.Warn("failed to propagate epoch acknowledgement", zap.Error(err))
	}
}

func (s *NetworkSource) teardown(kind ReleaseKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	atomic.StoreInt32(&s.closed, 1)
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	releaseConn(s.eventConn, kind)
	s.eventConn = nil
	s.registry.UnregisterConsumer(s.partition)
}
