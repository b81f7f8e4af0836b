package pipeline

import (
	"encoding/binary"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
)

// NatsBusConfig selects the out-of-process transport for reconfiguration
// messages that must cross a worker-process boundary; the in-process
// default is a plain Go call to Successor.Reconfigure, used whenever
// both ends of an edge live in the same process.
type NatsBusConfig struct {
	URL     string
	Subject string
}

// NatsBus publishes reconfiguration Messages to a NATS subject and, on
// the receiving end, decodes them back into calls against a local
// Successor. One subject carries the messages for one (query_id,
// subplan_id, edge) triple, giving each edge its own in-order delivery
// guarantee: NATS core preserves publish order to a single subject for
// a single publisher.
type NatsBus struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger
}

// DialNatsBus connects to cfg.URL.
func DialNatsBus(cfg NatsBusConfig, log *zap.Logger) (*NatsBus, error) {
	if cfg.URL == "" || cfg.Subject == "" {
		return nil, edgeerrs.ConfigInvalid.New("nats reconfiguration bus requires a url and a subject")
	}
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, edgeerrs.Io.Wrap(err)
	}
	return &NatsBus{conn: conn, subject: cfg.Subject, log: log}, nil
}

// Reconfigure publishes msg to the bus's subject, satisfying the
// Successor interface so a NatsBus can be dropped in wherever an
// in-process Successor would otherwise sit.
func (b *NatsBus) Reconfigure(msg Message) error {
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, payload); err != nil {
		return edgeerrs.Io.Wrap(err)
	}
	return nil
}

// Subscribe delivers every message arriving on the bus's subject to
// local by calling local.Reconfigure, until the returned unsubscribe
// func is called.
func (b *NatsBus) Subscribe(local Successor) (unsubscribe func() error, err error) {
	sub, err := b.conn.Subscribe(b.subject, func(m *nats.Msg) {
		msg, decodeErr := decodeMessage(m.Data)
		if decodeErr != nil {
			b.log.Error("reconfiguration bus: malformed message", zap.Error(decodeErr))
			return
		}
		if err := local.Reconfigure(msg); err != nil {
			b.log.Error("reconfiguration bus: local delivery failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, edgeerrs.Io.Wrap(err)
	}
	return sub.Unsubscribe, nil
}

// Close drains and closes the underlying NATS connection.
func (b *NatsBus) Close() error {
	return b.conn.Drain()
}

// encodeMessage renders msg as a 1-byte type tag followed by a 4-byte
// big-endian producer count for Initialize, or no further bytes for
// every other reconfiguration type (none of them carry a payload).
func encodeMessage(msg Message) ([]byte, error) {
	if msg.Type == Initialize {
		count, ok := msg.UserData.(int32)
		if !ok {
			return nil, edgeerrs.ProtocolViolation.New("Initialize message UserData must be int32, got %T", msg.UserData)
		}
		buf := make([]byte, 5)
		buf[0] = byte(msg.Type)
		binary.BigEndian.PutUint32(buf[1:], uint32(count))
		return buf, nil
	}
	return []byte{byte(msg.Type)}, nil
}

func decodeMessage(data []byte) (Message, error) {
	if len(data) < 1 {
		return Message{}, edgeerrs.ProtocolViolation.New("reconfiguration message frame is empty")
	}
	t := ReconfigType(data[0])
	if t < Initialize || t > Destroy {
		return Message{}, edgeerrs.ProtocolViolation.New("unknown reconfiguration type %d", data[0])
	}
	if t == Initialize {
		if len(data) != 5 {
			return Message{}, edgeerrs.ProtocolViolation.New("Initialize frame must be 5 bytes, got %d", len(data))
		}
		return Message{Type: t, UserData: int32(binary.BigEndian.Uint32(data[1:]))}, nil
	}
	return Message{Type: t}, nil
}
