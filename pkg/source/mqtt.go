package source

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/pipeline"
	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// QoS mirrors the MQTT quality-of-service levels exposes.
type QoS int

const (
	AtMostOnce QoS = iota
	AtLeastOnce
)

// MQTTConfig is the physical source configuration for an MQTT source
//.
type MQTTConfig struct {
	URL             string
	ClientID        string
	User            string
	Password        string
	Topic           string
	QoS             QoS
	CleanSession    bool
	FlushIntervalMS int
	TuplesPerBuffer int
	InputFormat     InputFormat
}

// MQTTSource subscribes to Topic and frames arriving messages (one
// message per tuple) into buffers; a per-buffer flush interval bounds
// tail latency the same way the TCP source's does.
type MQTTSource struct {
	base
	cfg      MQTTConfig
	schema   *recordschema.Schema
	client   mqtt.Client
	messages chan []byte
}

// NewMQTTSource builds an MQTT source bound to schema.
func NewMQTTSource(cfg MQTTConfig, schema *recordschema.Schema, originID uint64,
	alloc BufferAllocator, emit Emitter, successor pipeline.Successor, log *zap.Logger) (*MQTTSource, error) {
	if cfg.URL == "" || cfg.Topic == "" {
		return nil, edgeerrs.ConfigInvalid.New("mqtt source: url and topic are required")
	}
	if cfg.TuplesPerBuffer <= 0 {
		return nil, edgeerrs.ConfigInvalid.New("mqtt source: tuples_per_buffer must be positive")
	}
	gathering := GatheringConfig{Mode: Adaptive}
	return &MQTTSource{
		base:     newBase(originID, alloc, emit, successor, gathering, 0, log),
		cfg:      cfg,
		schema:   schema,
		messages: make(chan []byte, 1024),
	}, nil
}

// Start connects and subscribes, then runs the gathering loop until
// Stop or ctx cancellation (an MQTT source has no natural EoF: it is
// stopped externally).
func (s *MQTTSource) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.URL).
		SetClientID(s.cfg.ClientID).
		SetCleanSession(s.cfg.CleanSession)
	if s.cfg.User != "" {
		opts = opts.SetUsername(s.cfg.User).SetPassword(s.cfg.Password)
	}
	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		_ = s.sendEoS(Failure)
		return edgeerrs.Io.New("mqtt source: connect: %v", token.Error())
	}
	defer s.client.Disconnect(250)

	qos := byte(0)
	if s.cfg.QoS == AtLeastOnce {
		qos = 1
	}
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		payload := append([]byte(nil), msg.Payload()...)
		select {
		case s.messages <- payload:
		default:
			s.log.Warn("mqtt source: message channel full, dropping message",
				zap.Uint64("origin_id", s.originID))
		}
	}
	if token := s.client.Subscribe(s.cfg.Topic, qos, handler); token.Wait() && token.Error() != nil {
		_ = s.sendEoS(Failure)
		return edgeerrs.Io.New("mqtt source: subscribe: %v", token.Error())
	}

	err := s.run(ctx, s.fillBuffer)
	s.client.Unsubscribe(s.cfg.Topic)
	return err
}

func (s *MQTTSource) fillBuffer(buf *tuplebuf.Buffer) (int, bool, error) {
	stride := s.schema.RecordSizeBytes()
	capacity := buf.CapacityBytes() / stride
	if capacity > s.cfg.TuplesPerBuffer {
		capacity = s.cfg.TuplesPerBuffer
	}

	var timeout <-chan time.Time
	if s.cfg.FlushIntervalMS > 0 {
		timer := time.NewTimer(time.Duration(s.cfg.FlushIntervalMS) * time.Millisecond)
		defer timer.Stop()
		timeout = timer.C
	}

	tuples := 0
	for tuples < capacity {
		select {
		case payload := <-s.messages:
			if err := parsePayload(s.cfg.InputFormat, s.schema, payload, buf.Bytes(), tuples); err != nil {
				return tuples, false, err
			}
			tuples++
		case <-timeout:
			return tuples, true, nil
		}
	}
	return tuples, true, nil
}
