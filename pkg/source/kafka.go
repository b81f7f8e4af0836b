package source

import (
	"context"
	"time"

	sarama "gopkg.in/Shopify/sarama.v1"

	"go.uber.org/zap"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/pipeline"
	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// OffsetMode selects where a KafkaSource's consumer group starts reading
// from on first join.
type OffsetMode int

const (
	Earliest OffsetMode = iota
	Latest
)

// KafkaConfig is the physical source configuration for a Kafka source
//.
type KafkaConfig struct {
	Brokers             []string
	Topic               string
	GroupID             string
	OffsetMode          OffsetMode
	AutoCommit          bool
	ConnectionTimeoutMS int
	BatchSize           int
	InputFormat         InputFormat
}

// KafkaSource consumes Topic via a sarama consumer group, framing each
// message as one tuple, BatchSize messages (or a flush timeout) per
// buffer.
type KafkaSource struct {
	base
	cfg      KafkaConfig
	schema   *recordschema.Schema
	group    sarama.ConsumerGroup
	messages chan []byte
}

// NewKafkaSource builds a Kafka source bound to schema.
func NewKafkaSource(cfg KafkaConfig, schema *recordschema.Schema, originID uint64,
	alloc BufferAllocator, emit Emitter, successor pipeline.Successor, log *zap.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, edgeerrs.ConfigInvalid.New("kafka source: brokers and topic are required")
	}
	if cfg.BatchSize <= 0 {
		return nil, edgeerrs.ConfigInvalid.New("kafka source: batch_size must be positive")
	}
	gathering := GatheringConfig{Mode: Adaptive}
	return &KafkaSource{
		base:     newBase(originID, alloc, emit, successor, gathering, 0, log),
		cfg:      cfg,
		schema:   schema,
		messages: make(chan []byte, 4*cfg.BatchSize),
	}, nil
}

func (s *KafkaSource) saramaConfig() *sarama.Config {
	conf := sarama.NewConfig()
	if s.cfg.ConnectionTimeoutMS > 0 {
		conf.Net.DialTimeout = time.Duration(s.cfg.ConnectionTimeoutMS) * time.Millisecond
	}
	conf.Consumer.Offsets.AutoCommit.Enable = s.cfg.AutoCommit
	if s.cfg.OffsetMode == Earliest {
		conf.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		conf.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	return conf
}

// consumerGroupHandler feeds every claimed message into the source's
// message channel.
type consumerGroupHandler struct {
	messages chan<- []byte
}

func (consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }
func (h consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.messages <- msg.Value
		sess.MarkMessage(msg, "")
	}
	return nil
}

// Start joins the consumer group and runs the gathering loop until Stop
// or ctx cancellation.
func (s *KafkaSource) Start(ctx context.Context) error {
	group, err := sarama.NewConsumerGroup(s.cfg.Brokers, s.cfg.GroupID, s.saramaConfig())
	if err != nil {
		_ = s.sendEoS(Failure)
		return edgeerrs.Io.New("kafka source: join consumer group: %v", err)
	}
	s.group = group
	defer group.Close()

	groupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	handler := consumerGroupHandler{messages: s.messages}
	errCh := make(chan error, 1)
	go func() {
		for groupCtx.Err() == nil {
			if err := s.group.Consume(groupCtx, []string{s.cfg.Topic}, handler); err != nil {
				errCh <- edgeerrs.Io.Wrap(err)
				return
			}
		}
	}()

	err = s.run(ctx, s.fillBuffer)
	cancel()
	select {
	case consumeErr := <-errCh:
		if err == nil {
			err = consumeErr
		}
	default:
	}
	return err
}

func (s *KafkaSource) fillBuffer(buf *tuplebuf.Buffer) (int, bool, error) {
	stride := s.schema.RecordSizeBytes()
	capacity := buf.CapacityBytes() / stride
	if capacity > s.cfg.BatchSize {
		capacity = s.cfg.BatchSize
	}

	tuples := 0
	for tuples < capacity {
		select {
		case payload := <-s.messages:
			if err := parsePayload(s.cfg.InputFormat, s.schema, payload, buf.Bytes(), tuples); err != nil {
				return tuples, false, err
			}
			tuples++
		case <-time.After(100 * time.Millisecond):
			if tuples > 0 {
				return tuples, true, nil
			}
		}
	}
	return tuples, true, nil
}
