package sink

import (
	"time"

	"go.uber.org/zap"
	sarama "gopkg.in/Shopify/sarama.v1"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// KafkaConfig configures a KafkaSink.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	ProducerTimeoutMS int
	Format            SerializeFormat
}

// KafkaSink publishes each row as its own message via a synchronous
// producer, so a failed publish surfaces as an Emit error rather than
// being silently dropped.
type KafkaSink struct {
	schema   *recordschema.Schema
	cfg      KafkaConfig
	log      *zap.Logger
	producer sarama.SyncProducer
}

func NewKafkaSink(cfg KafkaConfig, schema *recordschema.Schema, log *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, edgeerrs.ConfigInvalid.New("kafka sink requires brokers and a topic")
	}
	if log == nil {
		log = zap.NewNop()
	}
	scfg := sarama.NewConfig()
	scfg.Producer.Return.Successes = true
	if cfg.ProducerTimeoutMS > 0 {
		scfg.Producer.Timeout = time.Duration(cfg.ProducerTimeoutMS) * time.Millisecond
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, scfg)
	if err != nil {
		return nil, edgeerrs.Io.Wrap(err)
	}
	return &KafkaSink{schema: schema, cfg: cfg, log: log, producer: producer}, nil
}

func (s *KafkaSink) Emit(buf *tuplebuf.Buffer) error {
	defer mon.Task()(nil)(nil)
	return eachRow(s.schema, buf, func(row []byte) error {
		encoded, err := s.renderRow(row)
		if err != nil {
			return err
		}
		msg := &sarama.ProducerMessage{Topic: s.cfg.Topic, Value: sarama.ByteEncoder(encoded)}
		if _, _, err := s.producer.SendMessage(msg); err != nil {
			return edgeerrs.Io.Wrap(err)
		}
		return nil
	})
}

func (s *KafkaSink) renderRow(row []byte) ([]byte, error) {
	switch s.cfg.Format {
	case BinaryNativeFormat:
		return append([]byte(nil), row...), nil
	case JSONFormat:
		line, err := formatJSONRow(s.schema, row)
		return []byte(line), err
	default:
		line, err := formatCSVRow(s.schema, row)
		return []byte(line), err
	}
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
