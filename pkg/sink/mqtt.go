package sink

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// MQTTQoS mirrors the publish-side quality-of-service levels // exposes for the MQTT source; a sink only ever needs at-most-once or
// at-least-once.
type MQTTQoS int

const (
	MQTTAtMostOnce MQTTQoS = iota
	MQTTAtLeastOnce
)

// MQTTConfig configures a MqttSink.
type MQTTConfig struct {
	URL          string
	ClientID     string
	User         string
	Password     string
	Topic        string
	QoS          MQTTQoS
	CleanSession bool
	Format       SerializeFormat
	PublishTimeout time.Duration
}

// MqttSink publishes each emitted row as its own message on Topic.
type MqttSink struct {
	schema *recordschema.Schema
	cfg    MQTTConfig
	log    *zap.Logger
	client mqtt.Client
}

// NewMqttSink connects to cfg.URL and is ready to publish.
func NewMqttSink(cfg MQTTConfig, schema *recordschema.Schema, log *zap.Logger) (*MqttSink, error) {
	if cfg.URL == "" || cfg.Topic == "" {
		return nil, edgeerrs.ConfigInvalid.New("mqtt sink requires a url and a topic")
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetCleanSession(cfg.CleanSession)
	if cfg.User != "" {
		opts = opts.SetUsername(cfg.User).SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, edgeerrs.Io.Wrap(token.Error())
	}
	return &MqttSink{schema: schema, cfg: cfg, log: log, client: client}, nil
}

func (s *MqttSink) Emit(buf *tuplebuf.Buffer) error {
	defer mon.Task()(nil)(nil)
	qos := byte(0)
	if s.cfg.QoS == MQTTAtLeastOnce {
		qos = 1
	}
	timeout := s.cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return eachRow(s.schema, buf, func(row []byte) error {
		encoded, err := s.renderRow(row)
		if err != nil {
			return err
		}
		token := s.client.Publish(s.cfg.Topic, qos, false, encoded)
		if !token.WaitTimeout(timeout) {
			return edgeerrs.Io.New("mqtt sink: publish to %q timed out", s.cfg.Topic)
		}
		if err := token.Error(); err != nil {
			return edgeerrs.Io.Wrap(err)
		}
		return nil
	})
}

func (s *MqttSink) renderRow(row []byte) ([]byte, error) {
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

func (s *MqttSink) Close() error {
	if !s.client.IsConnected() {
		return nil
	}
	s.client.Disconnect(250)
	return nil
}

func (s *MqttSink) String() string {
	return fmt.Sprintf("MqttSink{url=%s topic=%s}", s.cfg.URL, s.cfg.Topic)
}
