// Package config binds a worker's physical source/sink option structs
// to a viper-backed configuration file, binding nested maps rather than
// a flat flag set since a worker's topology is a list of heterogeneous
// source/sink descriptors rather than a single struct of scalars.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
)

// PoolConfig sizes the tuple-buffer pool.
type PoolConfig struct {
	BufferSizeBytes int  `mapstructure:"buffer_size_bytes"`
	BufferCount     int  `mapstructure:"buffer_count"`
	Bounded         bool `mapstructure:"bounded"`
}

// WorkerPoolConfig selects the worker pool's scheduling model.
type WorkerPoolConfig struct {
	// Kind is "dynamic" (single shared queue) or "static" (N sub-queues
	// each bound to a fixed thread subset).
	Kind        string `mapstructure:"kind"`
	NumThreads  int    `mapstructure:"num_threads"`
	QueueLength int    `mapstructure:"queue_length"`
}

// MetricsConfig controls the worker's /metrics scrape endpoint.
type MetricsConfig struct {
	ListenAddr    string `mapstructure:"listen_addr"`
	EnableMonkit  bool   `mapstructure:"enable_monkit"`
	EnableHWGauge bool   `mapstructure:"enable_hw_gauges"`
}

// ReconfigBusConfig selects the in-process or NATS-backed transport a
// pipeline's reconfiguration messages travel over when a query spans
// worker processes ("reconfiguration bus (produced)").
type ReconfigBusConfig struct {
	// Kind is "inprocess" (default, a direct Successor.Reconfigure call)
	// or "nats".
	Kind    string `mapstructure:"kind"`
	NatsURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

// SourceConfig is one entry in the worker's source list: exactly one of
// the embedded option structs is populated, selected by Type.
type SourceConfig struct {
	Name   string `mapstructure:"name"`
	Type   string `mapstructure:"type"` // csv|memory|lambda|tcp|mqtt|kafka|network
	Origin uint64 `mapstructure:"origin_id"`

	CSV    CSVSourceOptions    `mapstructure:"csv"`
	Memory MemorySourceOptions `mapstructure:"memory"`
	TCP    TCPSourceOptions    `mapstructure:"tcp"`
	MQTT   MQTTSourceOptions   `mapstructure:"mqtt"`
	Kafka  KafkaSourceOptions  `mapstructure:"kafka"`
}

// CSVSourceOptions binds the CSV option struct.
type CSVSourceOptions struct {
	FilePath            string `mapstructure:"file_path"`
	TuplesPerBuffer     int    `mapstructure:"tuples_per_buffer"`
	BuffersToProduce    int    `mapstructure:"buffers_to_produce"`
	GatheringIntervalMS int    `mapstructure:"gathering_interval_ms"`
	SkipHeader          bool   `mapstructure:"skip_header"`
}

// MemorySourceOptions binds the Memory option struct. The
// pointer/size pair names a pre-populated byte area owned by the
// caller; config only carries size and mode, the pointer is supplied
// programmatically when the source is constructed.
type MemorySourceOptions struct {
	MemoryAreaSizeBytes int    `mapstructure:"memory_area_size_bytes"`
	BuffersToProduce    int    `mapstructure:"buffers_to_produce"`
	GatheringIntervalMS int    `mapstructure:"gathering_interval_ms"`
	SourceMode          string `mapstructure:"source_mode"` // copy_buffer|wrap
}

// TCPSourceOptions binds the TCP option struct.
type TCPSourceOptions struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Framing         string `mapstructure:"framing"`          // tuple_separator|fixed_size|size_prefix
	Separator       string `mapstructure:"separator"`         // single byte, used when framing == tuple_separator
	FixedSizeBytes  int    `mapstructure:"fixed_size_bytes"`  // used when framing == fixed_size
	SizePrefixBytes int    `mapstructure:"size_prefix_bytes"` // used when framing == size_prefix
	InputFormat     string `mapstructure:"input_format"`      // csv|json
	FlushIntervalMS int    `mapstructure:"flush_interval_ms"`
	TuplesPerBuffer int    `mapstructure:"tuples_per_buffer"`
	MaxRingBytes    int    `mapstructure:"max_ring_bytes"`
}

// MQTTSourceOptions binds the MQTT option struct.
type MQTTSourceOptions struct {
	URL             string `mapstructure:"url"`
	ClientID        string `mapstructure:"client_id"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Topic           string `mapstructure:"topic"`
	QoS             string `mapstructure:"qos"` // at_most_once|at_least_once
	CleanSession    bool   `mapstructure:"clean_session"`
	FlushIntervalMS int    `mapstructure:"flush_interval_ms"`
	TuplesPerBuffer int    `mapstructure:"tuples_per_buffer"`
	InputFormat     string `mapstructure:"input_format"`
}

// KafkaSourceOptions binds the Kafka option struct.
type KafkaSourceOptions struct {
	Brokers             []string `mapstructure:"brokers"`
	Topic               string   `mapstructure:"topic"`
	GroupID             string   `mapstructure:"group_id"`
	OffsetMode          string   `mapstructure:"offset_mode"` // earliest|latest
	AutoCommit          bool     `mapstructure:"auto_commit"`
	ConnectionTimeoutMS int      `mapstructure:"connection_timeout_ms"`
	BatchSize           int      `mapstructure:"batch_size"`
	InputFormat         string   `mapstructure:"input_format"`
}

// SinkConfig is one entry in the worker's sink list.
type SinkConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"` // file|print|null|zmq|kafka|mqtt|network

	File    FileSinkOptions    `mapstructure:"file"`
	Zmq     ZmqSinkOptions     `mapstructure:"zmq"`
	Kafka   KafkaSinkOptions   `mapstructure:"kafka"`
	Mqtt    MqttSinkOptions    `mapstructure:"mqtt"`
	Network NetworkSinkOptions `mapstructure:"network"`
}

// FileSinkOptions binds the FileSink{path, format, append}.
type FileSinkOptions struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"` // csv|json|binary_native
	Append bool   `mapstructure:"append"`
}

// ZmqSinkOptions binds the ZmqSink{host, port, internal, format}.
type ZmqSinkOptions struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Internal bool   `mapstructure:"internal"`
	Format   string `mapstructure:"format"`
}

// KafkaSinkOptions binds the KafkaSink{brokers, topic,
// producer_timeout_ms, format}.
type KafkaSinkOptions struct {
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	ProducerTimeoutMS int      `mapstructure:"producer_timeout_ms"`
	Format            string   `mapstructure:"format"`
}

// MqttSinkOptions binds the MqttSink{...}.
type MqttSinkOptions struct {
	URL          string `mapstructure:"url"`
	ClientID     string `mapstructure:"client_id"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Topic        string `mapstructure:"topic"`
	QoS          string `mapstructure:"qos"`
	CleanSession bool   `mapstructure:"clean_session"`
	Format       string `mapstructure:"format"`
}

// NetworkSinkOptions binds the NetworkSink{node_location,
// partition, wait_time, retry_times}.
type NetworkSinkOptions struct {
	NodeLocation string        `mapstructure:"node_location"`
	OperatorID   string        `mapstructure:"operator_id"`
	SubplanID    string        `mapstructure:"subplan_id"`
	WaitTime     time.Duration `mapstructure:"wait_time"`
	RetryTimes   int           `mapstructure:"retry_times"`
}

// ReplayQueueConfig selects the durable staging queue backing the
// network sink's upstream-backup replay buffer: the
// in-memory default, or an AMQP-backed durable queue for replay that
// must survive a worker restart.
type ReplayQueueConfig struct {
	// Kind is "memory" (default) or "amqp".
	Kind     string `mapstructure:"kind"`
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
}

// Worker is the root configuration for a worker process.
type Worker struct {
	Pool        PoolConfig        `mapstructure:"pool"`
	WorkerPool  WorkerPoolConfig  `mapstructure:"worker_pool"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	ReconfigBus ReconfigBusConfig `mapstructure:"reconfig_bus"`
	ReplayQueue ReplayQueueConfig `mapstructure:"replay_queue"`
	Sources     []SourceConfig    `mapstructure:"sources"`
	Sinks       []SinkConfig      `mapstructure:"sinks"`
}

// Load reads a YAML/JSON/TOML worker configuration from path (any format
// viper auto-detects by extension) and decodes it into a Worker,
// applying the same defaults a freshly zero-valued Worker would need to
// run a minimal single-source-single-sink topology.
func Load(path string) (*Worker, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("EDGEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, edgeerrs.ConfigInvalid.Wrap(err)
	}

	var w Worker
	if err := v.Unmarshal(&w); err != nil {
		return nil, edgeerrs.ConfigInvalid.Wrap(err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("pool.buffer_size_bytes", 64*1024)
	v.SetDefault("pool.buffer_count", 256)
	v.SetDefault("pool.bounded", true)
	v.SetDefault("worker_pool.kind", "dynamic")
	v.SetDefault("worker_pool.num_threads", 4)
	v.SetDefault("worker_pool.queue_length", 1024)
	v.SetDefault("metrics.listen_addr", ":9090")
	v.SetDefault("metrics.enable_monkit", true)
	v.SetDefault("metrics.enable_hw_gauges", false)
	v.SetDefault("reconfig_bus.kind", "inprocess")
	v.SetDefault("replay_queue.kind", "memory")
}

// Validate rejects a configuration that would fail the // ConfigInvalid checks downstream with a clearer, aggregated error at
// load time rather than one source/sink at a time once wiring starts.
func (w *Worker) Validate() error {
	if w.Pool.BufferSizeBytes <= 0 {
		return edgeerrs.ConfigInvalid.New("pool.buffer_size_bytes must be positive")
	}
	if w.Pool.BufferCount <= 0 {
		return edgeerrs.ConfigInvalid.New("pool.buffer_count must be positive")
	}
	switch strings.ToLower(w.WorkerPool.Kind) {
	case "dynamic", "static":
	default:
		return edgeerrs.ConfigInvalid.New("worker_pool.kind must be dynamic or static, got %q", w.WorkerPool.Kind)
	}
	for i, s := range w.Sources {
		if s.Type == "" {
			return edgeerrs.ConfigInvalid.New("sources[%d]: type is required", i)
		}
	}
	for i, s := range w.Sinks {
		if s.Type == "" {
			return edgeerrs.ConfigInvalid.New("sinks[%d]: type is required", i)
		}
	}
	return nil
}
