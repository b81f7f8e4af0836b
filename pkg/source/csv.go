package source

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/pipeline"
	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// CSVConfig is the physical source configuration for a file-CSV source
//.
type CSVConfig struct {
	FilePath            string
	TuplesPerBuffer     int
	BuffersToProduce     int // 0 = until EOF
	GatheringIntervalMS int
	SkipHeader          bool
}

// CSVSource reads fixed-width records from a delimited text file, one
// line per tuple, writing each field into the buffer via the bound
// schema's row layout.
type CSVSource struct {
	base
	cfg    CSVConfig
	schema *recordschema.Schema
	reader *csv.Reader
	file   *os.File
}

// NewCSVSource builds a CSV source bound to schema, reading cfg.FilePath.
func NewCSVSource(cfg CSVConfig, schema *recordschema.Schema, originID uint64,
	alloc BufferAllocator, emit Emitter, successor pipeline.Successor, log *zap.Logger) (*CSVSource, error) {
	if cfg.FilePath == "" {
		return nil, edgeerrs.ConfigInvalid.New("csv source: file_path is required")
	}
	if cfg.TuplesPerBuffer <= 0 {
		return nil, edgeerrs.ConfigInvalid.New("csv source: tuples_per_buffer must be positive")
	}
	gathering := GatheringConfig{Mode: Interval, Period: time.Duration(cfg.GatheringIntervalMS) * time.Millisecond}
	return &CSVSource{
		base:   newBase(originID, alloc, emit, successor, gathering, cfg.BuffersToProduce, log),
		cfg:    cfg,
		schema: schema,
	}, nil
}

// Start opens the file and runs the gathering loop until EOF, Stop, or
// ctx cancellation.
func (s *CSVSource) Start(ctx context.Context) error {
	f, err := os.Open(s.cfg.FilePath)
	if err != nil {
		_ = s.sendEoS(Failure)
		return edgeerrs.Io.Wrap(err)
	}
	s.file = f
	defer f.Close()

	s.reader = csv.NewReader(f)
	s.reader.FieldsPerRecord = -1

	if s.cfg.SkipHeader {
		if _, err := s.reader.Read(); err != nil && err != io.EOF {
			return edgeerrs.Io.Wrap(err)
		}
	}

	return s.run(ctx, s.fillBuffer)
}

func (s *CSVSource) fillBuffer(buf *tuplebuf.Buffer) (int, bool, error) {
	stride := s.schema.RecordSizeBytes()
	capacity := buf.CapacityBytes() / stride
	if capacity > s.cfg.TuplesPerBuffer {
		capacity = s.cfg.TuplesPerBuffer
	}

	tuples := 0
	for tuples < capacity {
		record, err := s.reader.Read()
		if err == io.EOF {
			return tuples, false, nil
		}
		if err != nil {
			return tuples, false, edgeerrs.Io.Wrap(err)
		}
		if err := writeCSVRow(s.schema, buf.Bytes(), tuples, record); err != nil {
			return tuples, false, err
		}
		tuples++
	}
	return tuples, true, nil
}

func writeCSVRow(schema *recordschema.Schema, buf []byte, row int, record []string) error {
	for i, field := range schema.Fields() {
		if i >= len(record) {
			return edgeerrs.ProtocolViolation.New("csv source: record has %d columns, schema wants %d", len(record), schema.Len())
		}
		if err := writeFieldString(schema, buf, row, field, record[i]); err != nil {
			return err
		}
	}
	return nil
}
