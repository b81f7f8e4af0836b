package sink

import (
	"bufio"
	"io"

	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// PrintConfig configures a PrintSink.
type PrintConfig struct {
	Stream io.Writer
	Format SerializeFormat
}

// PrintSink writes each row as a line of text to an arbitrary writer
// (typically os.Stdout/os.Stderr), buffered for throughput and flushed
// on every Emit so output stays visible without waiting for Close.
type PrintSink struct {
	schema *recordschema.Schema
	cfg    PrintConfig
	w      *bufio.Writer
}

func NewPrintSink(cfg PrintConfig, schema *recordschema.Schema) *PrintSink {
	return &PrintSink{schema: schema, cfg: cfg, w: bufio.NewWriter(cfg.Stream)}
}

func (s *PrintSink) Emit(buf *tuplebuf.Buffer) error {
	defer mon.Task()(nil)(nil)
	err := eachRow(s.schema, buf, func(row []byte) error {
		line, err := s.renderRow(row)
		if err != nil {
			return err
		}
		if _, err := s.w.WriteString(line); err != nil {
			return err
		}
		return s.w.WriteByte('\n')
	})
	if err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *PrintSink) renderRow(row []byte) (string, error) {
	if s.cfg.Format == JSONFormat {
		return formatJSONRow(s.schema, row)
	}
	return formatCSVRow(s.schema, row)
}

func (s *PrintSink) Close() error { return s.w.Flush() }
