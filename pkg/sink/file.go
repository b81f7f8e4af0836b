package sink

import (
	"bufio"
	"os"

	"go.uber.org/zap"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// FileConfig configures a FileSink.
type FileConfig struct {
	Path   string
	Format SerializeFormat
	Append bool
}

// FileSink writes tuple buffers to a local file in CSV, JSON-lines, or
// BinaryNative (raw row bytes) form.
type FileSink struct {
	schema *recordschema.Schema
	cfg    FileConfig
	log    *zap.Logger

	file *os.File
	w    *bufio.Writer
}

// NewFileSink opens cfg.Path, truncating it unless cfg.Append is set.
func NewFileSink(cfg FileConfig, schema *recordschema.Schema, log *zap.Logger) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, edgeerrs.ConfigInvalid.New("file sink requires a path")
	}
	if log == nil {
		log = zap.NewNop()
	}
	flags := os.O_CREATE | os.O_WRONLY
	if cfg.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(cfg.Path, flags, 0644)
	if err != nil {
		return nil, edgeerrs.Io.Wrap(err)
	}
	return &FileSink{schema: schema, cfg: cfg, log: log, file: f, w: bufio.NewWriter(f)}, nil
}

func (s *FileSink) Emit(buf *tuplebuf.Buffer) error {
	defer mon.Task()(nil)(nil)
	err := eachRow(s.schema, buf, func(row []byte) error {
		switch s.cfg.Format {
		case BinaryNativeFormat:
			_, err := s.w.Write(row)
			return err
		case JSONFormat:
			line, err := formatJSONRow(s.schema, row)
			if err != nil {
				return err
			}
			if _, err := s.w.WriteString(line); err != nil {
				return err
			}
			return s.w.WriteByte('\n')
		default:
			line, err := formatCSVRow(s.schema, row)
			if err != nil {
				return err
			}
			if _, err := s.w.WriteString(line); err != nil {
				return err
			}
			return s.w.WriteByte('\n')
		}
	})
	if err != nil {
		return edgeerrs.Io.Wrap(err)
	}
	return nil
}

func (s *FileSink) Close() error {
	if err := s.w.Flush(); err != nil {
		s.log.Warn("file sink flush failed on close", zap.Error(err))
	}
	return s.file.Close()
}
