package sink

import (
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"edgeflow.io/edgeflow/pkg/recordschema"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

var mon = monkit.Package()

// Sink is a terminal pipeline operator: it consumes tuple buffers and
// never forwards them further. Close releases any held resources
// (open files, network connections, producer clients) and is called
// once a Graceful end of stream has been observed.
type Sink interface {
	Emit(buf *tuplebuf.Buffer) error
	Close() error
}

func eachRow(schema *recordschema.Schema, buf *tuplebuf.Buffer, fn func(row []byte) error) error {
	n := int(buf.NumberOfTuples())
	data := buf.Bytes()
	for i := 0; i < n; i++ {
		if err := fn(rowAt(schema, data, i)); err != nil {
			return err
		}
	}
	return nil
}
