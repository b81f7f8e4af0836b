package sink

import "edgeflow.io/edgeflow/pkg/tuplebuf"

// NullSink discards every buffer it receives. It exists for benchmarking
// a pipeline's upstream stages without output-side overhead.
type NullSink struct{}

func NewNullSink() *NullSink { return &NullSink{} }

func (s *NullSink) Emit(buf *tuplebuf.Buffer) error { return nil }

func (s *NullSink) Close() error { return nil }
