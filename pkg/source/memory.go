package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/pipeline"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// MemorySourceMode selects how a MemorySource hands its pre-populated
// area to successive buffers.
type MemorySourceMode int

const (
	// CopyBuffer copies the memory area's bytes into each new pooled
	// buffer; the source owns and may reuse its area afterwards.
	CopyBuffer MemorySourceMode = iota
	// Wrap is accepted as a mode but behaves like CopyBuffer: this
	// pool's buffers always own their storage, so the area is copied
	// into each buffer in both modes.
	Wrap
)

// MemoryConfig is the physical source configuration for a pre-populated
// byte-area source.
type MemoryConfig struct {
	MemoryArea          []byte
	RecordSizeBytes     int // used only to report NumberOfTuples; 1 if unset
	BuffersToProduce    int // 0 = unbounded, repeats forever
	GatheringIntervalMS int
	SourceMode          MemorySourceMode
}

// MemorySource replays a fixed, pre-populated byte area as a sequence of
// buffers: each emission is a copy of MemoryArea (up to the buffer's
// capacity), in either source mode.
type MemorySource struct {
	base
	cfg MemoryConfig
}

// NewMemorySource builds a memory source over cfg.MemoryArea.
func NewMemorySource(cfg MemoryConfig, originID uint64, alloc BufferAllocator, emit Emitter,
	successor pipeline.Successor, log *zap.Logger) (*MemorySource, error) {
	if len(cfg.MemoryArea) == 0 {
		return nil, edgeerrs.ConfigInvalid.New("memory source: memory_area must be non-empty")
	}
	gathering := GatheringConfig{Mode: Interval, Period: time.Duration(cfg.GatheringIntervalMS) * time.Millisecond}
	return &MemorySource{
		base: newBase(originID, alloc, emit, successor, gathering, cfg.BuffersToProduce, log),
		cfg:  cfg,
	}, nil
}

// Start runs the gathering loop, re-emitting the memory area until
// buffersToProduce is reached or Stop/ctx cancellation.
func (s *MemorySource) Start(ctx context.Context) error {
	return s.run(ctx, s.fillBuffer)
}

func (s *MemorySource) fillBuffer(buf *tuplebuf.Buffer) (int, bool, error) {
	n := len(s.cfg.MemoryArea)
	if n > buf.CapacityBytes() {
		n = buf.CapacityBytes()
	}
	// Wrap and CopyBuffer differ only when the buffer fabric supports
	// zero-copy aliasing; this pool's buffers always own their backing
	// slab, so both modes copy here and the distinction is preserved
	// purely as a config knob for a future zero-copy pool.
	copy(buf.Bytes()[:n], s.cfg.MemoryArea[:n])

	stride := s.cfg.RecordSizeBytes
	if stride <= 0 {
		stride = 1
	}
	return n / stride, true, nil
}
