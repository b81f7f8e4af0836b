package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/pipeline"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// FillFunc is a user-provided buffer-filling function: it writes up to
// maxTuples records into buf's raw bytes and returns how many it wrote.
// Returning ok=false signals the lambda source has no more data.
type FillFunc func(buf []byte, maxTuples int) (tuples int, ok bool, err error)

// LambdaConfig is the physical source configuration for a user-supplied
// fill function.
type LambdaConfig struct {
	Fill                FillFunc
	TuplesPerBuffer     int
	BuffersToProduce    int // 0 = unbounded
	GatheringIntervalMS int
}

// LambdaSource drives a user-provided FillFunc through the shared
// gathering loop; it is the escape hatch for data generators that don't
// warrant their own source variant (synthetic benchmarks, test fixtures).
type LambdaSource struct {
	base
	cfg LambdaConfig
}

// NewLambdaSource builds a lambda source around cfg.Fill.
func NewLambdaSource(cfg LambdaConfig, originID uint64, alloc BufferAllocator, emit Emitter,
	successor pipeline.Successor, log *zap.Logger) (*LambdaSource, error) {
	if cfg.Fill == nil {
		return nil, edgeerrs.ConfigInvalid.New("lambda source: fill_fn is required")
	}
	if cfg.TuplesPerBuffer <= 0 {
		return nil, edgeerrs.ConfigInvalid.New("lambda source: tuples_per_buffer must be positive")
	}
	gathering := GatheringConfig{Mode: Interval, Period: time.Duration(cfg.GatheringIntervalMS) * time.Millisecond}
	return &LambdaSource{
		base: newBase(originID, alloc, emit, successor, gathering, cfg.BuffersToProduce, log),
		cfg:  cfg,
	}, nil
}

// Start runs the gathering loop until the fill function signals EoS, or
// Stop/ctx cancellation.
func (s *LambdaSource) Start(ctx context.Context) error {
	return s.run(ctx, s.fillBuffer)
}

func (s *LambdaSource) fillBuffer(buf *tuplebuf.Buffer) (int, bool, error) {
	tuples, ok, err := s.cfg.Fill(buf.Bytes(), s.cfg.TuplesPerBuffer)
	if err != nil {
		return 0, false, edgeerrs.Io.Wrap(err)
	}
	return tuples, ok, nil
}
