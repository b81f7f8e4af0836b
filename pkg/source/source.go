// Package source implements the worker-side source runtime: a small
// set of tagged variants (csv/memory/lambda/tcp/mqtt/kafka)
// that pull or receive external data, frame it into tuple buffers tagged
// with a gap-free per-origin sequence number, and emit downstream.
package source

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"
	"golang.org/x/time/rate"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
	"edgeflow.io/edgeflow/pkg/pipeline"
	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

var mon = monkit.Package()

// StopKind distinguishes how a source is asked to terminate.
type StopKind int

const (
	// Graceful drains any partial buffer and sends SoftEoS.
	Graceful StopKind = iota
	// HardStop discards partial work and sends HardEoS.
	HardStop
	// Failure sends FailEoS.
	Failure
)

func (k StopKind) reconfigType() pipeline.ReconfigType {
	switch k {
	case Graceful:
		return pipeline.SoftEoS
	case HardStop:
		return pipeline.HardEoS
	default:
		return pipeline.FailEoS
	}
}

// Mode is a gathering mode: how a source paces successive buffer fills.
type Mode int

const (
	// Interval wakes at a fixed period, fills one buffer, emits, sleeps.
	Interval Mode = iota
	// IngestionRate paces emission at a target buffers/sec rate via a
	// token bucket.
	IngestionRate
	// Adaptive has no fixed pacing: it fills and emits as fast as the
	// fill function produces data (e.g. a blocking socket read already
	// paces itself).
	Adaptive
)

// GatheringConfig selects and parameterizes a Mode.
type GatheringConfig struct {
	Mode Mode
	// Period is honored at millisecond resolution for Interval.
	Period time.Duration
	// TargetRate is the target buffers/sec for IngestionRate.
	TargetRate float64
}

// BufferAllocator is the pool a source draws buffers from.
type BufferAllocator interface {
	Acquire() *tuplebuf.Buffer
	BufferSize() int
}

// Emitter delivers one sealed buffer to the source's successor pipeline.
type Emitter func(buf *tuplebuf.Buffer) error

// Source is the common polymorphic contract every variant satisfies
//.
type Source interface {
	// Start runs the gathering loop until ctx is cancelled, Stop is
	// called, buffersToProduce is reached, or the underlying fill
	// function reports end-of-stream. It returns after the terminal
	// EoS has been sent downstream.
	Start(ctx context.Context) error
	// Stop requests termination of a running source; safe to call from
	// any goroutine, at most once per kind matters for semantics but is
	// safe to call redundantly.
	Stop(kind StopKind) error
}

// base holds the shared sequencing, pacing and EoS-dispatch logic common
// to every source variant; each variant embeds it and supplies its own
// fillBuffer.
type base struct {
	originID  uint64
	alloc     BufferAllocator
	emit      Emitter
	successor pipeline.Successor
	gathering GatheringConfig
	log       *zap.Logger

	buffersToProduce int // 0 = unbounded

	seq     uint64 // atomic, next sequence number to assign
	stopped int32  // atomic StopKind+1, 0 = not requested
	limiter *rate.Limiter
}

func newBase(originID uint64, alloc BufferAllocator, emit Emitter, successor pipeline.Successor,
	gathering GatheringConfig, buffersToProduce int, log *zap.Logger) base {
	if log == nil {
		log = zap.NewNop()
	}
	b := base{
		originID:         originID,
		alloc:            alloc,
		emit:             emit,
		successor:        successor,
		gathering:        gathering,
		buffersToProduce: buffersToProduce,
		log:              log,
	}
	if gathering.Mode == IngestionRate && gathering.TargetRate > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(gathering.TargetRate), 1)
	}
	return b
}

// Stop requests termination; the run loop observes it between buffers.
func (b *base) Stop(kind StopKind) error {
	atomic.CompareAndSwapInt32(&b.stopped, 0, int32(kind)+1)
	return nil
}

func (b *base) stopRequested() (StopKind, bool) {
	v := atomic.LoadInt32(&b.stopped)
	if v == 0 {
		return 0, false
	}
	return StopKind(v - 1), true
}

// pace blocks according to the gathering mode between two buffer fills.
// Adaptive never blocks: the fill function is assumed to already pace
// itself (a blocking socket read, an MQTT callback wait).
func (b *base) pace(ctx context.Context) error {
	switch b.gathering.Mode {
	case Interval:
		if b.gathering.Period <= 0 {
			return nil
		}
		t := time.NewTimer(b.gathering.Period)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case IngestionRate:
		if b.limiter == nil {
			return nil
		}
		return b.limiter.Wait(ctx)
	default:
		return nil
	}
}

// nextSeq assigns the next gap-free sequence number for this origin.
func (b *base) nextSeq() uint64 {
	return atomic.AddUint64(&b.seq, 1) - 1
}

// tagAndEmit stamps buf with (origin, sequence, watermark) and delivers
// it to the successor pipeline.
func (b *base) tagAndEmit(buf *tuplebuf.Buffer, watermarkTS uint64) error {
	buf.SetOriginID(b.originID)
	buf.SetSequenceNumber(b.nextSeq())
	buf.SetWatermarkTS(watermarkTS)
	if err := b.emit(buf); err != nil {
		return edgeerrs.Io.Wrap(err)
	}
	return nil
}

// sendEoS forwards the reconfiguration message matching kind to the
// successor, if one is registered.
func (b *base) sendEoS(kind StopKind) error {
	if b.successor == nil {
		return nil
	}
	return b.successor.Reconfigure(pipeline.Message{Type: kind.reconfigType()})
}

// run drives the shared gathering loop: it calls fill once per
// iteration, emits a non-empty result, paces, and checks for the stop
// and buffer-count terminal conditions. fill returns the number of
// tuples written into buf, and ok=false when the source has reached a
// natural end-of-stream (e.g. EOF on a file).
func (b *base) run(ctx context.Context, fill func(buf *tuplebuf.Buffer) (tuples int, ok bool, err error)) error {
	defer mon.Task()(&ctx)(nil)

	produced := 0
	terminal := Graceful
	for {
		if kind, requested := b.stopRequested(); requested {
			terminal = kind
			break
		}
		if b.buffersToProduce > 0 && produced >= b.buffersToProduce {
			break
		}
		select {
		case <-ctx.Done():
			terminal = HardStop
			goto done
		default:
		}

		buf := b.alloc.Acquire()
		n, ok, err := fill(buf)
		if err != nil {
			b.log.Error("source fill failed", zap.Uint64("origin_id", b.originID), zap.Error(err))
			buf.Release()
			terminal = Failure
			break
		}
		if n > 0 {
			buf.SetNumberOfTuples(uint64(n))
			if err := b.tagAndEmit(buf, 0); err != nil {
				b.log.Error("source emit failed", zap.Uint64("origin_id", b.originID), zap.Error(err))
				terminal = Failure
				break
			}
			produced++
		} else {
			buf.Release()
		}
		if !ok {
			break
		}
		if err := b.pace(ctx); err != nil {
			terminal = HardStop
			break
		}
	}
done:
	return b.sendEoS(terminal)
}
