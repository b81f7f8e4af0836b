// Package tuplebuf implements the fixed-size tuple buffer fabric: the
// sole unit of data exchange between pipeline stages. Buffers are
// acquired from a pool, filled by exactly one writer, sealed, shared
// read-only among readers, and returned to the pool on last release.
package tuplebuf

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"edgeflow.io/edgeflow/pkg/edgeerrs"
)

var mon = monkit.Package()

// Buffer is a fixed-size contiguous byte region plus metadata. A Buffer
// value is a thin handle; the underlying storage and refcount live in
// the shared slab it was carved from (or, for unpooled buffers, in a
// privately owned slab of exactly one reference).
type Buffer struct {
	slab *slab

	numberOfTuples uint64
	capacityBytes  int
	originID       uint64
	sequenceNumber uint64
	watermarkTS    uint64

	released int32 // debug-mode double-release guard
}

type slab struct {
	data    []byte
	refs    int32
	pool    *Pool // nil for unpooled buffers
	debug   bool
}

// NumberOfTuples returns how many records the writer has committed.
func (b *Buffer) NumberOfTuples() uint64 { return b.numberOfTuples }

// SetNumberOfTuples updates the committed record count. Only the writer
// (pre-seal) may call this.
func (b *Buffer) SetNumberOfTuples(n uint64) { b.numberOfTuples = n }

// CapacityBytes is the buffer's fixed byte capacity.
func (b *Buffer) CapacityBytes() int { return b.capacityBytes }

// OriginID returns the logical producer identity tagging this buffer.
func (b *Buffer) OriginID() uint64 { return b.originID }

// SetOriginID tags the buffer with its producing origin.
func (b *Buffer) SetOriginID(id uint64) { b.originID = id }

// SequenceNumber returns the per-origin gap-free sequence number.
func (b *Buffer) SequenceNumber() uint64 { return b.sequenceNumber }

// SetSequenceNumber tags the buffer with its per-origin sequence number.
func (b *Buffer) SetSequenceNumber(seq uint64) { b.sequenceNumber = seq }

// WatermarkTS returns the watermark timestamp carried with this buffer.
func (b *Buffer) WatermarkTS() uint64 { return b.watermarkTS }

// SetWatermarkTS tags the buffer with a watermark.
func (b *Buffer) SetWatermarkTS(ts uint64) { b.watermarkTS = ts }

// Bytes exposes the underlying storage. Callers must not retain it past
// the buffer's last release.
func (b *Buffer) Bytes() []byte { return b.slab.data }

// RefCount returns the current number of outstanding handles sharing
// this buffer's storage.
func (b *Buffer) RefCount() int32 { return atomic.LoadInt32(&b.slab.refs) }

// Retain increments the reference count and returns a new handle sharing
// the same storage and metadata. Used when a pipeline fans a sealed
// buffer out to multiple successors.
func (b *Buffer) Retain() *Buffer {
	atomic.AddInt32(&b.slab.refs, 1)
	clone := *b
	clone.released = 0
	return &clone
}

// Release drops one reference. When the last reference drops, a pooled
// buffer's slab returns to its pool; an unpooled buffer's storage is
// simply discarded (left for the garbage collector). Double-release is
// detected and panics when the pool was created with debug mode on
// (acquire_unpooled buffers are always checked: double-release is
// prohibited and must be detected in debug builds).
func (b *Buffer) Release() {
	if b.slab.debug {
		if !atomic.CompareAndSwapInt32(&b.released, 0, 1) {
			panic(fmt.Sprintf("tuplebuf: double release of buffer origin=%d seq=%d", b.originID, b.sequenceNumber))
		}
	}
	if atomic.AddInt32(&b.slab.refs, -1) == 0 {
		if b.slab.pool != nil {
			b.slab.pool.reclaim(b.slab)
		}
	}
}

// Pool hands out fixed-size buffers and reclaims them automatically on
// last release. A Pool is safe for concurrent use by many
// producers and consumers; producers and consumers interact only via
// reference counting, never via a shared lock on the hot path.
type Pool struct {
	bufferSize int
	free       chan *slab
	bounded    bool
	debug      bool
	log        *zap.Logger

	outstanding int64 // monkit gauge source
}

// Option configures a Pool.
type Option func(*Pool)

// WithDebug turns on double-release detection for every buffer handed
// out by this pool (acquire_unpooled buffers are always checked
// regardless of this option).
func WithDebug() Option { return func(p *Pool) { p.debug = true } }

// WithLogger attaches a logger used for pool-exhaustion warnings.
func WithLogger(log *zap.Logger) Option { return func(p *Pool) { p.log = log } }

// NewPool creates a bounded pool of numBuffers buffers, each bufferSize
// bytes. capacityBytes is constant for the lifetime of the pool.
func NewPool(numBuffers, bufferSize int, opts ...Option) *Pool {
	p := &Pool{
		bufferSize: bufferSize,
		free:       make(chan *slab, numBuffers),
		bounded:    true,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < numBuffers; i++ {
		p.free <- &slab{data: make([]byte, bufferSize), pool: p, debug: p.debug}
	}
	return p
}

// BufferSize returns the fixed capacity of every buffer from this pool.
func (p *Pool) BufferSize() int { return p.bufferSize }

// Acquire blocks until a buffer is available, returning it with refs=1,
// zero tuple count, and zeroed metadata.
func (p *Pool) Acquire() *Buffer {
	s := <-p.free
	return p.claim(s)
}

// AcquireNonBlocking attempts to acquire without blocking; it fails with
// edgeerrs.ResourceExhausted only if the pool is drained, never blocking
// the caller.
func (p *Pool) AcquireNonBlocking() (*Buffer, error) {
	select {
	case s := <-p.free:
		return p.claim(s), nil
	default:
		mon.Event("pool_exhausted")
		p.log.Warn("buffer pool exhausted on non-blocking acquire")
		return nil, edgeerrs.ResourceExhausted.New("buffer pool drained")
	}
}

func (p *Pool) claim(s *slab) *Buffer {
	atomic.StoreInt32(&s.refs, 1)
	atomic.AddInt64(&p.outstanding, 1)
	mon.IntVal("pool_outstanding").Observe(atomic.LoadInt64(&p.outstanding))
	return &Buffer{slab: s, capacityBytes: p.bufferSize}
}

func (p *Pool) reclaim(s *slab) {
	atomic.AddInt64(&p.outstanding, -1)
	// nothing is zeroed here: claim hands out a fresh Buffer handle with
	// zeroed metadata, and payload bytes are overwritten by the next
	// writer, matching the original's "filled/mutated by exactly one
	// writer" contract.
	select {
	case p.free <- s:
	default:
		// pool shrank or was over-provisioned transiently; drop the slab
		// rather than block a release call.
	}
}

// AcquireUnpooled allocates a variable-size buffer for control messages,
// bypassing pool accounting entirely. Its ref count still
// starts at 1 and double-release is always checked.
func AcquireUnpooled(size int) *Buffer {
	s := &slab{data: make([]byte, size), debug: true}
	atomic.StoreInt32(&s.refs, 1)
	return &Buffer{slab: s, capacityBytes: size}
}
