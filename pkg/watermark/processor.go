// Package watermark computes the global contiguous watermark from
// out-of-order per-origin updates. Each origin maintains
// a small ordered set of pending (seq, ts) pairs and advances its own
// contiguous watermark by merging consecutive sequence numbers from the
// current high-watermark+1. The global watermark is the minimum of all
// per-origin contiguous watermarks.
package watermark

import (
	"container/heap"
	"sync"

	monkit "gopkg.in/spacemonkeygo/monkit.v2"
)

var mon = monkit.Package()

type pending struct {
	seq uint64
	ts  uint64
}

// pendingHeap is a min-heap on seq, giving O(log n) insert and O(1) peek
// of the next contiguous candidate.
type pendingHeap []pending

func (h pendingHeap) Len() int            { return len(h) }
func (h pendingHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h pendingHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x interface{}) { *h = append(*h, x.(pending)) }
func (h *pendingHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// originState is one shard of the processor, guarded by its own mutex so
// that merging an observation only locks that origin; the Snapshot at
// the end of Update still takes every origin's mutex in turn.
type originState struct {
	mu           sync.Mutex
	nextExpected uint64 // highWatermark + 1
	watermarkTS  uint64 // contiguous watermark timestamp
	pending      pendingHeap
	seenSeq      map[uint64]bool // for idempotent duplicate detection
}

// Processor merges per-origin watermark observations into a single
// monotone global watermark. Safe for concurrent callers;
// sharded internally by origin.
//
// An origin that is known (registered, or named in the id list passed to
// New) but has not yet produced any observation contributes a watermark
// of 0 to the global minimum — this is what lets a query's global
// watermark correctly stay pinned at 0 until every one of its sources
// has started advancing, not just the sources that happen to have
// spoken so far.
type Processor struct {
	mu      sync.RWMutex
	origins map[uint64]*originState
}

// New creates a watermark processor. originIDs, if given, are the known
// set of origins feeding this processor (e.g. from a pipeline's
// Initialize payload); they start contributing 0 to the global minimum
// immediately, before their first observation arrives. Additional
// origins may be registered later with RegisterOrigin, or will be
// auto-registered on first Update.
func New(originIDs ...uint64) *Processor {
	p := &Processor{origins: make(map[uint64]*originState)}
	for _, id := range originIDs {
		p.RegisterOrigin(id)
	}
	return p
}

// RegisterOrigin declares an origin before its first observation,
// pinning the global watermark at 0 until it starts advancing. It is a
// no-op if the origin is already known.
func (p *Processor) RegisterOrigin(origin uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.origins[origin]; ok {
		return
	}
	p.origins[origin] = newOriginState()
}

func newOriginState() *originState {
	return &originState{nextExpected: 1, seenSeq: make(map[uint64]bool)}
}

func (p *Processor) originFor(origin uint64) *originState {
	p.mu.RLock()
	o, ok := p.origins[origin]
	p.mu.RUnlock()
	if ok {
		return o
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if o, ok = p.origins[origin]; ok {
		return o
	}
	o = newOriginState()
	p.origins[origin] = o
	return o
}

// Update incorporates an observation (ts, seq) from origin and returns
// the new global watermark. Duplicate (seq) observations for an origin
// are idempotent; observations with seq <= the origin's current
// contiguous high-watermark are late and are dropped without advancing
// anything.
func (p *Processor) Update(ts, seq, origin uint64) uint64 {
	defer mon.Task()(nil)(nil)

	o := p.originFor(origin)
	o.mu.Lock()
	if seq < o.nextExpected || o.seenSeq[seq] {
		// late or duplicate: advances nothing.
		o.mu.Unlock()
		return p.Snapshot()
	}
	o.seenSeq[seq] = true
	heap.Push(&o.pending, pending{seq: seq, ts: ts})

	for len(o.pending) > 0 && o.pending[0].seq == o.nextExpected {
		next := heap.Pop(&o.pending).(pending)
		o.watermarkTS = next.ts
		delete(o.seenSeq, next.seq)
		o.nextExpected++
	}
	o.mu.Unlock()

	global := p.Snapshot()
	mon.IntVal("global_watermark").Observe(int64(global))
	return global
}

// Snapshot returns the current global watermark: the minimum of every
// known origin's contiguous watermark. An origin with no observations
// yet counts with a watermark of 0; a processor with no origins at all
// reports 0.
func (p *Processor) Snapshot() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var (
		min     uint64
		started bool
	)
	for _, o := range p.origins {
		o.mu.Lock()
		ts := o.watermarkTS
		o.mu.Unlock()
		if !started || ts < min {
			min = ts
			started = true
		}
	}
	return min
}

// OriginWatermark returns the contiguous watermark for a single origin,
// for diagnostics and testing.
func (p *Processor) OriginWatermark(origin uint64) uint64 {
	o := p.originFor(origin)
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.watermarkTS
}
