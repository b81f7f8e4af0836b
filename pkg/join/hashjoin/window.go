package hashjoin

import "sync/atomic"

// Window is one window's hash-join build state: a partitioned table per
// build side, plus an atomic count of partitions still left to probe.
// The count starts at numPartitions and is decremented once per probe
// call ("atomic partitions-finished counter"); the window
// is only ever deleted once every partition has reported in, regardless
// of how many times individual probe calls race each other
// (at-most-once deletion).
type Window struct {
	ID    uint64
	Start uint64
	End   uint64

	Left  *PartitionTable
	Right *PartitionTable

	partitionsRemaining int32
}

// NewWindow builds an empty window spanning [start, end) with
// numPartitions build-side partitions on each side.
func NewWindow(id, start, end uint64, numPartitions int) *Window {
	return &Window{
		ID:                  id,
		Start:               start,
		End:                 end,
		Left:                NewPartitionTable(numPartitions),
		Right:               NewPartitionTable(numPartitions),
		partitionsRemaining: int32(numPartitions),
	}
}

// MarkPartitionFinished decrements the remaining-partitions counter and
// reports whether this call was the one that brought it to zero. A
// caller must treat a true result as "I alone am responsible for
// deleting this window" — the counter only ever decreases, so it
// reports zero at most once.
func (w *Window) MarkPartitionFinished() bool {
	return atomic.AddInt32(&w.partitionsRemaining, -1) == 0
}
