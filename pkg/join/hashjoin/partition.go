// Package hashjoin implements the partitioned hash-join probe: a build
// side per window, partitioned into buckets, each bucket an append-only
// list of pages; probing pairs left and
// right pages within the same partition, short-circuiting right pages
// a Bloom filter proves cannot match, and deletes a window's state only
// once every partition has reported itself finished.
package hashjoin

import (
	"sync"

	"edgeflow.io/edgeflow/pkg/bloomfilter"
)

// BuildSide selects which half of the join a partition table belongs to.
type BuildSide int

const (
	Left BuildSide = iota
	Right
)

// defaultPageCapacity bounds how many tuples accumulate in one page
// before a new one is appended; this mirrors the original's fixed-size
// memory-provider page, kept here as row-count rather than raw bytes
// since pages are plain [][]byte rather than tuple-buffer-backed.
const defaultPageCapacity = 256

// bloomFilterExpectedKeys/bloomFilterFalsePositive size the per-page
// Bloom filter used to short-circuit a probe without scanning its
// tuples.
const (
	bloomFilterExpectedKeys  = defaultPageCapacity
	bloomFilterFalsePositive = 0.05
)

// Page is an append-only bucket of (key, record) pairs plus a Bloom
// filter over its keys, letting a prober skip the page outright for a
// probe key the filter proves absent.
type Page struct {
	keys    [][]byte
	records [][]byte
	filter  *bloomfilter.Filter
}

func newPage() *Page {
	return &Page{filter: bloomfilter.NewFilter(bloomFilterExpectedKeys, bloomFilterFalsePositive)}
}

// Append adds one (key, record) pair to the page.
func (p *Page) Append(key, record []byte) {
	p.keys = append(p.keys, key)
	p.records = append(p.records, record)
	p.filter.Add(key)
}

// Len returns the number of tuples in the page.
func (p *Page) Len() int { return len(p.records) }

// KeyAt and RecordAt return the key/record at position i.
func (p *Page) KeyAt(i int) []byte    { return p.keys[i] }
func (p *Page) RecordAt(i int) []byte { return p.records[i] }

// MayContain reports whether key could be present in this page. A false
// result is a guarantee of absence; a true result is not a guarantee of
// presence.
func (p *Page) MayContain(key []byte) bool { return p.filter.Contains(key) }

// PartitionTable is one build side's partitioned page storage for a
// single window: partitionID -> append-only list of pages.
type PartitionTable struct {
	mu         sync.Mutex
	buckets    [][]*Page
	numPartitions int
}

// NewPartitionTable creates a table with a fixed number of partitions.
func NewPartitionTable(numPartitions int) *PartitionTable {
	return &PartitionTable{buckets: make([][]*Page, numPartitions), numPartitions: numPartitions}
}

// Append adds (key, record) to the named partition, growing a new page
// when the current one is full.
func (t *PartitionTable) Append(partitionID int, key, record []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pages := t.buckets[partitionID]
	if len(pages) == 0 || pages[len(pages)-1].Len() >= defaultPageCapacity {
		pages = append(pages, newPage())
	}
	pages[len(pages)-1].Append(key, record)
	t.buckets[partitionID] = pages
}

// NumPages returns how many pages the partition currently holds.
func (t *PartitionTable) NumPages(partitionID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets[partitionID])
}

// Page returns the pageNo-th page of the partition.
func (t *PartitionTable) Page(partitionID, pageNo int) *Page {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buckets[partitionID][pageNo]
}
