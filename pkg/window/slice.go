// Package window implements the slice store and window-descriptor model
// used by the windowed join/aggregation subsystem.
package window

import "sync"

// Slice is a half-open time interval [StartTs, EndTs) holding an append
// list of records. Records are stored as opaque values so the same
// slice store implementation serves both the nested-loop join trigger
// (records are byte rows copied out of tuple buffers) and any future
// aggregation handler.
type Slice struct {
	StartTs uint64
	EndTs   uint64
	Records []Record
}

// Record is an opaque per-slice entry. The join trigger stores raw row
// bytes here; what the bytes mean is defined by the owning schema.
type Record []byte

// Store is a per-key, per-side collection of slices ("Slice
// store"), guarded by its own mutex. Slices are kept in start-time
// order; Append does not check that a new slice is disjoint from the
// existing ones.
type Store struct {
	mu     sync.Mutex
	slices []*Slice
}

// NewStore creates an empty slice store.
func NewStore() *Store { return &Store{} }

// Lock exposes the store's mutex so a caller (the join trigger) can take
// multiple stores' locks in a single, caller-chosen order. Callers must
// pair every Lock with an Unlock.
func (s *Store) Lock()   { s.mu.Lock() }
func (s *Store) Unlock() { s.mu.Unlock() }

// Empty reports whether the store currently holds no slices. Caller
// must hold the lock.
func (s *Store) Empty() bool { return len(s.slices) == 0 }

// Slices returns the store's slices in start-time order. The returned
// slice header aliases internal storage; callers must hold the lock for
// as long as they read it.
func (s *Store) Slices() []*Slice { return s.slices }

// Append adds a record to the slice covering [start, end), creating the
// slice (in sorted position) if it does not exist yet. Caller must hold
// the lock.
func (s *Store) Append(start, end uint64, rec Record) {
	idx := s.findOrInsert(start, end)
	s.slices[idx].Records = append(s.slices[idx].Records, rec)
}

func (s *Store) findOrInsert(start, end uint64) int {
	// linear scan: slice counts per key are small in practice (bounded
	// by allowed lateness / slide), and keeping insertion sorted by
	// StartTs preserves the store's ordering invariant cheaply.
	for i, sl := range s.slices {
		if sl.StartTs == start && sl.EndTs == end {
			return i
		}
		if sl.StartTs > start {
			s.slices = append(s.slices, nil)
			copy(s.slices[i+1:], s.slices[i:])
			s.slices[i] = &Slice{StartTs: start, EndTs: end}
			return i
		}
	}
	s.slices = append(s.slices, &Slice{StartTs: start, EndTs: end})
	return len(s.slices) - 1
}

// RemoveSlicesUntil deletes every slice with EndTs <= cutoff, bounding
// retention to what downstream triggers still need. cutoff == 0 is a
// no-op. Caller must hold the lock.
func (s *Store) RemoveSlicesUntil(cutoff uint64) {
	if cutoff == 0 {
		return
	}
	kept := s.slices[:0]
	for _, sl := range s.slices {
		if sl.EndTs <= cutoff {
			continue
		}
		kept = append(kept, sl)
	}
	s.slices = kept
}

// KeyedState is a key -> Store mapping for one join side. The mapping is
// created lazily on first insert of a key ("Join state").
type KeyedState struct {
	mu    sync.RWMutex
	stock map[interface{}]*Store
}

// NewKeyedState creates an empty keyed slice-store map.
func NewKeyedState() *KeyedState {
	return &KeyedState{stock: make(map[interface{}]*Store)}
}

// StoreFor returns the slice store for key, creating it if this is the
// key's first insert.
func (k *KeyedState) StoreFor(key interface{}) *Store {
	k.mu.RLock()
	s, ok := k.stock[key]
	k.mu.RUnlock()
	if ok {
		return s
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if s, ok = k.stock[key]; ok {
		return s
	}
	s = NewStore()
	k.stock[key] = s
	return s
}

// Keys returns a snapshot of all keys currently present.
func (k *KeyedState) Keys() []interface{} {
	k.mu.RLock()
	defer k.mu.RUnlock()
	keys := make([]interface{}, 0, len(k.stock))
	for key := range k.stock {
		keys = append(keys, key)
	}
	return keys
}
