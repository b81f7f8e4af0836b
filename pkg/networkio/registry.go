package networkio

import (
	"sync"

	"edgeflow.io/edgeflow/pkg/tuplebuf"
)

// Emitter forwards a received buffer to a local successor operator.
type Emitter func(buf *tuplebuf.Buffer) error

// Registry maps partitions to the local consumer that should receive
// their incoming buffers. register_consumer is idempotent: a second
// registration for a partition that is already registered is a no-op,
// since reconfiguration can retry Initialize after a partial failure.
type Registry struct {
	mu        sync.RWMutex
	consumers map[Partition]Emitter
}

// NewRegistry returns an empty consumer registry.
func NewRegistry() *Registry {
	return &Registry{consumers: make(map[Partition]Emitter)}
}

// RegisterConsumer binds emit to partition if no consumer is already
// registered for it.
func (r *Registry) RegisterConsumer(partition Partition, emit Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.consumers[partition]; exists {
		return
	}
	r.consumers[partition] = emit
}

// UnregisterConsumer removes partition's consumer, if any.
func (r *Registry) UnregisterConsumer(partition Partition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.consumers, partition)
}

// Lookup returns the emitter registered for partition, if any.
func (r *Registry) Lookup(partition Partition) (Emitter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	emit, ok := r.consumers[partition]
	return emit, ok
}
