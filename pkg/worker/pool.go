package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"
)

var mon = monkit.Package()

// Pool schedules tasks onto a fixed set of worker threads.
type Pool interface {
	// Submit enqueues a task, blocking if the pool's queue(s) are full.
	Submit(task Task)
	// Start spawns every worker thread; it returns once they have all
	// exited (on Stop or ctx cancellation), mirroring an errgroup-style
	// blocking Run.
	Start(ctx context.Context) error
	// Stop signals every worker thread to exit after its current task,
	// then waits for them. Tasks still queued are not drained.
	Stop()
}

func runTask(log *zap.Logger, task Task) {
	defer mon.Task()(nil)(nil)
	if err := task.Run(); err != nil {
		log.Error("task failed", zap.Int("kind", int(task.Kind)), zap.Error(err))
	}
}

// DynamicPool is a single shared queue drained by numThreads worker
// goroutines: whichever thread is free next picks up the next task, so
// load balances itself across threads without per-thread affinity
// ("Dynamic: single shared queue of runnable tasks").
type DynamicPool struct {
	log        *zap.Logger
	numThreads int
	queue      chan Task
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewDynamicPool creates a pool of numThreads workers sharing one queue
// of the given capacity.
func NewDynamicPool(numThreads, queueCapacity int, log *zap.Logger) *DynamicPool {
	if log == nil {
		log = zap.NewNop()
	}
	return &DynamicPool{
		log:        log,
		numThreads: numThreads,
		queue:      make(chan Task, queueCapacity),
		done:       make(chan struct{}),
	}
}

// Submit enqueues a task onto the shared queue.
func (p *DynamicPool) Submit(task Task) {
	p.queue <- task
}

// Start runs numThreads workers until Stop is called or ctx is
// cancelled.
func (p *DynamicPool) Start(ctx context.Context) error {
	p.wg.Add(p.numThreads)
	for i := 0; i < p.numThreads; i++ {
		go func() {
			defer p.wg.Done()
			for {
				select {
				case task := <-p.queue:
					runTask(p.log, task)
				case <-p.done:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	p.wg.Wait()
	return nil
}

// Stop signals every worker to exit and waits for them.
func (p *DynamicPool) Stop() {
	close(p.done)
	p.wg.Wait()
}

// StaticPool is N fixed sub-queues, each drained by exactly one worker
// goroutine: a task's PartitionKey, not load, decides which sub-queue
// (and therefore which thread) runs it ("Static: N
// sub-queues, each bound to a fixed thread subset"). Tasks sharing a
// PartitionKey always execute on the same thread, in submission order.
type StaticPool struct {
	log    *zap.Logger
	queues []chan Task
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewStaticPool creates a pool of numThreads sub-queues, each of the
// given per-queue capacity.
func NewStaticPool(numThreads, queueCapacity int, log *zap.Logger) *StaticPool {
	if log == nil {
		log = zap.NewNop()
	}
	queues := make([]chan Task, numThreads)
	for i := range queues {
		queues[i] = make(chan Task, queueCapacity)
	}
	return &StaticPool{log: log, queues: queues, done: make(chan struct{})}
}

// Submit routes task to the sub-queue selected by its PartitionKey.
func (p *StaticPool) Submit(task Task) {
	p.queues[task.PartitionKey%uint64(len(p.queues))] <- task
}

// Start runs one worker goroutine per sub-queue until Stop or ctx
// cancellation.
func (p *StaticPool) Start(ctx context.Context) error {
	p.wg.Add(len(p.queues))
	for _, q := range p.queues {
		q := q
		go func() {
			defer p.wg.Done()
			for {
				select {
				case task := <-q:
					runTask(p.log, task)
				case <-p.done:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	p.wg.Wait()
	return nil
}

// Stop signals every worker to exit and waits for them.
func (p *StaticPool) Stop() {
	close(p.done)
	p.wg.Wait()
}
