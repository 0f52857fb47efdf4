// Package memqueue is the in-process broker: worker goroutines per queue
// class, buffered task channels, results delivered over per-task channels.
// It is the default driver and the one the test suite runs on.
package memqueue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vitalregistry/linkage/internal/queue"
)

// Compile-time check: Broker implements queue.Broker.
var _ queue.Broker = (*Broker)(nil)

type subscription struct {
	concurrency int
	fn          queue.Handler
	tasks       chan queue.Task
}

// Broker is the in-process queue.Broker.
type Broker struct {
	logger *zap.Logger

	mu       sync.Mutex
	subs     map[string]*subscription
	results  map[queue.Handle]chan queue.Result
	progress map[queue.Handle]queue.Progress
	started  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle broker. Subscribe handlers, then Start.
func New(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		logger:   logger,
		subs:     map[string]*subscription{},
		results:  map[queue.Handle]chan queue.Result{},
		progress: map[queue.Handle]queue.Progress{},
	}
}

// Subscribe registers the handler for one queue class.
func (b *Broker) Subscribe(name string, concurrency int, fn queue.Handler) {
	if concurrency < 1 {
		concurrency = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = &subscription{
		concurrency: concurrency,
		fn:          fn,
		tasks:       make(chan queue.Task, concurrency*2),
	}
}

// Start launches the worker goroutines. Workers run until Close.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return fmt.Errorf("broker already started")
	}
	b.started = true

	ctx, b.cancel = context.WithCancel(ctx)
	for name, sub := range b.subs {
		for i := 0; i < sub.concurrency; i++ {
			b.wg.Add(1)
			go b.worker(ctx, name, sub)
		}
	}
	return nil
}

// Close stops the workers and waits for in-flight tasks to finish.
func (b *Broker) Close() error {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	return nil
}

// Enqueue hands a task to its queue's workers.
func (b *Broker) Enqueue(ctx context.Context, task queue.Task) (queue.Handle, error) {
	b.mu.Lock()
	sub, ok := b.subs[task.Queue]
	if !ok {
		b.mu.Unlock()
		return queue.Handle{}, fmt.Errorf("%w: %s", queue.ErrUnknownQueue, task.Queue)
	}
	h := queue.Handle{Queue: task.Queue, ID: task.ID}
	b.results[h] = make(chan queue.Result, 1)
	b.mu.Unlock()

	select {
	case sub.tasks <- task:
		return h, nil
	case <-ctx.Done():
		b.drop(h)
		return queue.Handle{}, ctx.Err()
	}
}

// Await blocks until the task completes or the context is cancelled.
func (b *Broker) Await(ctx context.Context, h queue.Handle) (queue.Result, error) {
	b.mu.Lock()
	ch, ok := b.results[h]
	b.mu.Unlock()
	if !ok {
		return queue.Result{}, fmt.Errorf("no pending task %s/%s", h.Queue, h.ID)
	}

	select {
	case res := <-ch:
		b.drop(h)
		return res, nil
	case <-ctx.Done():
		return queue.Result{}, ctx.Err()
	}
}

// UpdateProgress records a task's cumulative progress.
func (b *Broker) UpdateProgress(_ context.Context, h queue.Handle, p queue.Progress) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress[h] = p
	return nil
}

// Progress returns the last reported progress of a task.
func (b *Broker) Progress(_ context.Context, h queue.Handle) (queue.Progress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progress[h], nil
}

func (b *Broker) worker(ctx context.Context, name string, sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-sub.tasks:
			b.deliver(ctx, name, sub.fn, task)
		}
	}
}

// deliver runs the handler up to task.Attempts times and publishes the
// terminal result.
func (b *Broker) deliver(ctx context.Context, name string, fn queue.Handler, task queue.Task) {
	attempts := task.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var payload []byte
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		payload, err = fn(ctx, task)
		if err == nil {
			break
		}
		b.logger.Warn("task attempt failed",
			zap.String("queue", name),
			zap.String("task", task.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	res := queue.Result{Payload: payload}
	if err != nil {
		res = queue.Result{Err: err.Error()}
	}

	h := queue.Handle{Queue: task.Queue, ID: task.ID}
	b.mu.Lock()
	ch, ok := b.results[h]
	b.mu.Unlock()
	if ok {
		ch <- res
	}
}

func (b *Broker) drop(h queue.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.results, h)
	delete(b.progress, h)
}
