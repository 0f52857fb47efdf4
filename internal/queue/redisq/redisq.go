// Package redisq is the redis-backed broker for multi-process deployments:
// queue classes are lists consumed with BRPOP, results and progress live in
// expiring keys polled by the submitting side.
package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/vitalregistry/linkage/internal/queue"
)

// Compile-time check: Broker implements queue.Broker.
var _ queue.Broker = (*Broker)(nil)

const (
	queueKeyPrefix    = "linkage:q:"
	resultKeyPrefix   = "linkage:r:"
	progressKeyPrefix = "linkage:p:"

	popTimeoutSec = 1
	pollInterval  = 200 * time.Millisecond
	resultTTL     = time.Hour
)

// Config holds connection parameters.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

type subscription struct {
	concurrency int
	fn          queue.Handler
}

// Broker is the rueidis-backed queue.Broker.
type Broker struct {
	client rueidis.Client
	logger *zap.Logger

	mu      sync.Mutex
	subs    map[string]*subscription
	started bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New connects to redis and returns an idle broker.
func New(cfg Config, logger *zap.Logger) (*Broker, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &Broker{client: client, logger: logger, subs: map[string]*subscription{}}, nil
}

// Ping checks connectivity.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.client.Do(ctx, b.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Subscribe registers the handler for one queue class.
func (b *Broker) Subscribe(name string, concurrency int, fn queue.Handler) {
	if concurrency < 1 {
		concurrency = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = &subscription{concurrency: concurrency, fn: fn}
}

// Start launches the consumer goroutines.
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
			go b.consume(ctx, name, sub.fn)
		}
	}
	return nil
}

// Close stops the consumers and shuts down the client.
func (b *Broker) Close() error {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	b.wg.Wait()
	b.client.Close()
	return nil
}

// Enqueue pushes a task onto its queue's list.
func (b *Broker) Enqueue(ctx context.Context, task queue.Task) (queue.Handle, error) {
	raw, err := json.Marshal(task)
	if err != nil {
		return queue.Handle{}, fmt.Errorf("encode task: %w", err)
	}
	cmd := b.client.B().Lpush().Key(queueKeyPrefix + task.Queue).Element(string(raw)).Build()
	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		return queue.Handle{}, fmt.Errorf("enqueue %s: %w", task.Queue, err)
	}
	return queue.Handle{Queue: task.Queue, ID: task.ID}, nil
}

// Await polls the result key until the task completes or the context is
// cancelled.
func (b *Broker) Await(ctx context.Context, h queue.Handle) (queue.Result, error) {
	key := resultKeyPrefix + h.ID
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		raw, err := b.client.Do(ctx, b.client.B().Get().Key(key).Build()).AsBytes()
		if err == nil {
			var res queue.Result
			if err := json.Unmarshal(raw, &res); err != nil {
				return queue.Result{}, fmt.Errorf("decode result: %w", err)
			}
			b.client.Do(ctx, b.client.B().Del().Key(key).Build())
			return res, nil
		}
		if !rueidis.IsRedisNil(err) {
			return queue.Result{}, fmt.Errorf("await %s: %w", h.ID, err)
		}

		select {
		case <-ctx.Done():
			return queue.Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// UpdateProgress writes the task's progress key.
func (b *Broker) UpdateProgress(ctx context.Context, h queue.Handle, p queue.Progress) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	cmd := b.client.B().Set().Key(progressKeyPrefix + h.ID).Value(string(raw)).Ex(resultTTL).Build()
	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Progress reads the task's progress key.
func (b *Broker) Progress(ctx context.Context, h queue.Handle) (queue.Progress, error) {
	raw, err := b.client.Do(ctx, b.client.B().Get().Key(progressKeyPrefix+h.ID).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return queue.Progress{}, nil
		}
		return queue.Progress{}, fmt.Errorf("progress %s: %w", h.ID, err)
	}
	var p queue.Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return queue.Progress{}, fmt.Errorf("decode progress: %w", err)
	}
	return p, nil
}

func (b *Broker) consume(ctx context.Context, name string, fn queue.Handler) {
	defer b.wg.Done()
	key := queueKeyPrefix + name
	for {
		if ctx.Err() != nil {
			return
		}
		entry, err := b.client.Do(ctx, b.client.B().Brpop().Key(key).Timeout(popTimeoutSec).Build()).AsStrSlice()
		if err != nil {
			if rueidis.IsRedisNil(err) || ctx.Err() != nil {
				continue
			}
			b.logger.Warn("queue pop failed", zap.String("queue", name), zap.Error(err))
			time.Sleep(pollInterval)
			continue
		}
		if len(entry) < 2 {
			continue
		}

		var task queue.Task
		if err := json.Unmarshal([]byte(entry[1]), &task); err != nil {
			b.logger.Warn("malformed task dropped", zap.String("queue", name), zap.Error(err))
			continue
		}
		b.deliver(ctx, name, fn, task)
	}
}

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
	raw, err := json.Marshal(res)
	if err != nil {
		b.logger.Error("encode result", zap.String("task", task.ID), zap.Error(err))
		return
	}
	cmd := b.client.B().Set().Key(resultKeyPrefix + task.ID).Value(string(raw)).Ex(resultTTL).Build()
	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		b.logger.Error("publish result", zap.String("task", task.ID), zap.Error(err))
	}
}
