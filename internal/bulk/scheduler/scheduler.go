// Package scheduler admits whole bulk jobs onto a bounded worker pool in
// priority order. Every job's mutable state lives in one per-job object
// owned by the scheduler and looked up by id; nothing is shared across jobs.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/domain/job"
)

// RunFunc processes one dequeued job end to end. The returned error marks
// the job failed with that reason.
type RunFunc func(ctx context.Context, j *job.Job) error

// jobState is the per-job bookkeeping object.
type jobState struct {
	job       *job.Job
	order     int64 // submission order, heap tiebreak
	cancelled bool
	heapIndex int // -1 once dequeued
}

// Scheduler pulls queued jobs by (priority, submission order).
type Scheduler struct {
	run    RunFunc
	logger *zap.Logger

	mu      sync.Mutex
	waiting jobHeap
	states  map[string]*jobState
	seq     int64
	started bool

	wake    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers int
}

// New creates an idle scheduler with the given job-level concurrency.
func New(workers int, run RunFunc, logger *zap.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		run:     run,
		logger:  logger,
		states:  map[string]*jobState{},
		wake:    make(chan struct{}, 1),
		workers: workers,
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	return nil
}

// Close stops the workers after their current job.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

// Enqueue admits a created job to the waiting heap.
func (s *Scheduler) Enqueue(j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.states[j.ID]; exists {
		return fmt.Errorf("job %s already enqueued", j.ID)
	}

	j.State = job.StateQueued
	st := &jobState{job: j, order: s.seq}
	s.seq++
	s.states[j.ID] = st
	heap.Push(&s.waiting, st)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Cancel marks a job cancelled. The first call wins; cancelling twice is
// reported, and a terminal job cannot be cancelled at all.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if st.cancelled || st.job.State == job.StateCancelled {
		return domain.ErrAlreadyCancelled
	}
	if st.job.State.Terminal() {
		return fmt.Errorf("%w: job %s is already %s", domain.ErrValidation, id, st.job.State)
	}

	st.cancelled = true
	if st.job.State == job.StateQueued {
		// never started; settle it immediately
		if st.heapIndex >= 0 {
			heap.Remove(&s.waiting, st.heapIndex)
		}
		st.job.State = job.StateCancelled
		st.job.EndedAt = time.Now()
	}
	return nil
}

// Cancelled reports the cooperative cancellation flag of a job; the bulk
// pipeline checks it at batch boundaries.
func (s *Scheduler) Cancelled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	return ok && st.cancelled
}

// Get returns a snapshot of a job.
func (s *Scheduler) Get(id string) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return job.Job{}, domain.ErrJobNotFound
	}
	return *st.job, nil
}

// UpdateProgress records cumulative row completion for a job.
func (s *Scheduler) UpdateProgress(id string, processedRows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return
	}
	st.job.Progress.ProcessedRows = processedRows
	if st.job.TotalRows > 0 {
		st.job.Progress.Pct = float64(processedRows) / float64(st.job.TotalRows) * 100
	}
}

// HasActiveOrQueued reports whether an owner already occupies the scheduler,
// for admission control.
func (s *Scheduler) HasActiveOrQueued(ownerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		if st.job.OwnerID == ownerID && !st.job.State.Terminal() {
			return true
		}
	}
	return false
}

// Expire drops the state of terminal jobs that ended before the retention
// window and returns their ids, so the caller can release its own per-job
// bookkeeping with them.
func (s *Scheduler) Expire(retention time.Duration) []string {
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped []string
	for id, st := range s.states {
		if st.job.State.Terminal() && !st.job.EndedAt.IsZero() && st.job.EndedAt.Before(cutoff) {
			delete(s.states, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		st := s.pop()
		if st == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}
		s.execute(ctx, st)
	}
}

// pop dequeues the lowest-priority waiting job, skipping cancelled ones.
func (s *Scheduler) pop() *jobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.waiting.Len() > 0 {
		st := heap.Pop(&s.waiting).(*jobState)
		if st.cancelled {
			continue
		}
		st.job.State = job.StateActive
		return st
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, st *jobState) {
	logger := s.logger.With(zap.String("job", st.job.ID), zap.Int("priority", st.job.Priority))
	logger.Info("job active", zap.Int("rows", st.job.TotalRows))

	err := s.run(ctx, st.job)

	s.mu.Lock()
	defer s.mu.Unlock()
	st.job.EndedAt = time.Now()
	switch {
	case st.cancelled:
		st.job.State = job.StateCancelled
		logger.Info("job cancelled")
	case err != nil:
		st.job.State = job.StateFailed
		st.job.Error = err.Error()
		logger.Warn("job failed", zap.Error(err))
	default:
		st.job.State = job.StateCompleted
		logger.Info("job completed")
	}
}

// jobHeap orders waiting jobs by (priority, submission order).
type jobHeap []*jobState

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority < h[j].job.Priority
	}
	return h[i].order < h[j].order
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *jobHeap) Push(x any) {
	st := x.(*jobState)
	st.heapIndex = len(*h)
	*h = append(*h, st)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	st := old[n-1]
	old[n-1] = nil
	st.heapIndex = -1
	*h = old[:n-1]
	return st
}
