// Package queue defines the work-queue broker contract shared by the bulk
// pipeline: two queue classes (whole jobs, per-job chunks), bounded delivery
// attempts, asynchronous completion and progress reporting.
package queue

import (
	"context"
	"errors"
)

// Queue class names.
const (
	Jobs   = "jobs"
	Chunks = "chunks"
)

// ErrUnknownQueue is returned when a task targets a queue with no handler.
var ErrUnknownQueue = errors.New("unknown queue")

// Task is one unit of queued work.
type Task struct {
	Queue    string `json:"queue"`
	ID       string `json:"id"`
	Payload  []byte `json:"payload"`
	Attempts int    `json:"attempts"` // max delivery attempts, minimum 1
}

// Handle tracks one enqueued task.
type Handle struct {
	Queue string
	ID    string
}

// Result is the terminal outcome of one task.
type Result struct {
	Payload []byte `json:"payload,omitempty"`
	Err     string `json:"err,omitempty"`
}

// Failed reports whether the task exhausted its attempts.
func (r Result) Failed() bool { return r.Err != "" }

// Progress is a task's cumulative progress report.
type Progress struct {
	Processed int64 `json:"processed"`
	Total     int64 `json:"total"`
}

// Handler processes one task and returns its result payload.
type Handler func(ctx context.Context, task Task) ([]byte, error)

// Broker dispatches tasks to registered handlers. Subscribe must be called
// for every queue class before Start.
type Broker interface {
	Enqueue(ctx context.Context, task Task) (Handle, error)
	Await(ctx context.Context, h Handle) (Result, error)
	UpdateProgress(ctx context.Context, h Handle, p Progress) error
	Progress(ctx context.Context, h Handle) (Progress, error)
	Subscribe(queue string, concurrency int, fn Handler)
	Start(ctx context.Context) error
	Close() error
}
