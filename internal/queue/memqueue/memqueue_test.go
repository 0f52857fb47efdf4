package memqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vitalregistry/linkage/internal/queue"
)

func TestBroker_EnqueueAwait(t *testing.T) {
	b := New(nil)
	b.Subscribe("work", 2, func(_ context.Context, task queue.Task) ([]byte, error) {
		return append([]byte("done:"), task.Payload...), nil
	})
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Close()

	h, err := b.Enqueue(context.Background(), queue.Task{Queue: "work", ID: "t1", Payload: []byte("x")})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := b.Await(ctx, h)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.Failed() || string(res.Payload) != "done:x" {
		t.Errorf("result = %+v", res)
	}
}

func TestBroker_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	b := New(nil)
	b.Subscribe("flaky", 1, func(context.Context, queue.Task) ([]byte, error) {
		calls.Add(1)
		return nil, errors.New("transient")
	})
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Close()

	h, err := b.Enqueue(context.Background(), queue.Task{Queue: "flaky", ID: "t1", Attempts: 2})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := b.Await(ctx, h)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if !res.Failed() {
		t.Fatalf("expected terminal failure, got %+v", res)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("handler ran %d times, want 2 attempts", got)
	}
}

func TestBroker_RetrySucceedsSecondAttempt(t *testing.T) {
	var calls atomic.Int32
	b := New(nil)
	b.Subscribe("flaky", 1, func(context.Context, queue.Task) ([]byte, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return []byte("ok"), nil
	})
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Close()

	h, _ := b.Enqueue(context.Background(), queue.Task{Queue: "flaky", ID: "t1", Attempts: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := b.Await(ctx, h)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if res.Failed() || string(res.Payload) != "ok" {
		t.Errorf("result = %+v, want recovery on second attempt", res)
	}
}

func TestBroker_UnknownQueue(t *testing.T) {
	b := New(nil)
	if _, err := b.Enqueue(context.Background(), queue.Task{Queue: "nope"}); !errors.Is(err, queue.ErrUnknownQueue) {
		t.Errorf("err = %v, want ErrUnknownQueue", err)
	}
}

func TestBroker_Progress(t *testing.T) {
	b := New(nil)
	h := queue.Handle{Queue: "work", ID: "t1"}
	if err := b.UpdateProgress(context.Background(), h, queue.Progress{Processed: 50, Total: 200}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	p, err := b.Progress(context.Background(), h)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.Processed != 50 || p.Total != 200 {
		t.Errorf("progress = %+v", p)
	}
}
