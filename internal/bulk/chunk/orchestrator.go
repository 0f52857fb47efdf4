// Package chunk fans an ordered row stream out to the work queue in
// fixed-size batches and fans results back in strictly ascending sequence
// order, whatever order the batches complete in.
package chunk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitalregistry/linkage/internal/bulk/records"
	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/queue"
)

// Default tuning, overridable per orchestrator.
const (
	DefaultBatchSize   = 50
	DefaultMaxInFlight = 4
	DefaultAttempts    = 2
)

// Row is one input row with its original line number.
type Row struct {
	Line  int64    `json:"line"`
	Cells []string `json:"cells"`
}

// RowReader streams input rows; io.EOF ends the stream.
type RowReader interface {
	Read() (Row, error)
}

// Payload is the wire form of one queued chunk.
type Payload struct {
	JobID string `json:"jobId"`
	Seq   int    `json:"seq"`
	Rows  []Row  `json:"rows"`
}

// EncodePayload marshals a chunk payload for the queue.
func EncodePayload(p Payload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode chunk payload: %w", err)
	}
	return raw, nil
}

// DecodePayload unmarshals a queued chunk payload.
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode chunk payload: %w", err)
	}
	return p, nil
}

// EncodeResults marshals a chunk's row results for the result channel.
func EncodeResults(rows []records.RowResult) ([]byte, error) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode chunk results: %w", err)
	}
	return raw, nil
}

// DecodeResults unmarshals a completed chunk's row results.
func DecodeResults(raw []byte) ([]records.RowResult, error) {
	var rows []records.RowResult
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode chunk results: %w", err)
	}
	return rows, nil
}

// Options tunes one orchestrator.
type Options struct {
	BatchSize   int
	MaxInFlight int
	Attempts    int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = DefaultMaxInFlight
	}
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	return o
}

// Orchestrator drives one job's chunks through the queue.
type Orchestrator struct {
	broker queue.Broker
	logger *zap.Logger
	opts   Options
}

// New creates an orchestrator bound to a broker.
func New(broker queue.Broker, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{broker: broker, logger: logger, opts: opts.withDefaults()}
}

// completion is one finished chunk awaiting in-order emission.
type completion struct {
	seq  int
	rows []records.RowResult
}

// Run streams rows through the queue and emits results in input order.
// emit receives each batch's results exactly once, in ascending sequence;
// progress receives the cumulative emitted row count. cancelled is checked
// at batch boundaries: once it reports true, in-flight results are
// discarded and no further batch is submitted.
func (o *Orchestrator) Run(
	ctx context.Context,
	jobID string,
	in RowReader,
	emit func([]records.RowResult) error,
	progress func(processed int64),
	cancelled func() bool,
) error {
	completions := make(chan completion)

	// The reorder buffer: completed batches keyed by sequence, emitted only
	// when they become the lowest outstanding sequence.
	var emitErr error
	var emitWg sync.WaitGroup
	emitWg.Add(1)
	go func() {
		defer emitWg.Done()
		pending := map[int][]records.RowResult{}
		next := 0
		var processed int64
		for c := range completions {
			pending[c.seq] = c.rows
			for rows, ok := pending[next]; ok; rows, ok = pending[next] {
				delete(pending, next)
				next++
				if cancelled() || emitErr != nil {
					continue // drain without emitting
				}
				if err := emit(rows); err != nil {
					emitErr = fmt.Errorf("%w: emit chunk: %w", domain.ErrPipeline, err)
					continue
				}
				processed += int64(len(rows))
				if progress != nil {
					progress(processed)
				}
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxInFlight)

	submitErr := o.submitAll(gctx, g, jobID, in, completions, cancelled)

	waitErr := g.Wait()
	close(completions)
	emitWg.Wait()

	switch {
	case submitErr != nil:
		return submitErr
	case waitErr != nil:
		return waitErr
	default:
		return emitErr
	}
}

// submitAll reads the stream and dispatches one errgroup task per batch.
// g.Go blocks once MaxInFlight batches are outstanding, which is the
// pipeline's backpressure.
func (o *Orchestrator) submitAll(
	ctx context.Context,
	g *errgroup.Group,
	jobID string,
	in RowReader,
	completions chan<- completion,
	cancelled func() bool,
) error {
	seq := 0
	batch := make([]Row, 0, o.opts.BatchSize)

	flush := func() {
		rows := make([]Row, len(batch))
		copy(rows, batch)
		batch = batch[:0]
		s := seq
		seq++
		g.Go(func() error {
			return o.process(ctx, jobID, s, rows, completions)
		})
	}

	for {
		if cancelled() || ctx.Err() != nil {
			return nil // stop submitting; in-flight chunks finish and are discarded
		}
		row, err := in.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: read input row: %w", domain.ErrPipeline, err)
		}
		batch = append(batch, row)
		if len(batch) == o.opts.BatchSize {
			flush()
		}
	}
	if len(batch) > 0 {
		flush()
	}
	return nil
}

// process runs one chunk through the queue and forwards its completion.
func (o *Orchestrator) process(ctx context.Context, jobID string, seq int, rows []Row, completions chan<- completion) error {
	payload, err := EncodePayload(Payload{JobID: jobID, Seq: seq, Rows: rows})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPipeline, err)
	}

	task := queue.Task{
		Queue:    queue.Chunks,
		ID:       fmt.Sprintf("%s-%d", jobID, seq),
		Payload:  payload,
		Attempts: o.opts.Attempts,
	}
	h, err := o.broker.Enqueue(ctx, task)
	if err != nil {
		return fmt.Errorf("%w: enqueue chunk %d: %w", domain.ErrPipeline, seq, err)
	}

	res, err := o.broker.Await(ctx, h)
	if err != nil {
		return fmt.Errorf("%w: await chunk %d: %w", domain.ErrPipeline, seq, err)
	}
	if res.Failed() {
		// the broker already retried Attempts times
		return fmt.Errorf("%w: chunk %d failed after %d attempts: %s",
			domain.ErrPipeline, seq, o.opts.Attempts, res.Err)
	}

	results, err := DecodeResults(res.Payload)
	if err != nil {
		return fmt.Errorf("%w: chunk %d: %w", domain.ErrPipeline, seq, err)
	}

	select {
	case completions <- completion{seq: seq, rows: results}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
