// Package bulk is the end-to-end streaming controller of bulk
// reconciliation: encrypted ingestion, chunked matching through the work
// queue, in-order result assembly, retrieval, cancellation and expiry.
package bulk

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitalregistry/linkage/internal/blocking"
	"github.com/vitalregistry/linkage/internal/bulk/artifact"
	"github.com/vitalregistry/linkage/internal/bulk/chunk"
	"github.com/vitalregistry/linkage/internal/bulk/records"
	"github.com/vitalregistry/linkage/internal/bulk/scheduler"
	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/domain/criterion"
	"github.com/vitalregistry/linkage/internal/domain/job"
	"github.com/vitalregistry/linkage/internal/index"
	"github.com/vitalregistry/linkage/internal/metrics"
	"github.com/vitalregistry/linkage/internal/notify"
	"github.com/vitalregistry/linkage/internal/queue"
	"github.com/vitalregistry/linkage/internal/refdata"
	"github.com/vitalregistry/linkage/internal/scoring"
)

// Result output formats.
const (
	FormatJSONL    = "jsonl"
	FormatCSV      = "csv"
	FormatOrdering = "ordering" // csv with input and match columns interleaved
)

// candidateFetchSize bounds how many index hits are scored per row.
const candidateFetchSize = 20

// Config tunes the pipeline.
type Config struct {
	BatchSize        int
	MaxInFlight      int
	ChunkConcurrency int
	CandidateNumber  int
	Retention        time.Duration
	CancelGrace      time.Duration
	UnrestrictedUser string
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = chunk.DefaultBatchSize
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = chunk.DefaultMaxInFlight
	}
	if c.ChunkConcurrency <= 0 {
		c.ChunkConcurrency = 4
	}
	if c.CandidateNumber <= 0 {
		c.CandidateNumber = 1
	}
	if c.Retention <= 0 {
		c.Retention = 36 * time.Hour
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = 5 * time.Second
	}
	return c
}

// Pipeline wires ingestion, scheduling, chunk matching and retrieval.
type Pipeline struct {
	cfg      Config
	store    *artifact.Store
	broker   queue.Broker
	sched    *scheduler.Scheduler
	searcher index.Searcher
	notifier notify.Notifier
	cities   *refdata.Cities
	logger   *zap.Logger

	mu       sync.Mutex
	mappings map[string]records.Mapping
}

// New assembles a pipeline. The scheduler is created here so that its run
// function closes over the pipeline.
func New(
	cfg Config,
	store *artifact.Store,
	broker queue.Broker,
	searcher index.Searcher,
	notifier notify.Notifier,
	jobConcurrency int,
	logger *zap.Logger,
) *Pipeline {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:      cfg.withDefaults(),
		store:    store,
		broker:   broker,
		searcher: searcher,
		notifier: notifier,
		logger:   logger,
		mappings: map[string]records.Mapping{},
	}
	p.sched = scheduler.New(jobConcurrency, p.runJob, logger)
	return p
}

// WithCities attaches the city dictionary so rows with a city but no
// coordinates still get a geo sub-score.
func (p *Pipeline) WithCities(cities *refdata.Cities) *Pipeline {
	p.cities = cities
	return p
}

// Start registers the chunk handler and launches the workers and the
// retention janitor.
func (p *Pipeline) Start(ctx context.Context) error {
	p.broker.Subscribe(queue.Chunks, p.cfg.ChunkConcurrency, p.handleChunk)
	if err := p.broker.Start(ctx); err != nil {
		return fmt.Errorf("start broker: %w", err)
	}
	if err := p.sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	go p.janitor(ctx)
	return nil
}

// Close stops the scheduler and the broker.
func (p *Pipeline) Close() error {
	if err := p.sched.Close(); err != nil {
		return err
	}
	return p.broker.Close()
}

// Submit ingests an upload: the raw stream is encrypted at rest before any
// parsing, rows are counted in one streaming pass, and the job is admitted
// to the scheduler.
func (p *Pipeline) Submit(ctx context.Context, ownerID string, upload io.Reader, mapping records.Mapping) (job.Job, error) {
	if err := mapping.Validate(); err != nil {
		return job.Job{}, err
	}
	if ownerID != p.cfg.UnrestrictedUser && p.sched.HasActiveOrQueued(ownerID) {
		return job.Job{}, fmt.Errorf("%w: owner %s already has a job in flight", domain.ErrAdmission, ownerID)
	}

	id := uuid.NewString()
	w, err := p.store.Create(inputArtifact(id))
	if err != nil {
		return job.Job{}, fmt.Errorf("%w: %w", domain.ErrPipeline, err)
	}
	if _, err := io.Copy(w, upload); err != nil {
		w.Close()
		p.store.Delete(inputArtifact(id))
		return job.Job{}, fmt.Errorf("%w: persist upload: %w", domain.ErrPipeline, err)
	}
	if err := w.Close(); err != nil {
		p.store.Delete(inputArtifact(id))
		return job.Job{}, fmt.Errorf("%w: persist upload: %w", domain.ErrPipeline, err)
	}

	total, err := p.countRows(id, mapping)
	if err != nil {
		p.store.Delete(inputArtifact(id))
		return job.Job{}, err
	}

	j := job.New(id, ownerID, total)
	p.mu.Lock()
	p.mappings[id] = mapping
	p.mu.Unlock()

	if err := p.sched.Enqueue(j); err != nil {
		p.store.Delete(inputArtifact(id))
		return job.Job{}, fmt.Errorf("%w: %w", domain.ErrPipeline, err)
	}
	p.logger.Info("bulk job submitted",
		zap.String("job", id), zap.String("owner", ownerID), zap.Int("rows", total))
	return *j, nil
}

// Status returns a job snapshot.
func (p *Pipeline) Status(jobID string) (job.Job, error) {
	return p.sched.Get(jobID)
}

// Fetch streams a completed job's results in the requested format.
func (p *Pipeline) Fetch(jobID, format string) (io.ReadCloser, error) {
	j, err := p.sched.Get(jobID)
	if err != nil {
		return nil, err
	}
	switch j.State {
	case job.StateCompleted:
	case job.StateFailed:
		return nil, fmt.Errorf("%w: job failed: %s", domain.ErrPipeline, j.Error)
	case job.StateCancelled:
		return nil, fmt.Errorf("%w: job was cancelled", domain.ErrResultNotReady)
	default:
		return nil, fmt.Errorf("%w: job is %s", domain.ErrResultNotReady, j.State)
	}

	out, err := p.store.Open(outputArtifact(jobID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPipeline, err)
	}

	switch format {
	case "", FormatJSONL:
		return out, nil
	case FormatCSV, FormatOrdering:
		return p.flattenCSV(jobID, out, format == FormatOrdering), nil
	default:
		out.Close()
		return nil, fmt.Errorf("%w: unknown result format %q", domain.ErrValidation, format)
	}
}

// Cancel marks a job cancelled and deletes its artifacts after the grace
// delay, letting in-flight readers finish.
func (p *Pipeline) Cancel(jobID string) error {
	j, err := p.sched.Get(jobID)
	if err != nil {
		return err
	}
	if err := p.sched.Cancel(jobID); err != nil {
		return err
	}
	p.logger.Info("bulk job cancelled", zap.String("job", jobID))
	p.notifier.Notify(j.OwnerID, notify.EventCancelled, jobID)

	time.AfterFunc(p.cfg.CancelGrace, func() {
		p.store.Delete(inputArtifact(jobID))
		p.store.Delete(outputArtifact(jobID))
	})
	return nil
}

// runJob is the scheduler's run function: decrypt, parse, orchestrate the
// chunks, and persist the encrypted result stream.
func (p *Pipeline) runJob(ctx context.Context, j *job.Job) error {
	p.mu.Lock()
	mapping, ok := p.mappings[j.ID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no mapping for job %s", domain.ErrPipeline, j.ID)
	}

	in, err := p.store.Open(inputArtifact(j.ID))
	if err != nil {
		return p.finishJob(j, fmt.Errorf("%w: %w", domain.ErrPipeline, err))
	}
	defer in.Close()

	dec, err := records.NewDecoder(in, mapping)
	if err != nil {
		return p.finishJob(j, fmt.Errorf("%w: %w", domain.ErrPipeline, err))
	}

	out, err := p.store.Create(outputArtifact(j.ID))
	if err != nil {
		return p.finishJob(j, fmt.Errorf("%w: %w", domain.ErrPipeline, err))
	}

	firstLine := int64(1)
	if mapping.Header {
		firstLine = 2
	}
	orch := chunk.New(p.broker, chunk.Options{
		BatchSize:   p.cfg.BatchSize,
		MaxInFlight: p.cfg.MaxInFlight,
	}, p.logger)

	runErr := orch.Run(ctx, j.ID,
		&decoderReader{dec: dec, line: firstLine},
		func(results []records.RowResult) error {
			for _, row := range results {
				if err := records.WriteJSONL(out, row); err != nil {
					return err
				}
			}
			metrics.BulkRowsProcessedTotal.Add(float64(len(results)))
			return nil
		},
		func(processed int64) {
			p.sched.UpdateProgress(j.ID, int(processed))
			h := queue.Handle{Queue: queue.Jobs, ID: j.ID}
			if err := p.broker.UpdateProgress(ctx, h, queue.Progress{
				Processed: processed,
				Total:     int64(j.TotalRows),
			}); err != nil {
				p.logger.Debug("progress update failed", zap.String("job", j.ID), zap.Error(err))
			}
		},
		func() bool { return p.sched.Cancelled(j.ID) },
	)

	if closeErr := out.Close(); runErr == nil && closeErr != nil {
		runErr = fmt.Errorf("%w: flush results: %w", domain.ErrPipeline, closeErr)
	}
	return p.finishJob(j, runErr)
}

// finishJob emits the terminal notification and metrics; the scheduler owns
// the state transition itself.
func (p *Pipeline) finishJob(j *job.Job, err error) error {
	switch {
	case p.sched.Cancelled(j.ID):
		metrics.BulkJobsTotal.WithLabelValues(string(job.StateCancelled)).Inc()
		// cancellation already notified
	case err != nil:
		metrics.BulkJobsTotal.WithLabelValues(string(job.StateFailed)).Inc()
		p.notifier.Notify(j.OwnerID, notify.EventFailed, j.ID)
	default:
		metrics.BulkJobsTotal.WithLabelValues(string(job.StateCompleted)).Inc()
		p.notifier.Notify(j.OwnerID, notify.EventCompleted, j.ID)
	}
	return err
}

// handleChunk is the queue handler: one blocking query, index search and
// scoring pass per row. A row whose index lookup fails comes back unmatched
// while the rest of the batch proceeds.
func (p *Pipeline) handleChunk(ctx context.Context, task queue.Task) ([]byte, error) {
	payload, err := chunk.DecodePayload(task.Payload)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	mapping, ok := p.mappings[payload.JobID]
	p.mu.Unlock()
	if !ok {
		metrics.BulkChunkAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("no mapping for job %s", payload.JobID)
	}

	results := make([]records.RowResult, len(payload.Rows))
	for i, row := range payload.Rows {
		results[i] = p.matchRow(ctx, mapping, row)
	}

	raw, err := chunk.EncodeResults(results)
	if err != nil {
		metrics.BulkChunkAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.BulkChunkAttemptsTotal.WithLabelValues("ok").Inc()
	return raw, nil
}

// matchRow runs one row through blocking, search and scoring.
func (p *Pipeline) matchRow(ctx context.Context, mapping records.Mapping, row chunk.Row) records.RowResult {
	result := records.RowResult{Line: row.Line, Input: row.Cells}

	set, err := criterion.NewSet(mapping.CriteriaInput(row.Cells))
	if err != nil {
		result.Err = err.Error()
		return result
	}
	if set.Empty() {
		return result
	}

	q, err := blocking.Build(set, bulkBlock(set))
	if err != nil {
		result.Err = err.Error()
		return result
	}
	q.Size = candidateFetchSize

	res, err := p.searcher.Search(ctx, q)
	if err != nil {
		// degrade this row to unmatched, the batch proceeds
		p.logger.Warn("row lookup failed", zap.Int64("line", row.Line), zap.Error(err))
		metrics.BulkRowErrorsTotal.Inc()
		result.Err = err.Error()
		return result
	}

	candidates := make([]scoring.Candidate, len(res.Hits))
	for i, hit := range res.Hits {
		candidates[i] = scoring.Candidate{IndexScore: hit.Score, Record: hit.Record}
	}
	in := scoring.InputFromCriteria(set)
	if p.cities != nil {
		scoring.EnrichLocations(&in, p.cities.Coordinates)
	}
	scored := scoring.ScoreResults(in, candidates, scoring.Options{DateFormat: mapping.DateFormat})

	keep := p.cfg.CandidateNumber
	if keep > len(scored) {
		keep = len(scored)
	}
	for _, s := range scored[:keep] {
		result.Matches = append(result.Matches, records.Match{
			Record: s.Record,
			Score:  s.Vector.Final,
			Vector: s.Vector.AsSlice(),
		})
	}
	return result
}

// bulkBlock scopes the adaptive blocking clause to the identity fields a
// bulk row usually carries.
func bulkBlock(set criterion.Set) *blocking.BlockSpec {
	return &blocking.BlockSpec{
		Scope: []criterion.Kind{
			criterion.KindFirstName,
			criterion.KindLastName,
			criterion.KindBirthDate,
			criterion.KindDeathDate,
		},
		MinimumMatch:             1,
		IncludeRemainderAsShould: true,
	}
}

// flattenCSV converts the jsonl result stream to a flat table on the fly.
func (p *Pipeline) flattenCSV(jobID string, out io.ReadCloser, ordering bool) io.ReadCloser {
	p.mu.Lock()
	mapping := p.mappings[jobID]
	p.mu.Unlock()

	pr, pw := io.Pipe()
	go func() {
		defer out.Close()
		enc := records.NewCSVEncoder(pw, mapping, ordering)
		err := records.ReadJSONL(out, enc.Write)
		if err == nil {
			err = enc.Flush()
		}
		pw.CloseWithError(err)
	}()
	return pr
}

// countRows opens the freshly persisted upload and counts line terminators;
// a declared header row is not a data row.
func (p *Pipeline) countRows(id string, mapping records.Mapping) (int, error) {
	r, err := p.store.Open(inputArtifact(id))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrPipeline, err)
	}
	defer r.Close()

	total, err := records.CountRows(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrPipeline, err)
	}
	if mapping.Header && total > 0 {
		total--
	}
	return int(total), nil
}

// janitor periodically sweeps expired artifacts and job bookkeeping.
func (p *Pipeline) janitor(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

// sweep deletes artifacts past the retention window and releases the state
// and mapping of jobs that expired with them.
func (p *Pipeline) sweep() {
	removed, err := p.store.Sweep(p.cfg.Retention)
	if err != nil {
		p.logger.Warn("retention sweep failed", zap.Error(err))
	}

	expired := p.sched.Expire(p.cfg.Retention)
	if len(expired) > 0 {
		p.mu.Lock()
		for _, id := range expired {
			delete(p.mappings, id)
		}
		p.mu.Unlock()
	}

	if removed > 0 || len(expired) > 0 {
		p.logger.Info("retention sweep",
			zap.Int("artifacts_removed", removed), zap.Int("jobs_dropped", len(expired)))
	}
}

// decoderReader adapts the records decoder to the orchestrator's row stream,
// tracking original line numbers.
type decoderReader struct {
	dec  *records.Decoder
	line int64
}

func (r *decoderReader) Read() (chunk.Row, error) {
	cells, err := r.dec.Read()
	if err != nil {
		return chunk.Row{}, err
	}
	row := chunk.Row{Line: r.line, Cells: cells}
	r.line++
	return row, nil
}

func inputArtifact(id string) string  { return id + ".in" }
func outputArtifact(id string) string { return id + ".out" }
