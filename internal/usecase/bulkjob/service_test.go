package bulkjob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/vitalregistry/linkage/internal/bulk/records"
	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/domain/job"
)

type stubPipeline struct {
	jobs      map[string]job.Job
	cancelled []string
	fetched   []string
}

func (s *stubPipeline) Submit(_ context.Context, ownerID string, _ io.Reader, _ records.Mapping) (job.Job, error) {
	j := job.Job{ID: "j1", OwnerID: ownerID, TotalRows: 2, State: job.StateQueued}
	s.jobs[j.ID] = j
	return j, nil
}

func (s *stubPipeline) Status(jobID string) (job.Job, error) {
	j, ok := s.jobs[jobID]
	if !ok {
		return job.Job{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	return j, nil
}

func (s *stubPipeline) Fetch(jobID, _ string) (io.ReadCloser, error) {
	s.fetched = append(s.fetched, jobID)
	return io.NopCloser(strings.NewReader("{}")), nil
}

func (s *stubPipeline) Cancel(jobID string) error {
	s.cancelled = append(s.cancelled, jobID)
	return nil
}

func newService() (*Service, *stubPipeline) {
	pipe := &stubPipeline{jobs: map[string]job.Job{}}
	return New(pipe, nil), pipe
}

func TestOwnershipGuard(t *testing.T) {
	svc, pipe := newService()
	j, err := svc.Submit(context.Background(), "alice", strings.NewReader("a;b\n"), records.Mapping{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := svc.Status("alice", j.ID); err != nil {
		t.Errorf("owner denied: %v", err)
	}
	if _, err := svc.Status("mallory", j.ID); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("foreign job must look missing, got %v", err)
	}
	if err := svc.Cancel("mallory", j.ID); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("foreign cancel = %v", err)
	}
	if len(pipe.cancelled) != 0 {
		t.Errorf("pipeline cancelled despite ownership mismatch")
	}
	if _, err := svc.Result("mallory", j.ID, "jsonl"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("foreign result = %v", err)
	}
	if len(pipe.fetched) != 0 {
		t.Errorf("pipeline fetched despite ownership mismatch")
	}
}

func TestOwnerOperationsPassThrough(t *testing.T) {
	svc, pipe := newService()
	j, _ := svc.Submit(context.Background(), "alice", strings.NewReader("a;b\n"), records.Mapping{})

	r, err := svc.Result("alice", j.ID, "jsonl")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	r.Close()
	if err := svc.Cancel("alice", j.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(pipe.cancelled) != 1 || pipe.cancelled[0] != j.ID {
		t.Errorf("cancel not forwarded: %v", pipe.cancelled)
	}
}

func TestUnknownJob(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.Status("alice", "ghost"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("unknown job = %v", err)
	}
}
