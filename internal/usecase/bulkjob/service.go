// Package bulkjob exposes the bulk reconciliation lifecycle: submit an
// uploaded file, poll its progress, fetch the result, cancel. Jobs are
// private to their owner; a foreign job behaves like a missing one.
package bulkjob

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/vitalregistry/linkage/internal/bulk/records"
	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/domain/job"
)

// Service handles bulk reconciliation jobs on behalf of one owner.
type Service struct {
	pipe   Pipeline
	logger *zap.Logger
}

// New creates a bulk job service.
func New(pipe Pipeline, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{pipe: pipe, logger: logger}
}

// Submit validates the mapping and hands the upload to the pipeline.
func (s *Service) Submit(ctx context.Context, ownerID string, upload io.Reader, mapping records.Mapping) (job.Job, error) {
	j, err := s.pipe.Submit(ctx, ownerID, upload, mapping)
	if err != nil {
		return job.Job{}, err
	}
	s.logger.Info("bulk job submitted",
		zap.String("job", j.ID), zap.String("owner", ownerID), zap.Int("rows", j.TotalRows))
	return j, nil
}

// Status returns the job if it belongs to the owner.
func (s *Service) Status(ownerID, jobID string) (job.Job, error) {
	return s.owned(ownerID, jobID)
}

// Result streams the finished result in the requested format.
func (s *Service) Result(ownerID, jobID, format string) (io.ReadCloser, error) {
	if _, err := s.owned(ownerID, jobID); err != nil {
		return nil, err
	}
	return s.pipe.Fetch(jobID, format)
}

// Cancel stops the job and schedules its artifacts for deletion.
func (s *Service) Cancel(ownerID, jobID string) error {
	if _, err := s.owned(ownerID, jobID); err != nil {
		return err
	}
	return s.pipe.Cancel(jobID)
}

// owned resolves the job and hides it from other owners.
func (s *Service) owned(ownerID, jobID string) (job.Job, error) {
	j, err := s.pipe.Status(jobID)
	if err != nil {
		return job.Job{}, err
	}
	if j.OwnerID != ownerID {
		return job.Job{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	}
	return j, nil
}
