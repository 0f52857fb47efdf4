package bulkjob

import (
	"context"
	"io"

	"github.com/vitalregistry/linkage/internal/bulk/records"
	"github.com/vitalregistry/linkage/internal/domain/job"
)

// Pipeline is the bulk reconciliation engine behind the usecase.
type Pipeline interface {
	Submit(ctx context.Context, ownerID string, upload io.Reader, mapping records.Mapping) (job.Job, error)
	Status(jobID string) (job.Job, error)
	Fetch(jobID, format string) (io.ReadCloser, error)
	Cancel(jobID string) error
}
