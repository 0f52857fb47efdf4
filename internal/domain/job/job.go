// Package job holds the bulk reconciliation job model and its lifecycle.
package job

import (
	"time"
)

// State is the lifecycle state of a bulk job.
type State string

// Job lifecycle states.
const (
	StateCreated   State = "created"
	StateQueued    State = "queued"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further state change may occur.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Job is one uploaded reconciliation file.
type Job struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	TotalRows int       `json:"totalRows"`
	Priority  int       `json:"priority"` // lower value dequeued first
	State     State     `json:"state"`
	Progress  Progress  `json:"progress"`
	Error     string    `json:"error,omitempty"` // human-readable terminal reason
	CreatedAt time.Time `json:"createdAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
}

// Progress tracks cumulative row completion.
type Progress struct {
	ProcessedRows int     `json:"processedRows"`
	Pct           float64 `json:"pct"`
}

// PriorityFor derives the numeric priority from the row count: smaller files
// get a lower value and are dequeued ahead of larger ones, so big jobs cannot
// starve small ones.
func PriorityFor(totalRows int) int {
	return (totalRows+999)/1000 + 1
}

// New creates a queued job for an uploaded file.
func New(id, ownerID string, totalRows int) *Job {
	return &Job{
		ID:        id,
		OwnerID:   ownerID,
		TotalRows: totalRows,
		Priority:  PriorityFor(totalRows),
		State:     StateCreated,
		CreatedAt: time.Now(),
	}
}
