// Package notify delivers fire-and-forget job lifecycle notifications.
// Delivery failures are logged and never affect pipeline correctness.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Event names a job lifecycle transition worth notifying about.
type Event string

// Notification events.
const (
	EventCompleted Event = "completed"
	EventFailed    Event = "failed"
	EventCancelled Event = "cancelled"
)

// Notifier delivers one notification. Implementations must never block the
// caller on delivery.
type Notifier interface {
	Notify(ownerID string, event Event, jobID string)
}

// Nop discards notifications; used when no webhook is configured.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(string, Event, string) {}

// Webhook posts notifications as JSON to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, timeout time.Duration, logger *zap.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}, logger: logger}
}

type payload struct {
	OwnerID string `json:"ownerId"`
	Event   Event  `json:"event"`
	JobID   string `json:"jobId"`
}

// Notify posts the event in a detached goroutine and returns immediately.
func (w *Webhook) Notify(ownerID string, event Event, jobID string) {
	go func() {
		body, err := json.Marshal(payload{OwnerID: ownerID, Event: event, JobID: jobID})
		if err != nil {
			w.logger.Warn("encode notification", zap.Error(err))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), w.client.Timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			w.logger.Warn("build notification request", zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			w.logger.Warn("notification delivery failed",
				zap.String("job", jobID), zap.String("event", string(event)), zap.Error(err))
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			w.logger.Warn("notification rejected",
				zap.String("job", jobID), zap.Int("status", resp.StatusCode))
		}
	}()
}
