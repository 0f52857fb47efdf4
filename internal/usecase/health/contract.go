package health

import "context"

// IndexPinger checks registry index availability.
type IndexPinger interface {
	Ping(ctx context.Context) error
}

// QueuePinger checks work queue availability.
type QueuePinger interface {
	Ping(ctx context.Context) error
}
