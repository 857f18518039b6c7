package eventstore

import (
	"context"
	"time"
)

// Store persists sync history.
type Store interface {
	// Append adds e; ID and a zero Timestamp are filled in by the store.
	Append(ctx context.Context, e Event) error

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// GetByCycleID retrieves all events for one sync cycle in insertion order.
	GetByCycleID(ctx context.Context, cycleID string) ([]Event, error)

	// GetRange retrieves events within a time range in insertion order.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Prune keeps the newest keep events and deletes the rest.
	Prune(ctx context.Context, keep int) (int64, error)

	Close() error
}
