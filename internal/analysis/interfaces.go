package analysis

import (
	"context"
	"time"
)

// Store is the read-only data gateway over requests, genres and associations.
type Store interface {
	// FetchRequest returns the request or an error wrapping ErrNotFound or ErrStoreUnavailable.
	FetchRequest(ctx context.Context, id int64) (Request, error)
	// FetchGenreAssociations returns the request's genres ordered by genre id.
	// No associations yields an empty slice and a nil error.
	FetchGenreAssociations(ctx context.Context, requestID int64) ([]GenreAssociation, error)
	Ping(ctx context.Context) error
}

// Notifier delivers a report to the calling service. One attempt, no retry.
type Notifier interface {
	Notify(ctx context.Context, report Report) error
}

// Publisher pushes outcome events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for accepted triggers.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time and pauses a run (useful for testing).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
