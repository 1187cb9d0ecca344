package outbox

import (
	"context"
	"time"
)

// Repository defines the interface for outbox persistence
type Repository interface {
	// Insert creates a new outbox record (inside the mutation's transaction)
	Insert(ctx context.Context, record *Record) error

	// ClaimDue atomically claims up to limit due records: unprocessed,
	// next attempt due (or never attempted) and attempts remaining,
	// oldest first. Claiming sets claimed_on_utc in the same conditional
	// update so concurrent relay instances never double-claim a row.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Record, error)

	// MarkProcessed records a successful publish
	MarkProcessed(ctx context.Context, record *Record) error

	// MarkAttemptFailed records a failed publish attempt and its
	// next-attempt schedule (or permanent failure)
	MarkAttemptFailed(ctx context.Context, record *Record) error

	// CountPermanentlyFailed returns records that exhausted all attempts,
	// for alerting
	CountPermanentlyFailed(ctx context.Context) (int64, error)

	// CountUnprocessed returns records still awaiting publish
	CountUnprocessed(ctx context.Context) (int64, error)

	// DeleteProcessedBefore removes processed records older than the
	// retention cutoff, returning the number removed
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
