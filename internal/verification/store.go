package verification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoRecord is returned by store lookups that find nothing.
var ErrNoRecord = errors.New("no verification record")

// Store is the persistence abstraction for verification records. The engine
// never mutates storage except through these operations, which keeps a single
// choke point for the record invariants. Implementations must make each
// single-record operation a read-modify-write under a lock or transaction
// scoped to that record, so a confirm racing a resend cannot lose updates.
type Store interface {
	// Create persists a new record.
	Create(ctx context.Context, rec *Record) error

	// LatestActive returns the most recent record for email that is neither
	// consumed nor expired at now, or ErrNoRecord. Locked records are still
	// returned — the lock check is the engine's concern.
	LatestActive(ctx context.Context, email string, now time.Time) (*Record, error)

	// InvalidateActive marks every currently-active record for email as
	// consumed, enforcing the one-active-code-per-subject invariant before a
	// new record is issued.
	InvalidateActive(ctx context.Context, email string, now time.Time) error

	// RecordFailure increments the record's failed-attempt counter; when the
	// new count has reached maxAttempts and no lock is currently in force it
	// sets LockedUntil = now + lockFor, so a record whose earlier lock lapsed
	// re-locks on the next failure. Returns the updated record.
	RecordFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockFor time.Duration, now time.Time) (*Record, error)

	// Consume sets ConsumedAt if and only if it is still unset. Returns true
	// when this call performed the transition; false means another caller
	// already consumed the record.
	Consume(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)

	// Delete removes a record outright. Used to revert an issued record whose
	// email dispatch failed, so no undeliverable code stays active.
	Delete(ctx context.Context, id uuid.UUID) error

	// CountSince returns how many records were created for email at or after since.
	CountSince(ctx context.Context, email string, since time.Time) (int, error)

	// MostRecentCreatedAt returns the creation time of the newest record for
	// email, or ErrNoRecord.
	MostRecentCreatedAt(ctx context.Context, email string) (time.Time, error)
}

// activeAt reports whether a record is usable for confirmation lookup:
// not consumed and not past expiry. Lock state is deliberately excluded.
func activeAt(r *Record, now time.Time) bool {
	return r.ConsumedAt == nil && r.ExpiresAt.After(now)
}
