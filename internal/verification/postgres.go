package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable Store implementation over the email_otps
// table. Single-record mutations run inside a transaction holding a
// SELECT ... FOR UPDATE row lock, so a confirm racing a resend for the same
// subject serialises on the row.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, email, owner_id, code_hash, created_at, expires_at, consumed_at, failed_attempts, locked_until, created_ip`

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	q := `
		INSERT INTO email_otps (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.Exec(ctx, q,
		rec.ID, rec.Email, rec.OwnerID, rec.CodeHash,
		rec.CreatedAt, rec.ExpiresAt, rec.ConsumedAt,
		rec.FailedAttempts, rec.LockedUntil, rec.CreatedIP,
	)
	if err != nil {
		return fmt.Errorf("create verification record: %w", err)
	}
	return nil
}

// LatestActive implements Store.
func (s *PostgresStore) LatestActive(ctx context.Context, email string, now time.Time) (*Record, error) {
	q := `
		SELECT ` + recordColumns + `
		FROM email_otps
		WHERE email = $1 AND consumed_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1`
	rec, err := scanRecord(s.db.QueryRow(ctx, q, email, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoRecord
		}
		return nil, fmt.Errorf("latest active record: %w", err)
	}
	return rec, nil
}

// InvalidateActive implements Store.
func (s *PostgresStore) InvalidateActive(ctx context.Context, email string, now time.Time) error {
	q := `
		UPDATE email_otps
		SET consumed_at = $2
		WHERE email = $1 AND consumed_at IS NULL AND expires_at > $2`
	if _, err := s.db.Exec(ctx, q, email, now); err != nil {
		return fmt.Errorf("invalidate active records: %w", err)
	}
	return nil
}

// RecordFailure implements Store.
func (s *PostgresStore) RecordFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockFor time.Duration, now time.Time) (*Record, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	q := `SELECT ` + recordColumns + ` FROM email_otps WHERE id = $1 FOR UPDATE`
	rec, err := scanRecord(tx.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoRecord
		}
		return nil, fmt.Errorf("lock record: %w", err)
	}

	rec.FailedAttempts++
	if rec.FailedAttempts >= maxAttempts && (rec.LockedUntil == nil || !rec.LockedUntil.After(now)) {
		until := now.Add(lockFor)
		rec.LockedUntil = &until
	}

	if _, err := tx.Exec(ctx,
		`UPDATE email_otps SET failed_attempts = $2, locked_until = $3 WHERE id = $1`,
		id, rec.FailedAttempts, rec.LockedUntil,
	); err != nil {
		return nil, fmt.Errorf("record failed attempt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// Consume implements Store. The consumed_at IS NULL guard makes the
// transition atomic — of two racing confirms, exactly one sees a row update.
func (s *PostgresStore) Consume(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE email_otps SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("consume record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM email_otps WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// CountSince implements Store.
func (s *PostgresStore) CountSince(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM email_otps WHERE email = $1 AND created_at >= $2`,
		email, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// MostRecentCreatedAt implements Store.
func (s *PostgresStore) MostRecentCreatedAt(ctx context.Context, email string) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRow(ctx,
		`SELECT created_at FROM email_otps WHERE email = $1 ORDER BY created_at DESC LIMIT 1`,
		email,
	).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrNoRecord
		}
		return time.Time{}, fmt.Errorf("most recent record: %w", err)
	}
	return t, nil
}

// DeleteExpired removes consumed and long-expired records older than cutoff.
// Returns the number of rows removed. Safe to call from a background goroutine.
func (s *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM email_otps WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	if err := row.Scan(
		&r.ID, &r.Email, &r.OwnerID, &r.CodeHash,
		&r.CreatedAt, &r.ExpiresAt, &r.ConsumedAt,
		&r.FailedAttempts, &r.LockedUntil, &r.CreatedIP,
	); err != nil {
		return nil, err
	}
	return &r, nil
}
