package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("account record not found")

// ErrDuplicateEmail is returned when an email already belongs to a promoted user.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrDuplicatePhone is returned when a phone number is already claimed by a
// profile or by another pending registration.
var ErrDuplicatePhone = errors.New("phone number already in use")

// Repository persists users, profiles, and pending registrations in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ── Pending registrations ───────────────────────────────────────────────────

// UpsertPending stages a registration, overwriting any previous attempt for
// the same email. Sets ID and timestamps on p.
func (r *Repository) UpsertPending(ctx context.Context, p *PendingRegistration) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	q := `
		INSERT INTO pending_registrations
			(id, email, full_name, phone, password_hash, role, university_domain, client_ip, user_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (email) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			phone = EXCLUDED.phone,
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			university_domain = EXCLUDED.university_domain,
			client_ip = EXCLUDED.client_ip,
			user_agent = EXCLUDED.user_agent,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.Exec(ctx, q,
		p.ID, p.Email, p.FullName, p.Phone, p.PasswordHash, p.Role,
		p.UniversityDomain, p.ClientIP, p.UserAgent, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("upsert pending registration: %w", err)
	}
	return nil
}

// GetPendingByEmail returns the staged registration for email, or ErrNotFound.
func (r *Repository) GetPendingByEmail(ctx context.Context, email string) (*PendingRegistration, error) {
	q := `
		SELECT id, email, full_name, phone, password_hash, role, university_domain,
		       client_ip, user_agent, created_at, updated_at
		FROM pending_registrations
		WHERE email = $1`
	var p PendingRegistration
	err := r.db.QueryRow(ctx, q, email).Scan(
		&p.ID, &p.Email, &p.FullName, &p.Phone, &p.PasswordHash, &p.Role,
		&p.UniversityDomain, &p.ClientIP, &p.UserAgent, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pending registration: %w", err)
	}
	return &p, nil
}

// PhoneTaken reports whether phone is claimed by any profile or by a pending
// registration staged under a different email.
func (r *Repository) PhoneTaken(ctx context.Context, phone, excludeEmail string) (bool, error) {
	var taken bool
	q := `
		SELECT EXISTS(SELECT 1 FROM profiles WHERE phone = $1)
		    OR EXISTS(SELECT 1 FROM pending_registrations WHERE phone = $1 AND email <> $2)`
	if err := r.db.QueryRow(ctx, q, phone, excludeEmail).Scan(&taken); err != nil {
		return false, fmt.Errorf("check phone uniqueness: %w", err)
	}
	return taken, nil
}

// ── Users ───────────────────────────────────────────────────────────────────

// GetUserByEmail returns the promoted user owning email, or ErrNotFound.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	q := `
		SELECT id, email, username, password_hash, email_verified, email_verified_at, created_at, updated_at
		FROM users
		WHERE email = $1`
	var u User
	err := r.db.QueryRow(ctx, q, email).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash,
		&u.EmailVerified, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// GetProfileByUserID returns the profile attached to a user, or ErrNotFound.
func (r *Repository) GetProfileByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	q := `
		SELECT id, user_id, full_name, phone, role, is_student_verified, university_domain, created_at
		FROM profiles
		WHERE user_id = $1`
	var p Profile
	err := r.db.QueryRow(ctx, q, userID).Scan(
		&p.ID, &p.UserID, &p.FullName, &p.Phone, &p.Role,
		&p.IsStudentVerified, &p.UniversityDomain, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// MarkEmailVerified flips the verified flag on an existing user and stamps
// the verification time. Returns the updated user.
func (r *Repository) MarkEmailVerified(ctx context.Context, userID uuid.UUID, verifiedAt time.Time) (*User, error) {
	q := `
		UPDATE users
		SET email_verified = true, email_verified_at = $2, updated_at = $2
		WHERE id = $1
		RETURNING id, email, username, password_hash, email_verified, email_verified_at, created_at, updated_at`
	var u User
	err := r.db.QueryRow(ctx, q, userID, verifiedAt).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash,
		&u.EmailVerified, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mark email verified: %w", err)
	}
	return &u, nil
}

// PromotePending converts the staged registration for email into a user and
// profile in one transaction and deletes the staging row. The username is the
// email local part, uniquified with a numeric suffix when taken.
func (r *Repository) PromotePending(ctx context.Context, email string, verifiedAt time.Time) (*User, *Profile, error) {
	pending, err := r.GetPendingByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	username, err := uniqueUsername(ctx, tx, pending.Email)
	if err != nil {
		return nil, nil, err
	}

	isStudent := pending.Role == RoleSeeker
	u := &User{
		ID:            uuid.New(),
		Email:         pending.Email,
		Username:      username,
		PasswordHash:  pending.PasswordHash,
		EmailVerified: true,
		CreatedAt:     verifiedAt,
		UpdatedAt:     verifiedAt,
	}
	u.EmailVerifiedAt = &u.CreatedAt

	if _, err := tx.Exec(ctx, `
		INSERT INTO users (id, email, username, password_hash, email_verified, email_verified_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.EmailVerified, u.EmailVerifiedAt, u.CreatedAt, u.UpdatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, nil, ErrDuplicateEmail
		}
		return nil, nil, fmt.Errorf("insert user: %w", err)
	}

	p := &Profile{
		ID:                uuid.New(),
		UserID:            u.ID,
		FullName:          pending.FullName,
		Phone:             pending.Phone,
		Role:              pending.Role,
		IsStudentVerified: isStudent,
		UniversityDomain:  pending.UniversityDomain,
		CreatedAt:         verifiedAt,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO profiles (id, user_id, full_name, phone, role, is_student_verified, university_domain, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.UserID, p.FullName, p.Phone, p.Role, p.IsStudentVerified, p.UniversityDomain, p.CreatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, nil, ErrDuplicatePhone
		}
		return nil, nil, fmt.Errorf("insert profile: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM pending_registrations WHERE email = $1`, pending.Email,
	); err != nil {
		return nil, nil, fmt.Errorf("delete pending registration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return u, p, nil
}

// uniqueUsername derives a username from the email local part and appends a
// numeric suffix while the candidate is taken.
func uniqueUsername(ctx context.Context, tx pgx.Tx, email string) (string, error) {
	base := email
	if at := strings.Index(email, "@"); at > 0 {
		base = email[:at]
	}

	candidate := base
	for suffix := 2; ; suffix++ {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE lower(username) = lower($1))`, candidate,
		).Scan(&exists); err != nil {
			return "", fmt.Errorf("check username: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, suffix)
		if suffix > 9999 {
			return "", fmt.Errorf("could not generate unique username for %q", email)
		}
	}
}
