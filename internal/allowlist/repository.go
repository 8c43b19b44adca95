package allowlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateDomain is returned when inserting a domain that already exists.
var ErrDuplicateDomain = errors.New("domain already allow-listed")

// Repository provides CRUD operations for allow-listed domains against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new allow-listed domain. Sets ID and CreatedAt on d.
func (r *Repository) Create(ctx context.Context, d *Domain) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now().UTC()

	q := `
		INSERT INTO university_domains (id, domain, university_name, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, q, d.ID, d.Domain, d.University, d.Active, d.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateDomain
		}
		return fmt.Errorf("create domain: %w", err)
	}
	return nil
}

// ListActive returns all active allow-listed domains ordered by domain name.
func (r *Repository) ListActive(ctx context.Context) ([]Domain, error) {
	return r.list(ctx, `
		SELECT id, domain, university_name, is_active, created_at
		FROM university_domains
		WHERE is_active
		ORDER BY domain`)
}

// ListAll returns every allow-listed domain, active or not.
func (r *Repository) ListAll(ctx context.Context) ([]Domain, error) {
	return r.list(ctx, `
		SELECT id, domain, university_name, is_active, created_at
		FROM university_domains
		ORDER BY domain`)
}

// SetActive flips the active flag for a domain name.
// Returns the number of rows affected (0 when the domain is unknown).
func (r *Repository) SetActive(ctx context.Context, domain string, active bool) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE university_domains SET is_active = $2 WHERE domain = $1`, domain, active)
	if err != nil {
		return 0, fmt.Errorf("set domain active: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) list(ctx context.Context, q string) ([]Domain, error) {
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var out []Domain
	for rows.Next() {
		var d Domain
		if err := rows.Scan(&d.ID, &d.Domain, &d.University, &d.Active, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
