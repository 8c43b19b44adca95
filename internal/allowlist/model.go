package allowlist

import (
	"time"

	"github.com/google/uuid"
)

// Domain is an allow-listed university email domain.
// Matching is suffix-based: an entry for "aub.edu" covers
// "mail.aub.edu" and any other host under it.
type Domain struct {
	ID         uuid.UUID `json:"id"         db:"id"`
	Domain     string    `json:"domain"     db:"domain"`
	University string    `json:"university" db:"university_name"`
	Active     bool      `json:"active"     db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
