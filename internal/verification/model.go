package verification

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is one issued email-verification OTP. Only the SHA-256 hash of the
// code is ever stored; the plaintext exists in memory just long enough to be
// mailed. A record is a plain value — expiry and hash policy live in the
// engine, not here.
type Record struct {
	ID             uuid.UUID  `json:"id"              db:"id"`
	Email          string     `json:"email"           db:"email"`
	OwnerID        *uuid.UUID `json:"owner_id"        db:"owner_id"`
	CodeHash       string     `json:"-"               db:"code_hash"`
	CreatedAt      time.Time  `json:"created_at"      db:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"      db:"expires_at"`
	ConsumedAt     *time.Time `json:"consumed_at"     db:"consumed_at"`
	FailedAttempts int        `json:"failed_attempts" db:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until"    db:"locked_until"`
	CreatedIP      string     `json:"created_ip"      db:"created_ip"`
}

// PendingIdentity is the registration data staged before any account exists.
// It is handed to the AccountPromoter once the email is confirmed.
type PendingIdentity struct {
	Email      string
	FullName   string
	Phone      string
	Role       string
	University string // matched allow-listed domain, empty when none
}

// Subject identifies who is being verified. Exactly one of Pending and
// OwnerID is set: Pending for a not-yet-created registration, OwnerID for an
// existing account whose email is being (re-)verified.
type Subject struct {
	Email       string
	Pending     *PendingIdentity
	OwnerID     *uuid.UUID
	DomainGated bool   // reject issuance when the email domain is not allow-listed
	ClientIP    string // requester IP, stamped on issued records
}

// AccountSummary is the account-facing payload returned after a successful
// confirmation and promotion.
type AccountSummary struct {
	UserID     uuid.UUID  `json:"user_id"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	FullName   string     `json:"full_name"`
	Role       string     `json:"role"`
	University string     `json:"university,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the part after '@', lower-cased, or "" for malformed input.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
