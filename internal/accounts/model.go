package accounts

import (
	"time"

	"github.com/google/uuid"
)

// Role is the marketplace role a registrant signs up with.
type Role string

const (
	// RoleSeeker is a student looking for housing; requires a verified
	// university email.
	RoleSeeker Role = "SEEKER"
	// RoleOwner is a dorm/property owner; any email domain is accepted.
	RoleOwner Role = "OWNER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleSeeker || r == RoleOwner
}

// User is a promoted, verified account holder.
type User struct {
	ID              uuid.UUID  `json:"id"                db:"id"`
	Email           string     `json:"email"             db:"email"`
	Username        string     `json:"username"          db:"username"`
	PasswordHash    string     `json:"-"                 db:"password_hash"`
	EmailVerified   bool       `json:"email_verified"    db:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at" db:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"        db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"        db:"updated_at"`
}

// Profile stores marketplace-facing data for a user.
type Profile struct {
	ID                uuid.UUID  `json:"id"                  db:"id"`
	UserID            uuid.UUID  `json:"user_id"             db:"user_id"`
	FullName          string     `json:"full_name"           db:"full_name"`
	Phone             string     `json:"phone"               db:"phone"`
	Role              Role       `json:"role"                db:"role"`
	IsStudentVerified bool       `json:"is_student_verified" db:"is_student_verified"`
	UniversityDomain  string     `json:"university_domain"   db:"university_domain"`
	CreatedAt         time.Time  `json:"created_at"          db:"created_at"`
}

// PendingRegistration is a registration staged before email verification.
// Repeat registration attempts for the same email overwrite the staged row;
// it is deleted when promotion succeeds.
type PendingRegistration struct {
	ID               uuid.UUID `json:"id"                db:"id"`
	Email            string    `json:"email"             db:"email"`
	FullName         string    `json:"full_name"         db:"full_name"`
	Phone            string    `json:"phone"             db:"phone"`
	PasswordHash     string    `json:"-"                 db:"password_hash"`
	Role             Role      `json:"role"              db:"role"`
	UniversityDomain string    `json:"university_domain" db:"university_domain"`
	ClientIP         string    `json:"client_ip"         db:"client_ip"`
	UserAgent        string    `json:"user_agent"        db:"user_agent"`
	CreatedAt        time.Time `json:"created_at"        db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"        db:"updated_at"`
}
