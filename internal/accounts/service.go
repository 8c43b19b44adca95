package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/uniconnect-lb/uniconnect/internal/verification"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrAlreadyVerified is returned when a verification is requested for an
// account whose email is already confirmed.
var ErrAlreadyVerified = errors.New("email already verified")

// stagingStore is the storage interface required by Service.
// *Repository satisfies this interface.
type stagingStore interface {
	UpsertPending(ctx context.Context, p *PendingRegistration) error
	GetPendingByEmail(ctx context.Context, email string) (*PendingRegistration, error)
	PhoneTaken(ctx context.Context, phone, excludeEmail string) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// RegistrationInput is the validated payload of a registration attempt.
type RegistrationInput struct {
	FullName   string
	Phone      string
	Email      string
	Password   string
	Role       Role
	University string // matched allow-listed domain, may be empty for owners
	ClientIP   string
	UserAgent  string
}

// Service stages registrations ahead of email verification and resolves
// verification subjects for resend/confirm calls.
type Service struct {
	store  stagingStore
	logger *zap.Logger
}

// NewService creates a Service over store.
func NewService(store stagingStore, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// StageRegistration persists (or overwrites) the pending registration for
// the input's email. The password is bcrypt-hashed here; the plaintext never
// reaches storage. No user row is created until confirmation succeeds.
func (s *Service) StageRegistration(ctx context.Context, in RegistrationInput) (*PendingRegistration, error) {
	email := verification.NormalizeEmail(in.Email)

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	taken, err := s.store.PhoneTaken(ctx, in.Phone, email)
	if err != nil {
		return nil, fmt.Errorf("check phone: %w", err)
	}
	if taken {
		return nil, ErrDuplicatePhone
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	p := &PendingRegistration{
		Email:            email,
		FullName:         in.FullName,
		Phone:            in.Phone,
		PasswordHash:     string(hash),
		Role:             in.Role,
		UniversityDomain: in.University,
		ClientIP:         in.ClientIP,
		UserAgent:        in.UserAgent,
	}
	if err := s.store.UpsertPending(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("registration staged",
		zap.String("email", email),
		zap.String("role", string(in.Role)),
	)
	return p, nil
}

// ResolveSubject builds the verification subject for an email: the staged
// pending registration when one exists, otherwise the existing unverified
// user. Returns ErrNotFound when neither exists and ErrAlreadyVerified when
// the account needs no verification.
func (s *Service) ResolveSubject(ctx context.Context, email string) (verification.Subject, error) {
	email = verification.NormalizeEmail(email)

	pending, err := s.store.GetPendingByEmail(ctx, email)
	if err == nil {
		return verification.Subject{
			Email: email,
			Pending: &verification.PendingIdentity{
				Email:      pending.Email,
				FullName:   pending.FullName,
				Phone:      pending.Phone,
				Role:       string(pending.Role),
				University: pending.UniversityDomain,
			},
			DomainGated: pending.Role == RoleSeeker,
		}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return verification.Subject{}, fmt.Errorf("lookup pending registration: %w", err)
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return verification.Subject{}, ErrNotFound
		}
		return verification.Subject{}, fmt.Errorf("lookup user: %w", err)
	}
	if u.EmailVerified {
		return verification.Subject{}, ErrAlreadyVerified
	}
	id := u.ID
	return verification.Subject{Email: email, OwnerID: &id}, nil
}
