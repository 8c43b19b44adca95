package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uniconnect-lb/uniconnect/internal/verification"
	"go.uber.org/zap"
)

// promoterStore is the storage interface required by Promoter.
// *Repository satisfies this interface.
type promoterStore interface {
	PromotePending(ctx context.Context, email string, verifiedAt time.Time) (*User, *Profile, error)
	MarkEmailVerified(ctx context.Context, userID uuid.UUID, verifiedAt time.Time) (*User, error)
	GetProfileByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)
}

// Promoter converts a verified subject into a persisted account. It
// implements verification.AccountPromoter; the engine's consumption
// invariant guarantees at most one Promote call per confirmation.
type Promoter struct {
	store  promoterStore
	logger *zap.Logger
}

// NewPromoter creates a Promoter over store.
func NewPromoter(store promoterStore, logger *zap.Logger) *Promoter {
	return &Promoter{store: store, logger: logger}
}

// Promote creates the account for a pending subject, or flips the verified
// flag for an existing one, and returns the account-facing summary.
func (p *Promoter) Promote(ctx context.Context, sub verification.Subject, verifiedAt time.Time) (*verification.AccountSummary, error) {
	if sub.OwnerID != nil {
		u, err := p.store.MarkEmailVerified(ctx, *sub.OwnerID, verifiedAt)
		if err != nil {
			return nil, fmt.Errorf("mark existing account verified: %w", err)
		}
		summary := &verification.AccountSummary{
			UserID:     u.ID,
			Email:      u.Email,
			Username:   u.Username,
			VerifiedAt: u.EmailVerifiedAt,
		}
		if prof, err := p.store.GetProfileByUserID(ctx, u.ID); err == nil {
			summary.FullName = prof.FullName
			summary.Role = string(prof.Role)
			summary.University = prof.UniversityDomain
		}
		p.logger.Info("existing account verified", zap.String("user_id", u.ID.String()))
		return summary, nil
	}

	u, prof, err := p.store.PromotePending(ctx, verification.NormalizeEmail(sub.Email), verifiedAt)
	if err != nil {
		return nil, fmt.Errorf("promote pending registration: %w", err)
	}

	p.logger.Info("pending registration promoted",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(prof.Role)),
	)
	return &verification.AccountSummary{
		UserID:     u.ID,
		Email:      u.Email,
		Username:   u.Username,
		FullName:   prof.FullName,
		Role:       string(prof.Role),
		University: prof.UniversityDomain,
		VerifiedAt: u.EmailVerifiedAt,
	}, nil
}
