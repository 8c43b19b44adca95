package verification

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RateLimiter enforces the resend cooldown and the rolling 24h daily quota,
// computed from the store's record history. The check is advisory — two
// concurrent sends are ultimately serialised by the store, not here — but it
// is what gives callers precise wait times.
type RateLimiter struct {
	store      Store
	cooldown   time.Duration
	dailyLimit int
}

// NewRateLimiter creates a RateLimiter over store.
func NewRateLimiter(store Store, cooldown time.Duration, dailyLimit int) *RateLimiter {
	return &RateLimiter{store: store, cooldown: cooldown, dailyLimit: dailyLimit}
}

// CheckCanIssue returns nil when a new code may be issued for email at now,
// a *CooldownError while the cooldown is active, or ErrDailyLimitExceeded
// when the 24h quota is used up.
func (l *RateLimiter) CheckCanIssue(ctx context.Context, email string, now time.Time) error {
	last, err := l.store.MostRecentCreatedAt(ctx, email)
	switch {
	case errors.Is(err, ErrNoRecord):
		return nil // first ever send for this address
	case err != nil:
		return fmt.Errorf("rate limit history: %w", err)
	}

	if until := last.Add(l.cooldown); until.After(now) {
		remaining := int((until.Sub(now) + time.Second - 1) / time.Second)
		if remaining < 1 {
			remaining = 1
		}
		return &CooldownError{Remaining: remaining}
	}

	sent, err := l.store.CountSince(ctx, email, now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("rate limit count: %w", err)
	}
	if sent >= l.dailyLimit {
		return ErrDailyLimitExceeded
	}
	return nil
}
