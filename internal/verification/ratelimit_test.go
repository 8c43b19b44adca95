package verification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uniconnect-lb/uniconnect/internal/verification"
)

func seedRecord(t *testing.T, store *verification.MemoryStore, email string, createdAt time.Time) {
	t.Helper()
	err := store.Create(context.Background(), &verification.Record{
		Email:     email,
		CodeHash:  verification.HashCode("000000"),
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(15 * time.Minute),
	})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func TestCheckCanIssue_firstSendAllowed(t *testing.T) {
	store := verification.NewMemoryStore()
	limiter := verification.NewRateLimiter(store, time.Minute, 5)

	if err := limiter.CheckCanIssue(context.Background(), "s@aub.edu", time.Now()); err != nil {
		t.Fatalf("first send: %v", err)
	}
}

func TestCheckCanIssue_cooldown(t *testing.T) {
	store := verification.NewMemoryStore()
	limiter := verification.NewRateLimiter(store, time.Minute, 5)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	seedRecord(t, store, "s@aub.edu", base)

	cases := []struct {
		elapsed       time.Duration
		wantRemaining int
	}{
		{0, 60},
		{5 * time.Second, 55},
		{59 * time.Second, 1},
		{60*time.Second - time.Millisecond, 1},
	}
	for _, tc := range cases {
		err := limiter.CheckCanIssue(context.Background(), "s@aub.edu", base.Add(tc.elapsed))
		ce, ok := verification.AsCooldown(err)
		if !ok {
			t.Fatalf("elapsed %v: got %v, want CooldownError", tc.elapsed, err)
		}
		if ce.Remaining != tc.wantRemaining {
			t.Errorf("elapsed %v: Remaining = %d, want %d", tc.elapsed, ce.Remaining, tc.wantRemaining)
		}
	}

	// Exactly at the cooldown boundary the send is allowed again.
	if err := limiter.CheckCanIssue(context.Background(), "s@aub.edu", base.Add(time.Minute)); err != nil {
		t.Errorf("at boundary: %v", err)
	}
}

func TestCheckCanIssue_dailyLimit(t *testing.T) {
	store := verification.NewMemoryStore()
	limiter := verification.NewRateLimiter(store, time.Minute, 3)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		seedRecord(t, store, "s@aub.edu", base.Add(time.Duration(i)*time.Hour))
	}

	now := base.Add(3 * time.Hour)
	err := limiter.CheckCanIssue(context.Background(), "s@aub.edu", now)
	if !errors.Is(err, verification.ErrDailyLimitExceeded) {
		t.Fatalf("got %v, want ErrDailyLimitExceeded", err)
	}

	// Once the oldest record falls out of the 24h window the quota frees up.
	now = base.Add(24*time.Hour + time.Minute)
	if err := limiter.CheckCanIssue(context.Background(), "s@aub.edu", now); err != nil {
		t.Errorf("after window rolled: %v", err)
	}
}

func TestCheckCanIssue_quotasArePerEmail(t *testing.T) {
	store := verification.NewMemoryStore()
	limiter := verification.NewRateLimiter(store, time.Minute, 1)
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	seedRecord(t, store, "a@aub.edu", base)

	if err := limiter.CheckCanIssue(context.Background(), "b@aub.edu", base.Add(time.Second)); err != nil {
		t.Errorf("unrelated address limited: %v", err)
	}
}
