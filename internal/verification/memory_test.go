package verification_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/uniconnect-lb/uniconnect/internal/verification"
)

func TestMemoryStore_latestActive(t *testing.T) {
	store := verification.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	old := &verification.Record{Email: "s@aub.edu", CodeHash: "a", CreatedAt: base, ExpiresAt: base.Add(15 * time.Minute)}
	fresh := &verification.Record{Email: "s@aub.edu", CodeHash: "b", CreatedAt: base.Add(time.Minute), ExpiresAt: base.Add(16 * time.Minute)}
	for _, r := range []*verification.Record{old, fresh} {
		if err := store.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := store.LatestActive(ctx, "s@aub.edu", base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("LatestActive: %v", err)
	}
	if got.ID != fresh.ID {
		t.Errorf("got record %s, want the newest %s", got.ID, fresh.ID)
	}

	// Past both expiries nothing is active.
	if _, err := store.LatestActive(ctx, "s@aub.edu", base.Add(time.Hour)); !errors.Is(err, verification.ErrNoRecord) {
		t.Errorf("after expiry: got %v, want ErrNoRecord", err)
	}
}

func TestMemoryStore_latestActiveReturnsLockedRecords(t *testing.T) {
	store := verification.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	lockedUntil := base.Add(30 * time.Minute)

	rec := &verification.Record{
		Email:       "s@aub.edu",
		CodeHash:    "a",
		CreatedAt:   base,
		ExpiresAt:   base.Add(15 * time.Minute),
		LockedUntil: &lockedUntil,
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.LatestActive(ctx, "s@aub.edu", base.Add(time.Minute))
	if err != nil {
		t.Fatalf("LatestActive: %v", err)
	}
	if got.LockedUntil == nil {
		t.Error("lock state lost on read")
	}
}

func TestMemoryStore_invalidateActive(t *testing.T) {
	store := verification.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	rec := &verification.Record{Email: "s@aub.edu", CodeHash: "a", CreatedAt: base, ExpiresAt: base.Add(15 * time.Minute)}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.InvalidateActive(ctx, "s@aub.edu", base.Add(time.Minute)); err != nil {
		t.Fatalf("InvalidateActive: %v", err)
	}
	if _, err := store.LatestActive(ctx, "s@aub.edu", base.Add(2*time.Minute)); !errors.Is(err, verification.ErrNoRecord) {
		t.Errorf("got %v, want ErrNoRecord after invalidation", err)
	}
}

func TestMemoryStore_recordFailureLocksAtThreshold(t *testing.T) {
	store := verification.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	rec := &verification.Record{Email: "s@aub.edu", CodeHash: "a", CreatedAt: base, ExpiresAt: base.Add(15 * time.Minute)}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 1; i <= 2; i++ {
		got, err := store.RecordFailure(ctx, rec.ID, 3, 30*time.Minute, base)
		if err != nil {
			t.Fatalf("RecordFailure %d: %v", i, err)
		}
		if got.FailedAttempts != i {
			t.Errorf("attempt %d: FailedAttempts = %d", i, got.FailedAttempts)
		}
		if got.LockedUntil != nil {
			t.Errorf("attempt %d: locked before threshold", i)
		}
	}

	got, err := store.RecordFailure(ctx, rec.ID, 3, 30*time.Minute, base)
	if err != nil {
		t.Fatalf("RecordFailure 3: %v", err)
	}
	if got.LockedUntil == nil {
		t.Fatal("not locked at threshold")
	}
	if want := base.Add(30 * time.Minute); !got.LockedUntil.Equal(want) {
		t.Errorf("LockedUntil = %v, want %v", got.LockedUntil, want)
	}
}

func TestMemoryStore_recordFailureRelocksAfterLapse(t *testing.T) {
	store := verification.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	rec := &verification.Record{Email: "s@aub.edu", CodeHash: "a", CreatedAt: base, ExpiresAt: base.Add(2 * time.Hour)}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.RecordFailure(ctx, rec.ID, 3, 30*time.Minute, base); err != nil {
			t.Fatalf("RecordFailure %d: %v", i+1, err)
		}
	}

	// A failure during the active lock must not extend it.
	got, err := store.RecordFailure(ctx, rec.ID, 3, 30*time.Minute, base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("RecordFailure during lock: %v", err)
	}
	if want := base.Add(30 * time.Minute); !got.LockedUntil.Equal(want) {
		t.Errorf("lock extended during active lock: %v, want %v", got.LockedUntil, want)
	}

	// A failure after the lock lapsed must lock again.
	got, err = store.RecordFailure(ctx, rec.ID, 3, 30*time.Minute, base.Add(31*time.Minute))
	if err != nil {
		t.Fatalf("RecordFailure after lapse: %v", err)
	}
	if want := base.Add(61 * time.Minute); got.LockedUntil == nil || !got.LockedUntil.Equal(want) {
		t.Errorf("LockedUntil = %v, want %v (re-lock)", got.LockedUntil, want)
	}
}

func TestMemoryStore_consumeExactlyOnce(t *testing.T) {
	store := verification.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	rec := &verification.Record{Email: "s@aub.edu", CodeHash: "a", CreatedAt: base, ExpiresAt: base.Add(15 * time.Minute)}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := store.Consume(ctx, rec.ID, base)
			if err != nil {
				t.Errorf("Consume: %v", err)
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestMemoryStore_returnsCopies(t *testing.T) {
	store := verification.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	rec := &verification.Record{Email: "s@aub.edu", CodeHash: "a", CreatedAt: base, ExpiresAt: base.Add(15 * time.Minute)}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.LatestActive(ctx, "s@aub.edu", base)
	if err != nil {
		t.Fatalf("LatestActive: %v", err)
	}
	got.CodeHash = "tampered"

	again, err := store.LatestActive(ctx, "s@aub.edu", base)
	if err != nil {
		t.Fatalf("LatestActive: %v", err)
	}
	if again.CodeHash != "a" {
		t.Error("mutation of returned record leaked into the store")
	}
}
