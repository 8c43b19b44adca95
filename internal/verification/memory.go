package verification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for testing and for single-process deployments that do
// not require durable persistence across restarts.
type MemoryStore struct {
	mu      sync.Mutex
	byEmail map[string][]*Record
	byID    map[uuid.UUID]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byEmail: make(map[string][]*Record),
		byID:    make(map[uuid.UUID]*Record),
	}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	cp := *rec
	s.byEmail[cp.Email] = append(s.byEmail[cp.Email], &cp)
	s.byID[cp.ID] = &cp
	return nil
}

// LatestActive implements Store.
func (s *MemoryStore) LatestActive(_ context.Context, email string, now time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *Record
	for _, r := range s.byEmail[email] {
		if !activeAt(r, now) {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrNoRecord
	}
	cp := *latest
	return &cp, nil
}

// InvalidateActive implements Store.
func (s *MemoryStore) InvalidateActive(_ context.Context, email string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.byEmail[email] {
		if activeAt(r, now) {
			t := now
			r.ConsumedAt = &t
		}
	}
	return nil
}

// RecordFailure implements Store.
func (s *MemoryStore) RecordFailure(_ context.Context, id uuid.UUID, maxAttempts int, lockFor time.Duration, now time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return nil, ErrNoRecord
	}
	r.FailedAttempts++
	if r.FailedAttempts >= maxAttempts && (r.LockedUntil == nil || !r.LockedUntil.After(now)) {
		until := now.Add(lockFor)
		r.LockedUntil = &until
	}
	cp := *r
	return &cp, nil
}

// Consume implements Store.
func (s *MemoryStore) Consume(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return false, ErrNoRecord
	}
	if r.ConsumedAt != nil {
		return false, nil
	}
	t := now
	r.ConsumedAt = &t
	return true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	rs := s.byEmail[r.Email]
	for i, cand := range rs {
		if cand.ID == id {
			s.byEmail[r.Email] = append(rs[:i], rs[i+1:]...)
			break
		}
	}
	return nil
}

// CountSince implements Store.
func (s *MemoryStore) CountSince(_ context.Context, email string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.byEmail[email] {
		if !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// MostRecentCreatedAt implements Store.
func (s *MemoryStore) MostRecentCreatedAt(_ context.Context, email string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest time.Time
	for _, r := range s.byEmail[email] {
		if r.CreatedAt.After(latest) {
			latest = r.CreatedAt
		}
	}
	if latest.IsZero() {
		return time.Time{}, ErrNoRecord
	}
	return latest, nil
}
