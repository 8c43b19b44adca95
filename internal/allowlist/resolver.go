package allowlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoMatch is returned when no active allow-listed domain covers the input.
var ErrNoMatch = errors.New("domain not allow-listed")

// domainLister is the storage interface required by Cache.
// *Repository satisfies this interface.
type domainLister interface {
	ListActive(ctx context.Context) ([]Domain, error)
}

// Cache is a read-through cache over the allow-listed domain table.
// The full active set is loaded on first use and refreshed after ttl;
// lookups between refreshes are served from memory.
type Cache struct {
	repo   domainLister
	ttl    time.Duration
	logger *zap.Logger

	mu       sync.RWMutex
	byDomain map[string]Domain
	loadedAt time.Time
}

// NewCache creates a Cache over repo. A ttl of zero disables expiry;
// the set is then only reloaded via Refresh.
func NewCache(repo domainLister, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{repo: repo, ttl: ttl, logger: logger}
}

// Refresh reloads the active domain set from storage.
func (c *Cache) Refresh(ctx context.Context) error {
	domains, err := c.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("load allow-listed domains: %w", err)
	}

	m := make(map[string]Domain, len(domains))
	for _, d := range domains {
		m[strings.ToLower(d.Domain)] = d
	}

	c.mu.Lock()
	c.byDomain = m
	c.loadedAt = time.Now()
	c.mu.Unlock()

	c.logger.Info("allow-list refreshed", zap.Int("domains", len(domains)))
	return nil
}

// Resolve returns the allow-listed entry covering the given email domain,
// or ErrNoMatch. Matching walks the dot-separated suffixes of the input
// most specific first: "mail.aub.edu" tries "mail.aub.edu", then "aub.edu",
// then "edu". Fails closed when nothing matches.
func (c *Cache) Resolve(ctx context.Context, domain string) (*Domain, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, ErrNoMatch
	}

	if err := c.ensureFresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, candidate := range suffixCandidates(domain) {
		if d, ok := c.byDomain[candidate]; ok {
			cp := d
			return &cp, nil
		}
	}
	return nil, ErrNoMatch
}

func (c *Cache) ensureFresh(ctx context.Context) error {
	c.mu.RLock()
	loaded := !c.loadedAt.IsZero()
	stale := c.ttl > 0 && time.Since(c.loadedAt) > c.ttl
	c.mu.RUnlock()

	if loaded && !stale {
		return nil
	}
	if err := c.Refresh(ctx); err != nil {
		if loaded {
			// Serve the stale set rather than failing lookups outright.
			c.logger.Warn("allow-list refresh failed, serving stale set", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// suffixCandidates expands "mail.aub.edu" into
// ["mail.aub.edu", "aub.edu", "edu"].
func suffixCandidates(domain string) []string {
	labels := strings.Split(domain, ".")
	out := make([]string, 0, len(labels))
	for i := range labels {
		out = append(out, strings.Join(labels[i:], "."))
	}
	return out
}
