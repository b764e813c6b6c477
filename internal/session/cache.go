package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is the explicit, orchestrator-owned session cache. It replaces the
// process-wide mutable token globals the per-site scrapers used to carry.
// Entries are keyed by (platform, location) and expire after the configured
// TTL; runs always receive their own copy.
type Cache struct {
	providers map[string]Provider
	sessions  *expirable.LRU[string, *Session]
	logger    *slog.Logger

	mu sync.Mutex
}

func NewCache(size int, ttl time.Duration, logger *slog.Logger) *Cache {
	if size <= 0 {
		size = 64
	}
	return &Cache{
		providers: make(map[string]Provider),
		sessions:  expirable.NewLRU[string, *Session](size, nil, ttl),
		logger:    logger.With("component", "session_cache"),
	}
}

// Register binds a provider to a platform name.
func (c *Cache) Register(platform string, provider Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[platform] = provider
}

// Acquire returns a session copy for (platform, location), minting one via
// the registered provider on cache miss. Acquisition is serialized so a
// burst of runs does not trigger parallel browser flows for the same key.
func (c *Cache) Acquire(ctx context.Context, platform, locationHint string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	provider, ok := c.providers[platform]
	if !ok {
		return nil, fmt.Errorf("no session provider registered for %s", platform)
	}

	key := cacheKey(platform, locationHint)
	if cached, ok := c.sessions.Get(key); ok {
		return cached.Clone(), nil
	}

	c.logger.Info("acquiring session", "platform", platform, "location", locationHint)
	sess, err := provider.Acquire(ctx, locationHint)
	if err != nil {
		return nil, fmt.Errorf("acquire %s session: %w", platform, err)
	}

	c.sessions.Add(key, sess)
	return sess.Clone(), nil
}

// Refresh mints a replacement session after a demonstrated failure and
// swaps the cached entry wholesale.
func (c *Cache) Refresh(ctx context.Context, platform string, current *Session, locationHint string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	provider, ok := c.providers[platform]
	if !ok {
		return nil, fmt.Errorf("no session provider registered for %s", platform)
	}

	c.logger.Info("refreshing session", "platform", platform, "location", locationHint)
	sess, err := provider.Refresh(ctx, current, locationHint)
	if err != nil {
		return nil, fmt.Errorf("refresh %s session: %w", platform, err)
	}

	c.sessions.Add(cacheKey(platform, locationHint), sess)
	return sess.Clone(), nil
}

// Invalidate drops the cached entry for (platform, location).
func (c *Cache) Invalidate(platform, locationHint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions.Remove(cacheKey(platform, locationHint))
}

func cacheKey(platform, locationHint string) string {
	return platform + "|" + locationHint
}
