package signingkeys

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/sessiongate/core/querier"
	"github.com/dmitrymomot/sessiongate/pkg/logger"
)

const (
	jwksPath            = "/.well-known/jwks.json"
	legacyHandshakePath = "/recipe/handshake"
)

// SigningKey is one trusted public verification key.
type SigningKey struct {
	// PublicKey is the PEM-encoded RSA public key.
	PublicKey string

	// CreatedAt is the key creation time in epoch milliseconds. Zero means
	// the key carries no rotation timestamp (static key) and is treated as
	// older than any token.
	CreatedAt int64
}

// Cache is the process-wide set of currently trusted signing keys.
//
// Reads are cheap and concurrent. Refreshes are coalesced: concurrent
// callers share one in-flight core fetch, and a cooldown window suppresses
// refetch storms — a caller inside the cooldown proceeds with the existing,
// possibly stale, key set and relies on the access-token validator's
// cache-miss escalation instead.
type Cache struct {
	querier  *querier.Client
	cooldown time.Duration
	maxAge   time.Duration
	log      *slog.Logger

	mu          sync.RWMutex
	keys        []SigningKey
	lastRefresh time.Time

	group singleflight.Group
}

// Option configures the Cache.
type Option func(*Cache)

// WithLogger sets the logger for refresh diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a key cache backed by the given core client.
func New(q *querier.Client, cfg Config, opts ...Option) *Cache {
	cfg = cfg.withDefaults()

	c := &Cache{
		querier:  q,
		cooldown: cfg.RefreshCooldown,
		maxAge:   cfg.CacheMaxAge,
		log:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetKeys returns the trusted key set, refreshing it from the core when the
// cache is stale (or forceRefresh is set) and the cooldown has elapsed.
func (c *Cache) GetKeys(ctx context.Context, forceRefresh bool) ([]SigningKey, error) {
	keys, last := c.snapshot()

	stale := len(keys) == 0 || time.Since(last) > c.maxAge
	if (forceRefresh || stale) && time.Since(last) >= c.cooldown {
		refreshed, err := c.refresh(ctx)
		if err != nil {
			if len(keys) == 0 {
				return nil, err
			}
			// Keep serving the previous set; ambiguous verification
			// failures escalate to the core anyway.
			c.log.WarnContext(ctx, "signing key refresh failed, serving previous set",
				logger.Component("signingkeys"), logger.Error(err), logger.KeyCount(len(keys)))
			return keys, nil
		}
		return refreshed, nil
	}

	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return keys, nil
}

// SetKeys replaces the cached key set with one received out-of-band, e.g.
// from a verify response that included an updated key list. This is the
// self-healing path for stale caches.
func (c *Cache) SetKeys(keys []SigningKey) {
	if len(keys) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = keys
	c.lastRefresh = time.Now()
}

// Len returns the current number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

func (c *Cache) snapshot() ([]SigningKey, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]SigningKey, len(c.keys))
	copy(keys, c.keys)
	return keys, c.lastRefresh
}

// refresh performs one coalesced core round-trip and replaces the key set.
func (c *Cache) refresh(ctx context.Context) ([]SigningKey, error) {
	result, err, _ := c.group.Do("refresh", func() (any, error) {
		start := time.Now()

		keys, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.keys = keys
		c.lastRefresh = time.Now()
		c.mu.Unlock()

		c.log.DebugContext(ctx, "signing keys refreshed",
			logger.Component("signingkeys"), logger.KeyCount(len(keys)), logger.Elapsed(start))
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]SigningKey), nil
}

// fetch retrieves keys from the JWKS endpoint, falling back to the legacy
// handshake API on cores that predate JWKS support.
func (c *Cache) fetch(ctx context.Context) ([]SigningKey, error) {
	resp, err := c.querier.Get(ctx, jwksPath, nil)
	if err != nil {
		var statusErr *querier.UnexpectedStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
			return c.fetchLegacy(ctx)
		}
		return nil, errors.Join(ErrFetchFailed, err)
	}

	keys, err := parseJWKS(resp)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *Cache) fetchLegacy(ctx context.Context) ([]SigningKey, error) {
	resp, err := c.querier.Post(ctx, legacyHandshakePath, map[string]any{})
	if err != nil {
		return nil, errors.Join(ErrFetchFailed, err)
	}

	keys := ParseLegacyKeyList(resp["jwtSigningPublicKeyList"])
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return keys, nil
}

// ParseLegacyKeyList converts the core's jwtSigningPublicKeyList field into
// signing keys, skipping entries that are already past their expiry. It is
// exported because verify responses carry the same field for cache
// self-healing.
func ParseLegacyKeyList(raw any) []SigningKey {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}

	now := time.Now().UnixMilli()
	keys := make([]SigningKey, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		publicKey, _ := entry["publicKey"].(string)
		if publicKey == "" {
			continue
		}
		if expiry, ok := entry["expiryTime"].(float64); ok && int64(expiry) < now {
			continue
		}

		createdAt := int64(0)
		if v, ok := entry["createdAt"].(float64); ok {
			createdAt = int64(v)
		}

		keys = append(keys, SigningKey{
			PublicKey: normalizePEM(publicKey),
			CreatedAt: createdAt,
		})
	}

	return keys
}
