package signingkeys

import "time"

// Config provides environment-based configuration for the key cache.
type Config struct {
	// RefreshCooldown is the minimum time between two core key fetches.
	// Callers inside the window proceed with the cached set.
	RefreshCooldown time.Duration `env:"SIGNING_KEYS_REFRESH_COOLDOWN" envDefault:"500ms"`

	// CacheMaxAge is how long a fetched key set is considered fresh before
	// a proactive refresh.
	CacheMaxAge time.Duration `env:"SIGNING_KEYS_CACHE_MAX_AGE" envDefault:"60s"`
}

// DefaultConfig returns a Config with the standard cooldown and max age.
func DefaultConfig() Config {
	return Config{
		RefreshCooldown: 500 * time.Millisecond,
		CacheMaxAge:     60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.RefreshCooldown <= 0 {
		c.RefreshCooldown = 500 * time.Millisecond
	}
	if c.CacheMaxAge <= 0 {
		c.CacheMaxAge = 60 * time.Second
	}
	return c
}
