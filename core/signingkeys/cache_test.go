package signingkeys_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessiongate/core/querier"
	"github.com/dmitrymomot/sessiongate/core/signingkeys"
)

func jwkFor(t *testing.T, key *rsa.PublicKey, kid string) map[string]any {
	t.Helper()
	return map[string]any{
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

func newJWKSServer(t *testing.T, fetches *atomic.Int64, keys ...map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		fetches.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}))
}

func newCache(t *testing.T, url string, cfg signingkeys.Config) *signingkeys.Cache {
	t.Helper()
	q, err := querier.New(querier.Config{ConnectionURI: url})
	require.NoError(t, err)
	return signingkeys.New(q, cfg)
}

func TestGetKeys(t *testing.T) {
	t.Parallel()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	t.Run("fetches and parses JWKS", func(t *testing.T) {
		t.Parallel()

		var fetches atomic.Int64
		createdAt := time.Now().UnixMilli()
		srv := newJWKSServer(t, &fetches, jwkFor(t, &rsaKey.PublicKey, fmt.Sprintf("d-%d", createdAt)))
		defer srv.Close()

		cache := newCache(t, srv.URL, signingkeys.DefaultConfig())

		keys, err := cache.GetKeys(context.Background(), false)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Contains(t, keys[0].PublicKey, "-----BEGIN PUBLIC KEY-----")
		assert.Equal(t, createdAt, keys[0].CreatedAt)
	})

	t.Run("static kid yields zero createdAt", func(t *testing.T) {
		t.Parallel()

		var fetches atomic.Int64
		srv := newJWKSServer(t, &fetches, jwkFor(t, &rsaKey.PublicKey, "s-abc"))
		defer srv.Close()

		cache := newCache(t, srv.URL, signingkeys.DefaultConfig())
		keys, err := cache.GetKeys(context.Background(), false)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Zero(t, keys[0].CreatedAt)
	})

	t.Run("fresh cache is served without refetch", func(t *testing.T) {
		t.Parallel()

		var fetches atomic.Int64
		srv := newJWKSServer(t, &fetches, jwkFor(t, &rsaKey.PublicKey, "d-1"))
		defer srv.Close()

		cache := newCache(t, srv.URL, signingkeys.DefaultConfig())
		_, err := cache.GetKeys(context.Background(), false)
		require.NoError(t, err)
		_, err = cache.GetKeys(context.Background(), false)
		require.NoError(t, err)

		assert.Equal(t, int64(1), fetches.Load())
	})

	t.Run("cooldown suppresses forced refresh", func(t *testing.T) {
		t.Parallel()

		var fetches atomic.Int64
		srv := newJWKSServer(t, &fetches, jwkFor(t, &rsaKey.PublicKey, "d-1"))
		defer srv.Close()

		cache := newCache(t, srv.URL, signingkeys.Config{
			RefreshCooldown: time.Minute,
			CacheMaxAge:     time.Minute,
		})

		_, err := cache.GetKeys(context.Background(), false)
		require.NoError(t, err)

		// Inside the cooldown a forced refresh is skipped and the caller
		// proceeds with the existing set.
		keys, err := cache.GetKeys(context.Background(), true)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
		assert.Equal(t, int64(1), fetches.Load())
	})

	t.Run("elapsed cooldown allows forced refresh", func(t *testing.T) {
		t.Parallel()

		var fetches atomic.Int64
		srv := newJWKSServer(t, &fetches, jwkFor(t, &rsaKey.PublicKey, "d-1"))
		defer srv.Close()

		cache := newCache(t, srv.URL, signingkeys.Config{
			RefreshCooldown: 10 * time.Millisecond,
			CacheMaxAge:     time.Minute,
		})

		_, err := cache.GetKeys(context.Background(), false)
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)
		_, err = cache.GetKeys(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, int64(2), fetches.Load())
	})
}

func TestGetKeysCoalescing(t *testing.T) {
	t.Parallel()

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		time.Sleep(50 * time.Millisecond) // hold concurrent callers in flight
		json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]any{jwkFor(t, &rsaKey.PublicKey, "d-1")}})
	}))
	defer srv.Close()

	cache := newCache(t, srv.URL, signingkeys.DefaultConfig())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys, err := cache.GetKeys(context.Background(), false)
			assert.NoError(t, err)
			assert.Len(t, keys, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), fetches.Load())
}

func TestLegacyHandshakeFallback(t *testing.T) {
	t.Parallel()

	now := time.Now().UnixMilli()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/jwks.json":
			http.NotFound(w, r)
		case "/recipe/handshake":
			json.NewEncoder(w).Encode(map[string]any{
				"status": "OK",
				"jwtSigningPublicKeyList": []map[string]any{
					{"publicKey": "MIIBIjANBg", "createdAt": now, "expiryTime": now + 3600_000},
					{"publicKey": "expiredkey", "createdAt": now - 7200_000, "expiryTime": now - 3600_000},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cache := newCache(t, srv.URL, signingkeys.DefaultConfig())
	keys, err := cache.GetKeys(context.Background(), false)
	require.NoError(t, err)

	// Expired entry is dropped; surviving key gets PEM armor.
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0].PublicKey, "-----BEGIN PUBLIC KEY-----")
	assert.Equal(t, now, keys[0].CreatedAt)
}

func TestSetKeys(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int64
	srv := newJWKSServer(t, &fetches)
	defer srv.Close()

	cache := newCache(t, srv.URL, signingkeys.DefaultConfig())
	cache.SetKeys([]signingkeys.SigningKey{{PublicKey: "pem", CreatedAt: 42}})

	keys, err := cache.GetKeys(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, int64(42), keys[0].CreatedAt)
	// The out-of-band set counts as a fresh fetch: no core round-trip.
	assert.Equal(t, int64(0), fetches.Load())
}

func TestFetchFailure(t *testing.T) {
	t.Parallel()

	t.Run("empty cache propagates fetch error", func(t *testing.T) {
		t.Parallel()

		q, err := querier.New(querier.Config{ConnectionURI: "http://127.0.0.1:1"})
		require.NoError(t, err)
		cache := signingkeys.New(q, signingkeys.DefaultConfig())

		_, err = cache.GetKeys(context.Background(), false)
		assert.Error(t, err)
	})

	t.Run("stale cache survives fetch failure", func(t *testing.T) {
		t.Parallel()

		q, err := querier.New(querier.Config{ConnectionURI: "http://127.0.0.1:1"})
		require.NoError(t, err)
		cache := signingkeys.New(q, signingkeys.Config{
			RefreshCooldown: time.Nanosecond,
			CacheMaxAge:     time.Nanosecond,
		})
		cache.SetKeys([]signingkeys.SigningKey{{PublicKey: "pem", CreatedAt: 1}})

		time.Sleep(time.Millisecond)
		keys, err := cache.GetKeys(context.Background(), false)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})
}
