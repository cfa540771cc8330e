package jwt_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"testing"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessiongate/pkg/jwt"
)

func generateKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return key, string(pemBytes)
}

func signToken(t *testing.T, key *rsa.PrivateKey, header string, payload map[string]any) string {
	t.Helper()

	payloadBytes, err := json.Marshal(payload)
	require.NoError(t, err)

	signedInput := base64.RawURLEncoding.EncodeToString([]byte(header)) + "." +
		base64.RawURLEncoding.EncodeToString(payloadBytes)

	sig, err := jwtlib.SigningMethodRS256.Sign(signedInput, key)
	require.NoError(t, err)

	return signedInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

const (
	headerV2 = `{"alg":"RS256","typ":"JWT","version":"2"}`
	headerV3 = `{"alg":"RS256","typ":"JWT","version":"3"}`
)

func TestParseWithoutVerification(t *testing.T) {
	t.Parallel()

	key, _ := generateKey(t)

	t.Run("valid v3 token", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, key, headerV3, map[string]any{"sub": "u1", "sessionHandle": "h1"})
		parsed, err := jwt.ParseWithoutVerification(token)
		require.NoError(t, err)
		assert.Equal(t, jwt.VersionV3, parsed.Version)
		assert.Equal(t, "u1", parsed.Payload["sub"])
		assert.Equal(t, token, parsed.Raw)
	})

	t.Run("valid v2 token", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, key, headerV2, map[string]any{"userId": "u1"})
		parsed, err := jwt.ParseWithoutVerification(token)
		require.NoError(t, err)
		assert.Equal(t, jwt.VersionLegacy, parsed.Version)
	})

	t.Run("wrong segment count", func(t *testing.T) {
		t.Parallel()

		_, err := jwt.ParseWithoutVerification("a.b")
		assert.ErrorIs(t, err, jwt.ErrMalformed)
	})

	t.Run("foreign header is fast-rejected", func(t *testing.T) {
		t.Parallel()

		// Structurally fine JWT, but the header is not in the whitelist.
		token := signToken(t, key, `{"alg":"RS256","typ":"JWT"}`, map[string]any{"sub": "u1"})
		_, err := jwt.ParseWithoutVerification(token)
		assert.ErrorIs(t, err, jwt.ErrMalformed)
	})

	t.Run("HS256 header is rejected", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, key, `{"alg":"HS256","typ":"JWT","version":"3"}`, map[string]any{"sub": "u1"})
		_, err := jwt.ParseWithoutVerification(token)
		assert.ErrorIs(t, err, jwt.ErrMalformed)
	})

	t.Run("payload is not base64 JSON", func(t *testing.T) {
		t.Parallel()

		header := base64.RawURLEncoding.EncodeToString([]byte(headerV3))
		_, err := jwt.ParseWithoutVerification(header + ".!!!.sig")
		assert.ErrorIs(t, err, jwt.ErrMalformed)
	})
}

func TestVerify(t *testing.T) {
	t.Parallel()

	key, pemKey := generateKey(t)
	_, otherPEM := generateKey(t)

	token := signToken(t, key, headerV3, map[string]any{"sub": "u1"})
	parsed, err := jwt.ParseWithoutVerification(token)
	require.NoError(t, err)

	t.Run("correct key verifies", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, parsed.Verify(pemKey))
	})

	t.Run("wrong key fails", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, parsed.Verify(otherPEM), jwt.ErrSignatureInvalid)
	})

	t.Run("garbage key fails", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, parsed.Verify("not a pem key"), jwt.ErrInvalidKey)
	})

	t.Run("tampered payload fails", func(t *testing.T) {
		t.Parallel()

		forged := signToken(t, key, headerV3, map[string]any{"sub": "u1"})
		tampered, err := jwt.ParseWithoutVerification(replacePayload(t, forged, map[string]any{"sub": "attacker"}))
		require.NoError(t, err)
		assert.ErrorIs(t, tampered.Verify(pemKey), jwt.ErrSignatureInvalid)
	})
}

// replacePayload swaps the payload segment while keeping header and signature.
func replacePayload(t *testing.T, token string, payload map[string]any) string {
	t.Helper()

	payloadBytes, err := json.Marshal(payload)
	require.NoError(t, err)

	parts := splitToken(token)
	return parts[0] + "." + base64.RawURLEncoding.EncodeToString(payloadBytes) + "." + parts[2]
}

func splitToken(token string) [3]string {
	var parts [3]string
	first := 0
	idx := 0
	for i := 0; i < len(token) && idx < 2; i++ {
		if token[i] == '.' {
			parts[idx] = token[first:i]
			first = i + 1
			idx++
		}
	}
	parts[2] = token[first:]
	return parts
}
