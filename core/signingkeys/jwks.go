package signingkeys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// parseJWKS converts a JWKS document into signing keys. Non-RSA entries are
// skipped. Key creation time is recovered from the kid convention used by
// the core: rotated keys carry a "d-<epochMillis>" kid, static keys "s-...".
func parseJWKS(doc map[string]any) ([]SigningKey, error) {
	rawKeys, ok := doc["keys"].([]any)
	if !ok {
		return nil, errors.Join(ErrFetchFailed, errors.New("jwks document has no keys field"))
	}

	keys := make([]SigningKey, 0, len(rawKeys))
	for _, item := range rawKeys {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if kty, _ := entry["kty"].(string); kty != "RSA" {
			continue
		}

		n, _ := entry["n"].(string)
		e, _ := entry["e"].(string)
		pemKey, err := pemFromModulus(n, e)
		if err != nil {
			continue
		}

		kid, _ := entry["kid"].(string)
		keys = append(keys, SigningKey{
			PublicKey: pemKey,
			CreatedAt: createdAtFromKID(kid),
		})
	}

	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return keys, nil
}

// createdAtFromKID extracts the creation timestamp from a dynamic key id.
// Static keys (and unknown kid formats) yield zero, which the validator
// treats as older than any token.
func createdAtFromKID(kid string) int64 {
	if !strings.HasPrefix(kid, "d-") {
		return 0
	}
	ms, err := strconv.ParseInt(kid[2:], 10, 64)
	if err != nil {
		return 0
	}
	return ms
}

// pemFromModulus builds a PEM-encoded RSA public key from base64url JWK
// modulus and exponent fields.
func pemFromModulus(n, e string) (string, error) {
	if n == "" || e == "" {
		return "", errors.New("jwk entry missing modulus or exponent")
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return "", fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return "", fmt.Errorf("decode exponent: %w", err)
	}

	pub := &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// normalizePEM wraps a bare base64 DER key in PEM armor. The legacy
// handshake API returns keys without the PEM envelope.
func normalizePEM(key string) string {
	if strings.Contains(key, "-----BEGIN") {
		return key
	}

	var b strings.Builder
	b.WriteString("-----BEGIN PUBLIC KEY-----\n")
	for len(key) > 64 {
		b.WriteString(key[:64])
		b.WriteByte('\n')
		key = key[64:]
	}
	b.WriteString(key)
	b.WriteString("\n-----END PUBLIC KEY-----\n")
	return b.String()
}
