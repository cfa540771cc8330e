package jwt

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Token versions recognized by the codec. Version 2 payloads carry the
// legacy field names (userId, expiryTime, timeCreated); version 3 payloads
// use registered claim names (sub, exp, iat) plus session-specific fields.
const (
	VersionLegacy = 2
	VersionV3     = 3
)

// allowedHeaders is the whitelist of pre-encoded header segments. Tokens not
// minted by the auth core never match, so foreign JWTs are rejected before
// any base64 or JSON work on the payload. This is a fast-reject filter, not
// a signature check.
var allowedHeaders = func() map[string]int {
	m := make(map[string]int, 4)
	for _, h := range []struct {
		json    string
		version int
	}{
		{`{"alg":"RS256","typ":"JWT","version":"2"}`, VersionLegacy},
		{`{"typ":"JWT","alg":"RS256","version":"2"}`, VersionLegacy},
		{`{"alg":"RS256","typ":"JWT","version":"3"}`, VersionV3},
		{`{"typ":"JWT","alg":"RS256","version":"3"}`, VersionV3},
	} {
		m[base64.RawURLEncoding.EncodeToString([]byte(h.json))] = h.version
	}
	return m
}()

// ParsedToken is a structurally valid but not yet verified token.
type ParsedToken struct {
	// Version is the structural format discriminator from the header.
	Version int

	// Payload is the decoded claims object. Callers must not trust it
	// before Verify succeeds against a trusted public key.
	Payload map[string]any

	// Raw is the original compact serialization.
	Raw string

	signedInput string
	signature   []byte
}

// ParseWithoutVerification splits a compact JWT, checks the header against
// the pre-encoded whitelist, and decodes the payload. It performs no
// signature verification.
func ParseWithoutVerification(token string) (*ParsedToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformed
	}

	version, ok := allowedHeaders[parts[0]]
	if !ok {
		return nil, ErrMalformed
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}

	var payload map[string]any
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}

	return &ParsedToken{
		Version:     version,
		Payload:     payload,
		Raw:         token,
		signedInput: parts[0] + "." + parts[1],
		signature:   signature,
	}, nil
}

// Verify checks the RSA-SHA256 signature over header.payload against one
// PEM-encoded public key. Callers verifying against a key set are expected
// to try every key and short-circuit on the first success.
func (t *ParsedToken) Verify(publicKeyPEM string) error {
	key, err := jwtlib.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return errors.Join(ErrInvalidKey, err)
	}

	if err := jwtlib.SigningMethodRS256.Verify(t.signedInput, t.signature, key); err != nil {
		return errors.Join(ErrSignatureInvalid, err)
	}
	return nil
}
