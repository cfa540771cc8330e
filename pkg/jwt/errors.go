package jwt

import "errors"

var (
	// ErrMalformed is returned when a token is not a structurally valid
	// compact JWT minted by the auth core.
	ErrMalformed = errors.New("jwt: malformed token")

	// ErrSignatureInvalid is returned when the signature does not verify
	// against the supplied public key.
	ErrSignatureInvalid = errors.New("jwt: signature verification failed")

	// ErrInvalidKey is returned when the supplied public key cannot be
	// parsed as a PEM-encoded RSA public key.
	ErrInvalidKey = errors.New("jwt: invalid public key")
)
