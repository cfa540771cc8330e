// Package session manages stateless-but-revocable user sessions whose
// durable state lives in a remote auth core.
//
// Access tokens are signed JWTs verified locally against a cached set of
// rotating public keys; refresh tokens are opaque, core-issued, and rotate
// on every use. A Recipe is the engine: construct one with New and call
// GetSession, CreateNewSession, and RefreshSession from request handlers.
//
// # Verification
//
// An incoming request's access token is verified locally when possible.
// Verification falls through to a core round-trip only when the local
// answer would be ambiguous (the key cache may be stale) or when the token
// carries revocation state only the core knows (it descends from a rotated
// refresh token, or blacklisting is enabled).
//
// # Error kinds
//
// Failures are sentinel-matchable with errors.Is: ErrUnauthorized clears
// client tokens, ErrTryRefreshToken sends the client to the refresh
// endpoint without clearing anything, ErrTokenTheftDetected revokes the
// whole session, and ErrInvalidClaims carries the structured list of
// failing claim validators.
//
// # Overrides
//
// Every token-level operation is a function field on RecipeInterface and
// can be intercepted via WithOverrides, letting integrators wrap any
// single operation with custom behavior.
package session
