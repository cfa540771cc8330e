package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/sessiongate/core/claims"
)

var (
	// ErrUnauthorized indicates the session is absent or conclusively
	// invalid. Callers clear client tokens and answer with the configured
	// session-expired status code.
	ErrUnauthorized = errors.New("session: unauthorised")

	// ErrTryRefreshToken is a local signal only: the access token looks
	// structurally plausible but cannot be trusted yet. The client should
	// call the refresh endpoint. No tokens are cleared on this error.
	ErrTryRefreshToken = errors.New("session: access token must be refreshed")

	// ErrTokenTheftDetected indicates a rotated refresh token was reused.
	// The whole session family is revoked server-side and every client
	// token is cleared.
	ErrTokenTheftDetected = errors.New("session: token theft detected")

	// ErrInvalidClaims indicates the session is valid but a claim
	// requirement failed. Answered with the invalid-claim status code and
	// the structured list of failing claims.
	ErrInvalidClaims = errors.New("session: claim validation failed")

	// ErrBadInput indicates a malformed request from the caller.
	ErrBadInput = errors.New("session: bad input")
)

// UnauthorizedError carries the reason a session was rejected and whether
// client tokens should be cleared. Clearing is skipped when there was
// nothing to clear, e.g. no token found on any transport.
type UnauthorizedError struct {
	Reason      string
	ClearTokens bool
}

func newUnauthorizedError(reason string) *UnauthorizedError {
	return &UnauthorizedError{Reason: reason, ClearTokens: true}
}

func (e *UnauthorizedError) Error() string {
	return "session: unauthorised: " + e.Reason
}

func (e *UnauthorizedError) Unwrap() error {
	return ErrUnauthorized
}

// TokenTheftError identifies the session whose refresh token was replayed.
type TokenTheftError struct {
	SessionHandle string
	UserID        string
	RecipeUserID  string
}

func (e *TokenTheftError) Error() string {
	return fmt.Sprintf("session: token theft detected for session %s (user %s)", e.SessionHandle, e.UserID)
}

func (e *TokenTheftError) Unwrap() error {
	return ErrTokenTheftDetected
}

// InvalidClaimsError carries every failed validator so the frontend can
// react per claim instead of treating the failure as a generic auth error.
type InvalidClaimsError struct {
	Errors []claims.ValidationError
}

func (e *InvalidClaimsError) Error() string {
	ids := make([]string, len(e.Errors))
	for i, c := range e.Errors {
		ids[i] = c.ID
	}
	return "session: claim validation failed: " + strings.Join(ids, ", ")
}

func (e *InvalidClaimsError) Unwrap() error {
	return ErrInvalidClaims
}
