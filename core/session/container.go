package session

import (
	"context"
	"time"

	"github.com/dmitrymomot/sessiongate"
	"github.com/dmitrymomot/sessiongate/core/claims"
	"github.com/dmitrymomot/sessiongate/core/request"
	"github.com/dmitrymomot/sessiongate/core/sessiontransport"
)

// protectedPayloadKeys are managed by the token issuer and never writable
// through payload merges.
var protectedPayloadKeys = map[string]struct{}{
	"sub":                     {},
	"iat":                     {},
	"exp":                     {},
	"sessionHandle":           {},
	"parentRefreshTokenHash1": {},
	"refreshTokenHash1":       {},
	"antiCsrfToken":           {},
	"rsub":                    {},
	"tId":                     {},
}

// Session is the per-request container for one authenticated session. It is
// owned exclusively by the request that created it and carries no locks.
// Every payload mutation goes through the core and updates this object in
// the same call, so the in-memory view never disagrees with what the
// latest response instructs the client to store.
type Session struct {
	recipe *Recipe

	handle        string
	userID        string
	recipeUserID  string
	tenantID      string
	accessToken   string
	expiry        int64 // epoch millis
	refreshToken  *SessionTokens
	antiCsrfToken string
	payload       map[string]any

	transferMethod sessiontransport.TransferMethod
	req            request.Request
	res            request.Response
	uctx           sessiongate.UserContext

	accessTokenUpdated bool
	revoked            bool
}

// Handle returns the stable session identifier.
func (s *Session) Handle() string { return s.handle }

// UserID returns the authenticated user's id.
func (s *Session) UserID() string { return s.userID }

// RecipeUserID returns the login-method user id, which may differ from
// UserID after account linking.
func (s *Session) RecipeUserID() string { return s.recipeUserID }

// TenantID returns the tenant the session belongs to.
func (s *Session) TenantID() string { return s.tenantID }

// AccessToken returns the current raw access token, reflecting any
// rotation or payload merge applied this request.
func (s *Session) AccessToken() string { return s.accessToken }

// Expiry returns the access token expiry in epoch milliseconds.
func (s *Session) Expiry() int64 { return s.expiry }

// RefreshToken returns the refresh token issued this request, or nil when
// the session was verified without rotation.
func (s *Session) RefreshToken() *SessionTokens { return s.refreshToken }

// AntiCsrfToken returns the anti-CSRF token bound to this session, if the
// anti-CSRF-via-token mode issued one.
func (s *Session) AntiCsrfToken() string { return s.antiCsrfToken }

// TransferMethod returns the transport this session arrived on.
func (s *Session) TransferMethod() sessiontransport.TransferMethod { return s.transferMethod }

// AccessTokenUpdated reports whether the access token changed during this
// request and was written to the response.
func (s *Session) AccessTokenUpdated() bool { return s.accessTokenUpdated }

// AccessTokenPayload returns the current in-memory payload with no network
// call. The value reflects all merges already applied this request.
func (s *Session) AccessTokenPayload() map[string]any {
	out := make(map[string]any, len(s.payload))
	for k, v := range s.payload {
		out[k] = v
	}
	return out
}

// MergeIntoAccessTokenPayload applies update on top of the current payload
// and regenerates the access token through the core. Protected keys in the
// update are ignored; a nil update value deletes the key. On success the
// in-memory token, payload, and front token are replaced, and when the
// session is still attached to a live response the new token is written to
// it immediately.
func (s *Session) MergeIntoAccessTokenPayload(ctx context.Context, update map[string]any) error {
	merged := make(map[string]any, len(s.payload)+len(update))
	for k, v := range s.payload {
		if _, protected := protectedPayloadKeys[k]; protected {
			continue
		}
		merged[k] = v
	}
	for k, v := range update {
		if _, protected := protectedPayloadKeys[k]; protected {
			continue
		}
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	result, err := s.recipe.iface.RegenerateAccessToken(ctx, s.accessToken, merged, s.uctx)
	if err != nil {
		return err
	}
	if result == nil {
		return newUnauthorizedError("session does not exist")
	}

	next := make(map[string]any, len(s.payload))
	for k, v := range s.payload {
		if _, protected := protectedPayloadKeys[k]; protected {
			next[k] = v
		}
	}
	for k, v := range result.AccessTokenPayload {
		next[k] = v
	}
	s.payload = next

	if result.NewAccessToken != nil {
		s.accessToken = result.NewAccessToken.Token
		if result.NewAccessToken.Expiry > 0 {
			s.expiry = result.NewAccessToken.Expiry
		}
		s.accessTokenUpdated = true
	}

	s.writeAccessToken()
	return nil
}

// RevokeSession removes the session from the core and clears client
// tokens. Revoking twice is a no-op: the second call neither fails nor
// re-clears anything.
func (s *Session) RevokeSession(ctx context.Context) error {
	if s.revoked {
		return nil
	}

	if _, err := s.recipe.iface.RevokeSession(ctx, s.handle, s.uctx); err != nil {
		return err
	}
	s.revoked = true

	if s.res != nil {
		sessiontransport.ClearSession(s.res, s.recipe.cookieSettings, s.transferMethod)
	}
	return nil
}

// AssertClaims refetches stale claims, merges the fresh values into the
// payload, then validates. All failures accumulate into one
// InvalidClaimsError so the client sees every unmet requirement at once.
func (s *Session) AssertClaims(ctx context.Context, validators []claims.Validator) error {
	refetched := map[string]any{}
	for _, v := range validators {
		if !v.ShouldRefetch(s.payload, s.uctx) {
			continue
		}
		fragment, ok, err := v.Refetch(ctx, s.userID, s.recipeUserID, s.tenantID, s.uctx)
		if err != nil {
			return err
		}
		if ok {
			for k, val := range fragment {
				refetched[k] = val
			}
		}
	}
	if len(refetched) > 0 {
		if err := s.MergeIntoAccessTokenPayload(ctx, refetched); err != nil {
			return err
		}
	}

	var failed []claims.ValidationError
	for _, v := range validators {
		result := v.Validate(s.payload, s.uctx)
		if !result.IsValid {
			failed = append(failed, claims.ValidationError{ID: v.ID(), Reason: result.Reason})
		}
	}
	if len(failed) > 0 {
		return &InvalidClaimsError{Errors: failed}
	}
	return nil
}

// GetSessionDataFromDatabase fetches the server-side session data blob.
func (s *Session) GetSessionDataFromDatabase(ctx context.Context) (map[string]any, error) {
	info, err := s.recipe.iface.GetSessionInformation(ctx, s.handle, s.uctx)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, newUnauthorizedError("session does not exist")
	}
	return info.SessionDataInDatabase, nil
}

// UpdateSessionDataInDatabase replaces the server-side session data blob.
func (s *Session) UpdateSessionDataInDatabase(ctx context.Context, newData map[string]any) error {
	ok, err := s.recipe.iface.UpdateSessionDataInDatabase(ctx, s.handle, newData, s.uctx)
	if err != nil {
		return err
	}
	if !ok {
		return newUnauthorizedError("session does not exist")
	}
	return nil
}

// UpdateSessionGrants replaces the session's grant set in the core.
func (s *Session) UpdateSessionGrants(ctx context.Context, grants map[string]any) error {
	ok, err := s.recipe.iface.UpdateSessionGrants(ctx, s.handle, grants, s.uctx)
	if err != nil {
		return err
	}
	if !ok {
		return newUnauthorizedError("session does not exist")
	}
	return nil
}

// writeAccessToken pushes the current access and front tokens to the
// attached response, if any.
func (s *Session) writeAccessToken() {
	if s.res == nil {
		return
	}

	settings := s.recipe.cookieSettings
	sessiontransport.SetToken(s.res, settings, sessiontransport.TokenTypeAccess,
		s.accessToken, time.UnixMilli(s.expiry), s.transferMethod)
	if s.transferMethod == sessiontransport.TransferMethodCookie &&
		s.recipe.config.ExposeAccessTokenToFrontendInCookieBasedAuth {
		sessiontransport.SetToken(s.res, settings, sessiontransport.TokenTypeAccess,
			s.accessToken, time.UnixMilli(s.expiry), sessiontransport.TransferMethodHeader)
	}
	sessiontransport.SetFrontToken(s.res, s.userID, s.expiry, s.payload)
}

// FetchAndSetClaim refetches the claim's value and merges it into the
// session payload. A fetch yielding no value removes the claim.
func FetchAndSetClaim[T comparable](ctx context.Context, s *Session, claim *claims.PrimitiveClaim[T]) error {
	fragment, ok, err := claim.Build(ctx, s.userID, s.recipeUserID, s.tenantID, s.uctx)
	if err != nil {
		return err
	}
	if !ok {
		return RemoveClaim(ctx, s, claim)
	}
	return s.MergeIntoAccessTokenPayload(ctx, fragment)
}

// SetClaimValue writes an explicit claim value into the session payload.
func SetClaimValue[T comparable](ctx context.Context, s *Session, claim *claims.PrimitiveClaim[T], value T) error {
	fragment := claim.AddToPayload(map[string]any{}, value, time.Now())
	return s.MergeIntoAccessTokenPayload(ctx, fragment)
}

// GetClaimValue reads a claim value from the in-memory payload with no
// network call.
func GetClaimValue[T comparable](s *Session, claim *claims.PrimitiveClaim[T]) (T, bool) {
	return claim.GetValueFromPayload(s.payload)
}

// RemoveClaim deletes the claim from the session payload.
func RemoveClaim[T comparable](ctx context.Context, s *Session, claim *claims.PrimitiveClaim[T]) error {
	return s.MergeIntoAccessTokenPayload(ctx, map[string]any{claim.Key: nil})
}
