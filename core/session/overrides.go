package session

import (
	"context"

	"github.com/dmitrymomot/sessiongate"
)

// RecipeInterface is the token-level operation surface. Every field can be
// intercepted individually by an Override, so integrators can wrap any
// single operation without touching the rest.
type RecipeInterface struct {
	CreateNewSession func(ctx context.Context, in CreateSessionInput, uctx sessiongate.UserContext) (*CreatedSession, error)

	// GetSession validates an access token, locally when possible and via
	// the core when required, and returns the trusted session view.
	GetSession func(ctx context.Context, accessToken string, opts VerifyOptions, uctx sessiongate.UserContext) (*VerifiedSession, error)

	// RefreshSession rotates the refresh token and issues a new token
	// pair. Reuse of a rotated token fails with a TokenTheftError.
	RefreshSession func(ctx context.Context, refreshToken, antiCsrfToken string, enableAntiCSRF bool, uctx sessiongate.UserContext) (*CreatedSession, error)

	// RevokeSession reports whether the handle was actually revoked by
	// this call. Revoking twice is a no-op, not an error.
	RevokeSession func(ctx context.Context, sessionHandle string, uctx sessiongate.UserContext) (bool, error)

	RevokeMultipleSessions      func(ctx context.Context, sessionHandles []string, uctx sessiongate.UserContext) ([]string, error)
	RevokeAllSessionsForUser    func(ctx context.Context, userID, tenantID string, revokeAcrossAllTenants bool, uctx sessiongate.UserContext) ([]string, error)
	GetAllSessionHandlesForUser func(ctx context.Context, userID, tenantID string, fetchAcrossAllTenants bool, uctx sessiongate.UserContext) ([]string, error)

	// GetSessionInformation returns nil without error when the session no
	// longer exists.
	GetSessionInformation       func(ctx context.Context, sessionHandle string, uctx sessiongate.UserContext) (*SessionInformation, error)
	UpdateSessionDataInDatabase func(ctx context.Context, sessionHandle string, newData map[string]any, uctx sessiongate.UserContext) (bool, error)

	// RegenerateAccessToken applies a replacement payload to a live
	// session. Returns nil without error when the session is gone.
	RegenerateAccessToken func(ctx context.Context, accessToken string, newPayload map[string]any, uctx sessiongate.UserContext) (*RegenerateResult, error)

	UpdateSessionGrants func(ctx context.Context, sessionHandle string, grants map[string]any, uctx sessiongate.UserContext) (bool, error)
}

// Override rewrites selected fields of the interface. Overrides compose in
// registration order at construction time, each seeing the result of the
// previous one, so layering behaves predictably and the resolved value
// never changes after New returns.
type Override func(RecipeInterface) RecipeInterface

// baseInterface builds the unwrapped implementation backed by the core
// RPC layer and the local validator.
func (r *Recipe) baseInterface() RecipeInterface {
	return RecipeInterface{
		CreateNewSession: func(ctx context.Context, in CreateSessionInput, _ sessiongate.UserContext) (*CreatedSession, error) {
			return r.coreCreateSession(ctx, in)
		},
		GetSession: func(ctx context.Context, accessToken string, opts VerifyOptions, _ sessiongate.UserContext) (*VerifiedSession, error) {
			return r.verifyAccessToken(ctx, accessToken, opts)
		},
		RefreshSession: func(ctx context.Context, refreshToken, antiCsrfToken string, enableAntiCSRF bool, _ sessiongate.UserContext) (*CreatedSession, error) {
			return r.coreRefreshSession(ctx, refreshToken, antiCsrfToken, enableAntiCSRF)
		},
		RevokeSession: func(ctx context.Context, sessionHandle string, _ sessiongate.UserContext) (bool, error) {
			revoked, err := r.coreRevokeSessions(ctx, []string{sessionHandle})
			if err != nil {
				return false, err
			}
			return len(revoked) > 0, nil
		},
		RevokeMultipleSessions: func(ctx context.Context, sessionHandles []string, _ sessiongate.UserContext) ([]string, error) {
			return r.coreRevokeSessions(ctx, sessionHandles)
		},
		RevokeAllSessionsForUser: func(ctx context.Context, userID, tenantID string, revokeAcrossAllTenants bool, _ sessiongate.UserContext) ([]string, error) {
			return r.coreRevokeAllSessionsForUser(ctx, userID, tenantID, revokeAcrossAllTenants)
		},
		GetAllSessionHandlesForUser: func(ctx context.Context, userID, tenantID string, fetchAcrossAllTenants bool, _ sessiongate.UserContext) ([]string, error) {
			return r.coreGetAllSessionHandlesForUser(ctx, userID, tenantID, fetchAcrossAllTenants)
		},
		GetSessionInformation: func(ctx context.Context, sessionHandle string, _ sessiongate.UserContext) (*SessionInformation, error) {
			return r.coreGetSessionInformation(ctx, sessionHandle)
		},
		UpdateSessionDataInDatabase: func(ctx context.Context, sessionHandle string, newData map[string]any, _ sessiongate.UserContext) (bool, error) {
			return r.coreUpdateSessionDataInDatabase(ctx, sessionHandle, newData)
		},
		RegenerateAccessToken: func(ctx context.Context, accessToken string, newPayload map[string]any, _ sessiongate.UserContext) (*RegenerateResult, error) {
			return r.coreRegenerateAccessToken(ctx, accessToken, newPayload)
		},
		UpdateSessionGrants: func(ctx context.Context, sessionHandle string, grants map[string]any, _ sessiongate.UserContext) (bool, error) {
			return r.coreUpdateSessionGrants(ctx, sessionHandle, grants)
		},
	}
}
