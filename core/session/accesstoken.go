package session

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/sessiongate/core/signingkeys"
	"github.com/dmitrymomot/sessiongate/pkg/jwt"
	"github.com/dmitrymomot/sessiongate/pkg/logger"
)

// errNeedsCoreVerification signals that local verification was ambiguous:
// no cached key matched but the token is not provably too old, so the core
// must decide. Never surfaces to callers.
var errNeedsCoreVerification = errors.New("session: token verification requires a core call")

// accessTokenInfo is the decoded, trusted content of a verified access
// token. The payload field layout depends on the token version: legacy
// tokens nest product claims under userData, v3 tokens are flat.
type accessTokenInfo struct {
	sessionHandle           string
	userID                  string
	recipeUserID            string
	tenantID                string
	refreshTokenHash1       string
	parentRefreshTokenHash1 string
	antiCsrfToken           string
	expiryTime              int64 // epoch millis
	timeCreated             int64 // epoch millis
	payload                 map[string]any
}

// parseAccessTokenInfo extracts session fields from a structurally valid
// token. Legacy (v2) payloads carry userId/expiryTime/timeCreated and nest
// product claims under userData; v3 payloads use sub/exp/iat with
// session-specific fields inline and the whole payload is the claims
// object.
func parseAccessTokenInfo(parsed *jwt.ParsedToken) (*accessTokenInfo, error) {
	p := parsed.Payload

	info := &accessTokenInfo{
		sessionHandle:           stringField(p, "sessionHandle"),
		refreshTokenHash1:       stringField(p, "refreshTokenHash1"),
		parentRefreshTokenHash1: stringField(p, "parentRefreshTokenHash1"),
		antiCsrfToken:           stringField(p, "antiCsrfToken"),
	}

	switch parsed.Version {
	case jwt.VersionLegacy:
		info.userID = stringField(p, "userId")
		info.recipeUserID = info.userID
		info.tenantID = "public"
		info.expiryTime = int64Field(p, "expiryTime")
		info.timeCreated = int64Field(p, "timeCreated")
		if data, ok := p["userData"].(map[string]any); ok {
			info.payload = data
		} else {
			info.payload = map[string]any{}
		}
	default:
		info.userID = stringField(p, "sub")
		info.recipeUserID = stringField(p, "rsub")
		if info.recipeUserID == "" {
			info.recipeUserID = info.userID
		}
		info.tenantID = stringField(p, "tId")
		if info.tenantID == "" {
			info.tenantID = "public"
		}
		// Registered claims are in seconds.
		info.expiryTime = int64Field(p, "exp") * 1000
		info.timeCreated = int64Field(p, "iat") * 1000
		info.payload = p
	}

	if info.sessionHandle == "" || info.userID == "" || info.expiryTime == 0 {
		return nil, errors.Join(ErrTryRefreshToken, errors.New("session: token is missing required fields"))
	}

	return info, nil
}

// requiresCoreVerification reports whether the token may never be trusted
// on signature alone: tokens descending from a rotated refresh carry
// revocation state only the core knows, and blacklisting makes every
// token's revocation state core-side. This path and the local-trust path
// have different guarantees and are kept as an explicit branch.
func (info *accessTokenInfo) requiresCoreVerification(blacklisting bool) bool {
	return info.parentRefreshTokenHash1 != "" || blacklisting
}

// antiCSRFCheck describes the anti-CSRF requirement for one verification.
type antiCSRFCheck struct {
	// required is true when the request method and configuration demand a
	// token comparison.
	required bool
	// headerToken is the anti-csrf header value supplied by the client.
	headerToken string
}

// verifyAccessToken is the token-level verification entry point behind
// RecipeInterface.GetSession. Tokens that carry revocation state only the
// core knows go straight to the core; everything else is verified locally,
// escalating only when the key cache cannot give a definitive answer.
func (r *Recipe) verifyAccessToken(ctx context.Context, accessToken string, opts VerifyOptions) (*VerifiedSession, error) {
	parsed, err := jwt.ParseWithoutVerification(accessToken)
	if err != nil {
		return nil, errors.Join(ErrTryRefreshToken, err)
	}

	info, err := parseAccessTokenInfo(parsed)
	if err != nil {
		return nil, err
	}

	if info.requiresCoreVerification(r.config.AccessTokenBlacklisting) || opts.CheckDatabase {
		return r.coreVerifyWithFallbackExpiry(ctx, accessToken, info, opts.AntiCSRF, opts.CheckDatabase)
	}

	if err := r.validateAccessToken(ctx, parsed, info, opts.AntiCSRF); err != nil {
		if errors.Is(err, errNeedsCoreVerification) {
			return r.coreVerifyWithFallbackExpiry(ctx, accessToken, info, opts.AntiCSRF, false)
		}
		return nil, err
	}

	return &VerifiedSession{
		Handle:             info.sessionHandle,
		UserID:             info.userID,
		RecipeUserID:       info.recipeUserID,
		TenantID:           info.tenantID,
		AccessTokenPayload: info.payload,
		Expiry:             info.expiryTime,
	}, nil
}

// coreVerifyWithFallbackExpiry escalates to the core and backfills the
// expiry from the token itself when the core response does not echo one.
func (r *Recipe) coreVerifyWithFallbackExpiry(ctx context.Context, accessToken string, info *accessTokenInfo, csrf antiCSRFCheck, checkDatabase bool) (*VerifiedSession, error) {
	verified, err := r.coreVerifySession(ctx, accessToken, csrf, checkDatabase)
	if err != nil {
		return nil, err
	}
	if verified.Expiry == 0 {
		verified.Expiry = info.expiryTime
		if verified.NewAccessToken != nil && verified.NewAccessToken.Expiry > 0 {
			verified.Expiry = verified.NewAccessToken.Expiry
		}
	}
	return verified, nil
}

// validateAccessToken verifies a parsed token against the cached key set.
//
// Decision order: expiry first, then signature against every cached key
// short-circuiting on success, then the anti-CSRF comparison. When no key
// matches, a token older than every cached key can never validate (keys
// rotate forward only) and fails outright; otherwise the cache may simply
// be stale and errNeedsCoreVerification asks the caller to escalate.
func (r *Recipe) validateAccessToken(ctx context.Context, parsed *jwt.ParsedToken, info *accessTokenInfo, csrf antiCSRFCheck) error {
	if info.expiryTime < time.Now().UnixMilli() {
		return errors.Join(ErrTryRefreshToken, errors.New("session: access token expired"))
	}

	keys, err := r.keys.GetKeys(ctx, false)
	if err != nil {
		if errors.Is(err, signingkeys.ErrNoKeys) {
			return errNeedsCoreVerification
		}
		return err
	}

	verified := false
	for _, key := range keys {
		if parsed.Verify(key.PublicKey) == nil {
			verified = true
			break
		}
	}

	if !verified {
		if tokenOlderThanAllKeys(info, keys) {
			r.log.DebugContext(ctx, "access token predates every cached key",
				logger.Component("session"), logger.SessionHandle(info.sessionHandle))
			return errors.Join(ErrTryRefreshToken, errors.New("session: token predates all signing keys"))
		}
		return errNeedsCoreVerification
	}

	if csrf.required {
		if info.antiCsrfToken == "" || csrf.headerToken == "" || info.antiCsrfToken != csrf.headerToken {
			return errors.Join(ErrTryRefreshToken, errors.New("session: anti-CSRF check failed"))
		}
	}

	return nil
}

// tokenOlderThanAllKeys reports whether every cached key was created after
// the token was minted. Keys without a rotation timestamp are treated as
// older than any token.
func tokenOlderThanAllKeys(info *accessTokenInfo, keys []signingkeys.SigningKey) bool {
	for _, key := range keys {
		if key.CreatedAt <= info.timeCreated {
			return false
		}
	}
	return len(keys) > 0
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func int64Field(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}
