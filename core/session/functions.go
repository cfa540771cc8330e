package session

import (
	"context"
	"errors"

	"github.com/dmitrymomot/sessiongate/core/signingkeys"
	"github.com/dmitrymomot/sessiongate/pkg/logger"
)

// Core endpoints for session operations.
const (
	pathSessionCreate  = "/recipe/session"
	pathSessionVerify  = "/recipe/session/verify"
	pathSessionRefresh = "/recipe/session/refresh"
	pathSessionRemove  = "/recipe/session/remove"
	pathSessionInfo    = "/recipe/session"
	pathSessionUser    = "/recipe/session/user"
	pathSessionData    = "/recipe/session/data"
	pathSessionGrants  = "/recipe/session/grants"
	pathJWTData        = "/recipe/jwt/data"
)

// Core status discriminators.
const (
	statusOK                 = "OK"
	statusUnauthorised       = "UNAUTHORISED"
	statusTryRefreshToken    = "TRY_REFRESH_TOKEN"
	statusTokenTheftDetected = "TOKEN_THEFT_DETECTED"
)

// SessionTokens is one token as issued by the core.
type SessionTokens struct {
	Token       string
	Expiry      int64 // epoch millis
	CreatedTime int64 // epoch millis
}

// CreatedSession is the result of a create or refresh round-trip.
type CreatedSession struct {
	Handle             string
	UserID             string
	RecipeUserID       string
	TenantID           string
	AccessTokenPayload map[string]any
	AccessToken        SessionTokens
	RefreshToken       SessionTokens
	AntiCsrfToken      string
}

// VerifiedSession is the result of verifying an access token, locally or
// through the core. NewAccessToken is set when the core rotated the token
// during verification and the new value must reach the client.
type VerifiedSession struct {
	Handle             string
	UserID             string
	RecipeUserID       string
	TenantID           string
	AccessTokenPayload map[string]any
	Expiry             int64 // epoch millis
	NewAccessToken     *SessionTokens
}

// SessionInformation is the core's durable view of one session.
type SessionInformation struct {
	SessionHandle         string
	UserID                string
	RecipeUserID          string
	TenantID              string
	SessionDataInDatabase map[string]any
	AccessTokenPayload    map[string]any
	Expiry                int64
	TimeCreated           int64
}

// RegenerateResult is the outcome of a payload regeneration.
type RegenerateResult struct {
	AccessTokenPayload map[string]any
	// NewAccessToken is nil when the supplied token was already stale and
	// the payload change applies from the next refresh.
	NewAccessToken *SessionTokens
}

// CreateSessionInput carries everything needed to open a session.
type CreateSessionInput struct {
	TenantID              string
	UserID                string
	RecipeUserID          string
	AccessTokenPayload    map[string]any
	SessionDataInDatabase map[string]any
	EnableAntiCSRF        bool
}

// VerifyOptions tunes one token verification.
type VerifyOptions struct {
	// AntiCSRF describes the token-embedded anti-CSRF requirement.
	AntiCSRF antiCSRFCheck
	// CheckDatabase forces a revocation check against the core even when
	// the signature verifies locally.
	CheckDatabase bool
}

func (r *Recipe) coreCreateSession(ctx context.Context, in CreateSessionInput) (*CreatedSession, error) {
	if in.UserID == "" {
		return nil, errors.Join(ErrBadInput, errors.New("session: userID is required"))
	}

	tenantID := in.TenantID
	if tenantID == "" {
		tenantID = "public"
	}
	payload := in.AccessTokenPayload
	if payload == nil {
		payload = map[string]any{}
	}
	sessionData := in.SessionDataInDatabase
	if sessionData == nil {
		sessionData = map[string]any{}
	}

	recipeUserID := in.RecipeUserID
	if recipeUserID == "" {
		recipeUserID = in.UserID
	}

	resp, err := r.querier.Post(ctx, pathSessionCreate, map[string]any{
		"userId":               in.UserID,
		"recipeUserId":         recipeUserID,
		"tenantId":             tenantID,
		"userDataInJWT":        payload,
		"userDataInDatabase":   sessionData,
		"enableAntiCsrf":       in.EnableAntiCSRF,
		"useDynamicSigningKey": true,
	})
	if err != nil {
		return nil, err
	}
	r.absorbKeyList(resp)

	created, err := parseCreatedSession(resp)
	if err != nil {
		return nil, err
	}

	r.log.DebugContext(ctx, "session created",
		logger.Component("session"),
		logger.SessionHandle(created.Handle),
		logger.UserID(created.UserID),
		logger.TenantID(created.TenantID))
	return created, nil
}

// coreVerifySession asks the core to validate an access token. Used when
// local verification is insufficient: cache misses, tokens descending from
// a rotated refresh, and blacklisting mode.
func (r *Recipe) coreVerifySession(ctx context.Context, accessToken string, csrf antiCSRFCheck, checkDatabase bool) (*VerifiedSession, error) {
	resp, err := r.querier.Post(ctx, pathSessionVerify, map[string]any{
		"accessToken":     accessToken,
		"antiCsrfToken":   csrf.headerToken,
		"doAntiCsrfCheck": csrf.required,
		"enableAntiCsrf":  r.config.AntiCSRF == AntiCSRFViaToken,
		"checkDatabase":   checkDatabase,
	})
	if err != nil {
		return nil, err
	}
	// Verify responses carry the current key list; a stale cache heals
	// itself from the very call it forced.
	r.absorbKeyList(resp)

	switch statusOf(resp) {
	case statusOK:
		return parseVerifiedSession(resp), nil
	case statusTryRefreshToken:
		return nil, errors.Join(ErrTryRefreshToken, errors.New("session: core requires a refresh"))
	case statusUnauthorised:
		return nil, newUnauthorizedError(messageOf(resp))
	default:
		return nil, unexpectedStatus(resp)
	}
}

func (r *Recipe) coreRefreshSession(ctx context.Context, refreshToken, antiCsrfToken string, enableAntiCSRF bool) (*CreatedSession, error) {
	resp, err := r.querier.Post(ctx, pathSessionRefresh, map[string]any{
		"refreshToken":   refreshToken,
		"antiCsrfToken":  antiCsrfToken,
		"enableAntiCsrf": enableAntiCSRF,
	})
	if err != nil {
		return nil, err
	}

	switch statusOf(resp) {
	case statusOK:
		return parseCreatedSession(resp)
	case statusTokenTheftDetected:
		theft := &TokenTheftError{}
		if sess, ok := resp["session"].(map[string]any); ok {
			theft.SessionHandle = stringField(sess, "handle")
			theft.UserID = stringField(sess, "userId")
			theft.RecipeUserID = stringField(sess, "recipeUserId")
			if theft.RecipeUserID == "" {
				theft.RecipeUserID = theft.UserID
			}
		}
		return nil, theft
	case statusUnauthorised:
		return nil, newUnauthorizedError(messageOf(resp))
	default:
		return nil, unexpectedStatus(resp)
	}
}

// coreRevokeSessions removes the given sessions and returns the handles the
// core actually revoked. Revoking an already-revoked handle is a no-op.
func (r *Recipe) coreRevokeSessions(ctx context.Context, handles []string) ([]string, error) {
	resp, err := r.querier.Post(ctx, pathSessionRemove, map[string]any{
		"sessionHandles": handles,
	})
	if err != nil {
		return nil, err
	}
	return stringSliceField(resp, "sessionHandlesRevoked"), nil
}

func (r *Recipe) coreRevokeAllSessionsForUser(ctx context.Context, userID, tenantID string, revokeAcrossAllTenants bool) ([]string, error) {
	body := map[string]any{
		"userId":                 userID,
		"revokeAcrossAllTenants": revokeAcrossAllTenants,
	}
	if tenantID != "" {
		body["tenantId"] = tenantID
	}

	resp, err := r.querier.Post(ctx, pathSessionRemove, body)
	if err != nil {
		return nil, err
	}
	return stringSliceField(resp, "sessionHandlesRevoked"), nil
}

func (r *Recipe) coreGetAllSessionHandlesForUser(ctx context.Context, userID, tenantID string, fetchAcrossAllTenants bool) ([]string, error) {
	query := map[string]string{
		"userId": userID,
	}
	if tenantID != "" {
		query["tenantId"] = tenantID
	}
	if fetchAcrossAllTenants {
		query["fetchAcrossAllTenants"] = "true"
	}

	resp, err := r.querier.Get(ctx, pathSessionUser, query)
	if err != nil {
		return nil, err
	}
	return stringSliceField(resp, "sessionHandles"), nil
}

// coreGetSessionInformation returns nil without error when the session no
// longer exists.
func (r *Recipe) coreGetSessionInformation(ctx context.Context, sessionHandle string) (*SessionInformation, error) {
	resp, err := r.querier.Get(ctx, pathSessionInfo, map[string]string{
		"sessionHandle": sessionHandle,
	})
	if err != nil {
		return nil, err
	}

	if statusOf(resp) != statusOK {
		return nil, nil
	}

	info := &SessionInformation{
		SessionHandle: sessionHandle,
		UserID:        stringField(resp, "userId"),
		RecipeUserID:  stringField(resp, "recipeUserId"),
		TenantID:      stringField(resp, "tenantId"),
		Expiry:        int64Field(resp, "expiry"),
		TimeCreated:   int64Field(resp, "timeCreated"),
	}
	if info.RecipeUserID == "" {
		info.RecipeUserID = info.UserID
	}
	if info.TenantID == "" {
		info.TenantID = "public"
	}
	if data, ok := resp["userDataInDatabase"].(map[string]any); ok {
		info.SessionDataInDatabase = data
	}
	if data, ok := resp["userDataInJWT"].(map[string]any); ok {
		info.AccessTokenPayload = data
	}
	return info, nil
}

// coreUpdateSessionDataInDatabase returns false when the session no longer
// exists.
func (r *Recipe) coreUpdateSessionDataInDatabase(ctx context.Context, sessionHandle string, newData map[string]any) (bool, error) {
	if newData == nil {
		newData = map[string]any{}
	}

	resp, err := r.querier.Put(ctx, pathSessionData, map[string]any{
		"sessionHandle":      sessionHandle,
		"userDataInDatabase": newData,
	})
	if err != nil {
		return false, err
	}
	return statusOf(resp) == statusOK, nil
}

// coreRegenerateAccessToken applies a full replacement payload to a live
// session. Returns nil without error when the session is gone; callers
// decide whether that is an auth failure.
func (r *Recipe) coreRegenerateAccessToken(ctx context.Context, accessToken string, newPayload map[string]any) (*RegenerateResult, error) {
	if newPayload == nil {
		newPayload = map[string]any{}
	}

	resp, err := r.querier.Put(ctx, pathJWTData, map[string]any{
		"accessToken":   accessToken,
		"userDataInJWT": newPayload,
	})
	if err != nil {
		return nil, err
	}

	if statusOf(resp) != statusOK {
		return nil, nil
	}

	result := &RegenerateResult{}
	if sess, ok := resp["session"].(map[string]any); ok {
		if data, ok := sess["userDataInJWT"].(map[string]any); ok {
			result.AccessTokenPayload = data
		}
	}
	if result.AccessTokenPayload == nil {
		result.AccessTokenPayload = newPayload
	}
	result.NewAccessToken = parseTokenField(resp, "accessToken")
	return result, nil
}

// coreUpdateSessionGrants returns false when the session no longer exists.
func (r *Recipe) coreUpdateSessionGrants(ctx context.Context, sessionHandle string, grants map[string]any) (bool, error) {
	if grants == nil {
		grants = map[string]any{}
	}

	resp, err := r.querier.Put(ctx, pathSessionGrants, map[string]any{
		"sessionHandle": sessionHandle,
		"grants":        grants,
	})
	if err != nil {
		return false, err
	}
	return statusOf(resp) == statusOK, nil
}

// absorbKeyList feeds a signing-key list piggybacked on another response
// into the cache.
func (r *Recipe) absorbKeyList(resp map[string]any) {
	if raw, ok := resp["jwtSigningPublicKeyList"]; ok {
		if keys := signingkeys.ParseLegacyKeyList(raw); len(keys) > 0 {
			r.keys.SetKeys(keys)
		}
	}
}

func parseCreatedSession(resp map[string]any) (*CreatedSession, error) {
	if statusOf(resp) != statusOK {
		return nil, unexpectedStatus(resp)
	}

	sess, ok := resp["session"].(map[string]any)
	if !ok {
		return nil, errors.New("session: core response is missing the session object")
	}

	created := &CreatedSession{
		Handle:        stringField(sess, "handle"),
		UserID:        stringField(sess, "userId"),
		RecipeUserID:  stringField(sess, "recipeUserId"),
		TenantID:      stringField(sess, "tenantId"),
		AntiCsrfToken: stringField(resp, "antiCsrfToken"),
	}
	if created.RecipeUserID == "" {
		created.RecipeUserID = created.UserID
	}
	if created.TenantID == "" {
		created.TenantID = "public"
	}
	if data, ok := sess["userDataInJWT"].(map[string]any); ok {
		created.AccessTokenPayload = data
	} else {
		created.AccessTokenPayload = map[string]any{}
	}

	access := parseTokenField(resp, "accessToken")
	refresh := parseTokenField(resp, "refreshToken")
	if access == nil || refresh == nil {
		return nil, errors.New("session: core response is missing token fields")
	}
	created.AccessToken = *access
	created.RefreshToken = *refresh

	return created, nil
}

func parseVerifiedSession(resp map[string]any) *VerifiedSession {
	verified := &VerifiedSession{}

	if sess, ok := resp["session"].(map[string]any); ok {
		verified.Handle = stringField(sess, "handle")
		verified.UserID = stringField(sess, "userId")
		verified.RecipeUserID = stringField(sess, "recipeUserId")
		verified.TenantID = stringField(sess, "tenantId")
		verified.Expiry = int64Field(sess, "expiryTime")
		if data, ok := sess["userDataInJWT"].(map[string]any); ok {
			verified.AccessTokenPayload = data
		}
	}
	if verified.RecipeUserID == "" {
		verified.RecipeUserID = verified.UserID
	}
	if verified.TenantID == "" {
		verified.TenantID = "public"
	}
	if verified.AccessTokenPayload == nil {
		verified.AccessTokenPayload = map[string]any{}
	}

	verified.NewAccessToken = parseTokenField(resp, "accessToken")
	return verified
}

func parseTokenField(resp map[string]any, key string) *SessionTokens {
	raw, ok := resp[key].(map[string]any)
	if !ok {
		return nil
	}
	token := stringField(raw, "token")
	if token == "" {
		return nil
	}
	return &SessionTokens{
		Token:       token,
		Expiry:      int64Field(raw, "expiry"),
		CreatedTime: int64Field(raw, "createdTime"),
	}
}

func statusOf(resp map[string]any) string {
	return stringField(resp, "status")
}

func messageOf(resp map[string]any) string {
	if msg := stringField(resp, "message"); msg != "" {
		return msg
	}
	return "session does not exist"
}

func unexpectedStatus(resp map[string]any) error {
	return errors.New("session: unexpected core status " + statusOf(resp))
}

func stringSliceField(resp map[string]any, key string) []string {
	raw, ok := resp[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
