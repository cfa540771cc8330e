package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/sessiongate"
	"github.com/dmitrymomot/sessiongate/core/claims"
	"github.com/dmitrymomot/sessiongate/core/querier"
	"github.com/dmitrymomot/sessiongate/core/request"
	"github.com/dmitrymomot/sessiongate/core/sessiontransport"
	"github.com/dmitrymomot/sessiongate/core/signingkeys"
	"github.com/dmitrymomot/sessiongate/pkg/jwt"
	"github.com/dmitrymomot/sessiongate/pkg/logger"
)

// ridHeaderName is the recipe-id header. Its presence doubles as the
// anti-CSRF signal in VIA_CUSTOM_HEADER mode: cross-site form posts cannot
// set custom headers.
const ridHeaderName = "rid"

// AntiCSRFFunc decides the anti-CSRF mode per request.
type AntiCSRFFunc func(req request.Request, uctx sessiongate.UserContext) AntiCSRFMode

// TransferMethodFunc decides the allowed token transport per request.
type TransferMethodFunc func(req request.Request, forCreateNewSession bool, uctx sessiongate.UserContext) sessiontransport.TransferMethod

// ClaimValidatorsFunc composes the validator set applied to every verified
// session. Product features append their validators to the defaults.
type ClaimValidatorsFunc func(ctx context.Context, defaults []claims.Validator, userID, recipeUserID, tenantID string, uctx sessiongate.UserContext) ([]claims.Validator, error)

// Recipe is the session engine. It is an explicit dependency-injected
// object: construct one per configuration and pass it to request handlers.
// Multiple recipes with different configurations can coexist in one
// process.
type Recipe struct {
	config         Config
	cookieSettings sessiontransport.CookieSettings
	querier        *querier.Client
	keys           *signingkeys.Cache
	log            *slog.Logger

	iface     RecipeInterface
	overrides []Override

	antiCSRFFunc       AntiCSRFFunc
	transferMethodFunc TransferMethodFunc
	claimValidators    ClaimValidatorsFunc
}

// Option configures the Recipe.
type Option func(*Recipe)

// WithLogger sets the logger for verification diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(r *Recipe) {
		if log != nil {
			r.log = log
		}
	}
}

// WithAntiCSRF decides the anti-CSRF mode per request instead of the
// static configured mode.
func WithAntiCSRF(fn AntiCSRFFunc) Option {
	return func(r *Recipe) {
		if fn != nil {
			r.antiCSRFFunc = fn
		}
	}
}

// WithTransferMethod decides the token transport per request instead of
// the static configured method.
func WithTransferMethod(fn TransferMethodFunc) Option {
	return func(r *Recipe) {
		if fn != nil {
			r.transferMethodFunc = fn
		}
	}
}

// WithClaimValidators registers the hook that composes the validator set
// run on every verified session.
func WithClaimValidators(fn ClaimValidatorsFunc) Option {
	return func(r *Recipe) {
		if fn != nil {
			r.claimValidators = fn
		}
	}
}

// WithOverrides registers interface decorators. They compose in order,
// each wrapping the interface produced by the previous one.
func WithOverrides(overrides ...Override) Option {
	return func(r *Recipe) {
		r.overrides = append(r.overrides, overrides...)
	}
}

// New builds a session recipe.
func New(q *querier.Client, keys *signingkeys.Cache, cfg Config, opts ...Option) (*Recipe, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	settings, err := cfg.cookieSettings()
	if err != nil {
		return nil, err
	}

	r := &Recipe{
		config:         cfg,
		cookieSettings: settings,
		querier:        q,
		keys:           keys,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	iface := r.baseInterface()
	for _, o := range r.overrides {
		iface = o(iface)
	}
	r.iface = iface

	return r, nil
}

// Interface returns the resolved operation surface, with all overrides
// applied. Use it for token-level operations outside a request context,
// e.g. revoking sessions from an admin job.
func (r *Recipe) Interface() RecipeInterface {
	return r.iface
}

// SessionExpiredStatusCode is the HTTP status for unauthorised and
// try-refresh outcomes.
func (r *Recipe) SessionExpiredStatusCode() int {
	return r.config.SessionExpiredStatusCode
}

// InvalidClaimStatusCode is the HTTP status for claim validation failures.
func (r *Recipe) InvalidClaimStatusCode() int {
	return r.config.InvalidClaimStatusCode
}

// VerifySessionOptions tunes one GetSession call.
type VerifySessionOptions struct {
	// SessionRequired, when set to false, makes a missing session return
	// (nil, nil) instead of an unauthorised error. Default true.
	SessionRequired *bool

	// AntiCSRFCheck overrides the default "required for any method except
	// GET" rule. Header transport disables the check regardless.
	AntiCSRFCheck *bool

	// CheckDatabase forces a revocation check against the core even when
	// the token verifies locally.
	CheckDatabase bool

	// OverrideGlobalClaimValidators adjusts the validator set for this
	// call only.
	OverrideGlobalClaimValidators func(defaults []claims.Validator, s *Session, uctx sessiongate.UserContext) ([]claims.Validator, error)
}

// GetSession verifies the request's session and returns its container, or
// nil when no session exists and SessionRequired is false.
//
// Tokens are collected from every transport, not just the allowed one, so
// stale copies on the losing transport can be cleared from the response.
func (r *Recipe) GetSession(ctx context.Context, req request.Request, res request.Response, opts *VerifySessionOptions, uctx sessiongate.UserContext) (*Session, error) {
	if opts == nil {
		opts = &VerifySessionOptions{}
	}
	sessionRequired := opts.SessionRequired == nil || *opts.SessionRequired

	// Very old clients still carrying the deprecated cookie are pushed
	// through the refresh path uniformly.
	if sessiontransport.HasLegacyIDRefreshToken(req) {
		return nil, errors.Join(ErrTryRefreshToken, errors.New("session: legacy session token present"))
	}

	candidates := r.collectAccessTokens(req)

	method, accessToken, found := r.chooseCandidate(req, uctx, candidates)
	if !found {
		if !sessionRequired {
			return nil, nil
		}
		return nil, &UnauthorizedError{Reason: "no session tokens found", ClearTokens: false}
	}

	csrf, err := r.antiCSRFRequirement(req, uctx, opts, method)
	if err != nil {
		return nil, err
	}

	verified, err := r.iface.GetSession(ctx, accessToken, VerifyOptions{
		AntiCSRF:      csrf,
		CheckDatabase: opts.CheckDatabase,
	}, uctx)
	if err != nil {
		r.handleAuthFailure(res, err)
		return nil, err
	}

	s := &Session{
		recipe:         r,
		handle:         verified.Handle,
		userID:         verified.UserID,
		recipeUserID:   verified.RecipeUserID,
		tenantID:       verified.TenantID,
		accessToken:    accessToken,
		expiry:         verified.Expiry,
		payload:        verified.AccessTokenPayload,
		transferMethod: method,
		req:            req,
		res:            res,
		uctx:           uctx,
	}

	if verified.NewAccessToken != nil {
		s.accessToken = verified.NewAccessToken.Token
		if verified.NewAccessToken.Expiry > 0 {
			s.expiry = verified.NewAccessToken.Expiry
		}
		s.accessTokenUpdated = true
		s.writeAccessToken()
	}

	// Transport exclusivity: a stale token on the losing transport must
	// not survive alongside the winning one.
	if res != nil {
		for other := range candidates {
			if other != method {
				sessiontransport.ClearToken(res, r.cookieSettings, sessiontransport.TokenTypeAccess, other)
				sessiontransport.ClearToken(res, r.cookieSettings, sessiontransport.TokenTypeRefresh, other)
			}
		}
	}

	validators, err := r.composeValidators(ctx, s, opts, uctx)
	if err != nil {
		return nil, err
	}
	if len(validators) > 0 {
		if err := s.AssertClaims(ctx, validators); err != nil {
			return nil, err
		}
	}

	r.log.DebugContext(ctx, "session verified",
		logger.Component("session"),
		logger.SessionHandle(s.handle),
		logger.Transport(string(method)))
	return s, nil
}

// CreateNewSession opens a session for userID and attaches its tokens to
// the response.
func (r *Recipe) CreateNewSession(ctx context.Context, req request.Request, res request.Response, in CreateSessionInput, uctx sessiongate.UserContext) (*Session, error) {
	method := sessiontransport.ResolveMethodForCreate(r.transferMethod(req, true, uctx), req)
	in.EnableAntiCSRF = r.antiCSRFMode(req, uctx) == AntiCSRFViaToken && method == sessiontransport.TransferMethodCookie

	created, err := r.iface.CreateNewSession(ctx, in, uctx)
	if err != nil {
		return nil, err
	}

	return r.attachCreatedSession(created, method, req, res, uctx), nil
}

// RefreshSession rotates the session's token pair. A replayed refresh
// token revokes the whole session and clears every client token.
func (r *Recipe) RefreshSession(ctx context.Context, req request.Request, res request.Response, uctx sessiongate.UserContext) (*Session, error) {
	method, refreshToken, found := r.chooseRefreshToken(req, uctx)
	if !found {
		// An access token without a refresh token is a half-valid client
		// state; clear everything rather than leave it dangling.
		if r.hasAnyAccessToken(req) {
			err := newUnauthorizedError("refresh token not found but access token is present")
			r.handleAuthFailure(res, err)
			return nil, err
		}
		return nil, &UnauthorizedError{Reason: "refresh token not found", ClearTokens: false}
	}

	mode := r.antiCSRFMode(req, uctx)
	if mode == AntiCSRFViaCustomHeader && method == sessiontransport.TransferMethodCookie {
		if _, ok := req.GetHeaderValue(ridHeaderName); !ok {
			return nil, &UnauthorizedError{Reason: "anti-CSRF header missing on refresh", ClearTokens: false}
		}
	}

	antiCsrfToken, _ := sessiontransport.AntiCsrfFromRequest(req)
	enableAntiCSRF := mode == AntiCSRFViaToken && method == sessiontransport.TransferMethodCookie

	created, err := r.iface.RefreshSession(ctx, refreshToken, antiCsrfToken, enableAntiCSRF, uctx)
	if err != nil {
		var theft *TokenTheftError
		if errors.As(err, &theft) {
			// The core detected reuse; make sure the family is gone and
			// no client copy survives.
			if theft.SessionHandle != "" {
				if _, revokeErr := r.iface.RevokeSession(ctx, theft.SessionHandle, uctx); revokeErr != nil {
					r.log.WarnContext(ctx, "failed to revoke stolen session",
						logger.Component("session"),
						logger.SessionHandle(theft.SessionHandle),
						logger.Error(revokeErr))
				}
			}
			if res != nil {
				sessiontransport.ClearSessionFromAllTransferMethods(res, r.cookieSettings)
			}
			return nil, err
		}

		r.handleAuthFailure(res, err)
		return nil, err
	}

	return r.attachCreatedSession(created, method, req, res, uctx), nil
}

// GetSessionWithoutRequestResponse verifies a raw access token outside an
// HTTP exchange, e.g. in a message consumer. No tokens are attached or
// cleared anywhere.
func (r *Recipe) GetSessionWithoutRequestResponse(ctx context.Context, accessToken, antiCsrfToken string, opts *VerifySessionOptions, uctx sessiongate.UserContext) (*Session, error) {
	if opts == nil {
		opts = &VerifySessionOptions{}
	}
	sessionRequired := opts.SessionRequired == nil || *opts.SessionRequired

	if accessToken == "" {
		if !sessionRequired {
			return nil, nil
		}
		return nil, &UnauthorizedError{Reason: "no access token provided", ClearTokens: false}
	}

	csrf := antiCSRFCheck{}
	if antiCsrfToken != "" {
		csrf = antiCSRFCheck{required: true, headerToken: antiCsrfToken}
	}

	verified, err := r.iface.GetSession(ctx, accessToken, VerifyOptions{
		AntiCSRF:      csrf,
		CheckDatabase: opts.CheckDatabase,
	}, uctx)
	if err != nil {
		if !sessionRequired && errors.Is(err, ErrUnauthorized) {
			return nil, nil
		}
		return nil, err
	}

	s := &Session{
		recipe:         r,
		handle:         verified.Handle,
		userID:         verified.UserID,
		recipeUserID:   verified.RecipeUserID,
		tenantID:       verified.TenantID,
		accessToken:    accessToken,
		expiry:         verified.Expiry,
		payload:        verified.AccessTokenPayload,
		transferMethod: sessiontransport.TransferMethodHeader,
		uctx:           uctx,
	}
	if verified.NewAccessToken != nil {
		s.accessToken = verified.NewAccessToken.Token
		if verified.NewAccessToken.Expiry > 0 {
			s.expiry = verified.NewAccessToken.Expiry
		}
		s.accessTokenUpdated = true
	}

	validators, err := r.composeValidators(ctx, s, opts, uctx)
	if err != nil {
		return nil, err
	}
	if len(validators) > 0 {
		if err := s.AssertClaims(ctx, validators); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// RefreshSessionWithoutRequestResponse rotates a raw refresh token outside
// an HTTP exchange.
func (r *Recipe) RefreshSessionWithoutRequestResponse(ctx context.Context, refreshToken, antiCsrfToken string, disableAntiCSRF bool, uctx sessiongate.UserContext) (*Session, error) {
	if refreshToken == "" {
		return nil, &UnauthorizedError{Reason: "no refresh token provided", ClearTokens: false}
	}

	enableAntiCSRF := !disableAntiCSRF && r.config.AntiCSRF == AntiCSRFViaToken
	created, err := r.iface.RefreshSession(ctx, refreshToken, antiCsrfToken, enableAntiCSRF, uctx)
	if err != nil {
		return nil, err
	}

	return r.attachCreatedSession(created, sessiontransport.TransferMethodHeader, nil, nil, uctx), nil
}

// collectAccessTokens gathers structurally valid access tokens from every
// transport.
func (r *Recipe) collectAccessTokens(req request.Request) map[sessiontransport.TransferMethod]string {
	candidates := make(map[sessiontransport.TransferMethod]string, 2)
	for _, method := range []sessiontransport.TransferMethod{
		sessiontransport.TransferMethodHeader,
		sessiontransport.TransferMethodCookie,
	} {
		raw, ok := sessiontransport.GetToken(req, sessiontransport.TokenTypeAccess, method)
		if !ok {
			continue
		}
		if _, err := jwt.ParseWithoutVerification(raw); err != nil {
			continue
		}
		candidates[method] = raw
	}
	return candidates
}

// chooseCandidate resolves the allowed transport and picks its token. With
// "any", header wins when a structurally valid token is present there.
func (r *Recipe) chooseCandidate(req request.Request, uctx sessiongate.UserContext, candidates map[sessiontransport.TransferMethod]string) (sessiontransport.TransferMethod, string, bool) {
	allowed := r.transferMethod(req, false, uctx)

	switch allowed {
	case sessiontransport.TransferMethodCookie, sessiontransport.TransferMethodHeader:
		token, ok := candidates[allowed]
		return allowed, token, ok
	default:
		if token, ok := candidates[sessiontransport.TransferMethodHeader]; ok {
			return sessiontransport.TransferMethodHeader, token, true
		}
		token, ok := candidates[sessiontransport.TransferMethodCookie]
		return sessiontransport.TransferMethodCookie, token, ok
	}
}

func (r *Recipe) chooseRefreshToken(req request.Request, uctx sessiongate.UserContext) (sessiontransport.TransferMethod, string, bool) {
	allowed := r.transferMethod(req, false, uctx)

	get := func(method sessiontransport.TransferMethod) (string, bool) {
		return sessiontransport.GetToken(req, sessiontransport.TokenTypeRefresh, method)
	}

	switch allowed {
	case sessiontransport.TransferMethodCookie, sessiontransport.TransferMethodHeader:
		token, ok := get(allowed)
		return allowed, token, ok
	default:
		if token, ok := get(sessiontransport.TransferMethodHeader); ok {
			return sessiontransport.TransferMethodHeader, token, true
		}
		token, ok := get(sessiontransport.TransferMethodCookie)
		return sessiontransport.TransferMethodCookie, token, ok
	}
}

func (r *Recipe) hasAnyAccessToken(req request.Request) bool {
	return len(r.collectAccessTokens(req)) > 0
}

// antiCSRFRequirement computes the anti-CSRF check for one verification.
// Default: required for every method except GET. Header transport is not
// subject to CSRF at all. VIA_CUSTOM_HEADER is enforced here by the rid
// header's presence; VIA_TOKEN is enforced by token comparison inside the
// validator.
func (r *Recipe) antiCSRFRequirement(req request.Request, uctx sessiongate.UserContext, opts *VerifySessionOptions, method sessiontransport.TransferMethod) (antiCSRFCheck, error) {
	doCheck := req.GetMethod() != http.MethodGet
	if opts.AntiCSRFCheck != nil {
		doCheck = *opts.AntiCSRFCheck
	}
	if method == sessiontransport.TransferMethodHeader {
		doCheck = false
	}
	if !doCheck {
		return antiCSRFCheck{}, nil
	}

	switch r.antiCSRFMode(req, uctx) {
	case AntiCSRFViaToken:
		headerToken, _ := sessiontransport.AntiCsrfFromRequest(req)
		return antiCSRFCheck{required: true, headerToken: headerToken}, nil
	case AntiCSRFViaCustomHeader:
		if _, ok := req.GetHeaderValue(ridHeaderName); !ok {
			return antiCSRFCheck{}, errors.Join(ErrTryRefreshToken, errors.New("session: anti-CSRF header missing"))
		}
		return antiCSRFCheck{}, nil
	default:
		return antiCSRFCheck{}, nil
	}
}

func (r *Recipe) antiCSRFMode(req request.Request, uctx sessiongate.UserContext) AntiCSRFMode {
	if r.antiCSRFFunc != nil {
		return r.antiCSRFFunc(req, uctx)
	}
	return r.config.AntiCSRF
}

func (r *Recipe) transferMethod(req request.Request, forCreate bool, uctx sessiongate.UserContext) sessiontransport.TransferMethod {
	if r.transferMethodFunc != nil {
		return r.transferMethodFunc(req, forCreate, uctx)
	}
	return r.config.TokenTransferMethod
}

func (r *Recipe) composeValidators(ctx context.Context, s *Session, opts *VerifySessionOptions, uctx sessiongate.UserContext) ([]claims.Validator, error) {
	var validators []claims.Validator
	if r.claimValidators != nil {
		var err error
		validators, err = r.claimValidators(ctx, validators, s.userID, s.recipeUserID, s.tenantID, uctx)
		if err != nil {
			return nil, err
		}
	}
	if opts.OverrideGlobalClaimValidators != nil {
		return opts.OverrideGlobalClaimValidators(validators, s, uctx)
	}
	return validators, nil
}

// attachCreatedSession builds the container for a freshly issued token
// pair and, when a response is attached, writes the tokens on the winning
// transport and clears every other one.
func (r *Recipe) attachCreatedSession(created *CreatedSession, method sessiontransport.TransferMethod, req request.Request, res request.Response, uctx sessiongate.UserContext) *Session {
	s := &Session{
		recipe:             r,
		handle:             created.Handle,
		userID:             created.UserID,
		recipeUserID:       created.RecipeUserID,
		tenantID:           created.TenantID,
		accessToken:        created.AccessToken.Token,
		expiry:             created.AccessToken.Expiry,
		refreshToken:       &created.RefreshToken,
		antiCsrfToken:      created.AntiCsrfToken,
		payload:            created.AccessTokenPayload,
		transferMethod:     method,
		req:                req,
		res:                res,
		uctx:               uctx,
		accessTokenUpdated: true,
	}

	if res == nil {
		return s
	}

	// Clear the losing transport first; the front token written below
	// replaces the removal marker the clearing sets.
	sessiontransport.ClearSession(res, r.cookieSettings, otherTransferMethod(method))
	if req != nil && sessiontransport.HasLegacyIDRefreshToken(req) {
		sessiontransport.ClearLegacyIDRefreshToken(res, r.cookieSettings)
	}

	sessiontransport.SetToken(res, r.cookieSettings, sessiontransport.TokenTypeRefresh,
		created.RefreshToken.Token, time.UnixMilli(created.RefreshToken.Expiry), method)
	s.writeAccessToken()
	if created.AntiCsrfToken != "" {
		sessiontransport.SetAntiCsrfHeader(res, created.AntiCsrfToken)
	}

	return s
}

// handleAuthFailure applies the token-clearing policy for a failed
// verification or refresh. TRY_REFRESH never clears; unauthorised clears
// unless the error says there was nothing to clear.
func (r *Recipe) handleAuthFailure(res request.Response, err error) {
	if res == nil {
		return
	}

	var unauthorized *UnauthorizedError
	if errors.As(err, &unauthorized) && unauthorized.ClearTokens {
		sessiontransport.ClearSessionFromAllTransferMethods(res, r.cookieSettings)
	}
}

func otherTransferMethod(method sessiontransport.TransferMethod) sessiontransport.TransferMethod {
	if method == sessiontransport.TransferMethodCookie {
		return sessiontransport.TransferMethodHeader
	}
	return sessiontransport.TransferMethodCookie
}
