package sessiontransport

import (
	"strings"
	"time"

	"github.com/dmitrymomot/sessiongate/core/request"
)

// TransferMethod is how tokens travel between client and server.
type TransferMethod string

const (
	// TransferMethodAny lets the request decide: header when a header token
	// is present, cookie otherwise.
	TransferMethodAny TransferMethod = "any"
	// TransferMethodCookie delivers tokens via Set-Cookie.
	TransferMethodCookie TransferMethod = "cookie"
	// TransferMethodHeader delivers tokens via custom response headers.
	TransferMethodHeader TransferMethod = "header"
)

// TokenType distinguishes the two session tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Fixed wire contract shared with every frontend SDK. Changing any of these
// breaks existing clients.
const (
	AccessTokenCookieName  = "sAccessToken"
	RefreshTokenCookieName = "sRefreshToken"

	AccessTokenHeaderName  = "st-access-token"
	RefreshTokenHeaderName = "st-refresh-token"
	AntiCSRFHeaderName     = "anti-csrf"
	FrontTokenHeaderName   = "front-token"
	AuthModeHeaderName     = "st-auth-mode"

	authorizationHeaderName = "Authorization"
	exposeHeadersHeaderName = "Access-Control-Expose-Headers"

	// Deprecated transport kept only so old clients can be pushed through
	// the refresh path and migrated.
	LegacyIDRefreshTokenCookieName = "sIdRefreshToken"
	LegacyIDRefreshTokenHeaderName = "id-refresh-token"
)

// AuthModeFromRequest reads the client's transport hint. Anything other
// than a concrete method is treated as "any".
func AuthModeFromRequest(req request.Request) TransferMethod {
	v, ok := req.GetHeaderValue(AuthModeHeaderName)
	if !ok {
		return TransferMethodAny
	}
	switch TransferMethod(v) {
	case TransferMethodCookie, TransferMethodHeader:
		return TransferMethod(v)
	default:
		return TransferMethodAny
	}
}

// ResolveMethodForCreate picks the transport for a new session. "any"
// defaults to header unless the client hint asks for cookies.
func ResolveMethodForCreate(configured TransferMethod, req request.Request) TransferMethod {
	if configured != TransferMethodAny {
		return configured
	}
	if AuthModeFromRequest(req) == TransferMethodCookie {
		return TransferMethodCookie
	}
	return TransferMethodHeader
}

// GetToken extracts the raw token for one transport. Header access tokens
// accept both the dedicated header and an Authorization bearer value.
func GetToken(req request.Request, tokenType TokenType, method TransferMethod) (string, bool) {
	switch method {
	case TransferMethodCookie:
		return req.GetCookieValue(cookieNameFor(tokenType))
	case TransferMethodHeader:
		if v, ok := req.GetHeaderValue(headerNameFor(tokenType)); ok {
			return v, true
		}
		return bearerToken(req)
	default:
		return "", false
	}
}

func bearerToken(req request.Request) (string, bool) {
	v, ok := req.GetHeaderValue(authorizationHeaderName)
	if !ok {
		return "", false
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// SetToken attaches a token to the response on the given transport.
func SetToken(res request.Response, settings CookieSettings, tokenType TokenType, value string, expiry time.Time, method TransferMethod) {
	switch method {
	case TransferMethodCookie:
		res.SetCookie(request.Cookie{
			Name:     cookieNameFor(tokenType),
			Value:    value,
			Domain:   settings.Domain,
			Secure:   settings.Secure,
			HTTPOnly: true,
			Expires:  expiry,
			Path:     settings.pathFor(tokenType),
			SameSite: settings.SameSite,
		})
	case TransferMethodHeader:
		res.SetHeader(headerNameFor(tokenType), value, false)
		exposeHeader(res, headerNameFor(tokenType))
	}
}

// ClearToken instructs the client to drop a token on the given transport.
// Cookie clearing uses an epoch expiry; header clearing sends an empty
// value, which frontend SDKs interpret as removal.
func ClearToken(res request.Response, settings CookieSettings, tokenType TokenType, method TransferMethod) {
	switch method {
	case TransferMethodCookie:
		res.SetCookie(request.Cookie{
			Name:     cookieNameFor(tokenType),
			Value:    "",
			Domain:   settings.Domain,
			Secure:   settings.Secure,
			HTTPOnly: true,
			Expires:  time.Unix(0, 0),
			Path:     settings.pathFor(tokenType),
			SameSite: settings.SameSite,
		})
	case TransferMethodHeader:
		res.SetHeader(headerNameFor(tokenType), "", false)
		exposeHeader(res, headerNameFor(tokenType))
	}
}

// ClearSession drops both tokens on one transport and marks the front token
// for removal.
func ClearSession(res request.Response, settings CookieSettings, method TransferMethod) {
	ClearToken(res, settings, TokenTypeAccess, method)
	ClearToken(res, settings, TokenTypeRefresh, method)
	ClearFrontToken(res)
}

// ClearSessionFromAllTransferMethods drops tokens on every transport,
// including the deprecated one. Used when a session is conclusively gone
// and no client copy may survive.
func ClearSessionFromAllTransferMethods(res request.Response, settings CookieSettings) {
	ClearSession(res, settings, TransferMethodCookie)
	ClearSession(res, settings, TransferMethodHeader)
	ClearLegacyIDRefreshToken(res, settings)
}

// SetAntiCsrfHeader mirrors a freshly issued anti-CSRF token to the client.
func SetAntiCsrfHeader(res request.Response, token string) {
	res.SetHeader(AntiCSRFHeaderName, token, false)
	exposeHeader(res, AntiCSRFHeaderName)
}

// AntiCsrfFromRequest reads the anti-CSRF token supplied by the client.
func AntiCsrfFromRequest(req request.Request) (string, bool) {
	return req.GetHeaderValue(AntiCSRFHeaderName)
}

// HasLegacyIDRefreshToken reports whether the request still carries the
// deprecated session cookie.
func HasLegacyIDRefreshToken(req request.Request) bool {
	_, ok := req.GetCookieValue(LegacyIDRefreshTokenCookieName)
	return ok
}

// ClearLegacyIDRefreshToken removes the deprecated cookie and tells
// header-based clients to drop their copy.
func ClearLegacyIDRefreshToken(res request.Response, settings CookieSettings) {
	res.SetCookie(request.Cookie{
		Name:     LegacyIDRefreshTokenCookieName,
		Value:    "",
		Domain:   settings.Domain,
		Secure:   settings.Secure,
		HTTPOnly: true,
		Expires:  time.Unix(0, 0),
		Path:     "/",
		SameSite: settings.SameSite,
	})
	res.SetHeader(LegacyIDRefreshTokenHeaderName, "remove", false)
	exposeHeader(res, LegacyIDRefreshTokenHeaderName)
}

func cookieNameFor(tokenType TokenType) string {
	if tokenType == TokenTypeRefresh {
		return RefreshTokenCookieName
	}
	return AccessTokenCookieName
}

func headerNameFor(tokenType TokenType) string {
	if tokenType == TokenTypeRefresh {
		return RefreshTokenHeaderName
	}
	return AccessTokenHeaderName
}

func exposeHeader(res request.Response, name string) {
	res.SetHeader(exposeHeadersHeaderName, name, true)
}
