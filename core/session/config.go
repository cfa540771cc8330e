package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrymomot/sessiongate/core/sessiontransport"
)

// AntiCSRFMode selects the anti-CSRF mechanism for cookie-based sessions.
type AntiCSRFMode string

const (
	// AntiCSRFViaToken embeds an anti-CSRF token in the access token; the
	// client must echo it back in the anti-csrf header on state-changing
	// requests.
	AntiCSRFViaToken AntiCSRFMode = "VIA_TOKEN"
	// AntiCSRFViaCustomHeader relies on the rid header being present,
	// which cross-site form posts cannot set.
	AntiCSRFViaCustomHeader AntiCSRFMode = "VIA_CUSTOM_HEADER"
	// AntiCSRFNone disables anti-CSRF checks.
	AntiCSRFNone AntiCSRFMode = "NONE"
)

// Config holds the recipe configuration. All fields have environment
// bindings so a service can configure the SDK the same way it configures
// everything else.
type Config struct {
	// APIDomain is the public origin of the API that embeds this SDK,
	// e.g. "https://api.example.com".
	APIDomain string `env:"SESSION_API_DOMAIN,required"`

	// WebsiteDomain is the public origin of the frontend,
	// e.g. "https://example.com".
	WebsiteDomain string `env:"SESSION_WEBSITE_DOMAIN,required"`

	// APIBasePath is where the auth endpoints are mounted on the API
	// domain. The refresh-token cookie is scoped to its refresh path.
	APIBasePath string `env:"SESSION_API_BASE_PATH" envDefault:"/auth"`

	// CookieDomain sets an explicit Domain attribute on token cookies.
	// Empty leaves the attribute off (host-only cookies).
	CookieDomain string `env:"SESSION_COOKIE_DOMAIN" envDefault:""`

	// CookieSecure marks token cookies Secure. Required when
	// CookieSameSite is "none" outside localhost development.
	CookieSecure bool `env:"SESSION_COOKIE_SECURE" envDefault:"true"`

	// CookieSameSite is one of "lax", "strict", "none".
	CookieSameSite string `env:"SESSION_COOKIE_SAME_SITE" envDefault:"lax"`

	// AntiCSRF is the anti-CSRF mode for cookie transport. Header
	// transport never needs it.
	AntiCSRF AntiCSRFMode `env:"SESSION_ANTI_CSRF" envDefault:"NONE"`

	// TokenTransferMethod restricts how tokens travel. "any" lets each
	// request decide.
	TokenTransferMethod sessiontransport.TransferMethod `env:"SESSION_TOKEN_TRANSFER_METHOD" envDefault:"any"`

	// SessionExpiredStatusCode is the HTTP status for unauthorised and
	// try-refresh outcomes.
	SessionExpiredStatusCode int `env:"SESSION_EXPIRED_STATUS_CODE" envDefault:"401"`

	// InvalidClaimStatusCode is the HTTP status for claim validation
	// failures.
	InvalidClaimStatusCode int `env:"SESSION_INVALID_CLAIM_STATUS_CODE" envDefault:"403"`

	// AccessTokenBlacklisting forces every verification through the core
	// so revocation takes effect before token expiry. Local-only trust is
	// insufficient when enabled.
	AccessTokenBlacklisting bool `env:"SESSION_ACCESS_TOKEN_BLACKLISTING" envDefault:"false"`

	// ExposeAccessTokenToFrontendInCookieBasedAuth additionally mirrors
	// the access token into response headers for cookie-based sessions.
	ExposeAccessTokenToFrontendInCookieBasedAuth bool `env:"SESSION_EXPOSE_ACCESS_TOKEN_IN_COOKIE_AUTH" envDefault:"false"`
}

// DefaultConfig returns a Config with the standard defaults. APIDomain and
// WebsiteDomain have no defaults and must be set by the caller.
func DefaultConfig() Config {
	return Config{
		APIBasePath:              "/auth",
		CookieSecure:             true,
		CookieSameSite:           "lax",
		AntiCSRF:                 AntiCSRFNone,
		TokenTransferMethod:      sessiontransport.TransferMethodAny,
		SessionExpiredStatusCode: http.StatusUnauthorized,
		InvalidClaimStatusCode:   http.StatusForbidden,
	}
}

// Validate checks the configuration. Violations are fatal at construction
// time, never silently downgraded.
func (c Config) Validate() error {
	var errs []error

	if c.APIDomain == "" {
		errs = append(errs, errors.New("session: APIDomain is required"))
	}
	if c.WebsiteDomain == "" {
		errs = append(errs, errors.New("session: WebsiteDomain is required"))
	}

	if _, err := c.sameSite(); err != nil {
		errs = append(errs, err)
	}

	switch c.AntiCSRF {
	case AntiCSRFViaToken, AntiCSRFViaCustomHeader, AntiCSRFNone:
	default:
		errs = append(errs, fmt.Errorf("session: unknown anti-CSRF mode %q", c.AntiCSRF))
	}

	switch c.TokenTransferMethod {
	case sessiontransport.TransferMethodAny, sessiontransport.TransferMethodCookie, sessiontransport.TransferMethodHeader:
	default:
		errs = append(errs, fmt.Errorf("session: unknown token transfer method %q", c.TokenTransferMethod))
	}

	if c.SessionExpiredStatusCode < 100 || c.SessionExpiredStatusCode > 599 {
		errs = append(errs, fmt.Errorf("session: invalid session-expired status code %d", c.SessionExpiredStatusCode))
	}
	if c.InvalidClaimStatusCode < 100 || c.InvalidClaimStatusCode > 599 {
		errs = append(errs, fmt.Errorf("session: invalid invalid-claim status code %d", c.InvalidClaimStatusCode))
	}

	if len(errs) == 0 {
		if settings, err := c.cookieSettings(); err == nil {
			if err := sessiontransport.ValidateSameSiteNone(settings, c.APIDomain, c.WebsiteDomain); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func (c Config) sameSite() (http.SameSite, error) {
	switch strings.ToLower(c.CookieSameSite) {
	case "lax", "":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("session: unknown SameSite value %q", c.CookieSameSite)
	}
}

// refreshPath is where the refresh endpoint lives under the API base path.
// The refresh-token cookie is scoped to it.
func (c Config) refreshPath() string {
	base := strings.TrimRight(c.APIBasePath, "/")
	return base + "/session/refresh"
}

func (c Config) cookieSettings() (sessiontransport.CookieSettings, error) {
	sameSite, err := c.sameSite()
	if err != nil {
		return sessiontransport.CookieSettings{}, err
	}

	return sessiontransport.CookieSettings{
		Domain:           c.CookieDomain,
		Secure:           c.CookieSecure,
		SameSite:         sameSite,
		RefreshTokenPath: c.refreshPath(),
	}, nil
}
