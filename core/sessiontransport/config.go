package sessiontransport

import (
	"net"
	"net/http"
	"strings"
)

// CookieSettings holds the resolved cookie serialization parameters. The
// access token always lives at the root path; the refresh token is scoped
// to the refresh endpoint so browsers only send it there.
type CookieSettings struct {
	Domain           string
	Secure           bool
	SameSite         http.SameSite
	RefreshTokenPath string
}

func (s CookieSettings) pathFor(tokenType TokenType) string {
	if tokenType == TokenTypeRefresh && s.RefreshTokenPath != "" {
		return s.RefreshTokenPath
	}
	return "/"
}

// ValidateSameSiteNone enforces the browser security invariant: cookies
// with SameSite=None must be Secure, unless both API and website domains
// resolve to localhost or IP literals (plain-HTTP development setups).
// Violations are a fatal configuration error, never a silent downgrade.
func ValidateSameSiteNone(settings CookieSettings, apiDomain, websiteDomain string) error {
	if settings.SameSite != http.SameSiteNoneMode || settings.Secure {
		return nil
	}
	if isDevelopmentDomain(apiDomain) && isDevelopmentDomain(websiteDomain) {
		return nil
	}
	return ErrInsecureSameSiteNone
}

// isDevelopmentDomain reports whether a domain is localhost or an IP
// literal, with or without scheme and port.
func isDevelopmentDomain(domain string) bool {
	host := domain
	if i := strings.Index(host, "//"); i >= 0 {
		host = host[i+2:]
	}
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	return net.ParseIP(host) != nil
}
