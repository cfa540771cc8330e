package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/sessiongate/core/request"
	"github.com/dmitrymomot/sessiongate/core/session"
	"github.com/dmitrymomot/sessiongate/pkg/logger"
)

type sessionKey struct{}

// VerifySessionConfig configures the session verification middleware.
type VerifySessionConfig struct {
	// Skip defines a function to skip middleware execution for specific
	// requests, e.g. health checks.
	Skip func(r *http.Request) bool

	// Options tunes the underlying GetSession call. Nil means session
	// required with default anti-CSRF rules.
	Options *session.VerifySessionOptions

	// ErrorHandler defines a custom response for verification failures.
	// The default writes the status code for the error kind and a small
	// JSON body.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

	// Logger for structured logging (default: slog with io.Discard).
	Logger *slog.Logger
}

// VerifySession creates middleware that verifies the request's session with
// the given recipe and stores the container in the request context.
func VerifySession(recipe *session.Recipe) func(http.Handler) http.Handler {
	return VerifySessionWithConfig(recipe, VerifySessionConfig{})
}

// VerifySessionWithConfig creates a session verification middleware with
// custom configuration.
//
// Failed verifications map to HTTP statuses by error kind: unauthorised and
// try-refresh answer with the recipe's session-expired status code, claim
// failures with the invalid-claim status code and the structured claim
// list, bad input with 400. Anything else is an internal error.
func VerifySessionWithConfig(recipe *session.Recipe, cfg VerifySessionConfig) func(http.Handler) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			req := request.NewHTTPRequest(r)
			res := request.NewHTTPResponse(w)

			s, err := recipe.GetSession(r.Context(), req, res, cfg.Options, nil)
			if err != nil {
				log.DebugContext(r.Context(), "session verification failed",
					logger.Component("middleware"),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.Error(err))

				if cfg.ErrorHandler != nil {
					cfg.ErrorHandler(w, r, err)
					return
				}
				writeVerificationError(res, recipe, err)
				return
			}

			if s != nil {
				r = r.WithContext(context.WithValue(r.Context(), sessionKey{}, s))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext returns the verified session stored by VerifySession.
// The bool is false on routes without the middleware or when the session
// was optional and absent.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*session.Session)
	return s, ok
}

func writeVerificationError(res *request.HTTPResponse, recipe *session.Recipe, err error) {
	var invalidClaims *session.InvalidClaimsError
	switch {
	case errors.As(err, &invalidClaims):
		res.SetStatusCode(recipe.InvalidClaimStatusCode())
		_ = res.SendJSON(map[string]any{
			"message":               "invalid claims",
			"claimValidationErrors": invalidClaims.Errors,
		})
	case errors.Is(err, session.ErrTryRefreshToken):
		res.SetStatusCode(recipe.SessionExpiredStatusCode())
		_ = res.SendJSON(map[string]any{"message": "try refresh token"})
	case errors.Is(err, session.ErrUnauthorized), errors.Is(err, session.ErrTokenTheftDetected):
		res.SetStatusCode(recipe.SessionExpiredStatusCode())
		_ = res.SendJSON(map[string]any{"message": "unauthorised"})
	case errors.Is(err, session.ErrBadInput):
		res.SetStatusCode(http.StatusBadRequest)
		_ = res.SendJSON(map[string]any{"message": "bad request"})
	default:
		res.SetStatusCode(http.StatusInternalServerError)
		_ = res.SendJSON(map[string]any{"message": "internal error"})
	}
}
