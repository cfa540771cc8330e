// Package middleware provides net/http middleware for session verification.
//
// The VerifySession middleware verifies the request's session tokens with a
// session.Recipe and stores the resulting container in the request context,
// where handlers retrieve it with SessionFromContext.
//
// # Basic usage
//
//	import "github.com/dmitrymomot/sessiongate/middleware"
//
//	mux := http.NewServeMux()
//	mux.Handle("/api/profile", middleware.VerifySession(recipe)(http.HandlerFunc(profileHandler)))
//
//	func profileHandler(w http.ResponseWriter, r *http.Request) {
//		s, ok := middleware.SessionFromContext(r.Context())
//		if !ok {
//			http.Error(w, "no session", http.StatusUnauthorized)
//			return
//		}
//		fmt.Fprint(w, s.UserID())
//	}
//
// # Advanced configuration
//
// VerifySessionWithConfig accepts a VerifySessionConfig for optional
// sessions, custom claim validators, skip rules and custom error responses:
//
//	optional := false
//	mux.Handle("/api/feed", middleware.VerifySessionWithConfig(recipe, middleware.VerifySessionConfig{
//		Options: &session.VerifySessionOptions{SessionRequired: &optional},
//		Skip: func(r *http.Request) bool {
//			return r.URL.Path == "/healthz"
//		},
//	})(feedHandler))
//
// With an optional session the handler still runs when no token is present;
// SessionFromContext then reports false.
//
// # Error responses
//
// Without a custom ErrorHandler, verification failures are answered with a
// small JSON body. Unauthorised and try-refresh outcomes use the recipe's
// session-expired status code, claim validation failures use the
// invalid-claim status code and include the structured claimValidationErrors
// list, and malformed input answers 400. Token clearing headers set by the
// recipe (expired cookies, emptied token headers) are preserved on the error
// response so frontends converge to a signed-out state.
package middleware
