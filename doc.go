// Package sessiongate is a backend SDK that delegates durable session state
// to a remote auth core service while verifying signed access tokens locally
// against a rotating set of public signing keys.
//
// # Package Organization
//
//   - pkg/jwt: structural JWT parsing and RS256 signature verification
//   - pkg/logger: slog attribute helpers shared by all packages
//   - core/querier: HTTP client for the remote core (multi-host, API-key auth)
//   - core/signingkeys: process-wide cache of public signing keys
//   - core/claims: typed session claims and their validators
//   - core/request: framework-facing request/response abstraction
//   - core/sessiontransport: cookie vs header token delivery
//   - core/session: session lifecycle (create, verify, refresh, revoke)
//   - middleware: net/http middleware built on core/session
//
// The root package only holds the small shared types every layer needs, such
// as UserContext.
package sessiongate
