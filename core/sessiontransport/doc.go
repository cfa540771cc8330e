// Package sessiontransport decides how session tokens travel between
// client and server: as httpOnly cookies or as custom response headers.
//
// The transport for a request is resolved from configuration
// ("cookie"|"header"|"any") plus the client's st-auth-mode hint. When the
// chosen transport differs from one the client previously used, callers
// must clear tokens on the other transport so no stale duplicate session
// survives — the helpers here emit those clearing instructions but never
// decide when clearing is safe; that policy lives in core/session.
//
// The package also owns the fixed wire contract (cookie and header names)
// and the front token, a redacted base64 JSON mirror of the access token
// that frontend SDKs use for client-side introspection.
package sessiontransport
