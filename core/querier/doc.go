// Package querier is the HTTP client for the remote auth core.
//
// It speaks JSON over one or more configured base URLs with API-key auth.
// Responses are returned as raw maps so that callers can strip
// transport-internal fields before mapping to typed results. Host fallback
// is sequential and only on network failure — a non-2xx answer from a live
// core is final, and the SDK never retries a completed call.
package querier
