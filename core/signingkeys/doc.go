// Package signingkeys maintains the set of public keys that access tokens
// are verified against.
//
// Keys rotate forward-only on the core. The cache refreshes from the JWKS
// endpoint (legacy handshake on old cores), with two throttles: a cooldown
// window that suppresses refetch storms, and singleflight coalescing so
// concurrent requests share one in-flight fetch. A caller that lands inside
// the cooldown gets the current, possibly stale, key set — token
// verification escalates cache misses to the core, which also returns fresh
// keys (fed back via SetKeys).
package signingkeys
