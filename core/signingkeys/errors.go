package signingkeys

import "errors"

var (
	// ErrNoKeys is returned when the cache is empty and no keys could be
	// obtained from the core.
	ErrNoKeys = errors.New("signingkeys: no signing keys available")

	// ErrFetchFailed is returned when a key fetch round-trip failed. The
	// underlying cause is joined onto it.
	ErrFetchFailed = errors.New("signingkeys: key fetch failed")
)
