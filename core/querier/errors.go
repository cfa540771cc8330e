package querier

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHosts indicates the connection URI resolved to zero usable hosts.
	ErrNoHosts = errors.New("querier: no core hosts configured")

	// ErrCoreUnavailable indicates every configured host failed at the
	// network level. The last transport error is joined onto it.
	ErrCoreUnavailable = errors.New("querier: all core hosts unreachable")
)

// UnexpectedStatusError is returned when a reachable core answers with a
// non-2xx status. It is not retried against other hosts.
type UnexpectedStatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("querier: core responded with status %d: %s", e.StatusCode, e.Body)
}
