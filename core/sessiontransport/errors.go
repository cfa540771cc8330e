package sessiontransport

import "errors"

var (
	// ErrInsecureSameSiteNone indicates cookie transport was configured
	// with SameSite=None but without Secure, outside localhost development.
	ErrInsecureSameSiteNone = errors.New("sessiontransport: SameSite=None cookies require Secure except on localhost")
)
