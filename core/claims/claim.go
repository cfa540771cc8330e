package claims

import (
	"context"

	"github.com/dmitrymomot/sessiongate"
)

// ValidationResult is the outcome of running one validator against an
// access-token payload.
type ValidationResult struct {
	IsValid bool
	// Reason carries structured context for the client (expected value,
	// actual value, age). Present only on failure.
	Reason map[string]any
}

// ValidationError identifies one failed validator. A session-level claim
// failure response carries the full list so the frontend can react per
// claim instead of treating it as a generic auth error.
type ValidationError struct {
	ID     string         `json:"id"`
	Reason map[string]any `json:"reason,omitempty"`
}

// Validator is the contract every claim check implements. The active
// validator set for a session is composed by the caller — typically the
// union contributed by all enabled product features.
type Validator interface {
	// ID identifies the validator in failure lists. Defaults to the claim
	// key for claim-backed validators.
	ID() string

	// ShouldRefetch reports whether the claim value must be fetched again
	// before Validate can give a meaningful answer.
	ShouldRefetch(payload map[string]any, uctx sessiongate.UserContext) bool

	// Validate checks the payload. It must not perform I/O.
	Validate(payload map[string]any, uctx sessiongate.UserContext) ValidationResult

	// Refetch fetches a fresh claim value and returns the payload fragment
	// to merge. The bool is false when the fetch yielded no value.
	Refetch(ctx context.Context, userID, recipeUserID, tenantID string, uctx sessiongate.UserContext) (map[string]any, bool, error)
}
