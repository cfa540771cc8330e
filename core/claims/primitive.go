package claims

import (
	"context"
	"time"

	"github.com/dmitrymomot/sessiongate"
)

// FetchValueFunc retrieves the current claim value for a user, e.g. from a
// product database. The bool result is false when no value exists.
type FetchValueFunc[T comparable] func(ctx context.Context, userID, recipeUserID, tenantID string, uctx sessiongate.UserContext) (T, bool, error)

// PrimitiveClaim is a named, typed claim stored in the access-token payload
// under the shape {key: {"v": value, "t": fetchedAtMillis}}.
//
// Note on types: payloads round-trip through JSON, so numeric claims should
// use float64 to survive re-parsing.
type PrimitiveClaim[T comparable] struct {
	// Key is the payload key the claim lives under.
	Key string

	// FetchValue retrieves a fresh value. Optional: claims that are only
	// written explicitly may leave it nil, in which case Refetch reports
	// no value.
	FetchValue FetchValueFunc[T]
}

// NewPrimitiveClaim creates a typed claim with the given payload key.
func NewPrimitiveClaim[T comparable](key string, fetch FetchValueFunc[T]) *PrimitiveClaim[T] {
	return &PrimitiveClaim[T]{Key: key, FetchValue: fetch}
}

// AddToPayload returns a copy of payload with the claim set to value,
// stamped with the given fetch time.
func (c *PrimitiveClaim[T]) AddToPayload(payload map[string]any, value T, at time.Time) map[string]any {
	next := clonePayload(payload)
	next[c.Key] = map[string]any{
		"v": value,
		"t": at.UnixMilli(),
	}
	return next
}

// RemoveFromPayload returns a copy of payload without the claim.
func (c *PrimitiveClaim[T]) RemoveFromPayload(payload map[string]any) map[string]any {
	next := clonePayload(payload)
	delete(next, c.Key)
	return next
}

// GetValueFromPayload extracts the claim value, if present and of the
// claim's type.
func (c *PrimitiveClaim[T]) GetValueFromPayload(payload map[string]any) (T, bool) {
	var zero T

	entry, ok := payload[c.Key].(map[string]any)
	if !ok {
		return zero, false
	}
	value, ok := entry["v"].(T)
	if !ok {
		return zero, false
	}
	return value, true
}

// GetLastRefetchTime returns when the claim value was last fetched.
func (c *PrimitiveClaim[T]) GetLastRefetchTime(payload map[string]any) (time.Time, bool) {
	entry, ok := payload[c.Key].(map[string]any)
	if !ok {
		return time.Time{}, false
	}

	switch t := entry["t"].(type) {
	case int64:
		return time.UnixMilli(t), true
	case float64: // JSON round-trip
		return time.UnixMilli(int64(t)), true
	default:
		return time.Time{}, false
	}
}

// Build fetches a fresh value and returns the payload fragment to merge.
// The bool is false when no value exists for the user.
func (c *PrimitiveClaim[T]) Build(ctx context.Context, userID, recipeUserID, tenantID string, uctx sessiongate.UserContext) (map[string]any, bool, error) {
	if c.FetchValue == nil {
		return nil, false, nil
	}

	value, ok, err := c.FetchValue(ctx, userID, recipeUserID, tenantID, uctx)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	return c.AddToPayload(map[string]any{}, value, time.Now()), true, nil
}

// HasValue returns a validator requiring the claim to equal expected.
// ShouldRefetch triggers only when the value is missing.
func (c *PrimitiveClaim[T]) HasValue(expected T) Validator {
	return &primitiveValidator[T]{claim: c, expected: expected}
}

// HasFreshValue returns a validator requiring the claim to equal expected
// and to have been fetched within maxAge. ShouldRefetch triggers when the
// value is missing or older than maxAge.
func (c *PrimitiveClaim[T]) HasFreshValue(expected T, maxAge time.Duration) Validator {
	return &primitiveValidator[T]{claim: c, expected: expected, maxAge: maxAge}
}

type primitiveValidator[T comparable] struct {
	claim    *PrimitiveClaim[T]
	expected T
	maxAge   time.Duration // zero means no freshness requirement
}

func (v *primitiveValidator[T]) ID() string {
	return v.claim.Key
}

func (v *primitiveValidator[T]) ShouldRefetch(payload map[string]any, _ sessiongate.UserContext) bool {
	if _, ok := v.claim.GetValueFromPayload(payload); !ok {
		return true
	}
	if v.maxAge > 0 {
		fetchedAt, ok := v.claim.GetLastRefetchTime(payload)
		if !ok || time.Since(fetchedAt) > v.maxAge {
			return true
		}
	}
	return false
}

func (v *primitiveValidator[T]) Validate(payload map[string]any, _ sessiongate.UserContext) ValidationResult {
	actual, ok := v.claim.GetValueFromPayload(payload)
	if !ok {
		return ValidationResult{
			IsValid: false,
			Reason: map[string]any{
				"message":       "value does not exist",
				"expectedValue": v.expected,
			},
		}
	}

	if v.maxAge > 0 {
		fetchedAt, ok := v.claim.GetLastRefetchTime(payload)
		if !ok || time.Since(fetchedAt) > v.maxAge {
			age := time.Duration(0)
			if ok {
				age = time.Since(fetchedAt)
			}
			return ValidationResult{
				IsValid: false,
				Reason: map[string]any{
					"message":         "expired",
					"ageInSeconds":    int64(age.Seconds()),
					"maxAgeInSeconds": int64(v.maxAge.Seconds()),
				},
			}
		}
	}

	if actual != v.expected {
		return ValidationResult{
			IsValid: false,
			Reason: map[string]any{
				"message":       "wrong value",
				"expectedValue": v.expected,
				"actualValue":   actual,
			},
		}
	}

	return ValidationResult{IsValid: true}
}

func (v *primitiveValidator[T]) Refetch(ctx context.Context, userID, recipeUserID, tenantID string, uctx sessiongate.UserContext) (map[string]any, bool, error) {
	return v.claim.Build(ctx, userID, recipeUserID, tenantID, uctx)
}

func clonePayload(payload map[string]any) map[string]any {
	next := make(map[string]any, len(payload)+1)
	for k, val := range payload {
		next[k] = val
	}
	return next
}
