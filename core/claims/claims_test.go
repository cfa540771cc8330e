package claims_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessiongate"
	"github.com/dmitrymomot/sessiongate/core/claims"
)

func TestPrimitiveClaimRoundTrip(t *testing.T) {
	t.Parallel()

	claim := claims.NewPrimitiveClaim[string]("role", nil)

	t.Run("add then get returns the value", func(t *testing.T) {
		t.Parallel()

		payload := claim.AddToPayload(map[string]any{"other": 1}, "admin", time.Now())
		v, ok := claim.GetValueFromPayload(payload)
		require.True(t, ok)
		assert.Equal(t, "admin", v)
		assert.Equal(t, 1, payload["other"])
	})

	t.Run("remove after add yields no value", func(t *testing.T) {
		t.Parallel()

		payload := claim.AddToPayload(map[string]any{}, "admin", time.Now())
		payload = claim.RemoveFromPayload(payload)
		_, ok := claim.GetValueFromPayload(payload)
		assert.False(t, ok)
	})

	t.Run("source payload is not mutated", func(t *testing.T) {
		t.Parallel()

		src := map[string]any{}
		_ = claim.AddToPayload(src, "admin", time.Now())
		assert.Empty(t, src)
	})

	t.Run("survives JSON round-trip", func(t *testing.T) {
		t.Parallel()

		now := time.Now()
		payload := claim.AddToPayload(map[string]any{}, "admin", now)

		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))

		v, ok := claim.GetValueFromPayload(decoded)
		require.True(t, ok)
		assert.Equal(t, "admin", v)

		fetchedAt, ok := claim.GetLastRefetchTime(decoded)
		require.True(t, ok)
		assert.Equal(t, now.UnixMilli(), fetchedAt.UnixMilli())
	})
}

func TestHasValue(t *testing.T) {
	t.Parallel()

	claim := claims.NewPrimitiveClaim[string]("role", nil)
	validator := claim.HasValue("admin")

	t.Run("id defaults to claim key", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "role", validator.ID())
	})

	t.Run("missing value is invalid and wants refetch", func(t *testing.T) {
		t.Parallel()

		payload := map[string]any{}
		assert.True(t, validator.ShouldRefetch(payload, nil))

		res := validator.Validate(payload, nil)
		require.False(t, res.IsValid)
		assert.Equal(t, "value does not exist", res.Reason["message"])
	})

	t.Run("wrong value is invalid but no refetch", func(t *testing.T) {
		t.Parallel()

		payload := claim.AddToPayload(map[string]any{}, "viewer", time.Now())
		assert.False(t, validator.ShouldRefetch(payload, nil))

		res := validator.Validate(payload, nil)
		require.False(t, res.IsValid)
		assert.Equal(t, "wrong value", res.Reason["message"])
		assert.Equal(t, "admin", res.Reason["expectedValue"])
		assert.Equal(t, "viewer", res.Reason["actualValue"])
	})

	t.Run("matching value is valid", func(t *testing.T) {
		t.Parallel()

		payload := claim.AddToPayload(map[string]any{}, "admin", time.Now())
		res := validator.Validate(payload, nil)
		assert.True(t, res.IsValid)
	})
}

func TestHasFreshValue(t *testing.T) {
	t.Parallel()

	claim := claims.NewPrimitiveClaim[string]("role", nil)
	validator := claim.HasFreshValue("admin", 10*time.Minute)

	t.Run("fresh matching value is valid", func(t *testing.T) {
		t.Parallel()

		payload := claim.AddToPayload(map[string]any{}, "admin", time.Now())
		assert.False(t, validator.ShouldRefetch(payload, nil))
		assert.True(t, validator.Validate(payload, nil).IsValid)
	})

	t.Run("stale value is invalid and wants refetch", func(t *testing.T) {
		t.Parallel()

		payload := claim.AddToPayload(map[string]any{}, "admin", time.Now().Add(-time.Hour))
		assert.True(t, validator.ShouldRefetch(payload, nil))

		res := validator.Validate(payload, nil)
		require.False(t, res.IsValid)
		assert.Equal(t, "expired", res.Reason["message"])
		assert.Equal(t, int64(600), res.Reason["maxAgeInSeconds"])
	})
}

func TestBuildAndRefetch(t *testing.T) {
	t.Parallel()

	t.Run("fetch success produces fragment", func(t *testing.T) {
		t.Parallel()

		claim := claims.NewBoolClaim("2fa-completed", func(ctx context.Context, userID, recipeUserID, tenantID string, uctx sessiongate.UserContext) (bool, bool, error) {
			assert.Equal(t, "u1", userID)
			assert.Equal(t, "t1", tenantID)
			return true, true, nil
		})

		fragment, ok, err := claim.Build(context.Background(), "u1", "u1", "t1", nil)
		require.NoError(t, err)
		require.True(t, ok)

		v, found := claim.GetValueFromPayload(fragment)
		require.True(t, found)
		assert.True(t, v)
	})

	t.Run("no value means no fragment", func(t *testing.T) {
		t.Parallel()

		claim := claims.NewBoolClaim("2fa-completed", func(context.Context, string, string, string, sessiongate.UserContext) (bool, bool, error) {
			return false, false, nil
		})

		_, ok, err := claim.Build(context.Background(), "u1", "u1", "t1", nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("fetch error propagates", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("db down")
		claim := claims.NewBoolClaim("2fa-completed", func(context.Context, string, string, string, sessiongate.UserContext) (bool, bool, error) {
			return false, false, wantErr
		})

		_, _, err := claim.IsTrue().Refetch(context.Background(), "u1", "u1", "t1", nil)
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("nil fetch yields no value", func(t *testing.T) {
		t.Parallel()

		claim := claims.NewPrimitiveClaim[string]("role", nil)
		_, ok, err := claim.Build(context.Background(), "u1", "u1", "t1", nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestBoolClaimValidators(t *testing.T) {
	t.Parallel()

	claim := claims.NewBoolClaim("2fa-completed", nil)
	payload := claim.AddToPayload(map[string]any{}, false, time.Now())

	assert.False(t, claim.IsTrue().Validate(payload, nil).IsValid)
	assert.True(t, claim.IsFalse().Validate(payload, nil).IsValid)
}
