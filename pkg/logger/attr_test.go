package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessiongate/pkg/logger"
)

func TestGroup(t *testing.T) {
	t.Parallel()

	attr := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "req", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestError(t *testing.T) {
	t.Parallel()

	t.Run("nil error yields empty attr", func(t *testing.T) {
		t.Parallel()
		attr := logger.Error(nil)
		assert.Empty(t, attr.Key)
	})

	t.Run("non-nil error", func(t *testing.T) {
		t.Parallel()
		err := errors.New("boom")
		attr := logger.Error(err)
		require.Equal(t, "error", attr.Key)
		assert.Equal(t, err, attr.Value.Any())
	})
}

func TestEmptyValueHelpers(t *testing.T) {
	t.Parallel()

	assert.Empty(t, logger.SessionHandle("").Key)
	assert.Empty(t, logger.UserID("").Key)
	assert.Empty(t, logger.TenantID("").Key)
	assert.Empty(t, logger.Host("").Key)

	assert.Equal(t, "session_handle", logger.SessionHandle("h1").Key)
	assert.Equal(t, "user_id", logger.UserID("u1").Key)
	assert.Equal(t, "tenant_id", logger.TenantID("public").Key)
	assert.Equal(t, "host", logger.Host("http://localhost:3567").Key)
}

func TestTimingHelpers(t *testing.T) {
	t.Parallel()

	attr := logger.Duration(2 * time.Second)
	require.Equal(t, "duration", attr.Key)
	assert.Equal(t, 2*time.Second, attr.Value.Duration())

	elapsed := logger.Elapsed(time.Now().Add(-time.Second))
	require.Equal(t, "elapsed", elapsed.Key)
	assert.GreaterOrEqual(t, elapsed.Value.Duration(), time.Second)
}
