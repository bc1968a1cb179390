package logger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/momentapp/notifier/pkg/logger"
)

func TestConfig_Build(t *testing.T) {
	cfg := logger.DefaultConfig()
	cfg.ServiceName = "notifier"
	cfg.Level = "warn"

	l, err := cfg.Build()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))
}

func TestConfig_BuildFallsBackToInfo(t *testing.T) {
	cfg := logger.DevelopmentConfig()
	cfg.Level = "not-a-level"

	l, err := cfg.Build()
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}

func TestContext_RoundTrip(t *testing.T) {
	base := zaptest.NewLogger(t)
	ctx := logger.WithContext(context.Background(), base)

	assert.Same(t, base, logger.FromContext(ctx))
	assert.NotNil(t, logger.FromContext(context.Background()))
}

func TestContext_WithFields(t *testing.T) {
	base := zaptest.NewLogger(t)
	ctx := logger.WithFields(logger.WithContext(context.Background(), base), zap.String("user_id", "u-1"))

	assert.NotSame(t, base, logger.FromContext(ctx))
	assert.NotNil(t, logger.FromContext(ctx))
}
