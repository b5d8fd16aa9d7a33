package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New("info", "json")
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_ConsoleFormat(t *testing.T) {
	logger, err := New("debug", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)
}

func TestNew_InvalidFormat(t *testing.T) {
	_, err := New("info", "xml")
	assert.Error(t, err)
}

func TestTestLogger_ObservesEntries(t *testing.T) {
	tl := NewTestLogger()
	tl.Warn("attachment blocked")
	tl.Info("attachment classified")

	require.Len(t, tl.All(), 2)
	assert.Equal(t, 1, tl.FilterMessage("attachment blocked").Len())
}
