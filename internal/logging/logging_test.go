package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.log")
	logger, err := New("debug", path)
	require.NoError(t, err)

	logger.Debug("tick", zap.Float64("now", 1.5))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"tick"`)
	assert.Contains(t, string(data), `"now":1.5`)
}

func TestNewLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.log")
	logger, err := New("warn", path)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))

	_, err = New("chatty", "")
	assert.Error(t, err)
}
