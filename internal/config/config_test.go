package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.HasGemini())
	assert.Equal(t, ".saves", cfg.SaveDir)
	assert.Equal(t, "dir", cfg.Store)
	assert.Equal(t, ".saves", cfg.StorePath())
	assert.Equal(t, 6, cfg.MaxActiveThreads)
	assert.Equal(t, 0.8, cfg.TensionCeiling)
	assert.Zero(t, cfg.Seed)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("STORYLOOM_STORE", "sqlite")
	t.Setenv("STORYLOOM_SAVE_DIR", "/tmp/loom")
	t.Setenv("STORYLOOM_SEED", "42")
	t.Setenv("STORYLOOM_MAX_ACTIVE_THREADS", "4")
	t.Setenv("STORYLOOM_CLIMAX_SPACING_MINUTES", "45")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.HasGemini())
	assert.Equal(t, "/tmp/loom/sessions.db", cfg.StorePath())
	assert.Equal(t, int64(42), cfg.Seed)

	oc := cfg.Orchestrator(cfg.Seed)
	assert.Equal(t, 4, oc.Threads.MaxActive)
	assert.Equal(t, 0.75, oc.ClimaxSpacing)
	assert.Equal(t, int64(42), oc.Seed)
	assert.Equal(t, 45.0, oc.Rules.StagnantMinutes)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("STORYLOOM_MAX_ACTIVE_THREADS", "0")
	t.Setenv("STORYLOOM_TENSION_CEILING", "1.5")
	t.Setenv("STORYLOOM_STORE", "postgres")

	_, err := LoadConfig()
	require.Error(t, err)
	for _, want := range []string{"MAX_ACTIVE_THREADS", "TENSION_CEILING", "STORYLOOM_STORE"} {
		assert.True(t, strings.Contains(err.Error(), want), "missing %s in %v", want, err)
	}
}

func TestLoadConfigParseError(t *testing.T) {
	t.Setenv("STORYLOOM_SEED", "not-a-number")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}
