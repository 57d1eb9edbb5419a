package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_BanditProfiles(t *testing.T) {
	cfg := DefaultConfig()
	require.Len(t, cfg.Bandit.Profiles, 4)
	assert.Equal(t, ArmWeights{Urgency: 1, Readiness: 1, Foundation: 1, Influence: 1}, cfg.Bandit.Profiles["balanced"])
	assert.Equal(t, 0.30, cfg.Scheduler.PrereqEnergyThreshold)
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Scheduler, cfg.Scheduler)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("data dir override", func(t *testing.T) {
		t.Setenv("IQRAH_DATA_DIR", "/custom/data")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/custom/data", cfg.DataDir)
	})

	t.Run("debug flag override", func(t *testing.T) {
		t.Setenv("IQRAH_DEBUG", "true")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.True(t, cfg.Logging.DebugMode)
	})

	t.Run("no override when env unset", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "data/content.db", cfg.Content.DatabasePath)
	})
}
