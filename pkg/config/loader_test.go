package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aion-systems/aion-core/pkg/config"
	"github.com/aion-systems/aion-core/pkg/model"
)

func TestInitializeWithoutEnvReturnsDefaults(t *testing.T) {
	t.Setenv(config.EnvFile, "")
	cfg, err := config.Initialize()
	require.NoError(t, err)
	assert.Equal(t, config.Defaults().FallbackThresholdPct, cfg.FallbackThresholdPct)
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
token:
  primary:
    monthly_cap: 99000
  fallback_threshold: 0.9
cadence:
  imperium:
    minutes: 45
custody:
  pass_threshold:
    security: 80
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(99000), cfg.Providers[model.Primary].MonthlyCap)
	assert.Equal(t, 0.9, cfg.FallbackThresholdPct)
	assert.Equal(t, float64(80), cfg.PassThresholdFor(model.CategorySecurity))
	// unspecified fields keep their Defaults() values.
	assert.Equal(t, config.Defaults().Providers[model.Secondary].MonthlyCap, cfg.Providers[model.Secondary].MonthlyCap)
}

func TestManagerUpdateIsAtomic(t *testing.T) {
	m := config.NewManager(config.Defaults())
	before := m.Get()

	m.Update(func(c *config.Config) {
		c.FallbackThresholdPct = 0.5
	})

	assert.Equal(t, 0.95, before.FallbackThresholdPct, "prior snapshot must not mutate")
	assert.Equal(t, 0.5, m.Get().FallbackThresholdPct)
}
