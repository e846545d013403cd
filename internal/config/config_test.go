package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 504, cfg.LookbackDays)
	assert.Equal(t, 0.07, cfg.TargetReturn)
	assert.Equal(t, 0.20, cfg.TargetVolatility)
	assert.Equal(t, 0.97, cfg.VaRConfidence)
	assert.Equal(t, 10000, cfg.Simulations)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, "0 30 17 * * 1-5", cfg.CronSchedule)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TARGET_RETURN", "0.10")
	t.Setenv("MC_SIMULATIONS", "500")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.10, cfg.TargetReturn)
	assert.Equal(t, 500, cfg.Simulations)
	assert.True(t, cfg.LogPretty)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("TARGET_RETURN", "seven percent")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 0.07, cfg.TargetReturn)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.DatabasePath = "" }},
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"lookback too short", func(c *Config) { c.LookbackDays = 1 }},
		{"confidence at one", func(c *Config) { c.VaRConfidence = 1.0 }},
		{"zero volatility target", func(c *Config) { c.TargetVolatility = 0 }},
		{"max weight above one", func(c *Config) { c.MaxWeight = 1.5 }},
		{"no simulations", func(c *Config) { c.Simulations = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
