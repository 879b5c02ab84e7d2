package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse("gateway", nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9664", cfg.Bind)
	assert.Equal(t, "redis://127.0.0.1/", cfg.RedisURI)
	assert.Equal(t, "mongodb://127.0.0.1/", cfg.MongoURI)
	assert.Equal(t, 40000, cfg.MaxConnections)
	assert.Equal(t, 40, cfg.RateLimiterCredits)
	assert.False(t, cfg.Development)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse("gateway", []string{
		"--bind", "0.0.0.0:9000",
		"--redis", "redis://broker/",
		"--max-connections", "100",
		"--rate-limiter-credits", "5",
		"--dev",
	})
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Bind)
	assert.Equal(t, "redis://broker/", cfg.RedisURI)
	assert.Equal(t, 100, cfg.MaxConnections)
	assert.Equal(t, 5, cfg.RateLimiterCredits)
	assert.True(t, cfg.Development)
}

func TestParseRejectsBadValues(t *testing.T) {
	_, err := Parse("gateway", []string{"--max-connections", "0"})
	assert.Error(t, err)

	_, err = Parse("gateway", []string{"--rate-limiter-credits", "-1"})
	assert.Error(t, err)

	_, err = Parse("gateway", []string{"--no-such-flag"})
	assert.Error(t, err)
}
