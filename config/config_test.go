package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("COMPLETION_THRESHOLD_PERCENT", "")
	t.Setenv("LEAD_SESSION_TTL_HOURS", "")
	t.Setenv("PUBLIC_APP_URL", "https://watch.example.com/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90.0, cfg.Tracking.CompletionThreshold)
	assert.Equal(t, 10, cfg.Tracking.WatchTimeQuantum)
	assert.Equal(t, 30*24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "https://watch.example.com", cfg.Server.PublicAppURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COMPLETION_THRESHOLD_PERCENT", "80.5")
	t.Setenv("WATCH_TIME_QUANTUM_SEC", "15")
	t.Setenv("LEAD_SESSION_SECURE", "true")
	t.Setenv("RATE_LIMIT_WINDOW_SEC", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 80.5, cfg.Tracking.CompletionThreshold)
	assert.Equal(t, 15, cfg.Tracking.WatchTimeQuantum)
	assert.True(t, cfg.Session.Secure)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window, "unparsable values fall back")
}

func TestLoadRejectsBadThreshold(t *testing.T) {
	for _, v := range []string{"0", "-5", "101"} {
		t.Setenv("COMPLETION_THRESHOLD_PERCENT", v)
		_, err := Load()
		assert.Error(t, err, v)
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "funnel", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/funnel?sslmode=disable", c.DSN())

	c.URL = "postgres://elsewhere/x"
	assert.Equal(t, "postgres://elsewhere/x", c.DSN())
}
