package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8083", cfg.Server.Port)
	assert.Equal(t, "*", cfg.Server.AllowedOrigin)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.False(t, cfg.Server.DebugRoutes)
	assert.NotEmpty(t, cfg.Database.URL)
	assert.Equal(t, time.Hour, cfg.Token.TTL)
	assert.Equal(t, "chatrelay.events", cfg.AMQP.Exchange)
	assert.Empty(t, cfg.AMQP.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Roster.Debounce)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("TOKEN_SECRET", "super-secret")
	t.Setenv("TOKEN_TTL", "15m")
	t.Setenv("ROSTER_DEBOUNCE", "1s")
	t.Setenv("DEBUG_ROUTES", "true")

	cfg := Load()

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, []byte("super-secret"), cfg.Token.Secret)
	assert.Equal(t, 15*time.Minute, cfg.Token.TTL)
	assert.Equal(t, time.Second, cfg.Roster.Debounce)
	assert.True(t, cfg.Server.DebugRoutes)
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("TOKEN_TTL", "soon")

	cfg := Load()

	assert.Equal(t, time.Hour, cfg.Token.TTL)
}
