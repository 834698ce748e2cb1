package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_CookieSecure(t *testing.T) {
	t.Run("secure by default", func(t *testing.T) {
		cfg := Load()
		assert.True(t, cfg.CookieSecure)
	})

	t.Run("disabled for local development", func(t *testing.T) {
		t.Setenv("COOKIE_SECURE", "false")
		cfg := Load()
		assert.False(t, cfg.CookieSecure)
	})
}
