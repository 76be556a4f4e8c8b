package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  port: "9000"
  mode: debug
jwt:
  secret: test-secret
ai:
  transport: openai
  api_key: sk-test
chat:
  turns_per_minute: 12
sweeper:
  stale_after: 2h
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "test-secret", cfg.JWT.Secret)
	assert.Equal(t, 12, cfg.Chat.TurnsPerMinute)
	assert.Equal(t, 2*time.Hour, cfg.Sweeper.StaleAfter)
	assert.Equal(t, 10, cfg.Sweeper.IntervalMinutes)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, int64(0), cfg.Chat.MaxMessageBytes)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("AI_TRANSPORT", "websocket")
	t.Setenv("AI_WS_URL", "ws://model.internal/ws")
	t.Setenv("DATABASE_DRIVER", "sqlite")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "websocket", cfg.AI.Transport)
	assert.Equal(t, "ws://model.internal/ws", cfg.AI.WSURL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 0, cfg.Chat.TurnsPerMinute, "turn limiting is off unless configured")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Mode: "debug"},
			JWT:    JWTConfig{Secret: "short"},
			AI:     AIConfig{Transport: "openai", APIKey: "sk-test"},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing secret", func(c *Config) { c.JWT.Secret = "" }},
		{"short secret in release", func(c *Config) { c.Server.Mode = "release" }},
		{"openai without key", func(c *Config) { c.AI.APIKey = "" }},
		{"websocket without url", func(c *Config) { c.AI.Transport = "websocket" }},
		{"unknown transport", func(c *Config) { c.AI.Transport = "carrier-pigeon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
