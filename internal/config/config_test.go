package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DUEL_API_URL", "DUEL_WS_URL", "DUEL_GAME", "DUEL_ACCESS_TOKEN",
		"DUEL_POLL_INTERVAL", "DUEL_LOG_LEVEL", "DUEL_DEV",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, time.Second, cfg.Timing.PollInterval)
	assert.Equal(t, "wordsearch", cfg.Game)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "duel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: https://duel.example/api
ws_url: wss://duel.example/ws
game: boggle
timing:
  poll_interval: 2s
  throttle: 20ms
board:
  cell_size: 40
`), 0o600))

	t.Setenv("DUEL_GAME", "wordsearch")
	t.Setenv("DUEL_POLL_INTERVAL", "250")
	t.Setenv("DUEL_DEV", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://duel.example/api", cfg.APIURL)
	assert.Equal(t, "wss://duel.example/ws", cfg.WSURL)
	assert.Equal(t, "wordsearch", cfg.Game, "env wins over the file")
	assert.Equal(t, 250*time.Millisecond, cfg.Timing.PollInterval)
	assert.Equal(t, 20*time.Millisecond, cfg.Timing.Throttle)
	assert.Equal(t, 100*time.Millisecond, cfg.Timing.ReadyDelay, "unset keys keep defaults")
	assert.Equal(t, 40.0, cfg.Board.CellSize)
	assert.Equal(t, 4.0, cfg.Board.GapSize)
	assert.True(t, cfg.Dev)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("timing: [1, 2"), 0o600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"no api", func(c *Config) { c.APIURL = "" }, "api_url is required"},
		{"no ws", func(c *Config) { c.WSURL = "" }, "ws_url is required"},
		{"zero poll", func(c *Config) { c.Timing.PollInterval = 0 }, "timing.poll_interval must be positive"},
		{"negative throttle", func(c *Config) { c.Timing.Throttle = -time.Millisecond }, "timing.throttle must be positive"},
		{"zero cell", func(c *Config) { c.Board.CellSize = 0 }, "board metrics"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("debug", true)
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = NewLogger("loud", false)
	assert.Error(t, err)
}
