package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	APIURL      string `yaml:"api_url"`
	WSURL       string `yaml:"ws_url"`
	Game        string `yaml:"game"`
	AccessToken string `yaml:"access_token"`

	LogLevel string `yaml:"log_level"`
	Dev      bool   `yaml:"dev"`

	Timing Timing `yaml:"timing"`
	Board  Board  `yaml:"board"`
}

type Timing struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Throttle     time.Duration `yaml:"throttle"`
	ReadyDelay   time.Duration `yaml:"ready_delay"`
	HandoffDelay time.Duration `yaml:"handoff_delay"`
	TimerRefresh time.Duration `yaml:"timer_refresh"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Board struct {
	CellSize      float64 `yaml:"cell_size"`
	GapSize       float64 `yaml:"gap_size"`
	LineThickness float64 `yaml:"line_thickness"`
}

func Default() Config {
	return Config{
		APIURL:   "http://localhost:8000/api",
		WSURL:    "ws://localhost:8000/ws",
		Game:     "wordsearch",
		LogLevel: "info",
		Timing: Timing{
			PollInterval: time.Second,
			Throttle:     50 * time.Millisecond,
			ReadyDelay:   100 * time.Millisecond,
			HandoffDelay: 500 * time.Millisecond,
			TimerRefresh: 100 * time.Millisecond,
			HTTPTimeout:  10 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Board: Board{CellSize: 50, GapSize: 4, LineThickness: 30},
	}
}

// Load layers defaults, an optional .env, an optional YAML file and finally
// DUEL_* environment variables. An empty path skips the file.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.APIURL = getEnv("DUEL_API_URL", cfg.APIURL)
	cfg.WSURL = getEnv("DUEL_WS_URL", cfg.WSURL)
	cfg.Game = getEnv("DUEL_GAME", cfg.Game)
	cfg.AccessToken = getEnv("DUEL_ACCESS_TOKEN", cfg.AccessToken)
	cfg.LogLevel = getEnv("DUEL_LOG_LEVEL", cfg.LogLevel)
	cfg.Dev = getEnvAsBool("DUEL_DEV", cfg.Dev)
	cfg.Timing.PollInterval = getEnvAsDuration("DUEL_POLL_INTERVAL", cfg.Timing.PollInterval)

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var err error
	if c.APIURL == "" {
		err = multierr.Append(err, errors.New("api_url is required"))
	}
	if c.WSURL == "" {
		err = multierr.Append(err, errors.New("ws_url is required"))
	}
	if c.Game == "" {
		err = multierr.Append(err, errors.New("game is required"))
	}
	for name, d := range map[string]time.Duration{
		"poll_interval": c.Timing.PollInterval,
		"throttle":      c.Timing.Throttle,
		"ready_delay":   c.Timing.ReadyDelay,
		"handoff_delay": c.Timing.HandoffDelay,
		"timer_refresh": c.Timing.TimerRefresh,
		"http_timeout":  c.Timing.HTTPTimeout,
		"write_timeout": c.Timing.WriteTimeout,
	} {
		if d <= 0 {
			err = multierr.Append(err, fmt.Errorf("timing.%s must be positive", name))
		}
	}
	if c.Board.CellSize <= 0 || c.Board.GapSize < 0 || c.Board.LineThickness <= 0 {
		err = multierr.Append(err, errors.New("board metrics must be positive"))
	}
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NewLogger builds the process logger. dev switches to the console encoder.
func NewLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// Accepts "1500ms" style durations or a bare number of milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
