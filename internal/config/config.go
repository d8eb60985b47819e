package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultModel is the pretrained speech-to-text model loaded when none is configured.
const DefaultModel = "nvidia/parakeet-tdt-0.6b-v2"

// Supported model backends.
const (
	BackendNeMo = "nemo"
	BackendHTTP = "http"
)

// Config holds the full application configuration.
type Config struct {
	SegmentLengthSec int `env:"TRANSCRIBE_SEGMENT_LENGTH" envDefault:"60"`

	Backend    string `env:"TRANSCRIBE_BACKEND" envDefault:"nemo"`
	ModelName  string `env:"TRANSCRIBE_MODEL" envDefault:"nvidia/parakeet-tdt-0.6b-v2"`
	Device     string `env:"TRANSCRIBE_DEVICE" envDefault:"auto"`
	PythonPath string `env:"TRANSCRIBE_PYTHON" envDefault:"python3"`

	ServerURL       string        `env:"TRANSCRIBE_SERVER_URL" envDefault:"http://localhost:8000"`
	APIKey          string        `env:"TRANSCRIBE_API_KEY"`
	RequestTimeout  time.Duration `env:"TRANSCRIBE_REQUEST_TIMEOUT" envDefault:"10m"`
	RateLimitPerMin int           `env:"TRANSCRIBE_RATE_LIMIT" envDefault:"0"`

	TempDir         string `env:"TRANSCRIBE_TEMP_DIR"`
	ContinueOnError bool   `env:"TRANSCRIBE_CONTINUE_ON_ERROR" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Default returns a Config with hardcoded defaults, ignoring the environment.
func Default() *Config {
	return &Config{
		SegmentLengthSec: 60,
		Backend:          BackendNeMo,
		ModelName:        DefaultModel,
		Device:           "auto",
		PythonPath:       "python3",
		ServerURL:        "http://localhost:8000",
		RequestTimeout:   10 * time.Minute,
		LogLevel:         "info",
	}
}

// Overrides holds CLI flag values that take priority over env vars.
// Nil pointers mean the flag was not set.
type Overrides struct {
	EnvFile          string
	SegmentLengthSec *int
	Backend          *string
	ModelName        *string
	Device           *string
	ServerURL        *string
	TempDir          *string
	ContinueOnError  *bool
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv.Load never overwrites variables already present in the environment.
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if overrides.SegmentLengthSec != nil {
		cfg.SegmentLengthSec = *overrides.SegmentLengthSec
	}
	if overrides.Backend != nil {
		cfg.Backend = *overrides.Backend
	}
	if overrides.ModelName != nil {
		cfg.ModelName = *overrides.ModelName
	}
	if overrides.Device != nil {
		cfg.Device = *overrides.Device
	}
	if overrides.ServerURL != nil {
		cfg.ServerURL = *overrides.ServerURL
	}
	if overrides.TempDir != nil {
		cfg.TempDir = *overrides.TempDir
	}
	if overrides.ContinueOnError != nil {
		cfg.ContinueOnError = *overrides.ContinueOnError
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.Device = strings.ToLower(strings.TrimSpace(cfg.Device))

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.SegmentLengthSec <= 0 {
		return fmt.Errorf("segment length must be a positive number of seconds, got %d", c.SegmentLengthSec)
	}
	switch c.Backend {
	case BackendNeMo, BackendHTTP:
	default:
		return fmt.Errorf("unknown backend %q (supported: %s, %s)", c.Backend, BackendNeMo, BackendHTTP)
	}
	switch c.Device {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("unknown device %q (supported: auto, cpu, cuda)", c.Device)
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name must not be empty")
	}
	if c.RateLimitPerMin < 0 {
		return fmt.Errorf("rate limit must not be negative, got %d", c.RateLimitPerMin)
	}
	return nil
}
