package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/tatianab/storyloom/internal/orchestrator"
)

// Config holds the application configuration.
type Config struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"STORYLOOM_GEMINI_MODEL" envDefault:"gemini-2.5-flash"`

	SaveDir string `env:"STORYLOOM_SAVE_DIR" envDefault:".saves"`
	Store   string `env:"STORYLOOM_STORE" envDefault:"dir"`

	LogLevel string `env:"STORYLOOM_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"STORYLOOM_LOG_FILE"`

	// Seed fixes the random stream; zero draws a fresh seed.
	Seed int64 `env:"STORYLOOM_SEED"`

	MaxActiveThreads int     `env:"STORYLOOM_MAX_ACTIVE_THREADS" envDefault:"6"`
	MaxActiveArcs    int     `env:"STORYLOOM_MAX_ACTIVE_ARCS" envDefault:"3"`
	TensionCeiling   float64 `env:"STORYLOOM_TENSION_CEILING" envDefault:"0.8"`
	StallWaitHours   float64 `env:"STORYLOOM_STALL_WAIT_HOURS" envDefault:"2"`
	StagnantMinutes  float64 `env:"STORYLOOM_STAGNANT_MINUTES" envDefault:"45"`
	ClimaxSpacing    float64 `env:"STORYLOOM_CLIMAX_SPACING_MINUTES" envDefault:"30"`
}

// LoadConfig loads the configuration from environment variables and
// validates it.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the narrative core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxActiveThreads <= 0 {
		errs = append(errs, fmt.Errorf("STORYLOOM_MAX_ACTIVE_THREADS must be positive, got %d", c.MaxActiveThreads))
	}
	if c.MaxActiveArcs <= 0 {
		errs = append(errs, fmt.Errorf("STORYLOOM_MAX_ACTIVE_ARCS must be positive, got %d", c.MaxActiveArcs))
	}
	if c.TensionCeiling <= 0 || c.TensionCeiling > 1 {
		errs = append(errs, fmt.Errorf("STORYLOOM_TENSION_CEILING must be in (0,1], got %g", c.TensionCeiling))
	}
	if c.StallWaitHours <= 0 {
		errs = append(errs, fmt.Errorf("STORYLOOM_STALL_WAIT_HOURS must be positive, got %g", c.StallWaitHours))
	}
	if c.StagnantMinutes <= 0 {
		errs = append(errs, fmt.Errorf("STORYLOOM_STAGNANT_MINUTES must be positive, got %g", c.StagnantMinutes))
	}
	if c.ClimaxSpacing <= 0 {
		errs = append(errs, fmt.Errorf("STORYLOOM_CLIMAX_SPACING_MINUTES must be positive, got %g", c.ClimaxSpacing))
	}
	switch c.Store {
	case "dir", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("STORYLOOM_STORE must be dir or sqlite, got %q", c.Store))
	}
	return errors.Join(errs...)
}

// HasGemini reports whether an API key is configured.
func (c *Config) HasGemini() bool {
	return c.GeminiAPIKey != ""
}

// StorePath is the directory or database file sessions are saved in.
func (c *Config) StorePath() string {
	if c.Store == "sqlite" {
		return filepath.Join(c.SaveDir, "sessions.db")
	}
	return c.SaveDir
}

// Orchestrator maps the settings onto the orchestrator configuration.
func (c *Config) Orchestrator(seed int64) orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.Seed = seed
	cfg.Threads.MaxActive = c.MaxActiveThreads
	cfg.Threads.StallWait = c.StallWaitHours
	cfg.Tension.Ceiling = c.TensionCeiling
	cfg.Rules.StagnantMinutes = c.StagnantMinutes
	cfg.Rules.GlobalTensionAlarm = c.TensionCeiling
	cfg.MaxActiveArcs = c.MaxActiveArcs
	cfg.ClimaxSpacing = c.ClimaxSpacing / 60
	return cfg
}
