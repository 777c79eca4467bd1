package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// ServerConfig holds HTTP server settings. WriteTimeout stays 0 by default so
// SSE streams are not cut off.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"HOST"                    env-default:""`
	Port            int           `yaml:"port"             env:"PORT"                    env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"0s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// GeminiConfig selects the AI backend. A project ID selects Vertex AI, an
// API key selects the Gemini API; with neither, AI features are disabled.
type GeminiConfig struct {
	ProjectID string        `yaml:"project_id" env:"GCP_PROJECT_ID"`
	Region    string        `yaml:"region"     env:"GCP_REGION"     env-default:"europe-west1"`
	APIKey    string        `yaml:"api_key"    env:"GEMINI_API_KEY"`
	Model     string        `yaml:"model"      env:"GEMINI_MODEL"   env-default:"gemini-2.5-flash"`
	Attempts  uint          `yaml:"attempts"   env:"GEMINI_ATTEMPTS" env-default:"3"`
	Timeout   time.Duration `yaml:"timeout"    env:"GEMINI_TIMEOUT"  env-default:"60s"`
}

// Enabled reports whether any backend is configured.
func (c GeminiConfig) Enabled() bool {
	return c.ProjectID != "" || c.APIKey != ""
}

// DatabaseConfig holds PostgreSQL settings. An empty DSN keeps everything in
// memory.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"10"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	Issuer    string `yaml:"issuer"     env:"AUTH_JWT_ISSUER"`
	Required  bool   `yaml:"required"   env:"AUTH_REQUIRED" env-default:"false"`
}

// LimitsConfig holds per-IP request budgets and how long an untouched
// puzzle is kept.
type LimitsConfig struct {
	AIPerMinute      int           `yaml:"ai_per_minute"      env:"LIMIT_AI_PER_MINUTE"      env-default:"10"`
	CellsPerSecond   int           `yaml:"cells_per_second"   env:"LIMIT_CELLS_PER_SECOND"   env-default:"30"`
	PuzzlesPerMinute int           `yaml:"puzzles_per_minute" env:"LIMIT_PUZZLES_PER_MINUTE" env-default:"20"`
	PuzzleIdleTTL    time.Duration `yaml:"puzzle_idle_ttl"    env:"LIMIT_PUZZLE_IDLE_TTL"    env-default:"2h"`
}

// LoadConfig reads an optional YAML file and the environment.
// Priority: ENV > YAML > defaults. The file is CONFIG_PATH, or ./config.yaml
// when present.
func LoadConfig() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = "./config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Auth.Required && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 characters when auth is required"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want json or console", c.Log.Format))
	}
	if c.Gemini.Attempts == 0 {
		errs = append(errs, errors.New("gemini.attempts must be positive"))
	}
	if c.Limits.AIPerMinute <= 0 || c.Limits.CellsPerSecond <= 0 || c.Limits.PuzzlesPerMinute <= 0 || c.Limits.PuzzleIdleTTL <= 0 {
		errs = append(errs, errors.New("limits must be positive"))
	}
	if c.Database.DSN != "" && c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, errors.New("database.min_conns exceeds max_conns"))
	}
	return errors.Join(errs...)
}
