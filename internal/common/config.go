package common

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/storyagent/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment" env:"STORYAGENT_ENV"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Gemini      GeminiConfig  `toml:"gemini"`
	Story       StoryConfig   `toml:"story"`
	Logging     LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" env:"STORYAGENT_SERVER_PORT"`
	Host string `toml:"host" env:"STORYAGENT_SERVER_HOST"`
	// WriteTimeout bounds the synchronous analyze route. The model call can run
	// for several minutes, so this is much longer than a typical API timeout.
	WriteTimeout string `toml:"write_timeout" env:"STORYAGENT_SERVER_WRITE_TIMEOUT"`
}

type StorageConfig struct {
	Type     string         `toml:"type" env:"STORYAGENT_STORAGE_TYPE"` // "badger", "supabase" or "postgres"
	Badger   BadgerConfig   `toml:"badger"`
	Supabase SupabaseConfig `toml:"supabase"`
	Postgres PostgresConfig `toml:"postgres"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" env:"STORYAGENT_BADGER_PATH"`
	ResetOnStartup bool   `toml:"reset_on_startup" env:"STORYAGENT_BADGER_RESET_ON_STARTUP"`
}

// SupabaseConfig points at a Supabase project's PostgREST endpoint
type SupabaseConfig struct {
	URL            string `toml:"url" env:"SUPABASE_URL"`
	ServiceRoleKey string `toml:"service_role_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	Schema         string `toml:"schema" env:"STORYAGENT_SUPABASE_SCHEMA"`
	Timeout        string `toml:"timeout" env:"STORYAGENT_SUPABASE_TIMEOUT"`
}

// PostgresConfig is used when the tables are reached directly over SQL
type PostgresConfig struct {
	DSN         string `toml:"dsn" env:"STORYAGENT_POSTGRES_DSN"`
	AutoMigrate bool   `toml:"auto_migrate" env:"STORYAGENT_POSTGRES_AUTO_MIGRATE"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey    string `toml:"api_key" env:"GEMINI_API_KEY"`
	Model     string `toml:"model" env:"STORYAGENT_GEMINI_MODEL"`       // default: "gemini-3-flash-preview"
	Thinking  string `toml:"thinking" env:"STORYAGENT_GEMINI_THINKING"` // MINIMAL, LOW, MEDIUM, HIGH
	RateLimit string `toml:"rate_limit" env:"STORYAGENT_GEMINI_RATE_LIMIT"`
}

// StoryConfig tunes the story analysis worker
type StoryConfig struct {
	Timezone string `toml:"timezone" env:"STORYAGENT_STORY_TIMEZONE"`
	// RawPreviewLimit bounds how much raw model output is kept in the job log
	// when parsing fails.
	RawPreviewLimit int   `toml:"raw_preview_limit" env:"STORYAGENT_STORY_RAW_PREVIEW_LIMIT"`
	MaxBodyBytes    int64 `toml:"max_body_bytes" env:"STORYAGENT_STORY_MAX_BODY_BYTES"`
	HistoryLimit    int   `toml:"history_limit" env:"STORYAGENT_STORY_HISTORY_LIMIT"`
	// TemplatesDir holds optional prompt overrides (analyze-story.toml)
	TemplatesDir string `toml:"templates_dir" env:"STORYAGENT_STORY_TEMPLATES_DIR"`
	// Workers and QueueSize bound background runs started by POST /api/agent-stories
	Workers         int    `toml:"workers" env:"STORYAGENT_STORY_WORKERS"`
	QueueSize       int    `toml:"queue_size" env:"STORYAGENT_STORY_QUEUE_SIZE"`
	ShutdownTimeout string `toml:"shutdown_timeout" env:"STORYAGENT_STORY_SHUTDOWN_TIMEOUT"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" env:"STORYAGENT_LOG_LEVEL"` // "debug", "info", "warn", "error"
	Output     []string `toml:"output" env:"STORYAGENT_LOG_OUTPUT" envSeparator:","`
	TimeFormat string   `toml:"time_format"`
	Dir        string   `toml:"dir" env:"STORYAGENT_LOG_DIR"`
}

// NewDefaultConfig returns the built-in defaults.
// Only user-facing settings should be exposed in storyagent.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:         8085,
			Host:         "localhost",
			WriteTimeout: "15m",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data/storyagent",
			},
			Supabase: SupabaseConfig{
				Schema:  "public",
				Timeout: "30s",
			},
			Postgres: PostgresConfig{
				AutoMigrate: true,
			},
		},
		Gemini: GeminiConfig{
			Model:     "gemini-3-flash-preview",
			Thinking:  "HIGH",
			RateLimit: "4s",
		},
		Story: StoryConfig{
			Timezone:        "Asia/Jakarta",
			RawPreviewLimit: 500,
			MaxBodyBytes:    1 << 20,
			HistoryLimit:    10,
			Workers:         2,
			QueueSize:       32,
			ShutdownTimeout: "2m",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
			Dir:        "./logs",
		},
	}
}

// LoadDotEnv loads a .env file into the process environment when present.
// Variables that are already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
	}
	if err := godotenv.Load(paths...); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env.
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides declared in env tags.
// Unset variables leave the file/default value in place.
func applyEnvOverrides(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Type) {
	case "", "badger", "supabase", "postgres":
	default:
		return fmt.Errorf("unsupported storage type: %s (expected badger, supabase or postgres)", c.Storage.Type)
	}

	if c.Server.WriteTimeout != "" {
		if _, err := time.ParseDuration(c.Server.WriteTimeout); err != nil {
			return fmt.Errorf("invalid server.write_timeout '%s': %w", c.Server.WriteTimeout, err)
		}
	}

	if c.Gemini.RateLimit != "" {
		if _, err := time.ParseDuration(c.Gemini.RateLimit); err != nil {
			return fmt.Errorf("invalid gemini.rate_limit '%s': %w", c.Gemini.RateLimit, err)
		}
	}

	if c.Story.Workers < 0 || c.Story.QueueSize < 0 {
		return fmt.Errorf("story.workers and story.queue_size must not be negative")
	}

	if c.Story.ShutdownTimeout != "" {
		if _, err := time.ParseDuration(c.Story.ShutdownTimeout); err != nil {
			return fmt.Errorf("invalid story.shutdown_timeout '%s': %w", c.Story.ShutdownTimeout, err)
		}
	}

	if c.Story.RawPreviewLimit < 0 {
		return fmt.Errorf("story.raw_preview_limit must not be negative, got %d", c.Story.RawPreviewLimit)
	}

	return nil
}

// ResolveAPIKey resolves an API key by name with environment variable priority.
// Resolution order: environment variables -> KV store -> config fallback -> error
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key": {"STORYAGENT_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"google_api_key": {"STORYAGENT_GEMINI_API_KEY", "GEMINI_API_KEY"}, // legacy KV key
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDurationOr parses a duration string, returning fallback when empty or invalid
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
