// Package config loads askdb settings from a YAML file, a .env file and the
// environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	APIKey   string `yaml:"-"`
	Model    string `yaml:"model" validate:"required"`
	MaxSteps int    `yaml:"max_steps" validate:"min=1,max=200"`
	MaxRows  int    `yaml:"max_rows" validate:"min=1"`
	DataDir  string `yaml:"data_dir" validate:"required"`
	LogFile  string `yaml:"log_file"`

	Nouns      NounsConfig      `yaml:"nouns"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Plot       PlotConfig       `yaml:"plot"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
	Server     ServerConfig     `yaml:"server"`
}

// NounsConfig controls the proper-noun index.
type NounsConfig struct {
	Enabled      bool `yaml:"enabled"`
	K            int  `yaml:"k" validate:"min=1,max=50"`
	StripNumbers bool `yaml:"strip_numbers"`
	BatchSize    int  `yaml:"batch_size" validate:"min=1"`
	Concurrency  int  `yaml:"concurrency" validate:"min=1,max=32"`
}

// EmbeddingsConfig selects the embedding backend for the index.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider" validate:"oneof=ollama openai voyageai"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url" validate:"omitempty,url"`
	APIKey   string `yaml:"-"`
}

// PlotConfig controls chart generation.
type PlotConfig struct {
	DataTokens int `yaml:"data_tokens" validate:"min=100"`
}

// SandboxConfig selects where chart code runs.
type SandboxConfig struct {
	Kind        string        `yaml:"kind" validate:"oneof=subprocess remote"`
	Interpreter string        `yaml:"interpreter"`
	URL         string        `yaml:"url" validate:"omitempty,url"`
	Timeout     time.Duration `yaml:"timeout" validate:"min=1s"`
	MaxOutput   int64         `yaml:"max_output" validate:"min=1024"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr           string        `yaml:"addr" validate:"required"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"min=1s"`
	RateLimit      float64       `yaml:"rate_limit" validate:"gt=0"`
	RateBurst      int           `yaml:"rate_burst" validate:"min=1"`
	DatabaseTTL    time.Duration `yaml:"database_ttl" validate:"min=1m"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" validate:"min=1024"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model:    "claude-haiku-4-5",
		MaxSteps: 25,
		MaxRows:  200,
		DataDir:  "data",
		LogFile:  "askdb.log",
		Nouns: NounsConfig{
			Enabled:      true,
			K:            5,
			StripNumbers: true,
			BatchSize:    64,
			Concurrency:  4,
		},
		Embeddings: EmbeddingsConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
		},
		Plot: PlotConfig{DataTokens: 3000},
		Sandbox: SandboxConfig{
			Kind:        "subprocess",
			Interpreter: "python3",
			Timeout:     60 * time.Second,
			MaxOutput:   20 << 20,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 5 * time.Minute,
			RateLimit:      2,
			RateBurst:      5,
			DatabaseTTL:    time.Hour,
			MaxUploadBytes: 200 << 20,
		},
	}
}

// Load reads path (optional), then .env, then the environment, and
// validates the result. A missing file at path is an error only when path
// was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.APIKey, "ANTHROPIC_API_KEY")
	setString(&c.Model, "ASKDB_MODEL")
	setString(&c.DataDir, "ASKDB_DATA_DIR")
	setString(&c.LogFile, "ASKDB_LOG_FILE")
	setString(&c.Embeddings.Provider, "ASKDB_EMBEDDINGS_PROVIDER")
	setString(&c.Embeddings.Model, "ASKDB_EMBEDDINGS_MODEL")
	setString(&c.Embeddings.BaseURL, "ASKDB_EMBEDDINGS_URL")
	setString(&c.Sandbox.Kind, "ASKDB_SANDBOX")
	setString(&c.Sandbox.URL, "ASKDB_SANDBOX_URL")
	setString(&c.Sandbox.Interpreter, "ASKDB_PYTHON")
	setString(&c.Server.Addr, "ASKDB_ADDR")

	switch c.Embeddings.Provider {
	case "openai":
		setString(&c.Embeddings.APIKey, "OPENAI_API_KEY")
	case "voyageai":
		setString(&c.Embeddings.APIKey, "VOYAGEAI_API_KEY")
	}

	if v := os.Getenv("ASKDB_MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ASKDB_MAX_STEPS %q: %w", v, err)
		}
		c.MaxSteps = n
	}
	if v := os.Getenv("ASKDB_NOUNS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ASKDB_NOUNS %q: %w", v, err)
		}
		c.Nouns.Enabled = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", f.Namespace(), f.Tag(), f.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Sandbox.Kind == "remote" && c.Sandbox.URL == "" {
		return errors.New("invalid config: sandbox.url is required for the remote sandbox")
	}
	return nil
}

// LogPath returns the log file location. Relative paths live in DataDir.
func (c *Config) LogPath() string {
	if c.LogFile == "" || filepath.IsAbs(c.LogFile) {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, c.LogFile)
}
