package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the docsage API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Chat       ChatConfig       `yaml:"chat"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Email      EmailConfig      `yaml:"email"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	DSN              string `yaml:"dsn"`
	ReadinessTimeout int    `yaml:"readiness_timeout_sec"`
}

// CacheConfig holds the Redis embedding cache settings.
// An empty address list disables the cache.
type CacheConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	MaxRetries int    `yaml:"max_retries"`
}

// GenerationConfig holds the language model settings. The sampling params
// are fixed per deployment, not tunable per request.
type GenerationConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TopP        float32 `yaml:"top_p"`
	TimeoutSec  int     `yaml:"timeout_sec"`
	MaxRetries  int     `yaml:"max_retries"`
}

// ChatConfig holds query-path settings.
type ChatConfig struct {
	SystemPrompt    string `yaml:"system_prompt"` // empty = built-in default
	MaxPromptTokens int    `yaml:"max_prompt_tokens"`
	DefaultTopK     int    `yaml:"default_top_k"`
	MaxTopK         int    `yaml:"max_top_k"`
}

// ChunkerConfig holds token window settings for the chunker.
type ChunkerConfig struct {
	MinTokens      int `yaml:"min_tokens"`
	MaxTokens      int `yaml:"max_tokens"`
	HardCap        int `yaml:"hard_cap"` // embedding model input limit
	LookbackTokens int `yaml:"lookback_tokens"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	Workers       int   `yaml:"workers"`
	MaxUploadSize int64 `yaml:"max_upload_size_bytes"`
}

// EmailConfig holds email pipeline settings. EncryptionKey protects mailbox
// passwords at rest and must be exactly 32 bytes when set.
type EmailConfig struct {
	FetchCap      int    `yaml:"fetch_cap"`
	DataDir       string `yaml:"data_dir"`
	EncryptionKey string `yaml:"encryption_key"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.MaxRetries <= 0 {
		c.Embedding.MaxRetries = 3
	}
	if c.Generation.Temperature <= 0 {
		c.Generation.Temperature = 0.8
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 8192
	}
	if c.Generation.TopP <= 0 {
		c.Generation.TopP = 0.95
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 60
	}
	if c.Generation.MaxRetries <= 0 {
		c.Generation.MaxRetries = 3
	}
	if c.Chat.MaxPromptTokens <= 0 {
		c.Chat.MaxPromptTokens = 30000
	}
	if c.Chat.DefaultTopK <= 0 {
		c.Chat.DefaultTopK = 5
	}
	if c.Chat.MaxTopK <= 0 {
		c.Chat.MaxTopK = 20
	}
	if c.Chunker.MinTokens <= 0 {
		c.Chunker.MinTokens = 300
	}
	if c.Chunker.MaxTokens <= 0 {
		c.Chunker.MaxTokens = 500
	}
	if c.Chunker.HardCap <= 0 {
		c.Chunker.HardCap = 512
	}
	if c.Chunker.LookbackTokens <= 0 {
		c.Chunker.LookbackTokens = 60
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.MaxUploadSize <= 0 {
		c.Ingest.MaxUploadSize = 50 << 20 // 50MB
	}
	if c.Email.FetchCap <= 0 {
		c.Email.FetchCap = 50
	}
	if c.Email.DataDir == "" {
		c.Email.DataDir = "data/emails"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions is required")
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if c.Chunker.MinTokens >= c.Chunker.MaxTokens {
		return fmt.Errorf(
			"chunker.min_tokens (%d) must be below chunker.max_tokens (%d)",
			c.Chunker.MinTokens, c.Chunker.MaxTokens,
		)
	}
	if c.Chunker.MaxTokens > c.Chunker.HardCap {
		return fmt.Errorf(
			"chunker.max_tokens (%d) exceeds chunker.hard_cap (%d)",
			c.Chunker.MaxTokens, c.Chunker.HardCap,
		)
	}
	if c.Chat.DefaultTopK > c.Chat.MaxTopK {
		return fmt.Errorf(
			"chat.default_top_k (%d) exceeds chat.max_top_k (%d)",
			c.Chat.DefaultTopK, c.Chat.MaxTopK,
		)
	}
	if key := c.Email.EncryptionKey; key != "" && len(key) != 32 {
		return fmt.Errorf("email.encryption_key must be exactly 32 bytes, got %d", len(key))
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
