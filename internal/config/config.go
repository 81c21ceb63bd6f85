package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the application configuration
type Config struct {
	Index      IndexConfig      `json:"index"      envPrefix:"QUERYMIND_"`
	Embedding  EmbeddingConfig  `json:"embedding"  envPrefix:"QUERYMIND_"`
	Generation GenerationConfig `json:"generation" envPrefix:"QUERYMIND_"`
	Retrieval  RetrievalConfig  `json:"retrieval"  envPrefix:"QUERYMIND_"`
	Policy     PolicyConfig     `json:"policy"     envPrefix:"QUERYMIND_"`
	Logging    LoggingConfig    `json:"logging"    envPrefix:"QUERYMIND_"`
}

// IndexConfig represents schema index storage configuration
type IndexConfig struct {
	Path            string `json:"path"               env:"INDEX_PATH"               envDefault:"~/.config/querymind/index.db"`
	MaxConnections  int    `json:"max_connections"    env:"INDEX_MAX_CONNECTIONS"    envDefault:"10"`
	MaxIdleConns    int    `json:"max_idle_conns"     env:"INDEX_MAX_IDLE_CONNS"     envDefault:"5"`
	ConnMaxLifetime string `json:"conn_max_lifetime"  env:"INDEX_CONN_MAX_LIFETIME"  envDefault:"30m"`
}

// EmbeddingConfig represents embedding backend configuration
type EmbeddingConfig struct {
	Model         string `json:"model"          env:"EMBEDDING_MODEL"          envDefault:"gemini-embedding-001"`
	APIKey        string `json:"-"              env:"EMBEDDING_API_KEY"`
	Dimensions    int    `json:"dimensions"     env:"EMBEDDING_DIMENSIONS"     envDefault:"3072"`
	RetryAttempts int    `json:"retry_attempts" env:"EMBEDDING_RETRY_ATTEMPTS" envDefault:"0"`
	RetryBackoff  string `json:"retry_backoff"  env:"EMBEDDING_RETRY_BACKOFF"  envDefault:"500ms"`
	Timeout       string `json:"timeout"        env:"EMBEDDING_TIMEOUT"        envDefault:"60s"`
}

// GenerationConfig represents SQL generation backend configuration
type GenerationConfig struct {
	Model           string  `json:"model"             env:"GENERATION_MODEL"             envDefault:"gemini-2.5-flash"`
	APIKey          string  `json:"-"                 env:"GENERATION_API_KEY"`
	Temperature     float64 `json:"temperature"       env:"GENERATION_TEMPERATURE"       envDefault:"0.1"`
	MaxOutputTokens int     `json:"max_output_tokens" env:"GENERATION_MAX_OUTPUT_TOKENS" envDefault:"1024"`
	Timeout         string  `json:"timeout"           env:"GENERATION_TIMEOUT"           envDefault:"120s"`
}

// RetrievalConfig represents schema retrieval configuration
type RetrievalConfig struct {
	TopK int `json:"top_k" env:"RETRIEVAL_TOP_K" envDefault:"6"`
}

// PolicyConfig represents SQL safety policy configuration
type PolicyConfig struct {
	EnforceScope       bool `json:"enforce_scope"        env:"POLICY_ENFORCE_SCOPE"        envDefault:"false"`
	StatementTimeoutMS int  `json:"statement_timeout_ms" env:"POLICY_STATEMENT_TIMEOUT_MS" envDefault:"10000"`
	MaxRows            int  `json:"max_rows"             env:"POLICY_MAX_ROWS"             envDefault:"500"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"  envDefault:"info"`   // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT" envDefault:"text"`   // text, json
	Output string `json:"output" env:"LOG_OUTPUT" envDefault:"stderr"` // stdout, stderr, file
	File   string `json:"file"   env:"LOG_FILE"   envDefault:"~/.config/querymind/logs/app.log"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	config := &Config{}

	// Load from config file if it exists
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Apply environment variable overrides (also sets defaults)
	if err := env.ParseWithOptions(config, env.Options{
		Prefix: "QUERYMIND_",
	}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if flagOverrides != nil {
		applyFlagOverrides(config, flagOverrides)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile loads configuration from a JSON file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) {
	for key, value := range overrides {
		switch key {
		case "index-path":
			if str, ok := value.(string); ok && str != "" {
				config.Index.Path = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "top-k":
			if n, ok := value.(int); ok && n > 0 {
				config.Retrieval.TopK = n
			}
		case "strict-scope":
			if b, ok := value.(bool); ok {
				config.Policy.EnforceScope = b
			}
		}
	}
}

// mergeConfigs merges source configuration into target configuration
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := range s.NumField() {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if s.Kind() == reflect.Bool {
			t.Set(s)
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	if _, err := time.ParseDuration(config.Embedding.Timeout); err != nil {
		return fmt.Errorf("invalid embedding timeout: %s", config.Embedding.Timeout)
	}

	if _, err := time.ParseDuration(config.Embedding.RetryBackoff); err != nil {
		return fmt.Errorf("invalid embedding retry backoff: %s", config.Embedding.RetryBackoff)
	}

	if _, err := time.ParseDuration(config.Generation.Timeout); err != nil {
		return fmt.Errorf("invalid generation timeout: %s", config.Generation.Timeout)
	}

	if config.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive: %d", config.Embedding.Dimensions)
	}

	if config.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top-k must be positive: %d", config.Retrieval.TopK)
	}

	if config.Policy.MaxRows <= 0 {
		return fmt.Errorf("policy max rows must be positive: %d", config.Policy.MaxRows)
	}

	if config.Index.MaxConnections <= 0 {
		return fmt.Errorf(
			"index max connections must be positive: %d",
			config.Index.MaxConnections,
		)
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv("QUERYMIND_CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(homeDir, ".config", "querymind", "config.json")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Index.Path = expandPath(c.Index.Path)
	c.Logging.File = expandPath(c.Logging.File)
}

// GetConfigDir returns the configuration directory
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".config/querymind"
	}

	return filepath.Join(homeDir, ".config", "querymind")
}

// EnsureDirectories creates necessary directories for the configuration
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Index.Path),
		filepath.Dir(c.Logging.File),
	}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}
