// Package config loads and persists the application configuration.
// Precedence is environment > config file > defaults; environment
// variables use the PARLEY_ prefix with dots replaced by underscores
// (PARLEY_GATEWAY_PORT overrides gateway.port).
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Model      ModelConfig      `mapstructure:"model" yaml:"model"`
	Context    ContextConfig    `mapstructure:"context" yaml:"context"`
	Summarizer SummarizerConfig `mapstructure:"summarizer" yaml:"summarizer"`
	Gateway    GatewayConfig    `mapstructure:"gateway" yaml:"gateway"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// ModelConfig selects the conversation backend.
type ModelConfig struct {
	// URI addresses the model: "provider/model" or
	// "provider@base:model?params".
	URI          string            `mapstructure:"uri" yaml:"uri"`
	APIKey       string            `mapstructure:"api_key" yaml:"api_key"`
	SystemPrompt string            `mapstructure:"system_prompt" yaml:"system_prompt"`
	Params       map[string]string `mapstructure:"params" yaml:"params,omitempty"`
	Timeout      string            `mapstructure:"timeout" yaml:"timeout"`
}

// GetTimeout parses the Timeout field. Zero means the provider default.
func (c *ModelConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// ContextConfig selects and tunes the compaction strategy.
type ContextConfig struct {
	// Strategy is one of noop, fifo, summarize, lru.
	Strategy string `mapstructure:"strategy" yaml:"strategy"`

	MaxInputTokens    int     `mapstructure:"max_input_tokens" yaml:"max_input_tokens"`
	Threshold         float64 `mapstructure:"threshold" yaml:"threshold"`
	PreferRecentTurns int     `mapstructure:"prefer_recent_turns" yaml:"prefer_recent_turns"`
	KeepRecentTurns   int     `mapstructure:"keep_recent_turns" yaml:"keep_recent_turns"`
	MessageOverhead   int     `mapstructure:"message_overhead" yaml:"message_overhead"`
	SetOverhead       int     `mapstructure:"set_overhead" yaml:"set_overhead"`
	MaxSummaryMarkers int     `mapstructure:"max_summary_markers" yaml:"max_summary_markers"`
}

// SummarizerConfig addresses the model used for compaction summaries.
// An empty URI falls back to the conversation model.
type SummarizerConfig struct {
	URI    string `mapstructure:"uri" yaml:"uri"`
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Host      string          `mapstructure:"host" yaml:"host"`
	Port      int             `mapstructure:"port" yaml:"port"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
}

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// CORSConfig configures cross-origin access.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// StorageConfig configures session persistence.
type StorageConfig struct {
	// Path is the SQLite database file. Empty selects ~/.parley/data.db.
	Path string `mapstructure:"path" yaml:"path"`

	// RetentionDays drops sessions idle longer than this. Zero keeps
	// everything.
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`

	// CleanupSchedule is a cron expression for the retention sweep.
	CleanupSchedule string `mapstructure:"cleanup_schedule" yaml:"cleanup_schedule"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load reads the configuration. A missing file is not an error; the
// defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("PARLEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, err
			}
			// A missing file falls through to the defaults.
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the loaded configuration, nil before Load.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Get returns an arbitrary configuration value by key.
func Get(key string) any {
	return viper.Get(key)
}

// GetString returns a string configuration value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an integer configuration value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a boolean configuration value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Set updates a configuration value and persists it when a config file
// path is known.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)

	if configPath != "" {
		return save()
	}
	return nil
}

// Save writes the current configuration to the loaded file path.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save requires the caller to hold mu.
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}

	// 0600: the file carries API keys.
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo writes cfg to an explicit path. Used by the init command.
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Reset clears the loaded state. Mainly for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
