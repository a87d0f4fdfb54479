package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers the default value for every configuration key.
func SetDefaults() {
	// Model
	viper.SetDefault("model.uri", "deepseek/deepseek-chat")
	viper.SetDefault("model.api_key", "")
	viper.SetDefault("model.system_prompt", "")
	viper.SetDefault("model.timeout", "")

	// Context compaction
	viper.SetDefault("context.strategy", "noop")
	viper.SetDefault("context.max_input_tokens", 4096)
	viper.SetDefault("context.threshold", 0.75)
	viper.SetDefault("context.prefer_recent_turns", 2)
	viper.SetDefault("context.keep_recent_turns", 0)
	viper.SetDefault("context.message_overhead", 4)
	viper.SetDefault("context.set_overhead", 2)
	viper.SetDefault("context.max_summary_markers", 5)

	// Summarizer: empty URI falls back to model.uri
	viper.SetDefault("summarizer.uri", "")
	viper.SetDefault("summarizer.api_key", "")

	// Gateway
	viper.SetDefault("gateway.host", "127.0.0.1")
	viper.SetDefault("gateway.port", 8080)
	viper.SetDefault("gateway.rate_limit.enabled", true)
	viper.SetDefault("gateway.rate_limit.requests_per_minute", 60)
	viper.SetDefault("gateway.rate_limit.burst", 10)
	viper.SetDefault("gateway.rate_limit.cleanup_interval", 5*time.Minute)
	viper.SetDefault("gateway.cors.allowed_origins", []string{"*"})

	// Storage: empty path selects ~/.parley/data.db
	viper.SetDefault("storage.path", "")
	viper.SetDefault("storage.retention_days", 0)
	viper.SetDefault("storage.cleanup_schedule", "0 3 * * *")

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")
}
