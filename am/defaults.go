package am

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults (empty path resolves to ~/.jawala/cache.db)
	v.SetDefault("database.path", "")
	v.SetDefault("database.disabled", false)

	// Backend defaults
	v.SetDefault("backend.url", "")
	v.SetDefault("backend.timeout_seconds", 15)
	v.SetDefault("backend.requests_per_second", 10.0)
	v.SetDefault("backend.burst", 5)
	v.SetDefault("backend.version_rpc", "")
	v.SetDefault("backend.block_private_ip", false)

	// Realtime defaults
	v.SetDefault("realtime.enabled", true)
	v.SetDefault("realtime.heartbeat_seconds", 25)
	v.SetDefault("realtime.backoff_base_millis", 500)
	v.SetDefault("realtime.backoff_max_seconds", 30)
	v.SetDefault("realtime.max_attempts", 0)

	// Assistant defaults
	v.SetDefault("assistant.model", "openai/gpt-4o-mini")
	v.SetDefault("assistant.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("assistant.timeout_seconds", 60)
	v.SetDefault("assistant.temperature", 0.2)

	v.SetDefault("log.theme", "everforest")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("backend.url", "JAWALA_BACKEND_URL")
	_ = v.BindEnv("backend.anon_key", "JAWALA_BACKEND_ANON_KEY")
	_ = v.BindEnv("assistant.api_key", "JAWALA_ASSISTANT_API_KEY", "OPENROUTER_API_KEY")
	_ = v.BindEnv("database.path", "JAWALA_DATABASE_PATH")
}

// GetDatabasePath returns the configured cache path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return filepath.Join(UserDir(), "cache.db")
	}
	return c.Database.Path
}

// GetLogTheme returns the log theme (default: everforest)
func (c *Config) GetLogTheme() string {
	if c.Log.Theme == "" {
		return "everforest"
	}
	return c.Log.Theme
}

// GetAssistantTemperature returns the sampling temperature (default: 0.2)
func (c *Config) GetAssistantTemperature() float64 {
	if c.Assistant.Temperature == nil {
		return 0.2
	}
	return *c.Assistant.Temperature
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Backend: %s, Realtime: %t}",
		c.GetDatabasePath(), c.Backend.URL, c.Realtime.Enabled)
}
