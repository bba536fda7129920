package am

import "time"

// Config represents the jawala client configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Rating    RatingConfig    `mapstructure:"rating"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig configures the local SQLite cache
type DatabaseConfig struct {
	Path     string `mapstructure:"path"`     // empty = ~/.jawala/cache.db
	Disabled bool   `mapstructure:"disabled"` // run without a local cache (every read is a miss)
}

// BackendConfig configures the hosted backend (REST, RPC, auth)
type BackendConfig struct {
	URL               string  `mapstructure:"url"`                 // e.g. "https://abc.supabase.co"
	AnonKey           string  `mapstructure:"anon_key"`            // public API key sent with every request
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`     // per-request timeout (default: 15)
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // client-side limiter, 0 = unlimited
	Burst             int     `mapstructure:"burst"`               // limiter burst (default: 5)
	VersionRPC        string  `mapstructure:"version_rpc"`         // optional RPC returning the whole fingerprint
	BlockPrivateIP    bool    `mapstructure:"block_private_ip"`    // refuse backends resolving to private ranges
}

// RealtimeConfig configures the change feed subscription
type RealtimeConfig struct {
	Enabled           bool `mapstructure:"enabled"`             // default: true
	HeartbeatSeconds  int  `mapstructure:"heartbeat_seconds"`   // default: 25
	BackoffBaseMillis int  `mapstructure:"backoff_base_millis"` // first reconnect delay (default: 500)
	BackoffMaxSeconds int  `mapstructure:"backoff_max_seconds"` // reconnect delay cap (default: 30)
	MaxAttempts       int  `mapstructure:"max_attempts"`        // consecutive failed reconnects before giving up, 0 = forever
}

// RatingConfig holds the rating identity of this device
type RatingConfig struct {
	UserName string `mapstructure:"user_name"` // display name attached to ratings
}

// AssistantConfig configures the LLM search assistant
type AssistantConfig struct {
	APIKey         string   `mapstructure:"api_key"`
	Model          string   `mapstructure:"model"`
	BaseURL        string   `mapstructure:"base_url"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	Temperature    *float64 `mapstructure:"temperature"` // nil = default 0.2
}

// AdminConfig holds the admin sign-in identity
type AdminConfig struct {
	Email string `mapstructure:"email"` // password is read from JAWALA_ADMIN_PASSWORD or prompted
}

// LogConfig configures console log output
type LogConfig struct {
	Theme string `mapstructure:"theme"` // gruvbox, everforest
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// RequestTimeout returns the per-request backend timeout
func (b BackendConfig) RequestTimeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Heartbeat returns the realtime heartbeat interval
func (r RealtimeConfig) Heartbeat() time.Duration {
	if r.HeartbeatSeconds <= 0 {
		return 25 * time.Second
	}
	return time.Duration(r.HeartbeatSeconds) * time.Second
}

// BackoffBase returns the first reconnect delay
func (r RealtimeConfig) BackoffBase() time.Duration {
	if r.BackoffBaseMillis <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(r.BackoffBaseMillis) * time.Millisecond
}

// BackoffMax returns the reconnect delay cap
func (r RealtimeConfig) BackoffMax() time.Duration {
	if r.BackoffMaxSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.BackoffMaxSeconds) * time.Second
}
