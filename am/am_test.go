package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance, no user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Database.Path)
	assert.False(t, cfg.Database.Disabled)
	assert.Equal(t, 15, cfg.Backend.TimeoutSeconds)
	assert.Equal(t, 5, cfg.Backend.Burst)
	assert.True(t, cfg.Realtime.Enabled)
	assert.Equal(t, 25*time.Second, cfg.Realtime.Heartbeat())
	assert.Equal(t, 500*time.Millisecond, cfg.Realtime.BackoffBase())
	assert.Equal(t, 30*time.Second, cfg.Realtime.BackoffMax())
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Assistant.Model)
	assert.InDelta(t, 0.2, cfg.GetAssistantTemperature(), 1e-9)
	assert.NoError(t, cfg.Validate())
}

func TestGetDatabasePath(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, filepath.Join(UserDir(), "cache.db"), cfg.GetDatabasePath())

	cfg.Database.Path = "/tmp/x.db"
	assert.Equal(t, "/tmp/x.db", cfg.GetDatabasePath())
}

func TestValidate(t *testing.T) {
	temp := func(f float64) *float64 { return &f }

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"empty config is valid (offline, cache only)", Config{}, false},
		{"https backend", Config{Backend: BackendConfig{URL: "https://abc.example.co"}}, false},
		{"ftp backend", Config{Backend: BackendConfig{URL: "ftp://abc.example.co"}}, true},
		{"backend without host", Config{Backend: BackendConfig{URL: "https://"}}, true},
		{"negative timeout", Config{Backend: BackendConfig{TimeoutSeconds: -1}}, true},
		{"zero rate is unlimited", Config{Backend: BackendConfig{RequestsPerSecond: 0}}, false},
		{"negative rate", Config{Backend: BackendConfig{RequestsPerSecond: -1}}, true},
		{"backoff max below base", Config{Realtime: RealtimeConfig{Enabled: true, BackoffBaseMillis: 5000, BackoffMaxSeconds: 1}}, true},
		{"backoff ignored when disabled", Config{Realtime: RealtimeConfig{BackoffBaseMillis: 5000, BackoffMaxSeconds: 1}}, false},
		{"negative max attempts", Config{Realtime: RealtimeConfig{Enabled: true, MaxAttempts: -1}}, true},
		{"one-letter name", Config{Rating: RatingConfig{UserName: " A "}}, true},
		{"two-letter devanagari name", Config{Rating: RatingConfig{UserName: "रम"}}, false},
		{"temperature out of range", Config{Assistant: AssistantConfig{Temperature: temp(3)}}, true},
		{"unknown theme", Config{Log: LogConfig{Theme: "solarized"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	content := `
[backend]
url = "https://dir.example.co"
anon_key = "anon"
version_rpc = "get_data_version"

[realtime]
enabled = false

[rating]
user_name = "Meera"
`
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://dir.example.co", cfg.Backend.URL)
	assert.Equal(t, "get_data_version", cfg.Backend.VersionRPC)
	assert.False(t, cfg.Realtime.Enabled)
	assert.Equal(t, "Meera", cfg.Rating.UserName)
	// defaults still apply underneath
	assert.Equal(t, 15, cfg.Backend.TimeoutSeconds)
}

func TestFindProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("found by upward search", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "found", "a", "b")
		require.NoError(t, os.MkdirAll(subDir, DefaultDirPermissions))
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "found", "am.toml"), nil, DefaultFilePermissions))

		t.Chdir(subDir)

		result := findProjectConfig()
		require.NotEmpty(t, result)
		assert.True(t, filepath.IsAbs(result))
		assert.Equal(t, "am.toml", filepath.Base(result))
	})
}

func TestSetKeyRotatesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")

	for _, name := range []string{"Asha", "Bina", "Chetan", "Dev", "Esha"} {
		require.NoError(t, setKey(path, "rating", "user_name", name))
	}

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Esha", cfg.Rating.UserName)

	for i, want := range []string{"Dev", "Chetan", "Bina"} {
		backup := path + ".back" + string(rune('1'+i))
		data, err := os.ReadFile(backup)
		require.NoError(t, err, "missing %s", backup)
		assert.Contains(t, string(data), want)
	}
	_, err = os.Stat(path + ".back4")
	assert.True(t, os.IsNotExist(err))
}

func TestSetKeyPreservesOtherSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[backend]\nurl = \"https://keep.example.co\"\n"), DefaultFilePermissions))

	require.NoError(t, setKey(path, "rating", "user_name", "Ravi"))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://keep.example.co", cfg.Backend.URL)
	assert.Equal(t, "Ravi", cfg.Rating.UserName)
}

func TestIsBackupFile(t *testing.T) {
	assert.True(t, isBackupFile("/home/u/.jawala/am.toml.back1"))
	assert.True(t, isBackupFile("am.toml.back3"))
	assert.False(t, isBackupFile("am.toml"))
	assert.False(t, isBackupFile("am.toml.backup"))
}

func TestConfigWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[rating]\nuser_name = \"Asha\"\n"), DefaultFilePermissions))

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()

	cw.debouncePeriod = 10 * time.Millisecond
	cw.load = func() (*Config, error) { return LoadFromFile(path) }

	reloaded := make(chan string, 4)
	cw.OnReload(func(c *Config) error {
		reloaded <- c.Rating.UserName
		return nil
	})
	cw.Start()

	// Sibling files in the watched directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1"), DefaultFilePermissions))
	require.NoError(t, os.WriteFile(path, []byte("[rating]\nuser_name = \"Bina\"\n"), DefaultFilePermissions))

	select {
	case name := <-reloaded:
		assert.Equal(t, "Bina", name)
	case <-time.After(5 * time.Second):
		t.Fatal("config watcher did not reload")
	}
}

func TestConfigWatcherOwnWriteFlag(t *testing.T) {
	cw := &ConfigWatcher{}
	assert.False(t, cw.checkOwnWrite())
	cw.MarkOwnWrite()
	assert.True(t, cw.checkOwnWrite())
	assert.False(t, cw.checkOwnWrite(), "flag is consumed by the first check")
}

func TestConfigWatcherRejectsInvalidReload(t *testing.T) {
	cw := &ConfigWatcher{
		load: func() (*Config, error) {
			return &Config{Log: LogConfig{Theme: "neon"}}, nil
		},
	}
	called := false
	cw.OnReload(func(*Config) error { called = true; return nil })

	assert.Error(t, cw.reload())
	assert.False(t, called)
}
