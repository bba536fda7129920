package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withConfigFiles points HOME at a temp dir holding user and project am.toml
// files and changes into the project directory
func withConfigFiles(t *testing.T, user, project string) (userPath, projectPath string) {
	t.Helper()
	Reset()
	t.Cleanup(Reset)

	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".jawala"), 0755))
	userPath = filepath.Join(home, ".jawala", "am.toml")
	require.NoError(t, os.WriteFile(userPath, []byte(user), 0644))

	dir := filepath.Join(home, "work", "shop")
	require.NoError(t, os.MkdirAll(dir, 0755))
	if project != "" {
		projectPath = filepath.Join(dir, "am.toml")
		require.NoError(t, os.WriteFile(projectPath, []byte(project), 0644))
	}
	t.Chdir(dir)
	return userPath, projectPath
}

func settingsByKey(t *testing.T) map[string]SettingInfo {
	t.Helper()
	intro, err := GetConfigIntrospection()
	require.NoError(t, err)
	out := make(map[string]SettingInfo, len(intro.Settings))
	for _, s := range intro.Settings {
		out[s.Key] = s
	}
	return out
}

func TestSourceTrackingProjectOverridesUser(t *testing.T) {
	userPath, projectPath := withConfigFiles(t, `
[backend]
url = "https://user.example.com"
anon_key = "user-key"

[rating]
user_name = "Asha"
`, `
[backend]
url = "https://project.example.com"
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://project.example.com", cfg.Backend.URL)
	assert.Equal(t, "user-key", cfg.Backend.AnonKey)

	settings := settingsByKey(t)
	assert.Equal(t, SourceProject, settings["backend.url"].Source)
	assert.Equal(t, projectPath, settings["backend.url"].SourcePath)
	assert.Equal(t, SourceUser, settings["backend.anon_key"].Source)
	assert.Equal(t, userPath, settings["rating.user_name"].SourcePath)
	assert.Equal(t, SourceDefault, settings["realtime.heartbeat_seconds"].Source)
}

func TestSourceTrackingEnvironmentWins(t *testing.T) {
	withConfigFiles(t, `
[backend]
url = "https://user.example.com"
`, "")
	t.Setenv("JAWALA_BACKEND_URL", "https://env.example.com")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Backend.URL)
	assert.Equal(t, "sk-test", cfg.Assistant.APIKey)

	settings := settingsByKey(t)
	assert.Equal(t, SourceEnvironment, settings["backend.url"].Source)
	assert.Equal(t, "JAWALA_BACKEND_URL", settings["backend.url"].SourcePath)
}

func TestSourceTrackingSortedKeys(t *testing.T) {
	withConfigFiles(t, "", "")

	intro, err := GetConfigIntrospection()
	require.NoError(t, err)
	require.NotEmpty(t, intro.Settings)
	for i := 1; i < len(intro.Settings); i++ {
		assert.Less(t, intro.Settings[i-1].Key, intro.Settings[i].Key)
	}
}
