package am

import (
	"os"
	"sort"
	"strings"

	"github.com/teranos/jawala/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/jawala/config.toml
	SourceUser        ConfigSource = "user"        // ~/.jawala/am.toml
	SourceProject     ConfigSource = "project"     // am.toml found upward from the working directory
	SourceEnvironment ConfigSource = "environment" // JAWALA_* and the bound aliases
)

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"` // File path or env var name
}

// ConfigIntrospection lists every effective setting with its origin
type ConfigIntrospection struct {
	Settings []SettingInfo `json:"settings"`
}

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string
}

// configSources is filled by mergeConfigFiles; later files overwrite earlier ones
var configSources = map[string]SourceInfo{}

// envAliases are the extra variables BindSensitiveEnvVars accepts
var envAliases = map[string][]string{
	"assistant.api_key": {"OPENROUTER_API_KEY"},
}

func sourceOf(path string) ConfigSource {
	switch {
	case strings.HasPrefix(path, "/etc/"):
		return SourceSystem
	case path == UserConfigPath():
		return SourceUser
	default:
		return SourceProject
	}
}

func trackSources(settings map[string]interface{}, prefix string, info SourceInfo) {
	for key, value := range settings {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			trackSources(nested, full, info)
			continue
		}
		configSources[full] = info
	}
}

// GetConfigIntrospection returns every effective setting, sorted by key,
// with the file or variable it came from
func GetConfigIntrospection() (*ConfigIntrospection, error) {
	if _, err := Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}
	intro := &ConfigIntrospection{Settings: []SettingInfo{}}
	flatten(GetViper().AllSettings(), "", intro)
	sort.Slice(intro.Settings, func(i, j int) bool { return intro.Settings[i].Key < intro.Settings[j].Key })
	return intro, nil
}

func flatten(settings map[string]interface{}, prefix string, intro *ConfigIntrospection) {
	for key, value := range settings {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			flatten(nested, full, intro)
			continue
		}

		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := configSources[full]; ok {
			info = si
		}
		for _, env := range append([]string{"JAWALA_" + strings.ToUpper(strings.ReplaceAll(full, ".", "_"))}, envAliases[full]...) {
			if os.Getenv(env) != "" {
				info = SourceInfo{Source: SourceEnvironment, Path: env}
				break
			}
		}

		intro.Settings = append(intro.Settings, SettingInfo{
			Key:        full,
			Value:      value,
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
}
