package appconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/notesync/schema"
)

// EnvPrefix prefixes environment overrides, e.g. NOTESYNC_HTTP_ADDR.
const EnvPrefix = "NOTESYNC"

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("http.allowed_origins", cfg.HTTP.AllowedOrigins)
	v.SetDefault("http.event_history", cfg.HTTP.HistorySize)
	v.SetDefault("remote.base_url", cfg.Remote.BaseURL)
	v.SetDefault("remote.timeout_seconds", cfg.Remote.TimeoutSeconds)
	v.SetDefault("autosave.idle_ms", cfg.Autosave.IdleMS)
	v.SetDefault("autosave.sweep_ms", cfg.Autosave.SweepMS)
	v.SetDefault("autosave.idle_target", cfg.Autosave.IdleTarget)
	v.SetDefault("autosave.flush_on_close", cfg.Autosave.FlushOnClose)
	v.SetDefault("workspace.default_folder_name", cfg.Workspace.DefaultFolderName)
	v.SetDefault("workspace.new_folder_name", cfg.Workspace.NewFolderName)
	v.SetDefault("workspace.title_base", cfg.Workspace.TitleBase)
	v.SetDefault("workspace.title_ext", cfg.Workspace.TitleExt)
	v.SetDefault("workspace.placeholder_body", cfg.Workspace.PlaceholderBody)
	v.SetDefault("workspace.greeting", cfg.Workspace.Greeting)
	v.SetDefault("workspace.apology", cfg.Workspace.Apology)
	v.SetDefault("assistant.base_url", cfg.Assistant.BaseURL)
	v.SetDefault("assistant.model", cfg.Assistant.Model)
	v.SetDefault("assistant.api_key", cfg.Assistant.APIKey)
	v.SetDefault("assistant.timeout_seconds", cfg.Assistant.TimeoutSeconds)
	v.SetDefault("assistant.system_prompt", cfg.Assistant.SystemPrompt)
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.StateDir) == "" {
		return fmt.Errorf("state_dir is required")
	}
	if err := validateBaseURL("remote.base_url", cfg.Remote.BaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("assistant.base_url", cfg.Assistant.BaseURL); err != nil {
		return err
	}
	basePath := strings.TrimSpace(cfg.HTTP.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	if cfg.Autosave.IdleMS <= 0 {
		return fmt.Errorf("autosave.idle_ms must be positive")
	}
	if cfg.Autosave.SweepMS <= 0 {
		return fmt.Errorf("autosave.sweep_ms must be positive")
	}
	switch schema.IdleTarget(cfg.Autosave.IdleTarget) {
	case schema.IdleTargetActive, schema.IdleTargetEdited:
	default:
		return fmt.Errorf("unsupported autosave.idle_target %q", cfg.Autosave.IdleTarget)
	}
	if cfg.Remote.TimeoutSeconds < 0 || cfg.Assistant.TimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

func validateBaseURL(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must include scheme and host (e.g. http://localhost:8000)", key)
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Remote.BaseURL = expandEnv(cfg.Remote.BaseURL)
	cfg.Assistant.BaseURL = expandEnv(cfg.Assistant.BaseURL)
	cfg.Assistant.APIKey = expandSecret(cfg.Assistant.APIKey)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// expandSecret drops unset variables so an unset key stays empty.
func expandSecret(value string) string {
	return strings.TrimSpace(os.Expand(value, func(key string) string {
		val, _ := lookupEnv(key)
		return val
	}))
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
