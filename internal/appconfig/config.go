package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/notesync/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
	Remote        RemoteConfig    `mapstructure:"remote" yaml:"remote"`
	Autosave      AutosaveConfig  `mapstructure:"autosave" yaml:"autosave"`
	Workspace     WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`
	Assistant     AssistantConfig `mapstructure:"assistant" yaml:"assistant"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	BasePath       string   `mapstructure:"base_path" yaml:"base_path"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	HistorySize    int      `mapstructure:"event_history" yaml:"event_history"`
}

// RemoteConfig points the editor at a server.
type RemoteConfig struct {
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// AutosaveConfig controls the idle debounce and the periodic sweep.
type AutosaveConfig struct {
	IdleMS       int    `mapstructure:"idle_ms" yaml:"idle_ms"`
	SweepMS      int    `mapstructure:"sweep_ms" yaml:"sweep_ms"`
	IdleTarget   string `mapstructure:"idle_target" yaml:"idle_target"`
	FlushOnClose bool   `mapstructure:"flush_on_close" yaml:"flush_on_close"`
}

// WorkspaceConfig holds the user-visible strings of the editor.
type WorkspaceConfig struct {
	DefaultFolderName string `mapstructure:"default_folder_name" yaml:"default_folder_name"`
	NewFolderName     string `mapstructure:"new_folder_name" yaml:"new_folder_name"`
	TitleBase         string `mapstructure:"title_base" yaml:"title_base"`
	TitleExt          string `mapstructure:"title_ext" yaml:"title_ext"`
	PlaceholderBody   string `mapstructure:"placeholder_body" yaml:"placeholder_body"`
	Greeting          string `mapstructure:"greeting" yaml:"greeting"`
	Apology           string `mapstructure:"apology" yaml:"apology"`
}

// AssistantConfig configures the OpenAI-compatible chat backend of the server.
type AssistantConfig struct {
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	Model          string `mapstructure:"model" yaml:"model"`
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	SystemPrompt   string `mapstructure:"system_prompt" yaml:"system_prompt"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".notesync", "state"),
		HTTP: HTTPConfig{
			Addr:           ":8000",
			BasePath:       "",
			AllowedOrigins: []string{"http://localhost:3000"},
			HistorySize:    1000,
		},
		Remote: RemoteConfig{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 30,
		},
		Autosave: AutosaveConfig{
			IdleMS:       int(schema.DefaultIdleDelay / time.Millisecond),
			SweepMS:      int(schema.DefaultSweepInterval / time.Millisecond),
			IdleTarget:   string(schema.IdleTargetActive),
			FlushOnClose: false,
		},
		Workspace: WorkspaceConfig{
			DefaultFolderName: "Notes",
			NewFolderName:     "New Folder",
			TitleBase:         "Untitled",
			TitleExt:          ".md",
			PlaceholderBody:   "Start typing here...",
			Greeting:          "Hi! Edit your documents on the left and ask me anything about them here.",
			Apology:           "Sorry, the message could not be sent. Please try again later.",
		},
		Assistant: AssistantConfig{
			BaseURL:        "",
			Model:          "gpt-4o-mini",
			APIKey:         "$OPENAI_API_KEY",
			TimeoutSeconds: 30,
			SystemPrompt:   "You are a helpful assistant.",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".notesync", "config.yaml"), nil
}

// DocumentDir is where the server keeps document files.
func (c Config) DocumentDir() string {
	return filepath.Join(c.StateDir, "documents")
}

// WorkspaceSettings converts the editor settings for core.NewWorkspace.
func (c Config) WorkspaceSettings() schema.WorkspaceConfig {
	return schema.WorkspaceConfig{
		IdleDelay:         time.Duration(c.Autosave.IdleMS) * time.Millisecond,
		SweepInterval:     time.Duration(c.Autosave.SweepMS) * time.Millisecond,
		IdleTarget:        schema.IdleTarget(c.Autosave.IdleTarget),
		FlushOnClose:      c.Autosave.FlushOnClose,
		DefaultFolderName: c.Workspace.DefaultFolderName,
		NewFolderName:     c.Workspace.NewFolderName,
		TitleBase:         c.Workspace.TitleBase,
		TitleExt:          c.Workspace.TitleExt,
		PlaceholderBody:   c.Workspace.PlaceholderBody,
		Greeting:          c.Workspace.Greeting,
		Apology:           c.Workspace.Apology,
	}
}

// RemoteTimeout bounds each editor request to the server.
func (c Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// AssistantTimeout bounds one chat completion.
func (c Config) AssistantTimeout() time.Duration {
	return time.Duration(c.Assistant.TimeoutSeconds) * time.Second
}
