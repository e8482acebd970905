package schema

import (
	"errors"
	"strings"
	"time"
)

// IdleTarget selects which tab the idle debounce saves.
type IdleTarget string

const (
	// IdleTargetActive saves whichever tab is active when the idle timer expires.
	IdleTargetActive IdleTarget = "active"
	// IdleTargetEdited saves the tab that received the last edit.
	IdleTargetEdited IdleTarget = "edited"
)

// WorkspaceConfig defines defaults and timings for a workspace.
type WorkspaceConfig struct {
	IdleDelay     time.Duration
	SweepInterval time.Duration
	IdleTarget    IdleTarget
	// FlushOnClose writes a dirty tab's content once when it is closed.
	// Otherwise a closed tab just leaves autosave consideration.
	FlushOnClose      bool
	DefaultFolderID   DocID
	DefaultFolderName string
	NewFolderName     string
	TitleBase         string
	TitleExt          string
	PlaceholderBody   string
	Greeting          string
	Apology           string
}

const (
	// DefaultIdleDelay is the debounce window after the last edit.
	DefaultIdleDelay = 2 * time.Second
	// DefaultSweepInterval is the period of the dirty-tab sweep.
	DefaultSweepInterval = 5 * time.Second
	// DefaultFolderID is the folder new documents are filed under.
	DefaultFolderID = "folder1"
)

// NormalizeWorkspaceConfig applies defaults and validates the config.
func NormalizeWorkspaceConfig(cfg WorkspaceConfig) (WorkspaceConfig, error) {
	if cfg.IdleDelay == 0 {
		cfg.IdleDelay = DefaultIdleDelay
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.IdleTarget == "" {
		cfg.IdleTarget = IdleTargetActive
	}
	if cfg.DefaultFolderID.IsZero() {
		cfg.DefaultFolderID = TextID(DefaultFolderID)
	}
	if strings.TrimSpace(cfg.DefaultFolderName) == "" {
		cfg.DefaultFolderName = "Notes"
	}
	if strings.TrimSpace(cfg.NewFolderName) == "" {
		cfg.NewFolderName = "New Folder"
	}
	if strings.TrimSpace(cfg.TitleBase) == "" {
		cfg.TitleBase = "Untitled"
	}
	if cfg.TitleExt == "" {
		cfg.TitleExt = ".md"
	}
	if cfg.PlaceholderBody == "" {
		cfg.PlaceholderBody = "Start typing here..."
	}
	if cfg.Greeting == "" {
		cfg.Greeting = "Hi! Edit your documents on the left and ask me anything about them here."
	}
	if cfg.Apology == "" {
		cfg.Apology = "Sorry, the message could not be sent. Please try again later."
	}
	if cfg.IdleDelay < 0 {
		return WorkspaceConfig{}, errors.New("idle delay must be positive")
	}
	if cfg.SweepInterval < 0 {
		return WorkspaceConfig{}, errors.New("sweep interval must be positive")
	}
	switch cfg.IdleTarget {
	case IdleTargetActive, IdleTargetEdited:
	default:
		return WorkspaceConfig{}, errors.New("idle target must be \"active\" or \"edited\"")
	}
	return cfg, nil
}

// DefaultContent is the body given to freshly created documents.
func (cfg WorkspaceConfig) DefaultContent() string {
	return "# New Document\n\n" + cfg.PlaceholderBody
}

// PlaceholderContent derives a body for a document whose content could not be fetched.
func (cfg WorkspaceConfig) PlaceholderContent(name string) string {
	heading := strings.TrimSuffix(name, cfg.TitleExt)
	return "# " + heading + "\n\n" + cfg.PlaceholderBody
}
