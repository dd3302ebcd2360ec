// Package metadata implements the per-session metadata store: tags,
// attributes, project context, recovery policy, templates, and bookmarks,
// each persisted as JSON under the daemon's data directory.
package metadata

import "time"

// EnvironmentType is the detected project toolchain.
type EnvironmentType string

const (
	EnvRust    EnvironmentType = "rust"
	EnvNodeJs  EnvironmentType = "nodejs"
	EnvPython  EnvironmentType = "python"
	EnvGo      EnvironmentType = "go"
	EnvJava    EnvironmentType = "java"
	EnvCpp     EnvironmentType = "cpp"
	EnvGeneric EnvironmentType = "generic"
)

// GitContext is a read-only snapshot of a project's git state: remote,
// branch, last commit, dirty flag, stash list. The daemon never
// interprets it beyond storing and returning it.
type GitContext struct {
	RemoteURL     string   `json:"remote_url,omitempty"`
	CurrentBranch string   `json:"current_branch,omitempty"`
	CommitHash    string   `json:"commit_hash,omitempty"`
	Dirty         bool     `json:"dirty"`
	Stashes       []string `json:"stashes,omitempty"`
}

// BuildConfig is a detected build system and its scripts/commands,
// opaque to the core registry.
type BuildConfig struct {
	BuildSystem    string            `json:"build_system,omitempty"`
	Targets        []string          `json:"targets,omitempty"`
	DefaultCommand string            `json:"default_command,omitempty"`
	TestCommand    string            `json:"test_command,omitempty"`
	DevCommand     string            `json:"dev_command,omitempty"`
	BuildEnv       map[string]string `json:"build_env,omitempty"`
}

// ProjectContext is auto-detected or supplied by the client.
type ProjectContext struct {
	Name            string            `json:"name,omitempty"`
	RootDirectory   string            `json:"root_directory,omitempty"`
	GitInfo         *GitContext       `json:"git_info,omitempty"`
	BuildConfig     *BuildConfig      `json:"build_config,omitempty"`
	EnvironmentType EnvironmentType   `json:"environment_type"`
	ProjectEnv      map[string]string `json:"project_env,omitempty"`
	EditorConfig    map[string]string `json:"editor_config,omitempty"`
	Documentation   []string          `json:"documentation,omitempty"`
}

// RecoveryCommand is one step of an ordered recovery sequence.
type RecoveryCommand struct {
	Command    string            `json:"command"`
	Args       []string          `json:"args,omitempty"`
	Cwd        string            `json:"cwd,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty"` // default: 30s
}

// PaneRestartConfig governs what happens to a pane whose process exits
// unexpectedly while auto_recover is on.
type PaneRestartConfig struct {
	Enabled    bool `json:"enabled"`
	MaxRetries int  `json:"max_retries,omitempty"`
}

// HealthCheck is a single periodic probe command.
type HealthCheck struct {
	Command    string `json:"command"`
	Args       []string `json:"args,omitempty"`
	IntervalSec int    `json:"interval_sec"`
	TimeoutSec  int    `json:"timeout_sec,omitempty"`
}

// HealthMonitoring configures an optional periodic probe: N consecutive
// failures trigger the recovery command sequence. A session with no
// HealthMonitoring set runs no probe — monitoring is opt-in.
type HealthMonitoring struct {
	Check               HealthCheck `json:"check"`
	FailureThreshold    int         `json:"failure_threshold"`
}

// SessionRecovery is the per-session recovery policy.
type SessionRecovery struct {
	AutoRecover      bool              `json:"auto_recover"`
	RecoveryCommands []RecoveryCommand `json:"recovery_commands,omitempty"`
	PaneRestart      PaneRestartConfig `json:"pane_restart"`
	HealthMonitor    *HealthMonitoring `json:"health_monitor,omitempty"`
}

// SessionMetadata is the full per-session metadata record.
type SessionMetadata struct {
	SessionID      string            `json:"session_id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	ProjectContext ProjectContext    `json:"project_context"`
	Recovery       SessionRecovery   `json:"recovery"`
	Tags           []string          `json:"tags,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// PaneTemplate is one pane's blueprint within a Template.
type PaneTemplate struct {
	Kind       string            `json:"kind"`
	Command    string            `json:"command"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Cwd        string            `json:"cwd,omitempty"`
	Rows       int               `json:"rows,omitempty"`
	Cols       int               `json:"cols,omitempty"`
	Title      string            `json:"title,omitempty"`
}

// LayoutConfig is opaque layout hints for external tooling — theming and
// layout rendering are out of scope here; the daemon stores and returns
// this without interpreting it.
type LayoutConfig map[string]string

// Template is a named blueprint for constructing a session, along with
// usage statistics tracked across instantiations.
type Template struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Panes       []PaneTemplate `json:"panes"`
	Layout      LayoutConfig   `json:"layout,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UseCount    int            `json:"use_count"`
	LastUsed    *time.Time     `json:"last_used,omitempty"`
	Builtin     bool           `json:"builtin,omitempty"`
}

// Bookmark is a named reference to an existing session, with access
// tracking bumped each time it's looked up.
type Bookmark struct {
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	SessionID    string     `json:"session_id"`
	Tags         []string   `json:"tags,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	AccessCount  int64      `json:"access_count"`
	AutoLaunch   bool       `json:"auto_launch"`
	IsFavorite   bool       `json:"is_favorite"`
}

// SearchQuery is the filter set session.metadata.search accepts: name
// substring, all-of-tags, any-of-tags, environment type, created/updated
// windows, attribute equality.
type SearchQuery struct {
	NameContains    string
	AllTags         []string
	AnyTags         []string
	EnvironmentType EnvironmentType
	CreatedAfter    *time.Time
	CreatedBefore   *time.Time
	UpdatedAfter    *time.Time
	UpdatedBefore   *time.Time
	AttributeKey    string
	AttributeValue  string
}
