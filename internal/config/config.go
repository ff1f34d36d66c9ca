package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Defaults for scalar settings.
const (
	DefaultBackendURL  = "http://localhost:8000"
	DefaultPersonality = "default"
	DefaultLogLevel    = "info"
)

// EnvBackendURL overrides BackendURL when set.
const EnvBackendURL = "BANTER_BACKEND_URL"

// Config holds application configuration.
type Config struct {
	// BackendURL is the base URL of the assistant endpoint; requests go to BackendURL + "/chat".
	BackendURL string `json:"backend_url"`

	// Personality is the persona id selected at startup.
	Personality string `json:"personality,omitempty"`

	// Personalities maps persona ids to instruction text. Entries overlay the built-in set.
	Personalities map[string]string `json:"personalities,omitempty"`

	// RequestTimeoutSeconds bounds one backend exchange. 0 means no timeout:
	// a hung backend keeps the session in flight until it answers.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// ReplyDelayMS is an artificial pause after a successful reply, before it is shown.
	ReplyDelayMS int `json:"reply_delay_ms,omitempty"`

	// Mute disables text-to-speech for assistant messages.
	Mute bool `json:"mute,omitempty"`

	// SpeakCommand overrides the detected text-to-speech command. The text is appended as the last argument.
	SpeakCommand []string `json:"speak_command,omitempty"`

	// ListenCommand is a speech-to-text command; its trimmed stdout becomes the draft.
	// Empty means dictation is unavailable.
	ListenCommand []string `json:"listen_command,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// AllowedPaths is an allowlist of directories for transcript exports.
	// Paths outside ~/.banter/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for exports.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type names ("chat", "reminder", "todo") to disable entirely.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BackendURL:  DefaultBackendURL,
		Personality: DefaultPersonality,
		LogLevel:    DefaultLogLevel,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.banter.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.banter) and repo (.banter) directories.
// Repo config is found by walking upward from startDir to find the nearest .banter/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Settings that pick a program to run, where messages go, or lift export restrictions are
// read from the global config only; see globalOnly.
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), globalOnly(repo)), nil
}

// globalOnly clears the fields a repository checkout must not control.
func globalOnly(repo *Config) *Config {
	stripped := *repo
	stripped.BackendURL = ""
	stripped.SpeakCommand = nil
	stripped.ListenCommand = nil
	stripped.AllowUnsafePaths = false
	return &stripped
}

// FindRepoConfig walks upward from startDir to find the nearest .banter/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".banter", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.BackendURL = v
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.BackendURL = firstNonEmpty(overlay.BackendURL, base.BackendURL)
	result.Personality = firstNonEmpty(overlay.Personality, base.Personality)
	result.LogLevel = firstNonEmpty(overlay.LogLevel, base.LogLevel)

	result.RequestTimeoutSeconds = overlay.RequestTimeoutSeconds
	if result.RequestTimeoutSeconds == 0 {
		result.RequestTimeoutSeconds = base.RequestTimeoutSeconds
	}

	result.ReplyDelayMS = overlay.ReplyDelayMS
	if result.ReplyDelayMS == 0 {
		result.ReplyDelayMS = base.ReplyDelayMS
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	// Commands are replaced wholesale, never merged
	result.SpeakCommand = base.SpeakCommand
	if len(overlay.SpeakCommand) > 0 {
		result.SpeakCommand = overlay.SpeakCommand
	}
	result.ListenCommand = base.ListenCommand
	if len(overlay.ListenCommand) > 0 {
		result.ListenCommand = overlay.ListenCommand
	}

	// Booleans: overlay wins if true, else base
	result.Mute = base.Mute || overlay.Mute
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.Personalities = mergeStringMap(base.Personalities, overlay.Personalities)

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// mergeStringMap copies base then overlay; overlay keys win.
func mergeStringMap(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	result := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range overlay {
		result[k] = v
	}
	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
