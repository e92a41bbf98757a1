package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// FakeStreams serves every request from the built-in fake engine.
	FakeStreams bool `json:"fake_streams,omitempty"`

	// PermissionDisabled skips the permission prompt for all requests.
	PermissionDisabled bool `json:"permission_disabled,omitempty"`

	// FakeForcePermission keeps the prompt even for fake requests.
	FakeForcePermission bool `json:"fake_force_permission,omitempty"`

	// ScreensharingDisabled rejects screen, window and application capture.
	ScreensharingDisabled bool `json:"screensharing_disabled,omitempty"`

	// AudioCaptureEnabled allows audioCapture sources.
	AudioCaptureEnabled bool `json:"audio_capture_enabled,omitempty"`

	// VideoLoopbackDev and AudioLoopbackDev restrict enumeration to the
	// device with that exact name. Used for loopback test setups.
	VideoLoopbackDev string `json:"video_loopback_dev,omitempty"`
	AudioLoopbackDev string `json:"audio_loopback_dev,omitempty"`

	// Defaults used when constraints leave a choice.
	DefaultWidth    int32   `json:"default_width,omitempty"`
	DefaultHeight   int32   `json:"default_height,omitempty"`
	DefaultFPS      float64 `json:"default_fps,omitempty"`
	DefaultChannels int32   `json:"default_channels,omitempty"`

	// Backend selects the production engine: "pion" or "fake".
	Backend string `json:"backend,omitempty"`

	// LogLevel is one of error, warn, info, debug, trace.
	LogLevel string `json:"log_level,omitempty"`

	// UIAddr is the listen address of the recording indicator.
	UIAddr string `json:"ui_addr,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultWidth:    640,
		DefaultHeight:   480,
		DefaultFPS:      30,
		DefaultChannels: 1,
		Backend:         "pion",
		LogLevel:        "info",
		UIAddr:          "127.0.0.1:7455",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.mediamgr.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.mediamgr) and project
// (.mediamgr) directories. The project config is found by walking upward from
// startDir. Project values take precedence for scalars; arrays are merged.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .mediamgr/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".mediamgr", "config.json")
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

// loadFileRaw returns a zero-valued config (not defaults) if the file doesn't exist.
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

	// Scalars: overlay wins if non-zero, else base
	result.VideoLoopbackDev = pick(overlay.VideoLoopbackDev, base.VideoLoopbackDev)
	result.AudioLoopbackDev = pick(overlay.AudioLoopbackDev, base.AudioLoopbackDev)
	result.DefaultWidth = pick(overlay.DefaultWidth, base.DefaultWidth)
	result.DefaultHeight = pick(overlay.DefaultHeight, base.DefaultHeight)
	result.DefaultFPS = pick(overlay.DefaultFPS, base.DefaultFPS)
	result.DefaultChannels = pick(overlay.DefaultChannels, base.DefaultChannels)
	result.Backend = pick(overlay.Backend, base.Backend)
	result.LogLevel = pick(overlay.LogLevel, base.LogLevel)
	result.UIAddr = pick(overlay.UIAddr, base.UIAddr)
	result.DBMaxOpenConns = pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Booleans: overlay wins if true, else base
	result.FakeStreams = base.FakeStreams || overlay.FakeStreams
	result.PermissionDisabled = base.PermissionDisabled || overlay.PermissionDisabled
	result.FakeForcePermission = base.FakeForcePermission || overlay.FakeForcePermission
	result.ScreensharingDisabled = base.ScreensharingDisabled || overlay.ScreensharingDisabled
	result.AudioCaptureEnabled = base.AudioCaptureEnabled || overlay.AudioCaptureEnabled

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string(nil), a...), b...) {
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

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MEDIAMGR_"

// ApplyEnv overrides cfg from envFile (if it exists) and then from the process
// environment. Unlike Merge, an explicit "false" or "0" wins.
func ApplyEnv(cfg *Config, envFile string) (*Config, error) {
	vars := map[string]string{}
	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			vars[k] = v
		}
	}

	out := *cfg
	out.DisabledTools = append([]string(nil), cfg.DisabledTools...)
	for key, value := range vars {
		name, ok := strings.CutPrefix(key, EnvPrefix)
		if !ok {
			continue
		}
		if err := out.set(strings.ToLower(name), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
	}
	return &out, nil
}

func (c *Config) set(name, value string) error {
	var err error
	switch name {
	case "fake_streams":
		c.FakeStreams, err = strconv.ParseBool(value)
	case "permission_disabled":
		c.PermissionDisabled, err = strconv.ParseBool(value)
	case "fake_force_permission":
		c.FakeForcePermission, err = strconv.ParseBool(value)
	case "screensharing_disabled":
		c.ScreensharingDisabled, err = strconv.ParseBool(value)
	case "audio_capture_enabled":
		c.AudioCaptureEnabled, err = strconv.ParseBool(value)
	case "video_loopback_dev":
		c.VideoLoopbackDev = value
	case "audio_loopback_dev":
		c.AudioLoopbackDev = value
	case "default_width":
		c.DefaultWidth, err = parseInt32(value)
	case "default_height":
		c.DefaultHeight, err = parseInt32(value)
	case "default_fps":
		c.DefaultFPS, err = strconv.ParseFloat(value, 64)
	case "default_channels":
		c.DefaultChannels, err = parseInt32(value)
	case "backend":
		c.Backend = value
	case "log_level":
		c.LogLevel = value
	case "ui_addr":
		c.UIAddr = value
	case "db_max_open_conns":
		c.DBMaxOpenConns, err = strconv.Atoi(value)
	case "db_max_idle_conns":
		c.DBMaxIdleConns, err = strconv.Atoi(value)
	case "disabled_tools":
		c.DisabledTools = mergeStringSlice(c.DisabledTools, strings.Split(value, ","))
	}
	return err
}

func parseInt32(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	return int32(n), err
}
