// Package config handles configuration loading, validation, and management for wlime.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Wayland selects the compositor connection and seat.
	Wayland WaylandConfig `toml:"wayland" json:"wayland" yaml:"wayland"`

	// Keyboard configures the grab, the virtual keyboard and the text
	// edit helper.
	Keyboard KeyboardConfig `toml:"keyboard" json:"keyboard" yaml:"keyboard"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for the D-Bus control surface.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// WaylandConfig holds compositor connection settings.
type WaylandConfig struct {
	// Display is the socket name or path. Empty uses $WAYLAND_DISPLAY.
	Display string `toml:"display" json:"display" yaml:"display"`

	// Seat is the wl_seat name to bind. Empty selects the first seat.
	Seat string `toml:"seat" json:"seat" yaml:"seat"`
}

// KeyboardConfig holds keyboard grab settings.
type KeyboardConfig struct {
	// ShmName names the POSIX shared memory segment used to hand the
	// keymap to the virtual keyboard. Empty uses an anonymous memfd.
	ShmName string `toml:"shm_name" json:"shm_name" yaml:"shm_name"`

	// ClearPreeditOnRelease sends an empty preedit when the keyboard is
	// released.
	ClearPreeditOnRelease bool `toml:"clear_preedit_on_release" json:"clear_preedit_on_release" yaml:"clear_preedit_on_release"`

	// Transform is applied to text committed by Return: "none",
	// "upper", "lower" or "trim".
	Transform string `toml:"transform" json:"transform" yaml:"transform"`

	// GrabOnActivate grabs the keyboard whenever a text field activates.
	GrabOnActivate bool `toml:"grab_on_activate" json:"grab_on_activate" yaml:"grab_on_activate"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// IPCConfig holds D-Bus service configuration.
type IPCConfig struct {
	// Enabled determines whether the D-Bus service is exported.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// BusName is the well-known name requested on the session bus.
	BusName string `toml:"bus_name" json:"bus_name" yaml:"bus_name"`
}

// MetricsConfig holds metrics exposition settings.
type MetricsConfig struct {
	// Enabled starts the HTTP listener.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Listen is the host:port the /metrics endpoint binds to.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Keyboard: KeyboardConfig{
			ClearPreeditOnRelease: true,
			Transform:             "none",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformStateDir(), "wlime.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		IPC: IPCConfig{
			Enabled: true,
			BusName: "org.wlime.InputMethod",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	if c.Logging.Output != "file" && c.Logging.Output != "both" {
		return nil
	}
	dir := filepath.Dir(c.Logging.FilePath)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with WLIME_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Wayland overrides
	if v := os.Getenv("WLIME_DISPLAY"); v != "" {
		c.Wayland.Display = v
	}
	if v := os.Getenv("WLIME_SEAT"); v != "" {
		c.Wayland.Seat = v
	}

	// Keyboard overrides
	if v := os.Getenv("WLIME_SHM_NAME"); v != "" {
		c.Keyboard.ShmName = v
	}
	if v := os.Getenv("WLIME_TRANSFORM"); v != "" {
		c.Keyboard.Transform = v
	}
	if v, ok := envBool("WLIME_GRAB_ON_ACTIVATE"); ok {
		c.Keyboard.GrabOnActivate = v
	}

	// Logging overrides
	if v := os.Getenv("WLIME_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("WLIME_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("WLIME_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	// IPC overrides
	if v := os.Getenv("WLIME_BUS_NAME"); v != "" {
		c.IPC.BusName = v
	}

	// Metrics overrides
	if v := os.Getenv("WLIME_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
		c.Metrics.Enabled = true
	}
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Version:  c.Version,
		Wayland:  c.Wayland,
		Keyboard: c.Keyboard,
		Logging:  c.Logging,
		IPC:      c.IPC,
		Metrics:  c.Metrics,
	}
}

// Save writes cfg to path, choosing the encoding by extension.
func Save(cfg *Config, path string) error {
	data, err := encode(cfg, filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	// Write with secure permissions
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func encode(cfg *Config, ext string) ([]byte, error) {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	switch ext {
	case ".yaml", ".yml":
		return yaml.Marshal(cfg)
	case ".json":
		return json.MarshalIndent(cfg, "", "  ")
	default:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}
