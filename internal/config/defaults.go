package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// PlatformConfigDir returns the XDG config directory for wlime:
// $XDG_CONFIG_HOME/wlime or ~/.config/wlime.
func PlatformConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "wlime")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "wlime")
}

// PlatformStateDir returns the XDG state directory used for log files:
// $XDG_STATE_HOME/wlime or ~/.local/state/wlime.
func PlatformStateDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "wlime")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "wlime")
}

// PlatformRuntimeDir returns $XDG_RUNTIME_DIR/wlime, falling back to
// /tmp/wlime-$UID.
func PlatformRuntimeDir() string {
	if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
		return filepath.Join(xdgRuntime, "wlime")
	}
	return filepath.Join("/tmp", "wlime-"+strconv.Itoa(os.Getuid()))
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{"toml", "yaml", "yml", "json"}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if none found.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
