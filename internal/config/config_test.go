package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}
	if !cfg.Keyboard.ClearPreeditOnRelease {
		t.Error("clear_preedit_on_release should default to true")
	}
	if cfg.Keyboard.Transform != "none" {
		t.Errorf("expected transform none, got %s", cfg.Keyboard.Transform)
	}
	if cfg.IPC.BusName != "org.wlime.InputMethod" {
		t.Errorf("unexpected bus name %s", cfg.IPC.BusName)
	}
	if !strings.HasSuffix(cfg.Logging.FilePath, "wlime.log") {
		t.Errorf("log path should end with wlime.log: %s", cfg.Logging.FilePath)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	path := ConfigPath()
	if path != "/xdg/config/wlime/config.toml" {
		t.Errorf("unexpected config path %s", path)
	}
}

func TestPlatformDirsFallBackToHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", "/home/test")

	if got := PlatformConfigDir(); got != "/home/test/.config/wlime" {
		t.Errorf("unexpected config dir %s", got)
	}
	if got := PlatformStateDir(); got != "/home/test/.local/state/wlime" {
		t.Errorf("unexpected state dir %s", got)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected level info, got %s", cfg.Logging.Level)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeFile(t, "config.toml", `
version = 1

[wayland]
display = "wayland-1"
seat = "seat0"

[keyboard]
shm_name = "/wlime-keymap"
clear_preedit_on_release = false
transform = "upper"
grab_on_activate = true

[logging]
level = "debug"
format = "json"

[ipc]
bus_name = "org.example.Ime"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Wayland.Display != "wayland-1" || cfg.Wayland.Seat != "seat0" {
		t.Errorf("unexpected wayland section %+v", cfg.Wayland)
	}
	if cfg.Keyboard.ShmName != "/wlime-keymap" {
		t.Errorf("unexpected shm name %s", cfg.Keyboard.ShmName)
	}
	if cfg.Keyboard.ClearPreeditOnRelease {
		t.Error("clear_preedit_on_release should be false")
	}
	if cfg.Keyboard.Transform != "upper" || !cfg.Keyboard.GrabOnActivate {
		t.Errorf("unexpected keyboard section %+v", cfg.Keyboard)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging section %+v", cfg.Logging)
	}
	if cfg.IPC.BusName != "org.example.Ime" {
		t.Errorf("unexpected bus name %s", cfg.IPC.BusName)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should be valid: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
keyboard:
  transform: trim
metrics:
  enabled: true
  listen: "127.0.0.1:9000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Keyboard.Transform != "trim" {
		t.Errorf("expected transform trim, got %s", cfg.Keyboard.Transform)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9000" {
		t.Errorf("unexpected metrics section %+v", cfg.Metrics)
	}
	// Untouched keys keep their defaults.
	if !cfg.Keyboard.ClearPreeditOnRelease {
		t.Error("clear_preedit_on_release should keep its default")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := writeFile(t, "config.toml", "this is not valid toml {{{\n")

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WLIME_SEAT", "seat1")
	t.Setenv("WLIME_LOG_LEVEL", "warn")
	t.Setenv("WLIME_GRAB_ON_ACTIVATE", "true")
	t.Setenv("WLIME_METRICS_LISTEN", "127.0.0.1:9100")

	cfg, err := Load("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Wayland.Seat != "seat1" {
		t.Errorf("expected seat1, got %s", cfg.Wayland.Seat)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected level warn, got %s", cfg.Logging.Level)
	}
	if !cfg.Keyboard.GrabOnActivate {
		t.Error("expected grab_on_activate from env")
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "127.0.0.1:9100" {
		t.Errorf("unexpected metrics section %+v", cfg.Metrics)
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		mutate func(*Config)
	}{
		{"transform", "keyboard.transform", func(c *Config) { c.Keyboard.Transform = "title" }},
		{"shm name", "keyboard.shm_name", func(c *Config) { c.Keyboard.ShmName = "no-slash" }},
		{"level", "logging.level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"output", "logging.output", func(c *Config) { c.Logging.Output = "syslog" }},
		{"file path", "logging.file_path", func(c *Config) {
			c.Logging.Output = "file"
			c.Logging.FilePath = ""
		}},
		{"bus name", "ipc.bus_name", func(c *Config) { c.IPC.BusName = "nodots" }},
		{"listen", "metrics.listen", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Listen = "9464"
		}},
		{"version", "version", func(c *Config) { c.Version = Version + 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for %s, got %v", tt.field, verrs)
			}
		})
	}
}

func TestIPCDisabledSkipsBusName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IPC.Enabled = false
	cfg.IPC.BusName = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled IPC should not require a bus name: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	for _, ext := range []string{".toml", ".yaml", ".json"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "config"+ext)

			cfg := DefaultConfig()
			cfg.Wayland.Seat = "seat9"
			cfg.Keyboard.Transform = "lower"
			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("stat: %v", err)
			}
			if info.Mode().Perm() != 0600 {
				t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Wayland.Seat != "seat9" || loaded.Keyboard.Transform != "lower" {
				t.Errorf("values not preserved: %+v %+v", loaded.Wayland, loaded.Keyboard)
			}
		})
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created || cfg == nil {
		t.Fatal("expected a new config file")
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("second call should load the existing file")
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs", "nested")
	cfg := DefaultConfig()
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(dir, "wlime.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory not created: %v", err)
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Keyboard.Transform = "upper"
	if cfg.Keyboard.Transform != "none" {
		t.Error("modifying the clone changed the original")
	}
}

func TestLoaderReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[keyboard]\ntransform = \"none\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	l.debounce = 10 * time.Millisecond
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan *Config, 1)
	l.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer l.Close()

	if err := os.WriteFile(path, []byte("[keyboard]\ntransform = \"upper\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changed:
		if c.Keyboard.Transform != "upper" {
			t.Errorf("expected reloaded transform upper, got %s", c.Keyboard.Transform)
		}
		if l.Config().Keyboard.Transform != "upper" {
			t.Error("Config() did not return the reloaded config")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestLoaderKeepsConfigOnInvalidReload(t *testing.T) {
	path := writeFile(t, "config.toml", "[keyboard]\ntransform = \"lower\"\n")

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[keyboard]\ntransform = \"sideways\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	l.reload()

	if l.Config().Keyboard.Transform != "lower" {
		t.Errorf("invalid reload replaced config: %s", l.Config().Keyboard.Transform)
	}
	select {
	case err := <-l.Errors():
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	default:
		t.Error("expected an error on the errors channel")
	}
}

func TestLoaderReloadNotifiesEveryListener(t *testing.T) {
	path := writeFile(t, "config.toml", "[keyboard]\ntransform = \"lower\"\n")

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var got []string
	l.OnChange(func(c *Config) { got = append(got, "first:"+c.Keyboard.Transform) })
	l.OnChange(func(c *Config) { got = append(got, "second:"+c.Keyboard.Transform) })

	if err := os.WriteFile(path, []byte("[keyboard]\ntransform = \"upper\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	l.reload()

	if len(got) != 2 || got[0] != "first:upper" || got[1] != "second:upper" {
		t.Errorf("listeners saw %v", got)
	}
	if l.Config().Keyboard.Transform != "upper" {
		t.Errorf("reload did not swap config: %s", l.Config().Keyboard.Transform)
	}
}
