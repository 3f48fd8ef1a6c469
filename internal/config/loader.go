package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultDebounce is how long the file must stay quiet before a reload.
const DefaultDebounce = 100 * time.Millisecond

type decodeFunc func(data []byte, cfg *Config) error

var decoders = map[string]decodeFunc{
	".toml": func(data []byte, cfg *Config) error {
		_, err := toml.Decode(string(data), cfg)
		return err
	},
	".json": func(data []byte, cfg *Config) error { return json.Unmarshal(data, cfg) },
	".yaml": func(data []byte, cfg *Config) error { return yaml.Unmarshal(data, cfg) },
	".yml":  func(data []byte, cfg *Config) error { return yaml.Unmarshal(data, cfg) },
}

// Loader owns the active configuration of one file and reloads it when the
// file changes on disk.
type Loader struct {
	path     string
	debounce time.Duration

	mu        sync.RWMutex
	current   *Config
	listeners []func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
	errs    chan error
}

// NewLoader returns a Loader for path, or for ConfigPath when path is empty.
func NewLoader(path string) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	return &Loader{
		path:     path,
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
		errs:     make(chan error, 1),
	}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string { return l.path }

// Load reads the file, applies WLIME_* overrides and validates the result.
// A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.read()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) read() (*Config, error) {
	cfg, err := loadConfigFromFile(l.path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", l.path, err)
	}
	return cfg, nil
}

// Config returns the last successfully loaded configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers fn to run after every successful reload. Callbacks run
// on the watcher goroutine.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Errors delivers reload failures. Only the oldest undelivered error is kept.
func (l *Loader) Errors() <-chan error { return l.errs }

// Watch starts reloading the file when it changes. The parent directory is
// watched so editors that write a temporary file and rename it are seen.
func (l *Loader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(l.path), err)
	}
	l.watcher = w
	go l.watch(w)
	return nil
}

func (l *Loader) watch(w *fsnotify.Watcher) {
	name := filepath.Base(l.path)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-l.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(l.debounce)
		case <-timer.C:
			l.reload()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.report(err)
		}
	}
}

// reload swaps in the file's current contents. A file that fails to parse
// or validate leaves the previous configuration active.
func (l *Loader) reload() {
	select {
	case <-l.done:
		return
	default:
	}

	cfg, err := l.read()
	if err != nil {
		l.report(fmt.Errorf("reload config: %w", err))
		return
	}

	l.mu.Lock()
	l.current = cfg
	listeners := append([]func(*Config){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

func (l *Loader) report(err error) {
	select {
	case l.errs <- err:
	default:
	}
}

// Close stops watching. It is safe to call more than once.
func (l *Loader) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		if l.watcher != nil {
			err = l.watcher.Close()
		}
	})
	return err
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	ext := filepath.Ext(path)
	if decode, ok := decoders[ext]; ok {
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ext, err)
		}
		return cfg, nil
	}

	// Unknown extension: take the first format that parses.
	for _, ext := range SupportedConfigFormats() {
		candidate := DefaultConfig()
		if decoders["."+ext](data, candidate) == nil {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("parse %s: not TOML, JSON or YAML", path)
}

// LoadOrCreate loads path, first writing the defaults there if the file is
// missing. The bool reports whether the file was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := Save(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		return cfg, true, nil
	}
	cfg, err := NewLoader(path).Load()
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}
