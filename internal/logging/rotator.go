package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotateConfig configures a FileRotator.
type RotateConfig struct {
	// Path is the active log file.
	Path string
	// MaxSizeMB triggers rotation once the file would exceed it.
	MaxSizeMB int
	// MaxBackups bounds the number of rotated files kept. Zero keeps all.
	MaxBackups int
	// MaxAgeDays removes rotated files older than this. Zero keeps all.
	MaxAgeDays int
	// Compress gzips rotated files.
	Compress bool
}

// FileRotator is an io.Writer that rotates its file by size.
// Rotated files are named <name>-<timestamp><ext>[.gz].
type FileRotator struct {
	cfg  RotateConfig
	now  func() time.Time
	mu   sync.Mutex
	file *os.File
	size int64
	// wg tracks background compression and cleanup.
	wg sync.WaitGroup
}

// NewFileRotator opens cfg.Path for appending, creating its directory.
func NewFileRotator(cfg RotateConfig) (*FileRotator, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	r := &FileRotator{cfg: cfg, now: time.Now}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	file, err := os.OpenFile(r.cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file = file
	r.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}

	if max := int64(r.cfg.MaxSizeMB) << 20; max > 0 && r.size > 0 && r.size+int64(len(p)) > max {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close current log: %w", err)
	}
	r.file = nil

	name, ext := r.nameParts()
	rotated := filepath.Join(filepath.Dir(r.cfg.Path),
		fmt.Sprintf("%s-%s%s", name, r.now().Format("20060102-150405.000"), ext))
	if err := os.Rename(r.cfg.Path, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	if err := r.open(); err != nil {
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.cfg.Compress {
			compressFile(rotated)
		}
		r.cleanup()
	}()
	return nil
}

func (r *FileRotator) nameParts() (name, ext string) {
	base := filepath.Base(r.cfg.Path)
	ext = filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}

// compressFile replaces path with path.gz.
func compressFile(path string) {
	input, err := os.Open(path)
	if err != nil {
		return
	}
	defer input.Close()

	output, err := os.OpenFile(path+".gz", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0640)
	if err != nil {
		return
	}

	gz := gzip.NewWriter(output)
	gz.Name = filepath.Base(path)
	_, err = io.Copy(gz, input)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := output.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

// Backups returns the rotated files, oldest first.
func (r *FileRotator) Backups() ([]string, error) {
	name, ext := r.nameParts()
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(r.cfg.Path), name+"-*"+ext+"*"))
	if err != nil {
		return nil, err
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	backups := make([]backup, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		backups = append(backups, backup{m, info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].modTime.Equal(backups[j].modTime) {
			return backups[i].path < backups[j].path
		}
		return backups[i].modTime.Before(backups[j].modTime)
	})

	paths := make([]string, len(backups))
	for i, b := range backups {
		paths[i] = b.path
	}
	return paths, nil
}

func (r *FileRotator) cleanup() {
	backups, err := r.Backups()
	if err != nil {
		return
	}

	if r.cfg.MaxBackups > 0 && len(backups) > r.cfg.MaxBackups {
		for _, p := range backups[:len(backups)-r.cfg.MaxBackups] {
			os.Remove(p)
		}
		backups = backups[len(backups)-r.cfg.MaxBackups:]
	}

	if r.cfg.MaxAgeDays > 0 {
		cutoff := r.now().AddDate(0, 0, -r.cfg.MaxAgeDays)
		for _, p := range backups {
			if info, err := os.Stat(p); err == nil && info.ModTime().Before(cutoff) {
				os.Remove(p)
			}
		}
	}
}

// Close waits for pending compression and closes the file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wg.Wait()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Sync flushes the file to disk.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Sync()
	}
	return nil
}
