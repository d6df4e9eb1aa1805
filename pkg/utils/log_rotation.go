package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationConfig holds configuration for log rotation
type RotationConfig struct {
	// Filename is the file to write logs to
	Filename string

	// MaxSize is the maximum size in megabytes before rotation (0 = no size limit)
	MaxSize int64

	// MaxBackups is the maximum number of old log files to retain (0 = retain all)
	MaxBackups int
}

// LogRotator is an io.WriteCloser that renames the log file aside once it
// would exceed MaxSize. Long soak and continuous validation runs log through it.
type LogRotator struct {
	mu sync.Mutex

	config *RotationConfig
	file   *os.File
	size   int64
	now    func() time.Time
}

// NewLogRotator creates a new log rotator
func NewLogRotator(config *RotationConfig) (*LogRotator, error) {
	if config == nil {
		return nil, fmt.Errorf("rotation config is required")
	}
	if config.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}

	lr := &LogRotator{config: config, now: time.Now}
	if err := lr.openFile(); err != nil {
		return nil, err
	}
	return lr, nil
}

// Write implements io.Writer
func (lr *LogRotator) Write(p []byte) (int, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.file == nil {
		return 0, os.ErrClosed
	}
	if lr.shouldRotate(int64(len(p))) {
		if err := lr.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log: %w", err)
		}
	}

	n, err := lr.file.Write(p)
	lr.size += int64(n)
	return n, err
}

// Close closes the log file
func (lr *LogRotator) Close() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.file == nil {
		return nil
	}
	err := lr.file.Close()
	lr.file = nil
	return err
}

// Rotate forces an immediate rotation
func (lr *LogRotator) Rotate() error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.rotate()
}

// shouldRotate never fires for an empty file so a single oversized record
// still gets written.
func (lr *LogRotator) shouldRotate(writeSize int64) bool {
	if lr.config.MaxSize <= 0 || lr.size == 0 {
		return false
	}
	return lr.size+writeSize > lr.config.MaxSize*1024*1024
}

func (lr *LogRotator) rotate() error {
	if lr.file != nil {
		if err := lr.file.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
		lr.file = nil
	}

	if err := os.Rename(lr.config.Filename, lr.backupFilename(lr.now().UTC())); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rename log file: %w", err)
	}
	if err := lr.cleanupOldBackups(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to cleanup old log backups: %v\n", err)
	}
	return lr.openFile()
}

func (lr *LogRotator) openFile() error {
	if err := os.MkdirAll(filepath.Dir(lr.config.Filename), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(lr.config.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	lr.file = file
	lr.size = info.Size()
	return nil
}

// backupFilename turns harness.log into harness-2006-01-02T15-04-05.000.log.
func (lr *LogRotator) backupFilename(ts time.Time) string {
	dir, prefix, ext := lr.nameParts()
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", prefix, ts.Format("2006-01-02T15-04-05.000"), ext))
}

func (lr *LogRotator) nameParts() (dir, prefix, ext string) {
	dir = filepath.Dir(lr.config.Filename)
	base := filepath.Base(lr.config.Filename)
	ext = filepath.Ext(base)
	return dir, strings.TrimSuffix(base, ext), ext
}

// backups lists rotated files oldest first. The timestamp format sorts
// lexically.
func (lr *LogRotator) backups() ([]string, error) {
	dir, prefix, ext := lr.nameParts()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	current := filepath.Base(lr.config.Filename)
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == current {
			continue
		}
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ext) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (lr *LogRotator) cleanupOldBackups() error {
	if lr.config.MaxBackups <= 0 {
		return nil
	}
	names, err := lr.backups()
	if err != nil {
		return err
	}

	dir := filepath.Dir(lr.config.Filename)
	for len(names) > lr.config.MaxBackups {
		if err := os.Remove(filepath.Join(dir, names[0])); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}
