package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogRotator is a size-bounded log file. A write that would push the file
// past maxBytes first shifts app.log to app.log.1, app.log.1 to app.log.2
// and so on, dropping anything beyond the configured number of backups.
type LogRotator struct {
	path     string
	maxBytes int64
	backups  int

	mu   sync.Mutex
	file *os.File
	size int64
}

// OpenLogRotator opens (or appends to) path. maxBytes <= 0 never rotates.
func OpenLogRotator(path string, maxBytes, backups int) (*LogRotator, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("config: log dir: %w", err)
	}
	lr := &LogRotator{path: path, maxBytes: int64(maxBytes), backups: max(backups, 0)}
	if err := lr.reopen(); err != nil {
		return nil, err
	}
	return lr, nil
}

func (lr *LogRotator) reopen() error {
	f, err := os.OpenFile(lr.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("config: open log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("config: stat log: %w", err)
	}
	lr.file, lr.size = f, info.Size()
	return nil
}

func (lr *LogRotator) backupName(n int) string {
	if n == 0 {
		return lr.path
	}
	return fmt.Sprintf("%s.%d", lr.path, n)
}

func (lr *LogRotator) Write(p []byte) (int, error) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.file == nil {
		return 0, fs.ErrClosed
	}
	// An empty file takes the record whatever its size
	if lr.maxBytes > 0 && lr.size > 0 && lr.size+int64(len(p)) > lr.maxBytes {
		if err := lr.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "config: log rotation: %v\n", err)
		}
	}
	n, err := lr.file.Write(p)
	lr.size += int64(n)
	return n, err
}

// rotate shifts the backups down by one. If the fresh file cannot be
// opened, writing continues on the file that was current.
func (lr *LogRotator) rotate() error {
	if lr.backups == 0 {
		if err := lr.file.Truncate(0); err != nil {
			return err
		}
		lr.size = 0
		return nil
	}

	if err := lr.file.Close(); err != nil {
		return err
	}
	var errs []error
	for n := lr.backups; n > 0; n-- {
		err := os.Rename(lr.backupName(n-1), lr.backupName(n))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := lr.reopen(); err != nil {
		// Keep appending to the file that was just moved aside
		f, ferr := os.OpenFile(lr.backupName(1), os.O_WRONLY|os.O_APPEND, 0o644)
		if ferr != nil {
			lr.file = nil
			return errors.Join(append(errs, err, ferr)...)
		}
		lr.file = f
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close closes the current file. Later writes fail with fs.ErrClosed.
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

// ParseLevel maps a config level name to a slog level. Unknown names map to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the slog logger described by cfg, writing to out.
// Debug level also records the source position of each call.
func NewLogger(cfg *Config, out io.Writer) *slog.Logger {
	level := ParseLevel(cfg.LogLevel)
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}))
}

// ConfigureLogging installs the process-wide logger: the rotating log file
// plus stdout when LogToStdout is set, stdout alone when no file is usable.
// The returned cleanup closes the file and is never nil.
func ConfigureLogging(cfg *Config) (cleanup func(), err error) {
	cleanup = func() {}
	var outputs []io.Writer

	if cfg.LogFile != "" {
		lr, openErr := OpenLogRotator(cfg.LogFile, cfg.LogMaxBytes, cfg.LogBackupCount)
		if openErr != nil {
			err = openErr
		} else {
			outputs = append(outputs, lr)
			cleanup = func() { lr.Close() }
		}
	}
	if cfg.LogToStdout || len(outputs) == 0 {
		outputs = append(outputs, os.Stdout)
	}

	slog.SetDefault(NewLogger(cfg, io.MultiWriter(outputs...)))
	if err != nil {
		slog.Warn("file logging disabled", "component", "config", "file", cfg.LogFile, "error", err)
	}
	return cleanup, err
}
