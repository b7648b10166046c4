// Package errlog provides the durable append-only log for unhandled errors.
// Unclassified inference failures are appended here, tagged with the calling
// operation, before being treated as permanent.
package errlog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Log appends unhandled errors to a file, one line per entry. Safe for
// concurrent use by multiple workers.
type Log struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Options configures a Log.
type Options struct {
	// Path is the file appended to. Required.
	Path string
	// Logger additionally mirrors entries to structured logging. Optional.
	Logger *slog.Logger
	// Now overrides the clock, for tests. Optional.
	Now func() time.Time
}

// New creates an append-only error log.
func New(opts Options) (*Log, error) {
	if opts.Path == "" {
		return nil, errors.New("error log path is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Log{path: opts.Path, logger: opts.Logger, now: now}, nil
}

// Write appends one entry tagged with the calling operation's name. The entry
// is flushed before returning so it survives a crash of the worker.
func (l *Log) Write(op string, err error) error {
	if err == nil {
		return nil
	}

	line := fmt.Sprintf("%s op=%s class=%s error=%s\n",
		l.now().UTC().Format(time.RFC3339), op, classify(err), err.Error())

	l.mu.Lock()
	defer l.mu.Unlock()

	f, openErr := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if openErr != nil {
		return fmt.Errorf("open error log: %w", openErr)
	}
	defer f.Close()

	if _, writeErr := f.WriteString(line); writeErr != nil {
		return fmt.Errorf("append error log: %w", writeErr)
	}
	if syncErr := f.Sync(); syncErr != nil {
		return fmt.Errorf("sync error log: %w", syncErr)
	}

	if l.logger != nil {
		l.logger.Error("unhandled error", "op", op, "error", err)
	}
	return nil
}

// classify returns a normalized error type name suitable for tagging log
// entries. It unwraps to the innermost concrete type.
func classify(err error) string {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
