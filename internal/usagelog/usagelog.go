// Package usagelog appends one row per front-end action to the usage log.
package usagelog

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/medrec/internal/storage"
)

// TimestampLayout is the usage log timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

// Logger writes usage rows: username, role, timestamp, action.
// The file has no header row.
type Logger struct {
	mu     sync.Mutex
	fs     storage.Provider
	name   string
	now    func() time.Time
	logger *slog.Logger
}

// New creates a usage logger appending to name.
func New(p storage.Provider, name string, logger *slog.Logger) *Logger {
	return &Logger{fs: p, name: name, now: time.Now, logger: logger}
}

// Record appends one usage row. Failures are logged and returned; callers
// treat them as non-fatal.
func (l *Logger) Record(username, role, action string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row, err := storage.EncodeRows([]string{username, role, l.now().Format(TimestampLayout), action})
	if err != nil {
		return err
	}
	if err := l.fs.Append(l.name, nil, row); err != nil {
		l.logger.Warn("usagelog: append failed", slog.String("action", action), slog.String("error", err.Error()))
		return fmt.Errorf("usagelog: %w", err)
	}
	return nil
}
