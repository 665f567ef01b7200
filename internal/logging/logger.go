// Package logging builds the zerolog logger used by the service and HTTP layer.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const permission = 0o664

// Builder configures a Logger before Make.
type Builder struct {
	writer io.Writer
	path   string
	level  string
}

// Logger adapts zerolog to the key/value Logger interface of internal/core.
type Logger struct {
	zl   zerolog.Logger
	file *os.File
}

// New returns a builder that writes JSON lines to stdout at info level.
func New() *Builder {
	return &Builder{writer: os.Stdout}
}

// FromEnv reads the level from KEYLEDGER_LOG_LEVEL and an optional file
// destination from KEYLEDGER_LOG_FILE.
func FromEnv() *Builder {
	return New().WithLevel(os.Getenv("KEYLEDGER_LOG_LEVEL")).FromPath(os.Getenv("KEYLEDGER_LOG_FILE"))
}

// FromPath appends to the file at path instead of the writer.
func (b *Builder) FromPath(path string) *Builder {
	b.path = path
	return b
}

// FromWriter sets the destination writer.
func (b *Builder) FromWriter(w io.Writer) *Builder {
	if w != nil {
		b.writer = w
	}
	return b
}

// WithLevel sets the minimum level by name. Blank keeps the default.
func (b *Builder) WithLevel(level string) *Builder {
	b.level = level
	return b
}

// Make opens the destination and builds the logger.
func (b *Builder) Make() (*Logger, error) {
	level := zerolog.InfoLevel
	if b.level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(b.level)))
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", b.level, err)
		}
		level = parsed
	}
	out := &Logger{}
	w := b.writer
	if b.path != "" {
		f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		out.file = f
		w = zerolog.SyncWriter(f)
	}
	out.zl = zerolog.New(w).Level(level).With().Timestamp().Logger()
	return out, nil
}

// Zerolog exposes the underlying logger for components that log natively.
func (l *Logger) Zerolog() *zerolog.Logger { return &l.zl }

// Close releases the log file when one was opened.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) Debug(msg string, args ...any) { emit(l.zl.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...any)  { emit(l.zl.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { emit(l.zl.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { emit(l.zl.Error(), msg, args) }

// emit attaches alternating key/value args. A trailing key without a value is
// logged under "!BADKEY".
func emit(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			ev = ev.Interface("!BADKEY", args[i])
			break
		}
		switch v := args[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}
