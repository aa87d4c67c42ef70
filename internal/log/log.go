// Package log is the agent's diagnostic logger. It wraps log/slog with a stderr
// handler gated by verbosity and an optional always-debug JSONL file under the
// agent's debug directory. Job output does not go here; see internal/tasklog.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

var (
	logger    *slog.Logger
	base      slog.Handler
	debugFile *os.File
)

// Options configures Init.
type Options struct {
	// Verbose lowers the stderr level to debug.
	Verbose bool
	// JSONFormat switches stderr to JSON, used when stderr is not a terminal.
	JSONFormat bool
	// DebugDir receives agent-YYYY-MM-DD.jsonl files, one per day shared by every
	// invocation. Empty disables file logging.
	DebugDir string
	// RetentionDays removes older debug files at startup (0 keeps everything).
	RetentionDays int
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// Init replaces the global logger.
func Init(opts Options) error {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if opts.JSONFormat {
		handlers = append(handlers, slog.NewJSONHandler(stderr, hopts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(stderr, hopts))
	}

	var pruned []string
	if opts.DebugDir != "" {
		now := time.Now()
		if opts.RetentionDays > 0 {
			pruned = pruneDebugFiles(opts.DebugDir, opts.RetentionDays, now)
		}
		f, err := openDebugFile(opts.DebugDir, now)
		if err != nil {
			return err
		}
		Close()
		debugFile = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	setBase(&multiHandler{handlers: handlers})
	if len(pruned) > 0 {
		Debug("removed expired debug logs", "dir", opts.DebugDir, "files", pruned)
	}
	return nil
}

// Close releases the debug file, if any.
func Close() {
	if debugFile != nil {
		debugFile.Close()
		debugFile = nil
	}
}

func setBase(h slog.Handler) {
	base = h
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// multiHandler fans records out to every handler that accepts the level.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}

func Debug(msg string, args ...any) { logger.Debug(msg, args...) }
func Info(msg string, args ...any)  { logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { logger.Warn(msg, args...) }
func Error(msg string, args ...any) { logger.Error(msg, args...) }

// Enabled reports whether level would be emitted anywhere.
func Enabled(level slog.Level) bool {
	return logger.Enabled(context.Background(), level)
}

// With returns a child logger carrying args.
func With(args ...any) *slog.Logger {
	return logger.With(args...)
}

// SetOutput routes everything at debug level to w. Tests only.
func SetOutput(w io.Writer) {
	setBase(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// SetJobID tags subsequent records with job=<id> until ClearJobID.
func SetJobID(jobID string) {
	logger = slog.New(base.WithAttrs([]slog.Attr{slog.String("job", jobID)}))
	slog.SetDefault(logger)
}

// ClearJobID drops the job tag.
func ClearJobID() {
	logger = slog.New(base)
	slog.SetDefault(logger)
}

func init() {
	base = slog.Default().Handler()
	logger = slog.Default()
}
