// Package tasklog carries job-facing output: the lines a user reads in a step's log,
// as opposed to agent diagnostics which go through internal/log.
package tasklog

import (
	"fmt"
	"io"
	"sync"

	"github.com/majorcontext/jobdock/internal/log"
)

// Logger receives ordered, newline-free text lines for one job execution.
type Logger interface {
	Log(line string)
	Warn(line string)
	Error(line string)
}

// Writer writes plain lines to out and prefixed warnings/errors to errOut.
// It is safe for concurrent use because stdout and stderr of one engine invocation are
// streamed on separate goroutines.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

// NewWriter returns a Writer. If errOut is nil, all lines go to out.
func NewWriter(out, errOut io.Writer) *Writer {
	if errOut == nil {
		errOut = out
	}
	return &Writer{out: out, errOut: errOut}
}

func (w *Writer) Log(line string)   { w.write(w.out, "", line) }
func (w *Writer) Warn(line string)  { w.write(w.errOut, "WARNING: ", line) }
func (w *Writer) Error(line string) { w.write(w.errOut, "ERROR: ", line) }

func (w *Writer) write(dst io.Writer, prefix, line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(dst, "%s%s\n", prefix, line)
}

// Slog copies task lines into the agent's debug log. Lines are recorded at debug
// level so they reach the debug file without repeating on a non-verbose terminal.
// JobID may be left empty when the job tag is already set with log.SetJobID.
type Slog struct {
	JobID string
}

func (s Slog) Log(line string)   { s.emit("log", line) }
func (s Slog) Warn(line string)  { s.emit("warn", line) }
func (s Slog) Error(line string) { s.emit("error", line) }

func (s Slog) emit(stream, line string) {
	if s.JobID == "" {
		log.Debug(line, "stream", stream)
		return
	}
	log.Debug(line, "job", s.JobID, "stream", stream)
}

// Tee sends every line to all loggers in order.
func Tee(loggers ...Logger) Logger { return tee(loggers) }

type tee []Logger

func (t tee) Log(line string) {
	for _, l := range t {
		l.Log(line)
	}
}

func (t tee) Warn(line string) {
	for _, l := range t {
		l.Warn(line)
	}
}

func (t tee) Error(line string) {
	for _, l := range t {
		l.Error(line)
	}
}

// Discard drops every line.
var Discard Logger = discard{}

type discard struct{}

func (discard) Log(string)   {}
func (discard) Warn(string)  {}
func (discard) Error(string) {}
