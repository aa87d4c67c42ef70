package container

import (
	"errors"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
)

// ValidationError reports an unsupported option or an unsafe path found before any
// engine invocation was issued. It matches errdefs.ErrInvalidArgument.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return errdefs.ErrInvalidArgument }

func invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ExecutionError reports a non-zero engine exit.
type ExecutionError struct {
	// Binary is the engine executable name; empty means docker.
	Binary   string
	Args     []string
	ExitCode int
	// Stderr holds the trailing stderr lines of the failed invocation.
	Stderr []string
}

func (e *ExecutionError) Error() string {
	bin := e.Binary
	if bin == "" {
		bin = "docker"
	}
	msg := fmt.Sprintf("%s %s: exit status %d", bin, firstWords(e.Args, 3), e.ExitCode)
	if n := len(e.Stderr); n > 0 {
		msg += ": " + e.Stderr[n-1]
	}
	return msg
}

func firstWords(args []string, n int) string {
	if len(args) > n {
		return strings.Join(args[:n], " ") + " ..."
	}
	return strings.Join(args, " ")
}

// StateError reports engine state that makes the operation impossible: a service
// that stopped, or nothing found where something was required.
type StateError struct {
	Op     string
	Reason string
	// NotFound marks "nothing found" conditions; they match errdefs.ErrNotFound
	// instead of errdefs.ErrFailedPrecondition.
	NotFound  bool
	OOMKilled bool
	ExitError string
	Logs      []string
}

func (e *StateError) Error() string { return e.Reason }

func (e *StateError) Unwrap() error {
	if e.NotFound {
		return errdefs.ErrNotFound
	}
	return errdefs.ErrFailedPrecondition
}

// ErrorMessage returns the message to show a user for err: the text of the innermost
// typed error when there is one, otherwise the whole chain.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var se *StateError
	if errors.As(err, &se) {
		return se.Error()
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Error()
	}
	return err.Error()
}
