// Package container drives a Docker-compatible engine through its command line.
// Every engine call is a Command handed to an Executor, which streams stdout and
// stderr line by line to two independent sinks and reports the exit status.
package container

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/syntax"

	"github.com/majorcontext/jobdock/internal/log"
)

// LineSink receives output lines in the order the engine produced them on one stream.
type LineSink interface {
	Consume(line string)
}

// LineSinkFunc adapts a function to LineSink.
type LineSinkFunc func(line string)

func (f LineSinkFunc) Consume(line string) { f(line) }

// Discard ignores every line.
var Discard LineSink = LineSinkFunc(func(string) {})

// Command is one engine invocation.
type Command struct {
	Path string
	Args []string
	// Dir is the working directory; empty means the agent's own.
	Dir string
	// Env holds KEY=VALUE overrides layered on top of the agent's environment.
	Env []string
}

// String renders the command as a shell-quoted line for diagnostics.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, s := range append([]string{c.Path}, c.Args...) {
		q, err := syntax.Quote(s, syntax.LangBash)
		if err != nil {
			q = fmt.Sprintf("%q", s)
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

// Executor runs a Command to completion. A non-zero exit is reported through the exit
// code, not the error; err is reserved for failures to run the program at all.
type Executor interface {
	Execute(ctx context.Context, cmd Command, stdout, stderr LineSink) (exitCode int, err error)
}

// maxLineSize bounds a single output line. Inspect output for a container with many
// mounts fits comfortably.
const maxLineSize = 1 << 20

// outputGrace bounds how long Execute keeps reading after the engine exits. A
// detached grandchild that inherited stdout or stderr would otherwise hold the pipes
// open and block the call.
var outputGrace = 5 * time.Second

// ExecRunner is the Executor backed by os/exec.
type ExecRunner struct{}

func (ExecRunner) Execute(ctx context.Context, c Command, stdout, stderr LineSink) (int, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.WaitDelay = outputGrace
	closeWriters := func() {
		_ = outW.Close()
		_ = errW.Close()
	}
	if err := cmd.Start(); err != nil {
		closeWriters()
		return -1, fmt.Errorf("starting %s: %w", c.Path, err)
	}

	var g errgroup.Group
	g.Go(func() error { return scanLines(outR, stdout) })
	g.Go(func() error { return scanLines(errR, stderr) })
	waitErr := cmd.Wait()
	closeWriters()
	scanErr := g.Wait()

	if ctx.Err() != nil {
		return -1, fmt.Errorf("running %s: %w", c.Path, ctx.Err())
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		log.Debug("engine output still open after exit, stopped reading", "cmd", c.Path, "grace", outputGrace)
		waitErr = nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return -1, fmt.Errorf("running %s: %w", c.Path, waitErr)
		}
		return exitErr.ExitCode(), nil
	}
	if scanErr != nil {
		return 0, fmt.Errorf("reading output of %s: %w", c.Path, scanErr)
	}
	return cmd.ProcessState.ExitCode(), nil
}

func scanLines(r io.Reader, sink LineSink) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		sink.Consume(strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		// Drain so the child does not block on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}
