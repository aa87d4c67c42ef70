package container

import (
	"context"
	"maps"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/docker/docker/client"

	"github.com/majorcontext/jobdock/internal/log"
	"github.com/majorcontext/jobdock/internal/tasklog"
)

// DefaultPollInterval is the delay between service state polls.
const DefaultPollInterval = 10 * time.Second

// PollPolicy controls the service readiness loop. A zero Deadline polls until the
// service is ready, fails, or the context is done.
type PollPolicy struct {
	Interval time.Duration
	Deadline time.Duration
}

// Docker issues engine commands for one job execution. Values are cheap to copy;
// scoped overrides such as registry credentials produce a derived *Docker instead of
// mutating the receiver.
type Docker struct {
	binary     string
	exec       Executor
	env        map[string]string
	goos       string
	poll       PollPolicy
	probeImage string
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Docker.
type Option func(*Docker)

// WithExecutor replaces the os/exec runner.
func WithExecutor(e Executor) Option { return func(d *Docker) { d.exec = e } }

// WithGOOS overrides the platform used for Windows-specific behavior.
func WithGOOS(goos string) Option { return func(d *Docker) { d.goos = goos } }

// WithPollPolicy sets the service readiness loop policy.
func WithPollPolicy(p PollPolicy) Option { return func(d *Docker) { d.poll = p } }

// WithEnv adds an environment override to every invocation.
func WithEnv(key, value string) Option { return func(d *Docker) { d.env[key] = value } }

// WithProbeImage sets the throwaway image used for host path probes and
// directory removal. Defaults to busybox.
func WithProbeImage(image string) Option { return func(d *Docker) { d.probeImage = image } }

func withClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(d *Docker) {
		d.now = now
		d.sleep = sleep
	}
}

// NewDocker returns a driver for the engine CLI at binary.
func NewDocker(binary string, opts ...Option) *Docker {
	d := &Docker{
		binary:     binary,
		exec:       ExecRunner{},
		env:        map[string]string{},
		goos:       runtime.GOOS,
		poll:       PollPolicy{Interval: DefaultPollInterval},
		probeImage: "busybox",
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, o := range opts {
		o(d)
	}
	if d.poll.Interval <= 0 {
		d.poll.Interval = DefaultPollInterval
	}
	return d
}

// Binary returns the engine executable.
func (d *Docker) Binary() string { return d.binary }

// UseSocket points every invocation at the daemon socket (or named pipe on Windows)
// at path by setting DOCKER_HOST. An empty path is a no-op.
func (d *Docker) UseSocket(path string) error {
	if path == "" {
		return nil
	}
	host := "unix://" + path
	if d.goos == "windows" {
		host = "npipe://" + path
	}
	if _, err := client.ParseHostURL(host); err != nil {
		return invalidf("invalid docker socket %q: %v", path, err)
	}
	d.env["DOCKER_HOST"] = host
	return nil
}

// Host returns the DOCKER_HOST override, if any.
func (d *Docker) Host() string { return d.env["DOCKER_HOST"] }

// withEnv returns a copy of d carrying an extra override. d is not modified.
func (d *Docker) withEnv(key, value string) *Docker {
	c := *d
	c.env = maps.Clone(d.env)
	c.env[key] = value
	return &c
}

func (d *Docker) command(dir string, args []string) Command {
	c := Command{Path: d.binary, Args: args, Dir: dir}
	for _, k := range slices.Sorted(maps.Keys(d.env)) {
		c.Env = append(c.Env, k+"="+d.env[k])
	}
	return c
}

// stderrTail is how many trailing stderr lines an ExecutionError keeps.
const stderrTail = 20

// Result is the outcome of one invocation.
type Result struct {
	Binary   string
	Args     []string
	ExitCode int
	Stderr   []string
}

// Check returns an *ExecutionError for a non-zero exit.
func (r Result) Check() error {
	if r.ExitCode == 0 {
		return nil
	}
	return &ExecutionError{Binary: r.Binary, Args: r.Args, ExitCode: r.ExitCode, Stderr: r.Stderr}
}

// execute runs one engine command. The returned error covers only failures to run;
// callers decide whether a non-zero exit is fatal via Result.Check.
func (d *Docker) execute(ctx context.Context, dir string, stdout, stderr LineSink, args ...string) (Result, error) {
	cmd := d.command(dir, args)
	log.Debug("running engine command", "cmd", cmd.String(), "dir", dir)

	res := Result{Binary: binaryName(d.binary), Args: args}
	tail := LineSinkFunc(func(line string) {
		if len(res.Stderr) == stderrTail {
			res.Stderr = res.Stderr[1:]
		}
		res.Stderr = append(res.Stderr, line)
		stderr.Consume(line)
	})
	code, err := d.exec.Execute(ctx, cmd, stdout, tail)
	res.ExitCode = code
	if err != nil {
		return res, err
	}
	if code != 0 {
		log.Debug("engine command failed", "args", firstWords(args, 3), "exit", code)
	}
	return res, nil
}

// binaryName is the bare executable name used in error messages, e.g. "podman"
// for /usr/bin/podman or "docker" for C:\bin\docker.exe.
func binaryName(path string) string {
	name := filepath.Base(strings.ReplaceAll(path, `\`, "/"))
	return strings.TrimSuffix(name, ".exe")
}

// run is execute followed by Check.
func (d *Docker) run(ctx context.Context, dir string, stdout, stderr LineSink, args ...string) error {
	res, err := d.execute(ctx, dir, stdout, stderr, args...)
	if err != nil {
		return err
	}
	return res.Check()
}

func infoSink(l tasklog.Logger) LineSink  { return LineSinkFunc(l.Log) }
func warnSink(l tasklog.Logger) LineSink  { return LineSinkFunc(l.Warn) }
func errorSink(l tasklog.Logger) LineSink { return LineSinkFunc(l.Error) }

func debugSink(args ...any) LineSink {
	return LineSinkFunc(func(line string) { log.Debug(line, args...) })
}

func collect(lines *[]string) LineSink {
	return LineSinkFunc(func(line string) { *lines = append(*lines, line) })
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
