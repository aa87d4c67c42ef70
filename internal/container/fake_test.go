package container

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// reply is one scripted engine response.
type reply struct {
	stdout []string
	stderr []string
	exit   int
	// before runs when the call is received, before output is streamed.
	before func(args []string)
}

type rule struct {
	prefix  []string
	replies []reply
	served  int
}

// fakeEngine is an Executor that records every invocation and answers from rules
// matched by argument prefix. The last reply of a rule repeats.
type fakeEngine struct {
	t     *testing.T
	mu    sync.Mutex
	rules []*rule
	calls []Command
}

func newFakeEngine(t *testing.T) *fakeEngine {
	return &fakeEngine{t: t}
}

func (f *fakeEngine) on(prefix string, replies ...reply) {
	if len(replies) == 0 {
		replies = []reply{{}}
	}
	f.rules = append(f.rules, &rule{prefix: strings.Fields(prefix), replies: replies})
}

func (f *fakeEngine) Execute(_ context.Context, cmd Command, stdout, stderr LineSink) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	var r *reply
	for _, rl := range f.rules {
		if hasPrefix(cmd.Args, rl.prefix) {
			i := min(rl.served, len(rl.replies)-1)
			rl.served++
			r = &rl.replies[i]
			break
		}
	}
	f.mu.Unlock()

	if r == nil {
		f.t.Errorf("unexpected engine call: %v", cmd.Args)
		return 1, nil
	}
	if r.before != nil {
		r.before(cmd.Args)
	}
	for _, l := range r.stdout {
		stdout.Consume(l)
	}
	for _, l := range r.stderr {
		stderr.Consume(l)
	}
	return r.exit, nil
}

func hasPrefix(args, prefix []string) bool {
	if len(prefix) > len(args) {
		return false
	}
	for i, p := range prefix {
		if args[i] != p {
			return false
		}
	}
	return true
}

// argv returns the argument vectors of all calls so far.
func (f *fakeEngine) argv() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Args
	}
	return out
}

// count returns how many calls started with prefix.
func (f *fakeEngine) count(prefix string) int {
	p := strings.Fields(prefix)
	n := 0
	for _, a := range f.argv() {
		if hasPrefix(a, p) {
			n++
		}
	}
	return n
}

// newTestDocker wires a Docker to f with an instant, recorded sleep.
func newTestDocker(f *fakeEngine, opts ...Option) (*Docker, *[]time.Duration) {
	var slept []time.Duration
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := []Option{
		WithExecutor(f),
		WithGOOS("linux"),
		withClock(
			func() time.Time { return clock },
			func(_ context.Context, d time.Duration) error {
				slept = append(slept, d)
				clock = clock.Add(d)
				return nil
			},
		),
	}
	return NewDocker("docker", append(base, opts...)...), &slept
}
