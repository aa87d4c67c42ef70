package tasklog

import "sync"

// Level tags a recorded line.
type Level string

const (
	LevelLog   Level = "log"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one recorded line.
type Entry struct {
	Level Level
	Line  string
}

// Recorder keeps every line in memory. Tests use it to assert on job output.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Log(line string)   { r.add(LevelLog, line) }
func (r *Recorder) Warn(line string)  { r.add(LevelWarn, line) }
func (r *Recorder) Error(line string) { r.add(LevelError, line) }

func (r *Recorder) add(level Level, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Line: line})
}

// Entries returns a copy of the recorded lines.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Lines returns the text of every recorded line regardless of level.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Line)
	}
	return out
}
