package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitStderrLevels(t *testing.T) {
	var stderr bytes.Buffer
	if err := Init(Options{Stderr: &stderr}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := stderr.String()
	for _, hidden := range []string{"debug message", "info message"} {
		if strings.Contains(out, hidden) {
			t.Errorf("%q should not reach stderr without --verbose", hidden)
		}
	}
	for _, shown := range []string{"warn message", "error message"} {
		if !strings.Contains(out, shown) {
			t.Errorf("%q should reach stderr", shown)
		}
	}
}

func TestInitVerboseJSON(t *testing.T) {
	var stderr bytes.Buffer
	if err := Init(Options{Verbose: true, JSONFormat: true, Stderr: &stderr}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close()

	Debug("polling service", "container", "n1-service-db")
	out := stderr.String()
	if !strings.Contains(out, `"msg":"polling service"`) || !strings.Contains(out, `"container":"n1-service-db"`) {
		t.Errorf("expected JSON debug record, got %q", out)
	}
}

func TestInitFileGetsEverything(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "agent-"+time.Now().AddDate(0, 0, -40).Format("2006-01-02")+".jsonl")
	if err := os.WriteFile(old, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stderr bytes.Buffer
	if err := Init(Options{DebugDir: dir, RetentionDays: 14, Stderr: &stderr}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Debug("inspect attempt", "image", "busybox")
	Close()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired debug log should be removed by Init")
	}
	content, err := os.ReadFile(filepath.Join(dir, "agent-"+time.Now().Format("2006-01-02")+".jsonl"))
	if err != nil {
		t.Fatalf("reading debug log: %v", err)
	}
	if !strings.Contains(string(content), "inspect attempt") {
		t.Errorf("debug record missing from file: %q", content)
	}
	if strings.Contains(stderr.String(), "inspect attempt") {
		t.Error("debug record leaked to stderr")
	}
}

func TestJobID(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	SetJobID("job-42")
	Info("inside")
	ClearJobID()
	Info("outside")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "job=job-42") {
		t.Errorf("first line should carry the job id: %q", lines[0])
	}
	if strings.Contains(lines[1], "job=") {
		t.Errorf("job id should be cleared: %q", lines[1])
	}
}
