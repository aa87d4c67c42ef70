package ui

import (
	"bytes"
	"testing"
)

func TestSectionPlain(t *testing.T) {
	SetColorEnabled(false)
	var buf bytes.Buffer
	Section(&buf, "Engine")

	if got, want := buf.String(), "Engine\n------\n"; got != want {
		t.Errorf("Section() = %q, want %q", got, want)
	}
}

func TestErrorfPlain(t *testing.T) {
	SetColorEnabled(false)
	var buf bytes.Buffer
	Errorf(&buf, "network %s: %s", "ci-net", "exists")

	if got, want := buf.String(), "Error: network ci-net: exists\n"; got != want {
		t.Errorf("Errorf() = %q, want %q", got, want)
	}
}

func TestColorWrapsText(t *testing.T) {
	SetColorEnabled(true)
	defer SetColorEnabled(false)

	if got, want := Red("x"), "\033[31mx\033[0m"; got != want {
		t.Errorf("Red() = %q, want %q", got, want)
	}
	if got := OKTag(); got != "\033[32mok\033[0m" {
		t.Errorf("OKTag() = %q", got)
	}
}
