// Package ui styles the agent's own terminal output: doctor reports and the final
// error line. Job output is plain text and never colored.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

var color = detectColor(os.Stdout)

func detectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColorEnabled overrides color detection (for testing).
func SetColorEnabled(enabled bool) {
	color = enabled
}

func ansi(code, s string) string {
	if !color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func Bold(s string) string   { return ansi("1", s) }
func Dim(s string) string    { return ansi("2", s) }
func Green(s string) string  { return ansi("32", s) }
func Red(s string) string    { return ansi("31", s) }
func Yellow(s string) string { return ansi("33", s) }

// OKTag marks a passing check.
func OKTag() string { return Green("ok") }

// FailTag marks a failing check.
func FailTag() string { return Red("FAIL") }

// WarnTag marks a degraded check.
func WarnTag() string { return Yellow("warn") }

// Section writes a bold title underlined with dashes.
func Section(w io.Writer, title string) {
	fmt.Fprintln(w, Bold(title))
	fmt.Fprintln(w, Dim(strings.Repeat("-", len(title))))
}

// Errorf writes a user-facing error line.
func Errorf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", Red("Error:"), fmt.Sprintf(format, args...))
}
