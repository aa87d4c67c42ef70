// Package doctor assembles the agent's diagnostic report from independent sections.
package doctor

import (
	"fmt"
	"io"

	"github.com/majorcontext/jobdock/internal/ui"
)

// Section is one titled block of the report.
type Section interface {
	Name() string
	// Print writes the section body. An error is reported in place of the body
	// and does not stop later sections.
	Print(w io.Writer) error
}

// Registry holds sections in print order.
type Registry struct {
	sections []Section
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(s ...Section) {
	r.sections = append(r.sections, s...)
}

func (r *Registry) Sections() []Section {
	return r.sections
}

// Print writes every section under its title and returns how many failed.
func (r *Registry) Print(w io.Writer) int {
	failed := 0
	for i, s := range r.sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		ui.Section(w, s.Name())
		if err := s.Print(w); err != nil {
			fmt.Fprintf(w, "%s %v\n", ui.FailTag(), err)
			failed++
		}
	}
	return failed
}
