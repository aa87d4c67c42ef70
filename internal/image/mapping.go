// Package image rewrites image references before they reach the engine, for
// example to route pulls through a registry mirror.
package image

import (
	"fmt"
	"regexp"

	"github.com/majorcontext/jobdock/internal/log"
)

// Mapping is one rewrite rule. From must match the whole image reference; To may
// refer to its capture groups as $1, ${name} and so on.
type Mapping struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type rule struct {
	from *regexp.Regexp
	to   string
}

// Mapper applies mappings in order; the first one that matches wins. The zero
// Mapper leaves every image unchanged.
type Mapper struct {
	rules []rule
}

// NewMapper compiles mappings.
func NewMapper(mappings []Mapping) (*Mapper, error) {
	m := &Mapper{rules: make([]rule, 0, len(mappings))}
	for i, mp := range mappings {
		re, err := regexp.Compile(`^(?:` + mp.From + `)$`)
		if err != nil {
			return nil, fmt.Errorf("image mapping %d: invalid pattern %q: %w", i+1, mp.From, err)
		}
		m.rules = append(m.rules, rule{from: re, to: mp.To})
	}
	return m, nil
}

// Map returns the rewritten reference, or image itself when no rule matches.
func (m *Mapper) Map(image string) string {
	if m == nil {
		return image
	}
	for _, r := range m.rules {
		if idx := r.from.FindStringSubmatchIndex(image); idx != nil {
			mapped := string(r.from.ExpandString(nil, r.to, image, idx))
			log.Debug("mapped image", "from", image, "to", mapped)
			return mapped
		}
	}
	return image
}

// Len is the number of rules.
func (m *Mapper) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}
