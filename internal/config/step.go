package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/majorcontext/jobdock/internal/container"
)

// Step is one YAML step file. Exactly the sections the CLI command needs must be
// present; unknown keys are rejected.
type Step struct {
	Build          *container.BuildImageSpec `yaml:"build"`
	Imagetools     *container.ImageToolsSpec `yaml:"imagetools"`
	Services       []container.ServiceSpec   `yaml:"services"`
	RegistryLogins []container.RegistryLogin `yaml:"registry_logins"`
}

// LoadStep reads and decodes a step file.
func LoadStep(path string) (*Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading step file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Step
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("step file %s is empty", path)
		}
		return nil, fmt.Errorf("parsing step file %s: %w", path, err)
	}
	if s.Build == nil && s.Imagetools == nil && len(s.Services) == 0 {
		return nil, fmt.Errorf("step file %s has no build, imagetools or services section", path)
	}
	seen := make(map[string]bool, len(s.Services))
	for i, svc := range s.Services {
		if err := svc.Validate(); err != nil {
			return nil, fmt.Errorf("services[%d]: %w", i, err)
		}
		if seen[svc.Name] {
			return nil, fmt.Errorf("services[%d]: duplicate service name %q", i, svc.Name)
		}
		seen[svc.Name] = true
	}
	return &s, nil
}
