// Package interview runs the scripted multi-phase interview: it walks the plan,
// bounds follow-ups per question and persists the session after every turn.
package interview

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed plan.yaml
var defaultPlan []byte

// Phase is a named group of questions sharing a theme.
type Phase struct {
	Name         string   `yaml:"name"`
	Instructions string   `yaml:"instructions"`
	Questions    []string `yaml:"questions"`
}

// Plan is the ordered, immutable list of interview phases.
type Plan struct {
	Phases []Phase `yaml:"phases"`
}

// DefaultPlan returns the built-in interview plan.
func DefaultPlan() (*Plan, error) {
	return ParsePlan(defaultPlan)
}

// LoadPlan reads a plan from a YAML file. An empty path selects the built-in plan.
func LoadPlan(path string) (*Plan, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPlan()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file %s: %w", path, err)
	}

	plan, err := ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("plan file %s: %w", path, err)
	}
	return plan, nil
}

// ParsePlan decodes and validates a YAML plan.
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("validate plan: %w", err)
	}
	return &plan, nil
}

// Validate requires at least one phase and unique non-empty phase names.
// Blank questions are rejected; phases without questions are allowed and skipped.
func (p *Plan) Validate() error {
	if p == nil || len(p.Phases) == 0 {
		return errors.New("plan must contain at least one phase")
	}

	seen := make(map[string]struct{}, len(p.Phases))
	for i, phase := range p.Phases {
		name := strings.TrimSpace(phase.Name)
		if name == "" {
			return fmt.Errorf("phase %d must have a name", i+1)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("phase name %q is used more than once", name)
		}
		seen[name] = struct{}{}

		for j, q := range phase.Questions {
			if strings.TrimSpace(q) == "" {
				return fmt.Errorf("phase %q question %d is empty", name, j+1)
			}
		}
	}
	return nil
}

// Len returns the number of phases.
func (p *Plan) Len() int { return len(p.Phases) }

// Questions returns the total number of top-level questions.
func (p *Plan) Questions() int {
	total := 0
	for _, phase := range p.Phases {
		total += len(phase.Questions)
	}
	return total
}
