// Package prompts holds the system prompts sent to the completion model.
package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var ErrMissingTemplate = errors.New("prompt template is empty")

// Templates is passed by value and never mutated after loading.
type Templates struct {
	Summary         string `yaml:"summary"`
	DecisionSupport string `yaml:"decision_support"`
	QA              string `yaml:"qa"`
}

// Default returns the built-in templates.
func Default() Templates {
	t, err := Parse(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("prompts: embedded defaults are invalid: %v", err))
	}
	return t
}

// Load reads templates from a YAML file. Keys missing from the file keep
// their built-in value. An empty path yields the defaults.
func Load(path string) (Templates, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Templates{}, fmt.Errorf("read prompts %s: %w", path, err)
	}
	t := Default()
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Templates{}, fmt.Errorf("parse prompts %s: %w", path, err)
	}
	if err := t.validate(); err != nil {
		return Templates{}, fmt.Errorf("prompts %s: %w", path, err)
	}
	return t, nil
}

func Parse(b []byte) (Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Templates{}, err
	}
	if err := t.validate(); err != nil {
		return Templates{}, err
	}
	return t, nil
}

// FollowUp returns the follow-up system prompt for the given variant.
func (t Templates) FollowUp(qa bool) string {
	if qa {
		return t.QA
	}
	return t.DecisionSupport
}

func (t Templates) validate() error {
	for name, v := range map[string]string{
		"summary":          t.Summary,
		"decision_support": t.DecisionSupport,
		"qa":               t.QA,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s", ErrMissingTemplate, name)
		}
	}
	return nil
}

// YAML renders the templates in the same shape Load accepts.
func (t Templates) YAML() ([]byte, error) {
	return yaml.Marshal(t)
}
