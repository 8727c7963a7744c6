// Package testrunner runs prompt test cases against the agent and checks the
// answers against simple expectations.
package testrunner

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Expect holds the checks applied to an answer.
type Expect struct {
	Contains    []string `yaml:"contains,omitempty" json:"contains,omitempty"`
	NotContains []string `yaml:"not_contains,omitempty" json:"not_contains,omitempty"`
	Regex       string   `yaml:"regex,omitempty" json:"regex,omitempty"`
}

// Case is a single prompt test.
type Case struct {
	Name   string `yaml:"name" json:"name"`
	Prompt string `yaml:"prompt" json:"prompt"`
	Expect Expect `yaml:"expect" json:"expect"`

	// File the case was loaded from.
	File string `yaml:"-" json:"file,omitempty"`
}

// LoadCases reads every *.yaml / *.yml file in dir. A file holds either one
// case or a list of cases. Cases are returned sorted by name.
func LoadCases(dir string) ([]Case, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read tests dir: %w", err)
	}

	var cases []Case
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		loaded, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		for _, c := range loaded {
			if prev, dup := seen[c.Name]; dup {
				return nil, fmt.Errorf("%s: duplicate case %q (also in %s)", path, c.Name, prev)
			}
			seen[c.Name] = path
			cases = append(cases, c)
		}
	}

	sort.Slice(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })
	return cases, nil
}

func loadFile(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var cases []Case
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		err = node.Decode(&cases)
	} else {
		var c Case
		err = node.Decode(&c)
		cases = []Case{c}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for i := range cases {
		cases[i].File = path
		if strings.TrimSpace(cases[i].Name) == "" {
			if len(cases) == 1 {
				cases[i].Name = base
			} else {
				cases[i].Name = fmt.Sprintf("%s#%d", base, i+1)
			}
		}
		if strings.TrimSpace(cases[i].Prompt) == "" {
			return nil, fmt.Errorf("%s: case %q has no prompt", path, cases[i].Name)
		}
	}
	return cases, nil
}

// Filter returns the cases whose name contains substr (case-insensitive).
func Filter(cases []Case, substr string) []Case {
	if substr == "" {
		return cases
	}
	needle := strings.ToLower(substr)
	var out []Case
	for _, c := range cases {
		if strings.Contains(strings.ToLower(c.Name), needle) {
			out = append(out, c)
		}
	}
	return out
}
