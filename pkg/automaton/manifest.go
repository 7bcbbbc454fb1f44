// Package automaton implements the standalone automaton actor (spec.md
// §4.6): a FIFO-driven state machine whose states each spawn a shell
// snippet, with glob-pattern transition admission and preemption of a
// running state when the FIFO backs up.
package automaton

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// State is a single named state: its shell snippet and the glob patterns
// of states reachable from it.
type State struct {
	Tag   string   `yaml:"tag"`
	Shell string   `yaml:"shell"`
	Next  []string `yaml:"next"`
}

// Manifest is a loaded, validated automaton definition.
type Manifest struct {
	Initial  string
	Terminal string
	States   map[string]State
}

// rawManifest is the YAML wire shape before validation.
type rawManifest struct {
	Initial  string  `yaml:"initial"`
	Terminal string  `yaml:"terminal"`
	States   []State `yaml:"states"`
}

// LoadYAML reads and structurally validates a YAML manifest: every state
// tag must be unique, terminal (if set) must name a declared state, and
// every next-pattern's literal (non-glob) component, if it matches no
// wildcard character, must name a declared state. No general JSON-schema
// library exists anywhere in the reference corpus for this, so validation
// is hand-rolled field-presence and referential-integrity checking.
func LoadYAML(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("automaton: reading manifest %s: %w", path, err)
	}

	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("automaton: parsing manifest %s: %w", path, err)
	}

	return validate(raw)
}

func validate(raw rawManifest) (*Manifest, error) {
	m := &Manifest{
		Initial:  raw.Initial,
		Terminal: raw.Terminal,
		States:   map[string]State{},
	}
	if m.Initial == "" {
		m.Initial = "idle"
	}

	for _, s := range raw.States {
		if s.Tag == "" {
			return nil, fmt.Errorf("automaton: manifest has a state with an empty tag")
		}
		if _, dup := m.States[s.Tag]; dup {
			return nil, fmt.Errorf("automaton: duplicate state tag %q", s.Tag)
		}
		m.States[s.Tag] = s
	}

	if _, ok := m.States[m.Initial]; !ok {
		if m.Initial == "idle" {
			// The implicit idle state, permitted to transition anywhere
			// (spec.md §4.6: "Initial state is idle with transitions
			// permitted to anything").
			m.States["idle"] = State{Tag: "idle", Next: []string{"*"}}
		} else {
			return nil, fmt.Errorf("automaton: initial state %q is not declared", m.Initial)
		}
	}

	if m.Terminal != "" {
		if _, ok := m.States[m.Terminal]; !ok {
			return nil, fmt.Errorf("automaton: terminal state %q is not declared", m.Terminal)
		}
	}

	for tag, s := range m.States {
		for _, pattern := range s.Next {
			if strings.ContainsAny(pattern, "*?") {
				continue // glob pattern, validated at match time
			}
			if _, ok := m.States[pattern]; !ok {
				return nil, fmt.Errorf("automaton: state %q names undeclared next state %q", tag, pattern)
			}
		}
	}

	return m, nil
}
