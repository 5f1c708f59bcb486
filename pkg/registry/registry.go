// Copyright 2026 The Chorus Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry loads the declarative agent, sensor, and critic
// definitions for a session. Personas are data, not behavior: each entry is
// an immutable record pointing at a role definition, never a type hierarchy.
// The registry is loaded once at session start and never mutated.
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mindsoc/chorus/pkg/errors"
)

// Category groups agents by the kind of voice they contribute.
type Category string

const (
	CategoryObserver Category = "observer"
	CategoryCritic   Category = "critic"
	CategorySpark    Category = "spark"
	CategorySage     Category = "sage"
	CategoryCoach    Category = "coach"
)

// Relation declares how two agents relate when both fire in a turn.
type Relation string

const (
	RelationSupport   Relation = "support"
	RelationOppose    Relation = "oppose"
	RelationAmplify   Relation = "amplify"
	RelationChallenge Relation = "challenge"
)

// AgentSpec is one agent's identity and activation configuration.
// Immutable after load; declaration order is the deterministic tie-break
// used by claim ranking.
type AgentSpec struct {
	Name     string   `yaml:"name"`
	Category Category `yaml:"category"`
	Role     string   `yaml:"role"`
	Triggers []string `yaml:"triggers"`
	Weight   float64  `yaml:"weight"`

	order int
}

// Order returns the agent's declaration position.
func (s AgentSpec) Order() int { return s.order }

// SensorSpec is one binary/probability detector definition.
type SensorSpec struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// CriticSpec is one post-hoc draft validator definition.
type CriticSpec struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// Edge is one declared relationship between two agents. The graph is static
// configuration consumed only by the goal selector for tie-breaking; agents
// never hold references to each other.
type Edge struct {
	A        string   `yaml:"a"`
	B        string   `yaml:"b"`
	Relation Relation `yaml:"relation"`
}

// Registry is the full declarative configuration for one session.
type Registry struct {
	Agents  []AgentSpec  `yaml:"agents"`
	Sensors []SensorSpec `yaml:"sensors"`
	Critics []CriticSpec `yaml:"critics"`
	Edges   []Edge       `yaml:"relations"`

	byName map[string]int
}

// Load reads and validates a registry YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CodeConfigError, "read registry", err).
			WithContext("path", path)
	}
	return Parse(data)
}

// Parse validates a registry from raw YAML.
func Parse(data []byte) (*Registry, error) {
	if len(data) == 0 {
		return nil, errors.New(errors.CodeConfigError, "empty registry", nil)
	}
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, errors.New(errors.CodeConfigError, "parse registry yaml", err)
	}
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *Registry) validate() error {
	if len(r.Agents) == 0 {
		return errors.New(errors.CodeConfigError, "registry declares no agents", nil)
	}

	r.byName = make(map[string]int, len(r.Agents))
	for i := range r.Agents {
		a := &r.Agents[i]
		if a.Name == "" {
			return confErr(fmt.Sprintf("agent %d has no name", i))
		}
		if _, dup := r.byName[a.Name]; dup {
			return confErr("duplicate agent name: " + a.Name)
		}
		if a.Role == "" {
			return confErr("agent has no role definition: " + a.Name)
		}
		switch a.Category {
		case CategoryObserver, CategoryCritic, CategorySpark, CategorySage, CategoryCoach:
		case "":
			a.Category = CategoryObserver
		default:
			return confErr(fmt.Sprintf("agent %s: unknown category %q", a.Name, a.Category))
		}
		if a.Weight == 0 {
			a.Weight = 1.0
		}
		if a.Weight < 0 {
			return confErr(fmt.Sprintf("agent %s: negative weight", a.Name))
		}
		a.order = i
		r.byName[a.Name] = i
	}

	seen := map[string]bool{}
	for i, s := range r.Sensors {
		if s.Name == "" || s.Role == "" {
			return confErr(fmt.Sprintf("sensor %d missing name or role", i))
		}
		if seen[s.Name] {
			return confErr("duplicate sensor name: " + s.Name)
		}
		seen[s.Name] = true
	}

	seen = map[string]bool{}
	for i, c := range r.Critics {
		if c.Name == "" || c.Role == "" {
			return confErr(fmt.Sprintf("critic %d missing name or role", i))
		}
		if seen[c.Name] {
			return confErr("duplicate critic name: " + c.Name)
		}
		seen[c.Name] = true
	}

	for _, e := range r.Edges {
		switch e.Relation {
		case RelationSupport, RelationOppose, RelationAmplify, RelationChallenge:
		default:
			return confErr(fmt.Sprintf("relation %s-%s: unknown relation %q", e.A, e.B, e.Relation))
		}
		if _, ok := r.byName[e.A]; !ok {
			return confErr("relation references unknown agent: " + e.A)
		}
		if _, ok := r.byName[e.B]; !ok {
			return confErr("relation references unknown agent: " + e.B)
		}
	}

	return nil
}

// Agent returns the named agent spec.
func (r *Registry) Agent(name string) (AgentSpec, bool) {
	i, ok := r.byName[name]
	if !ok {
		return AgentSpec{}, false
	}
	return r.Agents[i], true
}

// Weight returns the named agent's declared weight, or zero if unknown.
func (r *Registry) Weight(name string) float64 {
	if spec, ok := r.Agent(name); ok {
		return spec.Weight
	}
	return 0
}

// Opposes reports whether a and b are declared as opposing or challenging
// voices, in either direction.
func (r *Registry) Opposes(a, b string) bool {
	for _, e := range r.Edges {
		if e.Relation != RelationOppose && e.Relation != RelationChallenge {
			continue
		}
		if (e.A == a && e.B == b) || (e.A == b && e.B == a) {
			return true
		}
	}
	return false
}

func confErr(msg string) error {
	return errors.New(errors.CodeConfigError, msg, nil)
}
