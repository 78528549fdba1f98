package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recordsync/internal/config"
	"github.com/roach88/recordsync/internal/ir"
)

// Scenario defines a conformance test scenario.
// A scenario seeds a collection, subscribes a watcher, adds live records,
// and asserts on the reported anomalies and the surviving keys.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Collection is the watched collection. Default: shoppingCartItems.
	Collection string `yaml:"collection,omitempty"`

	// OverwritesAsAdds makes the store report overwrites as child-added
	// events, so patched records come back to the watcher.
	OverwritesAsAdds bool `yaml:"overwrites_as_adds,omitempty"`

	// Rules replaces the default addedBy rule when non-empty.
	Rules []RuleDef `yaml:"rules,omitempty"`

	// Initial children exist before the watcher subscribes.
	Initial []Child `yaml:"initial,omitempty"`

	// Live children are written after the initial replay has been handled.
	Live []Child `yaml:"live,omitempty"`

	// UnsubscribeBeforeLive unsubscribes before writing Live children.
	UnsubscribeBeforeLive bool `yaml:"unsubscribe_before_live,omitempty"`

	// Expect is checked against the final result.
	Expect Expectation `yaml:"expect"`
}

// RuleDef is the YAML form of an ir.Rule.
type RuleDef struct {
	ID         string         `yaml:"id"`
	Collection string         `yaml:"collection,omitempty"`
	Require    []string       `yaml:"require"`
	Action     string         `yaml:"action,omitempty"`
	Reason     string         `yaml:"reason,omitempty"`
	Patch      map[string]any `yaml:"patch,omitempty"`
}

// Child is one record written by the scenario. An empty Key means push,
// so the store assigns the next sequential key (k1, k2, ...).
// Value may be any YAML value, including a bare scalar.
type Child struct {
	Key   string `yaml:"key,omitempty"`
	Value any    `yaml:"value"`
}

// Expectation lists what the scenario must produce.
type Expectation struct {
	// Anomalies are the reported record IDs, in report order.
	Anomalies []string `yaml:"anomalies"`

	// Remaining are the keys left in the collection, in insertion order.
	Remaining []string `yaml:"remaining"`
}

// CollectionName returns the watched collection, applying the default.
func (s *Scenario) CollectionName() string {
	if s.Collection == "" {
		return config.DefaultCollection
	}
	return s.Collection
}

// CompileRules converts the YAML rules. Returns nil when the scenario
// declares none, meaning the watcher's default rules apply.
func (s *Scenario) CompileRules() ([]ir.Rule, error) {
	if len(s.Rules) == 0 {
		return nil, nil
	}
	rules := make([]ir.Rule, 0, len(s.Rules))
	for i, rs := range s.Rules {
		rule := ir.Rule{
			ID:         rs.ID,
			Collection: rs.Collection,
			Require:    slices.Clone(rs.Require),
			Action:     ir.Action(rs.Action),
			Reason:     rs.Reason,
		}
		if rule.Action == "" {
			rule.Action = ir.ActionRemove
		}
		if len(rs.Patch) > 0 {
			patch, err := ir.FieldsFromMap(rs.Patch)
			if err != nil {
				return nil, fmt.Errorf("rules[%d].patch: %w", i, err)
			}
			rule.Patch = patch
		}
		rules = append(rules, rule)
	}
	if err := ir.ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "anomaly:" vs "anomalies:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// GoldenPath returns the golden file path for a scenario file:
// <dir>/golden/<basename>.golden
func GoldenPath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := base[:len(base)-len(filepath.Ext(base))]
	return filepath.Join(dir, "golden", name+".golden")
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Initial) == 0 && len(s.Live) == 0 {
		return fmt.Errorf("at least one initial or live child is required")
	}

	seen := make(map[string]bool)
	for i, rs := range s.Rules {
		if rs.ID == "" {
			return fmt.Errorf("rules[%d]: id is required", i)
		}
		if seen[rs.ID] {
			return fmt.Errorf("rules[%d]: duplicate id %q", i, rs.ID)
		}
		seen[rs.ID] = true
		if len(rs.Require) == 0 {
			return fmt.Errorf("rules[%d]: require list is required and must be non-empty", i)
		}
	}

	for i, c := range s.Initial {
		if c.Value == nil {
			return fmt.Errorf("initial[%d]: value is required", i)
		}
	}
	for i, c := range s.Live {
		if c.Value == nil {
			return fmt.Errorf("live[%d]: value is required", i)
		}
	}

	return nil
}
