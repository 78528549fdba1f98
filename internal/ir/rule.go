package ir

import (
	"fmt"
	"slices"
)

// Action names the repair applied to a record that violates a rule.
type Action string

const (
	// ActionRemove deletes the offending record.
	ActionRemove Action = "remove"
	// ActionPatch merges the rule's patch values into the offending record.
	ActionPatch Action = "patch"
)

// ValidActions lists the supported repair actions.
var ValidActions = []Action{ActionRemove, ActionPatch}

// DefaultRuleID is the ID of the built-in addedBy rule.
const DefaultRuleID = "require-added-by"

// ReasonMissingAddedBy is the anomaly reason reported by the default rule.
const ReasonMissingAddedBy = "missing addedBy"

// Rule is a compiled validation rule.
//
// A record violates the rule when any field listed in Require is absent or
// null. The first missing field in declaration order names the reason.
type Rule struct {
	ID         string   `json:"id"`
	Collection string   `json:"collection,omitempty"` // empty matches every collection
	Require    []string `json:"require"`
	Action     Action   `json:"action"`
	Reason     string   `json:"reason,omitempty"`
	Patch      Fields   `json:"patch,omitempty"`
}

// DefaultRules returns the rule set used when no rule files are configured.
func DefaultRules() []Rule {
	return []Rule{{
		ID:      DefaultRuleID,
		Require: []string{FieldAddedBy},
		Action:  ActionRemove,
		Reason:  ReasonMissingAddedBy,
	}}
}

// Applies reports whether the rule watches the given collection.
func (r Rule) Applies(collection string) bool {
	return r.Collection == "" || r.Collection == collection
}

// Check returns the violation reason, or ok=false when fields satisfy the rule.
func (r Rule) Check(fields Fields) (reason string, violated bool) {
	for _, name := range r.Require {
		if !fields.Has(name) {
			if r.Reason != "" {
				return r.Reason, true
			}
			return "missing " + name, true
		}
	}
	return "", false
}

// Validate checks the rule is well formed.
//
// A patch rule must assign a non-null value to every field it requires.
// Otherwise the patched record would still violate the rule, and a store
// that reports overwrites as additions would feed it back forever.
func (r Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if len(r.Require) == 0 {
		return fmt.Errorf("rule %s: at least one required field is needed", r.ID)
	}
	if slices.Contains(r.Require, "") {
		return fmt.Errorf("rule %s: required field names must not be empty", r.ID)
	}
	if !slices.Contains(ValidActions, r.Action) {
		return fmt.Errorf("rule %s: invalid action %q (must be one of %v)", r.ID, r.Action, ValidActions)
	}
	switch r.Action {
	case ActionRemove:
		if len(r.Patch) > 0 {
			return fmt.Errorf("rule %s: patch values are only allowed with action %q", r.ID, ActionPatch)
		}
	case ActionPatch:
		for _, name := range r.Require {
			if !r.Patch.Has(name) {
				return fmt.Errorf("rule %s: patch must set required field %q", r.ID, name)
			}
		}
	}
	return nil
}

// ValidateRules validates every rule and checks IDs are unique.
func ValidateRules(rules []Rule) error {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule ID: %s", r.ID)
		}
		seen[r.ID] = true
	}

	// A patch may not clear a field another rule requires. Patches then only
	// ever add required values, so a record is patched at most once per rule.
	for _, p := range rules {
		if p.Action != ActionPatch {
			continue
		}
		for _, r := range rules {
			if !collectionsOverlap(p.Collection, r.Collection) {
				continue
			}
			for _, name := range r.Require {
				if v, ok := p.Patch[name]; ok {
					if _, null := v.(Null); null {
						return fmt.Errorf("rule %s: patch clears field %q required by rule %s", p.ID, name, r.ID)
					}
				}
			}
		}
	}
	return nil
}

func collectionsOverlap(a, b string) bool {
	return a == "" || b == "" || a == b
}

// Anomaly is reported once per record the watcher finds invalid.
type Anomaly struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Reason     string `json:"reason"`
	RuleID     string `json:"rule_id"`
	Action     Action `json:"action"`
	Seq        int64  `json:"seq"`
}
