package compiler

import (
	"fmt"

	"github.com/roach88/recordsync/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrRuleIDEmpty        = "E101" // rule id is required
	ErrRuleNoRequire      = "E102" // at least one required field
	ErrInvalidAction      = "E103" // action is not remove or patch
	ErrPatchWithRemove    = "E104" // patch values on a remove rule
	ErrPatchIncomplete    = "E105" // patch leaves a required field unset
	ErrDuplicateRuleID    = "E106" // two rules share an id
	ErrPatchClearsField   = "E107" // patch nulls a field another rule requires
	ErrEmptyRequiredField = "E108" // empty field name in require
)

// ValidationError represents a rule validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a rule set and returns every problem found (does not
// fail fast). An empty result means ir.ValidateRules accepts the set.
func Validate(rules []ir.Rule) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(rules))

	for i, r := range rules {
		field := fmt.Sprintf("rule[%d]", i)
		if r.ID != "" {
			field = "rule." + r.ID
		}

		if r.ID == "" {
			errs = append(errs, ValidationError{Field: field, Message: "id is required", Code: ErrRuleIDEmpty})
		} else if seen[r.ID] {
			errs = append(errs, ValidationError{Field: field, Message: "duplicate rule id", Code: ErrDuplicateRuleID})
		}
		seen[r.ID] = true

		if len(r.Require) == 0 {
			errs = append(errs, ValidationError{Field: field + ".require", Message: "at least one required field is needed", Code: ErrRuleNoRequire})
		}
		for _, name := range r.Require {
			if name == "" {
				errs = append(errs, ValidationError{Field: field + ".require", Message: "field name must not be empty", Code: ErrEmptyRequiredField})
			}
		}

		switch r.Action {
		case ir.ActionRemove:
			if len(r.Patch) > 0 {
				errs = append(errs, ValidationError{Field: field + ".patch", Message: "patch values need action \"patch\"", Code: ErrPatchWithRemove})
			}
		case ir.ActionPatch:
			for _, name := range r.Require {
				if !r.Patch.Has(name) {
					errs = append(errs, ValidationError{
						Field:   field + ".patch",
						Message: fmt.Sprintf("patch must set required field %q", name),
						Code:    ErrPatchIncomplete,
					})
				}
			}
		default:
			errs = append(errs, ValidationError{
				Field:   field + ".action",
				Message: fmt.Sprintf("invalid action %q (must be one of %v)", r.Action, ir.ValidActions),
				Code:    ErrInvalidAction,
			})
		}
	}

	for _, p := range rules {
		if p.Action != ir.ActionPatch {
			continue
		}
		for _, r := range rules {
			if p.Collection != "" && r.Collection != "" && p.Collection != r.Collection {
				continue
			}
			for _, name := range r.Require {
				if _, null := p.Patch[name].(ir.Null); null {
					errs = append(errs, ValidationError{
						Field:   "rule." + p.ID + ".patch." + name,
						Message: fmt.Sprintf("clears field required by rule %s", r.ID),
						Code:    ErrPatchClearsField,
					})
				}
			}
		}
	}

	return errs
}
