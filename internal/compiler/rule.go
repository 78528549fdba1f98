package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/recordsync/internal/ir"
)

// CompileRule parses a CUE value into a Rule.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the rule struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rule: "require-added-by": { require: ["addedBy"] }`)
//	rule, err := CompileRule(v.LookupPath(cue.ParsePath(`rule."require-added-by"`)))
//
// action defaults to "remove". reason defaults to "missing <field>" at
// check time.
func CompileRule(v cue.Value) (*ir.Rule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rule := &ir.Rule{Action: ir.ActionRemove}

	// Rule ID is the struct label, e.g. `rule: "require-added-by": {...}`
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		rule.ID = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	var err error
	if rule.Collection, err = optionalString(v, "collection"); err != nil {
		return nil, err
	}
	if rule.Reason, err = optionalString(v, "reason"); err != nil {
		return nil, err
	}

	action, err := optionalString(v, "action")
	if err != nil {
		return nil, err
	}
	if action != "" {
		rule.Action = ir.Action(action)
	}

	rule.Require, err = parseRequire(v)
	if err != nil {
		return nil, err
	}

	patchVal := v.LookupPath(cue.ParsePath("patch"))
	if patchVal.Exists() {
		rule.Patch, err = parsePatch(patchVal)
		if err != nil {
			return nil, err
		}
	}

	if err := rule.Validate(); err != nil {
		return nil, &CompileError{
			Field:   "rule",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}

	return rule, nil
}

// CompileRules compiles every field of the top-level `rule` struct, in
// declaration order, and validates the set as a whole.
func CompileRules(v cue.Value) ([]ir.Rule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rulesVal := v.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return nil, &CompileError{Field: "rule", Message: "no rules declared", Pos: v.Pos()}
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []ir.Rule
	for iter.Next() {
		rule, err := CompileRule(iter.Value())
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}

	if err := ir.ValidateRules(rules); err != nil {
		return nil, &CompileError{Field: "rule", Message: err.Error(), Pos: rulesVal.Pos()}
	}

	return rules, nil
}

// CompileString compiles CUE source text into rules. filename is used in
// error positions only.
func CompileString(src, filename string) ([]ir.Rule, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return CompileRules(v)
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a string", field),
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

// parseRequire extracts the list of required field names.
func parseRequire(v cue.Value) ([]string, error) {
	reqVal := v.LookupPath(cue.ParsePath("require"))
	if !reqVal.Exists() {
		return nil, &CompileError{
			Field:   "require",
			Message: "require is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := reqVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "require",
			Message: "require must be a list of field names",
			Pos:     reqVal.Pos(),
		}
	}

	var fields []string
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "require",
				Message: "field names must be strings",
				Pos:     iter.Value().Pos(),
			}
		}
		fields = append(fields, name)
	}
	return fields, nil
}

// parsePatch converts the patch struct into scalar Fields.
func parsePatch(v cue.Value) (ir.Fields, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{
			Field:   "patch",
			Message: "patch must be a struct",
			Pos:     v.Pos(),
		}
	}

	patch := make(ir.Fields)
	for iter.Next() {
		name := iter.Selector().Unquoted()
		val, err := scalarValue(iter.Value())
		if err != nil {
			return nil, &CompileError{
				Field:   "patch." + name,
				Message: err.Error(),
				Pos:     iter.Value().Pos(),
			}
		}
		patch[name] = val
	}
	return patch, nil
}

// scalarValue maps a concrete CUE scalar to an ir.Value.
func scalarValue(v cue.Value) (ir.Value, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.Null{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		return ir.Bool(b), err
	case cue.StringKind:
		s, err := v.String()
		return ir.String(s), err
	case cue.IntKind:
		i, err := v.Int64()
		return ir.Int(i), err
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		return ir.Number(f), err
	case cue.BottomKind:
		return nil, fmt.Errorf("value must be concrete")
	default:
		return nil, fmt.Errorf("unsupported value kind %v (scalars only)", v.Kind())
	}
}
