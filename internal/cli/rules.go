package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recordsync/internal/ir"
)

// RulesResult is the JSON payload of the rules command.
type RulesResult struct {
	Rules     []ir.Rule `json:"rules"`
	Hash      string    `json:"hash"`
	FileCount int       `json:"file_count"`
}

// RuleProblem is one load or validation error.
type RuleProblem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules [rules-dir]",
		Short: "Compile and print rules",
		Long: `Compile the CUE rule files in a directory and print the rules in
evaluation order together with the rule-set hash. Without a directory the
built-in rule (require addedBy, remove) is printed.

Every problem is reported, not just the first.

Exit codes:
  0 - Rules are valid
  1 - One or more rules are invalid
  2 - Command error (directory not found, no CUE files)

Example:
  recordsync rules ./rules
  recordsync rules ./rules --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runRules(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runRules(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	result := &LoadResult{Rules: ir.DefaultRules()}
	if dir != "" {
		var errs []error
		result, errs = LoadRules(dir, LoadModeCollectAll)
		if result == nil {
			code, msg := ErrCodeGeneric, errs[0].Error()
			var loadErr *LoadError
			if errors.As(errs[0], &loadErr) {
				code, msg = loadErr.Code, loadErr.Message
			}
			if err := formatter.Error(code, msg, nil); err != nil {
				return err
			}
			return NewExitError(ExitCommandError, msg)
		}
		formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, dir)
		if len(errs) > 0 {
			return outputRuleProblems(formatter, errs)
		}
	}

	hash, err := ir.RuleSetHash(result.Rules)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to hash rules", err)
	}

	if opts.Format == "json" {
		return formatter.Success(RulesResult{Rules: result.Rules, Hash: hash, FileCount: result.FileCount})
	}

	var b strings.Builder
	for i, r := range result.Rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, describeRule(r))
	}
	fmt.Fprintf(&b, "hash: %s", hash)
	return formatter.Success(b.String())
}

// describeRule renders one rule on a single line.
func describeRule(r ir.Rule) string {
	coll := r.Collection
	if coll == "" {
		coll = "*"
	}
	s := fmt.Sprintf("%s [%s] require=%s action=%s", r.ID, coll, strings.Join(r.Require, ","), r.Action)
	if r.Reason != "" {
		s += fmt.Sprintf(" reason=%q", r.Reason)
	}
	if len(r.Patch) > 0 {
		parts := make([]string, 0, len(r.Patch))
		for _, k := range r.Patch.SortedKeys() {
			parts = append(parts, fmt.Sprintf("%s=%v", k, ir.Interface(r.Patch[k])))
		}
		s += " patch=" + strings.Join(parts, ",")
	}
	return s
}

func outputRuleProblems(formatter *OutputFormatter, errs []error) error {
	problems := make([]RuleProblem, 0, len(errs))
	for _, err := range errs {
		p := RuleProblem{Code: ErrCodeGeneric, Message: err.Error()}
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			p.Code, p.Message = loadErr.Code, loadErr.Message
			if loadErr.Pos.IsValid() {
				p.Line = loadErr.Pos.Line()
			}
		}
		problems = append(problems, p)
	}

	if formatter.Format == "json" {
		if err := formatter.Error(problems[0].Code, fmt.Sprintf("%d rule problem(s)", len(problems)), problems); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		for _, p := range problems {
			if p.Line > 0 {
				fmt.Fprintf(w, "✗ [%s] line %d: %s\n", p.Code, p.Line, p.Message)
			} else {
				fmt.Fprintf(w, "✗ [%s] %s\n", p.Code, p.Message)
			}
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d rule problem(s)", len(problems)))
}
