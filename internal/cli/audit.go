package cli

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recordsync/internal/ir"
	"github.com/roach88/recordsync/internal/querysql"
	"github.com/roach88/recordsync/internal/store"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	storeFlags
	RulesDir string
	Where    []string
	Limit    int
}

// auditFilter narrows the violation queries.
type auditFilter struct {
	where []querysql.Predicate
	limit int
}

// Violation is one record that currently breaks a rule.
type Violation struct {
	Key    string `json:"key"`
	Seq    int64  `json:"seq"`
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
	Action string `json:"action"`
}

// AuditResult is the JSON payload of the audit command.
type AuditResult struct {
	Collection string      `json:"collection"`
	Violations []Violation `json:"violations"`
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report invalid records without repairing them",
		Long: `Query the collection for records that break the rules, in insertion order.
Nothing is removed or patched. Each record is reported for the first rule it
breaks, the same rule watch would apply.

Exit codes:
  0 - No violations
  1 - One or more violations found
  2 - Command error

--where field=value keeps only records whose field equals value (repeatable,
all must hold). The value is read as JSON when it parses as a JSON scalar
(42, 1.5, true, null, "quoted"), otherwise as a plain string.

Example:
  recordsync audit --db ./cart.db
  recordsync audit --where name=Hat --where quantity=2 --limit 10
  recordsync audit --rules ./rules --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	opts.storeFlags.register(cmd)
	cmd.Flags().StringVar(&opts.RulesDir, "rules", "", "directory of CUE rule files (default: require addedBy)")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "only records with field=value (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "report at most this many violations (0 = all)")
	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	opts.storeFlags.apply(&cfg)
	if opts.RulesDir != "" {
		cfg.RulesDir = opts.RulesDir
	}

	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--limit must not be negative, got %d", opts.Limit))
	}
	where, err := parseWhere(opts.Where)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --where", err)
	}

	rules, err := resolveRules(cfg.RulesDir)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, opts.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	violations, err := audit(ctx, st, cfg.Collection, rules, auditFilter{where: where, limit: opts.Limit})
	if err != nil {
		return WrapExitError(ExitCommandError, "audit query failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		if err := formatter.Success(AuditResult{Collection: cfg.Collection, Violations: violations}); err != nil {
			return err
		}
	} else if len(violations) == 0 {
		if err := formatter.Success(fmt.Sprintf("✓ No violations in %s", cfg.Collection)); err != nil {
			return err
		}
	} else {
		var b strings.Builder
		for _, v := range violations {
			fmt.Fprintf(&b, "✗ %s (seq %d): %s [rule %s, would %s]\n", v.Key, v.Seq, v.Reason, v.RuleID, v.Action)
		}
		fmt.Fprintf(&b, "%d violation(s) in %s", len(violations), cfg.Collection)
		if err := formatter.Success(b.String()); err != nil {
			return err
		}
	}

	if len(violations) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d violation(s) found", len(violations)))
	}
	return nil
}

// audit reports each record for the first rule it breaks, in insertion
// order. Records that are not mappings are skipped, as the watcher skips
// them.
func audit(ctx context.Context, st *store.Store, collection string, rules []ir.Rule, filter auditFilter) ([]Violation, error) {
	seen := make(map[string]bool)
	violations := []Violation{}

	for _, rule := range rules {
		if !rule.Applies(collection) {
			continue
		}
		q := querysql.ViolationsOf(collection, rule)
		if len(filter.where) > 0 {
			q.Filter = querysql.And{Predicates: append([]querysql.Predicate{q.Filter}, filter.where...)}
		}
		q.Limit = filter.limit
		nodes, err := st.Find(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if seen[n.Key] {
				continue
			}
			seen[n.Key] = true

			rec, err := n.Record()
			if err != nil {
				continue
			}
			reason, violated := rule.Check(rec.Fields)
			if !violated {
				continue
			}
			violations = append(violations, Violation{
				Key:    n.Key,
				Seq:    n.Seq,
				RuleID: rule.ID,
				Reason: reason,
				Action: string(rule.Action),
			})
		}
	}

	slices.SortFunc(violations, func(a, b Violation) int {
		if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	if filter.limit > 0 && len(violations) > filter.limit {
		violations = violations[:filter.limit]
	}
	return violations, nil
}

// parseWhere turns field=value expressions into equality predicates.
func parseWhere(exprs []string) ([]querysql.Predicate, error) {
	preds := make([]querysql.Predicate, 0, len(exprs))
	for _, expr := range exprs {
		field, raw, ok := strings.Cut(expr, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("expected field=value, got %q", expr)
		}
		value, err := whereValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		preds = append(preds, querysql.FieldEquals{Field: field, Value: value})
	}
	return preds, nil
}

// whereValue reads raw as a JSON scalar, falling back to a plain string.
func whereValue(raw string) (ir.Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return ir.String(raw), nil
	}
	value, err := ir.ToValue(v)
	if err != nil {
		return nil, err
	}
	if _, nested := value.(ir.Opaque); nested {
		return nil, fmt.Errorf("value must be a scalar, got %s", raw)
	}
	return value, nil
}
