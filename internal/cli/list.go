package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recordsync/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	storeFlags
}

// ListedRecord is one row of list output.
type ListedRecord struct {
	Key   string          `json:"key"`
	Seq   int64           `json:"seq"`
	Value json.RawMessage `json:"value"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records in insertion order",
		Long: `List every record of the collection in insertion order.

Example:
  recordsync list --db ./cart.db
  recordsync list --collection wishlist --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	opts.storeFlags.register(cmd)
	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	opts.storeFlags.apply(&cfg)

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

	nodes, err := st.List(ctx, cfg.Collection)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list records", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(listedRecords(nodes))
	}
	if len(nodes) == 0 {
		return formatter.Success(fmt.Sprintf("No records in %s.", cfg.Collection))
	}

	var b strings.Builder
	for i, n := range nodes {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s\t%d\t%s", n.Key, n.Seq, n.Value)
	}
	return formatter.Success(b.String())
}

func listedRecords(nodes []store.Node) []ListedRecord {
	out := make([]ListedRecord, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, ListedRecord{Key: n.Key, Seq: n.Seq, Value: n.Value})
	}
	return out
}
