package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/recordsync/internal/cart"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	storeFlags
	Name      string
	Price     float64
	SKU       int64
	Quantity  int64
	User      string
	NoAddedBy bool
}

// AddResult is the JSON payload of the add command.
type AddResult struct {
	Key  string    `json:"key"`
	Item cart.Item `json:"item"`
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a cart item to the collection",
		Long: `Push a cart item under a generated key. addedBy is set to --user, or to
the anonymous marker when no user is given. --no-added-by writes the item
without addedBy, as a misbehaving client would.

Example:
  recordsync add --name "Running Shoes" --price 29.99 --sku 1001 --user alice
  recordsync add --name "Sun Hat" --price 12.50 --sku 1002 --quantity 2 --no-added-by`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(opts, cmd)
		},
	}

	opts.storeFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Name, "name", "", "item name (required)")
	cmd.Flags().Float64Var(&opts.Price, "price", 0, "item price")
	cmd.Flags().Int64Var(&opts.SKU, "sku", 0, "item SKU")
	cmd.Flags().Int64Var(&opts.Quantity, "quantity", 1, "quantity")
	cmd.Flags().StringVar(&opts.User, "user", "", "signed-in user recorded in addedBy")
	cmd.Flags().BoolVar(&opts.NoAddedBy, "no-added-by", false, "omit addedBy")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runAdd(opts *AddOptions, cmd *cobra.Command) error {
	if opts.Quantity < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("quantity must be at least 1, got %d", opts.Quantity))
	}

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

	item := cart.Item{
		Name:     opts.Name,
		Price:    opts.Price,
		SKU:      opts.SKU,
		Quantity: opts.Quantity,
	}

	var key string
	if opts.NoAddedBy {
		key, err = st.Push(ctx, cfg.Collection, item.Fields())
	} else {
		session := cart.NewSession(opts.User)
		key, err = cart.NewWriter(st, cfg.Collection).AddItem(ctx, session, item)
		item.AddedBy = session.AddedBy()
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to add item", err)
	}
	logger.Debug("item added",
		slog.String("collection", cfg.Collection),
		slog.String("key", key),
		slog.String("added_by", item.AddedBy))

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return formatter.Success(AddResult{Key: key, Item: item})
	}
	return formatter.Success(fmt.Sprintf("%s %s", key, item))
}
