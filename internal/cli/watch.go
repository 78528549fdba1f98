package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/recordsync/internal/ir"
	"github.com/roach88/recordsync/internal/metrics"
	"github.com/roach88/recordsync/internal/watcher"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	storeFlags
	RulesDir         string
	MetricsAddr      string
	OverwritesAsAdds bool

	// ready, when set, is closed once the subscription is live (for testing).
	ready chan struct{}
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a collection and repair invalid records",
		Long: `Subscribe to a collection, replay every existing record through the rules,
then keep checking records as they are added. Records written by other
processes (for example "recordsync add") are picked up every poll_interval
(config, default 250ms). Every invalid record is reported on stdout (one
line per anomaly) and removed or patched.

Runs until interrupted (SIGINT/SIGTERM).

Example:
  recordsync watch --db ./cart.db
  recordsync watch --config recordsync.yaml --rules ./rules --metrics-addr :9090
  recordsync watch --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	opts.storeFlags.register(cmd)
	cmd.Flags().StringVar(&opts.RulesDir, "rules", "", "directory of CUE rule files (default: require addedBy)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	cmd.Flags().BoolVar(&opts.OverwritesAsAdds, "overwrites-as-adds", false, "report overwritten records as added")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	opts.storeFlags.apply(&cfg)
	if opts.RulesDir != "" {
		cfg.RulesDir = opts.RulesDir
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if opts.OverwritesAsAdds {
		cfg.OverwritesAsAdds = true
	}

	logger, err := newLogger(cfg, opts.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	writeTimeout, err := cfg.WriteTimeoutDuration()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid write timeout", err)
	}

	rules, err := resolveRules(cfg.RulesDir)
	if err != nil {
		return err
	}
	hash, err := ir.RuleSetHash(rules)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash rules", err)
	}
	logger.Info("rules loaded", "count", len(rules), "dir", cfg.RulesDir, "hash", hash)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	collector := metrics.NewCollector()
	w, err := watcher.New(watcher.StoreRemote(st),
		watcher.WithRules(rules),
		watcher.WithLogger(logger),
		watcher.WithMetrics(collector),
		watcher.WithWriteTimeout(writeTimeout),
		watcher.WithReporter(func(a ir.Anomaly) {
			if err := formatter.Event(a, formatAnomaly(a)); err != nil {
				logger.Error("failed to print anomaly", "id", a.ID, "error", err)
			}
		}),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid rules", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	serveErr := make(chan error, 1)
	if cfg.MetricsAddr != "" {
		go func() {
			serveErr <- metrics.Serve(ctx, cfg.MetricsAddr, metrics.NewRouter(collector, st.Ping), logger)
		}()
	}

	sub, err := w.Subscribe(ctx, cfg.Collection)
	if err != nil {
		cancel()
		return WrapExitError(ExitCommandError, "failed to subscribe", err)
	}

	formatter.VerboseLog("Watching %s in %s (%d rule(s))", cfg.Collection, cfg.Database, len(rules))
	if opts.ready != nil {
		close(opts.ready)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = WrapExitError(ExitCommandError, "metrics server failed", err)
		}
	}

	sub.Unsubscribe()
	logger.Info("watcher stopped", "collection", cfg.Collection)
	return runErr
}

// formatAnomaly renders the text form of an anomaly line.
func formatAnomaly(a ir.Anomaly) string {
	return fmt.Sprintf("anomaly id=%s reason=%q rule=%s action=%s", a.ID, a.Reason, a.RuleID, a.Action)
}
