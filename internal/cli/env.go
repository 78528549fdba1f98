package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/recordsync/internal/config"
	"github.com/roach88/recordsync/internal/ir"
	"github.com/roach88/recordsync/internal/store"
)

// storeFlags are the per-command overrides of the config file.
type storeFlags struct {
	Database   string
	Collection string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&f.Collection, "collection", "", "collection name (overrides config)")
}

func (f *storeFlags) apply(cfg *config.Config) {
	if f.Database != "" {
		cfg.Database = f.Database
	}
	if f.Collection != "" {
		cfg.Collection = f.Collection
	}
}

// loadConfig reads --config when given, otherwise returns the defaults.
func loadConfig(opts *RootOptions) (config.Config, error) {
	if opts.ConfigPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the slog logger from config. --verbose forces debug.
func newLogger(cfg config.Config, verbose bool, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid log level", err)
	}
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(w, hopts)
	default:
		handler = slog.NewTextHandler(w, hopts)
	}
	return slog.New(handler), nil
}

// openStore opens the configured database.
func openStore(cfg config.Config, logger *slog.Logger) (*store.Store, error) {
	poll, err := cfg.PollIntervalDuration()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid poll interval", err)
	}
	opts := []store.Option{store.WithLogger(logger), store.WithPollInterval(poll)}
	if cfg.OverwritesAsAdds {
		opts = append(opts, store.WithOverwritesAsAdds())
	}
	st, err := store.Open(cfg.Database, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", cfg.Database), err)
	}
	return st, nil
}

// resolveRules compiles the rules in dir, or returns the default rule set
// when dir is empty.
func resolveRules(dir string) ([]ir.Rule, error) {
	if dir == "" {
		return ir.DefaultRules(), nil
	}
	result, errs := LoadRules(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load rules", errs[0])
	}
	return result.Rules, nil
}
