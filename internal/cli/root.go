// Package cli is the evcat command surface: a thin cobra layer over the
// catalog store, the reconciliation engine and the mutation engine.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quaketools/evcat/internal/config"
	"github.com/quaketools/evcat/internal/filter"
	"github.com/quaketools/evcat/internal/store"
)

// RootOptions holds the global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "text" | "json"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// defaultConfigFile is picked up from the working directory when --config
// is not given.
const defaultConfigFile = "evcat.yaml"

// NewRootCommand creates the root command for the evcat CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "evcat",
		Short: "evcat - versioned seismic event catalog",
		Long: `Maintain a local catalog of seismic events with per-event revision
history, boolean filter expressions, and safe concurrent edits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			logLevel := slog.LevelWarn
			if opts.Verbose {
				logLevel = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (default ./"+defaultConfigFile+" if present)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewInitDBCommand(opts))
	cmd.AddCommand(NewSampleConfigCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewPrintCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig resolves and loads the configuration for a command.
func loadConfig(opts *RootOptions) (config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "loading configuration", err)
	}
	return cfg, nil
}

// openStore opens the configured catalog for a command.
func openStore(opts *RootOptions) (*store.Store, config.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, config.Config{}, err
	}
	schema, err := cfg.Schema()
	if err != nil {
		return nil, config.Config{}, WrapExitError(ExitCommandError, "invalid extra field configuration", err)
	}
	st, err := store.Open(cfg.DBFile, schema)
	if err != nil {
		return nil, config.Config{}, WrapExitError(ExitCommandError, "opening catalog", err)
	}
	return st, cfg, nil
}

// parseWhere parses a --where expression against the store's schema.
// Empty text means no filter.
func parseWhere(st *store.Store, text string) (*filter.Expression, error) {
	if text == "" {
		return nil, nil
	}
	expr, err := filter.Parse(text, st.Schema())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid filter expression", err)
	}
	return expr, nil
}
