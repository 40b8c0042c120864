package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quaketools/evcat/internal/config"
	"github.com/quaketools/evcat/internal/store"
)

// InitDBOptions holds flags for the initdb command.
type InitDBOptions struct {
	*RootOptions
	Force bool
}

// NewInitDBCommand creates the initdb command.
func NewInitDBCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitDBOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "initdb",
		Short: "Create the catalog database",
		Long: `Create the configured catalog database with the core event columns plus
any extra fields declared in the configuration.

An existing catalog is never touched unless --force is given, in which case
it is moved aside to a .bak file first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitDB(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "move an existing catalog to .bak and start fresh")
	return cmd
}

func runInitDB(opts *InitDBOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	schema, err := cfg.Schema()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid extra field configuration", err)
	}

	out := &Formatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if _, err := os.Stat(cfg.DBFile); err == nil {
		if !opts.Force {
			return NewExitError(ExitCommandError,
				fmt.Sprintf("catalog %s already exists (use --force to replace it)", cfg.DBFile))
		}
		backup := cfg.DBFile + ".bak"
		if err := os.Rename(cfg.DBFile, backup); err != nil {
			return WrapExitError(ExitCommandError, "backing up existing catalog", err)
		}
		slog.Info("existing catalog moved aside", "backup", backup)
	}

	st, err := store.Create(cfg.DBFile, schema)
	if err != nil {
		return WrapExitError(ExitCommandError, "creating catalog", err)
	}
	defer st.Close()

	return out.Success(fmt.Sprintf("catalog created: %s", cfg.DBFile))
}

// NewSampleConfigCommand creates the sampleconfig command.
func NewSampleConfigCommand(rootOpts *RootOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "sampleconfig",
		Short: "Write a commented sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteSample(path); err != nil {
				return WrapExitError(ExitCommandError, "writing sample configuration", err)
			}
			out := &Formatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(fmt.Sprintf("sample configuration written: %s", path))
		},
	}

	cmd.Flags().StringVarP(&path, "output", "o", defaultConfigFile, "destination path")
	return cmd
}
