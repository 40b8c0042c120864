package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quaketools/evcat/internal/catalog"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var version int64

	cmd := &cobra.Command{
		Use:   "get <evid>",
		Short: "Show one event record",
		Long:  "Show one event record, the latest version unless --version is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, cmd, args[0], version)
		},
	}

	cmd.Flags().Int64Var(&version, "version", 0, "exact version to show (default latest)")
	return cmd
}

func runGet(opts *RootOptions, cmd *cobra.Command, evid string, version int64) error {
	st, _, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	var rec catalog.Record
	if version > 0 {
		rec, err = st.GetVersion(cmd.Context(), evid, version)
	} else {
		rec, err = st.GetLatest(cmd.Context(), evid)
	}
	if err != nil {
		if catalog.HasCode(err, catalog.ErrCodeNotFound) {
			out := &Formatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			_ = out.Fail(err)
			return NewExitError(ExitCommandError, "event not found")
		}
		return WrapExitError(ExitCommandError, "reading catalog", err)
	}

	if opts.Format == "json" {
		out := &Formatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return out.Success(rec)
	}
	w := cmd.OutOrStdout()
	for _, name := range st.Schema().FieldNames() {
		fmt.Fprintf(w, "%-11s %s\n", name+":", catalog.FormatValue(rec.Value(name)))
	}
	return nil
}
