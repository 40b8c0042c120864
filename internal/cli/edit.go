package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quaketools/evcat/internal/catalog"
	"github.com/quaketools/evcat/internal/edit"
)

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	Sets      []string
	Increment string
	Replicate bool
	Delete    bool
	Version   int64
	Force     bool
	Where     string
	AllVers   bool
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit [evid]",
		Short: "Edit selected events",
		Long: `Apply field edits to selected events: assignments, numeric increments,
version replication or deletion.

The selection is either an explicit evid (latest version unless --version is
given) or a --where expression. The selection is snapshotted before the
first write. Examples:

  evcat edit 2024abcd --set mag=3.1 --set mag_type=Mw
  evcat edit --where "depth > 600.0" --set event_type=deep
  evcat edit 2024abcd --replicate
  evcat edit 2024abcd --version 1 --delete --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			evid := ""
			if len(args) == 1 {
				evid = args[0]
			}
			return runEdit(opts, cmd, evid)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "field assignment key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Increment, "increment", "", "numeric increment key=delta")
	cmd.Flags().BoolVar(&opts.Replicate, "replicate", false, "append a copy of each selected record as a new version")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete the selected records")
	cmd.Flags().Int64Var(&opts.Version, "version", 0, "exact version to act on (default latest)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "confirm destructive operations")
	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "filter expression selecting the records to edit")
	cmd.Flags().BoolVar(&opts.AllVers, "allversions", false, "apply a --where selection to every version")
	return cmd
}

func runEdit(opts *EditOptions, cmd *cobra.Command, evid string) error {
	switch {
	case evid == "" && opts.Where == "":
		return NewExitError(ExitCommandError, "an evid or a --where expression is required")
	case evid != "" && opts.Where != "":
		return NewExitError(ExitCommandError, "an evid and --where are mutually exclusive")
	case opts.Where != "" && opts.Version > 0:
		return NewExitError(ExitCommandError, "--version only applies to an explicit evid, not --where")
	case opts.Delete && (len(opts.Sets) > 0 || opts.Increment != "" || opts.Replicate):
		return NewExitError(ExitCommandError, "--delete cannot be combined with other edits")
	case len(opts.Sets) == 0 && opts.Increment == "" && !opts.Replicate && !opts.Delete:
		return NewExitError(ExitCommandError, "nothing to do: give --set, --increment, --replicate or --delete")
	}

	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	sel := edit.Selection{Evid: evid, Ver: opts.Version, AllVersions: opts.AllVers}
	if opts.Where != "" {
		expr, err := parseWhere(st, opts.Where)
		if err != nil {
			return err
		}
		sel.Expr = expr
	}

	ctx := cmd.Context()
	ed := edit.New(st)
	out := &Formatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if opts.Delete {
		n, err := ed.Delete(ctx, sel, opts.Force)
		if err != nil {
			if catalog.HasCode(err, catalog.ErrCodeConfirmationRequired) {
				_ = out.Fail(err)
				return NewExitError(ExitFailure, "confirmation required")
			}
			return WrapExitError(ExitCommandError, "deleting records", err)
		}
		return out.Success(fmt.Sprintf("%d record(s) deleted", n))
	}

	if len(opts.Sets) > 0 {
		kvs := make(map[string]string, len(opts.Sets))
		for _, s := range opts.Sets {
			key, value, ok := strings.Cut(s, "=")
			if !ok || key == "" {
				return NewExitError(ExitCommandError, fmt.Sprintf("bad --set %q: expected key=value", s))
			}
			kvs[key] = value
		}
		n, err := ed.Set(ctx, sel, kvs)
		if err != nil {
			return WrapExitError(ExitCommandError, "setting fields", err)
		}
		if err := out.Success(fmt.Sprintf("%d record(s) updated", n)); err != nil {
			return err
		}
	}

	if opts.Increment != "" {
		key, deltaStr, ok := strings.Cut(opts.Increment, "=")
		if !ok || key == "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("bad --increment %q: expected key=delta", opts.Increment))
		}
		delta, err := strconv.ParseFloat(deltaStr, 64)
		if err != nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("bad --increment delta %q", deltaStr))
		}
		n, err := ed.Increment(ctx, sel, key, delta)
		if err != nil {
			return WrapExitError(ExitCommandError, "incrementing field", err)
		}
		if err := out.Success(fmt.Sprintf("%d record(s) incremented", n)); err != nil {
			return err
		}
	}

	if opts.Replicate {
		ids, err := ed.Replicate(ctx, sel)
		if err != nil {
			return WrapExitError(ExitCommandError, "replicating records", err)
		}
		for _, id := range ids {
			if err := out.Success(fmt.Sprintf("%s replicated to version %d", id.Evid, id.Ver)); err != nil {
				return err
			}
		}
	}

	return nil
}
