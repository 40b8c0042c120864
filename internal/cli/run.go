package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quaketools/evcat/internal/catalog"
	"github.com/quaketools/evcat/internal/filtersql"
	"github.com/quaketools/evcat/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Where       string
	AllVersions bool
	Parallel    int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <command> [args...]",
		Short: "Run an external command once per selected event",
		Long: `Run an external command once for every selected event, with the event's
fields exported as EVCAT_-prefixed environment variables (EVCAT_EVID,
EVCAT_VER, EVCAT_TIME, EVCAT_LAT, ... plus any extra fields).

The selection is snapshotted first; each record is re-read just before its
command spawns, so a long sweep sees edits made while it runs. Command
failures are reported per event and never abort the sweep.

  evcat run --where "mag >= 4.0" -- ./relocate.sh`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(opts, cmd, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "filter expression")
	cmd.Flags().BoolVar(&opts.AllVersions, "allversions", false, "run over every version, not just the latest")
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", 1, "number of concurrent commands")

	// Everything after the command name belongs to the command.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runSweep(opts *RunOptions, cmd *cobra.Command, argv []string) error {
	if opts.Parallel < 1 {
		return NewExitError(ExitCommandError, "--parallel must be at least 1")
	}

	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	expr, err := parseWhere(st, opts.Where)
	if err != nil {
		return err
	}
	var q *store.Query
	if expr != nil {
		q = filtersql.Compile(expr)
	}

	ctx := cmd.Context()
	ids, err := st.SelectIDs(ctx, q, opts.AllVersions)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading catalog", err)
	}

	runID := uuid.Must(uuid.NewV7()).String()
	log := slog.With("run_id", runID)
	log.Info("command sweep starting", "command", argv[0], "events", len(ids), "parallel", opts.Parallel)

	type failure struct {
		id  catalog.RecordID
		err error
	}
	var (
		mu       sync.Mutex
		failures []failure
	)
	sem := make(chan struct{}, opts.Parallel)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id catalog.RecordID) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := runOne(ctx, st, id, argv, cmd); err != nil {
				log.Warn("command failed", "evid", id.Evid, "ver", id.Ver, "error", err)
				mu.Lock()
				failures = append(failures, failure{id: id, err: err})
				mu.Unlock()
				return
			}
			log.Debug("command finished", "evid", id.Evid, "ver", id.Ver)
		}(id)
	}
	wg.Wait()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%d command(s) run, %d failed\n", len(ids), len(failures))
	for _, f := range failures {
		fmt.Fprintf(w, "  %s v%d: %v\n", f.id.Evid, f.id.Ver, f.err)
	}
	if len(failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d command(s) failed", len(failures)))
	}
	return nil
}

// runOne re-reads the record and spawns the command with the event exported
// in its environment.
func runOne(ctx context.Context, st *store.Store, id catalog.RecordID, argv []string, cmd *cobra.Command) error {
	rec, err := st.GetVersion(ctx, id.Evid, id.Ver)
	if err != nil {
		return err
	}

	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Env = append(os.Environ(), eventEnv(st.Schema(), rec)...)
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()
	return c.Run()
}

// eventEnv exports every field of the record as an EVCAT_-prefixed
// environment variable.
func eventEnv(schema *catalog.Schema, rec catalog.Record) []string {
	names := schema.FieldNames()
	env := make([]string, 0, len(names))
	for _, name := range names {
		env = append(env, fmt.Sprintf("EVCAT_%s=%s",
			strings.ToUpper(name), catalog.FormatValue(rec.Value(name))))
	}
	return env
}
