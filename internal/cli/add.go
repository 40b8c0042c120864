package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quaketools/evcat/internal/catalog"
	"github.com/quaketools/evcat/internal/merge"
)

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <events.ndjson|->",
		Short: "Ingest normalized events into the catalog",
		Long: `Read normalized events (NDJSON, one JSON object per line) from a file or
standard input ("-") and reconcile them into the catalog.

Events already present and unchanged are skipped; changed events are revised
according to the configured overwrite policy. Malformed events are rejected
individually and reported; they never abort the rest of the batch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runAdd(opts *RootOptions, cmd *cobra.Command, path string) error {
	st, cfg, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	var in io.Reader
	if path == "-" {
		in = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "opening event file", err)
		}
		defer f.Close()
		in = f
	}

	events, decodeErrs, err := readEvents(in)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading events", err)
	}

	m := merge.New(st, merge.Options{
		Policy:     merge.Policy(cfg.OverwritePolicy),
		Tolerance:  cfg.Tolerance,
		CopyExtras: cfg.CopyExtras,
	})
	rep, err := m.MergeAll(cmd.Context(), events)
	if err != nil {
		return WrapExitError(ExitCommandError, "ingesting events", err)
	}

	out := &Formatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		type rejectOut struct {
			Evid  string `json:"evid,omitempty"`
			Line  int    `json:"line,omitempty"`
			Error string `json:"error"`
		}
		rejects := make([]rejectOut, 0, len(rep.Rejected)+len(decodeErrs))
		for _, d := range decodeErrs {
			rejects = append(rejects, rejectOut{Line: d.line, Error: d.err.Error()})
		}
		for _, r := range rep.Rejected {
			rejects = append(rejects, rejectOut{Evid: r.Evid, Error: r.Err.Error()})
		}
		if err := out.Success(map[string]any{
			"created":     rep.Created,
			"overwritten": rep.Overwritten,
			"versioned":   rep.Versioned,
			"unchanged":   rep.Unchanged,
			"rejected":    rejects,
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), rep.String())
		for _, d := range decodeErrs {
			fmt.Fprintf(cmd.OutOrStdout(), "  line %d: %v\n", d.line, d.err)
		}
		for _, r := range rep.Rejected {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", r.Evid, r.Err)
		}
	}

	if len(rep.Rejected) > 0 || len(decodeErrs) > 0 {
		return NewExitError(ExitFailure,
			fmt.Sprintf("%d event(s) rejected", len(rep.Rejected)+len(decodeErrs)))
	}
	return nil
}

type decodeError struct {
	line int
	err  error
}

// readEvents parses an NDJSON stream. Undecodable lines are collected by
// line number rather than aborting the whole batch.
func readEvents(in io.Reader) ([]catalog.Event, []decodeError, error) {
	var events []catalog.Event
	var bad []decodeError

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var ev catalog.Event
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			bad = append(bad, decodeError{line: line, err: err})
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return events, bad, nil
}
