package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quaketools/evcat/internal/catalog"
	"github.com/quaketools/evcat/internal/filtersql"
	"github.com/quaketools/evcat/internal/store"
)

// PrintOptions holds flags for the print command.
type PrintOptions struct {
	*RootOptions
	Where       string
	AllVersions bool
	Reverse     bool
	Style       string // "table" | "stats" | "csv"
}

// NewPrintCommand creates the print command.
func NewPrintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PrintOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "print [evid]",
		Short: "Print catalog events",
		Long: `Print catalog events as a padded table, summary statistics, or CSV.

Without arguments the latest version of every event is printed, in origin
time order. Giving an evid prints every version of that event. A --where
expression filters the selection, for example:

  evcat print --where "mag >= 3.0 AND depth < 10.0"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			evid := ""
			if len(args) == 1 {
				evid = args[0]
			}
			return runPrint(opts, cmd, evid)
		},
	}

	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "filter expression")
	cmd.Flags().BoolVar(&opts.AllVersions, "allversions", false, "include every version, not just the latest")
	cmd.Flags().BoolVar(&opts.Reverse, "reverse", false, "most recent events first")
	cmd.Flags().StringVar(&opts.Style, "style", "table", "output style (table|stats|csv)")
	return cmd
}

func runPrint(opts *PrintOptions, cmd *cobra.Command, evid string) error {
	st, _, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	var q *store.Query
	allVersions := opts.AllVersions
	if evid != "" {
		// An explicit evid shows the whole version chain.
		q = &store.Query{Where: "evid = ?", Args: []any{evid}}
		allVersions = true
	} else {
		expr, err := parseWhere(st, opts.Where)
		if err != nil {
			return err
		}
		if expr != nil {
			q = filtersql.Compile(expr)
		}
	}

	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	switch opts.Style {
	case "stats":
		stats, err := st.SelectStats(ctx, q, allVersions)
		if err != nil {
			return WrapExitError(ExitCommandError, "reading catalog", err)
		}
		printStats(w, stats)
		return nil

	case "csv", "table":
		recs, err := st.Select(ctx, q, allVersions, opts.Reverse)
		if err != nil {
			return WrapExitError(ExitCommandError, "reading catalog", err)
		}
		if opts.Style == "csv" {
			return printCSV(w, st.Schema(), recs)
		}
		printTable(w, st.Schema(), recs)
		return nil

	default:
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid style %q: must be table, stats or csv", opts.Style))
	}
}

// printTable renders records as left-aligned padded columns, two spaces
// between columns, no trailing whitespace.
func printTable(w io.Writer, schema *catalog.Schema, recs []catalog.Record) {
	cols := schema.FieldNames()
	rows := make([][]string, 0, len(recs)+1)
	rows = append(rows, cols)
	for _, r := range recs {
		row := make([]string, len(cols))
		for i, name := range cols {
			row[i] = catalog.FormatValue(r.Value(name))
		}
		rows = append(rows, row)
	}

	widths := make([]int, len(cols))
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
			}
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}
	fmt.Fprintf(w, "%d record(s)\n", len(recs))
}

func printStats(w io.Writer, s store.Stats) {
	fmt.Fprintf(w, "records: %d\n", s.Rows)
	fmt.Fprintf(w, "events:  %d\n", s.Events)
	if s.Rows > 0 {
		fmt.Fprintf(w, "time:    %s to %s\n",
			s.TimeMin.Format(catalog.TimeLayout), s.TimeMax.Format(catalog.TimeLayout))
	}
	if s.HasMag {
		fmt.Fprintf(w, "mag:     %.1f to %.1f\n", s.MagMin, s.MagMax)
	}
}

func printCSV(w io.Writer, schema *catalog.Schema, recs []catalog.Record) error {
	cw := csv.NewWriter(w)
	cols := schema.FieldNames()
	if err := cw.Write(cols); err != nil {
		return err
	}
	row := make([]string, len(cols))
	for _, r := range recs {
		for i, name := range cols {
			row[i] = catalog.FormatValue(r.Value(name))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
