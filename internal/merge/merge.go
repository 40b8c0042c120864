// Package merge implements catalog reconciliation: deciding, for each
// incoming normalized event, whether it is a new event, an unchanged
// duplicate, or a revision of a stored one, and applying that decision to
// the catalog store.
//
// The compare-then-write step is not atomic against another process
// reconciling the same evid, so every write states the version it observed
// as latest and the store re-checks that claim inside the transaction. On a
// STALE conflict the whole decision is retried from the lookup.
package merge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quaketools/evcat/internal/catalog"
	"github.com/quaketools/evcat/internal/store"
)

// Policy selects how a changed event revises its stored counterpart.
type Policy string

const (
	// PolicyOverwrite replaces the core fields of the latest version in
	// place, keeping its extra fields.
	PolicyOverwrite Policy = "overwrite"

	// PolicyVersion appends a new version row.
	PolicyVersion Policy = "version"
)

// Outcome reports what a merge did with one event.
type Outcome int

const (
	// OutcomeCreated - first sighting of the evid, version 1 inserted.
	OutcomeCreated Outcome = iota
	// OutcomeUnchanged - stored latest already matches within tolerance.
	OutcomeUnchanged
	// OutcomeOverwritten - core fields replaced in place.
	OutcomeOverwritten
	// OutcomeVersioned - new version appended.
	OutcomeVersioned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeOverwritten:
		return "overwritten"
	case OutcomeVersioned:
		return "versioned"
	default:
		return "unknown"
	}
}

// maxMergeAttempts bounds the optimistic-concurrency retry loop. Each retry
// re-reads the latest version and re-makes the whole decision.
const maxMergeAttempts = 5

// Options configures a Merger.
type Options struct {
	// Policy selects overwrite-in-place or append-new-version for changed
	// events. Defaults to PolicyVersion.
	Policy Policy

	// Tolerance is the absolute numeric tolerance used when comparing
	// lat/lon/depth/mag against the stored latest version. Zero means
	// exact comparison.
	Tolerance float64

	// CopyExtras controls extra-field handling under PolicyVersion: when
	// set, the new version inherits the prior version's extra values;
	// otherwise extras reset to their declared defaults.
	CopyExtras bool
}

// Merger reconciles normalized events into a catalog store.
type Merger struct {
	store   *store.Store
	opts    Options
	newEvid func() string
}

// New creates a Merger over the given store.
func New(st *store.Store, opts Options) *Merger {
	if opts.Policy == "" {
		opts.Policy = PolicyVersion
	}
	return &Merger{
		store:   st,
		opts:    opts,
		newEvid: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

// Merge reconciles one event. Returns the outcome and the version the event
// ended up as (the existing latest version for OutcomeUnchanged).
//
// Validation happens before any store access: a malformed event fails with
// SCHEMA and leaves the catalog untouched.
func (m *Merger) Merge(ctx context.Context, ev catalog.Event) (Outcome, int64, error) {
	core, err := ev.CoreValues()
	if err != nil {
		return 0, 0, err
	}
	extras, err := ev.ExtraValues(m.store.Schema())
	if err != nil {
		return 0, 0, err
	}

	evid := ev.Evid
	if evid == "" {
		// Sources occasionally ship events with no usable identifier;
		// a generated time-sortable one keeps them addressable.
		evid = m.newEvid()
		slog.Debug("assigned generated evid", "evid", evid)
	}

	for attempt := 1; ; attempt++ {
		outcome, ver, err := m.reconcile(ctx, evid, core, extras)
		if err == nil {
			return outcome, ver, nil
		}
		if !catalog.HasCode(err, catalog.ErrCodeStale) || attempt >= maxMergeAttempts {
			return 0, 0, err
		}
		slog.Debug("merge conflict, retrying decision", "evid", evid, "attempt", attempt)
	}
}

// reconcile runs one decision cycle: lookup, compare, write.
func (m *Merger) reconcile(ctx context.Context, evid string, core, extras map[string]catalog.Value) (Outcome, int64, error) {
	latest, err := m.store.GetLatest(ctx, evid)
	if catalog.HasCode(err, catalog.ErrCodeNotFound) {
		vals := merged(core, extras)
		ver, err := m.store.UpsertNewVersion(ctx, evid, vals, 0)
		if err != nil {
			return 0, 0, err
		}
		return OutcomeCreated, ver, nil
	}
	if err != nil {
		return 0, 0, err
	}

	if m.sameCore(core, latest) {
		return OutcomeUnchanged, latest.Ver, nil
	}

	switch m.opts.Policy {
	case PolicyOverwrite:
		if err := m.store.OverwriteLatest(ctx, evid, core, latest.Ver); err != nil {
			return 0, 0, err
		}
		return OutcomeOverwritten, latest.Ver, nil

	default: // PolicyVersion
		vals := merged(core, extras)
		if m.opts.CopyExtras {
			for _, f := range m.store.Schema().ExtraFields() {
				if _, supplied := vals[f.Name]; !supplied {
					vals[f.Name] = latest.Value(f.Name)
				}
			}
		}
		ver, err := m.store.UpsertNewVersion(ctx, evid, vals, latest.Ver)
		if err != nil {
			return 0, 0, err
		}
		return OutcomeVersioned, ver, nil
	}
}

// sameCore compares the incoming core fields against the stored latest
// version: exact equality for strings, absolute tolerance for numerics.
func (m *Merger) sameCore(core map[string]catalog.Value, latest catalog.Record) bool {
	for _, name := range catalog.ComparedFields {
		if !catalog.EqualWithin(core[name], latest.Value(name), m.opts.Tolerance) {
			return false
		}
	}
	return true
}

func merged(core, extras map[string]catalog.Value) map[string]catalog.Value {
	vals := make(map[string]catalog.Value, len(core)+len(extras))
	for k, v := range core {
		vals[k] = v
	}
	for k, v := range extras {
		vals[k] = v
	}
	return vals
}

// Reject records one event that failed reconciliation during a batch.
type Reject struct {
	Evid string
	Err  error
}

// Report summarizes a batch ingestion.
type Report struct {
	Created     int
	Overwritten int
	Versioned   int
	Unchanged   int
	Rejected    []Reject
}

// String renders the report the way the CLI prints it.
func (r Report) String() string {
	return fmt.Sprintf("%d created, %d updated, %d versioned, %d unchanged, %d rejected",
		r.Created, r.Overwritten, r.Versioned, r.Unchanged, len(r.Rejected))
}

// MergeAll reconciles a stream of events. Per-event failures are collected
// into the report and never abort the rest of the batch; only a cancelled
// context stops the sweep early.
func (m *Merger) MergeAll(ctx context.Context, events []catalog.Event) (Report, error) {
	var rep Report
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		outcome, ver, err := m.Merge(ctx, ev)
		if err != nil {
			slog.Warn("event rejected", "evid", ev.Evid, "error", err)
			rep.Rejected = append(rep.Rejected, Reject{Evid: ev.Evid, Err: err})
			continue
		}
		slog.Debug("event merged", "evid", ev.Evid, "outcome", outcome.String(), "ver", ver)
		switch outcome {
		case OutcomeCreated:
			rep.Created++
		case OutcomeOverwritten:
			rep.Overwritten++
		case OutcomeVersioned:
			rep.Versioned++
		case OutcomeUnchanged:
			rep.Unchanged++
		}
	}
	return rep, nil
}
