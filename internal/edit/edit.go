// Package edit applies bulk mutations to the catalog: field assignments,
// numeric increments, version replication and deletion, over a selection
// given either as an explicit (evid, ver) or as a filter expression.
//
// A selection is resolved once to a snapshot of record ids before any write
// happens, so the set being acted on does not shift under concurrent
// ingestion. Each record is then mutated in its own transaction.
package edit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quaketools/evcat/internal/catalog"
	"github.com/quaketools/evcat/internal/filter"
	"github.com/quaketools/evcat/internal/filtersql"
	"github.com/quaketools/evcat/internal/store"
)

// Selection names the records an edit acts on. Either Evid is set (with Ver
// zero meaning the latest version), or Expr selects by expression with
// AllVersions widening the scope beyond latest-per-event. A zero Selection
// matches every latest version.
type Selection struct {
	Evid        string
	Ver         int64
	Expr        *filter.Expression
	AllVersions bool
}

// Editor runs mutations against one catalog store.
type Editor struct {
	store *store.Store
}

// New creates an Editor over the given store.
func New(st *store.Store) *Editor {
	return &Editor{store: st}
}

// Resolve snapshots the selection into concrete record ids, ordered by
// origin time. NOT_FOUND only for an explicit evid; an expression matching
// nothing resolves to an empty snapshot.
func (e *Editor) Resolve(ctx context.Context, sel Selection) ([]catalog.RecordID, error) {
	if sel.Evid != "" {
		if sel.Ver > 0 {
			rec, err := e.store.GetVersion(ctx, sel.Evid, sel.Ver)
			if err != nil {
				return nil, err
			}
			return []catalog.RecordID{rec.ID()}, nil
		}
		rec, err := e.store.GetLatest(ctx, sel.Evid)
		if err != nil {
			return nil, err
		}
		return []catalog.RecordID{rec.ID()}, nil
	}

	var q *store.Query
	if sel.Expr != nil {
		q = filtersql.Compile(sel.Expr)
	}
	return e.store.SelectIDs(ctx, q, sel.AllVersions)
}

// Set assigns the given key=value literals to every selected record, one
// atomic mutation per record. Literals are coerced against the declared
// field types before any write. Returns the number of records touched.
func (e *Editor) Set(ctx context.Context, sel Selection, kvs map[string]string) (int, error) {
	ops := make([]store.FieldOp, 0, len(kvs))
	for key, literal := range kvs {
		def, ok := e.store.Schema().Field(key)
		if !ok {
			return 0, catalog.FieldError(key)
		}
		v, err := catalog.Coerce(def.Type, literal)
		if err != nil {
			return 0, catalog.TypeError(err.Error(), key, "set", literal)
		}
		ops = append(ops, store.SetOp(key, v))
	}
	return e.apply(ctx, sel, ops)
}

// Increment adds delta to a numeric field on every selected record.
func (e *Editor) Increment(ctx context.Context, sel Selection, key string, delta float64) (int, error) {
	return e.apply(ctx, sel, []store.FieldOp{store.IncrementOp(key, delta)})
}

func (e *Editor) apply(ctx context.Context, sel Selection, ops []store.FieldOp) (int, error) {
	ids, err := e.Resolve(ctx, sel)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := e.store.Mutate(ctx, id.Evid, id.Ver, ops); err != nil {
			return i, fmt.Errorf("edit %s v%d: %w", id.Evid, id.Ver, err)
		}
		slog.Debug("record edited", "evid", id.Evid, "ver", id.Ver)
	}
	return len(ids), nil
}

// replicateAttempts bounds the retry loop when another writer appends a
// version between our latest lookup and the insert.
const replicateAttempts = 5

// Replicate appends a new version for every selected record, copying all
// fields from the source row. Selecting an old version replicates that
// version's values on top of the chain. Returns the new record ids.
func (e *Editor) Replicate(ctx context.Context, sel Selection) ([]catalog.RecordID, error) {
	ids, err := e.Resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.RecordID, 0, len(ids))
	for _, id := range ids {
		src, err := e.store.GetVersion(ctx, id.Evid, id.Ver)
		if err != nil {
			return out, err
		}
		vals := make(map[string]catalog.Value, len(src.Values))
		for name, v := range src.Values {
			vals[name] = v
		}

		var newVer int64
		for attempt := 1; ; attempt++ {
			latest, err := e.store.GetLatest(ctx, id.Evid)
			if err != nil {
				return out, err
			}
			newVer, err = e.store.UpsertNewVersion(ctx, id.Evid, vals, latest.Ver)
			if err == nil {
				break
			}
			if !catalog.HasCode(err, catalog.ErrCodeStale) || attempt >= replicateAttempts {
				return out, fmt.Errorf("replicate %s v%d: %w", id.Evid, id.Ver, err)
			}
		}
		slog.Debug("record replicated", "evid", id.Evid, "from", id.Ver, "to", newVer)
		out = append(out, catalog.RecordID{Evid: id.Evid, Ver: newVer})
	}
	return out, nil
}

// Delete removes every selected record. Without force it refuses with a
// CONFIRMATION_REQUIRED error naming the number of records at stake.
// Deleting the last version of an evid removes the evid. Returns the number
// of records removed.
func (e *Editor) Delete(ctx context.Context, sel Selection, force bool) (int, error) {
	ids, err := e.Resolve(ctx, sel)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if !force {
		return 0, catalog.ConfirmationRequiredError(
			fmt.Sprintf("would delete %d record(s), pass force to confirm", len(ids)))
	}
	for i, id := range ids {
		if err := e.store.Delete(ctx, id.Evid, id.Ver); err != nil {
			return i, fmt.Errorf("delete %s v%d: %w", id.Evid, id.Ver, err)
		}
		slog.Debug("record deleted", "evid", id.Evid, "ver", id.Ver)
	}
	return len(ids), nil
}
