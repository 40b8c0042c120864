package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	"github.com/quaketools/evcat/internal/catalog"
)

// Query is the store's native predicate form, produced by the expression
// compiler. Where is a parameterized SQL fragment over event columns; Post
// is the residual predicate applied to each row after the SQL filter (nil
// when everything was pushed down).
type Query struct {
	Where string
	Args  []any
	Post  func(catalog.Record) bool
}

// GetLatest returns the highest-version record for evid.
// Fails with NOT_FOUND if the evid is unknown.
func (s *Store) GetLatest(ctx context.Context, evid string) (catalog.Record, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT %s FROM events WHERE evid = ? ORDER BY ver DESC LIMIT 1", s.columnList()),
		evid)
	targets := s.scanTargets()
	if err := row.Scan(targets...); err != nil {
		if err == sql.ErrNoRows {
			return catalog.Record{}, catalog.NotFoundError(evid, 0)
		}
		return catalog.Record{}, fmt.Errorf("get latest: %w", err)
	}
	return s.recordFromTargets(targets)
}

// GetVersion returns one exact version.
// Fails with NOT_FOUND if the row is absent.
func (s *Store) GetVersion(ctx context.Context, evid string, ver int64) (catalog.Record, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT %s FROM events WHERE evid = ? AND ver = ?", s.columnList()),
		evid, ver)
	targets := s.scanTargets()
	if err := row.Scan(targets...); err != nil {
		if err == sql.ErrNoRows {
			return catalog.Record{}, catalog.NotFoundError(evid, ver)
		}
		return catalog.Record{}, fmt.Errorf("get version: %w", err)
	}
	return s.recordFromTargets(targets)
}

// selectSQL assembles the SELECT for a filtered enumeration. When
// allVersions is false the latest version per evid is resolved before the
// filter applies. Rows are ordered by origin time with version as a
// tiebreaker, descending when reverse is set.
func (s *Store) selectSQL(q *Query, allVersions, reverse bool) (string, []any) {
	sqlText := fmt.Sprintf("SELECT %s FROM events", s.columnList())
	var conds []string
	var args []any
	if !allVersions {
		conds = append(conds,
			"(evid, ver) IN (SELECT evid, MAX(ver) FROM events GROUP BY evid)")
	}
	if q != nil && q.Where != "" {
		conds = append(conds, "("+q.Where+")")
		args = append(args, q.Args...)
	}
	for i, c := range conds {
		if i == 0 {
			sqlText += " WHERE " + c
		} else {
			sqlText += " AND " + c
		}
	}
	dir := "ASC"
	if reverse {
		dir = "DESC"
	}
	sqlText += fmt.Sprintf(" ORDER BY time %s, ver %s", dir, dir)
	return sqlText, args
}

// Select returns all records matching the query, ordered by time (ascending
// unless reverse) with version as a tiebreaker. The result reflects a
// consistent snapshot for the duration of this single call.
func (s *Store) Select(ctx context.Context, q *Query, allVersions, reverse bool) ([]catalog.Record, error) {
	sqlText, args := s.selectSQL(q, allVersions, reverse)
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var out []catalog.Record
	for rows.Next() {
		targets := s.scanTargets()
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec, err := s.recordFromTargets(targets)
		if err != nil {
			return nil, err
		}
		if q != nil && q.Post != nil && !q.Post(rec) {
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	if out == nil {
		out = []catalog.Record{}
	}
	return out, nil
}

// SelectSeq returns a lazy, restartable record sequence: each range over the
// sequence re-runs the query, observing the store state at that moment.
// No read transaction is held between yields.
func (s *Store) SelectSeq(ctx context.Context, q *Query, allVersions, reverse bool) iter.Seq2[catalog.Record, error] {
	return func(yield func(catalog.Record, error) bool) {
		sqlText, args := s.selectSQL(q, allVersions, reverse)
		rows, err := s.db.QueryContext(ctx, sqlText, args...)
		if err != nil {
			yield(catalog.Record{}, fmt.Errorf("select events: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			targets := s.scanTargets()
			if err := rows.Scan(targets...); err != nil {
				yield(catalog.Record{}, fmt.Errorf("scan event: %w", err))
				return
			}
			rec, err := s.recordFromTargets(targets)
			if err != nil {
				yield(catalog.Record{}, err)
				return
			}
			if q != nil && q.Post != nil && !q.Post(rec) {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(catalog.Record{}, fmt.Errorf("iterate events: %w", err))
		}
	}
}

// SelectIDs returns the (evid, ver) pairs matching the query, in the same
// order as Select. Used to snapshot a selection before acting on it.
func (s *Store) SelectIDs(ctx context.Context, q *Query, allVersions bool) ([]catalog.RecordID, error) {
	if q != nil && q.Post != nil {
		// Residual predicates need full rows.
		recs, err := s.Select(ctx, q, allVersions, false)
		if err != nil {
			return nil, err
		}
		ids := make([]catalog.RecordID, len(recs))
		for i, r := range recs {
			ids[i] = r.ID()
		}
		return ids, nil
	}

	sqlText := "SELECT evid, ver FROM events"
	var conds []string
	var args []any
	if !allVersions {
		conds = append(conds,
			"(evid, ver) IN (SELECT evid, MAX(ver) FROM events GROUP BY evid)")
	}
	if q != nil && q.Where != "" {
		conds = append(conds, "("+q.Where+")")
		args = append(args, q.Args...)
	}
	for i, c := range conds {
		if i == 0 {
			sqlText += " WHERE " + c
		} else {
			sqlText += " AND " + c
		}
	}
	sqlText += " ORDER BY time ASC, ver ASC"

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("select ids: %w", err)
	}
	defer rows.Close()

	var ids []catalog.RecordID
	for rows.Next() {
		var id catalog.RecordID
		if err := rows.Scan(&id.Evid, &id.Ver); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}

	if ids == nil {
		ids = []catalog.RecordID{}
	}
	return ids, nil
}

// Stats summarizes a selection: event counts, time span, magnitude range.
type Stats struct {
	Rows    int
	Events  int
	TimeMin time.Time
	TimeMax time.Time
	MagMin  float64
	MagMax  float64
	HasMag  bool
}

// SelectStats computes summary statistics over the records matching the
// query, with the same latest-only semantics as Select.
func (s *Store) SelectStats(ctx context.Context, q *Query, allVersions bool) (Stats, error) {
	recs, err := s.Select(ctx, q, allVersions, false)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	st.Rows = len(recs)
	evids := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		evids[r.Evid] = struct{}{}
		t := r.Time()
		if st.TimeMin.IsZero() || t.Before(st.TimeMin) {
			st.TimeMin = t
		}
		if t.After(st.TimeMax) {
			st.TimeMax = t
		}
		if mag, ok := catalog.NumericValue(r.Value(catalog.FieldMag)); ok {
			if !st.HasMag || mag < st.MagMin {
				st.MagMin = mag
			}
			if !st.HasMag || mag > st.MagMax {
				st.MagMax = mag
			}
			st.HasMag = true
		}
	}
	st.Events = len(evids)
	return st, nil
}
