package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/quaketools/evcat/internal/catalog"
)

// UpsertNewVersion appends the next version row for evid.
//
// expectPrev is the version the caller observed as latest (0 for a new
// evid). The transaction re-checks that claim before inserting; if another
// writer got there first the call fails with a STALE error and the caller
// retries its whole decision. This keeps version numbers dense with no gaps
// under concurrent reconciliation.
//
// Fields absent from vals are initialized to their declared defaults.
// Returns the version number assigned to the new row.
func (s *Store) UpsertNewVersion(ctx context.Context, evid string, vals map[string]catalog.Value, expectPrev int64) (int64, error) {
	if evid == "" {
		return 0, catalog.SchemaError("missing required core field", catalog.FieldEvid)
	}
	if err := s.validateWrite(vals); err != nil {
		return 0, err
	}

	newVer := expectPrev + 1
	err := s.withTx(ctx, "upsert new version", func(tx *sql.Tx) error {
		maxVer, err := txMaxVer(ctx, tx, evid)
		if err != nil {
			return err
		}
		if maxVer != expectPrev {
			return catalog.StaleError(evid, expectPrev)
		}

		cols := s.schema.FieldNames()
		args := make([]any, len(cols))
		for i, name := range cols {
			switch name {
			case catalog.FieldEvid:
				args[i] = evid
			case catalog.FieldVer:
				args[i] = newVer
			default:
				v, ok := vals[name]
				if !ok {
					def, _ := s.schema.Field(name)
					v = def.Default
				}
				args[i] = driverValue(v)
			}
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			"INSERT INTO events (%s) VALUES (%s)", strings.Join(cols, ", "), placeholders),
			args...)
		if err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newVer, nil
}

// OverwriteLatest replaces the core fields of the current latest version in
// place, preserving extra fields. expectVer is the version the caller
// observed as latest; a mismatch fails with STALE, an unknown evid with
// NOT_FOUND.
func (s *Store) OverwriteLatest(ctx context.Context, evid string, vals map[string]catalog.Value, expectVer int64) error {
	if err := s.validateWrite(vals); err != nil {
		return err
	}
	for name := range vals {
		if def, _ := s.schema.Field(name); def.Extra {
			return catalog.SchemaError("overwrite only touches core fields", name)
		}
	}

	return s.withTx(ctx, "overwrite latest", func(tx *sql.Tx) error {
		maxVer, err := txMaxVer(ctx, tx, evid)
		if err != nil {
			return err
		}
		if maxVer == 0 {
			return catalog.NotFoundError(evid, 0)
		}
		if maxVer != expectVer {
			return catalog.StaleError(evid, expectVer)
		}

		var sets []string
		var args []any
		for _, name := range catalog.ComparedFields {
			v, ok := vals[name]
			if !ok {
				continue
			}
			sets = append(sets, name+" = ?")
			args = append(args, driverValue(v))
		}
		if len(sets) == 0 {
			return nil
		}
		args = append(args, evid, expectVer)
		_, err = tx.ExecContext(ctx,
			"UPDATE events SET "+strings.Join(sets, ", ")+" WHERE evid = ? AND ver = ?",
			args...)
		if err != nil {
			return fmt.Errorf("overwrite version: %w", err)
		}
		return nil
	})
}

// FieldOp is one mutation applied by Mutate: either an assignment or a
// numeric increment.
type FieldOp struct {
	Field     string
	Value     catalog.Value
	Delta     float64
	Increment bool
}

// SetOp builds an assignment operation.
func SetOp(field string, v catalog.Value) FieldOp {
	return FieldOp{Field: field, Value: v}
}

// IncrementOp builds a numeric increment operation.
func IncrementOp(field string, delta float64) FieldOp {
	return FieldOp{Field: field, Delta: delta, Increment: true}
}

// Mutate applies a list of set/increment operations atomically to one
// record. Increments read the current value inside the same transaction, so
// concurrent increments from independent processes never lose updates.
//
// Fails with NOT_FOUND if the record does not exist, FIELD for an unknown
// field, TYPE for a non-numeric increment target or a mistyped assignment.
func (s *Store) Mutate(ctx context.Context, evid string, ver int64, ops []FieldOp) error {
	if len(ops) == 0 {
		return nil
	}
	for _, op := range ops {
		def, ok := s.schema.Field(op.Field)
		if !ok {
			return catalog.FieldError(op.Field)
		}
		if op.Field == catalog.FieldEvid || op.Field == catalog.FieldVer {
			return catalog.TypeError("key field cannot be mutated", op.Field, "set", "")
		}
		if op.Increment {
			if def.Type != catalog.TypeInteger && def.Type != catalog.TypeReal {
				return catalog.TypeError("increment target is not numeric", op.Field, "increment",
					fmt.Sprintf("%v", op.Delta))
			}
			if def.Type == catalog.TypeInteger && op.Delta != math.Trunc(op.Delta) {
				return catalog.TypeError("integer field requires a whole-number delta", op.Field, "increment",
					fmt.Sprintf("%v", op.Delta))
			}
		} else if err := checkType(def, op.Value); err != nil {
			return catalog.TypeError(err.Error(), op.Field, "set", catalog.FormatValue(op.Value))
		}
	}

	return s.withTx(ctx, "mutate", func(tx *sql.Tx) error {
		rec, err := s.txReadRecord(ctx, tx, evid, ver)
		if err != nil {
			return err
		}

		sets := make([]string, 0, len(ops))
		args := make([]any, 0, len(ops)+2)
		for _, op := range ops {
			v := op.Value
			if op.Increment {
				cur := rec.Value(op.Field)
				n, ok := catalog.NumericValue(cur)
				if !ok {
					return catalog.TypeError("current value is not numeric", op.Field, "increment",
						catalog.FormatValue(cur))
				}
				def, _ := s.schema.Field(op.Field)
				if def.Type == catalog.TypeInteger {
					v = catalog.Int(int64(n + op.Delta))
				} else {
					v = catalog.Float(n + op.Delta)
				}
			}
			sets = append(sets, op.Field+" = ?")
			args = append(args, driverValue(v))
		}
		args = append(args, evid, ver)
		_, err = tx.ExecContext(ctx,
			"UPDATE events SET "+strings.Join(sets, ", ")+" WHERE evid = ? AND ver = ?",
			args...)
		if err != nil {
			return fmt.Errorf("mutate record: %w", err)
		}
		return nil
	})
}

// Delete removes exactly one version row. Deleting the only version of an
// evid removes the evid entirely. Fails with NOT_FOUND if the row is absent.
func (s *Store) Delete(ctx context.Context, evid string, ver int64) error {
	return s.withTx(ctx, "delete", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM events WHERE evid = ? AND ver = ?", evid, ver)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete record: rows affected: %w", err)
		}
		if n == 0 {
			return catalog.NotFoundError(evid, ver)
		}
		return nil
	})
}

// txMaxVer returns the highest stored version of evid (0 if unknown),
// read inside the caller's transaction.
func txMaxVer(ctx context.Context, tx *sql.Tx, evid string) (int64, error) {
	var maxVer int64
	err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(ver), 0) FROM events WHERE evid = ?", evid).Scan(&maxVer)
	if err != nil {
		return 0, fmt.Errorf("read max version: %w", err)
	}
	return maxVer, nil
}

// txReadRecord reads one record inside the caller's transaction.
func (s *Store) txReadRecord(ctx context.Context, tx *sql.Tx, evid string, ver int64) (catalog.Record, error) {
	row := tx.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT %s FROM events WHERE evid = ? AND ver = ?", s.columnList()),
		evid, ver)
	targets := s.scanTargets()
	if err := row.Scan(targets...); err != nil {
		if err == sql.ErrNoRows {
			return catalog.Record{}, catalog.NotFoundError(evid, ver)
		}
		return catalog.Record{}, fmt.Errorf("scan record: %w", err)
	}
	return s.recordFromTargets(targets)
}
