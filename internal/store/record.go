package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/quaketools/evcat/internal/catalog"
)

// driverValue converts a catalog value to its SQL parameter form.
// Values are always parameterized, never interpolated.
func driverValue(v catalog.Value) any {
	switch val := v.(type) {
	case nil, catalog.Null:
		return nil
	case catalog.String:
		return string(val)
	case catalog.Int:
		return int64(val)
	case catalog.Float:
		return float64(val)
	case catalog.Time:
		return time.Time(val).UTC().Format(catalog.TimeLayout)
	default:
		return nil
	}
}

// scanTargets builds one sql.Null* scan destination per schema field.
func (s *Store) scanTargets() []any {
	fields := s.schema.Fields()
	targets := make([]any, len(fields))
	for i, f := range fields {
		switch f.Type {
		case catalog.TypeInteger:
			targets[i] = new(sql.NullInt64)
		case catalog.TypeReal:
			targets[i] = new(sql.NullFloat64)
		default:
			targets[i] = new(sql.NullString)
		}
	}
	return targets
}

// recordFromTargets converts scanned column values into a Record.
func (s *Store) recordFromTargets(targets []any) (catalog.Record, error) {
	fields := s.schema.Fields()
	rec := catalog.Record{Values: make(map[string]catalog.Value, len(fields)-2)}
	for i, f := range fields {
		var v catalog.Value = catalog.Null{}
		switch tgt := targets[i].(type) {
		case *sql.NullInt64:
			if tgt.Valid {
				v = catalog.Int(tgt.Int64)
			}
		case *sql.NullFloat64:
			if tgt.Valid {
				v = catalog.Float(tgt.Float64)
			}
		case *sql.NullString:
			if tgt.Valid {
				if f.Type == catalog.TypeTimestamp {
					t, err := catalog.ParseTimestamp(tgt.String)
					if err != nil {
						return catalog.Record{}, fmt.Errorf("column %s: %w", f.Name, err)
					}
					v = catalog.NewTime(t)
				} else {
					v = catalog.String(tgt.String)
				}
			}
		}
		switch f.Name {
		case catalog.FieldEvid:
			sv, ok := v.(catalog.String)
			if !ok {
				return catalog.Record{}, fmt.Errorf("row has no evid")
			}
			rec.Evid = string(sv)
		case catalog.FieldVer:
			iv, ok := v.(catalog.Int)
			if !ok {
				return catalog.Record{}, fmt.Errorf("row has no ver")
			}
			rec.Ver = int64(iv)
		default:
			rec.Values[f.Name] = v
		}
	}
	return rec, nil
}

// columnList returns the comma-joined schema column names for SELECTs,
// so scan order always matches schema order.
func (s *Store) columnList() string {
	return strings.Join(s.schema.FieldNames(), ", ")
}

// validateWrite checks a value map against the schema before any store
// mutation: unknown fields fail with FIELD, mistyped values with SCHEMA,
// and missing required core fields with SCHEMA.
func (s *Store) validateWrite(vals map[string]catalog.Value) error {
	for name, v := range vals {
		def, ok := s.schema.Field(name)
		if !ok {
			return catalog.FieldError(name)
		}
		if name == catalog.FieldEvid || name == catalog.FieldVer {
			return catalog.SchemaError("key field cannot be written directly", name)
		}
		if err := checkType(def, v); err != nil {
			return err
		}
	}
	for _, f := range s.schema.Fields() {
		if f.Nullable || f.Extra || f.Name == catalog.FieldEvid || f.Name == catalog.FieldVer {
			continue
		}
		if catalog.IsNull(vals[f.Name]) {
			return catalog.SchemaError("missing required core field", f.Name)
		}
	}
	return nil
}

// checkType verifies a value carries the field's declared type or Null.
func checkType(def catalog.FieldDef, v catalog.Value) error {
	if catalog.IsNull(v) {
		return nil
	}
	ok := false
	switch def.Type {
	case catalog.TypeText:
		_, ok = v.(catalog.String)
	case catalog.TypeInteger:
		_, ok = v.(catalog.Int)
	case catalog.TypeReal:
		switch v.(type) {
		case catalog.Float, catalog.Int:
			ok = true
		}
	case catalog.TypeTimestamp:
		_, ok = v.(catalog.Time)
	}
	if !ok {
		return catalog.SchemaError(
			fmt.Sprintf("value %v does not match declared type %s", v, def.Type), def.Name)
	}
	return nil
}
