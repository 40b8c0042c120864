package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quaketools/evcat/internal/catalog"
)

func testSchema(t *testing.T) *catalog.Schema {
	t.Helper()
	s, err := catalog.NewSchema([]catalog.FieldDef{
		{Name: "nobs", Type: catalog.TypeInteger, Default: catalog.Int(0)},
		{Name: "region", Type: catalog.TypeText},
	})
	if err != nil {
		t.Fatalf("NewSchema() failed: %v", err)
	}
	return s
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.sqlite")
	s, err := Create(path, testSchema(t))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// coreVals builds a full set of core field values for tests.
func coreVals(ts time.Time, lat, lon, depth, mag float64) map[string]catalog.Value {
	return map[string]catalog.Value{
		catalog.FieldTime:  catalog.NewTime(ts),
		catalog.FieldLat:   catalog.Float(lat),
		catalog.FieldLon:   catalog.Float(lon),
		catalog.FieldDepth: catalog.Float(depth),
		catalog.FieldMag:   catalog.Float(mag),
	}
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestCreate_NewCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.sqlite")
	s, err := Create(path, testSchema(t))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("catalog file was not created")
	}
}

func TestCreate_RefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.sqlite")
	s, err := Create(path, testSchema(t))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	s.Close()

	if _, err := Create(path, testSchema(t)); err == nil {
		t.Error("Create() on an existing file should fail")
	}
}

func TestOpen_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.sqlite")
	if _, err := Open(path, testSchema(t)); err == nil {
		t.Error("Open() on a missing file should fail")
	}
}

func TestOpen_SchemaMismatchRefused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.sqlite")
	s, err := Create(path, testSchema(t))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	s.Close()

	other, err := catalog.NewSchema([]catalog.FieldDef{
		{Name: "station_count", Type: catalog.TypeInteger},
	})
	if err != nil {
		t.Fatalf("NewSchema() failed: %v", err)
	}
	if _, err := Open(path, other); err == nil {
		t.Error("Open() with a different extra-field configuration should fail")
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.sqlite")
	s1, err := Create(path, testSchema(t))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	ctx := context.Background()
	if _, err := s1.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45, 7, 10, 3.0), 0); err != nil {
		t.Fatalf("UpsertNewVersion() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path, testSchema(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s2.Close()

	rec, err := s2.GetLatest(ctx, "ev1")
	if err != nil {
		t.Fatalf("GetLatest() failed: %v", err)
	}
	if rec.Ver != 1 {
		t.Errorf("ver = %d, want 1", rec.Ver)
	}
}

func TestUpsertNewVersion_DenseVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ver, err := s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45, 7, 10, 3.0), 0)
	if err != nil {
		t.Fatalf("first UpsertNewVersion() failed: %v", err)
	}
	if ver != 1 {
		t.Errorf("first version = %d, want 1", ver)
	}

	ver, err = s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45.1, 7, 10, 3.2), 1)
	if err != nil {
		t.Fatalf("second UpsertNewVersion() failed: %v", err)
	}
	if ver != 2 {
		t.Errorf("second version = %d, want 2", ver)
	}
}

func TestUpsertNewVersion_StaleExpectation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45, 7, 10, 3.0), 0); err != nil {
		t.Fatalf("UpsertNewVersion() failed: %v", err)
	}

	// A writer that still believes there is no ev1 must get STALE.
	_, err := s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 46, 7, 10, 3.0), 0)
	if !catalog.HasCode(err, catalog.ErrCodeStale) {
		t.Errorf("expected STALE, got %v", err)
	}
}

func TestUpsertNewVersion_MissingCoreField(t *testing.T) {
	s := newTestStore(t)
	vals := coreVals(t0, 45, 7, 10, 3.0)
	delete(vals, catalog.FieldDepth)

	_, err := s.UpsertNewVersion(context.Background(), "ev1", vals, 0)
	if !catalog.HasCode(err, catalog.ErrCodeSchema) {
		t.Errorf("expected SCHEMA error, got %v", err)
	}
}

func TestUpsertNewVersion_MistypedField(t *testing.T) {
	s := newTestStore(t)
	vals := coreVals(t0, 45, 7, 10, 3.0)
	vals[catalog.FieldLat] = catalog.String("not a number")

	_, err := s.UpsertNewVersion(context.Background(), "ev1", vals, 0)
	if !catalog.HasCode(err, catalog.ErrCodeSchema) {
		t.Errorf("expected SCHEMA error, got %v", err)
	}
}

func TestUpsertNewVersion_ExtrasDefaulted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45, 7, 10, 3.0), 0); err != nil {
		t.Fatalf("UpsertNewVersion() failed: %v", err)
	}
	rec, err := s.GetLatest(ctx, "ev1")
	if err != nil {
		t.Fatalf("GetLatest() failed: %v", err)
	}
	if rec.Value("nobs") != catalog.Int(0) {
		t.Errorf("nobs = %v, want declared default 0", rec.Value("nobs"))
	}
	if !catalog.IsNull(rec.Value("region")) {
		t.Errorf("region = %v, want NULL", rec.Value("region"))
	}
}

func TestOverwriteLatest_PreservesExtras(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45, 7, 10, 3.0), 0); err != nil {
		t.Fatalf("UpsertNewVersion() failed: %v", err)
	}
	if err := s.Mutate(ctx, "ev1", 1, []FieldOp{SetOp("region", catalog.NewString("Alps"))}); err != nil {
		t.Fatalf("Mutate() failed: %v", err)
	}

	if err := s.OverwriteLatest(ctx, "ev1", coreVals(t0, 45.5, 7.1, 12, 3.4), 1); err != nil {
		t.Fatalf("OverwriteLatest() failed: %v", err)
	}

	rec, err := s.GetLatest(ctx, "ev1")
	if err != nil {
		t.Fatalf("GetLatest() failed: %v", err)
	}
	if rec.Ver != 1 {
		t.Errorf("ver = %d, want 1 (in-place overwrite)", rec.Ver)
	}
	if rec.Value(catalog.FieldLat) != catalog.Float(45.5) {
		t.Errorf("lat = %v, want 45.5", rec.Value(catalog.FieldLat))
	}
	if rec.Value("region") != catalog.NewString("Alps") {
		t.Errorf("region = %v, want Alps (extras preserved)", rec.Value("region"))
	}
}

func TestOverwriteLatest_UnknownEvid(t *testing.T) {
	s := newTestStore(t)
	err := s.OverwriteLatest(context.Background(), "nope", coreVals(t0, 45, 7, 10, 3.0), 1)
	if !catalog.HasCode(err, catalog.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestOverwriteLatest_Stale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45, 7, 10, 3.0), 0); err != nil {
		t.Fatalf("UpsertNewVersion() failed: %v", err)
	}
	if _, err := s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45.1, 7, 10, 3.0), 1); err != nil {
		t.Fatalf("UpsertNewVersion() failed: %v", err)
	}

	err := s.OverwriteLatest(ctx, "ev1", coreVals(t0, 46, 7, 10, 3.0), 1)
	if !catalog.HasCode(err, catalog.ErrCodeStale) {
		t.Errorf("expected STALE, got %v", err)
	}
}

func TestGetVersion_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetVersion(context.Background(), "ev1", 3)
	if !catalog.HasCode(err, catalog.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestMutate_SetAndIncrement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45, 7, 10, 3.0), 0); err != nil {
		t.Fatalf("UpsertNewVersion() failed: %v", err)
	}

	ops := []FieldOp{
		SetOp("region", catalog.NewString("Apennines")),
		IncrementOp("nobs", 5),
		IncrementOp(catalog.FieldMag, 0.5),
	}
	if err := s.Mutate(ctx, "ev1", 1, ops); err != nil {
		t.Fatalf("Mutate() failed: %v", err)
	}

	rec, err := s.GetVersion(ctx, "ev1", 1)
	if err != nil {
		t.Fatalf("GetVersion() failed: %v", err)
	}
	if rec.Value("region") != catalog.NewString("Apennines") {
		t.Errorf("region = %v", rec.Value("region"))
	}
	if rec.Value("nobs") != catalog.Int(5) {
		t.Errorf("nobs = %v, want 5", rec.Value("nobs"))
	}
	if rec.Value(catalog.FieldMag) != catalog.Float(3.5) {
		t.Errorf("mag = %v, want 3.5", rec.Value(catalog.FieldMag))
	}
}

func TestMutate_NonNumericIncrement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45, 7, 10, 3.0), 0); err != nil {
		t.Fatalf("UpsertNewVersion() failed: %v", err)
	}

	err := s.Mutate(ctx, "ev1", 1, []FieldOp{IncrementOp("region", 1)})
	if !catalog.HasCode(err, catalog.ErrCodeType) {
		t.Errorf("expected TYPE error, got %v", err)
	}
}

func TestMutate_FractionalIntegerDelta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45, 7, 10, 3.0), 0); err != nil {
		t.Fatalf("UpsertNewVersion() failed: %v", err)
	}

	err := s.Mutate(ctx, "ev1", 1, []FieldOp{IncrementOp("nobs", 0.5)})
	if !catalog.HasCode(err, catalog.ErrCodeType) {
		t.Errorf("expected TYPE error, got %v", err)
	}

	rec, err := s.GetVersion(ctx, "ev1", 1)
	if err != nil {
		t.Fatalf("GetVersion() failed: %v", err)
	}
	if rec.Value("nobs") != catalog.Int(0) {
		t.Errorf("nobs = %v, want unchanged default 0", rec.Value("nobs"))
	}
}

func TestMutate_UnknownField(t *testing.T) {
	s := newTestStore(t)
	err := s.Mutate(context.Background(), "ev1", 1, []FieldOp{SetOp("bogus", catalog.Int(1))})
	if !catalog.HasCode(err, catalog.ErrCodeField) {
		t.Errorf("expected FIELD error, got %v", err)
	}
}

func TestMutate_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Mutate(context.Background(), "ev1", 1, []FieldOp{IncrementOp("nobs", 1)})
	if !catalog.HasCode(err, catalog.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestDelete_RemovesRowAndEvid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45, 7, 10, 3.0), 0); err != nil {
		t.Fatalf("UpsertNewVersion() failed: %v", err)
	}
	if _, err := s.UpsertNewVersion(ctx, "ev1", coreVals(t0, 45.1, 7, 10, 3.1), 1); err != nil {
		t.Fatalf("UpsertNewVersion() failed: %v", err)
	}

	if err := s.Delete(ctx, "ev1", 2); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	rec, err := s.GetLatest(ctx, "ev1")
	if err != nil {
		t.Fatalf("GetLatest() after partial delete failed: %v", err)
	}
	if rec.Ver != 1 {
		t.Errorf("latest after delete = %d, want 1", rec.Ver)
	}

	if err := s.Delete(ctx, "ev1", 1); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := s.GetLatest(ctx, "ev1"); !catalog.HasCode(err, catalog.ErrCodeNotFound) {
		t.Errorf("evid should disappear after last version deleted, got %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete(context.Background(), "ev1", 1)
	if !catalog.HasCode(err, catalog.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}
