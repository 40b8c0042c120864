package filtersql

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quaketools/evcat/internal/catalog"
	"github.com/quaketools/evcat/internal/filter"
	"github.com/quaketools/evcat/internal/store"
)

func testSchema(t *testing.T) *catalog.Schema {
	t.Helper()
	s, err := catalog.NewSchema(nil)
	require.NoError(t, err)
	return s
}

func parse(t *testing.T, text string) *filter.Expression {
	t.Helper()
	e, err := filter.Parse(text, testSchema(t))
	require.NoError(t, err)
	return e
}

func TestCompile_Empty(t *testing.T) {
	q := Compile(nil)
	assert.Empty(t, q.Where)
	assert.Nil(t, q.Post)
}

func TestCompile_SingleClause(t *testing.T) {
	q := Compile(parse(t, "mag >= 3.0"))
	assert.Equal(t, "mag >= ?", q.Where)
	assert.Equal(t, []any{3.0}, q.Args)
	assert.Nil(t, q.Post)
}

func TestCompile_LeftToRightParens(t *testing.T) {
	q := Compile(parse(t, "mag >= 3.0 OR depth < 10.0 AND evid = X"))
	assert.Equal(t, "((mag >= ? OR depth < ?) AND evid = ?)", q.Where)
	assert.Equal(t, []any{3.0, 10.0, "X"}, q.Args)
	assert.Nil(t, q.Post)
}

func TestCompile_TimestampClauseStaysResidual(t *testing.T) {
	q := Compile(parse(t, "time >= 2024-05-01 AND mag > 2"))
	assert.Equal(t, "mag > ?", q.Where)
	assert.Equal(t, []any{2.0}, q.Args)
	require.NotNil(t, q.Post)
}

func TestCompile_OrWithResidualFallsBack(t *testing.T) {
	q := Compile(parse(t, "time >= 2024-05-01 OR mag > 2"))
	assert.Empty(t, q.Where)
	require.NotNil(t, q.Post)
}

// TestCompile_AgainstStore verifies that pushed-down and post-filtered
// evaluation select the same rows.
func TestCompile_AgainstStore(t *testing.T) {
	schema := testSchema(t)
	st, err := store.Create(filepath.Join(t.TempDir(), "catalog.sqlite"), schema)
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	seed := []struct {
		evid       string
		mag, depth float64
		at         time.Time
	}{
		{"a", 1.0, 5.0, base},
		{"b", 3.5, 5.0, base.Add(time.Hour)},
		{"c", 3.5, 50.0, base.Add(2 * time.Hour)},
		{"d", 1.0, 50.0, base.Add(3 * time.Hour)},
	}
	for _, ev := range seed {
		vals := map[string]catalog.Value{
			catalog.FieldTime:  catalog.NewTime(ev.at),
			catalog.FieldLat:   catalog.Float(45),
			catalog.FieldLon:   catalog.Float(7),
			catalog.FieldDepth: catalog.Float(ev.depth),
			catalog.FieldMag:   catalog.Float(ev.mag),
		}
		_, err := st.UpsertNewVersion(ctx, ev.evid, vals, 0)
		require.NoError(t, err)
	}

	cases := []struct {
		expr string
		want []string
	}{
		{"mag >= 3.0", []string{"b", "c"}},
		{"mag >= 3.0 AND depth < 10", []string{"b"}},
		{"mag >= 3.0 OR depth < 10.0 AND evid = a", []string{"a"}},
		{"time >= 2024-05-01T02:00:00Z", []string{"c", "d"}},
		{"time < 2024-05-01T02:00:00Z AND mag > 2", []string{"b"}},
		{"time >= 2024-05-01T03:00:00Z OR mag >= 3.5", []string{"b", "c", "d"}},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			expr, err := filter.Parse(tc.expr, schema)
			require.NoError(t, err)
			recs, err := st.Select(ctx, Compile(expr), false, false)
			require.NoError(t, err)
			var got []string
			for _, r := range recs {
				got = append(got, r.Evid)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}
