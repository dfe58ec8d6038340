package boundary

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/config"
	"github.com/sells-group/siteplan/internal/parcel"
)

func dissolved(t *testing.T, details []parcel.Feature) *Boundary {
	t.Helper()
	d := NewBBoxDissolver(nil)
	d.now = fixedNow
	b, err := d.Dissolve(context.Background(), details, Hint{})
	require.NoError(t, err)
	return b
}

// exerciseStore runs the replace-semantics contract against any Store.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.GetProjectBoundary(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound)

	first := []parcel.Feature{
		testParcel(t, "A", -112.02, 33.05, 0.25, 50000),
		testParcel(t, "B", -112.01, 33.06, 0.30, 60000),
	}
	saved, err := s.SaveProjectBoundary(ctx, "p1", first, dissolved(t, first))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.SaveID)

	got, err := s.GetProjectBoundary(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, saved.SaveID, got.SaveID)
	assert.Equal(t, 2, got.Boundary.ParcelCount)
	assert.Equal(t, "B", got.Boundary.PrimaryKey)
	assert.True(t, fixedNow().Equal(got.Boundary.ComputedAt))
	require.Len(t, got.Parcels, 2)
	assert.Equal(t, "A", got.Parcels[0].Key)
	assert.Equal(t, first[0].Attributes, got.Parcels[0].Attributes)
	assert.NotNil(t, got.Parcels[0].Geometry)
	assert.InDelta(t, -112.02, got.Boundary.Geometry.Bounds().Min(0), 1e-9)

	second := []parcel.Feature{testParcel(t, "C", -111.9, 33.1, 2, 10)}
	_, err = s.SaveProjectBoundary(ctx, "p1", second, dissolved(t, second))
	require.NoError(t, err)

	got, err = s.GetProjectBoundary(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got.Parcels, 1, "save replaces the previous boundary")
	assert.Equal(t, "C", got.Parcels[0].Key)
	assert.Equal(t, "C", got.Boundary.PrimaryKey)

	_, err = s.SaveProjectBoundary(ctx, "", second, dissolved(t, second))
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	bad := []parcel.Feature{{Key: ""}}
	_, err = s.SaveProjectBoundary(ctx, "p2", bad, dissolved(t, second))
	assert.ErrorIs(t, err, apperr.ErrMissingBusinessKey)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "siteplan.db"))
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))

	exerciseStore(t, s)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, config.StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = NewStore(ctx, config.StoreConfig{Driver: "mongo"})
	assert.ErrorContains(t, err, "unsupported store driver")

	_, err = NewStore(ctx, config.StoreConfig{Driver: "postgres"})
	assert.Error(t, err)
}
