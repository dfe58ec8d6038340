package boundary

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/parcel"
)

func TestPostgresStore_SaveReplaces(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	details := []parcel.Feature{testParcel(t, "A", -112.02, 33.05, 1, 100)}
	b := dissolved(t, details)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM siteplan.project_boundaries").
		WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO siteplan.project_boundaries").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"siteplan", "project_boundary_parcels"}, boundaryParcelColumns).
		WillReturnResult(1)
	mock.ExpectCommit()

	saved, err := NewPostgresStore(mock).SaveProjectBoundary(context.Background(), "p1", details, b)
	require.NoError(t, err)
	assert.Equal(t, "p1", saved.ProjectID)
	assert.NotEmpty(t, saved.SaveID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveFailureIsPersistenceFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	details := []parcel.Feature{testParcel(t, "A", -112.02, 33.05, 1, 100)}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM siteplan.project_boundaries").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = NewPostgresStore(mock).SaveProjectBoundary(context.Background(), "p1", details, dissolved(t, details))
	assert.ErrorIs(t, err, apperr.ErrPersistenceFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM siteplan.project_boundaries").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = NewPostgresStore(mock).GetProjectBoundary(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	outline, err := wkb.Marshal(square(t, -112.02, 33.05, 0.01), wkb.NDR)
	require.NoError(t, err)
	parcelGeom, err := wkb.Marshal(square(t, -112.02, 33.05, 0.001), wkb.NDR)
	require.NoError(t, err)

	mock.ExpectQuery("FROM siteplan.project_boundaries").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{
			"save_id", "geom", "total_acres", "total_value", "parcel_count",
			"primary_parcel", "county", "city", "census_tract", "computed_at", "saved_at",
		}).AddRow("s-1", outline, 1.5, 200.0, 1, "A", "Pinal", "Maricopa", "04021001702", fixedNow(), fixedNow()))

	mock.ExpectQuery("FROM siteplan.project_boundary_parcels").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{
			"apn", "owner", "site_address", "site_city", "county",
			"gross_acres", "appraised_value", "market_value",
			"conveyance_name", "use_code", "use_description", "geom",
		}).AddRow("A", "Owner A", "", "Maricopa", "Pinal", 1.5, 0.0, 200.0, "", "", "", parcelGeom))

	got, err := NewPostgresStore(mock).GetProjectBoundary(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", got.SaveID)
	assert.Equal(t, "04021001702", got.Boundary.CensusTract)
	require.NotNil(t, got.Boundary.Geometry)
	require.Len(t, got.Parcels, 1)
	assert.Equal(t, "Owner A", got.Parcels[0].Attributes.Owner)
	assert.NoError(t, got.Parcels[0].Validate())
	assert.NoError(t, mock.ExpectationsWereMet())
}
