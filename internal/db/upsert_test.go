package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "parcels.parcels",
		Columns:      []string{"apn", "owner"},
		ConflictKeys: []string{"apn"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "parcels.parcels",
		ConflictKeys: []string{"apn"},
	}, [][]any{{"501-01-001", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "parcels.parcels",
		Columns: []string{"apn", "owner"},
	}, [][]any{{"501-01-001", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_parcels_parcels"}, []string{"apn", "owner"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "parcels"."parcels"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "parcels.parcels",
		Columns:      []string{"apn", "owner"},
		ConflictKeys: []string{"apn"},
	}, [][]any{{"501-01-001", "Alpha LLC"}, {"501-01-002", "Beta LLC"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOpen_RequiresURL(t *testing.T) {
	_, err := Open(context.Background(), "", PoolConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database url is required")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"parcels.parcels", `"parcels"."parcels"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestUpsertStatement(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "parcels.parcels",
		Columns:      []string{"apn", "owner", "geom"},
		ConflictKeys: []string{"apn"},
		TouchColumn:  "updated_at",
	}
	got := upsertStatement(cfg, tempTableName(cfg.Table))
	assert.Equal(t,
		`INSERT INTO "parcels"."parcels" ("apn", "owner", "geom", "updated_at") `+
			`SELECT "apn", "owner", "geom", now() FROM "_tmp_upsert_parcels_parcels" `+
			`ON CONFLICT ("apn") DO UPDATE SET "owner" = EXCLUDED."owner", "geom" = EXCLUDED."geom", "updated_at" = now()`,
		got)
}

func TestUpsertStatement_KeysOnly(t *testing.T) {
	cfg := UpsertConfig{Table: "links", Columns: []string{"a", "b"}, ConflictKeys: []string{"a", "b"}}
	got := upsertStatement(cfg, "tmp")
	assert.Contains(t, got, `ON CONFLICT ("a", "b") DO NOTHING`)
}
