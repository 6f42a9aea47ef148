package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func quotaRows(owner string, used, limit int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"owner_id", "used_bytes", "limit_bytes", "created_at", "updated_at"}).
		AddRow(owner, used, limit, now, now)
}

func TestStorageQuotaRepository_GetQuota_Existing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStorageQuotaRepository(db, 1000)

	mock.ExpectQuery(`SELECT .* FROM storage_quotas WHERE owner_id = \$1`).
		WithArgs("u1").
		WillReturnRows(quotaRows("u1", 900, 1000))

	q, err := repo.GetQuota(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(900), q.UsedBytes)
	assert.Equal(t, int64(1000), q.LimitBytes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageQuotaRepository_GetQuota_CreatesDefault(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStorageQuotaRepository(db, 2048)

	mock.ExpectQuery(`SELECT .* FROM storage_quotas`).
		WithArgs("new").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO storage_quotas`).
		WithArgs("new", int64(0), int64(2048)).
		WillReturnRows(quotaRows("new", 0, 2048))

	q, err := repo.GetQuota(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.UsedBytes)
	assert.Equal(t, int64(2048), q.LimitBytes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageQuotaRepository_GetQuota_Error(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStorageQuotaRepository(db, 0)

	mock.ExpectQuery(`SELECT .* FROM storage_quotas`).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.GetQuota(context.Background(), "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStorageQuotaRepository_UpdateUsedSpace_SingleStatement(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStorageQuotaRepository(db, 1000)

	mock.ExpectQuery(`INSERT INTO storage_quotas .* ON CONFLICT \(owner_id\) DO UPDATE SET used_bytes = GREATEST\(0, storage_quotas.used_bytes \+ \$2::bigint\)`).
		WithArgs("u1", int64(-500), int64(1000)).
		WillReturnRows(quotaRows("u1", 0, 1000))

	q, err := repo.UpdateUsedSpace(context.Background(), "u1", -500)
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.UsedBytes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageQuotaRepository_UpdateUsedSpace_Error(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStorageQuotaRepository(db, 1000)

	mock.ExpectQuery(`INSERT INTO storage_quotas`).WillReturnError(errors.New("timeout"))

	_, err := repo.UpdateUsedSpace(context.Background(), "u1", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update used space")
}

func TestStorageQuotaRepository_UpdateQuotaLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStorageQuotaRepository(db, 1000)

	mock.ExpectExec(`INSERT INTO storage_quotas .* SET limit_bytes = EXCLUDED.limit_bytes`).
		WithArgs("u1", int64(5000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateQuotaLimit(context.Background(), "u1", 5000))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageQuotaRepository_SetUsedSpace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStorageQuotaRepository(db, 1000)

	mock.ExpectExec(`INSERT INTO storage_quotas .* SET used_bytes = EXCLUDED.used_bytes`).
		WithArgs("u1", int64(300), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetUsedSpace(context.Background(), "u1", 300))
	require.NoError(t, mock.ExpectationsWereMet())
}
