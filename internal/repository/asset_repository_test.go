package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdshare/internal/domain"
)

var assetColumnNames = []string{
	"id", "owner_id", "post_id", "filename", "original_name", "storage_key",
	"size_bytes", "mime_type", "width", "height", "created_at",
}

func TestAssetRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssetRepository(db)

	width, height := 640, 480
	asset := &domain.Asset{
		OwnerID:      "u1",
		Filename:     "abc.png",
		OriginalName: "cat.png",
		StorageKey:   "/mdshare/u1/2024/05/abc.png",
		SizeBytes:    50,
		MIMEType:     "image/png",
		Width:        &width,
		Height:       &height,
	}
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO assets`).
		WithArgs(sqlmock.AnyArg(), "u1", nil, "abc.png", "cat.png", "/mdshare/u1/2024/05/abc.png",
			int64(50), "image/png", &width, &height).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	require.NoError(t, repo.Create(context.Background(), asset))
	assert.NotEqual(t, uuid.Nil, asset.ID)
	assert.Equal(t, created, asset.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssetRepository_Create_DuplicateKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssetRepository(db)

	mock.ExpectQuery(`INSERT INTO assets`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Create(context.Background(), &domain.Asset{OwnerID: "u1", StorageKey: "/mdshare/u1/2024/05/abc.png"})
	assert.True(t, domain.ValidationError.Has(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssetRepository_DeleteByOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssetRepository(db)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM assets WHERE id = $1 AND owner_id = $2 RETURNING`)).
		WithArgs(id, "u1").
		WillReturnRows(sqlmock.NewRows(assetColumnNames).AddRow(
			id.String(), "u1", nil, "abc.png", "cat.png", "/mdshare/u1/2024/05/abc.png",
			int64(50), "image/png", nil, nil, time.Now(),
		))

	asset, err := repo.DeleteByOwner(context.Background(), id, "u1")
	require.NoError(t, err)
	assert.Equal(t, id, asset.ID)
	assert.Equal(t, int64(50), asset.SizeBytes)
	assert.Nil(t, asset.Width)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssetRepository_DeleteByOwner_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssetRepository(db)
	id := uuid.New()

	mock.ExpectQuery(`DELETE FROM assets`).
		WithArgs(id, "intruder").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.DeleteByOwner(context.Background(), id, "intruder")
	require.Error(t, err)
	assert.True(t, domain.NotFoundError.Has(err))
}

func TestAssetRepository_GetByOwner_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssetRepository(db)

	mock.ExpectQuery(`SELECT .* FROM assets WHERE id = \$1 AND owner_id = \$2`).
		WillReturnRows(sqlmock.NewRows(assetColumnNames))

	_, err := repo.GetByOwner(context.Background(), uuid.New(), "u1")
	assert.True(t, domain.NotFoundError.Has(err))
}

func TestAssetRepository_ListByOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssetRepository(db)

	rows := sqlmock.NewRows(assetColumnNames).
		AddRow(uuid.NewString(), "u1", "p1", "a.png", "a.png", "/mdshare/u1/2024/05/a.png", int64(10), "image/png", 1, 1, time.Now()).
		AddRow(uuid.NewString(), "u1", nil, "b.gif", "b.gif", "/mdshare/u1/2024/05/b.gif", int64(20), "image/gif", nil, nil, time.Now())
	mock.ExpectQuery(`SELECT .* FROM assets WHERE owner_id = \$1 ORDER BY created_at DESC`).
		WithArgs("u1").
		WillReturnRows(rows)

	assets, err := repo.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, assets, 2)
	require.NotNil(t, assets[0].PostID)
	assert.Equal(t, "p1", *assets[0].PostID)
	assert.Nil(t, assets[1].PostID)
}

func TestAssetRepository_SumSizeByOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssetRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(size_bytes), 0), COUNT(*) FROM assets WHERE owner_id = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"sum", "count"}).AddRow(int64(950), 2))

	total, count, err := repo.SumSizeByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(950), total)
	assert.Equal(t, 2, count)
}

func TestAssetRepository_ListStorageKeys(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAssetRepository(db)

	mock.ExpectQuery(`SELECT storage_key FROM assets WHERE owner_id = \$1`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"storage_key"}).AddRow("/mdshare/u1/2024/05/a.png"))

	keys, err := repo.ListStorageKeys(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"/mdshare/u1/2024/05/a.png"}, keys)
}
