package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mdshare/internal/domain"
)

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

const assetColumns = `id, owner_id, post_id, filename, original_name, storage_key,
        size_bytes, mime_type, width, height, created_at`

type AssetRepository struct {
	db *sqlx.DB
}

func NewAssetRepository(db *sqlx.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

func (r *AssetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}

	query := `
        INSERT INTO assets (id, owner_id, post_id, filename, original_name, storage_key,
                            size_bytes, mime_type, width, height)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		asset.ID,
		asset.OwnerID,
		asset.PostID,
		asset.Filename,
		asset.OriginalName,
		asset.StorageKey,
		asset.SizeBytes,
		asset.MIMEType,
		asset.Width,
		asset.Height,
	).Scan(&asset.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ValidationError.New("storage key %s is already recorded", asset.StorageKey)
		}
		return fmt.Errorf("failed to create asset: %w", err)
	}
	return nil
}

func (r *AssetRepository) GetByOwner(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Asset, error) {
	var asset domain.Asset
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1 AND owner_id = $2`

	err := r.db.GetContext(ctx, &asset, query, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError.New("asset %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &asset, nil
}

// DeleteByOwner removes the record and returns what was removed. Lookup and
// delete are one statement, so two concurrent deletes of the same id cannot
// both reclaim its bytes.
func (r *AssetRepository) DeleteByOwner(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Asset, error) {
	var asset domain.Asset
	query := `DELETE FROM assets WHERE id = $1 AND owner_id = $2 RETURNING ` + assetColumns

	err := r.db.QueryRowxContext(ctx, query, id, ownerID).StructScan(&asset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError.New("asset %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete asset: %w", err)
	}
	return &asset, nil
}

func (r *AssetRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Asset, error) {
	assets := []domain.Asset{}
	query := `SELECT ` + assetColumns + ` FROM assets WHERE owner_id = $1 ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &assets, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return assets, nil
}

func (r *AssetRepository) SumSizeByOwner(ctx context.Context, ownerID string) (int64, int, error) {
	var total int64
	var count int

	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(size_bytes), 0), COUNT(*) FROM assets WHERE owner_id = $1`,
		ownerID,
	).Scan(&total, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum asset sizes: %w", err)
	}
	return total, count, nil
}

func (r *AssetRepository) ListStorageKeys(ctx context.Context, ownerID string) ([]string, error) {
	keys := []string{}
	if err := r.db.SelectContext(ctx, &keys,
		`SELECT storage_key FROM assets WHERE owner_id = $1`, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list storage keys: %w", err)
	}
	return keys, nil
}
