package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"mdshare/internal/domain"
)

const quotaColumns = `owner_id, used_bytes, limit_bytes, created_at, updated_at`

type StorageQuotaRepository struct {
	db           *sqlx.DB
	defaultLimit int64
}

func NewStorageQuotaRepository(db *sqlx.DB, defaultLimit int64) *StorageQuotaRepository {
	if defaultLimit <= 0 {
		defaultLimit = domain.DefaultQuotaLimit
	}
	return &StorageQuotaRepository{db: db, defaultLimit: defaultLimit}
}

// GetQuota returns the owner's ledger row, creating it with the default
// limit the first time the owner is seen.
func (r *StorageQuotaRepository) GetQuota(ctx context.Context, ownerID string) (*domain.StorageQuota, error) {
	var quota domain.StorageQuota

	err := r.db.GetContext(ctx, &quota,
		`SELECT `+quotaColumns+` FROM storage_quotas WHERE owner_id = $1`,
		ownerID)
	if err == nil {
		return &quota, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}

	quota = domain.StorageQuota{OwnerID: ownerID, LimitBytes: r.defaultLimit}
	if err := r.Create(ctx, &quota); err != nil {
		return nil, fmt.Errorf("failed to create quota: %w", err)
	}
	return &quota, nil
}

// Create inserts a ledger row. A concurrent creator wins silently and the
// stored row is read back into quota.
func (r *StorageQuotaRepository) Create(ctx context.Context, quota *domain.StorageQuota) error {
	query := `
        INSERT INTO storage_quotas (owner_id, used_bytes, limit_bytes)
        VALUES ($1, $2, $3)
        ON CONFLICT (owner_id) DO UPDATE SET owner_id = EXCLUDED.owner_id
        RETURNING ` + quotaColumns

	return r.db.QueryRowxContext(ctx, query,
		quota.OwnerID,
		quota.UsedBytes,
		quota.LimitBytes,
	).StructScan(quota)
}

// UpdateUsedSpace applies used = max(0, used + delta) in one statement.
// Rows are created on demand so a commit never depends on a prior read.
func (r *StorageQuotaRepository) UpdateUsedSpace(ctx context.Context, ownerID string, deltaBytes int64) (*domain.StorageQuota, error) {
	query := `
        INSERT INTO storage_quotas (owner_id, used_bytes, limit_bytes)
        VALUES ($1, GREATEST(0, $2::bigint), $3)
        ON CONFLICT (owner_id) DO UPDATE
        SET used_bytes = GREATEST(0, storage_quotas.used_bytes + $2::bigint),
            updated_at = CURRENT_TIMESTAMP
        RETURNING ` + quotaColumns

	var quota domain.StorageQuota
	err := r.db.QueryRowxContext(ctx, query, ownerID, deltaBytes, r.defaultLimit).StructScan(&quota)
	if err != nil {
		return nil, fmt.Errorf("failed to update used space: %w", err)
	}
	return &quota, nil
}

func (r *StorageQuotaRepository) UpdateQuotaLimit(ctx context.Context, ownerID string, newLimit int64) error {
	query := `
        INSERT INTO storage_quotas (owner_id, used_bytes, limit_bytes)
        VALUES ($1, 0, $2)
        ON CONFLICT (owner_id) DO UPDATE
        SET limit_bytes = EXCLUDED.limit_bytes,
            updated_at = CURRENT_TIMESTAMP`

	if _, err := r.db.ExecContext(ctx, query, ownerID, newLimit); err != nil {
		return fmt.Errorf("failed to update quota limit: %w", err)
	}
	return nil
}

// SetUsedSpace overwrites used bytes. Only reconciliation calls it.
func (r *StorageQuotaRepository) SetUsedSpace(ctx context.Context, ownerID string, usedBytes int64) error {
	query := `
        INSERT INTO storage_quotas (owner_id, used_bytes, limit_bytes)
        VALUES ($1, GREATEST(0, $2::bigint), $3)
        ON CONFLICT (owner_id) DO UPDATE
        SET used_bytes = EXCLUDED.used_bytes,
            updated_at = CURRENT_TIMESTAMP`

	if _, err := r.db.ExecContext(ctx, query, ownerID, usedBytes, r.defaultLimit); err != nil {
		return fmt.Errorf("failed to set used space: %w", err)
	}
	return nil
}
