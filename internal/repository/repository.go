package repository

import (
	"context"

	"github.com/google/uuid"

	"mdshare/internal/domain"
)

// QuotaStore persists the per-owner ledger. UpdateUsedSpace is the only
// way used bytes change during normal operation and must be a single
// atomic, floored update on the storage side.
type QuotaStore interface {
	GetQuota(ctx context.Context, ownerID string) (*domain.StorageQuota, error)
	UpdateUsedSpace(ctx context.Context, ownerID string, deltaBytes int64) (*domain.StorageQuota, error)
	UpdateQuotaLimit(ctx context.Context, ownerID string, newLimit int64) error
	SetUsedSpace(ctx context.Context, ownerID string, usedBytes int64) error
}

// AssetStore persists asset records. Lookups and deletes are always scoped
// to the owner; a foreign id behaves exactly like a missing one.
type AssetStore interface {
	Create(ctx context.Context, asset *domain.Asset) error
	GetByOwner(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Asset, error)
	DeleteByOwner(ctx context.Context, id uuid.UUID, ownerID string) (*domain.Asset, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Asset, error)
	SumSizeByOwner(ctx context.Context, ownerID string) (int64, int, error)
	ListStorageKeys(ctx context.Context, ownerID string) ([]string, error)
}
