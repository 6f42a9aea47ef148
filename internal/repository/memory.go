package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mdshare/internal/domain"
)

// MemoryQuotaRepository keeps the ledger in process. It backs the memory
// database driver used for local development and the handler tests.
type MemoryQuotaRepository struct {
	mu           sync.Mutex
	quotas       map[string]domain.StorageQuota
	defaultLimit int64
}

func NewMemoryQuotaRepository(defaultLimit int64) *MemoryQuotaRepository {
	if defaultLimit <= 0 {
		defaultLimit = domain.DefaultQuotaLimit
	}
	return &MemoryQuotaRepository{
		quotas:       make(map[string]domain.StorageQuota),
		defaultLimit: defaultLimit,
	}
}

// ensure must be called with mu held.
func (r *MemoryQuotaRepository) ensure(ownerID string) domain.StorageQuota {
	q, ok := r.quotas[ownerID]
	if !ok {
		now := time.Now().UTC()
		q = domain.StorageQuota{OwnerID: ownerID, LimitBytes: r.defaultLimit, CreatedAt: now, UpdatedAt: now}
		r.quotas[ownerID] = q
	}
	return q
}

func (r *MemoryQuotaRepository) GetQuota(_ context.Context, ownerID string) (*domain.StorageQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := r.ensure(ownerID)
	return &q, nil
}

func (r *MemoryQuotaRepository) UpdateUsedSpace(_ context.Context, ownerID string, deltaBytes int64) (*domain.StorageQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := r.ensure(ownerID)
	q.UsedBytes = max(0, q.UsedBytes+deltaBytes)
	q.UpdatedAt = time.Now().UTC()
	r.quotas[ownerID] = q
	return &q, nil
}

func (r *MemoryQuotaRepository) UpdateQuotaLimit(_ context.Context, ownerID string, newLimit int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := r.ensure(ownerID)
	q.LimitBytes = newLimit
	q.UpdatedAt = time.Now().UTC()
	r.quotas[ownerID] = q
	return nil
}

func (r *MemoryQuotaRepository) SetUsedSpace(_ context.Context, ownerID string, usedBytes int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := r.ensure(ownerID)
	q.UsedBytes = max(0, usedBytes)
	q.UpdatedAt = time.Now().UTC()
	r.quotas[ownerID] = q
	return nil
}

type MemoryAssetRepository struct {
	mu     sync.RWMutex
	assets map[uuid.UUID]domain.Asset
}

func NewMemoryAssetRepository() *MemoryAssetRepository {
	return &MemoryAssetRepository{assets: make(map[uuid.UUID]domain.Asset)}
}

func (r *MemoryAssetRepository) Create(_ context.Context, asset *domain.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.assets {
		if a.StorageKey == asset.StorageKey {
			return domain.ValidationError.New("storage key %s is already recorded", asset.StorageKey)
		}
	}

	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	asset.CreatedAt = time.Now().UTC()
	r.assets[asset.ID] = *asset
	return nil
}

func (r *MemoryAssetRepository) GetByOwner(_ context.Context, id uuid.UUID, ownerID string) (*domain.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[id]
	if !ok || a.OwnerID != ownerID {
		return nil, domain.NotFoundError.New("asset %s", id)
	}
	return &a, nil
}

func (r *MemoryAssetRepository) DeleteByOwner(_ context.Context, id uuid.UUID, ownerID string) (*domain.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[id]
	if !ok || a.OwnerID != ownerID {
		return nil, domain.NotFoundError.New("asset %s", id)
	}
	delete(r.assets, id)
	return &a, nil
}

func (r *MemoryAssetRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	assets := []domain.Asset{}
	for _, a := range r.assets {
		if a.OwnerID == ownerID {
			assets = append(assets, a)
		}
	}
	sort.Slice(assets, func(i, j int) bool {
		return assets[i].CreatedAt.After(assets[j].CreatedAt)
	})
	return assets, nil
}

func (r *MemoryAssetRepository) SumSizeByOwner(_ context.Context, ownerID string) (int64, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	var count int
	for _, a := range r.assets {
		if a.OwnerID == ownerID {
			total += a.SizeBytes
			count++
		}
	}
	return total, count, nil
}

func (r *MemoryAssetRepository) ListStorageKeys(_ context.Context, ownerID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := []string{}
	for _, a := range r.assets {
		if a.OwnerID == ownerID {
			keys = append(keys, a.StorageKey)
		}
	}
	return keys, nil
}
