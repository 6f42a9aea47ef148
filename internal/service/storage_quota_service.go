package service

import (
	"context"

	"go.uber.org/zap"

	"mdshare/internal/domain"
	"mdshare/internal/repository"
)

// StorageQuotaService is the only writer of quota state. Reads are
// advisory; Commit is the atomic path.
type StorageQuotaService struct {
	quotaRepo repository.QuotaStore
	log       *zap.Logger
}

func NewStorageQuotaService(quotaRepo repository.QuotaStore, log *zap.Logger) *StorageQuotaService {
	return &StorageQuotaService{
		quotaRepo: quotaRepo,
		log:       log.Named("quota"),
	}
}

func (s *StorageQuotaService) GetQuota(ctx context.Context, ownerID string) (*domain.StorageQuota, error) {
	quota, err := s.quotaRepo.GetQuota(ctx, ownerID)
	if err != nil {
		return nil, domain.TransportError.Wrap(err)
	}
	return quota, nil
}

func (s *StorageQuotaService) GetQuotaInfo(ctx context.Context, ownerID string) (*domain.QuotaInfo, error) {
	quota, err := s.GetQuota(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	availableSpace := max(0, quota.LimitBytes-quota.UsedBytes)
	var usagePercent float64
	if quota.LimitBytes > 0 {
		usagePercent = float64(quota.UsedBytes) / float64(quota.LimitBytes) * 100
	}

	return &domain.QuotaInfo{
		TotalSpace:     quota.LimitBytes,
		UsedSpace:      quota.UsedBytes,
		AvailableSpace: availableSpace,
		UsagePercent:   usagePercent,
	}, nil
}

// CheckHeadroom reports whether additionalBytes fit under the owner's
// limit right now. Nothing is reserved; two callers can both see room.
func (s *StorageQuotaService) CheckHeadroom(ctx context.Context, ownerID string, additionalBytes int64) (bool, error) {
	if additionalBytes < 0 {
		return false, domain.ValidationError.New("additional bytes must not be negative, got %d", additionalBytes)
	}

	quota, err := s.GetQuota(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return quota.HasHeadroom(additionalBytes), nil
}

// Commit applies used = max(0, used + deltaBytes). It never rejects on
// business grounds; errors are storage failures and safe to retry.
func (s *StorageQuotaService) Commit(ctx context.Context, ownerID string, deltaBytes int64) error {
	quota, err := s.quotaRepo.UpdateUsedSpace(ctx, ownerID, deltaBytes)
	if err != nil {
		s.log.Error("commit failed",
			zap.String("owner", ownerID), zap.Int64("delta", deltaBytes), zap.Error(err))
		return domain.TransportError.Wrap(err)
	}

	s.log.Debug("committed",
		zap.String("owner", ownerID),
		zap.Int64("delta", deltaBytes),
		zap.Int64("used", quota.UsedBytes),
		zap.Int64("limit", quota.LimitBytes))
	if quota.UsedBytes > quota.LimitBytes {
		s.log.Info("owner over soft limit",
			zap.String("owner", ownerID), zap.Int64("used", quota.UsedBytes), zap.Int64("limit", quota.LimitBytes))
	}
	return nil
}

func (s *StorageQuotaService) UpdateQuotaLimit(ctx context.Context, ownerID string, newLimit int64) error {
	if newLimit <= 0 {
		return domain.ValidationError.New("quota limit must be positive")
	}
	if err := s.quotaRepo.UpdateQuotaLimit(ctx, ownerID, newLimit); err != nil {
		return domain.TransportError.Wrap(err)
	}
	s.log.Info("quota limit updated", zap.String("owner", ownerID), zap.Int64("limit", newLimit))
	return nil
}

// SetUsedSpace overwrites the counter. Reserved for reconciliation.
func (s *StorageQuotaService) SetUsedSpace(ctx context.Context, ownerID string, usedBytes int64) error {
	if err := s.quotaRepo.SetUsedSpace(ctx, ownerID, usedBytes); err != nil {
		return domain.TransportError.Wrap(err)
	}
	return nil
}
