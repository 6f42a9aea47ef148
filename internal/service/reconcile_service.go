package service

import (
	"context"

	"go.uber.org/zap"

	"mdshare/internal/domain"
	"mdshare/internal/repository"
)

// ReconcileService compares the quota counter with the live asset records
// and repairs the counter on request.
type ReconcileService struct {
	assetRepo repository.AssetStore
	quota     *StorageQuotaService
	log       *zap.Logger
}

func NewReconcileService(assetRepo repository.AssetStore, quota *StorageQuotaService, log *zap.Logger) *ReconcileService {
	return &ReconcileService{assetRepo: assetRepo, quota: quota, log: log.Named("reconcile")}
}

func (s *ReconcileService) Audit(ctx context.Context, ownerID string) (*domain.Drift, error) {
	quota, err := s.quota.GetQuota(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	total, count, err := s.assetRepo.SumSizeByOwner(ctx, ownerID)
	if err != nil {
		return nil, domain.TransportError.Wrap(err)
	}

	drift := &domain.Drift{
		OwnerID:       ownerID,
		UsedBytes:     quota.UsedBytes,
		RecordedBytes: total,
		RecordCount:   count,
		Delta:         quota.UsedBytes - total,
	}
	if !drift.InSync() {
		s.log.Warn("quota drift detected",
			zap.String("owner", ownerID),
			zap.Int64("used", drift.UsedBytes),
			zap.Int64("recorded", drift.RecordedBytes),
			zap.Int64("delta", drift.Delta))
	}
	return drift, nil
}

// Repair sets the counter to the recorded total and returns the drift that
// was corrected. Uploads committing concurrently can race with it; run it
// when the owner is idle.
func (s *ReconcileService) Repair(ctx context.Context, ownerID string) (*domain.Drift, error) {
	drift, err := s.Audit(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if drift.InSync() {
		return drift, nil
	}

	if err := s.quota.SetUsedSpace(ctx, ownerID, drift.RecordedBytes); err != nil {
		return nil, err
	}
	s.log.Info("quota repaired",
		zap.String("owner", ownerID), zap.Int64("from", drift.UsedBytes), zap.Int64("to", drift.RecordedBytes))
	return drift, nil
}
