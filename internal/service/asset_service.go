package service

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"mdshare/internal/cos"
	"mdshare/internal/domain"
	"mdshare/internal/repository"
)

type QuotaLedger interface {
	HeadroomChecker
	Commit(ctx context.Context, ownerID string, deltaBytes int64) error
}

// AssetService records uploads and reclaims their bytes on deletion.
type AssetService struct {
	assetRepo repository.AssetStore
	quota     QuotaLedger
	urls      cos.URLBuilder
	pathRoot  string
	log       *zap.Logger
}

func NewAssetService(assetRepo repository.AssetStore, quota QuotaLedger, urls cos.URLBuilder, pathRoot string, log *zap.Logger) *AssetService {
	if pathRoot == "" {
		pathRoot = cos.DefaultPathRoot
	}
	return &AssetService{
		assetRepo: assetRepo,
		quota:     quota,
		urls:      urls,
		pathRoot:  pathRoot,
		log:       log.Named("assets"),
	}
}

// Record stores metadata for bytes already uploaded under req.StorageKey and
// commits their size to the owner's quota. A quota rejection here leaves the
// remote object orphaned; the sweeper collects it later.
func (s *AssetService) Record(ctx context.Context, ownerID string, req domain.RecordRequest) (*domain.RecordResult, error) {
	if err := s.validateRecord(ownerID, req); err != nil {
		return nil, err
	}

	ok, err := s.quota.CheckHeadroom(ctx, ownerID, req.SizeBytes)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Info("record rejected, quota exceeded",
			zap.String("owner", ownerID), zap.String("key", req.StorageKey), zap.Int64("size", req.SizeBytes))
		return nil, domain.QuotaExceededError.New("storage quota exceeded")
	}

	filename := req.Filename
	if filename == "" {
		filename = path.Base(req.StorageKey)
	}
	asset := &domain.Asset{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		PostID:       req.PostID,
		Filename:     filename,
		OriginalName: req.OriginalName,
		StorageKey:   req.StorageKey,
		SizeBytes:    req.SizeBytes,
		MIMEType:     req.MIMEType,
		Width:        req.Width,
		Height:       req.Height,
	}
	if err := s.assetRepo.Create(ctx, asset); err != nil {
		if domain.ValidationError.Has(err) {
			return nil, err
		}
		return nil, domain.TransportError.Wrap(err)
	}

	if err := s.quota.Commit(ctx, ownerID, asset.SizeBytes); err != nil {
		s.log.Error("asset recorded but quota not committed, reconcile required",
			zap.String("owner", ownerID), zap.Stringer("asset", asset.ID), zap.Error(err))
		// Unclassed: the record exists, so retrying the upload would duplicate it.
		return nil, errs.New("asset %s recorded without quota commit: %v", asset.ID, err)
	}

	return &domain.RecordResult{File: asset, URLs: s.urls.Derive(asset.StorageKey)}, nil
}

func (s *AssetService) validateRecord(ownerID string, req domain.RecordRequest) error {
	if err := cos.CheckOwnerID(ownerID); err != nil {
		return err
	}
	if req.StorageKey == "" {
		return domain.ValidationError.New("cosKey is required")
	}
	if req.SizeBytes < 0 {
		return domain.ValidationError.New("fileSize must not be negative")
	}
	if strings.Contains(req.StorageKey, "..") {
		return domain.ValidationError.New("cosKey must not contain '..'")
	}
	// Credentials are scoped to the owner's prefix, so a key outside it was
	// never written by this owner.
	if !strings.HasPrefix(req.StorageKey, cos.OwnerPrefix(s.pathRoot, ownerID)) {
		return domain.ValidationError.New("cosKey is outside the owner's upload path")
	}
	return nil
}

// Delete removes the record and returns its bytes to the quota. The remote
// object is left in place.
func (s *AssetService) Delete(ctx context.Context, assetID uuid.UUID, ownerID string) error {
	asset, err := s.assetRepo.DeleteByOwner(ctx, assetID, ownerID)
	if err != nil {
		if domain.NotFoundError.Has(err) {
			return err
		}
		return domain.TransportError.Wrap(err)
	}

	if err := s.quota.Commit(ctx, ownerID, -asset.SizeBytes); err != nil {
		s.log.Error("asset deleted but quota not reclaimed, reconcile required",
			zap.String("owner", ownerID), zap.Stringer("asset", asset.ID), zap.Error(err))
		// Unclassed: the record is gone, so a retry would only find nothing.
		return errs.New("asset %s deleted without quota reclaim: %v", asset.ID, err)
	}

	s.log.Warn("remote object left in place after record deletion",
		zap.String("owner", ownerID), zap.String("key", asset.StorageKey), zap.Int64("size", asset.SizeBytes))
	return nil
}

func (s *AssetService) List(ctx context.Context, ownerID string) ([]domain.Asset, error) {
	assets, err := s.assetRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, domain.TransportError.Wrap(err)
	}
	return assets, nil
}

func (s *AssetService) Get(ctx context.Context, assetID uuid.UUID, ownerID string) (*domain.Asset, error) {
	asset, err := s.assetRepo.GetByOwner(ctx, assetID, ownerID)
	if err != nil {
		if domain.NotFoundError.Has(err) {
			return nil, err
		}
		return nil, domain.TransportError.Wrap(err)
	}
	return asset, nil
}

// URLs derives the transform views for a stored key.
func (s *AssetService) URLs(storageKey string) domain.DerivedURLs {
	return s.urls.Derive(storageKey)
}
