package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mdshare/internal/cos"
	"mdshare/internal/repository"
	"mdshare/internal/service/s3"
)

type ObjectStore interface {
	ListObjects(ctx context.Context, prefix string) ([]s3.Object, error)
	DeleteObject(ctx context.Context, key string) error
}

type SweepReport struct {
	Scanned    int      `json:"scanned"`
	Referenced int      `json:"referenced"`
	Young      int      `json:"young"`
	Deleted    []string `json:"deleted"`
	Failed     []string `json:"failed"`
	FreedBytes int64    `json:"freed_bytes"`
}

// SweeperService deletes remote objects no asset record points to: bytes
// left behind by rejected recordings, failed commits and record deletions.
type SweeperService struct {
	store     ObjectStore
	assetRepo repository.AssetStore
	pathRoot  string
	now       func() time.Time
	log       *zap.Logger
}

func NewSweeperService(store ObjectStore, assetRepo repository.AssetStore, pathRoot string, log *zap.Logger) *SweeperService {
	if pathRoot == "" {
		pathRoot = cos.DefaultPathRoot
	}
	return &SweeperService{
		store:     store,
		assetRepo: assetRepo,
		pathRoot:  pathRoot,
		now:       time.Now,
		log:       log.Named("sweeper"),
	}
}

// Sweep scans one owner's prefix, or every owner when ownerID is empty.
// Objects younger than grace are kept: their recording may still be in
// flight.
func (s *SweeperService) Sweep(ctx context.Context, ownerID string, grace time.Duration) (*SweepReport, error) {
	prefix := s.pathRoot + "/"
	if ownerID != "" {
		if err := cos.CheckOwnerID(ownerID); err != nil {
			return nil, err
		}
		prefix = cos.ObjectName(cos.OwnerPrefix(s.pathRoot, ownerID))
	}

	objects, err := s.store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote objects: %w", err)
	}

	report := &SweepReport{Deleted: []string{}, Failed: []string{}}
	referenced := make(map[string]map[string]struct{})
	cutoff := s.now().Add(-grace)

	for _, obj := range objects {
		report.Scanned++

		owner := s.ownerOf(obj.Key)
		if owner == "" {
			continue
		}
		keys, ok := referenced[owner]
		if !ok {
			keys, err = s.referencedKeys(ctx, owner)
			if err != nil {
				return report, err
			}
			referenced[owner] = keys
		}

		if _, ok := keys[obj.Key]; ok {
			report.Referenced++
			continue
		}
		if obj.LastModified.After(cutoff) {
			report.Young++
			continue
		}

		if err := s.store.DeleteObject(ctx, obj.Key); err != nil {
			s.log.Warn("failed to delete orphan", zap.String("key", obj.Key), zap.Error(err))
			report.Failed = append(report.Failed, obj.Key)
			continue
		}
		report.Deleted = append(report.Deleted, obj.Key)
		report.FreedBytes += obj.Size
	}

	s.log.Info("sweep finished",
		zap.String("prefix", prefix),
		zap.Int("scanned", report.Scanned),
		zap.Int("deleted", len(report.Deleted)),
		zap.Int("failed", len(report.Failed)),
		zap.Int64("freed_bytes", report.FreedBytes))
	return report, nil
}

// ownerOf extracts the owner segment of "{root}/{owner}/...".
func (s *SweeperService) ownerOf(key string) string {
	rest, ok := strings.CutPrefix(key, s.pathRoot+"/")
	if !ok {
		return ""
	}
	owner, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return owner
}

func (s *SweeperService) referencedKeys(ctx context.Context, ownerID string) (map[string]struct{}, error) {
	keys, err := s.assetRepo.ListStorageKeys(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage keys for %s: %w", ownerID, err)
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[cos.ObjectName(k)] = struct{}{}
	}
	return set, nil
}
