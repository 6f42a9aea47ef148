package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mdshare/internal/cos"
	"mdshare/internal/domain"
)

const DefaultCredentialTTL = 30 * time.Minute

type HeadroomChecker interface {
	CheckHeadroom(ctx context.Context, ownerID string, additionalBytes int64) (bool, error)
}

type CredentialConfig struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	PathRoot  string
	TTL       time.Duration
	// ExposeSecretKey returns the account secret alongside the sign key.
	// S3-style stores need it to compute SigV4 signatures client-side.
	ExposeSecretKey bool
}

// CredentialService mints upload credentials. Issuance is a pure function
// of owner, clock and server secret; nothing is stored.
type CredentialService struct {
	cfg   CredentialConfig
	quota HeadroomChecker
	now   func() time.Time
	log   *zap.Logger
}

func NewCredentialService(cfg CredentialConfig, quota HeadroomChecker, log *zap.Logger) *CredentialService {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCredentialTTL
	}
	if cfg.PathRoot == "" {
		cfg.PathRoot = cos.DefaultPathRoot
	}
	return &CredentialService{
		cfg:   cfg,
		quota: quota,
		now:   time.Now,
		log:   log.Named("credentials"),
	}
}

// Issue returns a credential scoped to the owner's current month prefix.
// The quota pre-check only rejects owners with no room left at all: the
// upload size is unknown here, recording re-checks with the real size.
func (s *CredentialService) Issue(ctx context.Context, ownerID string) (*domain.UploadCredential, error) {
	if err := cos.CheckOwnerID(ownerID); err != nil {
		return nil, err
	}

	ok, err := s.quota.CheckHeadroom(ctx, ownerID, 1)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.log.Info("issuance rejected, quota full", zap.String("owner", ownerID))
		return nil, domain.QuotaExceededError.New("storage quota is full")
	}

	if s.cfg.SecretID == "" || s.cfg.SecretKey == "" || s.cfg.Bucket == "" {
		s.log.Error("object store credentials are not configured")
		return nil, domain.ConfigError.New("object store secret id, secret key and bucket must be set")
	}

	now := s.now().UTC().Truncate(time.Second)
	expires := now.Add(s.cfg.TTL)
	keyTime := cos.KeyTime(now, expires)

	cred := &domain.UploadCredential{
		Bucket:     s.cfg.Bucket,
		Region:     s.cfg.Region,
		PathPrefix: cos.PathPrefix(s.cfg.PathRoot, ownerID, now),
		SecretID:   s.cfg.SecretID,
		KeyTime:    keyTime,
		SignKey:    cos.SignKey(s.cfg.SecretKey, keyTime),
		IssuedAt:   now,
		ExpiresAt:  expires,
	}
	if s.cfg.ExposeSecretKey {
		cred.SecretKey = s.cfg.SecretKey
	}
	return cred, nil
}
