package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mdshare/internal/cos"
	"mdshare/internal/domain"
)

type stubHeadroom struct {
	ok    bool
	err   error
	calls []int64
}

func (s *stubHeadroom) CheckHeadroom(_ context.Context, _ string, additional int64) (bool, error) {
	s.calls = append(s.calls, additional)
	return s.ok, s.err
}

func testCredentialConfig() CredentialConfig {
	return CredentialConfig{
		Bucket:    "assets-1250000000",
		Region:    "ap-guangzhou",
		SecretID:  "AKID",
		SecretKey: "secret",
	}
}

func TestCredentialService_Issue(t *testing.T) {
	quota := &stubHeadroom{ok: true}
	svc := NewCredentialService(testCredentialConfig(), quota, zap.NewNop())
	now := time.Date(2024, 5, 31, 23, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	cred, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "/mdshare/u1/2024/05/", cred.PathPrefix)
	assert.Equal(t, "assets-1250000000", cred.Bucket)
	assert.Equal(t, "ap-guangzhou", cred.Region)
	assert.Equal(t, now, cred.IssuedAt)
	assert.Equal(t, now.Add(30*time.Minute), cred.ExpiresAt)
	assert.Equal(t, "1717198200;1717200000", cred.KeyTime)
	assert.Equal(t, cos.SignKey("secret", cred.KeyTime), cred.SignKey)
	assert.Empty(t, cred.SecretKey)
	assert.Equal(t, []int64{1}, quota.calls)
}

func TestCredentialService_Issue_ExposeSecretKey(t *testing.T) {
	cfg := testCredentialConfig()
	cfg.ExposeSecretKey = true
	cfg.TTL = time.Minute
	svc := NewCredentialService(cfg, &stubHeadroom{ok: true}, zap.NewNop())

	cred, err := svc.Issue(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "secret", cred.SecretKey)
	assert.Equal(t, time.Minute, cred.ExpiresAt.Sub(cred.IssuedAt))
}

func TestCredentialService_Issue_QuotaFull(t *testing.T) {
	svc := NewCredentialService(testCredentialConfig(), &stubHeadroom{ok: false}, zap.NewNop())

	_, err := svc.Issue(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, domain.QuotaExceededError.Has(err))
}

func TestCredentialService_Issue_AtLimitBoundary(t *testing.T) {
	quota, _ := newQuotaService(t, 1000, 1000)
	svc := NewCredentialService(testCredentialConfig(), quota, zap.NewNop())

	_, err := svc.Issue(context.Background(), "u1")
	assert.True(t, domain.QuotaExceededError.Has(err), "an owner exactly at the limit has no room left")

	require.NoError(t, quota.Commit(context.Background(), "u1", -1))
	_, err = svc.Issue(context.Background(), "u1")
	assert.NoError(t, err)
}

func TestCredentialService_Issue_ConfigMissing(t *testing.T) {
	for name, mutate := range map[string]func(*CredentialConfig){
		"secret id":  func(c *CredentialConfig) { c.SecretID = "" },
		"secret key": func(c *CredentialConfig) { c.SecretKey = "" },
		"bucket":     func(c *CredentialConfig) { c.Bucket = "" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testCredentialConfig()
			mutate(&cfg)
			svc := NewCredentialService(cfg, &stubHeadroom{ok: true}, zap.NewNop())

			_, err := svc.Issue(context.Background(), "u1")
			require.Error(t, err)
			assert.True(t, domain.ConfigError.Has(err))
		})
	}
}

func TestCredentialService_Issue_QuotaUnavailable(t *testing.T) {
	storeErr := domain.TransportError.New("db down")
	svc := NewCredentialService(testCredentialConfig(), &stubHeadroom{err: storeErr}, zap.NewNop())

	_, err := svc.Issue(context.Background(), "u1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storeErr))
}

func TestCredentialService_Issue_EmptyOwner(t *testing.T) {
	svc := NewCredentialService(testCredentialConfig(), &stubHeadroom{ok: true}, zap.NewNop())

	_, err := svc.Issue(context.Background(), "")
	assert.True(t, domain.ValidationError.Has(err))

	_, err = svc.Issue(context.Background(), "u1/nested")
	assert.True(t, domain.ValidationError.Has(err))
}
