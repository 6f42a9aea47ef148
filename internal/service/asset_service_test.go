package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mdshare/internal/cos"
	"mdshare/internal/domain"
	"mdshare/internal/repository"
)

type assetFixture struct {
	svc    *AssetService
	quota  *StorageQuotaService
	assets *repository.MemoryAssetRepository
	quotas *repository.MemoryQuotaRepository
}

func newAssetFixture(t *testing.T, limit, used int64) *assetFixture {
	t.Helper()
	quota, quotas := newQuotaService(t, limit, used)
	assets := repository.NewMemoryAssetRepository()
	urls := cos.NewURLBuilder("assets-1250000000", "ap-guangzhou", "")
	return &assetFixture{
		svc:    NewAssetService(assets, quota, urls, "", zap.NewNop()),
		quota:  quota,
		assets: assets,
		quotas: quotas,
	}
}

func (f *assetFixture) used(t *testing.T) int64 {
	t.Helper()
	q, err := f.quotas.GetQuota(context.Background(), "u1")
	require.NoError(t, err)
	return q.UsedBytes
}

func recordRequest(name string, size int64) domain.RecordRequest {
	return domain.RecordRequest{
		Filename:     name,
		OriginalName: "original-" + name,
		StorageKey:   "/mdshare/u1/2024/05/" + name,
		SizeBytes:    size,
		MIMEType:     "image/png",
	}
}

func TestAssetService_Record(t *testing.T) {
	f := newAssetFixture(t, 1000, 900)

	res, err := f.svc.Record(context.Background(), "u1", recordRequest("abc123.png", 50))
	require.NoError(t, err)

	assert.Equal(t, int64(950), f.used(t))
	assert.Equal(t, "u1", res.File.OwnerID)
	assert.Equal(t, int64(50), res.File.SizeBytes)
	assert.Equal(t, "https://assets-1250000000.cos.ap-guangzhou.myqcloud.com/mdshare/u1/2024/05/abc123.png", res.URLs.Original)
	assert.Equal(t, res.URLs.Original+"?"+cos.CompressedTransform, res.URLs.Compressed)

	assets, err := f.assets.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, res.File.ID, assets[0].ID)
}

func TestAssetService_Record_QuotaExceeded(t *testing.T) {
	f := newAssetFixture(t, 1000, 900)
	ctx := context.Background()

	_, err := f.svc.Record(ctx, "u1", recordRequest("small.png", 50))
	require.NoError(t, err)

	_, err = f.svc.Record(ctx, "u1", recordRequest("big.png", 100))
	require.Error(t, err)
	assert.True(t, domain.QuotaExceededError.Has(err))
	assert.Equal(t, int64(950), f.used(t))

	_, count, err := f.assets.SumSizeByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAssetService_Record_ConcurrentSoftQuota(t *testing.T) {
	f := newAssetFixture(t, 1000, 0)

	// Both checks must observe used=0 before either commits.
	gate := &gatedLedger{QuotaLedger: f.quota, checked: make(chan struct{}, 2), release: make(chan struct{})}
	f.svc.quota = gate

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Record(context.Background(), "u1", recordRequest(uuid.NewString()+".png", 600))
		}(i)
	}
	<-gate.checked
	<-gate.checked
	close(gate.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int64(1200), f.used(t), "soft quota: both uploads commit and used exceeds the limit")
}

type gatedLedger struct {
	QuotaLedger
	checked chan struct{}
	release chan struct{}
}

func (g *gatedLedger) CheckHeadroom(ctx context.Context, ownerID string, n int64) (bool, error) {
	ok, err := g.QuotaLedger.CheckHeadroom(ctx, ownerID, n)
	g.checked <- struct{}{}
	<-g.release
	return ok, err
}

type brokenCommitLedger struct {
	QuotaLedger
}

func (brokenCommitLedger) Commit(context.Context, string, int64) error {
	return domain.TransportError.New("connection reset")
}

func TestAssetService_Record_CommitFailureIsNotRetryable(t *testing.T) {
	f := newAssetFixture(t, 1000, 0)
	f.svc.quota = brokenCommitLedger{QuotaLedger: f.quota}

	_, err := f.svc.Record(context.Background(), "u1", recordRequest("abc.png", 10))
	require.Error(t, err)
	assert.False(t, domain.TransportError.Has(err))

	// The record stays; reconciliation repairs the ledger.
	assets, err := f.assets.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, assets, 1)
	assert.Zero(t, f.used(t))
}

func TestAssetService_Record_DuplicateKey(t *testing.T) {
	f := newAssetFixture(t, 1000, 0)
	ctx := context.Background()

	_, err := f.svc.Record(ctx, "u1", recordRequest("a.png", 100))
	require.NoError(t, err)

	_, err = f.svc.Record(ctx, "u1", recordRequest("a.png", 100))
	assert.True(t, domain.ValidationError.Has(err))
	assert.Equal(t, int64(100), f.used(t))
}

func TestAssetService_Record_Validation(t *testing.T) {
	f := newAssetFixture(t, 1000, 0)

	tests := map[string]domain.RecordRequest{
		"empty key":     {StorageKey: "", SizeBytes: 1},
		"negative size": {StorageKey: "/mdshare/u1/2024/05/a.png", SizeBytes: -1},
		"foreign key":   {StorageKey: "/mdshare/u2/2024/05/a.png", SizeBytes: 1},
		"traversal":     {StorageKey: "/mdshare/u1/../u2/a.png", SizeBytes: 1},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Record(context.Background(), "u1", req)
			require.Error(t, err)
			assert.True(t, domain.ValidationError.Has(err))
		})
	}
	assert.Equal(t, int64(0), f.used(t))

	// An owner "u1" must not claim keys of an owner "u1/x".
	_, err := f.svc.Record(context.Background(), "u1/x", domain.RecordRequest{StorageKey: "/mdshare/u1/x/2024/05/a.png", SizeBytes: 1})
	assert.True(t, domain.ValidationError.Has(err))
}

func TestAssetService_Delete(t *testing.T) {
	f := newAssetFixture(t, 1000, 900)
	ctx := context.Background()

	res, err := f.svc.Record(ctx, "u1", recordRequest("a.png", 50))
	require.NoError(t, err)
	require.Equal(t, int64(950), f.used(t))

	require.NoError(t, f.svc.Delete(ctx, res.File.ID, "u1"))
	assert.Equal(t, int64(900), f.used(t))

	_, err = f.assets.GetByOwner(ctx, res.File.ID, "u1")
	assert.True(t, domain.NotFoundError.Has(err))
}

func TestAssetService_Delete_FloorsAtZero(t *testing.T) {
	f := newAssetFixture(t, 1000, 0)
	ctx := context.Background()

	res, err := f.svc.Record(ctx, "u1", recordRequest("a.png", 50))
	require.NoError(t, err)

	// Drift: the counter lost bytes the records still account for.
	require.NoError(t, f.quotas.SetUsedSpace(ctx, "u1", 10))

	require.NoError(t, f.svc.Delete(ctx, res.File.ID, "u1"))
	assert.Equal(t, int64(0), f.used(t))
}

func TestAssetService_Delete_CommitFailureIsNotRetryable(t *testing.T) {
	f := newAssetFixture(t, 1000, 0)
	ctx := context.Background()

	res, err := f.svc.Record(ctx, "u1", recordRequest("a.png", 100))
	require.NoError(t, err)

	f.svc.quota = brokenCommitLedger{QuotaLedger: f.quota}
	err = f.svc.Delete(ctx, res.File.ID, "u1")
	require.Error(t, err)
	assert.False(t, domain.TransportError.Has(err))
	assert.False(t, domain.NotFoundError.Has(err))

	// The record is gone, so a second attempt cannot reclaim the bytes.
	f.svc.quota = f.quota
	err = f.svc.Delete(ctx, res.File.ID, "u1")
	assert.True(t, domain.NotFoundError.Has(err))
	assert.Equal(t, int64(100), f.used(t))
}

func TestAssetService_Delete_NotFound(t *testing.T) {
	f := newAssetFixture(t, 1000, 0)
	ctx := context.Background()

	res, err := f.svc.Record(ctx, "u1", recordRequest("a.png", 50))
	require.NoError(t, err)

	err = f.svc.Delete(ctx, uuid.New(), "u1")
	assert.True(t, domain.NotFoundError.Has(err))
	assert.Equal(t, int64(50), f.used(t))

	// Another owner's asset looks exactly like a missing one.
	err = f.svc.Delete(ctx, res.File.ID, "u2")
	assert.True(t, domain.NotFoundError.Has(err))
	assert.Equal(t, int64(50), f.used(t))
}

func TestAssetService_List(t *testing.T) {
	f := newAssetFixture(t, 1000, 0)
	ctx := context.Background()

	_, err := f.svc.Record(ctx, "u1", recordRequest("a.png", 1))
	require.NoError(t, err)
	_, err = f.svc.Record(ctx, "u1", recordRequest("b.png", 2))
	require.NoError(t, err)

	assets, err := f.svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, assets, 2)

	assets, err = f.svc.List(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, assets)
}
