package uploader

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mdshare/internal/domain"
)

const DefaultRefreshMargin = 5 * time.Minute

type Issuer interface {
	Issue(ctx context.Context) (*domain.UploadCredential, error)
}

// CredentialCache holds the last issued credential for one identity and
// refreshes it lazily. Concurrent refreshes share a single Issue call.
type CredentialCache struct {
	issuer Issuer
	margin time.Duration
	now    func() time.Time

	mu     sync.Mutex
	cred   *domain.UploadCredential
	flight singleflight.Group
}

func NewCredentialCache(issuer Issuer, margin time.Duration) *CredentialCache {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	return &CredentialCache{issuer: issuer, margin: margin, now: time.Now}
}

func (c *CredentialCache) current() *domain.UploadCredential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred
}

// GetOrRefresh returns the held credential while it is fresh, otherwise
// fetches a new one. A caller whose ctx ends stops waiting; the refresh
// itself runs to completion for the others.
func (c *CredentialCache) GetOrRefresh(ctx context.Context) (*domain.UploadCredential, error) {
	if cred := c.current(); cred.FreshAt(c.now(), c.margin) {
		return cred, nil
	}

	ch := c.flight.DoChan("refresh", func() (interface{}, error) {
		// A flight that finished just before this one started may already
		// have stored a fresh credential.
		if cred := c.current(); cred.FreshAt(c.now(), c.margin) {
			return cred, nil
		}

		cred, err := c.issuer.Issue(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cred = cred
		c.mu.Unlock()
		return cred, nil
	})

	select {
	case <-ctx.Done():
		return nil, domain.TransportError.Wrap(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.UploadCredential), nil
	}
}

// Invalidate drops the held credential so the next call refreshes.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.cred = nil
	c.mu.Unlock()
}
