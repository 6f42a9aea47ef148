package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mdshare/internal/cos"
	"mdshare/internal/domain"
)

// COSTransport PUTs objects signed with the credential's window-scoped
// key. The account secret is never needed.
type COSTransport struct {
	client *http.Client
	// endpoint overrides https://{bucket}.{domain} when set.
	endpoint string
	domain   string
}

func NewCOSTransport(httpClient *http.Client, endpoint, domain string) *COSTransport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &COSTransport{
		client:   httpClient,
		endpoint: strings.TrimRight(endpoint, "/"),
		domain:   domain,
	}
}

func (t *COSTransport) baseURL(cred *domain.UploadCredential) string {
	if t.endpoint != "" {
		return t.endpoint
	}
	return cos.NewURLBuilder(cred.Bucket, cred.Region, t.domain).BaseURL()
}

func (t *COSTransport) Put(ctx context.Context, cred *domain.UploadCredential, key string, obj Object) error {
	target, err := url.Parse(t.baseURL(cred))
	if err != nil {
		return domain.ConfigError.Wrap(err)
	}
	target.Path = key

	size := int64(len(obj.Data))
	body := newProgressReader(bytes.NewReader(obj.Data), size, obj.Progress)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), body)
	if err != nil {
		return domain.ConfigError.Wrap(err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", obj.ContentType)

	signed := cos.Request{
		Method: http.MethodPut,
		Path:   key,
		Headers: map[string]string{
			"content-type": obj.ContentType,
			"host":         target.Host,
		},
	}
	req.Header.Set("Authorization", cos.Authorization(cred.SecretID, cred.SignKey, cred.KeyTime, signed))

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: status %d: %s", ErrCredentialRejected, resp.StatusCode, bytes.TrimSpace(detail))
	}
	return fmt.Errorf("object store returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
}
