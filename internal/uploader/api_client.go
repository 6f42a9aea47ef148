package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zeebo/errs"

	"mdshare/internal/domain"
)

// APIClient talks to the ingestion server on behalf of one identity.
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPIClient(baseURL, token string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// Issue fetches a fresh upload credential.
func (c *APIClient) Issue(ctx context.Context) (*domain.UploadCredential, error) {
	var resp domain.CredentialResponse
	if err := c.do(ctx, http.MethodGet, "/api/cos-token", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Credential()
}

// Record stores metadata for bytes already written to the object store.
func (c *APIClient) Record(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error) {
	var res domain.RecordResult
	if err := c.do(ctx, http.MethodPost, "/api/upload", req, &res, false); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *APIClient) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/upload?id="+url.QueryEscape(id), nil, nil, false)
}

type ListedAsset struct {
	domain.Asset
	URLs domain.DerivedURLs `json:"urls"`
}

func (c *APIClient) List(ctx context.Context) ([]ListedAsset, error) {
	var res struct {
		Files []ListedAsset `json:"files"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/upload", nil, &res, false); err != nil {
		return nil, err
	}
	return res.Files, nil
}

func (c *APIClient) Quota(ctx context.Context) (*domain.QuotaInfo, error) {
	var info domain.QuotaInfo
	if err := c.do(ctx, http.MethodGet, "/api/quota", nil, &info, false); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out interface{}, issuance bool) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return domain.ValidationError.Wrap(err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return domain.ConfigError.Wrap(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.TransportError.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp, issuance)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.TransportError.New("decoding %s %s response: %v", method, path, err)
	}
	return nil
}

// statusError maps a server status onto the shared error classes.
func statusError(resp *http.Response, issuance bool) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	msg := fmt.Sprintf("%d: %s", resp.StatusCode, body.Error)

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return domain.ValidationError.New("%s", msg)
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ConfigError.New("not authenticated: %s", msg)
	case resp.StatusCode == http.StatusForbidden:
		return domain.QuotaExceededError.New("%s", msg)
	case resp.StatusCode == http.StatusNotFound:
		return domain.NotFoundError.New("%s", msg)
	case resp.StatusCode == http.StatusInternalServerError && issuance:
		return domain.ConfigError.New("%s", msg)
	case resp.StatusCode == http.StatusInternalServerError:
		// The server may have written state; retrying could duplicate it.
		return errs.New("server error %s", msg)
	default:
		return domain.TransportError.New("%s", msg)
	}
}
