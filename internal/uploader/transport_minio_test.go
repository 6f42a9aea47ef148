package uploader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdshare/internal/domain"
)

func minioCredential() *domain.UploadCredential {
	return &domain.UploadCredential{
		Bucket:     "assets",
		Region:     "us-east-1",
		PathPrefix: "/mdshare/u1/2024/05/",
		SecretID:   "AKIDtest",
		SecretKey:  "secret",
	}
}

func TestMinioTransport_Put(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	transport := NewMinioTransport(strings.TrimPrefix(srv.URL, "http://"), false)
	err := transport.Put(context.Background(), minioCredential(), "/mdshare/u1/2024/05/abc.png", Object{
		ContentType: "image/png",
		Data:        []byte("png-bytes"),
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "PUT /assets/mdshare/u1/2024/05/abc.png")
	assert.True(t, strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKIDtest/"))
}

func TestMinioTransport_RejectedCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied.</Message></Error>`))
	}))
	defer srv.Close()

	transport := NewMinioTransport(strings.TrimPrefix(srv.URL, "http://"), false)
	err := transport.Put(context.Background(), minioCredential(), "/mdshare/u1/2024/05/abc.png", Object{
		ContentType: "image/png",
		Data:        []byte("png-bytes"),
	})
	assert.True(t, errors.Is(err, ErrCredentialRejected))
}

func TestMinioTransport_NeedsSecretKey(t *testing.T) {
	cred := minioCredential()
	cred.SecretKey = ""

	err := NewMinioTransport("127.0.0.1:1", false).Put(context.Background(), cred, "/k", Object{})
	assert.True(t, domain.ConfigError.Has(err))
}
