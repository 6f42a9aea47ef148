package uploader

import (
	"context"
	"errors"
	"io"

	"mdshare/internal/domain"
)

// ErrCredentialRejected is wrapped by transports when the object store
// refuses the signature. The cached credential is dropped on it.
var ErrCredentialRejected = errors.New("object store rejected the credential")

// Object is the payload of a single PUT.
type Object struct {
	ContentType string
	Data        []byte
	// Progress, when set, receives cumulative bytes sent.
	Progress func(sent, total int64)
}

// Transport writes bytes to the object store under a credential.
type Transport interface {
	Put(ctx context.Context, cred *domain.UploadCredential, key string, obj Object) error
}

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    func(sent, total int64)
}

func newProgressReader(r io.Reader, total int64, fn func(sent, total int64)) io.Reader {
	if fn == nil {
		return r
	}
	return &progressReader{r: r, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}
	return n, err
}

// progressHook counts the bytes minio reports through its Progress reader,
// which it feeds by reading len(chunk) bytes per chunk sent.
type progressHook struct {
	sent  int64
	total int64
	fn    func(sent, total int64)
}

func (p *progressHook) Read(b []byte) (int, error) {
	p.sent += int64(len(b))
	p.fn(p.sent, p.total)
	return len(b), nil
}
