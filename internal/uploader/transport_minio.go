package uploader

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mdshare/internal/cos"
	"mdshare/internal/domain"
)

// MinioTransport writes through an S3-compatible endpoint. S3 signing needs
// the account secret, so it only works against servers that expose it in
// the credential.
type MinioTransport struct {
	endpoint string
	secure   bool
}

func NewMinioTransport(endpoint string, secure bool) *MinioTransport {
	return &MinioTransport{endpoint: endpoint, secure: secure}
}

func (t *MinioTransport) Put(ctx context.Context, cred *domain.UploadCredential, key string, obj Object) error {
	if cred.SecretKey == "" {
		return domain.ConfigError.New("credential carries no secret key; the server must run with an s3 object store")
	}

	client, err := minio.New(t.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cred.SecretID, cred.SecretKey, ""),
		Secure: t.secure,
		Region: cred.Region,
	})
	if err != nil {
		return domain.ConfigError.Wrap(err)
	}

	size := int64(len(obj.Data))
	opts := minio.PutObjectOptions{ContentType: obj.ContentType}
	if obj.Progress != nil {
		opts.Progress = &progressHook{total: size, fn: obj.Progress}
	}

	_, err = client.PutObject(ctx, cred.Bucket, cos.ObjectName(key), bytes.NewReader(obj.Data), size, opts)
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden,
		resp.Code == "AccessDenied", resp.Code == "InvalidAccessKeyId", resp.Code == "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %s", ErrCredentialRejected, resp.Message)
	}
	return err
}
