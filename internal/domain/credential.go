package domain

import (
	"strconv"
	"strings"
	"time"
)

// UploadCredential authorizes writes under PathPrefix until ExpiresAt.
// SignKey is derived from the server secret over KeyTime, so the object
// store can verify requests signed with it on its own.
type UploadCredential struct {
	Bucket     string
	Region     string
	PathPrefix string
	SecretID   string
	SecretKey  string
	KeyTime    string
	SignKey    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// FreshAt reports whether the credential can still be handed out at now,
// keeping margin in reserve before expiry.
func (c *UploadCredential) FreshAt(now time.Time, margin time.Duration) bool {
	if c == nil {
		return false
	}
	return now.Before(c.ExpiresAt.Add(-margin))
}

// CredentialResponse is the wire form of an UploadCredential.
type CredentialResponse struct {
	Bucket      string            `json:"bucket"`
	Region      string            `json:"region"`
	UploadPath  string            `json:"uploadPath"`
	Credentials CredentialSecrets `json:"credentials"`
}

type CredentialSecrets struct {
	SecretID   string `json:"secretId"`
	SecretKey  string `json:"secretKey,omitempty"`
	ExpireTime int64  `json:"expireTime"`
	KeyTime    string `json:"keyTime"`
	SignKey    string `json:"signKey"`
}

func NewCredentialResponse(c *UploadCredential) CredentialResponse {
	return CredentialResponse{
		Bucket:     c.Bucket,
		Region:     c.Region,
		UploadPath: c.PathPrefix,
		Credentials: CredentialSecrets{
			SecretID:   c.SecretID,
			SecretKey:  c.SecretKey,
			ExpireTime: c.ExpiresAt.Unix(),
			KeyTime:    c.KeyTime,
			SignKey:    c.SignKey,
		},
	}
}

// Credential converts the wire form back, taking IssuedAt from the start
// of the key time window.
func (r CredentialResponse) Credential() (*UploadCredential, error) {
	start, _, ok := strings.Cut(r.Credentials.KeyTime, ";")
	if !ok {
		return nil, ValidationError.New("malformed keyTime %q", r.Credentials.KeyTime)
	}
	issued, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return nil, ValidationError.New("malformed keyTime %q", r.Credentials.KeyTime)
	}
	if r.Bucket == "" || r.UploadPath == "" {
		return nil, ValidationError.New("credential without bucket or upload path")
	}

	return &UploadCredential{
		Bucket:     r.Bucket,
		Region:     r.Region,
		PathPrefix: r.UploadPath,
		SecretID:   r.Credentials.SecretID,
		SecretKey:  r.Credentials.SecretKey,
		KeyTime:    r.Credentials.KeyTime,
		SignKey:    r.Credentials.SignKey,
		IssuedAt:   time.Unix(issued, 0).UTC(),
		ExpiresAt:  time.Unix(r.Credentials.ExpireTime, 0).UTC(),
	}, nil
}
