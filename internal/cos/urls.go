package cos

import (
	"fmt"
	"strings"
	"time"

	"mdshare/internal/domain"
)

// Transform queries understood by the image processing front of the store.
// Links carrying them are already stored in published posts, so they must
// not change without a migration.
const (
	CompressedTransform = "imageMogr2/format/webp/quality/80"
	ThumbnailTransform  = "imageMogr2/thumbnail/300x300"
)

// DefaultPathRoot is the first segment of every storage key.
const DefaultPathRoot = "mdshare"

// Domain returns the default object store domain for a region.
func Domain(region string) string {
	return fmt.Sprintf("cos.%s.myqcloud.com", region)
}

// PathPrefix is the per-owner, per-month key prefix: /{root}/{owner}/{YYYY}/{MM}/
func PathPrefix(root, ownerID string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("/%s/%s/%04d/%02d/", root, ownerID, t.Year(), int(t.Month()))
}

// CheckOwnerID rejects owner ids that cannot be a single key segment.
func CheckOwnerID(ownerID string) error {
	if ownerID == "" {
		return domain.ValidationError.New("owner id is required")
	}
	if strings.Contains(ownerID, "/") {
		return domain.ValidationError.New("owner id %q must not contain '/'", ownerID)
	}
	return nil
}

// OwnerPrefix is the prefix covering every key of one owner.
func OwnerPrefix(root, ownerID string) string {
	return fmt.Sprintf("/%s/%s/", root, ownerID)
}

// ObjectName strips the leading slash storage keys carry, giving the name
// S3-style APIs expect.
func ObjectName(storageKey string) string {
	return strings.TrimPrefix(storageKey, "/")
}

// URLBuilder composes public URLs for keys in one bucket.
type URLBuilder struct {
	Bucket string
	Domain string
}

func NewURLBuilder(bucket, region, domain string) URLBuilder {
	if domain == "" {
		domain = Domain(region)
	}
	return URLBuilder{Bucket: bucket, Domain: domain}
}

// BaseURL is https://{bucket}.{domain}
func (b URLBuilder) BaseURL() string {
	return fmt.Sprintf("https://%s.%s", b.Bucket, b.Domain)
}

// Derive is a pure string composition; it performs no network calls.
func (b URLBuilder) Derive(storageKey string) domain.DerivedURLs {
	original := b.BaseURL() + "/" + ObjectName(storageKey)
	return domain.DerivedURLs{
		Compressed: original + "?" + CompressedTransform,
		Original:   original,
		Thumbnail:  original + "?" + ThumbnailTransform,
	}
}
