package uploader

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mdshare/internal/domain"
)

const DefaultMaxSize int64 = 10 << 20

var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/svg+xml",
}

// File is one item handed over by the ingestion surface.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

func (f File) Size() int64 {
	return int64(len(f.Data))
}

func validate(f File, maxSize int64, allowed []string) error {
	if f.Size() > maxSize {
		return domain.ValidationError.New("%s is %d bytes, the limit is %d", f.Name, f.Size(), maxSize)
	}
	mimeType := strings.ToLower(strings.TrimSpace(f.MIMEType))
	for _, t := range allowed {
		if mimeType == t {
			return nil
		}
	}
	return domain.ValidationError.New("%s has unsupported type %q", f.Name, f.MIMEType)
}

// RandomFilename keeps the original extension and replaces the rest with a
// random id. Names without a usable extension get "bin".
func RandomFilename(original string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + "." + extension(original)
}

func extension(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" || len(ext) > 10 {
		return "bin"
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "bin"
		}
	}
	return ext
}
