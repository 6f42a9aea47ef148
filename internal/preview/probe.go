// Package preview reads image metadata through libvips.
package preview

import (
	"fmt"
	"strings"

	"github.com/h2non/bimg"
)

// Probe returns the pixel dimensions of an encoded image.
func Probe(data []byte) (width, height int, err error) {
	size, err := bimg.NewImage(data).Size()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get image size: %w", err)
	}
	return size.Width, size.Height, nil
}

// ProbeFile matches the uploader's prober signature: non-images and
// unreadable images yield no dimensions.
func ProbeFile(mimeType string, data []byte) (*int, *int) {
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, nil
	}
	w, h, err := Probe(data)
	if err != nil || w <= 0 || h <= 0 {
		return nil, nil
	}
	return &w, &h
}
