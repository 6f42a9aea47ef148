package domain

import (
	"time"

	"github.com/google/uuid"
)

// Asset is the durable record of an uploaded object. It is never updated
// after insertion; deleting it gives the bytes back to the owner's quota.
type Asset struct {
	ID           uuid.UUID `json:"id" db:"id"`
	OwnerID      string    `json:"user_id" db:"owner_id"`
	PostID       *string   `json:"post_id" db:"post_id"`
	Filename     string    `json:"filename" db:"filename"`
	OriginalName string    `json:"original_name" db:"original_name"`
	StorageKey   string    `json:"cos_key" db:"storage_key"`
	SizeBytes    int64     `json:"file_size" db:"size_bytes"`
	MIMEType     string    `json:"mime_type" db:"mime_type"`
	Width        *int      `json:"width" db:"width"`
	Height       *int      `json:"height" db:"height"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// DerivedURLs are transform views over a single storage key.
type DerivedURLs struct {
	Compressed string `json:"compressed"`
	Original   string `json:"original"`
	Thumbnail  string `json:"thumbnail"`
}

// RecordRequest is the body of the metadata recording call made after the
// bytes were stored remotely.
type RecordRequest struct {
	Filename     string  `json:"filename"`
	OriginalName string  `json:"originalName"`
	StorageKey   string  `json:"cosKey"`
	SizeBytes    int64   `json:"fileSize"`
	MIMEType     string  `json:"mimeType"`
	Width        *int    `json:"width,omitempty"`
	Height       *int    `json:"height,omitempty"`
	PostID       *string `json:"postId,omitempty"`
}

type RecordResult struct {
	File *Asset      `json:"file"`
	URLs DerivedURLs `json:"urls"`
}
