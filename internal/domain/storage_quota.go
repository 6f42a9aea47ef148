package domain

import "time"

// DefaultQuotaLimit is applied to owners seen for the first time.
const DefaultQuotaLimit int64 = 100 * 1024 * 1024

// StorageQuota is the per-owner ledger row. UsedBytes may exceed LimitBytes
// while concurrent uploads settle but is never negative.
type StorageQuota struct {
	OwnerID    string    `json:"owner_id" db:"owner_id"`
	UsedBytes  int64     `json:"used_bytes" db:"used_bytes"`
	LimitBytes int64     `json:"limit_bytes" db:"limit_bytes"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// HasHeadroom reports whether additional bytes fit under the limit.
func (q *StorageQuota) HasHeadroom(additional int64) bool {
	return q.UsedBytes+additional <= q.LimitBytes
}

type QuotaInfo struct {
	TotalSpace     int64   `json:"total_space"`
	UsedSpace      int64   `json:"used_space"`
	AvailableSpace int64   `json:"available_space"`
	UsagePercent   float64 `json:"usage_percent"`
}

// Drift is the result of comparing the ledger with the live asset records.
// A non-zero Delta means UsedBytes has to be reconciled.
type Drift struct {
	OwnerID       string `json:"owner_id"`
	UsedBytes     int64  `json:"used_bytes"`
	RecordedBytes int64  `json:"recorded_bytes"`
	RecordCount   int    `json:"record_count"`
	Delta         int64  `json:"delta"`
}

func (d *Drift) InSync() bool {
	return d.Delta == 0
}
