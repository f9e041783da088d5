package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScanCacheEntry memoizes one scorer result per (profile_url, job_id) pair.
// Result holds the serialized scan result exactly as first produced, so
// repeat scans return byte-identical responses without charging a credit.
// Entries never expire.
type ScanCacheEntry struct {
	ID         uuid.UUID       `json:"id"`
	ProfileURL string          `json:"profile_url"`
	JobID      uuid.UUID       `json:"job_id"`
	Result     json.RawMessage `json:"result"`
	MatchScore int             `json:"match_score"`
	CreatedAt  time.Time       `json:"created_at"`
}
