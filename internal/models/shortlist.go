package models

import (
	"time"

	"github.com/google/uuid"
)

// ShortlistedCandidate is unique per (account, job, profile); duplicate
// shortlist attempts are no-ops returning the existing row.
type ShortlistedCandidate struct {
	ID              uuid.UUID `json:"id"`
	AccountID       uuid.UUID `json:"account_id"`
	JobID           uuid.UUID `json:"job_id"`
	ProfileURL      string    `json:"profile_url"`
	CandidateName   string    `json:"candidate_name"`
	MatchScore      int       `json:"match_score"`
	Summary         string    `json:"summary"`
	OutreachMessage string    `json:"outreach_message"`
	CreatedAt       time.Time `json:"created_at"`
}
