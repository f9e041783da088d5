package ai

import (
	"context"
	"errors"
)

// ErrUnavailable wraps every scorer failure (transport errors, malformed
// model output, missing configuration). Callers that charged a credit before
// scoring use it to decide whether to refund.
var ErrUnavailable = errors.New("ai scorer unavailable")

// ScanResult is the structured verdict for one profile against one job.
type ScanResult struct {
	MatchScore           int      `json:"match_score"`
	TotalExperienceYears float64  `json:"total_experience_years"`
	SeniorityLevel       string   `json:"seniority_level"`
	Strengths            []string `json:"strengths"`
	MissingSkills        []string `json:"missing_skills"`
	Summary              string   `json:"summary"`
	OutreachMessage      string   `json:"outreach_message"`
}

// Scorer compares a job description against a candidate profile.
type Scorer interface {
	Score(ctx context.Context, jobDescription, profileText string) (*ScanResult, error)
}

// Disabled is a Scorer for deployments without an API key. Every call fails
// with ErrUnavailable so the scan path degrades to 503 instead of panicking.
type Disabled struct{}

func (Disabled) Score(context.Context, string, string) (*ScanResult, error) {
	return nil, ErrUnavailable
}
