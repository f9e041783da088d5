package models

import (
	"time"

	"github.com/google/uuid"
)

// Feedback types accepted from the submission form.
const (
	FeedbackTypeFeedback = "feedback"
	FeedbackTypeBug      = "bug"
	FeedbackTypeFeature  = "feature"
)

// ValidFeedbackType reports whether t is one of the accepted types.
func ValidFeedbackType(t string) bool {
	switch t {
	case FeedbackTypeFeedback, FeedbackTypeBug, FeedbackTypeFeature:
		return true
	}
	return false
}

// Feedback is a user-submitted note. Submissions are anonymous by default;
// AccountID is attached only when the request carried a valid token.
type Feedback struct {
	ID        uuid.UUID  `json:"id"`
	AccountID *uuid.UUID `json:"account_id,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	CreatedAt time.Time  `json:"created_at"`
}
