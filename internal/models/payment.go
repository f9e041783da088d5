package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

// PaymentRecord is one row per reconciled payment. ExternalRef is the
// provider's order/transaction id and serves as the idempotency key: at most
// one record per external ref may ever reach the completed status (enforced
// by a partial unique index as the safety net).
type PaymentRecord struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	PlanID       uuid.UUID `json:"plan_id"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	Provider     Provider  `json:"provider"`
	ExternalRef  string    `json:"external_ref"`
	Status       string    `json:"status"`
	CreditsAdded int       `json:"credits_added"`
	CreatedAt    time.Time `json:"created_at"`
}
