package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry kinds. The ledger is append-only: the sum of all deltas for
// an account must always equal the account's credit_balance.
type LedgerEntryKind string

const (
	LedgerEntrySignupBonus  LedgerEntryKind = "signup_bonus"
	LedgerEntryPurchase     LedgerEntryKind = "purchase"
	LedgerEntrySubscription LedgerEntryKind = "subscription"
	LedgerEntryDeduction    LedgerEntryKind = "deduction"
	LedgerEntryRefund       LedgerEntryKind = "refund"
)

type LedgerEntry struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	PaymentID    *uuid.UUID      `json:"payment_id,omitempty"`
	Kind         LedgerEntryKind `json:"kind"`
	Delta        int             `json:"delta"`
	BalanceAfter *int            `json:"balance_after,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
