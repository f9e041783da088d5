package models

import (
	"time"

	"github.com/google/uuid"
)

// Account country determines the payment rail: IN accounts buy INR plans
// through Razorpay, everyone else buys USD plans through Paddle.
type Account struct {
	ID                  uuid.UUID  `json:"id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Country             string     `json:"country"`
	CreditBalance       int        `json:"credit_balance"`
	UnlimitedTill       *time.Time `json:"unlimited_till,omitempty"`
	PasswordResetToken  *string    `json:"-"`
	PasswordResetExpiry *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// HasUnlimitedAccess reports whether the account holds an unexpired
// unlimited-access grant at the given instant.
func (a *Account) HasUnlimitedAccess(now time.Time) bool {
	return a.UnlimitedTill != nil && a.UnlimitedTill.After(now)
}
