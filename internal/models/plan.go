package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Provider is the closed set of payment rails. Provider strings from the
// outside world are resolved once at the boundary via ParseProvider.
type Provider string

const (
	ProviderRazorpay Provider = "razorpay"
	ProviderPaddle   Provider = "paddle"
)

// ParseProvider maps a raw provider name to the closed enum.
func ParseProvider(s string) (Provider, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "razorpay":
		return ProviderRazorpay, true
	case "paddle":
		return ProviderPaddle, true
	}
	return "", false
}

const (
	PlanTypeCreditPack = "credit_pack"
	PlanTypeUnlimited  = "unlimited"
	PlanTypeCustom     = "custom"

	BillingOneTime      = "one_time"
	BillingSubscription = "subscription"
)

// Plan is immutable reference data seeded at startup and read-only at
// request time. Price is in whole currency units (INR or USD).
//
// Credit-pack plans carry a fixed Credits quantity. Unlimited plans carry
// DurationHours instead. Custom plans have IsCustom set: the buyer declares
// the credit quantity and price is quantity times the configured unit price.
type Plan struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Price         int64     `json:"price"`
	Currency      string    `json:"currency"`
	Credits       int       `json:"credits"`
	BillingType   string    `json:"billing_type"`
	Provider      Provider  `json:"provider"`
	PlanType      string    `json:"plan_type"`
	DurationHours *int      `json:"duration_hours,omitempty"`
	IsCustom      bool      `json:"is_custom"`
	PaddlePriceID *string   `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}
