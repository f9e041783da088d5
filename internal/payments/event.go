package payments

import (
	"errors"

	"github.com/google/uuid"

	"github.com/sourceflow/backend/internal/models"
)

// ErrSkipEvent marks webhook deliveries that carry no actionable payment
// (unhandled event types, missing references). Handlers acknowledge them
// with 200 so the provider stops retrying.
var ErrSkipEvent = errors.New("webhook event not handled")

// PaymentEvent is a provider-verified "money arrived" fact, normalized from
// either gateway's webhook or verify flow. ExternalRef is the provider-side
// identifier used as the idempotency key.
type PaymentEvent struct {
	Provider    models.Provider
	ExternalRef string
	AccountID   uuid.UUID
	PlanID      uuid.UUID

	// DeclaredCredits is the buyer-chosen quantity for custom plans,
	// carried through the provider's metadata side channel. Zero for
	// fixed plans.
	DeclaredCredits int
}
