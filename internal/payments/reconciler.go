package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sourceflow/backend/internal/models"
	"github.com/sourceflow/backend/internal/repository"
)

var (
	// ErrUnknownPlan is returned when the event references a plan that does
	// not exist or belongs to the other provider.
	ErrUnknownPlan = errors.New("unknown plan")

	// ErrCreditsOutOfRange is returned when a custom plan's declared credit
	// quantity is outside the allowed range.
	ErrCreditsOutOfRange = errors.New("credits out of range")
)

// PaymentStore is the minimal payment repository interface for reconciliation.
type PaymentStore interface {
	CompletedByExternalRef(ctx context.Context, externalRef string) (*models.PaymentRecord, error)
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.PaymentRecord) error
}

// PlanStore resolves plan ids from payment events.
type PlanStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

// CreditLedger is the slice of the ledger service the reconciler drives.
type CreditLedger interface {
	CreditTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int, kind models.LedgerEntryKind, paymentID *uuid.UUID) (int, error)
	GrantUnlimitedTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, hours int) (time.Time, error)
	Balance(ctx context.Context, accountID uuid.UUID) (int, error)
}

// TxBeginner starts database transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Outcome describes what a payment event did to the account.
type Outcome struct {
	// AlreadyProcessed is true when the external reference was credited
	// before. NewBalance is still the account's fresh balance so replayed
	// verify calls can render correct state.
	AlreadyProcessed bool
	CreditsAdded     int
	NewBalance       int
	UnlimitedTill    *time.Time
}

// Reconciler turns verified payment events into exactly one credit grant per
// external reference. The fast path checks for an existing completed record;
// the partial unique index on payments(external_ref) closes the race two
// concurrent deliveries can still hit.
type Reconciler struct {
	payments PaymentStore
	plans    PlanStore
	ledger   CreditLedger
	db       TxBeginner
	log      *slog.Logger

	customUnitPrice  int64
	maxCustomCredits int
}

func NewReconciler(payments PaymentStore, plans PlanStore, ledger CreditLedger, db TxBeginner, customUnitPrice int64, maxCustomCredits int, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		payments: payments, plans: plans, ledger: ledger, db: db, log: log,
		customUnitPrice: customUnitPrice, maxCustomCredits: maxCustomCredits,
	}
}

func (r *Reconciler) Apply(ctx context.Context, evt PaymentEvent) (*Outcome, error) {
	existing, err := r.payments.CompletedByExternalRef(ctx, evt.ExternalRef)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return r.alreadyProcessed(ctx, evt.AccountID)
	}

	plan, err := r.plans.GetByID(ctx, evt.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil || plan.Provider != evt.Provider {
		return nil, ErrUnknownPlan
	}

	credits := plan.Credits
	amount := plan.Price
	if plan.IsCustom {
		credits = evt.DeclaredCredits
		if credits < 1 || credits > r.maxCustomCredits {
			return nil, ErrCreditsOutOfRange
		}
		amount = int64(credits) * r.customUnitPrice
	}
	kind := models.LedgerEntryPurchase
	if plan.BillingType == models.BillingSubscription {
		kind = models.LedgerEntrySubscription
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	payment := &models.PaymentRecord{
		ID: uuid.New(), AccountID: evt.AccountID, PlanID: plan.ID,
		Amount: amount, Currency: plan.Currency, Provider: evt.Provider,
		ExternalRef: evt.ExternalRef, Status: models.PaymentStatusCompleted,
	}
	out := &Outcome{}
	if plan.PlanType != models.PlanTypeUnlimited {
		payment.CreditsAdded = credits
	}

	// Payment record goes in first so a duplicate delivery trips the
	// unique index before any balance is touched.
	if err := r.payments.CreateTx(ctx, tx, payment); err != nil {
		if repository.IsUniqueViolation(err) {
			r.log.Info("payment already recorded", "provider", evt.Provider, "external_ref", evt.ExternalRef)
			return r.alreadyProcessed(ctx, evt.AccountID)
		}
		return nil, err
	}

	if plan.PlanType == models.PlanTypeUnlimited {
		hours := 0
		if plan.DurationHours != nil {
			hours = *plan.DurationHours
		}
		till, err := r.ledger.GrantUnlimitedTx(ctx, tx, evt.AccountID, hours)
		if err != nil {
			return nil, err
		}
		out.UnlimitedTill = &till
	} else {
		newBalance, err := r.ledger.CreditTx(ctx, tx, evt.AccountID, credits, kind, &payment.ID)
		if err != nil {
			return nil, err
		}
		out.CreditsAdded = credits
		out.NewBalance = newBalance
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if out.UnlimitedTill != nil {
		balance, err := r.ledger.Balance(ctx, evt.AccountID)
		if err != nil {
			return nil, err
		}
		out.NewBalance = balance
	}
	r.log.Info("payment reconciled", "provider", evt.Provider, "external_ref", evt.ExternalRef,
		"account_id", evt.AccountID, "credits_added", out.CreditsAdded)
	return out, nil
}

func (r *Reconciler) alreadyProcessed(ctx context.Context, accountID uuid.UUID) (*Outcome, error) {
	balance, err := r.ledger.Balance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Outcome{AlreadyProcessed: true, NewBalance: balance}, nil
}
