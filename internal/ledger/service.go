package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sourceflow/backend/internal/models"
)

// ErrInsufficientFunds is returned when the account balance is too low for
// the requested debit.
var ErrInsufficientFunds = errors.New("insufficient funds")

// AccountStore is the minimal account repository interface for the ledger.
type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error)
	AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error)
	SetUnlimitedTill(ctx context.Context, tx pgx.Tx, id uuid.UUID, till time.Time) error
}

// EntryStore is the minimal ledger entry repository interface.
type EntryStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

// TxBeginner starts database transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Entitlement is the outcome of an EntitleScan check.
type Entitlement struct {
	// Unlimited is true when the account has an active unlimited window.
	// No credit was consumed in that case.
	Unlimited bool
	// Debited is true when one credit was consumed.
	Debited bool
	// Balance is the credit balance after the check.
	Balance int
}

// Service owns every mutation of accounts.credit_balance. The balance must
// always equal the sum of the account's ledger entry deltas, so a balance
// change and its entry commit in the same transaction.
type Service interface {
	Debit(ctx context.Context, accountID uuid.UUID, amount int) (newBalance int, err error)
	Credit(ctx context.Context, accountID uuid.UUID, amount int, kind models.LedgerEntryKind) (newBalance int, err error)
	CreditTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int, kind models.LedgerEntryKind, paymentID *uuid.UUID) (newBalance int, err error)
	GrantUnlimitedUntil(ctx context.Context, accountID uuid.UUID, hours int) (time.Time, error)
	GrantUnlimitedTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, hours int) (time.Time, error)
	Refund(ctx context.Context, accountID uuid.UUID, amount int) (newBalance int, err error)
	Balance(ctx context.Context, accountID uuid.UUID) (int, error)
	EntitleScan(ctx context.Context, accountID uuid.UUID) (*Entitlement, error)
}

type service struct {
	accounts AccountStore
	entries  EntryStore
	db       TxBeginner

	now func() time.Time
}

func NewService(accounts AccountStore, entries EntryStore, db TxBeginner) Service {
	return &service{accounts: accounts, entries: entries, db: db, now: time.Now}
}

var _ Service = (*service)(nil)

// Debit locks the account row, deducts amount, and appends a deduction
// entry. The conditional UPDATE in DeductCredits is the real guard against
// going negative; the row lock keeps the entry's balance_after consistent.
func (s *service) Debit(ctx context.Context, accountID uuid.UUID, amount int) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	acc, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	if acc.CreditBalance < amount {
		return 0, ErrInsufficientFunds
	}
	newBalance, err := s.accounts.DeductCredits(ctx, tx, accountID, amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, err
	}
	if err := s.entries.CreateTx(ctx, tx, &models.LedgerEntry{
		ID: uuid.New(), AccountID: accountID,
		Kind: models.LedgerEntryDeduction, Delta: -amount, BalanceAfter: intPtr(newBalance),
	}); err != nil {
		return 0, err
	}
	return newBalance, tx.Commit(ctx)
}

func (s *service) Credit(ctx context.Context, accountID uuid.UUID, amount int, kind models.LedgerEntryKind) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	newBalance, err := s.CreditTx(ctx, tx, accountID, amount, kind, nil)
	if err != nil {
		return 0, err
	}
	return newBalance, tx.Commit(ctx)
}

// CreditTx adds amount inside an existing transaction so callers can commit
// the grant together with their own rows (payment records in particular).
func (s *service) CreditTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int, kind models.LedgerEntryKind, paymentID *uuid.UUID) (int, error) {
	if _, err := s.accounts.GetForUpdate(ctx, tx, accountID); err != nil {
		return 0, err
	}
	newBalance, err := s.accounts.AddCredits(ctx, tx, accountID, amount)
	if err != nil {
		return 0, err
	}
	if err := s.entries.CreateTx(ctx, tx, &models.LedgerEntry{
		ID: uuid.New(), AccountID: accountID, PaymentID: paymentID,
		Kind: kind, Delta: amount, BalanceAfter: intPtr(newBalance),
	}); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Refund compensates a failed scan by returning the debited credit.
func (s *service) Refund(ctx context.Context, accountID uuid.UUID, amount int) (int, error) {
	return s.Credit(ctx, accountID, amount, models.LedgerEntryRefund)
}

func (s *service) GrantUnlimitedUntil(ctx context.Context, accountID uuid.UUID, hours int) (time.Time, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer tx.Rollback(ctx)

	till, err := s.GrantUnlimitedTx(ctx, tx, accountID, hours)
	if err != nil {
		return time.Time{}, err
	}
	return till, tx.Commit(ctx)
}

// GrantUnlimitedTx extends unlimited access. If the account still has an
// unexpired window the duration is added to its end, so back-to-back
// purchases stack instead of overwriting each other. No ledger entry is
// written: unlimited windows do not change the credit balance.
func (s *service) GrantUnlimitedTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, hours int) (time.Time, error) {
	acc, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return time.Time{}, err
	}
	base := s.now()
	if acc.UnlimitedTill != nil && acc.UnlimitedTill.After(base) {
		base = *acc.UnlimitedTill
	}
	till := base.Add(time.Duration(hours) * time.Hour)
	if err := s.accounts.SetUnlimitedTill(ctx, tx, accountID, till); err != nil {
		return time.Time{}, err
	}
	return till, nil
}

func (s *service) Balance(ctx context.Context, accountID uuid.UUID) (int, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acc.CreditBalance, nil
}

// EntitleScan decides whether a scan may run. An active unlimited window
// passes without charge; otherwise one credit is debited.
func (s *service) EntitleScan(ctx context.Context, accountID uuid.UUID) (*Entitlement, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.HasUnlimitedAccess(s.now()) {
		return &Entitlement{Unlimited: true, Balance: acc.CreditBalance}, nil
	}
	newBalance, err := s.Debit(ctx, accountID, 1)
	if err != nil {
		return nil, err
	}
	return &Entitlement{Debited: true, Balance: newBalance}, nil
}

func intPtr(n int) *int { return &n }
