package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sourceflow/backend/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, email, password_hash, country, credit_balance, unlimited_till, password_reset_token, password_reset_expiry, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Country, &a.CreditBalance, &a.UnlimitedTill, &a.PasswordResetToken, &a.PasswordResetExpiry, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, password_hash, country, credit_balance)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.PasswordHash, a.Country, a.CreditBalance).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetByEmail returns (nil, nil) when no account has the given email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// GetForUpdate locks the account row. Call within a transaction.
func (r *AccountRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// DeductCredits atomically deducts amount if credit_balance >= amount.
// Returns pgx.ErrNoRows when the balance is insufficient.
func (r *AccountRepo) DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET credit_balance = credit_balance - $1, updated_at = now()
		WHERE id = $2 AND credit_balance >= $1
		RETURNING credit_balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// AddCredits adds amount and returns the new balance.
func (r *AccountRepo) AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET credit_balance = credit_balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING credit_balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// SetUnlimitedTill stores the unlimited-access expiry. Call after
// GetForUpdate in the same transaction.
func (r *AccountRepo) SetUnlimitedTill(ctx context.Context, tx pgx.Tx, id uuid.UUID, till time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE accounts SET unlimited_till = $2, updated_at = now() WHERE id = $1
	`, id, till)
	return err
}

func (r *AccountRepo) SetPasswordReset(ctx context.Context, id uuid.UUID, token string, expiry time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET password_reset_token = $2, password_reset_expiry = $3, updated_at = now() WHERE id = $1
	`, id, token, expiry)
	return err
}

// GetByResetToken returns (nil, nil) when the token is unknown or expired.
func (r *AccountRepo) GetByResetToken(ctx context.Context, token string) (*models.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE password_reset_token = $1 AND password_reset_expiry > now()
	`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// UpdatePassword sets a new password hash and clears any reset token.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $2, password_reset_token = NULL, password_reset_expiry = NULL, updated_at = now()
		WHERE id = $1
	`, id, passwordHash)
	return err
}
