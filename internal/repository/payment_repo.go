package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sourceflow/backend/internal/models"
)

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// CompletedByExternalRef returns the completed payment recorded for a
// provider reference, or (nil, nil) when none exists. This is the fast path
// of the idempotency gate; the partial unique index on (external_ref) WHERE
// status = 'completed' backs it under concurrency.
func (r *PaymentRepo) CompletedByExternalRef(ctx context.Context, externalRef string) (*models.PaymentRecord, error) {
	var p models.PaymentRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, plan_id, amount, currency, provider, external_ref, status, credits_added, created_at
		FROM payments WHERE external_ref = $1 AND status = 'completed'
	`, externalRef).Scan(&p.ID, &p.AccountID, &p.PlanID, &p.Amount, &p.Currency, &p.Provider, &p.ExternalRef, &p.Status, &p.CreditsAdded, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateTx inserts a payment record inside the crediting transaction so the
// record and the ledger entry commit or roll back together.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.PaymentRecord) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payments (id, account_id, plan_id, amount, currency, provider, external_ref, status, credits_added)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, p.ID, p.AccountID, p.PlanID, p.Amount, p.Currency, p.Provider, p.ExternalRef, p.Status, p.CreditsAdded).Scan(&p.CreatedAt)
}
