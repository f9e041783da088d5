package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sourceflow/backend/internal/models"
)

type PlanRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *PlanRepo {
	return &PlanRepo{pool: pool}
}

const planColumns = `id, name, price, currency, credits, billing_type, provider, plan_type, duration_hours, is_custom, paddle_price_id, created_at`

func scanPlan(row pgx.Row) (*models.Plan, error) {
	var p models.Plan
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.Credits, &p.BillingType, &p.Provider, &p.PlanType, &p.DurationHours, &p.IsCustom, &p.PaddlePriceID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID returns (nil, nil) when the plan does not exist.
func (r *PlanRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	p, err := scanPlan(r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *PlanRepo) ListByProvider(ctx context.Context, provider models.Provider) ([]*models.Plan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+planColumns+` FROM plans WHERE provider = $1 ORDER BY price ASC
	`, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Seed inserts the catalog rows if they are not already present. Plans are
// matched by name and provider so re-running at startup is safe.
func (r *PlanRepo) Seed(ctx context.Context, plans []*models.Plan) error {
	for _, p := range plans {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO plans (id, name, price, currency, credits, billing_type, provider, plan_type, duration_hours, is_custom, paddle_price_id)
			SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
			WHERE NOT EXISTS (SELECT 1 FROM plans WHERE name = $2 AND provider = $7)
		`, p.ID, p.Name, p.Price, p.Currency, p.Credits, p.BillingType, p.Provider, p.PlanType, p.DurationHours, p.IsCustom, p.PaddlePriceID)
		if err != nil {
			return err
		}
	}
	return nil
}
