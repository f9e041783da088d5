package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sourceflow/backend/internal/models"
)

type FeedbackRepo struct {
	pool *pgxpool.Pool
}

func NewFeedbackRepo(pool *pgxpool.Pool) *FeedbackRepo {
	return &FeedbackRepo{pool: pool}
}

func (r *FeedbackRepo) Create(ctx context.Context, f *models.Feedback) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO feedback (id, account_id, email, message, type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, f.ID, f.AccountID, f.Email, f.Message, f.Type).Scan(&f.CreatedAt)
}

func (r *FeedbackRepo) List(ctx context.Context) ([]*models.Feedback, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, email, message, type, created_at
		FROM feedback ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Feedback
	for rows.Next() {
		var f models.Feedback
		if err := rows.Scan(&f.ID, &f.AccountID, &f.Email, &f.Message, &f.Type, &f.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &f)
	}
	return list, rows.Err()
}
