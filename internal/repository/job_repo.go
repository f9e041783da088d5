package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sourceflow/backend/internal/models"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, account_id, title, description)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, j.ID, j.AccountID, j.Title, j.Description).Scan(&j.CreatedAt)
}

// FindOwnedBy returns the job only when it belongs to accountID, and
// (nil, nil) otherwise. Ownership and existence are deliberately not
// distinguished so callers cannot leak another user's job IDs.
func (r *JobRepo) FindOwnedBy(ctx context.Context, jobID, accountID uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, title, description, created_at
		FROM jobs WHERE id = $1 AND account_id = $2
	`, jobID, accountID).Scan(&j.ID, &j.AccountID, &j.Title, &j.Description, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *JobRepo) ListByOwner(ctx context.Context, accountID uuid.UUID) ([]*models.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, title, description, created_at
		FROM jobs WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.AccountID, &j.Title, &j.Description, &j.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &j)
	}
	return list, rows.Err()
}
