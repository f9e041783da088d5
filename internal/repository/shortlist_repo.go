package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sourceflow/backend/internal/models"
)

type ShortlistRepo struct {
	pool *pgxpool.Pool
}

func NewShortlistRepo(pool *pgxpool.Pool) *ShortlistRepo {
	return &ShortlistRepo{pool: pool}
}

// Find returns (nil, nil) when the candidate is not shortlisted yet.
func (r *ShortlistRepo) Find(ctx context.Context, accountID, jobID uuid.UUID, profileURL string) (*models.ShortlistedCandidate, error) {
	var c models.ShortlistedCandidate
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, job_id, profile_url, candidate_name, match_score, summary, outreach_message, created_at
		FROM shortlisted_candidates
		WHERE account_id = $1 AND job_id = $2 AND profile_url = $3
	`, accountID, jobID, profileURL).Scan(&c.ID, &c.AccountID, &c.JobID, &c.ProfileURL, &c.CandidateName, &c.MatchScore, &c.Summary, &c.OutreachMessage, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ShortlistRepo) Create(ctx context.Context, c *models.ShortlistedCandidate) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO shortlisted_candidates (id, account_id, job_id, profile_url, candidate_name, match_score, summary, outreach_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, c.ID, c.AccountID, c.JobID, c.ProfileURL, c.CandidateName, c.MatchScore, c.Summary, c.OutreachMessage).Scan(&c.CreatedAt)
}

func (r *ShortlistRepo) ListByJob(ctx context.Context, accountID, jobID uuid.UUID) ([]*models.ShortlistedCandidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, job_id, profile_url, candidate_name, match_score, summary, outreach_message, created_at
		FROM shortlisted_candidates
		WHERE account_id = $1 AND job_id = $2
		ORDER BY match_score DESC, created_at DESC
	`, accountID, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ShortlistedCandidate
	for rows.Next() {
		var c models.ShortlistedCandidate
		if err := rows.Scan(&c.ID, &c.AccountID, &c.JobID, &c.ProfileURL, &c.CandidateName, &c.MatchScore, &c.Summary, &c.OutreachMessage, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}
