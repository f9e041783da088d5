package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sourceflow/backend/internal/models"
)

// ScanCacheRepo stores finished scan results keyed by (profile_url, job_id).
// The result column holds the serialized response verbatim so cache hits are
// byte-identical to the original scan.
type ScanCacheRepo struct {
	pool *pgxpool.Pool
}

func NewScanCacheRepo(pool *pgxpool.Pool) *ScanCacheRepo {
	return &ScanCacheRepo{pool: pool}
}

// Get returns (nil, nil) on a cache miss.
func (r *ScanCacheRepo) Get(ctx context.Context, profileURL string, jobID uuid.UUID) (*models.ScanCacheEntry, error) {
	var e models.ScanCacheEntry
	err := r.pool.QueryRow(ctx, `
		SELECT id, profile_url, job_id, result, match_score, created_at
		FROM scan_cache WHERE profile_url = $1 AND job_id = $2
	`, profileURL, jobID).Scan(&e.ID, &e.ProfileURL, &e.JobID, &e.Result, &e.MatchScore, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ScanCacheRepo) Insert(ctx context.Context, e *models.ScanCacheEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO scan_cache (id, profile_url, job_id, result, match_score)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, e.ID, e.ProfileURL, e.JobID, e.Result, e.MatchScore).Scan(&e.CreatedAt)
}
