package scan

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sourceflow/backend/internal/ai"
	"github.com/sourceflow/backend/internal/ledger"
	"github.com/sourceflow/backend/internal/models"
	"github.com/sourceflow/backend/internal/repository"
)

// ErrJobNotFound covers both a missing job and a job owned by someone else.
var ErrJobNotFound = errors.New("job not found")

// JobStore resolves jobs scoped to their owner.
type JobStore interface {
	FindOwnedBy(ctx context.Context, jobID, accountID uuid.UUID) (*models.Job, error)
}

// CacheStore is the scan result cache keyed by (profile_url, job_id).
type CacheStore interface {
	Get(ctx context.Context, profileURL string, jobID uuid.UUID) (*models.ScanCacheEntry, error)
	Insert(ctx context.Context, e *models.ScanCacheEntry) error
}

// Ledger is the slice of the credit ledger the orchestrator drives.
type Ledger interface {
	EntitleScan(ctx context.Context, accountID uuid.UUID) (*ledger.Entitlement, error)
	Refund(ctx context.Context, accountID uuid.UUID, amount int) (int, error)
}

type Request struct {
	JobID       uuid.UUID
	ProfileURL  string
	ProfileText string

	// ComputedExperienceYears is calculated client-side from role durations.
	// When positive it overrides the model's figure, which is unreliable at
	// arithmetic.
	ComputedExperienceYears float64
}

// Orchestrator runs the scan flow: ownership check, cache probe, charge,
// score, cache save. The order matters: cache hits are served before any
// credit is touched, and a scorer failure refunds the credit it charged.
type Orchestrator struct {
	jobs    JobStore
	cache   CacheStore
	ledger  Ledger
	scorer  ai.Scorer
	timeout time.Duration
	log     *slog.Logger
}

func NewOrchestrator(jobs JobStore, cache CacheStore, lgr Ledger, scorer ai.Scorer, timeout time.Duration, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{jobs: jobs, cache: cache, ledger: lgr, scorer: scorer, timeout: timeout, log: log}
}

// Scan returns the serialized result exactly as stored, so a cache hit is
// byte-identical to the response that populated it.
func (o *Orchestrator) Scan(ctx context.Context, accountID uuid.UUID, req Request) (json.RawMessage, error) {
	job, err := o.jobs.FindOwnedBy(ctx, req.JobID, accountID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}

	entry, err := o.cache.Get(ctx, req.ProfileURL, req.JobID)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return entry.Result, nil
	}

	ent, err := o.ledger.EntitleScan(ctx, accountID)
	if err != nil {
		return nil, err
	}

	scanCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	result, err := o.scorer.Score(scanCtx, job.Description, req.ProfileText)
	if err != nil {
		if ent.Debited {
			// The refund must survive the (possibly expired) scan context.
			if _, rerr := o.ledger.Refund(context.WithoutCancel(ctx), accountID, 1); rerr != nil {
				o.log.Error("refund after scorer failure failed", "error", rerr, "account_id", accountID)
			}
		}
		return nil, err
	}

	if req.ComputedExperienceYears > 0 {
		result.TotalExperienceYears = req.ComputedExperienceYears
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if err := o.cache.Insert(ctx, &models.ScanCacheEntry{
		ID: uuid.New(), ProfileURL: req.ProfileURL, JobID: req.JobID,
		Result: raw, MatchScore: result.MatchScore,
	}); err != nil && !repository.IsUniqueViolation(err) {
		// The result was paid for; a cache write failure must not lose it.
		o.log.Warn("scan cache insert failed", "error", err, "job_id", req.JobID)
	}
	return raw, nil
}
