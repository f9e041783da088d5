package shortlist

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sourceflow/backend/internal/middleware"
	"github.com/sourceflow/backend/internal/models"
	"github.com/sourceflow/backend/internal/repository"
)

// Request/response structs use snake_case JSON.

type ShortlistRequest struct {
	JobID           string `json:"job_id"`
	ProfileURL      string `json:"profile_url"`
	CandidateName   string `json:"candidate_name"`
	MatchScore      int    `json:"match_score"`
	Summary         string `json:"summary"`
	OutreachMessage string `json:"outreach_message"`
}

type ShortlistPostResponse struct {
	ID                 string `json:"id"`
	AlreadyShortlisted bool   `json:"already_shortlisted"`
}

type CandidateResponse struct {
	ID              string    `json:"id"`
	JobID           string    `json:"job_id"`
	ProfileURL      string    `json:"profile_url"`
	CandidateName   string    `json:"candidate_name"`
	MatchScore      int       `json:"match_score"`
	Summary         string    `json:"summary"`
	OutreachMessage string    `json:"outreach_message"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store is the minimal shortlist repository interface for the handler.
type Store interface {
	Find(ctx context.Context, accountID, jobID uuid.UUID, profileURL string) (*models.ShortlistedCandidate, error)
	Create(ctx context.Context, c *models.ShortlistedCandidate) error
	ListByJob(ctx context.Context, accountID, jobID uuid.UUID) ([]*models.ShortlistedCandidate, error)
}

// JobStore checks job ownership before touching the shortlist.
type JobStore interface {
	FindOwnedBy(ctx context.Context, jobID, accountID uuid.UUID) (*models.Job, error)
}

type Handler struct {
	store Store
	jobs  JobStore
	log   *slog.Logger
}

func NewHandler(store Store, jobs JobStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, jobs: jobs, log: log}
}

// POST /shortlist
//
// Shortlisting is idempotent per (account, job, profile): a repeat request
// returns the existing row instead of failing.
func (h *Handler) Shortlist(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req ShortlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil || req.ProfileURL == "" {
		http.Error(w, "missing or invalid required fields", http.StatusBadRequest)
		return
	}
	job, err := h.jobs.FindOwnedBy(r.Context(), jobID, acc.ID)
	if err != nil {
		h.log.Error("job lookup failed", "error", err)
		http.Error(w, "job lookup failed", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	existing, err := h.store.Find(r.Context(), acc.ID, jobID, req.ProfileURL)
	if err != nil {
		h.log.Error("shortlist lookup failed", "error", err)
		http.Error(w, "shortlist failed", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusOK, ShortlistPostResponse{ID: existing.ID.String(), AlreadyShortlisted: true})
		return
	}

	cand := &models.ShortlistedCandidate{
		ID:              uuid.New(),
		AccountID:       acc.ID,
		JobID:           jobID,
		ProfileURL:      req.ProfileURL,
		CandidateName:   req.CandidateName,
		MatchScore:      req.MatchScore,
		Summary:         req.Summary,
		OutreachMessage: req.OutreachMessage,
	}
	if err := h.store.Create(r.Context(), cand); err != nil {
		// Two tabs racing on the same candidate: the unique index wins,
		// report the earlier row.
		if repository.IsUniqueViolation(err) {
			if existing, ferr := h.store.Find(r.Context(), acc.ID, jobID, req.ProfileURL); ferr == nil && existing != nil {
				writeJSON(w, http.StatusOK, ShortlistPostResponse{ID: existing.ID.String(), AlreadyShortlisted: true})
				return
			}
		}
		h.log.Error("shortlist insert failed", "error", err)
		http.Error(w, "shortlist failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ShortlistPostResponse{ID: cand.ID.String(), AlreadyShortlisted: false})
}

// GET /shortlist/{jobId}
func (h *Handler) ListByJob(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	jobID, err := uuid.Parse(r.PathValue("jobId"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	job, err := h.jobs.FindOwnedBy(r.Context(), jobID, acc.ID)
	if err != nil {
		h.log.Error("job lookup failed", "error", err)
		http.Error(w, "job lookup failed", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	list, err := h.store.ListByJob(r.Context(), acc.ID, jobID)
	if err != nil {
		h.log.Error("list shortlist failed", "error", err)
		http.Error(w, "list shortlist failed", http.StatusInternalServerError)
		return
	}
	resp := make([]CandidateResponse, 0, len(list))
	for _, c := range list {
		resp = append(resp, CandidateResponse{
			ID:              c.ID.String(),
			JobID:           c.JobID.String(),
			ProfileURL:      c.ProfileURL,
			CandidateName:   c.CandidateName,
			MatchScore:      c.MatchScore,
			Summary:         c.Summary,
			OutreachMessage: c.OutreachMessage,
			CreatedAt:       c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
