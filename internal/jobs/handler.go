package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sourceflow/backend/internal/middleware"
	"github.com/sourceflow/backend/internal/models"
)

// Request/response structs use snake_case JSON.

type CreateJobRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type JobResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobStore is the minimal job repository interface for the handler.
type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	FindOwnedBy(ctx context.Context, jobID, accountID uuid.UUID) (*models.Job, error)
	ListByOwner(ctx context.Context, accountID uuid.UUID) ([]*models.Job, error)
}

type Handler struct {
	jobs JobStore
	log  *slog.Logger
}

func NewHandler(jobs JobStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{jobs: jobs, log: log}
}

// POST /jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if req.Title == "" || req.Description == "" {
		http.Error(w, "missing title or description", http.StatusBadRequest)
		return
	}
	job := &models.Job{
		ID:          uuid.New(),
		AccountID:   acc.ID,
		Title:       req.Title,
		Description: req.Description,
	}
	if err := h.jobs.Create(r.Context(), job); err != nil {
		h.log.Error("create job failed", "error", err)
		http.Error(w, "create job failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(jobToResponse(job))
}

// GET /jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.jobs.ListByOwner(r.Context(), acc.ID)
	if err != nil {
		h.log.Error("list jobs failed", "error", err)
		http.Error(w, "list jobs failed", http.StatusInternalServerError)
		return
	}
	resp := make([]JobResponse, 0, len(list))
	for _, j := range list {
		resp = append(resp, jobToResponse(j))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// GET /jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	job, err := h.jobs.FindOwnedBy(r.Context(), jobID, acc.ID)
	if err != nil {
		h.log.Error("get job failed", "error", err)
		http.Error(w, "get job failed", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(jobToResponse(job))
}

func jobToResponse(j *models.Job) JobResponse {
	return JobResponse{
		ID:          j.ID.String(),
		Title:       j.Title,
		Description: j.Description,
		CreatedAt:   j.CreatedAt,
	}
}
