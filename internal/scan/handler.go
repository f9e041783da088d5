package scan

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/sourceflow/backend/internal/ai"
	"github.com/sourceflow/backend/internal/ledger"
	"github.com/sourceflow/backend/internal/middleware"
)

type ScanRequest struct {
	JobID                   string  `json:"job_id"`
	ProfileURL              string  `json:"profile_url"`
	ProfileText             string  `json:"profile_text"`
	ComputedExperienceYears float64 `json:"computed_experience_years"`
}

type Handler struct {
	orch *Orchestrator
	log  *slog.Logger
}

func NewHandler(orch *Orchestrator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{orch: orch, log: log}
}

// POST /analysis/scan
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "")
		return
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil || req.ProfileURL == "" || req.ProfileText == "" {
		writeError(w, http.StatusBadRequest, "missing or invalid required fields", "")
		return
	}

	raw, err := h.orch.Scan(r.Context(), acc.ID, Request{
		JobID:                   jobID,
		ProfileURL:              req.ProfileURL,
		ProfileText:             req.ProfileText,
		ComputedExperienceYears: req.ComputedExperienceYears,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrJobNotFound):
			writeError(w, http.StatusNotFound, "Job not found", "")
		case errors.Is(err, ledger.ErrInsufficientFunds):
			writeError(w, http.StatusForbidden, "No credits remaining", "PAYWALL")
		case errors.Is(err, ai.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "AI service unavailable", "AI_SERVICE_ERROR")
		default:
			h.log.Error("scan failed", "error", err, "job_id", req.JobID)
			writeError(w, http.StatusInternalServerError, "scan failed", "")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]string{"error": msg}
	if code != "" {
		body["code"] = code
	}
	_ = json.NewEncoder(w).Encode(body)
}
