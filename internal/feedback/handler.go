package feedback

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sourceflow/backend/internal/middleware"
	"github.com/sourceflow/backend/internal/models"
)

// Request/response structs use snake_case JSON.

type SubmitRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type SubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// Store is the minimal feedback repository interface for the handler.
type Store interface {
	Create(ctx context.Context, f *models.Feedback) error
	List(ctx context.Context) ([]*models.Feedback, error)
}

type Handler struct {
	store Store
	log   *slog.Logger
}

func NewHandler(store Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, log: log}
}

// POST /feedback
//
// Anyone may submit; when the request carried a valid token the account id
// is attached so follow-ups are possible.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = models.FeedbackTypeFeedback
	}
	if !models.ValidFeedbackType(req.Type) {
		http.Error(w, "type must be feedback, bug, or feature", http.StatusBadRequest)
		return
	}

	f := &models.Feedback{
		ID:      uuid.New(),
		Message: req.Message,
		Type:    req.Type,
	}
	if acc := middleware.AccountFromCtx(r.Context()); acc != nil {
		id := acc.ID
		f.AccountID = &id
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		f.Email = &email
	}
	if err := h.store.Create(r.Context(), f); err != nil {
		h.log.Error("feedback insert failed", "error", err)
		http.Error(w, "feedback failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{Success: true, ID: f.ID.String()})
}

// GET /feedback
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.log.Error("list feedback failed", "error", err)
		http.Error(w, "list feedback failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Feedback{}
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
