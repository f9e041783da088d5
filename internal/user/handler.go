package user

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sourceflow/backend/internal/middleware"
	"github.com/sourceflow/backend/internal/models"
)

// LedgerReader lists an account's ledger history.
type LedgerReader interface {
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
}

type Handler struct {
	ledger LedgerReader
	log    *slog.Logger

	now func() time.Time
}

func NewHandler(ledger LedgerReader, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{ledger: ledger, log: log, now: time.Now}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /user/me
//
// The auth middleware loads the account per request, so the balance here is
// always fresh.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	resp := map[string]any{
		"id":             acc.ID,
		"email":          acc.Email,
		"country":        acc.Country,
		"credit_balance": acc.CreditBalance,
		"created_at":     acc.CreatedAt,
	}
	if acc.HasUnlimitedAccess(h.now()) {
		resp["unlimited_till"] = acc.UnlimitedTill
	}
	writeJSON(w, http.StatusOK, resp)
}

type LedgerEntryResponse struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Delta        int       `json:"delta"`
	BalanceAfter *int      `json:"balance_after,omitempty"`
	PaymentID    *string   `json:"payment_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// GET /user/ledger
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	entries, err := h.ledger.ListByAccountID(r.Context(), acc.ID)
	if err != nil {
		h.log.Error("list ledger failed", "error", err)
		http.Error(w, "list ledger failed", http.StatusInternalServerError)
		return
	}
	resp := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out := LedgerEntryResponse{
			ID:           e.ID.String(),
			Kind:         string(e.Kind),
			Delta:        e.Delta,
			BalanceAfter: e.BalanceAfter,
			CreatedAt:    e.CreatedAt,
		}
		if e.PaymentID != nil {
			s := e.PaymentID.String()
			out.PaymentID = &s
		}
		resp = append(resp, out)
	}
	writeJSON(w, http.StatusOK, resp)
}
