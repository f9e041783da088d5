package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sourceflow/backend/internal/middleware"
	"github.com/sourceflow/backend/internal/models"
)

// Request/response structs use snake_case JSON.

type CreateOrderRequest struct {
	PlanID string `json:"plan_id"`
	// Credits is required for custom plans and ignored otherwise.
	Credits int `json:"credits"`
}

type CreateOrderResponse struct {
	Provider    string `json:"provider"`
	OrderID     string `json:"order_id,omitempty"`
	CheckoutURL string `json:"checkout_url,omitempty"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Key         string `json:"key,omitempty"`
}

type PlanResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	Currency      string `json:"currency"`
	Credits       int    `json:"credits"`
	BillingType   string `json:"billing_type"`
	Provider      string `json:"provider"`
	PlanType      string `json:"plan_type"`
	DurationHours *int   `json:"duration_hours,omitempty"`
	IsCustom      bool   `json:"is_custom"`
}

type OutcomeResponse struct {
	CreditsAdded  int        `json:"credits_added"`
	NewBalance    int        `json:"new_balance"`
	UnlimitedTill *time.Time `json:"unlimited_till,omitempty"`
	Message       string     `json:"message"`
}

// RazorpayGateway is the provider client surface the handler needs.
type RazorpayGateway interface {
	Configured() bool
	KeyID() string
	CreateOrder(ctx context.Context, accountID, planID uuid.UUID, amount int64, currency string, credits int) (*RazorpayOrder, error)
	FetchOrder(ctx context.Context, orderID string) (*RazorpayOrderDetails, error)
	VerifySignature(body []byte, signature string) bool
}

type PaddleGateway interface {
	Configured() bool
	CreateCheckout(ctx context.Context, accountID, planID uuid.UUID, priceID, currency string, credits int) (*PaddleCheckout, error)
	FetchTransaction(ctx context.Context, txnID string) (*PaddleTransaction, error)
	VerifySignature(body []byte, signature string) bool
}

// PlanCatalog lists and resolves plans.
type PlanCatalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	ListByProvider(ctx context.Context, provider models.Provider) ([]*models.Plan, error)
}

// Applier is the reconciler surface the handler drives.
type Applier interface {
	Apply(ctx context.Context, evt PaymentEvent) (*Outcome, error)
}

type Handler struct {
	plans    PlanCatalog
	rec      Applier
	razorpay RazorpayGateway
	paddle   PaddleGateway
	log      *slog.Logger

	enableMock       bool
	customUnitPrice  int64
	maxCustomCredits int
}

func NewHandler(plans PlanCatalog, rec Applier, razorpay RazorpayGateway, paddle PaddleGateway, enableMock bool, customUnitPrice int64, maxCustomCredits int, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		plans: plans, rec: rec, razorpay: razorpay, paddle: paddle, log: log,
		enableMock: enableMock, customUnitPrice: customUnitPrice, maxCustomCredits: maxCustomCredits,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// GET /payments/plans?country=IN
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")
	if country == "" {
		country = "IN"
	}
	provider := models.ProviderPaddle
	if strings.EqualFold(country, "IN") {
		provider = models.ProviderRazorpay
	}
	list, err := h.plans.ListByProvider(r.Context(), provider)
	if err != nil {
		h.log.Error("list plans failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list plans failed")
		return
	}
	resp := make([]PlanResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, planToResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /payments/client-config
func (h *Handler) ClientConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"razorpay_key_id": h.razorpay.KeyID(),
		"paddle_enabled":  h.paddle.Configured(),
		"mock_enabled":    h.enableMock,
	})
}

// POST /payments/create-order
//
// Region pinning happens before any provider call: IN accounts pay through
// Razorpay in INR, everyone else through Paddle in USD. A mismatched plan is
// rejected outright.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid plan")
		return
	}
	plan, err := h.plans.GetByID(r.Context(), planID)
	if err != nil {
		h.log.Error("plan lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "plan lookup failed")
		return
	}
	if plan == nil {
		writeError(w, http.StatusBadRequest, "invalid plan")
		return
	}

	isIndia := strings.EqualFold(acc.Country, "IN")
	if plan.Provider == models.ProviderRazorpay && !isIndia {
		writeError(w, http.StatusBadRequest, "International payments are temporarily unavailable.")
		return
	}
	if plan.Provider == models.ProviderPaddle && isIndia {
		writeError(w, http.StatusBadRequest, "Indian users must use INR plans.")
		return
	}

	credits := plan.Credits
	amount := plan.Price
	if plan.IsCustom {
		if req.Credits < 1 || req.Credits > h.maxCustomCredits {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("credits must be between 1 and %d", h.maxCustomCredits))
			return
		}
		credits = req.Credits
		amount = int64(credits) * h.customUnitPrice
	}

	switch plan.Provider {
	case models.ProviderRazorpay:
		if !h.razorpay.Configured() {
			writeError(w, http.StatusBadRequest, "Payments are not configured.")
			return
		}
		order, err := h.razorpay.CreateOrder(r.Context(), acc.ID, plan.ID, amount, plan.Currency, credits)
		if err != nil {
			h.log.Error("razorpay create order failed", "error", err, "plan_id", plan.ID)
			writeError(w, http.StatusBadGateway, "payment provider error")
			return
		}
		writeJSON(w, http.StatusOK, CreateOrderResponse{
			Provider: string(models.ProviderRazorpay), OrderID: order.ID,
			Amount: order.Amount, Currency: order.Currency, Key: h.razorpay.KeyID(),
		})
	case models.ProviderPaddle:
		if !h.paddle.Configured() {
			writeError(w, http.StatusBadRequest, "International payments not accepted yet.")
			return
		}
		if plan.PaddlePriceID == nil || *plan.PaddlePriceID == "" {
			writeError(w, http.StatusBadRequest, "International payments not accepted yet.")
			return
		}
		checkout, err := h.paddle.CreateCheckout(r.Context(), acc.ID, plan.ID, *plan.PaddlePriceID, plan.Currency, credits)
		if err != nil {
			h.log.Error("paddle create checkout failed", "error", err, "plan_id", plan.ID)
			writeError(w, http.StatusBadGateway, "payment provider error")
			return
		}
		writeJSON(w, http.StatusOK, CreateOrderResponse{
			Provider: string(models.ProviderPaddle), CheckoutURL: checkout.URL,
			Amount: amount, Currency: plan.Currency,
		})
	default:
		writeError(w, http.StatusBadRequest, "unsupported payment provider")
	}
}

// POST /payments/razorpay-webhook
func (h *Handler) RazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	if !h.razorpay.VerifySignature(body, r.Header.Get("X-Razorpay-Signature")) {
		h.log.Warn("razorpay webhook: invalid signature")
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}
	evt, err := ParseRazorpayWebhook(body)
	if err != nil {
		if !errors.Is(err, ErrSkipEvent) {
			h.log.Warn("razorpay webhook: parse failed", "error", err)
		}
		w.WriteHeader(http.StatusOK)
		return
	}
	notes := evt.Notes
	if notes == nil {
		details, err := h.razorpay.FetchOrder(r.Context(), evt.OrderID)
		if err != nil {
			h.log.Error("razorpay webhook: fetch order failed", "error", err, "order_id", evt.OrderID)
			writeError(w, http.StatusInternalServerError, "order lookup failed")
			return
		}
		notes = details.Notes
	}
	pe, ok := eventFromMeta(models.ProviderRazorpay, evt.OrderID, notes)
	if !ok {
		h.log.Info("razorpay webhook: ignored (no account/plan in notes)", "order_id", evt.OrderID)
		w.WriteHeader(http.StatusOK)
		return
	}
	h.applyWebhook(w, r, pe)
}

// POST /payments/paddle-webhook
func (h *Handler) PaddleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	if !h.paddle.VerifySignature(body, r.Header.Get("Paddle-Signature")) {
		h.log.Warn("paddle webhook: invalid signature")
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}
	evt, err := ParsePaddleWebhook(body)
	if err != nil {
		if !errors.Is(err, ErrSkipEvent) {
			h.log.Warn("paddle webhook: parse failed", "error", err)
		}
		w.WriteHeader(http.StatusOK)
		return
	}
	pe, ok := eventFromMeta(models.ProviderPaddle, evt.TransactionID, evt.CustomData)
	if !ok {
		h.log.Info("paddle webhook: ignored (no account/plan in custom_data)", "transaction_id", evt.TransactionID)
		w.WriteHeader(http.StatusOK)
		return
	}
	h.applyWebhook(w, r, pe)
}

// applyWebhook runs reconciliation for a signature-verified delivery.
// Business rejections are acknowledged with 200 so the provider stops
// retrying a payload that will never succeed; infrastructure failures get
// 500 so it retries later.
func (h *Handler) applyWebhook(w http.ResponseWriter, r *http.Request, pe PaymentEvent) {
	out, err := h.rec.Apply(r.Context(), pe)
	if err != nil {
		if errors.Is(err, ErrUnknownPlan) || errors.Is(err, ErrCreditsOutOfRange) {
			h.log.Warn("webhook rejected", "error", err, "external_ref", pe.ExternalRef)
			w.WriteHeader(http.StatusOK)
			return
		}
		h.log.Error("webhook reconcile failed", "error", err, "external_ref", pe.ExternalRef)
		writeError(w, http.StatusInternalServerError, "reconcile failed")
		return
	}
	if out.AlreadyProcessed {
		h.log.Info("webhook already processed", "external_ref", pe.ExternalRef)
	}
	w.WriteHeader(http.StatusOK)
}

type VerifyRazorpayRequest struct {
	OrderID string `json:"order_id"`
}

// POST /payments/verify-razorpay
//
// Client-driven confirmation after checkout: the order is fetched from
// Razorpay so the account, plan, and payment status come from the provider,
// never the client. Orders exist before checkout, so an order id alone
// proves nothing; only a paid order may be reconciled.
func (h *Handler) VerifyRazorpay(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req VerifyRazorpayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "missing order_id")
		return
	}
	details, err := h.razorpay.FetchOrder(r.Context(), req.OrderID)
	if err != nil {
		h.log.Error("verify razorpay: fetch order failed", "error", err, "order_id", req.OrderID)
		writeError(w, http.StatusBadGateway, "payment provider error")
		return
	}
	if !details.Paid() {
		writeError(w, http.StatusBadRequest, "order not paid")
		return
	}
	pe, ok := eventFromMeta(models.ProviderRazorpay, req.OrderID, details.Notes)
	if !ok {
		writeError(w, http.StatusBadRequest, "order has no payment metadata")
		return
	}
	if pe.AccountID != acc.ID {
		writeError(w, http.StatusForbidden, "order belongs to another account")
		return
	}
	h.respondOutcome(w, r, pe)
}

type VerifyPaddleRequest struct {
	TransactionID string `json:"transaction_id"`
}

// POST /payments/verify-paddle
func (h *Handler) VerifyPaddle(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req VerifyPaddleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, "missing transaction_id")
		return
	}
	txn, err := h.paddle.FetchTransaction(r.Context(), req.TransactionID)
	if err != nil {
		h.log.Error("verify paddle: fetch transaction failed", "error", err, "transaction_id", req.TransactionID)
		writeError(w, http.StatusBadGateway, "payment provider error")
		return
	}
	if txn.Status != "completed" && txn.Status != "paid" {
		writeError(w, http.StatusBadRequest, "transaction not completed")
		return
	}
	pe, ok := eventFromMeta(models.ProviderPaddle, txn.ID, txn.CustomData)
	if !ok {
		writeError(w, http.StatusBadRequest, "transaction has no payment metadata")
		return
	}
	if pe.AccountID != acc.ID {
		writeError(w, http.StatusForbidden, "transaction belongs to another account")
		return
	}
	h.respondOutcome(w, r, pe)
}

type SimulateWebhookRequest struct {
	PlanID    string `json:"plan_id"`
	PaymentID string `json:"payment_id"`
	Credits   int    `json:"credits"`
}

// POST /payments/simulate-razorpay-webhook
//
// Dev-only shortcut that feeds the reconciler directly, bypassing the
// gateway. Hidden (404) unless mock payments are enabled.
func (h *Handler) SimulateRazorpayWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.enableMock {
		http.NotFound(w, r)
		return
	}
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !strings.EqualFold(acc.Country, "IN") {
		writeError(w, http.StatusBadRequest, "International payments are temporarily unavailable.")
		return
	}
	var req SimulateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	planID, err := uuid.Parse(req.PlanID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid plan")
		return
	}
	ref := strings.TrimSpace(req.PaymentID)
	if ref == "" {
		ref = fmt.Sprintf("sim_%s_%s", acc.ID, planID)
	}
	h.respondOutcome(w, r, PaymentEvent{
		Provider: models.ProviderRazorpay, ExternalRef: ref,
		AccountID: acc.ID, PlanID: planID, DeclaredCredits: req.Credits,
	})
}

func (h *Handler) respondOutcome(w http.ResponseWriter, r *http.Request, pe PaymentEvent) {
	out, err := h.rec.Apply(r.Context(), pe)
	if err != nil {
		if errors.Is(err, ErrUnknownPlan) {
			writeError(w, http.StatusBadRequest, "invalid plan")
			return
		}
		if errors.Is(err, ErrCreditsOutOfRange) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("credits must be between 1 and %d", h.maxCustomCredits))
			return
		}
		h.log.Error("reconcile failed", "error", err, "external_ref", pe.ExternalRef)
		writeError(w, http.StatusInternalServerError, "reconcile failed")
		return
	}
	msg := "Payment verified"
	if out.AlreadyProcessed {
		msg = "Already verified"
	}
	writeJSON(w, http.StatusOK, OutcomeResponse{
		CreditsAdded:  out.CreditsAdded,
		NewBalance:    out.NewBalance,
		UnlimitedTill: out.UnlimitedTill,
		Message:       msg,
	})
}

// eventFromMeta builds a PaymentEvent from the provider-side metadata
// (Razorpay notes or Paddle custom_data). Returns false when the metadata
// does not identify an account and plan.
func eventFromMeta(provider models.Provider, externalRef string, meta map[string]string) (PaymentEvent, bool) {
	accountID, err := uuid.Parse(meta["account_id"])
	if err != nil {
		return PaymentEvent{}, false
	}
	planID, err := uuid.Parse(meta["plan_id"])
	if err != nil {
		return PaymentEvent{}, false
	}
	credits, _ := strconv.Atoi(meta["credits"])
	return PaymentEvent{
		Provider: provider, ExternalRef: externalRef,
		AccountID: accountID, PlanID: planID, DeclaredCredits: credits,
	}, true
}

func planToResponse(p *models.Plan) PlanResponse {
	return PlanResponse{
		ID:            p.ID.String(),
		Name:          p.Name,
		Price:         p.Price,
		Currency:      p.Currency,
		Credits:       p.Credits,
		BillingType:   string(p.BillingType),
		Provider:      string(p.Provider),
		PlanType:      string(p.PlanType),
		DurationHours: p.DurationHours,
		IsCustom:      p.IsCustom,
	}
}
