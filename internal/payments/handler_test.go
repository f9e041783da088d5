package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/sourceflow/backend/internal/middleware"
	"github.com/sourceflow/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Gateway and reconciler stubs. The stubs count calls so tests can assert
// that rejected requests never reach a provider.
// ---------------------------------------------------------------------------

type stubRazorpay struct {
	configured   bool
	orderCalls   int
	fetchedOrder *RazorpayOrderDetails
	sigValid     bool
}

func (s *stubRazorpay) Configured() bool { return s.configured }
func (s *stubRazorpay) KeyID() string    { return "rzp_test_key" }
func (s *stubRazorpay) CreateOrder(_ context.Context, _, _ uuid.UUID, amount int64, currency string, _ int) (*RazorpayOrder, error) {
	s.orderCalls++
	return &RazorpayOrder{ID: "order_stub", Amount: amount, Currency: currency}, nil
}
func (s *stubRazorpay) FetchOrder(_ context.Context, _ string) (*RazorpayOrderDetails, error) {
	if s.fetchedOrder == nil {
		return nil, fmt.Errorf("order not found")
	}
	return s.fetchedOrder, nil
}
func (s *stubRazorpay) VerifySignature([]byte, string) bool { return s.sigValid }

type stubPaddle struct {
	configured    bool
	checkoutCalls int
	sigValid      bool
}

func (s *stubPaddle) Configured() bool { return s.configured }
func (s *stubPaddle) CreateCheckout(_ context.Context, _, _ uuid.UUID, _, _ string, _ int) (*PaddleCheckout, error) {
	s.checkoutCalls++
	return &PaddleCheckout{TransactionID: "txn_stub", URL: "https://checkout.example/txn_stub"}, nil
}
func (s *stubPaddle) FetchTransaction(context.Context, string) (*PaddleTransaction, error) {
	return nil, fmt.Errorf("not implemented")
}
func (s *stubPaddle) VerifySignature([]byte, string) bool { return s.sigValid }

type stubApplier struct {
	calls []PaymentEvent
	out   *Outcome
	err   error
}

func (s *stubApplier) Apply(_ context.Context, evt PaymentEvent) (*Outcome, error) {
	s.calls = append(s.calls, evt)
	if s.err != nil {
		return nil, s.err
	}
	if s.out != nil {
		return s.out, nil
	}
	return &Outcome{CreditsAdded: 50, NewBalance: 50}, nil
}

func authedRequest(method, target string, body any, acc *models.Account) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if acc != nil {
		req = req.WithContext(middleware.WithAccount(req.Context(), acc))
	}
	return req
}

func indianAccount() *models.Account {
	return &models.Account{ID: uuid.New(), Email: "in@example.com", Country: "IN"}
}

func usAccount() *models.Account {
	return &models.Account{ID: uuid.New(), Email: "us@example.com", Country: "US"}
}

// ---------------------------------------------------------------------------
// CreateOrder: region pinning
// ---------------------------------------------------------------------------

func TestCreateOrder_RegionPinning(t *testing.T) {
	inrPlan := creditPackPlan(50, 99)
	priceID := "pri_starter"
	usdPlan := &models.Plan{
		ID: uuid.New(), Name: "Starter", Price: 9, Currency: "USD", Credits: 200,
		BillingType: models.BillingSubscription, Provider: models.ProviderPaddle,
		PlanType: models.PlanTypeCreditPack, PaddlePriceID: &priceID,
	}

	razorpay := &stubRazorpay{configured: true}
	paddle := &stubPaddle{configured: true}
	h := NewHandler(newMockPlans(inrPlan, usdPlan), &stubApplier{}, razorpay, paddle, false, 1, 10000, discard)

	// A non-Indian account cannot buy an INR plan.
	w := httptest.NewRecorder()
	h.CreateOrder(w, authedRequest(http.MethodPost, "/payments/create-order",
		CreateOrderRequest{PlanID: inrPlan.ID.String()}, usAccount()))
	if w.Code != http.StatusBadRequest {
		t.Errorf("US+INR: status %d, want 400", w.Code)
	}

	// An Indian account cannot buy a USD plan.
	w = httptest.NewRecorder()
	h.CreateOrder(w, authedRequest(http.MethodPost, "/payments/create-order",
		CreateOrderRequest{PlanID: usdPlan.ID.String()}, indianAccount()))
	if w.Code != http.StatusBadRequest {
		t.Errorf("IN+USD: status %d, want 400", w.Code)
	}

	// Rejections must happen before any provider call.
	if razorpay.orderCalls != 0 || paddle.checkoutCalls != 0 {
		t.Errorf("provider called on rejected orders: razorpay=%d paddle=%d",
			razorpay.orderCalls, paddle.checkoutCalls)
	}
}

func TestCreateOrder_Razorpay(t *testing.T) {
	plan := creditPackPlan(50, 99)
	razorpay := &stubRazorpay{configured: true}
	h := NewHandler(newMockPlans(plan), &stubApplier{}, razorpay, &stubPaddle{}, false, 1, 10000, discard)

	w := httptest.NewRecorder()
	h.CreateOrder(w, authedRequest(http.MethodPost, "/payments/create-order",
		CreateOrderRequest{PlanID: plan.ID.String()}, indianAccount()))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp CreateOrderResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Provider != "razorpay" || resp.OrderID != "order_stub" || resp.Key != "rzp_test_key" {
		t.Errorf("response: %+v", resp)
	}
	if resp.Amount != 99 || resp.Currency != "INR" {
		t.Errorf("amount: %+v", resp)
	}
}

func TestCreateOrder_CustomCreditsValidated(t *testing.T) {
	plan := &models.Plan{
		ID: uuid.New(), Name: "Custom Credits", Currency: "INR",
		BillingType: models.BillingOneTime, Provider: models.ProviderRazorpay,
		PlanType: models.PlanTypeCustom, IsCustom: true,
	}
	razorpay := &stubRazorpay{configured: true}
	h := NewHandler(newMockPlans(plan), &stubApplier{}, razorpay, &stubPaddle{}, false, 1, 10000, discard)

	for _, credits := range []int{0, 10001} {
		w := httptest.NewRecorder()
		h.CreateOrder(w, authedRequest(http.MethodPost, "/payments/create-order",
			CreateOrderRequest{PlanID: plan.ID.String(), Credits: credits}, indianAccount()))
		if w.Code != http.StatusBadRequest {
			t.Errorf("credits=%d: status %d, want 400", credits, w.Code)
		}
	}
	if razorpay.orderCalls != 0 {
		t.Errorf("provider called despite invalid credits: %d", razorpay.orderCalls)
	}
}

// ---------------------------------------------------------------------------
// Webhooks
// ---------------------------------------------------------------------------

func TestRazorpayWebhook_InvalidSignature(t *testing.T) {
	applier := &stubApplier{}
	h := NewHandler(newMockPlans(), applier, &stubRazorpay{sigValid: false}, &stubPaddle{}, false, 1, 10000, discard)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payments/razorpay-webhook", bytes.NewReader([]byte(`{}`)))
	h.RazorpayWebhook(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", w.Code)
	}
	if len(applier.calls) != 0 {
		t.Errorf("reconciler reached despite bad signature: %d calls", len(applier.calls))
	}
}

func TestRazorpayWebhook_OrderPaid(t *testing.T) {
	applier := &stubApplier{}
	h := NewHandler(newMockPlans(), applier, &stubRazorpay{sigValid: true}, &stubPaddle{}, false, 1, 10000, discard)

	accountID := uuid.New()
	planID := uuid.New()
	body := fmt.Sprintf(`{
		"event": "order.paid",
		"payload": {"order": {"entity": {
			"id": "order_wh",
			"notes": {"account_id": %q, "plan_id": %q, "credits": "50"}
		}}}
	}`, accountID, planID)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payments/razorpay-webhook", bytes.NewReader([]byte(body)))
	h.RazorpayWebhook(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if len(applier.calls) != 1 {
		t.Fatalf("reconciler calls: %d, want 1", len(applier.calls))
	}
	evt := applier.calls[0]
	if evt.Provider != models.ProviderRazorpay || evt.ExternalRef != "order_wh" ||
		evt.AccountID != accountID || evt.PlanID != planID || evt.DeclaredCredits != 50 {
		t.Errorf("event: %+v", evt)
	}
}

func TestRazorpayWebhook_UnknownEventAcknowledged(t *testing.T) {
	applier := &stubApplier{}
	h := NewHandler(newMockPlans(), applier, &stubRazorpay{sigValid: true}, &stubPaddle{}, false, 1, 10000, discard)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payments/razorpay-webhook",
		bytes.NewReader([]byte(`{"event":"refund.created"}`)))
	h.RazorpayWebhook(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status %d, want 200", w.Code)
	}
	if len(applier.calls) != 0 {
		t.Errorf("reconciler reached for ignored event: %d calls", len(applier.calls))
	}
}

func TestWebhook_ErrorPolicy(t *testing.T) {
	accountID := uuid.New()
	planID := uuid.New()
	body := fmt.Sprintf(`{
		"event": "order.paid",
		"payload": {"order": {"entity": {
			"id": "order_pol",
			"notes": {"account_id": %q, "plan_id": %q}
		}}}
	}`, accountID, planID)

	// Business rejection: acknowledge so the provider stops retrying.
	applier := &stubApplier{err: ErrUnknownPlan}
	h := NewHandler(newMockPlans(), applier, &stubRazorpay{sigValid: true}, &stubPaddle{}, false, 1, 10000, discard)
	w := httptest.NewRecorder()
	h.RazorpayWebhook(w, httptest.NewRequest(http.MethodPost, "/payments/razorpay-webhook", bytes.NewReader([]byte(body))))
	if w.Code != http.StatusOK {
		t.Errorf("business rejection: status %d, want 200", w.Code)
	}

	// Infrastructure failure: 500 so the provider retries later.
	applier = &stubApplier{err: errors.New("db down")}
	h = NewHandler(newMockPlans(), applier, &stubRazorpay{sigValid: true}, &stubPaddle{}, false, 1, 10000, discard)
	w = httptest.NewRecorder()
	h.RazorpayWebhook(w, httptest.NewRequest(http.MethodPost, "/payments/razorpay-webhook", bytes.NewReader([]byte(body))))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("infra failure: status %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Verify paths
// ---------------------------------------------------------------------------

func TestVerifyRazorpay_AccountMismatch(t *testing.T) {
	other := uuid.New()
	razorpay := &stubRazorpay{
		configured: true,
		fetchedOrder: &RazorpayOrderDetails{
			Status: "paid", AmountPaid: 9900,
			Notes: map[string]string{
				"account_id": other.String(),
				"plan_id":    uuid.New().String(),
			},
		},
	}
	applier := &stubApplier{}
	h := NewHandler(newMockPlans(), applier, razorpay, &stubPaddle{}, false, 1, 10000, discard)

	w := httptest.NewRecorder()
	h.VerifyRazorpay(w, authedRequest(http.MethodPost, "/payments/verify-razorpay",
		VerifyRazorpayRequest{OrderID: "order_x"}, indianAccount()))
	if w.Code != http.StatusForbidden {
		t.Errorf("status %d, want 403", w.Code)
	}
	if len(applier.calls) != 0 {
		t.Errorf("reconciler reached for foreign order: %d calls", len(applier.calls))
	}
}

func TestVerifyRazorpay_UnpaidOrder(t *testing.T) {
	acc := indianAccount()
	planID := uuid.New()
	// Orders exist as soon as checkout opens. Knowing an order id must not
	// be enough to get credited.
	for _, status := range []string{"created", "attempted"} {
		razorpay := &stubRazorpay{
			configured: true,
			fetchedOrder: &RazorpayOrderDetails{
				Status: status,
				Notes: map[string]string{
					"account_id": acc.ID.String(),
					"plan_id":    planID.String(),
					"credits":    "50",
				},
			},
		}
		applier := &stubApplier{}
		h := NewHandler(newMockPlans(), applier, razorpay, &stubPaddle{}, false, 1, 10000, discard)

		w := httptest.NewRecorder()
		h.VerifyRazorpay(w, authedRequest(http.MethodPost, "/payments/verify-razorpay",
			VerifyRazorpayRequest{OrderID: "order_unpaid"}, acc))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status %q: got %d, want 400", status, w.Code)
		}
		if len(applier.calls) != 0 {
			t.Errorf("status %q: reconciler reached for unpaid order: %d calls", status, len(applier.calls))
		}
	}
}

func TestVerifyRazorpay_Success(t *testing.T) {
	acc := indianAccount()
	planID := uuid.New()
	razorpay := &stubRazorpay{
		configured: true,
		fetchedOrder: &RazorpayOrderDetails{
			Status: "paid", AmountPaid: 9900,
			Notes: map[string]string{
				"account_id": acc.ID.String(),
				"plan_id":    planID.String(),
				"credits":    "50",
			},
		},
	}
	applier := &stubApplier{out: &Outcome{CreditsAdded: 50, NewBalance: 75}}
	h := NewHandler(newMockPlans(), applier, razorpay, &stubPaddle{}, false, 1, 10000, discard)

	w := httptest.NewRecorder()
	h.VerifyRazorpay(w, authedRequest(http.MethodPost, "/payments/verify-razorpay",
		VerifyRazorpayRequest{OrderID: "order_ok"}, acc))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var resp OutcomeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CreditsAdded != 50 || resp.NewBalance != 75 || resp.Message != "Payment verified" {
		t.Errorf("response: %+v", resp)
	}
}

// ---------------------------------------------------------------------------
// Simulated webhook gating
// ---------------------------------------------------------------------------

func TestSimulateRazorpayWebhook_HiddenWhenDisabled(t *testing.T) {
	h := NewHandler(newMockPlans(), &stubApplier{}, &stubRazorpay{}, &stubPaddle{}, false, 1, 10000, discard)

	w := httptest.NewRecorder()
	h.SimulateRazorpayWebhook(w, authedRequest(http.MethodPost, "/payments/simulate-razorpay-webhook",
		SimulateWebhookRequest{PlanID: uuid.New().String()}, indianAccount()))
	if w.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", w.Code)
	}
}

func TestSimulateRazorpayWebhook_Enabled(t *testing.T) {
	applier := &stubApplier{}
	h := NewHandler(newMockPlans(), applier, &stubRazorpay{}, &stubPaddle{}, true, 1, 10000, discard)

	acc := indianAccount()
	planID := uuid.New()
	w := httptest.NewRecorder()
	h.SimulateRazorpayWebhook(w, authedRequest(http.MethodPost, "/payments/simulate-razorpay-webhook",
		SimulateWebhookRequest{PlanID: planID.String()}, acc))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if len(applier.calls) != 1 {
		t.Fatalf("reconciler calls: %d, want 1", len(applier.calls))
	}
	evt := applier.calls[0]
	if evt.AccountID != acc.ID || evt.PlanID != planID {
		t.Errorf("event: %+v", evt)
	}
	if want := fmt.Sprintf("sim_%s_%s", acc.ID, planID); evt.ExternalRef != want {
		t.Errorf("external ref: got %q, want %q", evt.ExternalRef, want)
	}
}
