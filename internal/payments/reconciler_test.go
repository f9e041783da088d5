package payments

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sourceflow/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks for PaymentStore, PlanStore, and CreditLedger.
// ---------------------------------------------------------------------------

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- PaymentStore mock ---

type mockPayments struct {
	mu      sync.Mutex
	records map[string]*models.PaymentRecord // keyed by external ref

	// skipLookup makes CompletedByExternalRef report nothing, simulating
	// the race where a concurrent delivery commits between the fast-path
	// check and the insert. The unique index still fires in CreateTx.
	skipLookup bool
}

func newMockPayments() *mockPayments {
	return &mockPayments{records: make(map[string]*models.PaymentRecord)}
}

func (m *mockPayments) CompletedByExternalRef(_ context.Context, ref string) (*models.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skipLookup {
		return nil, nil
	}
	p, ok := m.records[ref]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockPayments) CreateTx(_ context.Context, _ pgx.Tx, p *models.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[p.ExternalRef]; exists {
		return &pgconn.PgError{Code: "23505", ConstraintName: "payments_external_ref_completed_key"}
	}
	cp := *p
	m.records[p.ExternalRef] = &cp
	return nil
}

func (m *mockPayments) byRef(ref string) *models.PaymentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[ref]
}

// --- PlanStore mock ---

type mockPlans struct {
	plans map[uuid.UUID]*models.Plan
}

func newMockPlans(plans ...*models.Plan) *mockPlans {
	m := &mockPlans{plans: make(map[uuid.UUID]*models.Plan)}
	for _, p := range plans {
		m.plans[p.ID] = p
	}
	return m
}

func (m *mockPlans) GetByID(_ context.Context, id uuid.UUID) (*models.Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockPlans) ListByProvider(_ context.Context, provider models.Provider) ([]*models.Plan, error) {
	var out []*models.Plan
	for _, p := range m.plans {
		if p.Provider == provider {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- CreditLedger mock ---

type creditCall struct {
	amount int
	kind   models.LedgerEntryKind
}

type mockLedger struct {
	mu        sync.Mutex
	balances  map[uuid.UUID]int
	unlimited map[uuid.UUID]time.Time
	credits   []creditCall
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		balances:  make(map[uuid.UUID]int),
		unlimited: make(map[uuid.UUID]time.Time),
	}
}

func (m *mockLedger) CreditTx(_ context.Context, _ pgx.Tx, accountID uuid.UUID, amount int, kind models.LedgerEntryKind, _ *uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[accountID] += amount
	m.credits = append(m.credits, creditCall{amount: amount, kind: kind})
	return m.balances[accountID], nil
}

func (m *mockLedger) GrantUnlimitedTx(_ context.Context, _ pgx.Tx, accountID uuid.UUID, hours int) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	till := time.Now().Add(time.Duration(hours) * time.Hour)
	m.unlimited[accountID] = till
	return till, nil
}

func (m *mockLedger) Balance(_ context.Context, accountID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[accountID], nil
}

var discard = slog.New(slog.DiscardHandler)

func creditPackPlan(credits int, price int64) *models.Plan {
	return &models.Plan{
		ID: uuid.New(), Name: "Pack", Price: price, Currency: "INR", Credits: credits,
		BillingType: models.BillingOneTime, Provider: models.ProviderRazorpay,
		PlanType: models.PlanTypeCreditPack,
	}
}

// ---------------------------------------------------------------------------
// 1. TestApply_CreditPack
// ---------------------------------------------------------------------------

func TestApply_CreditPack(t *testing.T) {
	plan := creditPackPlan(50, 99)
	accountID := uuid.New()

	payments := newMockPayments()
	lgr := newMockLedger()
	rec := NewReconciler(payments, newMockPlans(plan), lgr, mockPool{}, 1, 10000, discard)

	out, err := rec.Apply(context.Background(), PaymentEvent{
		Provider: models.ProviderRazorpay, ExternalRef: "order_1",
		AccountID: accountID, PlanID: plan.ID,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.AlreadyProcessed {
		t.Error("fresh payment flagged as already processed")
	}
	if out.CreditsAdded != 50 || out.NewBalance != 50 {
		t.Errorf("outcome: got credits=%d balance=%d, want 50/50", out.CreditsAdded, out.NewBalance)
	}
	p := payments.byRef("order_1")
	if p == nil {
		t.Fatal("no payment record stored")
	}
	if p.Status != models.PaymentStatusCompleted || p.Amount != 99 || p.CreditsAdded != 50 {
		t.Errorf("payment record: %+v", p)
	}
	if len(lgr.credits) != 1 || lgr.credits[0].kind != models.LedgerEntryPurchase {
		t.Errorf("credit calls: %+v", lgr.credits)
	}
}

// ---------------------------------------------------------------------------
// 2. TestApply_ReplayIsIdempotent
// ---------------------------------------------------------------------------

func TestApply_ReplayIsIdempotent(t *testing.T) {
	plan := creditPackPlan(150, 199)
	accountID := uuid.New()

	payments := newMockPayments()
	lgr := newMockLedger()
	rec := NewReconciler(payments, newMockPlans(plan), lgr, mockPool{}, 1, 10000, discard)

	evt := PaymentEvent{
		Provider: models.ProviderRazorpay, ExternalRef: "order_replay",
		AccountID: accountID, PlanID: plan.ID,
	}
	ctx := context.Background()
	if _, err := rec.Apply(ctx, evt); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	out, err := rec.Apply(ctx, evt)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if !out.AlreadyProcessed {
		t.Error("replay not flagged as already processed")
	}
	if out.NewBalance != 150 {
		t.Errorf("replay balance: got %d, want 150", out.NewBalance)
	}
	if len(lgr.credits) != 1 {
		t.Errorf("replay credited again: %d credit calls", len(lgr.credits))
	}
}

// ---------------------------------------------------------------------------
// 3. TestApply_ConcurrentDeliveryRace
//    The fast-path lookup misses but the unique index trips on insert.
// ---------------------------------------------------------------------------

func TestApply_ConcurrentDeliveryRace(t *testing.T) {
	plan := creditPackPlan(50, 99)
	accountID := uuid.New()

	payments := newMockPayments()
	lgr := newMockLedger()
	rec := NewReconciler(payments, newMockPlans(plan), lgr, mockPool{}, 1, 10000, discard)

	evt := PaymentEvent{
		Provider: models.ProviderRazorpay, ExternalRef: "order_race",
		AccountID: accountID, PlanID: plan.ID,
	}
	ctx := context.Background()
	if _, err := rec.Apply(ctx, evt); err != nil {
		t.Fatalf("first Apply: %v", err)
	}

	payments.skipLookup = true
	out, err := rec.Apply(ctx, evt)
	if err != nil {
		t.Fatalf("racing Apply: %v", err)
	}
	if !out.AlreadyProcessed {
		t.Error("unique violation should resolve to already processed")
	}
	if len(lgr.credits) != 1 {
		t.Errorf("race double-credited: %d credit calls", len(lgr.credits))
	}
}

// ---------------------------------------------------------------------------
// 4. TestApply_CustomCredits
// ---------------------------------------------------------------------------

func TestApply_CustomCredits(t *testing.T) {
	plan := &models.Plan{
		ID: uuid.New(), Name: "Custom Credits", Currency: "INR",
		BillingType: models.BillingOneTime, Provider: models.ProviderRazorpay,
		PlanType: models.PlanTypeCustom, IsCustom: true,
	}
	accountID := uuid.New()

	payments := newMockPayments()
	lgr := newMockLedger()
	rec := NewReconciler(payments, newMockPlans(plan), lgr, mockPool{}, 2, 10000, discard)

	out, err := rec.Apply(context.Background(), PaymentEvent{
		Provider: models.ProviderRazorpay, ExternalRef: "order_custom",
		AccountID: accountID, PlanID: plan.ID, DeclaredCredits: 5000,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.CreditsAdded != 5000 {
		t.Errorf("credits added: got %d, want 5000", out.CreditsAdded)
	}
	p := payments.byRef("order_custom")
	if p == nil {
		t.Fatal("no payment record stored")
	}
	// Amount is declared credits times the configured unit price.
	if p.Amount != 10000 {
		t.Errorf("custom amount: got %d, want 10000", p.Amount)
	}
}

func TestApply_CustomCreditsOutOfRange(t *testing.T) {
	plan := &models.Plan{
		ID: uuid.New(), Name: "Custom Credits", Currency: "INR",
		BillingType: models.BillingOneTime, Provider: models.ProviderRazorpay,
		PlanType: models.PlanTypeCustom, IsCustom: true,
	}
	payments := newMockPayments()
	lgr := newMockLedger()
	rec := NewReconciler(payments, newMockPlans(plan), lgr, mockPool{}, 1, 10000, discard)

	for _, credits := range []int{0, -5, 10001} {
		_, err := rec.Apply(context.Background(), PaymentEvent{
			Provider: models.ProviderRazorpay, ExternalRef: "order_bad",
			AccountID: uuid.New(), PlanID: plan.ID, DeclaredCredits: credits,
		})
		if !errors.Is(err, ErrCreditsOutOfRange) {
			t.Errorf("credits=%d: expected ErrCreditsOutOfRange, got: %v", credits, err)
		}
	}
	if len(lgr.credits) != 0 {
		t.Errorf("rejected events still credited: %d calls", len(lgr.credits))
	}
}

// ---------------------------------------------------------------------------
// 5. TestApply_UnknownPlan
// ---------------------------------------------------------------------------

func TestApply_UnknownPlan(t *testing.T) {
	paddlePlan := &models.Plan{
		ID: uuid.New(), Name: "Starter", Price: 9, Currency: "USD", Credits: 200,
		BillingType: models.BillingSubscription, Provider: models.ProviderPaddle,
		PlanType: models.PlanTypeCreditPack,
	}
	rec := NewReconciler(newMockPayments(), newMockPlans(paddlePlan), newMockLedger(), mockPool{}, 1, 10000, discard)

	// Missing plan.
	_, err := rec.Apply(context.Background(), PaymentEvent{
		Provider: models.ProviderRazorpay, ExternalRef: "order_x",
		AccountID: uuid.New(), PlanID: uuid.New(),
	})
	if !errors.Is(err, ErrUnknownPlan) {
		t.Errorf("missing plan: expected ErrUnknownPlan, got: %v", err)
	}

	// Plan exists but belongs to the other provider.
	_, err = rec.Apply(context.Background(), PaymentEvent{
		Provider: models.ProviderRazorpay, ExternalRef: "order_y",
		AccountID: uuid.New(), PlanID: paddlePlan.ID,
	})
	if !errors.Is(err, ErrUnknownPlan) {
		t.Errorf("provider mismatch: expected ErrUnknownPlan, got: %v", err)
	}
}

// ---------------------------------------------------------------------------
// 6. TestApply_UnlimitedPlan
// ---------------------------------------------------------------------------

func TestApply_UnlimitedPlan(t *testing.T) {
	hours := 24
	plan := &models.Plan{
		ID: uuid.New(), Name: "24h Unlimited", Price: 149, Currency: "INR",
		BillingType: models.BillingOneTime, Provider: models.ProviderRazorpay,
		PlanType: models.PlanTypeUnlimited, DurationHours: &hours,
	}
	accountID := uuid.New()

	payments := newMockPayments()
	lgr := newMockLedger()
	lgr.balances[accountID] = 7
	rec := NewReconciler(payments, newMockPlans(plan), lgr, mockPool{}, 1, 10000, discard)

	out, err := rec.Apply(context.Background(), PaymentEvent{
		Provider: models.ProviderRazorpay, ExternalRef: "order_unl",
		AccountID: accountID, PlanID: plan.ID,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.UnlimitedTill == nil {
		t.Fatal("no unlimited window granted")
	}
	if out.CreditsAdded != 0 {
		t.Errorf("unlimited plan added credits: %d", out.CreditsAdded)
	}
	// NewBalance reflects the untouched balance so clients render it.
	if out.NewBalance != 7 {
		t.Errorf("balance: got %d, want 7", out.NewBalance)
	}
	if len(lgr.credits) != 0 {
		t.Errorf("unlimited plan wrote credit entries: %d", len(lgr.credits))
	}
	if p := payments.byRef("order_unl"); p == nil || p.CreditsAdded != 0 {
		t.Errorf("payment record: %+v", p)
	}
}

// ---------------------------------------------------------------------------
// 7. TestApply_SubscriptionKind
// ---------------------------------------------------------------------------

func TestApply_SubscriptionKind(t *testing.T) {
	plan := &models.Plan{
		ID: uuid.New(), Name: "Growth", Price: 19, Currency: "USD", Credits: 600,
		BillingType: models.BillingSubscription, Provider: models.ProviderPaddle,
		PlanType: models.PlanTypeCreditPack,
	}
	lgr := newMockLedger()
	rec := NewReconciler(newMockPayments(), newMockPlans(plan), lgr, mockPool{}, 1, 10000, discard)

	if _, err := rec.Apply(context.Background(), PaymentEvent{
		Provider: models.ProviderPaddle, ExternalRef: "txn_sub",
		AccountID: uuid.New(), PlanID: plan.ID,
	}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(lgr.credits) != 1 || lgr.credits[0].kind != models.LedgerEntrySubscription {
		t.Errorf("credit calls: %+v", lgr.credits)
	}
}
