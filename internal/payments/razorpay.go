package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RazorpayClient talks to the Razorpay Orders API and verifies webhook
// signatures. Order notes carry {account_id, plan_id, credits} so the
// webhook can be resolved without server-side session state.
type RazorpayClient struct {
	keyID         string
	keySecret     string
	webhookSecret string
	httpClient    *http.Client
	baseURL       string
}

func NewRazorpayClient(keyID, keySecret, webhookSecret string) *RazorpayClient {
	return &RazorpayClient{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		baseURL:       "https://api.razorpay.com",
	}
}

func (c *RazorpayClient) Configured() bool {
	return c.keyID != "" && c.keySecret != ""
}

// KeyID is the public key the browser checkout widget needs.
func (c *RazorpayClient) KeyID() string { return c.keyID }

type RazorpayOrder struct {
	ID       string
	Amount   int64 // whole currency units
	Currency string
}

// CreateOrder creates an order for amount whole units (converted to the
// smallest unit on the wire, as Razorpay requires).
func (c *RazorpayClient) CreateOrder(ctx context.Context, accountID, planID uuid.UUID, amount int64, currency string, credits int) (*RazorpayOrder, error) {
	body, err := json.Marshal(map[string]any{
		"amount":   amount * 100,
		"currency": currency,
		"receipt":  fmt.Sprintf("sf_%d", time.Now().UnixNano()),
		"notes": map[string]string{
			"account_id": accountID.String(),
			"plan_id":    planID.String(),
			"credits":    strconv.Itoa(credits),
		},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("razorpay create order: status %d", resp.StatusCode)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("razorpay create order: decode: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("razorpay create order: empty order id")
	}
	return &RazorpayOrder{ID: out.ID, Amount: amount, Currency: currency}, nil
}

// RazorpayOrderDetails is the slice of a fetched order the reconcile paths
// need. Status is "created" until checkout completes, then "attempted" and
// finally "paid"; only a paid order is evidence of payment.
type RazorpayOrderDetails struct {
	Status     string
	AmountPaid int64 // smallest currency unit, as Razorpay reports it
	Notes      map[string]string
}

// Paid reports whether the order has been paid for in full.
func (d *RazorpayOrderDetails) Paid() bool {
	return d.Status == "paid"
}

// FetchOrder fetches an order to recover its notes and payment status. The
// payment.captured webhook only carries the order id, so this is the lookup
// path back to {account_id, plan_id, credits}; the verify path additionally
// gates on the returned status.
func (c *RazorpayClient) FetchOrder(ctx context.Context, orderID string) (*RazorpayOrderDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("razorpay fetch order: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("razorpay fetch order %s: status %d", orderID, resp.StatusCode)
	}

	var out struct {
		Status     string          `json:"status"`
		AmountPaid int64           `json:"amount_paid"`
		Notes      json.RawMessage `json:"notes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("razorpay fetch order: decode: %w", err)
	}
	return &RazorpayOrderDetails{
		Status:     out.Status,
		AmountPaid: out.AmountPaid,
		Notes:      decodeNotes(out.Notes),
	}, nil
}

// VerifySignature checks X-Razorpay-Signature: hex HMAC-SHA256 over the raw
// body. Comparison is case-insensitive on the hex digits.
func (c *RazorpayClient) VerifySignature(body []byte, signature string) bool {
	if c.webhookSecret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// RazorpayEvent is a parsed webhook delivery. Notes is nil for
// payment.captured events, where the order must be fetched separately.
type RazorpayEvent struct {
	OrderID string
	Notes   map[string]string
}

func ParseRazorpayWebhook(body []byte) (*RazorpayEvent, error) {
	var payload struct {
		Event   string `json:"event"`
		Payload struct {
			Order struct {
				Entity struct {
					ID    string          `json:"id"`
					Notes json.RawMessage `json:"notes"`
				} `json:"entity"`
			} `json:"order"`
			Payment struct {
				Entity struct {
					ID      string `json:"id"`
					OrderID string `json:"order_id"`
				} `json:"entity"`
			} `json:"payment"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	switch payload.Event {
	case "order.paid":
		ent := payload.Payload.Order.Entity
		if ent.ID == "" {
			return nil, ErrSkipEvent
		}
		return &RazorpayEvent{OrderID: ent.ID, Notes: decodeNotes(ent.Notes)}, nil
	case "payment.captured":
		ent := payload.Payload.Payment.Entity
		if ent.OrderID == "" {
			return nil, ErrSkipEvent
		}
		return &RazorpayEvent{OrderID: ent.OrderID}, nil
	default:
		return nil, ErrSkipEvent
	}
}

// decodeNotes tolerates Razorpay sending notes as an empty array instead of
// an object when none were set.
func decodeNotes(raw json.RawMessage) map[string]string {
	var notes map[string]string
	if err := json.Unmarshal(raw, &notes); err != nil {
		return nil
	}
	return notes
}
