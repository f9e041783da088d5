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

// PaddleClient talks to the Paddle Billing API for USD subscription
// checkouts. Transactions carry custom_data {account_id, plan_id, credits}
// the same way Razorpay orders carry notes.
type PaddleClient struct {
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
	baseURL       string
}

func NewPaddleClient(apiKey, webhookSecret string, sandbox bool) *PaddleClient {
	base := "https://api.paddle.com"
	if sandbox {
		base = "https://sandbox-api.paddle.com"
	}
	return &PaddleClient{
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		baseURL:       base,
	}
}

func (c *PaddleClient) Configured() bool { return c.apiKey != "" }

type PaddleCheckout struct {
	TransactionID string
	URL           string
}

// CreateCheckout creates a transaction against a catalog price and returns
// the hosted checkout URL.
func (c *PaddleClient) CreateCheckout(ctx context.Context, accountID, planID uuid.UUID, priceID, currency string, credits int) (*PaddleCheckout, error) {
	body, err := json.Marshal(map[string]any{
		"items": []map[string]any{{"price_id": priceID, "quantity": 1}},
		"custom_data": map[string]string{
			"account_id": accountID.String(),
			"plan_id":    planID.String(),
			"credits":    strconv.Itoa(credits),
		},
		"currency_code":   currency,
		"collection_mode": "automatic",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paddle create transaction: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paddle create transaction: status %d", resp.StatusCode)
	}

	var out struct {
		Data struct {
			ID       string `json:"id"`
			Checkout struct {
				URL string `json:"url"`
			} `json:"checkout"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("paddle create transaction: decode: %w", err)
	}
	url := out.Data.Checkout.URL
	if url == "" {
		url = strings.Replace(c.baseURL, "-api", "", 1) + "/checkout/custom?transaction_id=" + out.Data.ID
	}
	return &PaddleCheckout{TransactionID: out.Data.ID, URL: url}, nil
}

type PaddleTransaction struct {
	ID         string
	Status     string
	CustomData map[string]string
}

// FetchTransaction is the verify-path lookup: the client hands us a
// transaction id and we ask Paddle whether it really completed.
func (c *PaddleClient) FetchTransaction(ctx context.Context, txnID string) (*PaddleTransaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions/"+txnID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paddle fetch transaction: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paddle fetch transaction %s: status %d", txnID, resp.StatusCode)
	}

	var out struct {
		Data struct {
			ID         string            `json:"id"`
			Status     string            `json:"status"`
			CustomData map[string]string `json:"custom_data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("paddle fetch transaction: decode: %w", err)
	}
	return &PaddleTransaction{ID: out.Data.ID, Status: out.Data.Status, CustomData: out.Data.CustomData}, nil
}

// VerifySignature checks the Paddle-Signature header ("ts=...;h1=..."):
// hex HMAC-SHA256 over "{ts}:{body}".
func (c *PaddleClient) VerifySignature(body []byte, signature string) bool {
	if c.webhookSecret == "" || signature == "" {
		return false
	}
	var ts, h1 string
	for _, part := range strings.Split(signature, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			ts = strings.TrimSpace(v)
		case "h1":
			h1 = strings.TrimSpace(v)
		}
	}
	if ts == "" || h1 == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(h1)))
}

// PaddleEvent is a parsed transaction.completed webhook delivery.
type PaddleEvent struct {
	TransactionID string
	CustomData    map[string]string
}

func ParsePaddleWebhook(body []byte) (*PaddleEvent, error) {
	var payload struct {
		EventType string `json:"event_type"`
		Data      struct {
			ID         string            `json:"id"`
			CustomData map[string]string `json:"custom_data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.EventType != "transaction.completed" || payload.Data.ID == "" {
		return nil, ErrSkipEvent
	}
	return &PaddleEvent{TransactionID: payload.Data.ID, CustomData: payload.Data.CustomData}, nil
}
