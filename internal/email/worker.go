package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/riverqueue/river"
)

type SendPasswordResetArgs struct {
	Email     string `json:"email"`
	ResetLink string `json:"reset_link"`
}

func (SendPasswordResetArgs) Kind() string { return "send_password_reset" }

// PasswordResetWorker delivers reset emails through the Resend API. Running
// it as a background job keeps SMTP latency and provider hiccups out of the
// forgot-password request path; River retries failed sends.
type PasswordResetWorker struct {
	river.WorkerDefaults[SendPasswordResetArgs]
	apiKey     string
	from       string
	httpClient *http.Client
	baseURL    string
	log        *slog.Logger
}

func NewPasswordResetWorker(apiKey, from string, log *slog.Logger) *PasswordResetWorker {
	if log == nil {
		log = slog.Default()
	}
	return &PasswordResetWorker{
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    "https://api.resend.com",
		log:        log,
	}
}

func (w *PasswordResetWorker) Work(ctx context.Context, job *river.Job[SendPasswordResetArgs]) error {
	args := job.Args
	if w.apiKey == "" {
		w.log.Info("email not configured, skipping password reset send", "to", args.Email)
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"from":    w.from,
		"to":      []string{args.Email},
		"subject": "Reset your SourceFlow password",
		"html": fmt.Sprintf(`<h2>Reset your password</h2>
<p>Click the link below to reset your SourceFlow password. This link expires in 1 hour.</p>
<p><a href=%q style="color:#0073b1">%s</a></p>
<p>If you didn't request this, you can ignore this email.</p>`, args.ResetLink, args.ResetLink),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("resend request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("resend returned status %d", resp.StatusCode)
	}
	return nil
}
