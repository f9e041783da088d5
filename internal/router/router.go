package router

import (
	"net/http"

	"github.com/sourceflow/backend/internal/auth"
	"github.com/sourceflow/backend/internal/feedback"
	"github.com/sourceflow/backend/internal/jobs"
	"github.com/sourceflow/backend/internal/payments"
	"github.com/sourceflow/backend/internal/scan"
	"github.com/sourceflow/backend/internal/shortlist"
	"github.com/sourceflow/backend/internal/user"
)

// New builds the API mux. requireAuth wraps every route that needs an
// authenticated account; webhooks and the public catalog stay outside it.
// optionalAuth attaches the account when a token is present but lets
// anonymous requests through.
func New(
	authHandler *auth.Handler,
	jobsHandler *jobs.Handler,
	scanHandler *scan.Handler,
	paymentsHandler *payments.Handler,
	shortlistHandler *shortlist.Handler,
	userHandler *user.Handler,
	feedbackHandler *feedback.Handler,
	requireAuth func(http.Handler) http.Handler,
	optionalAuth func(http.Handler) http.Handler,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("POST /auth/forgot-password", authHandler.ForgotPassword)
	mux.HandleFunc("POST /auth/reset-password", authHandler.ResetPassword)

	mux.HandleFunc("GET /payments/plans", paymentsHandler.Plans)
	mux.HandleFunc("GET /payments/client-config", paymentsHandler.ClientConfig)
	mux.HandleFunc("POST /payments/razorpay-webhook", paymentsHandler.RazorpayWebhook)
	mux.HandleFunc("POST /payments/paddle-webhook", paymentsHandler.PaddleWebhook)

	mux.Handle("POST /feedback", optionalAuth(http.HandlerFunc(feedbackHandler.Submit)))
	mux.HandleFunc("GET /feedback", feedbackHandler.List)

	protected := func(pattern string, hf http.HandlerFunc) {
		mux.Handle(pattern, requireAuth(hf))
	}

	protected("POST /payments/create-order", paymentsHandler.CreateOrder)
	protected("POST /payments/verify-razorpay", paymentsHandler.VerifyRazorpay)
	protected("POST /payments/verify-paddle", paymentsHandler.VerifyPaddle)
	protected("POST /payments/simulate-razorpay-webhook", paymentsHandler.SimulateRazorpayWebhook)

	protected("POST /jobs", jobsHandler.CreateJob)
	protected("GET /jobs", jobsHandler.ListJobs)
	protected("GET /jobs/{id}", jobsHandler.GetJob)

	protected("POST /analysis/scan", scanHandler.Scan)

	protected("POST /shortlist", shortlistHandler.Shortlist)
	protected("GET /shortlist/{jobId}", shortlistHandler.ListByJob)

	protected("GET /user/me", userHandler.GetMe)
	protected("GET /user/ledger", userHandler.ListLedger)

	return mux
}
