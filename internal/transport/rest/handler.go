package rest

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"thinqscribe-payments/internal/domain"
	"thinqscribe-payments/internal/service"
)

type AgreementService interface {
	Create(ctx context.Context, studentID int64, in service.CreateAgreementInput) (domain.Agreement, error)
	Get(ctx context.Context, userID int64, id string) (domain.Agreement, error)
	List(ctx context.Context, userID int64) ([]domain.Agreement, error)
	Accept(ctx context.Context, userID int64, id string) (domain.Agreement, error)
	Cancel(ctx context.Context, userID int64, id string) (domain.Agreement, error)
}

type CheckoutService interface {
	Quote(ctx context.Context, userID int64, ip string, in service.QuoteInput) (service.Quote, error)
	Checkout(ctx context.Context, userID int64, ip string, in service.CheckoutInput) (service.CheckoutResult, error)
}

type VerificationService interface {
	Verify(ctx context.Context, userID int64, reference string) (service.VerifyResult, error)
	SelfReport(ctx context.Context, userID int64, reference string, completed bool) (service.VerifyResult, error)
}

type WebhookProcessor interface {
	Handle(ctx context.Context, body []byte, signature string) error
}

type DashboardService interface {
	Get(ctx context.Context, userID int64, ip string) (service.Dashboard, error)
}

type StatementService interface {
	Start(ctx context.Context, userID int64, month time.Time) (string, error)
	Get(ctx context.Context, userID int64, id string) (service.StatementStatus, error)
	List(ctx context.Context, userID int64) ([]service.StatementStatus, error)
}

type LocationDetector interface {
	Detect(ctx context.Context, ip string) domain.Location
}

// Services groups everything the handlers call. A nil Webhook disables the
// Paystack endpoint and a nil Locations answers with the fallback location.
type Services struct {
	Agreements   AgreementService
	Checkout     CheckoutService
	Verification VerificationService
	Webhook      WebhookProcessor
	Dashboard    DashboardService
	Statements   StatementService
	Locations    LocationDetector
	Policy       domain.Policy
}

type Handler struct {
	svc Services
	log *zap.Logger
}

func NewHandler(svc Services, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

// InitRouterWithAuth wires public routes (health, policy, location,
// redirect classification, webhooks) and puts everything else behind
// authMiddleware.
func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		Success(w, "ok", nil)
	})
	r.Get("/config/policy", h.getPolicy)
	r.Get("/location", h.detectLocation)
	r.Get("/payments/redirect", h.classifyRedirect)
	r.Post("/webhooks/paystack", h.paystackWebhook)

	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}
		// Verification can poll for close to a minute.
		r.Use(middleware.Timeout(90 * time.Second))

		r.Route("/agreements", func(r chi.Router) {
			r.Get("/", h.listAgreements)
			r.Post("/", h.createAgreement)
			r.Get("/{id}", h.getAgreement)
			r.Post("/{id}/accept", h.acceptAgreement)
			r.Post("/{id}/cancel", h.cancelAgreement)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/quote", h.quote)
			r.Post("/checkout", h.checkout)
			r.Post("/{reference}/verify", h.verifyPayment)
			r.Post("/{reference}/self-report", h.selfReport)
		})

		r.Get("/dashboard", h.dashboard)

		r.Route("/statements", func(r chi.Router) {
			r.Get("/", h.listStatements)
			r.Post("/", h.startStatement)
			r.Get("/{id}", h.getStatement)
		})
	})

	return r
}

// clientIP relies on middleware.RealIP, which leaves a bare address in
// RemoteAddr when a proxy header is present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
