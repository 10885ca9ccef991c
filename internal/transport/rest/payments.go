package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"thinqscribe-payments/internal/domain"
	"thinqscribe-payments/internal/service"
	"thinqscribe-payments/internal/transport/auth"
)

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	var in service.QuoteInput
	if err := decodeJSON(w, r, &in); err != nil {
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	q, err := h.svc.Checkout.Quote(r.Context(), userID, clientIP(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	Success(w, "", q)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	var in service.CheckoutInput
	if err := decodeJSON(w, r, &in); err != nil {
		ErrorBadRequest(w, "invalid JSON")
		return
	}
	if in.AgreementID == "" {
		ErrorValidation(w, "Validation failed", map[string]string{"agreementId": "agreementId is required"})
		return
	}

	res, err := h.svc.Checkout.Checkout(r.Context(), userID, clientIP(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	SuccessCreated(w, "Checkout created", res)
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	res, err := h.svc.Verification.Verify(r.Context(), userID, chi.URLParam(r, "reference"))
	if errors.Is(err, domain.ErrVerificationInconclusive) {
		SuccessAccepted(w, "awaiting_confirmation", res)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	Success(w, "", res)
}

func (h *Handler) selfReport(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	var req selfReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorBadRequest(w, "invalid JSON")
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.Verification.SelfReport(r.Context(), userID, chi.URLParam(r, "reference"), *req.Completed)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	Success(w, "", res)
}

func (h *Handler) classifyRedirect(w http.ResponseWriter, r *http.Request) {
	outcome, ref := service.ClassifyRedirect(r.URL.Query().Get("url"))
	Success(w, "", map[string]string{
		"outcome":   string(outcome),
		"reference": ref,
	})
}

func (h *Handler) paystackWebhook(w http.ResponseWriter, r *http.Request) {
	if h.svc.Webhook == nil {
		ErrorNotFound(w, "Not found")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		ErrorBadRequest(w, "invalid body")
		return
	}

	if err := h.svc.Webhook.Handle(r.Context(), body, r.Header.Get("x-paystack-signature")); err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			h.log.Warn("rejected paystack webhook", zap.String("ip", clientIP(r)))
		}
		h.writeError(w, r, err)
		return
	}
	Success(w, "ok", nil)
}
