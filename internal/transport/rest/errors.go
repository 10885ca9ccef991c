package rest

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"thinqscribe-payments/internal/domain"
	"thinqscribe-payments/internal/service"
)

const genericMessage = "Something went wrong. Please try again."

// HumanMessage turns an error into text that can be shown to a payer.
// Matching is by substring on the lower-cased error text.
func HumanMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "network"):
		return "Network error. Please check your connection and try again."
	case strings.Contains(msg, "auth"), strings.Contains(msg, "token"):
		return "Your session has expired. Please sign in again."
	case strings.Contains(msg, "amount"):
		return "The payment amount is invalid."
	case strings.Contains(msg, "currency"):
		return "This currency is not supported."
	default:
		return genericMessage
	}
}

// writeError maps domain errors onto the response envelope. Anything it
// does not recognise is logged and answered with a 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		ErrorValidation(w, "Validation failed", verr.Fields)
	case errors.Is(err, domain.ErrNotFound):
		ErrorNotFound(w, "Not found")
	case errors.Is(err, domain.ErrForbidden):
		ErrorForbidden(w, "You do not have access to this resource")
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotPayable),
		errors.Is(err, domain.ErrInstallmentPaid),
		errors.Is(err, domain.ErrOverpayment),
		errors.Is(err, domain.ErrQuoteSuperseded):
		ErrorConflict(w, err.Error())
	case errors.Is(err, service.ErrInvalidSignature):
		ErrorUnauthorized(w, "invalid signature")
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		ErrorInternal(w, HumanMessage(err))
	}
}
