package clients

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"thinqscribe-payments/internal/domain"
)

// CheckoutRequest is what both hosted-checkout gateways need to open a session.
type CheckoutRequest struct {
	Reference   string
	Email       string
	Description string
	Amount      decimal.Decimal
	Currency    string
	Method      domain.PaymentMethodID
	Metadata    map[string]string
}

type CheckoutSession struct {
	Reference   string
	SessionID   string
	CheckoutURL string
}

type GatewayVerification struct {
	Outcome  domain.VerificationOutcome
	Amount   decimal.Decimal
	Currency string
	PaidAt   *time.Time
	Raw      string
}

// GatewayError is a non-2xx answer from a payment gateway.
type GatewayError struct {
	Gateway    domain.Gateway
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway error (%d): %s", e.Gateway, e.StatusCode, e.Message)
}

// toMinorUnits converts a major-unit amount to kobo or cents.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
