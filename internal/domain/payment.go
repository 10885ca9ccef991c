package domain

import "time"

type Gateway string

const (
	GatewayPaystack Gateway = "paystack"
	GatewayStripe   Gateway = "stripe"
)

type PaymentMethodID string

const (
	MethodCard           PaymentMethodID = "card"
	MethodBankTransfer   PaymentMethodID = "bank_transfer"
	MethodMobileMoney    PaymentMethodID = "mobile_money"
	MethodUSSD           PaymentMethodID = "ussd"
	MethodQR             PaymentMethodID = "qr"
	MethodDigitalWallets PaymentMethodID = "digital_wallets"
)

type PaymentMethod struct {
	ID       PaymentMethodID `json:"id"`
	Name     string          `json:"name"`
	FeeLabel string          `json:"fee"`
	Time     string          `json:"time"`
}

// PaymentConfig is derived per request and never persisted.
type PaymentConfig struct {
	Gateway        Gateway         `json:"gateway"`
	Currency       string          `json:"currency"`
	Amount         float64         `json:"amount"`
	PaymentMethods []PaymentMethod `json:"paymentMethods"`
}

type FeeBreakdown struct {
	Fee   float64 `json:"fee"`
	Total float64 `json:"total"`
	Rate  float64 `json:"rate"`
}

type PaymentStatus string

const (
	PaymentPending      PaymentStatus = "pending"
	PaymentSucceeded    PaymentStatus = "success"
	PaymentFailed       PaymentStatus = "failed"
	PaymentSelfReported PaymentStatus = "self_reported"
	// PaymentRefundDue is money collected for an agreement that was
	// cancelled while the payment was in flight. It is never applied.
	PaymentRefundDue PaymentStatus = "refund_due"
)

// Payment is one checkout attempt against an agreement installment.
type Payment struct {
	Reference        string
	AgreementID      string
	InstallmentIndex int
	UserID           int64
	Gateway          Gateway
	Method           PaymentMethodID
	Currency         string
	Amount           float64
	Fee              float64
	Total            float64
	Status           PaymentStatus
	CheckoutURL      string
	SessionID        string

	CreatedAt  time.Time
	VerifiedAt *time.Time
}

// VerificationOutcome is what a single verification strategy learned.
type VerificationOutcome string

const (
	OutcomePending VerificationOutcome = "pending"
	OutcomeSuccess VerificationOutcome = "success"
	OutcomeFailed  VerificationOutcome = "failed"
)
