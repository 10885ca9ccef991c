package domain

import "time"

type AgreementStatus string

const (
	AgreementPending   AgreementStatus = "pending"
	AgreementActive    AgreementStatus = "active"
	AgreementCompleted AgreementStatus = "completed"
	AgreementCancelled AgreementStatus = "cancelled"
)

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Completed and cancelled agreements are terminal.
func (s AgreementStatus) CanTransitionTo(next AgreementStatus) bool {
	switch s {
	case AgreementPending:
		return next == AgreementActive || next == AgreementCancelled
	case AgreementActive:
		return next == AgreementCompleted || next == AgreementCancelled
	default:
		return false
	}
}

type InstallmentStatus string

const (
	InstallmentPending    InstallmentStatus = "pending"
	InstallmentProcessing InstallmentStatus = "processing"
	InstallmentPaid       InstallmentStatus = "paid"
)

// PaymentPreferences is the loosely typed blob older clients attached to an
// agreement. Currency inference reads it when no currency was stamped.
type PaymentPreferences struct {
	Currency     string   `json:"currency,omitempty"`
	Gateway      string   `json:"gateway,omitempty"`
	NativeAmount *float64 `json:"nativeAmount,omitempty"`
	ExchangeRate *float64 `json:"exchangeRate,omitempty"`
}

type Installment struct {
	Index       int               `json:"index"`
	Amount      float64           `json:"amount"`
	DueDate     time.Time         `json:"dueDate"`
	Status      InstallmentStatus `json:"status"`
	PaymentDate *time.Time        `json:"paymentDate,omitempty"`
}

type Agreement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Subject     string `json:"subject"`
	Description string `json:"description,omitempty"`

	StudentID int64 `json:"studentId"`
	WriterID  int64 `json:"writerId"`

	TotalAmount float64 `json:"totalAmount"`
	PaidAmount  float64 `json:"paidAmount"`

	// Currency is stamped when the agreement is created. Rows written before
	// the column existed leave it empty.
	Currency string `json:"currency,omitempty"`

	Installments       []Installment      `json:"installments"`
	PaymentPreferences PaymentPreferences `json:"paymentPreferences"`
	Status             AgreementStatus    `json:"status"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (a Agreement) IsParticipant(userID int64) bool {
	return a.StudentID == userID || a.WriterID == userID
}

// Remaining is the unpaid part of the agreement total.
func (a Agreement) Remaining() float64 {
	r := a.TotalAmount - a.PaidAmount
	if r < 0 {
		return 0
	}
	return r
}

// Installment returns the installment at index, if any.
func (a Agreement) Installment(index int) (Installment, bool) {
	for _, in := range a.Installments {
		if in.Index == index {
			return in, true
		}
	}
	return Installment{}, false
}
