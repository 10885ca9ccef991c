package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrForbidden                = errors.New("forbidden")
	ErrInvalidTransition        = errors.New("invalid agreement status transition")
	ErrOverpayment              = errors.New("payment amount exceeds agreement total")
	ErrInstallmentPaid          = errors.New("installment already paid")
	ErrNotPayable               = errors.New("agreement is not accepting payments")
	ErrQuoteSuperseded          = errors.New("quote superseded by a newer request")
	ErrVerificationInconclusive = errors.New("payment verification inconclusive")
)

// ValidationError collects per-field messages so forms can render them inline.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) Add(field, message string) {
	if _, exists := e.Fields[field]; exists {
		return
	}
	e.Fields[field] = message
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// OrNil returns nil when nothing was collected, so callers can return it directly.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
