package service

import (
	"strconv"

	"thinqscribe-payments/internal/currency"
	"thinqscribe-payments/internal/domain"
)

// PolicyEngine evaluates the payment rules (currency inference, gateway and
// fee selection, amount finalisation, spending aggregation) against one
// Policy. Every method is pure.
type PolicyEngine struct {
	policy    domain.Policy
	converter currency.Converter
}

func NewPolicyEngine(p domain.Policy) *PolicyEngine {
	return &PolicyEngine{
		policy:    p,
		converter: currency.NewConverter(p.UsdToNgnRate),
	}
}

func (e *PolicyEngine) Policy() domain.Policy {
	return e.policy
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
