package service

import (
	"time"

	"github.com/shopspring/decimal"

	"thinqscribe-payments/internal/currency"
	"thinqscribe-payments/internal/domain"
)

// sameMonth compares calendar month and year on now's clock. Payments made
// around midnight at a month boundary land in the viewer's local month,
// which may differ from UTC.
func sameMonth(t, now time.Time) bool {
	t = t.In(now.Location())
	return t.Year() == now.Year() && t.Month() == now.Month()
}

// MonthlySpending sums what was paid during now's calendar month. Nigerian
// viewers, and viewers whose location is unknown, see USD agreements
// converted at UsdToNgnRate; everyone else sees raw amounts.
func (e *PolicyEngine) MonthlySpending(agreements []domain.Agreement, viewer *domain.Location, now time.Time) float64 {
	toNaira := viewer == nil || viewer.IsNigerian()

	total := decimal.Zero
	for _, a := range agreements {
		if a.PaidAmount <= 0 {
			continue
		}

		var fallback *time.Time
		switch {
		case a.CompletedAt != nil:
			fallback = a.CompletedAt
		case !a.UpdatedAt.IsZero():
			updated := a.UpdatedAt
			fallback = &updated
		}

		sum := decimal.Zero
		if len(a.Installments) > 0 {
			for _, in := range a.Installments {
				if in.Status != domain.InstallmentPaid {
					continue
				}
				when := in.PaymentDate
				if when == nil {
					when = fallback
				}
				if when != nil && sameMonth(*when, now) {
					sum = sum.Add(decimal.NewFromFloat(in.Amount))
				}
			}
		} else if fallback != nil && sameMonth(*fallback, now) {
			sum = decimal.NewFromFloat(a.PaidAmount)
		}

		if toNaira && e.ResolveCurrency(a) == currency.USD {
			sum = e.converter.Convert(sum, currency.USD, currency.NGN)
		}
		total = total.Add(sum)
	}

	return total.InexactFloat64()
}
