package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"thinqscribe-payments/internal/currency"
	"thinqscribe-payments/internal/domain"
)

type methodSpec struct {
	id        domain.PaymentMethodID
	name      string
	time      string
	countries map[string]bool // nil means everywhere
}

var gatewayMethods = map[domain.Gateway][]methodSpec{
	domain.GatewayPaystack: {
		{id: domain.MethodCard, name: "Card", time: "Instant"},
		{id: domain.MethodBankTransfer, name: "Bank Transfer", time: "Instant", countries: set("ng", "gh", "za", "ke")},
		{id: domain.MethodUSSD, name: "USSD", time: "Instant", countries: set("ng")},
		{id: domain.MethodQR, name: "QR Code", time: "Instant", countries: set("ng", "za")},
		{id: domain.MethodMobileMoney, name: "Mobile Money", time: "1-5 minutes", countries: set("gh", "ke", "ug", "rw", "tz")},
	},
	domain.GatewayStripe: {
		{id: domain.MethodCard, name: "Card", time: "Instant"},
		{id: domain.MethodDigitalWallets, name: "Apple Pay / Google Pay", time: "Instant"},
	},
}

// feeRates are the processing percentages charged per gateway and method.
var feeRates = map[domain.Gateway]map[domain.PaymentMethodID]float64{
	domain.GatewayPaystack: {
		domain.MethodCard:         0.015,
		domain.MethodBankTransfer: 0.010,
		domain.MethodUSSD:         0.015,
		domain.MethodQR:           0.015,
		domain.MethodMobileMoney:  0.015,
	},
	domain.GatewayStripe: {
		domain.MethodCard:           0.029,
		domain.MethodDigitalWallets: 0.029,
	},
}

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// SelectGateway picks stripe for usd and paystack for any other currency.
// An empty currency defers to the location's recommendation.
func SelectGateway(cur string, loc *domain.Location) domain.Gateway {
	switch currency.Normalize(cur) {
	case currency.USD:
		return domain.GatewayStripe
	case "":
		if loc == nil {
			fb := FallbackLocation(0)
			loc = &fb
		}
		return loc.RecommendedGateway
	default:
		return domain.GatewayPaystack
	}
}

func rateFor(gw domain.Gateway, method domain.PaymentMethodID) float64 {
	rates, ok := feeRates[gw]
	if !ok {
		return 0
	}
	if r, ok := rates[method]; ok {
		return r
	}
	return rates[domain.MethodCard]
}

// PaymentMethods lists the gateway's methods available in loc's country.
func PaymentMethods(gw domain.Gateway, loc *domain.Location) []domain.PaymentMethod {
	country := ""
	if loc != nil {
		country = loc.CountryCode
	}

	var out []domain.PaymentMethod
	for _, m := range gatewayMethods[gw] {
		if m.countries != nil && !m.countries[country] {
			continue
		}
		out = append(out, domain.PaymentMethod{
			ID:       m.id,
			Name:     m.name,
			FeeLabel: fmt.Sprintf("%.1f%%", rateFor(gw, m.id)*100),
			Time:     m.time,
		})
	}
	return out
}

// PaymentConfig derives gateway, currency and methods for a payment of
// amount. Without a currency, the location's currency and gateway are used.
func (e *PolicyEngine) PaymentConfig(amount float64, cur string, loc *domain.Location) domain.PaymentConfig {
	if loc == nil {
		fb := FallbackLocation(e.policy.UsdToNgnRate)
		loc = &fb
	}

	cur = currency.Normalize(cur)
	gw := SelectGateway(cur, loc)
	if cur == "" {
		cur = loc.Currency
	}

	return domain.PaymentConfig{
		Gateway:        gw,
		Currency:       cur,
		Amount:         amount,
		PaymentMethods: PaymentMethods(gw, loc),
	}
}

// CalculateFees applies the gateway/method rate to amount. The fee is
// rounded to the currency's display precision and total is amount + fee.
func (e *PolicyEngine) CalculateFees(amount float64, cur string, gw domain.Gateway, method domain.PaymentMethodID) domain.FeeBreakdown {
	rate := rateFor(gw, method)
	a := decimal.NewFromFloat(amount)
	fee := currency.Round(a.Mul(decimal.NewFromFloat(rate)), cur)

	return domain.FeeBreakdown{
		Fee:   fee.InexactFloat64(),
		Total: a.Add(fee).InexactFloat64(),
		Rate:  rate,
	}
}

// FinalizeAmount rounds to AmountPrecision decimals and lifts anything
// below MinimumCharge up to it. Amounts are never rejected here.
func (e *PolicyEngine) FinalizeAmount(amount float64) float64 {
	d := decimal.NewFromFloat(amount).Round(e.policy.AmountPrecision)
	floor := decimal.NewFromFloat(e.policy.MinimumCharge)
	if d.LessThan(floor) {
		d = floor
	}
	return d.InexactFloat64()
}

// gatewayMinorUnit is one kobo or one cent, the smallest charge Paystack
// and Stripe accept.
var gatewayMinorUnit = decimal.New(1, -2)

// GatewayCharge is what a gateway is asked to collect: total rounded to
// minor units, never below one minor unit.
func (e *PolicyEngine) GatewayCharge(total float64) decimal.Decimal {
	charge := decimal.NewFromFloat(total).Round(2)
	if charge.LessThan(gatewayMinorUnit) {
		return gatewayMinorUnit
	}
	return charge
}
