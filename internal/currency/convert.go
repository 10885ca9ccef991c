package currency

import "github.com/shopspring/decimal"

// Converter converts between USD and NGN with a single configured rate.
// Pairs it does not know are returned unchanged.
type Converter struct {
	UsdToNgn decimal.Decimal
}

func NewConverter(usdToNgn float64) Converter {
	return Converter{UsdToNgn: decimal.NewFromFloat(usdToNgn)}
}

func (c Converter) Convert(amount decimal.Decimal, from, to string) decimal.Decimal {
	from, to = Normalize(from), Normalize(to)
	switch {
	case from == to:
		return amount
	case from == USD && to == NGN:
		return amount.Mul(c.UsdToNgn)
	case from == NGN && to == USD && !c.UsdToNgn.IsZero():
		return amount.Div(c.UsdToNgn)
	default:
		return amount
	}
}
