package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"thinqscribe-payments/internal/currency"
	"thinqscribe-payments/internal/domain"
)

// InferCurrency guesses the currency of an agreement from its payment
// preferences. First match wins:
//
//  1. preferences say ngn
//  2. preferences name the paystack gateway
//  3. a native amount differs from the total while the exchange rate is 1
//  4. a native amount above NativeAmountThreshold
//  5. the stated currency, else usd
//
// New agreements are stamped with a currency at creation, so this only runs
// for legacy rows (see ResolveCurrency and CurrencyBackfiller).
func (e *PolicyEngine) InferCurrency(a domain.Agreement) string {
	p := a.PaymentPreferences
	stated := currency.Normalize(p.Currency)

	if stated == currency.NGN {
		return currency.NGN
	}
	if strings.EqualFold(strings.TrimSpace(p.Gateway), string(domain.GatewayPaystack)) {
		return currency.NGN
	}
	if p.NativeAmount != nil && *p.NativeAmount != a.TotalAmount && p.ExchangeRate != nil && *p.ExchangeRate == 1 {
		return currency.NGN
	}
	if p.NativeAmount != nil && *p.NativeAmount > e.policy.NativeAmountThreshold {
		return currency.NGN
	}
	if stated != "" {
		return stated
	}
	return currency.Default
}

// ResolveCurrency prefers the stamped currency and only infers for rows
// that predate stamping.
func (e *PolicyEngine) ResolveCurrency(a domain.Agreement) string {
	if c := currency.Normalize(a.Currency); c != "" {
		return c
	}
	return e.InferCurrency(a)
}

type backfillStore interface {
	ListWithoutCurrency(ctx context.Context, limit int) ([]domain.Agreement, error)
	SetCurrency(ctx context.Context, id, currency string) error
}

// CurrencyBackfiller stamps inferred currencies onto legacy agreements. It
// is a one-shot migration, not part of any request path.
type CurrencyBackfiller struct {
	store  backfillStore
	engine *PolicyEngine
	log    *zap.Logger
}

func NewCurrencyBackfiller(store backfillStore, engine *PolicyEngine, log *zap.Logger) *CurrencyBackfiller {
	if log == nil {
		log = zap.NewNop()
	}
	return &CurrencyBackfiller{store: store, engine: engine, log: log}
}

// Run processes legacy agreements in batches and returns how many were stamped.
func (b *CurrencyBackfiller) Run(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	stamped := 0
	seen := map[string]bool{}
	for {
		batch, err := b.store.ListWithoutCurrency(ctx, batchSize)
		if err != nil {
			return stamped, err
		}

		progressed := false
		for _, a := range batch {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			progressed = true

			cur := b.engine.InferCurrency(a)
			if err := b.store.SetCurrency(ctx, a.ID, cur); err != nil {
				return stamped, err
			}
			stamped++
			b.log.Debug("stamped agreement currency", zap.String("agreement_id", a.ID), zap.String("currency", cur))
		}

		if !progressed || len(batch) < batchSize {
			b.log.Info("currency backfill finished", zap.Int("stamped", stamped))
			return stamped, nil
		}
		if err := ctx.Err(); err != nil {
			return stamped, err
		}
	}
}
