package service

import (
	"sync"
	"time"

	"thinqscribe-payments/internal/domain"
)

// Quote is a priced payment configuration for one user.
type Quote struct {
	ID           uint64                 `json:"id"`
	Config       domain.PaymentConfig   `json:"config"`
	Method       domain.PaymentMethodID `json:"method"`
	Amount       float64                `json:"amount"`
	Fees         domain.FeeBreakdown    `json:"fees"`
	Formatted    string                 `json:"formatted"`
	FormattedFee string                 `json:"formattedFee"`
	Location     domain.Location        `json:"location"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// QuoteBook tracks the latest quote request per user. Each request takes a
// new generation before it starts detecting and pricing; a result is only
// stored when no newer request started in the meantime, so a slow response
// can never overwrite a faster, newer one.
type QuoteBook struct {
	mu     sync.Mutex
	gens   map[int64]uint64
	latest map[int64]Quote
}

func NewQuoteBook() *QuoteBook {
	return &QuoteBook{
		gens:   map[int64]uint64{},
		latest: map[int64]Quote{},
	}
}

// Begin issues the next generation for userID.
func (b *QuoteBook) Begin(userID int64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gens[userID]++
	return b.gens[userID]
}

// Commit stores q if gen is still the newest generation for userID.
func (b *QuoteBook) Commit(userID int64, gen uint64, q Quote) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gens[userID] != gen {
		return false
	}
	b.latest[userID] = q
	return true
}

// Check fails with ErrQuoteSuperseded unless gen is the newest committed quote.
func (b *QuoteBook) Check(userID int64, gen uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.latest[userID]
	if !ok || q.ID != gen || b.gens[userID] != gen {
		return domain.ErrQuoteSuperseded
	}
	return nil
}

func (b *QuoteBook) Latest(userID int64) (Quote, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.latest[userID]
	return q, ok
}
