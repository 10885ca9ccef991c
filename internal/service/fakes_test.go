package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"thinqscribe-payments/internal/clients"
	"thinqscribe-payments/internal/domain"
)

func ptr[T any](v T) *T { return &v }

// memCache mimics the Redis client in memory.
type memCache struct {
	mu   sync.Mutex
	kv   map[string]string
	sets map[string]map[string]bool
	err  error
}

func newMemCache() *memCache {
	return &memCache{kv: map[string]string{}, sets: map[string]map[string]bool{}}
}

func (c *memCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	switch v := value.(type) {
	case string:
		c.kv[key] = v
	case []byte:
		c.kv[key] = string(v)
	default:
		c.kv[key] = fmt.Sprint(v)
	}
	return nil
}

func (c *memCache) get(key string, del bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	v, ok := c.kv[key]
	if !ok {
		return "", clients.ErrCacheMiss
	}
	if del {
		delete(c.kv, key)
	}
	return v, nil
}

func (c *memCache) GetDel(ctx context.Context, key string) (string, error) {
	return c.get(key, true)
}

func (c *memCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}

func (c *memCache) GetJSON(ctx context.Context, key string, dst any) error {
	v, err := c.get(key, false)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(v), dst)
}

func (c *memCache) SAdd(ctx context.Context, key string, members ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets[key] == nil {
		c.sets[key] = map[string]bool{}
	}
	for _, m := range members {
		c.sets[key][fmt.Sprint(m)] = true
	}
	return nil
}

func (c *memCache) SMembers(ctx context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for m := range c.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.kv[key]
	return ok
}

type fakeAgreements struct {
	mu    sync.Mutex
	byID  map[string]domain.Agreement
	order []string
}

func newFakeAgreements(list ...domain.Agreement) *fakeAgreements {
	f := &fakeAgreements{byID: map[string]domain.Agreement{}}
	for _, a := range list {
		f.byID[a.ID] = a
		f.order = append(f.order, a.ID)
	}
	return f
}

func (f *fakeAgreements) Create(ctx context.Context, a *domain.Agreement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[a.ID] = *a
	f.order = append(f.order, a.ID)
	return nil
}

func (f *fakeAgreements) GetByID(ctx context.Context, id string) (domain.Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return domain.Agreement{}, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAgreements) ListForUser(ctx context.Context, userID int64) ([]domain.Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Agreement
	for _, id := range f.order {
		if a := f.byID[id]; a.IsParticipant(userID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAgreements) ListWithoutCurrency(ctx context.Context, limit int) ([]domain.Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Agreement
	for _, id := range f.order {
		if a := f.byID[id]; a.Currency == "" && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAgreements) SetCurrency(ctx context.Context, id, currency string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.byID[id]
	a.Currency = currency
	f.byID[id] = a
	return nil
}

func (f *fakeAgreements) UpdateStatus(ctx context.Context, id string, from, to domain.AgreementStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok || a.Status != from {
		return domain.ErrInvalidTransition
	}
	a.Status = to
	f.byID[id] = a
	return nil
}

func (f *fakeAgreements) MarkInstallmentProcessing(ctx context.Context, id string, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.byID[id]
	for i := range a.Installments {
		if a.Installments[i].Index == index && a.Installments[i].Status == domain.InstallmentPending {
			a.Installments[i].Status = domain.InstallmentProcessing
		}
	}
	f.byID[id] = a
	return nil
}

func (f *fakeAgreements) RecordInstallmentPayment(ctx context.Context, id string, index int, paidAt time.Time, tolerance float64) (domain.Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return domain.Agreement{}, domain.ErrNotFound
	}
	if a.Status == domain.AgreementCancelled {
		return domain.Agreement{}, domain.ErrNotPayable
	}
	installments := append([]domain.Installment(nil), a.Installments...)
	allPaid := true
	found := false
	for i := range installments {
		if installments[i].Index == index {
			found = true
			if installments[i].Status == domain.InstallmentPaid {
				return domain.Agreement{}, domain.ErrInstallmentPaid
			}
			if a.PaidAmount+installments[i].Amount > a.TotalAmount+tolerance {
				return domain.Agreement{}, domain.ErrOverpayment
			}
			installments[i].Status = domain.InstallmentPaid
			installments[i].PaymentDate = &paidAt
			a.PaidAmount += installments[i].Amount
		}
		if installments[i].Status != domain.InstallmentPaid {
			allPaid = false
		}
	}
	if !found {
		return domain.Agreement{}, domain.ErrNotFound
	}
	a.Installments = installments
	if allPaid && a.Status == domain.AgreementActive {
		a.Status = domain.AgreementCompleted
		a.CompletedAt = &paidAt
	}
	f.byID[id] = a
	return a, nil
}

type fakePayments struct {
	mu    sync.Mutex
	byRef map[string]domain.Payment
}

func newFakePayments(list ...domain.Payment) *fakePayments {
	f := &fakePayments{byRef: map[string]domain.Payment{}}
	for _, p := range list {
		f.byRef[p.Reference] = p
	}
	return f
}

func (f *fakePayments) Create(ctx context.Context, p domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byRef[p.Reference] = p
	return nil
}

func (f *fakePayments) GetByReference(ctx context.Context, reference string) (domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byRef[reference]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakePayments) UpdateStatus(ctx context.Context, reference string, status domain.PaymentStatus, verifiedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byRef[reference]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	p.VerifiedAt = verifiedAt
	f.byRef[reference] = p
	return nil
}

type fakeUsers map[int64]domain.User

func (f fakeUsers) GetByID(ctx context.Context, id int64) (domain.User, error) {
	u, ok := f[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

type fakeGeo struct {
	rec   clients.GeoRecord
	err   error
	calls int
}

func (g *fakeGeo) Lookup(ctx context.Context, ip string) (clients.GeoRecord, error) {
	g.calls++
	return g.rec, g.err
}

type stubDetector struct {
	loc domain.Location
}

func (d stubDetector) Detect(ctx context.Context, ip string) domain.Location {
	return d.loc
}

type fakeGateway struct {
	mu        sync.Mutex
	requests  []clients.CheckoutRequest
	outcomes  []domain.VerificationOutcome
	verifyErr error
	amount    float64
	currency  string
	verifies  int
}

func (g *fakeGateway) Initialize(ctx context.Context, req clients.CheckoutRequest) (clients.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return clients.CheckoutSession{
		Reference:   req.Reference,
		SessionID:   "sess_" + req.Reference,
		CheckoutURL: "https://checkout.test/" + req.Reference,
	}, nil
}

// Verify replays outcomes in order and repeats the last one.
func (g *fakeGateway) Verify(ctx context.Context, p domain.Payment) (clients.GatewayVerification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifies++
	if g.verifyErr != nil {
		return clients.GatewayVerification{}, g.verifyErr
	}
	outcome := domain.OutcomePending
	if n := len(g.outcomes); n > 0 {
		idx := g.verifies - 1
		if idx >= n {
			idx = n - 1
		}
		outcome = g.outcomes[idx]
	}
	return clients.GatewayVerification{Outcome: outcome, Amount: decimalOf(g.amount), Currency: g.currency}, nil
}

type notification struct {
	Event  string
	UserID int64
	Data   any
}

type recordingNotifier struct {
	mu        sync.Mutex
	events    []notification
	connected []int64
}

func (n *recordingNotifier) add(event string, userID int64, data any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{Event: event, UserID: userID, Data: data})
	return nil
}

func (n *recordingNotifier) NotifyPaymentVerified(ctx context.Context, userID int64, reference, agreementID string, amount float64, currency string) error {
	return n.add(clients.EventPaymentVerified, userID, reference)
}

func (n *recordingNotifier) NotifyPaymentFailed(ctx context.Context, userID int64, reference, reason string) error {
	return n.add(clients.EventPaymentFailed, userID, reason)
}

func (n *recordingNotifier) NotifyAgreementUpdated(ctx context.Context, userID int64, agreementID, status string) error {
	return n.add(clients.EventAgreementUpdated, userID, status)
}

func (n *recordingNotifier) NotifyDashboard(ctx context.Context, userID int64, dashboard any) error {
	return n.add(clients.EventDashboardUpdate, userID, dashboard)
}

func (n *recordingNotifier) NotifyStatementReady(ctx context.Context, userID int64, statementID, url, filename string) error {
	return n.add(clients.EventStatementReady, userID, url)
}

func (n *recordingNotifier) NotifyStatementFailed(ctx context.Context, userID int64, statementID, errMsg string) error {
	return n.add(clients.EventStatementFailed, userID, errMsg)
}

func (n *recordingNotifier) ConnectedUsers() []int64 {
	return n.connected
}

func (n *recordingNotifier) eventsFor(event string) []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification
	for _, e := range n.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func decimalOf(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
