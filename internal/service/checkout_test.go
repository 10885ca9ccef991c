package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinqscribe-payments/internal/domain"
)

func activeAgreement(cur string) domain.Agreement {
	return domain.Agreement{
		ID:          "a1",
		Title:       "Lab report",
		StudentID:   studentID,
		WriterID:    writerID,
		TotalAmount: 200,
		Currency:    cur,
		Status:      domain.AgreementActive,
		Installments: []domain.Installment{
			{Index: 0, Amount: 100, Status: domain.InstallmentPending},
			{Index: 1, Amount: 100, Status: domain.InstallmentPending},
		},
	}
}

type checkoutFixture struct {
	svc      *CheckoutService
	payments *fakePayments
	paystack *fakeGateway
	stripe   *fakeGateway
}

func newCheckoutFixture(a domain.Agreement, loc domain.Location) checkoutFixture {
	f := checkoutFixture{
		payments: newFakePayments(),
		paystack: &fakeGateway{},
		stripe:   &fakeGateway{},
	}
	f.svc = NewCheckoutService(
		newFakeAgreements(a),
		f.payments,
		fakeUsers{studentID: {ID: studentID, Email: "student@example.com"}},
		stubDetector{loc: loc},
		map[domain.Gateway]PaymentGateway{
			domain.GatewayPaystack: f.paystack,
			domain.GatewayStripe:   f.stripe,
		},
		newEngine(),
		NewQuoteBook(),
		nil,
	)
	return f
}

func TestCheckoutService_QuoteUsesLocation(t *testing.T) {
	f := newCheckoutFixture(activeAgreement("ngn"), FallbackLocation(1500))

	q, err := f.svc.Quote(context.Background(), studentID, "41.58.1.1", QuoteInput{Amount: 10000})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), q.ID)
	assert.Equal(t, domain.GatewayPaystack, q.Config.Gateway)
	assert.Equal(t, "ngn", q.Config.Currency)
	assert.Equal(t, domain.MethodCard, q.Method)
	assert.InDelta(t, 150, q.Fees.Fee, 1e-9)
	assert.Equal(t, "₦10,150", q.Formatted)
}

func TestCheckoutService_QuoteValidation(t *testing.T) {
	f := newCheckoutFixture(activeAgreement("ngn"), FallbackLocation(1500))

	_, err := f.svc.Quote(context.Background(), studentID, "", QuoteInput{Amount: 0})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "amount")

	_, err = f.svc.Quote(context.Background(), studentID, "", QuoteInput{Amount: 5, Currency: "xyz"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "currency")
}

func TestQuoteBook_OnlyLatestGenerationCommits(t *testing.T) {
	b := NewQuoteBook()

	slow := b.Begin(1)
	fast := b.Begin(1)

	assert.True(t, b.Commit(1, fast, Quote{ID: fast, Amount: 20}))
	assert.False(t, b.Commit(1, slow, Quote{ID: slow, Amount: 10}))

	latest, ok := b.Latest(1)
	require.True(t, ok)
	assert.Equal(t, 20.0, latest.Amount)

	assert.NoError(t, b.Check(1, fast))
	assert.ErrorIs(t, b.Check(1, slow), domain.ErrQuoteSuperseded)

	// users do not interfere with each other
	other := b.Begin(2)
	assert.True(t, b.Commit(2, other, Quote{ID: other}))
	assert.NoError(t, b.Check(1, fast))
}

func TestQuoteBook_ConcurrentRequests(t *testing.T) {
	b := NewQuoteBook()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen := b.Begin(7)
			b.Commit(7, gen, Quote{ID: gen})
		}()
	}
	wg.Wait()

	latest, ok := b.Latest(7)
	require.True(t, ok)
	assert.Equal(t, uint64(50), latest.ID)
}

// blockingDetector holds detections for the "slow" address until release is closed.
type blockingDetector struct {
	release chan struct{}
	loc     domain.Location
}

func (d *blockingDetector) Detect(ctx context.Context, ip string) domain.Location {
	if ip == "slow" {
		<-d.release
	}
	return d.loc
}

func TestCheckoutService_StaleQuoteIsSuperseded(t *testing.T) {
	f := newCheckoutFixture(activeAgreement("ngn"), FallbackLocation(1500))
	det := &blockingDetector{release: make(chan struct{}), loc: FallbackLocation(1500)}
	f.svc.locations = det

	type result struct {
		q   Quote
		err error
	}
	slow := make(chan result, 1)
	go func() {
		q, err := f.svc.Quote(context.Background(), studentID, "slow", QuoteInput{Amount: 100})
		slow <- result{q, err}
	}()

	// wait until the slow request took its generation
	require.Eventually(t, func() bool {
		f.svc.quotes.mu.Lock()
		defer f.svc.quotes.mu.Unlock()
		return f.svc.quotes.gens[studentID] == 1
	}, time.Second, time.Millisecond)

	fast, err := f.svc.Quote(context.Background(), studentID, "", QuoteInput{Amount: 200})
	require.NoError(t, err)

	close(det.release)
	res := <-slow
	assert.ErrorIs(t, res.err, domain.ErrQuoteSuperseded)

	latest, _ := f.svc.quotes.Latest(studentID)
	assert.Equal(t, fast.ID, latest.ID)
	assert.InDelta(t, 200, latest.Amount, 1e-9)

	_, err = f.svc.Checkout(context.Background(), studentID, "", CheckoutInput{AgreementID: "a1", QuoteID: res.q.ID})
	assert.ErrorIs(t, err, domain.ErrQuoteSuperseded)
}

func TestCheckoutService_CheckoutNaira(t *testing.T) {
	a := activeAgreement("ngn")
	a.Installments[0].Amount = 10000
	a.TotalAmount = 10100
	f := newCheckoutFixture(a, FallbackLocation(1500))

	res, err := f.svc.Checkout(context.Background(), studentID, "41.58.1.1", CheckoutInput{
		AgreementID: "a1", InstallmentIndex: 0, Method: domain.MethodUSSD,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.Reference, "TS-"))
	assert.Equal(t, domain.GatewayPaystack, res.Gateway)
	assert.Equal(t, domain.MethodUSSD, res.Method)
	assert.InDelta(t, 10150, res.Total, 1e-9)
	assert.Equal(t, "https://checkout.test/"+res.Reference, res.CheckoutURL)

	require.Len(t, f.paystack.requests, 1)
	req := f.paystack.requests[0]
	assert.Equal(t, "student@example.com", req.Email)
	assert.Equal(t, "ngn", req.Currency)
	assert.Equal(t, "10150", req.Amount.String())
	assert.Empty(t, f.stripe.requests)

	p, err := f.payments.GetByReference(context.Background(), res.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.Equal(t, "sess_"+res.Reference, p.SessionID)
	assert.Equal(t, 0, p.InstallmentIndex)
}

func TestCheckoutService_CheckoutDollarsUsesStripe(t *testing.T) {
	f := newCheckoutFixture(activeAgreement("usd"), FallbackLocation(1500))

	res, err := f.svc.Checkout(context.Background(), studentID, "", CheckoutInput{AgreementID: "a1", InstallmentIndex: 1, Method: domain.MethodUSSD})
	require.NoError(t, err)

	assert.Equal(t, domain.GatewayStripe, res.Gateway)
	// ussd is not offered by stripe, so the first method is used
	assert.Equal(t, domain.MethodCard, res.Method)
	assert.InDelta(t, 102.9, res.Total, 1e-9)
	assert.Equal(t, "$102.90", res.Formatted)
	require.Len(t, f.stripe.requests, 1)
}

func TestCheckoutService_CheckoutRejections(t *testing.T) {
	ctx := context.Background()

	f := newCheckoutFixture(activeAgreement("usd"), FallbackLocation(1500))
	_, err := f.svc.Checkout(ctx, writerID, "", CheckoutInput{AgreementID: "a1"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Checkout(ctx, studentID, "", CheckoutInput{AgreementID: "a1", InstallmentIndex: 5})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	pending := activeAgreement("usd")
	pending.Status = domain.AgreementPending
	f = newCheckoutFixture(pending, FallbackLocation(1500))
	_, err = f.svc.Checkout(ctx, studentID, "", CheckoutInput{AgreementID: "a1"})
	assert.ErrorIs(t, err, domain.ErrNotPayable)

	paid := activeAgreement("usd")
	paid.Installments[0].Status = domain.InstallmentPaid
	f = newCheckoutFixture(paid, FallbackLocation(1500))
	_, err = f.svc.Checkout(ctx, studentID, "", CheckoutInput{AgreementID: "a1"})
	assert.ErrorIs(t, err, domain.ErrInstallmentPaid)
}

func TestCheckoutService_ChargesAtLeastOneMinorUnit(t *testing.T) {
	a := activeAgreement("usd")
	a.Installments[0].Amount = 0.001
	f := newCheckoutFixture(a, FallbackLocation(1500))

	res, err := f.svc.Checkout(context.Background(), studentID, "", CheckoutInput{AgreementID: "a1", InstallmentIndex: 0})
	require.NoError(t, err)

	assert.InDelta(t, 0.002, res.Amount, 1e-9)
	assert.InDelta(t, 0.01, res.Total, 1e-9)
	require.Len(t, f.stripe.requests, 1)
	assert.Equal(t, "0.01", f.stripe.requests[0].Amount.String())

	// verification compares the gateway amount against what was charged
	p, err := f.payments.GetByReference(context.Background(), res.Reference)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, p.Total, 1e-9)
}

func TestCheckoutService_RejectsInstallmentAboveRemaining(t *testing.T) {
	a := activeAgreement("usd")
	a.PaidAmount = 150
	f := newCheckoutFixture(a, FallbackLocation(1500))

	_, err := f.svc.Checkout(context.Background(), studentID, "", CheckoutInput{AgreementID: "a1", InstallmentIndex: 1})
	assert.ErrorIs(t, err, domain.ErrOverpayment)
	assert.Empty(t, f.stripe.requests)
}
