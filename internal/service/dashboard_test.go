package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinqscribe-payments/internal/clients"
	"thinqscribe-payments/internal/domain"
)

var dashboardNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func dashboardAgreements() *fakeAgreements {
	paid := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	lastMonth := time.Date(2026, time.February, 20, 9, 0, 0, 0, time.UTC)

	return newFakeAgreements(
		domain.Agreement{
			ID: "a1", StudentID: studentID, WriterID: writerID,
			TotalAmount: 300, PaidAmount: 200, Currency: "ngn", Status: domain.AgreementActive,
			Installments: []domain.Installment{
				{Index: 0, Amount: 100, Status: domain.InstallmentPaid, PaymentDate: &lastMonth},
				{Index: 1, Amount: 100, Status: domain.InstallmentPaid, PaymentDate: &paid},
				{Index: 2, Amount: 100, Status: domain.InstallmentPending},
			},
		},
		// the user is the writer here, so nothing counts as spending
		domain.Agreement{
			ID: "a2", StudentID: 30, WriterID: studentID,
			TotalAmount: 500, PaidAmount: 500, Currency: "ngn", Status: domain.AgreementCompleted,
			Installments: []domain.Installment{
				{Index: 0, Amount: 500, Status: domain.InstallmentPaid, PaymentDate: &paid},
			},
		},
		domain.Agreement{
			ID: "a3", StudentID: studentID, WriterID: writerID,
			TotalAmount: 50, Currency: "usd", Status: domain.AgreementPending,
		},
	)
}

func newDashboardFixture(loc domain.Location) (*DashboardService, *memCache, *recordingNotifier) {
	cache := newMemCache()
	notifier := &recordingNotifier{}
	svc := NewDashboardService(
		dashboardAgreements(),
		stubDetector{loc: loc},
		NewPolicyEngine(domain.DefaultPolicy()),
		cache,
		notifier,
		nil,
	)
	svc.now = func() time.Time { return dashboardNow }
	return svc, cache, notifier
}

func TestDashboardService_Get(t *testing.T) {
	svc, _, _ := newDashboardFixture(FallbackLocation(0))

	d, err := svc.Get(context.Background(), studentID, "102.89.0.1")
	require.NoError(t, err)

	assert.Equal(t, studentID, d.UserID)
	assert.Equal(t, 3, d.TotalAgreements)
	assert.Equal(t, 1, d.Counts[domain.AgreementActive])
	assert.Equal(t, 1, d.Counts[domain.AgreementCompleted])
	assert.Equal(t, 1, d.Counts[domain.AgreementPending])
	assert.Equal(t, 0, d.Counts[domain.AgreementCancelled])

	assert.InDelta(t, 100, d.MonthlySpending, 1e-9)
	assert.Equal(t, "ngn", d.Currency)
	assert.NotEmpty(t, d.MonthlySpendingFormatted)
	require.NotNil(t, d.Location)
	assert.Equal(t, "ng", d.Location.CountryCode)
	assert.False(t, d.ForceRefresh)
}

func TestDashboardService_ForeignViewerSeesDollars(t *testing.T) {
	svc, _, _ := newDashboardFixture(domain.Location{CountryCode: "us", Currency: "usd"})

	d, err := svc.Get(context.Background(), studentID, "8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "usd", d.Currency)
	assert.InDelta(t, 100, d.MonthlySpending, 1e-9)
}

func TestDashboardService_RefreshFlagIsConsumedOnce(t *testing.T) {
	svc, cache, _ := newDashboardFixture(FallbackLocation(0))
	ctx := context.Background()

	require.NoError(t, cache.SetJSON(ctx, refreshFlagKey(studentID), refreshFlag{Reason: "payment_success"}, time.Hour))

	d, err := svc.Get(ctx, studentID, "102.89.0.1")
	require.NoError(t, err)
	assert.True(t, d.ForceRefresh)

	d, err = svc.Get(ctx, studentID, "102.89.0.1")
	require.NoError(t, err)
	assert.False(t, d.ForceRefresh)
}

func TestDashboardService_RefreshPushesToConnectedUsers(t *testing.T) {
	svc, _, notifier := newDashboardFixture(domain.Location{CountryCode: "us", Currency: "usd"})
	ctx := context.Background()

	// an earlier request remembers the viewer's location
	_, err := svc.Get(ctx, studentID, "8.8.8.8")
	require.NoError(t, err)

	notifier.connected = []int64{studentID, 99}
	svc.Refresh(ctx)

	pushed := notifier.eventsFor(clients.EventDashboardUpdate)
	require.Len(t, pushed, 2)

	first, ok := pushed[0].Data.(Dashboard)
	require.True(t, ok)
	assert.Equal(t, studentID, first.UserID)
	assert.Equal(t, "usd", first.Currency)

	// no remembered location means an unknown viewer, shown in naira
	second := pushed[1].Data.(Dashboard)
	assert.Equal(t, int64(99), second.UserID)
	assert.Equal(t, "ngn", second.Currency)
	assert.Zero(t, second.TotalAgreements)
}

func TestDashboardService_RunRefresherStops(t *testing.T) {
	svc, _, _ := newDashboardFixture(FallbackLocation(0))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.RunRefresher(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
}
