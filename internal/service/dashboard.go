package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"thinqscribe-payments/internal/clients"
	"thinqscribe-payments/internal/currency"
	"thinqscribe-payments/internal/domain"
)

type Dashboard struct {
	UserID                   int64                          `json:"userId"`
	Counts                   map[domain.AgreementStatus]int `json:"counts"`
	TotalAgreements          int                            `json:"totalAgreements"`
	MonthlySpending          float64                        `json:"monthlySpending"`
	MonthlySpendingFormatted string                         `json:"monthlySpendingFormatted"`
	Currency                 string                         `json:"currency"`
	Location                 *domain.Location               `json:"location,omitempty"`
	ForceRefresh             bool                           `json:"forceRefresh"`
	GeneratedAt              time.Time                      `json:"generatedAt"`
}

type DashboardService struct {
	agreements AgreementRepository
	locations  LocationDetector
	engine     *PolicyEngine
	cache      JSONCache
	notifier   Notifier
	log        *zap.Logger
	now        func() time.Time
}

func NewDashboardService(
	agreements AgreementRepository,
	locations LocationDetector,
	engine *PolicyEngine,
	cache JSONCache,
	notifier Notifier,
	log *zap.Logger,
) *DashboardService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DashboardService{
		agreements: agreements,
		locations:  locations,
		engine:     engine,
		cache:      cache,
		notifier:   notifier,
		log:        log,
		now:        time.Now,
	}
}

const viewerLocationTTL = 24 * time.Hour

func viewerLocationKey(userID int64) string {
	return "dashboard:location:" + itoa(userID)
}

// Get builds the dashboard for a request and consumes the one-shot
// force-refresh flag.
func (s *DashboardService) Get(ctx context.Context, userID int64, ip string) (Dashboard, error) {
	d, err := s.build(ctx, userID, s.viewer(ctx, userID, ip))
	if err != nil {
		return Dashboard{}, err
	}
	d.ForceRefresh = s.consumeRefreshFlag(ctx, userID)
	return d, nil
}

// viewer detects the caller's location and remembers it for background
// refreshes, which have no request IP. Without either the viewer is unknown.
func (s *DashboardService) viewer(ctx context.Context, userID int64, ip string) *domain.Location {
	if ip != "" && s.locations != nil {
		loc := s.locations.Detect(ctx, ip)
		if s.cache != nil {
			_ = s.cache.SetJSON(ctx, viewerLocationKey(userID), loc, viewerLocationTTL)
		}
		return &loc
	}
	if s.cache == nil {
		return nil
	}
	var loc domain.Location
	if err := s.cache.GetJSON(ctx, viewerLocationKey(userID), &loc); err != nil || loc.CountryCode == "" {
		return nil
	}
	return &loc
}

func (s *DashboardService) build(ctx context.Context, userID int64, viewer *domain.Location) (Dashboard, error) {
	all, err := s.agreements.ListForUser(ctx, userID)
	if err != nil {
		return Dashboard{}, err
	}

	counts := map[domain.AgreementStatus]int{
		domain.AgreementPending:   0,
		domain.AgreementActive:    0,
		domain.AgreementCompleted: 0,
		domain.AgreementCancelled: 0,
	}
	var paidByUser []domain.Agreement
	for _, a := range all {
		counts[a.Status]++
		if a.StudentID == userID {
			paidByUser = append(paidByUser, a)
		}
	}

	now := s.now().In(viewerClock(viewer))
	spent := s.engine.MonthlySpending(paidByUser, viewer, now)

	cur := currency.USD
	if viewer == nil || viewer.IsNigerian() {
		cur = currency.NGN
	}

	return Dashboard{
		UserID:                   userID,
		Counts:                   counts,
		TotalAgreements:          len(all),
		MonthlySpending:          spent,
		MonthlySpendingFormatted: currency.Format(spent, cur),
		Currency:                 cur,
		Location:                 viewer,
		GeneratedAt:              now,
	}, nil
}

func (s *DashboardService) consumeRefreshFlag(ctx context.Context, userID int64) bool {
	if s.cache == nil {
		return false
	}
	_, err := s.cache.GetDel(ctx, refreshFlagKey(userID))
	if err == nil {
		return true
	}
	if !errors.Is(err, clients.ErrCacheMiss) {
		s.log.Warn("could not read dashboard refresh flag", zap.Int64("user_id", userID), zap.Error(err))
	}
	return false
}

// Refresh pushes a fresh dashboard to every connected user.
func (s *DashboardService) Refresh(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	for _, userID := range s.notifier.ConnectedUsers() {
		d, err := s.build(ctx, userID, s.viewer(ctx, userID, ""))
		if err != nil {
			s.log.Warn("dashboard refresh failed", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		_ = s.notifier.NotifyDashboard(ctx, userID, d)
	}
}

// RunRefresher calls Refresh every interval until ctx is done.
func (s *DashboardService) RunRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Refresh(ctx)
		}
	}
}
