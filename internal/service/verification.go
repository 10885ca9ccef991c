package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"thinqscribe-payments/internal/domain"
)

// VerificationStrategy is one way of learning a payment's outcome.
type VerificationStrategy interface {
	Name() string
	Check(ctx context.Context, p domain.Payment) (domain.VerificationOutcome, error)
}

// ledgerStrategy trusts our own records, which a webhook may already have
// settled.
type ledgerStrategy struct {
	payments PaymentRepository
}

func (ledgerStrategy) Name() string { return "ledger" }

func (l ledgerStrategy) Check(ctx context.Context, p domain.Payment) (domain.VerificationOutcome, error) {
	cur, err := l.payments.GetByReference(ctx, p.Reference)
	if err != nil {
		return domain.OutcomePending, err
	}
	switch cur.Status {
	case domain.PaymentSucceeded, domain.PaymentRefundDue:
		return domain.OutcomeSuccess, nil
	case domain.PaymentFailed:
		return domain.OutcomeFailed, nil
	default:
		return domain.OutcomePending, nil
	}
}

// gatewayStrategy asks the gateway that processed the payment. A success
// that does not cover what was charged counts as a failure.
type gatewayStrategy struct {
	gateways map[domain.Gateway]PaymentGateway
}

func (gatewayStrategy) Name() string { return "gateway" }

func (g gatewayStrategy) Check(ctx context.Context, p domain.Payment) (domain.VerificationOutcome, error) {
	gw, ok := g.gateways[p.Gateway]
	if !ok || gw == nil {
		return domain.OutcomePending, fmt.Errorf("%s gateway is not configured", p.Gateway)
	}
	v, err := gw.Verify(ctx, p)
	if err != nil {
		return domain.OutcomePending, err
	}
	if v.Outcome == domain.OutcomeSuccess && v.Amount.IsPositive() {
		if err := checkCharge(p, v.Amount, v.Currency); err != nil {
			return domain.OutcomeFailed, err
		}
	}
	return v.Outcome, nil
}

// checkCharge reports why a confirmed charge does not cover p. An empty
// currency is not compared.
func checkCharge(p domain.Payment, amount decimal.Decimal, cur string) error {
	if cur != "" && p.Currency != "" && !strings.EqualFold(cur, p.Currency) {
		return fmt.Errorf("gateway charged in %s, expected %s", strings.ToLower(cur), p.Currency)
	}
	expected := decimal.NewFromFloat(p.Total).Round(2)
	if amount.LessThan(expected) {
		return fmt.Errorf("gateway reported %s, expected %s", amount, expected)
	}
	return nil
}

type VerifyResult struct {
	Reference string               `json:"reference"`
	Status    domain.PaymentStatus `json:"status"`
	Attempts  int                  `json:"attempts"`
	Agreement *domain.Agreement    `json:"agreement,omitempty"`
}

type VerificationService struct {
	payments   PaymentRepository
	agreements AgreementRepository
	cache      JSONCache
	notifier   Notifier
	strategies []VerificationStrategy
	policy     domain.Policy
	log        *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewVerificationService(
	payments PaymentRepository,
	agreements AgreementRepository,
	gateways map[domain.Gateway]PaymentGateway,
	cache JSONCache,
	notifier Notifier,
	policy domain.Policy,
	log *zap.Logger,
) *VerificationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &VerificationService{
		payments:   payments,
		agreements: agreements,
		cache:      cache,
		notifier:   notifier,
		strategies: []VerificationStrategy{
			ledgerStrategy{payments: payments},
			gatewayStrategy{gateways: gateways},
		},
		policy: policy,
		log:    log,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// nextDelay grows d by the backoff factor, capped at VerifyMaxDelay.
func (s *VerificationService) nextDelay(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * s.policy.VerifyBackoff)
	if next > s.policy.VerifyMaxDelay {
		next = s.policy.VerifyMaxDelay
	}
	return next
}

func (s *VerificationService) checkOnce(ctx context.Context, p domain.Payment) domain.VerificationOutcome {
	for _, st := range s.strategies {
		outcome, err := st.Check(ctx, p)
		if err != nil {
			s.log.Debug("verification strategy failed",
				zap.String("strategy", st.Name()),
				zap.String("reference", p.Reference),
				zap.Error(err),
			)
		}
		if outcome != domain.OutcomePending {
			return outcome
		}
	}
	return domain.OutcomePending
}

// Verify polls the verification strategies with bounded backoff until the
// payment settles. userID 0 skips the ownership check. When every attempt
// stays pending it returns ErrVerificationInconclusive and the payer can
// self-report.
func (s *VerificationService) Verify(ctx context.Context, userID int64, reference string) (VerifyResult, error) {
	p, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return VerifyResult{}, err
	}
	if userID != 0 && p.UserID != userID {
		return VerifyResult{}, domain.ErrForbidden
	}
	if p.Status == domain.PaymentSucceeded || p.Status == domain.PaymentRefundDue {
		return VerifyResult{Reference: reference, Status: p.Status}, nil
	}

	attempts := s.policy.VerifyMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := s.policy.VerifyInitialDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		switch s.checkOnce(ctx, p) {
		case domain.OutcomeSuccess:
			a, status, err := s.complete(ctx, p)
			if err != nil {
				return VerifyResult{}, err
			}
			return VerifyResult{Reference: reference, Status: status, Attempts: attempt, Agreement: a}, nil
		case domain.OutcomeFailed:
			if err := s.fail(ctx, p, "payment was declined"); err != nil {
				return VerifyResult{}, err
			}
			return VerifyResult{Reference: reference, Status: domain.PaymentFailed, Attempts: attempt}, nil
		}

		if attempt == attempts {
			break
		}
		if err := s.sleep(ctx, delay); err != nil {
			return VerifyResult{}, err
		}
		delay = s.nextDelay(delay)
	}

	s.log.Warn("payment verification inconclusive",
		zap.String("reference", reference),
		zap.Int("attempts", attempts),
	)
	return VerifyResult{Reference: reference, Status: p.Status, Attempts: attempts}, domain.ErrVerificationInconclusive
}

// complete records the installment, marks the payment succeeded and tells
// the payer. It is safe to call twice for the same payment. Money landing
// on a cancelled agreement is not applied; the payment becomes refund_due.
func (s *VerificationService) complete(ctx context.Context, p domain.Payment) (*domain.Agreement, domain.PaymentStatus, error) {
	now := s.now()

	a, err := s.agreements.RecordInstallmentPayment(ctx, p.AgreementID, p.InstallmentIndex, now, s.policy.InstallmentTolerance)
	switch {
	case errors.Is(err, domain.ErrNotPayable):
		return nil, domain.PaymentRefundDue, s.refundDue(ctx, p, now)
	case errors.Is(err, domain.ErrInstallmentPaid):
		a, err = s.agreements.GetByID(ctx, p.AgreementID)
		if err != nil {
			return nil, "", fmt.Errorf("reload agreement: %w", err)
		}
	case err != nil:
		return nil, "", fmt.Errorf("record installment payment: %w", err)
	}

	if err := s.payments.UpdateStatus(ctx, p.Reference, domain.PaymentSucceeded, &now); err != nil {
		return nil, "", fmt.Errorf("mark payment succeeded: %w", err)
	}

	s.log.Info("payment verified",
		zap.String("reference", p.Reference),
		zap.String("agreement_id", p.AgreementID),
		zap.Int("installment", p.InstallmentIndex),
	)

	s.flagRefresh(ctx, p.UserID, "payment_success")
	if s.notifier != nil {
		_ = s.notifier.NotifyPaymentVerified(ctx, p.UserID, p.Reference, p.AgreementID, p.Amount, p.Currency)
		_ = s.notifier.NotifyAgreementUpdated(ctx, a.WriterID, a.ID, string(a.Status))
	}
	return &a, domain.PaymentSucceeded, nil
}

const refundDueReason = "agreement was cancelled, the payment will be refunded"

func (s *VerificationService) refundDue(ctx context.Context, p domain.Payment, now time.Time) error {
	if err := s.payments.UpdateStatus(ctx, p.Reference, domain.PaymentRefundDue, &now); err != nil {
		return fmt.Errorf("mark payment refund due: %w", err)
	}
	s.log.Warn("payment received for cancelled agreement, refund required",
		zap.String("reference", p.Reference),
		zap.String("agreement_id", p.AgreementID),
		zap.Float64("total", p.Total),
		zap.String("currency", p.Currency),
	)
	if s.notifier != nil {
		_ = s.notifier.NotifyPaymentFailed(ctx, p.UserID, p.Reference, refundDueReason)
	}
	return nil
}

func (s *VerificationService) fail(ctx context.Context, p domain.Payment, reason string) error {
	if err := s.payments.UpdateStatus(ctx, p.Reference, domain.PaymentFailed, nil); err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	s.log.Info("payment failed", zap.String("reference", p.Reference), zap.String("reason", reason))
	if s.notifier != nil {
		_ = s.notifier.NotifyPaymentFailed(ctx, p.UserID, p.Reference, reason)
	}
	return nil
}

// SelfReport records the payer's own account of an inconclusive payment.
// A claimed success parks the installment in processing until a webhook
// or a later verification settles it.
func (s *VerificationService) SelfReport(ctx context.Context, userID int64, reference string, completed bool) (VerifyResult, error) {
	p, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return VerifyResult{}, err
	}
	if p.UserID != userID {
		return VerifyResult{}, domain.ErrForbidden
	}
	switch p.Status {
	case domain.PaymentSucceeded, domain.PaymentFailed, domain.PaymentRefundDue:
		return VerifyResult{Reference: reference, Status: p.Status}, nil
	}

	if !completed {
		if err := s.fail(ctx, p, "cancelled by payer"); err != nil {
			return VerifyResult{}, err
		}
		return VerifyResult{Reference: reference, Status: domain.PaymentFailed}, nil
	}

	if err := s.payments.UpdateStatus(ctx, reference, domain.PaymentSelfReported, nil); err != nil {
		return VerifyResult{}, fmt.Errorf("mark payment self reported: %w", err)
	}
	if err := s.agreements.MarkInstallmentProcessing(ctx, p.AgreementID, p.InstallmentIndex); err != nil {
		return VerifyResult{}, fmt.Errorf("mark installment processing: %w", err)
	}
	s.flagRefresh(ctx, userID, "payment_self_reported")
	return VerifyResult{Reference: reference, Status: domain.PaymentSelfReported}, nil
}

// SettleCharge completes a payment whose charge was confirmed out of band,
// e.g. by a webhook. A charge that does not cover the payment fails it.
func (s *VerificationService) SettleCharge(ctx context.Context, reference string, amount decimal.Decimal, cur string) error {
	p, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if p.Status == domain.PaymentSucceeded || p.Status == domain.PaymentRefundDue {
		return nil
	}
	if err := checkCharge(p, amount, cur); err != nil {
		s.log.Warn("confirmed charge does not cover payment", zap.String("reference", reference), zap.Error(err))
		return s.fail(ctx, p, "charged amount does not match the payment")
	}
	_, _, err = s.complete(ctx, p)
	return err
}

type refreshFlag struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

const refreshFlagTTL = 24 * time.Hour

func refreshFlagKey(userID int64) string {
	return fmt.Sprintf("dashboard:refresh:%d", userID)
}

// flagRefresh asks the next dashboard load to refetch everything. The flag
// is consumed by the dashboard with GetDel.
func (s *VerificationService) flagRefresh(ctx context.Context, userID int64, reason string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, refreshFlagKey(userID), refreshFlag{Reason: reason, At: s.now()}, refreshFlagTTL); err != nil {
		s.log.Warn("could not set dashboard refresh flag", zap.Int64("user_id", userID), zap.Error(err))
	}
}
