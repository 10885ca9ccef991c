package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"thinqscribe-payments/internal/clients"
	"thinqscribe-payments/internal/currency"
	"thinqscribe-payments/internal/domain"
)

type PaymentRepository interface {
	Create(ctx context.Context, p domain.Payment) error
	GetByReference(ctx context.Context, reference string) (domain.Payment, error)
	UpdateStatus(ctx context.Context, reference string, status domain.PaymentStatus, verifiedAt *time.Time) error
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (domain.User, error)
}

// PaymentGateway is a hosted-checkout provider.
type PaymentGateway interface {
	Initialize(ctx context.Context, req clients.CheckoutRequest) (clients.CheckoutSession, error)
	Verify(ctx context.Context, p domain.Payment) (clients.GatewayVerification, error)
}

type LocationDetector interface {
	Detect(ctx context.Context, ip string) domain.Location
}

type QuoteInput struct {
	Amount   float64                `json:"amount"`
	Currency string                 `json:"currency"`
	Method   domain.PaymentMethodID `json:"method"`
}

type CheckoutInput struct {
	AgreementID      string                 `json:"agreementId"`
	InstallmentIndex int                    `json:"installmentIndex"`
	Method           domain.PaymentMethodID `json:"method"`
	QuoteID          uint64                 `json:"quoteId"`
}

type CheckoutResult struct {
	Reference   string                 `json:"reference"`
	CheckoutURL string                 `json:"checkoutUrl"`
	Gateway     domain.Gateway         `json:"gateway"`
	Method      domain.PaymentMethodID `json:"method"`
	Currency    string                 `json:"currency"`
	Amount      float64                `json:"amount"`
	Fee         float64                `json:"fee"`
	Total       float64                `json:"total"`
	Formatted   string                 `json:"formatted"`
}

type CheckoutService struct {
	agreements AgreementRepository
	payments   PaymentRepository
	users      UserRepository
	locations  LocationDetector
	gateways   map[domain.Gateway]PaymentGateway
	engine     *PolicyEngine
	quotes     *QuoteBook
	log        *zap.Logger
	now        func() time.Time
}

func NewCheckoutService(
	agreements AgreementRepository,
	payments PaymentRepository,
	users UserRepository,
	locations LocationDetector,
	gateways map[domain.Gateway]PaymentGateway,
	engine *PolicyEngine,
	quotes *QuoteBook,
	log *zap.Logger,
) *CheckoutService {
	if log == nil {
		log = zap.NewNop()
	}
	if quotes == nil {
		quotes = NewQuoteBook()
	}
	return &CheckoutService{
		agreements: agreements,
		payments:   payments,
		users:      users,
		locations:  locations,
		gateways:   gateways,
		engine:     engine,
		quotes:     quotes,
		log:        log,
		now:        time.Now,
	}
}

func pickMethod(requested domain.PaymentMethodID, available []domain.PaymentMethod) domain.PaymentMethodID {
	for _, m := range available {
		if m.ID == requested {
			return requested
		}
	}
	if len(available) > 0 {
		return available[0].ID
	}
	return domain.MethodCard
}

// Quote prices an amount for the caller's location. Only the newest quote
// per user is kept; a quote overtaken while it was being computed is
// returned with ErrQuoteSuperseded.
func (s *CheckoutService) Quote(ctx context.Context, userID int64, ip string, in QuoteInput) (Quote, error) {
	if in.Amount <= 0 {
		verr := domain.NewValidationError()
		verr.Add("amount", "Amount must be greater than zero")
		return Quote{}, verr
	}
	if in.Currency != "" && !currency.Known(in.Currency) {
		verr := domain.NewValidationError()
		verr.Add("currency", fmt.Sprintf("Unsupported currency %q", in.Currency))
		return Quote{}, verr
	}

	gen := s.quotes.Begin(userID)

	loc := s.locations.Detect(ctx, ip)
	cfg := s.engine.PaymentConfig(in.Amount, in.Currency, &loc)
	method := pickMethod(in.Method, cfg.PaymentMethods)
	amount := s.engine.FinalizeAmount(in.Amount)
	fees := s.engine.CalculateFees(amount, cfg.Currency, cfg.Gateway, method)

	q := Quote{
		ID:           gen,
		Config:       cfg,
		Method:       method,
		Amount:       amount,
		Fees:         fees,
		Formatted:    currency.Format(fees.Total, cfg.Currency),
		FormattedFee: currency.Format(fees.Fee, cfg.Currency),
		Location:     loc,
		CreatedAt:    s.now(),
	}
	if !s.quotes.Commit(userID, gen, q) {
		return q, domain.ErrQuoteSuperseded
	}
	return q, nil
}

// Checkout opens a hosted checkout session for one installment. The payer
// is charged the installment plus the gateway fee.
func (s *CheckoutService) Checkout(ctx context.Context, userID int64, ip string, in CheckoutInput) (CheckoutResult, error) {
	if in.QuoteID != 0 {
		if err := s.quotes.Check(userID, in.QuoteID); err != nil {
			return CheckoutResult{}, err
		}
	}

	a, err := s.agreements.GetByID(ctx, in.AgreementID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if a.StudentID != userID {
		return CheckoutResult{}, domain.ErrForbidden
	}
	if a.Status != domain.AgreementActive {
		return CheckoutResult{}, domain.ErrNotPayable
	}
	inst, ok := a.Installment(in.InstallmentIndex)
	if !ok {
		return CheckoutResult{}, domain.ErrNotFound
	}
	if inst.Status == domain.InstallmentPaid {
		return CheckoutResult{}, domain.ErrInstallmentPaid
	}
	if inst.Amount > a.Remaining()+s.engine.Policy().InstallmentTolerance {
		return CheckoutResult{}, domain.ErrOverpayment
	}

	cur := s.engine.ResolveCurrency(a)
	loc := s.locations.Detect(ctx, ip)
	cfg := s.engine.PaymentConfig(inst.Amount, cur, &loc)
	method := pickMethod(in.Method, cfg.PaymentMethods)
	amount := s.engine.FinalizeAmount(inst.Amount)
	fees := s.engine.CalculateFees(amount, cur, cfg.Gateway, method)
	charge := s.engine.GatewayCharge(fees.Total)
	total := charge.InexactFloat64()

	gw, ok := s.gateways[cfg.Gateway]
	if !ok || gw == nil {
		return CheckoutResult{}, fmt.Errorf("%s gateway is not configured", cfg.Gateway)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("load payer: %w", err)
	}

	ref := "TS-" + uuid.NewString()
	sess, err := gw.Initialize(ctx, clients.CheckoutRequest{
		Reference:   ref,
		Email:       user.Email,
		Description: a.Title,
		Amount:      charge,
		Currency:    cur,
		Method:      method,
		Metadata: map[string]string{
			"agreement_id":      a.ID,
			"installment_index": fmt.Sprint(inst.Index),
			"user_id":           fmt.Sprint(userID),
		},
	})
	if err != nil {
		s.log.Error("checkout initialization failed",
			zap.String("gateway", string(cfg.Gateway)),
			zap.String("agreement_id", a.ID),
			zap.Error(err),
		)
		return CheckoutResult{}, fmt.Errorf("initialize checkout: %w", err)
	}
	if sess.Reference != "" {
		ref = sess.Reference
	}

	p := domain.Payment{
		Reference:        ref,
		AgreementID:      a.ID,
		InstallmentIndex: inst.Index,
		UserID:           userID,
		Gateway:          cfg.Gateway,
		Method:           method,
		Currency:         cur,
		Amount:           amount,
		Fee:              fees.Fee,
		Total:            total,
		Status:           domain.PaymentPending,
		CheckoutURL:      sess.CheckoutURL,
		SessionID:        sess.SessionID,
		CreatedAt:        s.now(),
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return CheckoutResult{}, fmt.Errorf("store payment: %w", err)
	}

	s.log.Info("checkout opened",
		zap.String("reference", ref),
		zap.String("gateway", string(cfg.Gateway)),
		zap.String("currency", cur),
		zap.Float64("total", total),
	)

	return CheckoutResult{
		Reference:   ref,
		CheckoutURL: sess.CheckoutURL,
		Gateway:     cfg.Gateway,
		Method:      method,
		Currency:    cur,
		Amount:      amount,
		Fee:         fees.Fee,
		Total:       total,
		Formatted:   currency.Format(total, cur),
	}, nil
}
