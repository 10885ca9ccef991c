package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"thinqscribe-payments/internal/currency"
	"thinqscribe-payments/internal/domain"
)

type AgreementRepository interface {
	Create(ctx context.Context, a *domain.Agreement) error
	GetByID(ctx context.Context, id string) (domain.Agreement, error)
	ListForUser(ctx context.Context, userID int64) ([]domain.Agreement, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.AgreementStatus) error
	MarkInstallmentProcessing(ctx context.Context, id string, index int) error
	RecordInstallmentPayment(ctx context.Context, id string, index int, paidAt time.Time, tolerance float64) (domain.Agreement, error)
}

type InstallmentInput struct {
	Amount  float64   `json:"amount"`
	DueDate time.Time `json:"dueDate"`
}

type CreateAgreementInput struct {
	Title              string                    `json:"title"`
	Subject            string                    `json:"subject"`
	Description        string                    `json:"description"`
	WriterID           int64                     `json:"writerId"`
	TotalAmount        float64                   `json:"totalAmount"`
	Currency           string                    `json:"currency"`
	Installments       []InstallmentInput        `json:"installments"`
	PaymentPreferences domain.PaymentPreferences `json:"paymentPreferences"`
}

// defaultDueIn is used for the single installment created when the
// student does not split the payment.
const defaultDueIn = 7 * 24 * time.Hour

type AgreementService struct {
	repo     AgreementRepository
	engine   *PolicyEngine
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewAgreementService(repo AgreementRepository, engine *PolicyEngine, notifier Notifier, log *zap.Logger) *AgreementService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AgreementService{repo: repo, engine: engine, notifier: notifier, log: log, now: time.Now}
}

func (s *AgreementService) validate(studentID int64, in CreateAgreementInput) error {
	verr := domain.NewValidationError()

	if strings.TrimSpace(in.Title) == "" {
		verr.Add("title", "Title is required")
	}
	if strings.TrimSpace(in.Subject) == "" {
		verr.Add("subject", "Subject is required")
	}
	switch {
	case in.WriterID <= 0:
		verr.Add("writerId", "A writer must be selected")
	case in.WriterID == studentID:
		verr.Add("writerId", "You cannot create an agreement with yourself")
	}
	if in.TotalAmount <= 0 {
		verr.Add("totalAmount", "Total amount must be greater than zero")
	}
	if in.Currency != "" && !currency.Known(in.Currency) {
		verr.Add("currency", fmt.Sprintf("Unsupported currency %q", in.Currency))
	}

	sum := decimal.Zero
	for i, inst := range in.Installments {
		if inst.Amount <= 0 {
			verr.Add(fmt.Sprintf("installments[%d].amount", i), "Installment amount must be greater than zero")
		}
		if inst.DueDate.IsZero() {
			verr.Add(fmt.Sprintf("installments[%d].dueDate", i), "Due date is required")
		}
		sum = sum.Add(decimal.NewFromFloat(inst.Amount))
	}
	if len(in.Installments) > 0 && in.TotalAmount > 0 {
		gap := sum.Sub(decimal.NewFromFloat(in.TotalAmount)).Abs()
		if gap.GreaterThan(decimal.NewFromFloat(s.engine.Policy().InstallmentTolerance)) {
			verr.Add("installments", "Installment amounts must add up to the total amount")
		}
	}

	return verr.OrNil()
}

// Create validates and stores a pending agreement proposed by a student.
// The currency is stamped here, inferred from the preferences when the
// client did not send one.
func (s *AgreementService) Create(ctx context.Context, studentID int64, in CreateAgreementInput) (domain.Agreement, error) {
	if err := s.validate(studentID, in); err != nil {
		return domain.Agreement{}, err
	}

	now := s.now()
	a := domain.Agreement{
		ID:                 uuid.NewString(),
		Title:              strings.TrimSpace(in.Title),
		Subject:            strings.TrimSpace(in.Subject),
		Description:        strings.TrimSpace(in.Description),
		StudentID:          studentID,
		WriterID:           in.WriterID,
		TotalAmount:        in.TotalAmount,
		PaymentPreferences: in.PaymentPreferences,
		Status:             domain.AgreementPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	a.Currency = currency.Normalize(in.Currency)
	if a.Currency == "" {
		a.Currency = s.engine.InferCurrency(a)
	}

	if len(in.Installments) == 0 {
		a.Installments = []domain.Installment{{
			Index:   0,
			Amount:  in.TotalAmount,
			DueDate: now.Add(defaultDueIn),
			Status:  domain.InstallmentPending,
		}}
	}
	for i, inst := range in.Installments {
		a.Installments = append(a.Installments, domain.Installment{
			Index:   i,
			Amount:  inst.Amount,
			DueDate: inst.DueDate,
			Status:  domain.InstallmentPending,
		})
	}

	if err := s.repo.Create(ctx, &a); err != nil {
		return domain.Agreement{}, fmt.Errorf("create agreement: %w", err)
	}

	s.log.Info("agreement created",
		zap.String("agreement_id", a.ID),
		zap.Int64("student_id", a.StudentID),
		zap.Int64("writer_id", a.WriterID),
		zap.String("currency", a.Currency),
	)
	s.notify(ctx, a.WriterID, a.ID, a.Status)
	return a, nil
}

// Get returns an agreement visible to userID.
func (s *AgreementService) Get(ctx context.Context, userID int64, id string) (domain.Agreement, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Agreement{}, err
	}
	if !a.IsParticipant(userID) {
		return domain.Agreement{}, domain.ErrForbidden
	}
	return a, nil
}

func (s *AgreementService) List(ctx context.Context, userID int64) ([]domain.Agreement, error) {
	return s.repo.ListForUser(ctx, userID)
}

// Accept lets the writer take on a pending agreement.
func (s *AgreementService) Accept(ctx context.Context, userID int64, id string) (domain.Agreement, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Agreement{}, err
	}
	if a.WriterID != userID {
		return domain.Agreement{}, domain.ErrForbidden
	}
	return s.transition(ctx, a, domain.AgreementActive)
}

// Cancel ends a pending or active agreement. Either party may cancel.
func (s *AgreementService) Cancel(ctx context.Context, userID int64, id string) (domain.Agreement, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.Agreement{}, err
	}
	if !a.IsParticipant(userID) {
		return domain.Agreement{}, domain.ErrForbidden
	}
	return s.transition(ctx, a, domain.AgreementCancelled)
}

func (s *AgreementService) transition(ctx context.Context, a domain.Agreement, to domain.AgreementStatus) (domain.Agreement, error) {
	if !a.Status.CanTransitionTo(to) {
		return domain.Agreement{}, domain.ErrInvalidTransition
	}
	if err := s.repo.UpdateStatus(ctx, a.ID, a.Status, to); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return domain.Agreement{}, err
		}
		return domain.Agreement{}, fmt.Errorf("update agreement status: %w", err)
	}

	from := a.Status
	a.Status = to
	a.UpdatedAt = s.now()

	s.log.Info("agreement status changed",
		zap.String("agreement_id", a.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	s.notify(ctx, a.StudentID, a.ID, to)
	s.notify(ctx, a.WriterID, a.ID, to)
	return a, nil
}

func (s *AgreementService) notify(ctx context.Context, userID int64, agreementID string, status domain.AgreementStatus) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyAgreementUpdated(ctx, userID, agreementID, string(status)); err != nil {
		s.log.Debug("agreement notification not delivered", zap.Int64("user_id", userID), zap.Error(err))
	}
}
