package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"thinqscribe-payments/internal/domain"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p domain.Payment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (reference, agreement_id, installment_index, user_id, gateway, method,
			currency, amount, fee, total, status, checkout_url, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.Reference, p.AgreementID, p.InstallmentIndex, p.UserID, p.Gateway, p.Method,
		p.Currency, p.Amount, p.Fee, p.Total, p.Status, p.CheckoutURL, p.SessionID, p.CreatedAt,
	)
	return err
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (domain.Payment, error) {
	var (
		p          domain.Payment
		method     sql.NullString
		url        sql.NullString
		sessionID  sql.NullString
		verifiedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT reference, agreement_id, installment_index, user_id, gateway, method, currency,
			amount, fee, total, status, checkout_url, session_id, created_at, verified_at
		FROM payments
		WHERE reference = $1`, reference).Scan(
		&p.Reference,
		&p.AgreementID,
		&p.InstallmentIndex,
		&p.UserID,
		&p.Gateway,
		&method,
		&p.Currency,
		&p.Amount,
		&p.Fee,
		&p.Total,
		&p.Status,
		&url,
		&sessionID,
		&p.CreatedAt,
		&verifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Payment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Payment{}, err
	}

	p.Method = domain.PaymentMethodID(method.String)
	p.CheckoutURL = url.String
	p.SessionID = sessionID.String
	if verifiedAt.Valid {
		p.VerifiedAt = &verifiedAt.Time
	}
	return p, nil
}

// UpdateStatus sets the payment status. verifiedAt is only written when non-nil.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, reference string, status domain.PaymentStatus, verifiedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments SET status = $2, verified_at = COALESCE($3, verified_at)
		WHERE reference = $1`, reference, status, verifiedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
