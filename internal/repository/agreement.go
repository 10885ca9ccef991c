package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"thinqscribe-payments/internal/domain"
)

type AgreementRepository struct {
	db *sql.DB
}

func NewAgreementRepository(db *sql.DB) *AgreementRepository {
	return &AgreementRepository{db: db}
}

const agreementColumns = `a.id, a.title, a.subject, a.description, a.student_id, a.writer_id,
	a.total_amount, a.paid_amount, COALESCE(a.currency, ''), a.payment_preferences, a.status,
	a.created_at, a.updated_at, a.completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgreement(row rowScanner) (domain.Agreement, error) {
	var (
		a           domain.Agreement
		description sql.NullString
		prefs       []byte
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Subject,
		&description,
		&a.StudentID,
		&a.WriterID,
		&a.TotalAmount,
		&a.PaidAmount,
		&a.Currency,
		&prefs,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&completedAt,
	); err != nil {
		return domain.Agreement{}, err
	}

	a.Description = description.String
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if len(prefs) > 0 {
		// Legacy rows carry arbitrary JSON here; an unreadable blob is treated as empty.
		_ = json.Unmarshal(prefs, &a.PaymentPreferences)
	}
	return a, nil
}

func (r *AgreementRepository) Create(ctx context.Context, a *domain.Agreement) error {
	prefs, err := json.Marshal(a.PaymentPreferences)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agreements (id, title, subject, description, student_id, writer_id,
			total_amount, paid_amount, currency, payment_preferences, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		a.ID, a.Title, a.Subject, a.Description, a.StudentID, a.WriterID,
		a.TotalAmount, a.PaidAmount, a.Currency, prefs, a.Status, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert agreement: %w", err)
	}

	for _, in := range a.Installments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO agreement_installments (agreement_id, idx, amount, due_date, status)
			VALUES ($1, $2, $3, $4, $5)`,
			a.ID, in.Index, in.Amount, in.DueDate, in.Status,
		)
		if err != nil {
			return fmt.Errorf("insert installment %d: %w", in.Index, err)
		}
	}

	return tx.Commit()
}

func (r *AgreementRepository) GetByID(ctx context.Context, id string) (domain.Agreement, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+agreementColumns+` FROM agreements a WHERE a.id = $1`, id)
	a, err := scanAgreement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Agreement{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Agreement{}, err
	}

	byID, err := r.loadInstallments(ctx, r.db, []string{a.ID})
	if err != nil {
		return domain.Agreement{}, err
	}
	a.Installments = byID[a.ID]
	return a, nil
}

// ListForUser returns every agreement where the user is student or writer,
// newest first.
func (r *AgreementRepository) ListForUser(ctx context.Context, userID int64) ([]domain.Agreement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+agreementColumns+`
		FROM agreements a
		WHERE a.student_id = $1 OR a.writer_id = $1
		ORDER BY a.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

// ListWithoutCurrency returns legacy agreements that were never stamped.
func (r *AgreementRepository) ListWithoutCurrency(ctx context.Context, limit int) ([]domain.Agreement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+agreementColumns+`
		FROM agreements a
		WHERE a.currency IS NULL OR a.currency = ''
		ORDER BY a.created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *AgreementRepository) collect(ctx context.Context, rows *sql.Rows) ([]domain.Agreement, error) {
	defer rows.Close()

	var (
		out []domain.Agreement
		ids []string
	)
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
		ids = append(ids, a.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	byID, err := r.loadInstallments(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Installments = byID[out[i].ID]
	}
	return out, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *AgreementRepository) loadInstallments(ctx context.Context, q queryer, ids []string) (map[string][]domain.Installment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT agreement_id, idx, amount, due_date, status, payment_date
		FROM agreement_installments
		WHERE agreement_id = ANY($1)
		ORDER BY agreement_id, idx`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Installment, len(ids))
	for rows.Next() {
		var (
			agreementID string
			in          domain.Installment
			paymentDate sql.NullTime
		)
		if err := rows.Scan(&agreementID, &in.Index, &in.Amount, &in.DueDate, &in.Status, &paymentDate); err != nil {
			return nil, err
		}
		if paymentDate.Valid {
			in.PaymentDate = &paymentDate.Time
		}
		out[agreementID] = append(out[agreementID], in)
	}
	return out, rows.Err()
}

// UpdateStatus moves an agreement from one status to another. It fails with
// ErrInvalidTransition when the row is no longer in the expected status.
func (r *AgreementRepository) UpdateStatus(ctx context.Context, id string, from, to domain.AgreementStatus) error {
	var completedAt any
	if to == domain.AgreementCompleted {
		completedAt = time.Now()
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE agreements
		SET status = $3, updated_at = now(), completed_at = COALESCE($4, completed_at)
		WHERE id = $1 AND status = $2`, id, from, to, completedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *AgreementRepository) SetCurrency(ctx context.Context, id, currency string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE agreements SET currency = $2
		WHERE id = $1 AND (currency IS NULL OR currency = '')`, id, currency)
	return err
}

func (r *AgreementRepository) MarkInstallmentProcessing(ctx context.Context, id string, index int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE agreement_installments SET status = $3
		WHERE agreement_id = $1 AND idx = $2 AND status = $4`,
		id, index, domain.InstallmentProcessing, domain.InstallmentPending)
	return err
}

// RecordInstallmentPayment marks an installment paid, adds its amount to the
// agreement and completes the agreement once every installment is paid.
// Paid amounts never exceed the total by more than tolerance. Cancelled
// agreements reject payments with ErrNotPayable.
func (r *AgreementRepository) RecordInstallmentPayment(ctx context.Context, id string, index int, paidAt time.Time, tolerance float64) (domain.Agreement, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agreement{}, err
	}
	defer tx.Rollback()

	a, err := scanAgreement(tx.QueryRowContext(ctx,
		`SELECT `+agreementColumns+` FROM agreements a WHERE a.id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Agreement{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Agreement{}, err
	}
	if a.Status == domain.AgreementCancelled {
		return domain.Agreement{}, domain.ErrNotPayable
	}

	byID, err := r.loadInstallments(ctx, tx, []string{id})
	if err != nil {
		return domain.Agreement{}, err
	}
	a.Installments = byID[id]

	in, ok := a.Installment(index)
	if !ok {
		return domain.Agreement{}, domain.ErrNotFound
	}
	if in.Status == domain.InstallmentPaid {
		return domain.Agreement{}, domain.ErrInstallmentPaid
	}
	if a.PaidAmount+in.Amount > a.TotalAmount+tolerance {
		return domain.Agreement{}, domain.ErrOverpayment
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE agreement_installments SET status = $3, payment_date = $4
		WHERE agreement_id = $1 AND idx = $2`,
		id, index, domain.InstallmentPaid, paidAt); err != nil {
		return domain.Agreement{}, err
	}

	a.PaidAmount += in.Amount
	allPaid := true
	for i := range a.Installments {
		if a.Installments[i].Index == index {
			a.Installments[i].Status = domain.InstallmentPaid
			a.Installments[i].PaymentDate = &paidAt
		}
		if a.Installments[i].Status != domain.InstallmentPaid {
			allPaid = false
		}
	}
	if allPaid && a.Status == domain.AgreementActive {
		a.Status = domain.AgreementCompleted
		a.CompletedAt = &paidAt
	}
	a.UpdatedAt = paidAt

	if _, err := tx.ExecContext(ctx, `
		UPDATE agreements
		SET paid_amount = $2, status = $3, completed_at = $4, updated_at = $5
		WHERE id = $1`,
		id, a.PaidAmount, a.Status, a.CompletedAt, paidAt); err != nil {
		return domain.Agreement{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Agreement{}, err
	}
	return a, nil
}
