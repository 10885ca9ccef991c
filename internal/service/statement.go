package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"thinqscribe-payments/internal/clients"
	"thinqscribe-payments/internal/currency"
	"thinqscribe-payments/internal/domain"
)

// ObjectStore keeps generated files and hands out download links. Local
// disk and S3 both implement it.
type ObjectStore interface {
	Save(ctx context.Context, fileName string, data []byte, contentType string) (string, error)
	URL(ctx context.Context, key string) (string, error)
}

type StatementCache interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dst any) error
	SAdd(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

type StatementState string

const (
	StatementGenerating StatementState = "generating"
	StatementReady      StatementState = "ready"
	StatementFailed     StatementState = "failed"
)

type StatementStatus struct {
	Key      string         `json:"key"`
	UserID   int64          `json:"user_id"`
	Month    string         `json:"month"`
	State    StatementState `json:"state"`
	Progress float64        `json:"progress"`
	FileURL  *string        `json:"file_url"`
	Error    *string        `json:"error,omitempty"`
	Created  time.Time      `json:"created_at"`
}

const (
	statementTTL         = 20 * time.Minute
	statementContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func statementSetKey(userID int64) string {
	return "statements:user:" + itoa(userID)
}

type statementRow struct {
	agreement domain.Agreement
	inst      domain.Installment
	paidAt    time.Time
	currency  string
}

type statementColumn struct {
	Header string
	Value  func(r statementRow) any
}

var statementColumns = []statementColumn{
	{Header: "Paid At", Value: func(r statementRow) any { return r.paidAt.Format("2006-01-02 15:04") }},
	{Header: "Agreement", Value: func(r statementRow) any { return r.agreement.Title }},
	{Header: "Subject", Value: func(r statementRow) any { return r.agreement.Subject }},
	{Header: "Installment", Value: func(r statementRow) any { return r.inst.Index + 1 }},
	{Header: "Currency", Value: func(r statementRow) any { return r.currency }},
	{Header: "Amount", Value: func(r statementRow) any { return r.inst.Amount }},
	{Header: "Formatted", Value: func(r statementRow) any { return currency.Format(r.inst.Amount, r.currency) }},
}

// StatementService builds monthly spending statements as XLSX files in the
// background and reports progress through the cache and the notifier.
type StatementService struct {
	agreements AgreementRepository
	engine     *PolicyEngine
	cache      StatementCache
	store      ObjectStore
	notifier   Notifier
	log        *zap.Logger
}

func NewStatementService(
	agreements AgreementRepository,
	engine *PolicyEngine,
	cache StatementCache,
	store ObjectStore,
	notifier Notifier,
	log *zap.Logger,
) *StatementService {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatementService{
		agreements: agreements,
		engine:     engine,
		cache:      cache,
		store:      store,
		notifier:   notifier,
		log:        log,
	}
}

func (s *StatementService) save(ctx context.Context, st *StatementStatus) error {
	if err := s.cache.SetJSON(ctx, st.Key, st, statementTTL); err != nil {
		return err
	}
	return s.cache.SAdd(ctx, statementSetKey(st.UserID), st.Key)
}

// Start queues a statement for month (any instant inside it) and returns
// its id immediately.
func (s *StatementService) Start(ctx context.Context, userID int64, month time.Time) (string, error) {
	if s.cache == nil || s.store == nil {
		return "", errors.New("statement storage not configured")
	}

	st := &StatementStatus{
		Key:     "statements:" + uuid.NewString(),
		UserID:  userID,
		Month:   month.Format("2006-01"),
		State:   StatementGenerating,
		Created: time.Now(),
	}
	if err := s.save(ctx, st); err != nil {
		return "", fmt.Errorf("save statement status: %w", err)
	}

	go s.run(context.Background(), st, month)

	return st.Key, nil
}

func (s *StatementService) run(ctx context.Context, st *StatementStatus, month time.Time) {
	data, fileName, err := s.generate(ctx, st, month)
	if err == nil {
		err = s.publish(ctx, st, data, fileName)
	}
	if err == nil {
		return
	}

	msg := err.Error()
	st.State = StatementFailed
	st.Error = &msg
	_ = s.save(ctx, st)
	s.log.Error("statement export failed", zap.String("statement_id", st.Key), zap.Error(err))
	if s.notifier != nil {
		_ = s.notifier.NotifyStatementFailed(ctx, st.UserID, st.Key, msg)
	}
}

// paidRows collects the installments paid during month, oldest first,
// with the same date fallbacks as MonthlySpending. Agreements without
// installments contribute one row for their paid amount.
func (s *StatementService) paidRows(agreements []domain.Agreement, month time.Time) []statementRow {
	var rows []statementRow
	for _, a := range agreements {
		if a.PaidAmount <= 0 {
			continue
		}
		fallback := a.CompletedAt
		if fallback == nil && !a.UpdatedAt.IsZero() {
			updated := a.UpdatedAt
			fallback = &updated
		}

		installments := a.Installments
		if len(installments) == 0 {
			installments = []domain.Installment{{Amount: a.PaidAmount, Status: domain.InstallmentPaid}}
		}

		cur := s.engine.ResolveCurrency(a)
		for _, in := range installments {
			if in.Status != domain.InstallmentPaid {
				continue
			}
			paidAt := in.PaymentDate
			if paidAt == nil {
				paidAt = fallback
			}
			if paidAt == nil || !sameMonth(*paidAt, month) {
				continue
			}
			rows = append(rows, statementRow{
				agreement: a,
				inst:      in,
				paidAt:    paidAt.In(month.Location()),
				currency:  cur,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].paidAt.Before(rows[j].paidAt) })
	return rows
}

func (s *StatementService) generate(ctx context.Context, st *StatementStatus, month time.Time) ([]byte, string, error) {
	all, err := s.agreements.ListForUser(ctx, st.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("load agreements: %w", err)
	}
	var agreements []domain.Agreement
	for _, a := range all {
		if a.StudentID == st.UserID {
			agreements = append(agreements, a)
		}
	}
	rows := s.paidRows(agreements, month)

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Statement"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, "", err
	}
	_ = f.SetDocProps(&excelize.DocProperties{
		Creator: fmt.Sprintf("user_%d", st.UserID),
		Title:   "Spending statement " + st.Month,
	})

	for i, col := range statementColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col.Header)
	}

	const chunkSize = 500
	total := len(rows)
	for i, r := range rows {
		for colIdx, col := range statementColumns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, i+2)
			_ = f.SetCellValue(sheet, cell, col.Value(r))
		}

		if (i+1)%chunkSize == 0 || i == total-1 {
			// 100 is reserved for when the file URL exists.
			st.Progress = min(float64(i+1)/float64(total)*90, 90)
			_ = s.save(ctx, st)
		}
	}

	spent := s.engine.MonthlySpending(agreements, nil, month)
	summary := total + 3
	labelCell, _ := excelize.CoordinatesToCellName(1, summary)
	valueCell, _ := excelize.CoordinatesToCellName(2, summary)
	_ = f.SetCellValue(sheet, labelCell, "Total (NGN)")
	_ = f.SetCellValue(sheet, valueCell, currency.Format(spent, currency.NGN))

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("render statement: %w", err)
	}
	return buf.Bytes(), fmt.Sprintf("statement_%s_%d.xlsx", st.Month, st.UserID), nil
}

func (s *StatementService) publish(ctx context.Context, st *StatementStatus, data []byte, fileName string) error {
	st.Progress = 95
	_ = s.save(ctx, st)

	key, err := s.store.Save(ctx, fileName, data, statementContentType)
	if err != nil {
		return fmt.Errorf("store statement: %w", err)
	}
	url, err := s.store.URL(ctx, key)
	if err != nil {
		return fmt.Errorf("statement url: %w", err)
	}

	st.FileURL = &url
	st.Progress = 100
	st.State = StatementReady
	if err := s.save(ctx, st); err != nil {
		return fmt.Errorf("save statement status: %w", err)
	}

	s.log.Info("statement ready", zap.String("statement_id", st.Key), zap.Int64("user_id", st.UserID))
	if s.notifier != nil {
		_ = s.notifier.NotifyStatementReady(ctx, st.UserID, st.Key, url, fileName)
	}
	return nil
}

// Get returns one statement owned by userID.
func (s *StatementService) Get(ctx context.Context, userID int64, id string) (StatementStatus, error) {
	if s.cache == nil {
		return StatementStatus{}, domain.ErrNotFound
	}
	var st StatementStatus
	if err := s.cache.GetJSON(ctx, id, &st); err != nil {
		if errors.Is(err, clients.ErrCacheMiss) {
			return StatementStatus{}, domain.ErrNotFound
		}
		return StatementStatus{}, err
	}
	if st.UserID != userID {
		return StatementStatus{}, domain.ErrNotFound
	}
	return st, nil
}

// List returns the user's statements that have not expired, newest first.
func (s *StatementService) List(ctx context.Context, userID int64) ([]StatementStatus, error) {
	if s.cache == nil {
		return nil, nil
	}
	keys, err := s.cache.SMembers(ctx, statementSetKey(userID))
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}

	var out []StatementStatus
	for _, key := range keys {
		var st StatementStatus
		if err := s.cache.GetJSON(ctx, key, &st); err != nil {
			continue
		}
		if st.UserID == userID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}
