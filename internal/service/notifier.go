package service

import "context"

// Notifier pushes realtime events to connected users. Services receive it
// through their constructors; a nil Notifier disables pushes.
type Notifier interface {
	NotifyPaymentVerified(ctx context.Context, userID int64, reference, agreementID string, amount float64, currency string) error
	NotifyPaymentFailed(ctx context.Context, userID int64, reference, reason string) error
	NotifyAgreementUpdated(ctx context.Context, userID int64, agreementID, status string) error
	NotifyDashboard(ctx context.Context, userID int64, dashboard any) error
	NotifyStatementReady(ctx context.Context, userID int64, statementID, url, filename string) error
	NotifyStatementFailed(ctx context.Context, userID int64, statementID, errMsg string) error
	ConnectedUsers() []int64
}
