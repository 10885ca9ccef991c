package clients

import (
	"context"
	"fmt"

	ws "thinqscribe-payments/internal/transport/websocket"
)

const (
	EventPaymentVerified  = "payment_verified"
	EventPaymentFailed    = "payment_failed"
	EventAgreementUpdated = "agreement_updated"
	EventDashboardUpdate  = "dashboard_update"
	EventStatementReady   = "statement_ready"
	EventStatementFailed  = "statement_failed"
)

// WebSocketClient pushes notification events through the hub. A nil hub
// turns every call into a no-op.
type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{hub: hub}
}

func (c *WebSocketClient) send(userID int64, event string, data map[string]any) error {
	if c == nil || c.hub == nil {
		return nil
	}
	c.hub.Broadcast(userID, &ws.Message{
		Type:    event,
		Channel: fmt.Sprintf("%s#%d", event, userID),
		Data:    data,
	})
	return nil
}

func (c *WebSocketClient) NotifyPaymentVerified(ctx context.Context, userID int64, reference, agreementID string, amount float64, currency string) error {
	return c.send(userID, EventPaymentVerified, map[string]any{
		"reference":    reference,
		"agreement_id": agreementID,
		"amount":       amount,
		"currency":     currency,
	})
}

func (c *WebSocketClient) NotifyPaymentFailed(ctx context.Context, userID int64, reference, reason string) error {
	return c.send(userID, EventPaymentFailed, map[string]any{
		"reference": reference,
		"message":   reason,
	})
}

func (c *WebSocketClient) NotifyAgreementUpdated(ctx context.Context, userID int64, agreementID, status string) error {
	return c.send(userID, EventAgreementUpdated, map[string]any{
		"agreement_id": agreementID,
		"status":       status,
	})
}

func (c *WebSocketClient) NotifyDashboard(ctx context.Context, userID int64, dashboard any) error {
	return c.send(userID, EventDashboardUpdate, map[string]any{
		"dashboard": dashboard,
	})
}

func (c *WebSocketClient) NotifyStatementReady(ctx context.Context, userID int64, statementID, url, filename string) error {
	return c.send(userID, EventStatementReady, map[string]any{
		"id":       statementID,
		"url":      url,
		"filename": filename,
	})
}

func (c *WebSocketClient) NotifyStatementFailed(ctx context.Context, userID int64, statementID, errMsg string) error {
	return c.send(userID, EventStatementFailed, map[string]any{
		"id":      statementID,
		"message": errMsg,
	})
}

// ConnectedUsers lists users with an open socket.
func (c *WebSocketClient) ConnectedUsers() []int64 {
	if c == nil || c.hub == nil {
		return nil
	}
	return c.hub.ConnectedUsers()
}
