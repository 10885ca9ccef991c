package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"thinqscribe-payments/internal/domain"
)

type PaystackClient struct {
	http        *http.Client
	baseURL     string
	secretKey   string
	callbackURL string
}

func NewPaystackClient(baseURL, secretKey, callbackURL string) *PaystackClient {
	return &PaystackClient{
		http:        &http.Client{Timeout: 15 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		secretKey:   secretKey,
		callbackURL: callbackURL,
	}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackVerifyData struct {
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	PaidAt   string `json:"paid_at"`
}

// paystackChannels maps our method ids onto Paystack channel names.
var paystackChannels = map[domain.PaymentMethodID]string{
	domain.MethodCard:         "card",
	domain.MethodBankTransfer: "bank_transfer",
	domain.MethodUSSD:         "ussd",
	domain.MethodQR:           "qr",
	domain.MethodMobileMoney:  "mobile_money",
}

func (c *PaystackClient) Initialize(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	body := map[string]any{
		"email":        req.Email,
		"amount":       toMinorUnits(req.Amount),
		"currency":     strings.ToUpper(req.Currency),
		"reference":    req.Reference,
		"callback_url": c.callbackURL,
		"metadata":     req.Metadata,
	}
	if ch, ok := paystackChannels[req.Method]; ok {
		body["channels"] = []string{ch}
	}

	var data paystackInitData
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return CheckoutSession{}, err
	}

	return CheckoutSession{
		Reference:   data.Reference,
		SessionID:   data.AccessCode,
		CheckoutURL: data.AuthorizationURL,
	}, nil
}

func (c *PaystackClient) Verify(ctx context.Context, p domain.Payment) (GatewayVerification, error) {
	var data paystackVerifyData
	path := "/transaction/verify/" + url.PathEscape(p.Reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return GatewayVerification{}, err
	}

	out := GatewayVerification{
		Outcome:  paystackOutcome(data.Status),
		Amount:   fromMinorUnits(data.Amount),
		Currency: strings.ToLower(data.Currency),
		Raw:      data.Status,
	}
	if data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			out.PaidAt = &t
		}
	}
	return out, nil
}

func paystackOutcome(status string) domain.VerificationOutcome {
	switch strings.ToLower(status) {
	case "success":
		return domain.OutcomeSuccess
	case "failed", "abandoned", "reversed":
		return domain.OutcomeFailed
	default:
		return domain.OutcomePending
	}
}

func (c *PaystackClient) do(ctx context.Context, method, path string, body any, dst any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("paystack %s %s: network error: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env paystackEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &GatewayError{Gateway: domain.GatewayPaystack, StatusCode: resp.StatusCode, Message: "undecodable response"}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Status {
		return &GatewayError{Gateway: domain.GatewayPaystack, StatusCode: resp.StatusCode, Message: env.Message}
	}
	if dst == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, dst)
}
