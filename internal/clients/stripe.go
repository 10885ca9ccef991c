package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"thinqscribe-payments/internal/domain"
)

// StripeClient drives Stripe Checkout Sessions over the form-encoded REST API.
type StripeClient struct {
	http       *http.Client
	baseURL    string
	secretKey  string
	successURL string
	cancelURL  string
}

func NewStripeClient(baseURL, secretKey, successURL, cancelURL string) *StripeClient {
	return &StripeClient{
		http:       &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
}

type stripeErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) Initialize(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", c.successURL)
	form.Set("cancel_url", c.cancelURL)
	form.Set("client_reference_id", req.Reference)
	if req.Email != "" {
		form.Set("customer_email", req.Email)
	}
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(toMinorUnits(req.Amount), 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("metadata[reference]", req.Reference)
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}
	if req.Method == domain.MethodCard {
		form.Set("payment_method_types[0]", "card")
	}

	var s stripeSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &s); err != nil {
		return CheckoutSession{}, err
	}
	return CheckoutSession{Reference: req.Reference, SessionID: s.ID, CheckoutURL: s.URL}, nil
}

func (c *StripeClient) Verify(ctx context.Context, p domain.Payment) (GatewayVerification, error) {
	if p.SessionID == "" {
		return GatewayVerification{}, fmt.Errorf("stripe verify %s: missing checkout session id", p.Reference)
	}

	var s stripeSession
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(p.SessionID), nil, &s); err != nil {
		return GatewayVerification{}, err
	}

	return GatewayVerification{
		Outcome:  stripeOutcome(s.Status, s.PaymentStatus),
		Amount:   fromMinorUnits(s.AmountTotal),
		Currency: strings.ToLower(s.Currency),
		Raw:      s.Status + "/" + s.PaymentStatus,
	}, nil
}

func stripeOutcome(status, paymentStatus string) domain.VerificationOutcome {
	switch {
	case paymentStatus == "paid" || paymentStatus == "no_payment_required":
		return domain.OutcomeSuccess
	case status == "expired":
		return domain.OutcomeFailed
	default:
		return domain.OutcomePending
	}
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, dst any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.secretKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stripe %s %s: network error: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e stripeErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &GatewayError{Gateway: domain.GatewayStripe, StatusCode: resp.StatusCode, Message: e.Error.Message}
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
