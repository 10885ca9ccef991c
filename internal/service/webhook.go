package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

// PaystackWebhook authenticates and applies Paystack events. Only
// charge.success changes state; other events are acknowledged and ignored.
// The charged amount arrives in kobo and must cover the payment.
type PaystackWebhook struct {
	secret   []byte
	verifier *VerificationService
	log      *zap.Logger
}

func NewPaystackWebhook(secret string, verifier *VerificationService, log *zap.Logger) *PaystackWebhook {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaystackWebhook{secret: []byte(secret), verifier: verifier, log: log}
}

// ValidSignature checks the hex HMAC-SHA512 of body sent in x-paystack-signature.
func (w *PaystackWebhook) ValidSignature(body []byte, signature string) bool {
	if len(w.secret) == 0 || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, w.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

func (w *PaystackWebhook) Handle(ctx context.Context, body []byte, signature string) error {
	if !w.ValidSignature(body, signature) {
		return ErrInvalidSignature
	}

	var ev paystackEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("decode paystack event: %w", err)
	}

	if ev.Event != "charge.success" {
		w.log.Debug("ignoring paystack event", zap.String("event", ev.Event))
		return nil
	}
	if ev.Data.Reference == "" {
		return fmt.Errorf("paystack event without reference")
	}

	w.log.Info("paystack charge confirmed",
		zap.String("reference", ev.Data.Reference),
		zap.Int64("amount_kobo", ev.Data.Amount),
		zap.String("currency", ev.Data.Currency),
	)
	return w.verifier.SettleCharge(ctx, ev.Data.Reference, decimal.New(ev.Data.Amount, -2), ev.Data.Currency)
}
