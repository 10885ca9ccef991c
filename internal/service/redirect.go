package service

import (
	"net/url"
	"strings"
)

type RedirectOutcome string

const (
	RedirectSuccess RedirectOutcome = "success"
	RedirectFailure RedirectOutcome = "failure"
	RedirectUnknown RedirectOutcome = "unknown"
)

var (
	successMarkers = []string{"/payment/success", "/payment-success", "/payment/callback", "/checkout/success"}
	failureMarkers = []string{"/payment/cancel", "/payment/failed", "/payment-failed", "/payment-cancelled", "/checkout/cancel"}
)

// ClassifyRedirect inspects a URL an embedded web view is about to load
// and tells whether the gateway finished the payment. The returned
// reference comes from the reference, trxref or session_id parameter.
func ClassifyRedirect(raw string) (RedirectOutcome, string) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || raw == "" {
		return RedirectUnknown, ""
	}

	q := u.Query()
	ref := q.Get("reference")
	if ref == "" {
		ref = q.Get("trxref")
	}
	if ref == "" {
		ref = q.Get("session_id")
	}

	path := strings.ToLower(u.Path)
	status := strings.ToLower(q.Get("status"))

	if status == "failed" || status == "cancelled" || q.Has("cancelled") {
		return RedirectFailure, ref
	}
	for _, m := range failureMarkers {
		if strings.Contains(path, m) {
			return RedirectFailure, ref
		}
	}
	for _, m := range successMarkers {
		if strings.Contains(path, m) {
			return RedirectSuccess, ref
		}
	}
	if status == "success" || status == "successful" {
		return RedirectSuccess, ref
	}
	return RedirectUnknown, ref
}
