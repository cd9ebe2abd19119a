// Package helpers provides shared helper functions for x402 HTTP middleware implementations.
// These helpers are used by the stdlib, Gin, PocketBase and Chi middleware to ensure consistent behavior.
package helpers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/encoding"
)

const (
	// PaymentHeader carries the base64 JSON payment proof.
	PaymentHeader = "X-PAYMENT"
	// PaymentHeaderAlias is accepted when PaymentHeader is absent.
	PaymentHeaderAlias = "X-402"
	// PaymentResponseHeader carries the base64 JSON settlement receipt.
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
)

// PaymentHeaderValue returns the payment proof header, preferring X-PAYMENT over X-402.
func PaymentHeaderValue(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(PaymentHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.Header.Get(PaymentHeaderAlias))
}

// ParsePaymentHeaderFromRequest decodes the payment proof carried by r.
//
// Returns x402.ErrPaymentRequired if neither header is present and an error
// wrapping x402.ErrMalformedHeader if the value is not base64 JSON.
func ParsePaymentHeaderFromRequest(r *http.Request) (x402.PaymentPayload, error) {
	value := PaymentHeaderValue(r)
	if value == "" {
		return x402.PaymentPayload{}, x402.ErrPaymentRequired
	}
	return encoding.DecodePayment(value)
}

// IsSkipped reports whether path ends with or contains one of the skip suffixes.
func IsSkipped(path string, skip []string) bool {
	for _, s := range skip {
		if s == "" {
			continue
		}
		if strings.HasSuffix(path, s) || strings.Contains(path, s) {
			return true
		}
	}
	return false
}

// PaymentRequired builds the 402 body. errorMessage is omitted when empty.
func PaymentRequired(requirements []x402.PaymentRequirement, errorMessage string) x402.PaymentRequirementsResponse {
	return x402.PaymentRequirementsResponse{
		X402Version: x402.X402Version,
		Accepts:     requirements,
		Error:       errorMessage,
	}
}

// SendPaymentRequired sends a 402 Payment Required response with payment requirements in JSON format.
func SendPaymentRequired(w http.ResponseWriter, requirements []x402.PaymentRequirement, errorMessage string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	// Headers are already sent with the 402 status; an encoding error cannot be reported.
	_ = json.NewEncoder(w).Encode(PaymentRequired(requirements, errorMessage))
}

// AddPaymentResponseHeader adds the X-PAYMENT-RESPONSE header with base64-encoded settlement information.
func AddPaymentResponseHeader(h http.Header, settlement *x402.SettlementResponse) error {
	encoded, err := encoding.EncodeSettlement(*settlement)
	if err != nil {
		return err
	}
	h.Set(PaymentResponseHeader, encoded)
	return nil
}
