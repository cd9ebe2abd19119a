// Package encoding provides utilities for encoding and decoding x402 payment data.
// It handles base64 and JSON marshaling for payment headers, settlement receipts and challenges.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/x402-movement"
)

// EncodePayment converts a PaymentPayload to a base64-encoded JSON string
// suitable for the X-PAYMENT header.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	paymentJSON, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(paymentJSON), nil
}

// DecodePayment decodes an X-PAYMENT header value. The header must be base64
// (padded or not) of a UTF-8 JSON object. The payment body is taken from the
// "payload" member when it is an object, otherwise the whole object is the body.
// A missing x402Version defaults to 1 and a missing scheme to "exact".
//
// Every failure wraps x402.ErrMalformedHeader.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload

	decoded, err := decodeBase64(strings.TrimSpace(encoded))
	if err != nil {
		return payment, fmt.Errorf("%w: failed to decode base64: %v", x402.ErrMalformedHeader, err)
	}
	if !utf8.Valid(decoded) {
		return payment, fmt.Errorf("%w: payload is not valid UTF-8", x402.ErrMalformedHeader)
	}

	var raw map[string]any
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return payment, fmt.Errorf("%w: payload is not a JSON object: %v", x402.ErrMalformedHeader, err)
	}
	if raw == nil {
		return payment, fmt.Errorf("%w: payload is not a JSON object", x402.ErrMalformedHeader)
	}

	payment.X402Version = x402.X402Version
	if v, ok := raw["x402Version"].(float64); ok {
		payment.X402Version = int(v)
	}

	payment.Scheme = x402.SchemeExact
	if s, ok := raw["scheme"].(string); ok && s != "" {
		payment.Scheme = strings.ToLower(s)
	}

	if n, ok := raw["network"].(string); ok {
		payment.Network = n
	}

	if body, ok := raw["payload"].(map[string]any); ok {
		payment.Payload = body
	} else {
		payment.Payload = raw
	}

	return payment, nil
}

func decodeBase64(s string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return decoded, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

// EncodeSettlement converts a SettlementResponse to a base64-encoded JSON
// string for the X-PAYMENT-RESPONSE header.
func EncodeSettlement(settlement x402.SettlementResponse) (string, error) {
	settlementJSON, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(settlementJSON), nil
}

// DecodeSettlement converts a base64-encoded JSON string to SettlementResponse.
func DecodeSettlement(encoded string) (x402.SettlementResponse, error) {
	var settlement x402.SettlementResponse

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return settlement, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &settlement); err != nil {
		return settlement, fmt.Errorf("failed to unmarshal settlement: %w", err)
	}

	return settlement, nil
}

// EncodeRequirements converts a PaymentRequirementsResponse to base64-encoded JSON.
func EncodeRequirements(requirements x402.PaymentRequirementsResponse) (string, error) {
	reqJSON, err := json.Marshal(requirements)
	if err != nil {
		return "", fmt.Errorf("failed to marshal requirements: %w", err)
	}
	return base64.StdEncoding.EncodeToString(reqJSON), nil
}
