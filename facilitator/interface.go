// Package facilitator defines the verify/settle contract shared by the local
// Move facilitator, the remote HTTP client and the facilitator server.
package facilitator

import (
	"context"

	"github.com/mark3labs/x402-movement"
)

// Interface defines the standard facilitator contract for payment verification and settlement.
type Interface interface {
	// Verify checks a payment against a requirement without submitting anything.
	Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*VerifyResponse, error)

	// Settle submits a verified payment. Implementations make exactly one attempt.
	Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error)

	// Supported lists the networks and schemes the facilitator accepts.
	Supported(ctx context.Context) (*SupportedResponse, error)
}

// VerifyResponse contains the payment verification result from the facilitator.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	Payer         string `json:"payer,omitempty"`
	InvalidReason string `json:"invalidReason,omitempty"`
}

// SupportedResponse lists the payment types a facilitator accepts.
type SupportedResponse struct {
	Networks []string `json:"networks"`
	Schemes  []string `json:"schemes"`
}

// Request is the JSON body of /verify and /settle. PaymentPayload carries the
// payment body only (transaction and signature), not the outer header envelope.
type Request struct {
	X402Version         int                     `json:"x402Version"`
	PaymentPayload      map[string]any          `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirement `json:"paymentRequirements"`
}

// NewRequest builds the request body for payment and requirement.
func NewRequest(payment x402.PaymentPayload, requirement x402.PaymentRequirement) Request {
	version := payment.X402Version
	if version == 0 {
		version = x402.X402Version
	}
	return Request{
		X402Version:         version,
		PaymentPayload:      payment.Payload,
		PaymentRequirements: requirement,
	}
}

// Payment converts a request body back into a PaymentPayload.
func (r Request) Payment() x402.PaymentPayload {
	version := r.X402Version
	if version == 0 {
		version = x402.X402Version
	}
	return x402.PaymentPayload{
		X402Version: version,
		Scheme:      r.PaymentRequirements.Scheme,
		Network:     r.PaymentRequirements.Network,
		Payload:     r.PaymentPayload,
	}
}
