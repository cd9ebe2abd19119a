package x402

import (
	"context"
	"math/big"
	"time"
)

// Signer produces payment proofs for one Move network. The paying HTTP
// client asks each configured signer whether it can satisfy a challenge and
// lets the selector pick one.
type Signer interface {
	// Network returns the network identifier the signer pays on (e.g., "movement").
	Network() string

	// Scheme returns the payment scheme identifier (always "exact").
	Scheme() string

	// CanSign reports whether the signer pays on the requirement's network
	// with the requirement's asset.
	CanSign(requirement *PaymentRequirement) bool

	// Sign builds and signs a transfer satisfying requirement.
	// Returns an error wrapping ErrAmountExceeded if the amount is above the signer's limit.
	Sign(ctx context.Context, requirement *PaymentRequirement) (*PaymentPayload, error)

	// GetPriority returns the signer's priority. Lower numbers win.
	GetPriority() int

	// GetAssets returns the coin types the signer can pay with.
	GetAssets() []AssetConfig

	// GetMaxAmount returns the per-call spending limit, or nil if no limit is set.
	GetMaxAmount() *big.Int
}

// AssetConfig describes a coin type a signer holds.
type AssetConfig struct {
	// CoinType is the Move coin type tag (e.g., "0x1::aptos_coin::AptosCoin").
	CoinType string
	Symbol   string
	Decimals int
	// Priority orders assets within one signer. Lower numbers win.
	Priority int
}

// PaymentEventType identifies a stage of a client-side payment.
type PaymentEventType string

const (
	PaymentEventAttempt PaymentEventType = "attempt"
	PaymentEventSuccess PaymentEventType = "success"
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent is reported to PaymentCallback functions by the paying client.
type PaymentEvent struct {
	Type      PaymentEventType
	Timestamp time.Time
	URL       string
	Network   string
	Amount    string
	Asset     string
	Recipient string
	// TxHash and Payer are set on success events.
	TxHash string
	Payer  string
	// Error is set on failure events.
	Error    error
	Duration time.Duration
}

// PaymentCallback receives payment lifecycle events.
type PaymentCallback func(event PaymentEvent)
