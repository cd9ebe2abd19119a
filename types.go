package x402

import "math/big"

// X402Version is the only protocol version this gateway speaks.
const X402Version = 1

// SchemeExact is the single payment scheme advertised in challenges.
const SchemeExact = "exact"

// PaymentRequirement represents a single payment option from a 402 response.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier. Always "exact".
	Scheme string `json:"scheme"`

	// Network is the Move network identifier (e.g., "movement", "movement-testnet").
	Network string `json:"network"`

	// MaxAmountRequired is the payment amount in the asset's smallest unit, as a base-10 string.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Resource is the absolute URL of the protected resource.
	Resource string `json:"resource"`

	// Description is a human-readable payment description.
	Description string `json:"description"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType"`

	// PayTo is the Move account that must receive the payment.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds bounds how far in the future a transaction may expire.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Asset is the coin type tag (e.g., "0x1::aptos_coin::AptosCoin").
	Asset string `json:"asset"`

	OutputSchema map[string]any `json:"outputSchema,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// PaymentRequirementsResponse represents the complete 402 response body.
type PaymentRequirementsResponse struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Accepts is the list of payment options the server will accept.
	Accepts []PaymentRequirement `json:"accepts"`

	// Error explains why a presented payment was refused. Empty when no payment was presented.
	Error string `json:"error,omitempty"`
}

// PaymentPayload is the decoded X-PAYMENT header.
type PaymentPayload struct {
	// X402Version is the protocol version. Defaults to 1 when the client omits it.
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier, lowercased.
	Scheme string `json:"scheme"`

	// Network is the network the client paid on.
	Network string `json:"network"`

	// Payload is the scheme-specific body. Clients either nest it under "payload"
	// or send it at the top level; decoding normalizes both into this map.
	Payload map[string]any `json:"payload"`
}

// MovePayload is the normalized Move payment body.
type MovePayload struct {
	// Transaction is the base64-encoded BCS RawTransaction.
	Transaction string `json:"transaction"`

	// Signature is the base64-encoded BCS account authenticator.
	Signature string `json:"signature"`
}

// SettlementResponse is the facilitator's answer to a settle request. It is
// also the content of the X-PAYMENT-RESPONSE header.
type SettlementResponse struct {
	// Success indicates whether the payment was submitted on chain.
	Success bool `json:"success"`

	// TxHash is the transaction hash returned by the settlement service.
	TxHash string `json:"txHash,omitempty"`

	// Network is the network the payment was settled on.
	Network string `json:"network,omitempty"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`

	// Payer is the sending account, when the settlement service reports it.
	Payer string `json:"payer,omitempty"`
}

// AmountToBigInt converts a decimal amount string to *big.Int in atomic units.
// For example, "1.5" with 8 decimals becomes 150000000.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	value, ok := new(big.Rat).SetString(amount)
	if !ok || value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	value.Mul(value, new(big.Rat).SetInt(scale))
	if !value.IsInt() {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(value.Num()), nil
}

// BigIntToAmount converts a *big.Int in atomic units to a decimal string.
// For example, 150000000 with 8 decimals becomes "1.50000000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Rat).SetFrac(value, scale).FloatString(decimals)
}
