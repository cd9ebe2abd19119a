package x402

import (
	"errors"
	"fmt"
)

var (
	// ErrPaymentRequired indicates that payment is required to access the resource.
	ErrPaymentRequired = errors.New("payment required")

	// ErrMalformedHeader indicates that the X-PAYMENT header could not be decoded.
	ErrMalformedHeader = errors.New("invalid payment header")

	// ErrInvalidAmount indicates a malformed or negative amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidRoute indicates a route key that is not of the form "METHOD /path".
	ErrInvalidRoute = errors.New("invalid route")

	// ErrUnsupportedNetwork indicates an unknown network identifier.
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrMalformedTransaction indicates bytes that do not decode as a RawTransaction.
	ErrMalformedTransaction = errors.New("malformed transaction")

	// ErrFacilitatorUnavailable indicates the facilitator could not be reached.
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")

	// ErrSettlementFailed indicates settlement did not succeed.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrVerificationFailed indicates the verification call itself failed.
	ErrVerificationFailed = errors.New("verification failed")
)

// StatusError is returned when a facilitator answers with a non-200 status.
type StatusError struct {
	StatusCode int
	// Message is the "error" or "message" field of a JSON error body, if any.
	Message string
	// Body is the raw response body truncated to 500 bytes.
	Body string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// TransportError wraps a failure to reach the facilitator at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "facilitator request failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrFacilitatorUnavailable, e.Err}
}

// Client-side errors returned while answering a 402 challenge.
var (
	// ErrNoValidSigner indicates no configured signer can satisfy any offered requirement.
	ErrNoValidSigner = errors.New("no signer can satisfy payment requirements")

	// ErrAmountExceeded indicates the requested amount is above the signer's per-call limit.
	ErrAmountExceeded = errors.New("payment amount exceeds limit")

	// ErrInvalidKey indicates a missing or malformed private key.
	ErrInvalidKey = errors.New("invalid private key")

	// ErrInvalidRequirements indicates a 402 body that could not be used to pay.
	ErrInvalidRequirements = errors.New("invalid payment requirements")
)

// PaymentError is returned by the paying client. Code names the stage that
// failed so callers can branch without string matching.
type PaymentError struct {
	Code    string
	Message string
	Err     error
}

// Payment error codes.
const (
	ErrCodeInvalidRequirements = "INVALID_REQUIREMENTS"
	ErrCodeNoValidSigner       = "NO_VALID_SIGNER"
	ErrCodeSigningFailed       = "SIGNING_FAILED"
)

// NewPaymentError creates a PaymentError.
func NewPaymentError(code, message string, err error) *PaymentError {
	return &PaymentError{Code: code, Message: message, Err: err}
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}
