// Package validation checks route prices and payment requirements before a
// paywall starts serving.
package validation

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/mark3labs/x402-movement"
)

var (
	// moveAddressRegex matches Move account addresses: optional 0x, 1 to 64 hex chars.
	moveAddressRegex = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{1,64}$`)

	// coinTypeRegex matches struct tags such as 0x1::aptos_coin::AptosCoin, with
	// optional generic arguments.
	coinTypeRegex = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{1,64}::[A-Za-z_][A-Za-z0-9_]*::[A-Za-z_][A-Za-z0-9_]*(<.+>)?$`)
)

// ValidateAmount validates that an amount string is a non-negative base-10 integer.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("amount cannot be negative, got: %s", amount)
	}
	return nil
}

// ValidateAddress validates a Move account address.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !moveAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid Move address format: %s (expected 0x followed by 1-64 hex characters)", address)
	}
	return nil
}

// ValidateAsset accepts a coin type tag or a fungible asset metadata address.
func ValidateAsset(asset string) error {
	if asset == "" {
		return fmt.Errorf("asset cannot be empty")
	}
	if coinTypeRegex.MatchString(asset) || moveAddressRegex.MatchString(asset) {
		return nil
	}
	return fmt.Errorf("invalid asset: %s (expected a coin type like 0x1::aptos_coin::AptosCoin or an address)", asset)
}

// ValidatePaymentRequirement performs comprehensive validation of a payment requirement.
func ValidatePaymentRequirement(req x402.PaymentRequirement) error {
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if req.Network == "" {
		return fmt.Errorf("invalid requirement: network cannot be empty")
	}
	if _, err := x402.ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if err := ValidateAddress(req.PayTo); err != nil {
		return fmt.Errorf("invalid requirement: payTo %w", err)
	}

	if err := ValidateAsset(req.Asset); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	switch req.Scheme {
	case x402.SchemeExact:
	case "":
		return fmt.Errorf("invalid requirement: scheme cannot be empty")
	default:
		return fmt.Errorf("invalid requirement: unsupported scheme %s", req.Scheme)
	}

	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirement: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}
	return nil
}

// ValidateRoutes checks that every route, priced for payTo, yields a valid
// requirement. All problems are reported together.
func ValidateRoutes(routes *x402.Routes, payTo string) error {
	if routes.Len() == 0 {
		return fmt.Errorf("%w: no protected routes configured", x402.ErrInvalidRoute)
	}

	var errs []error
	for key, cfg := range routes.All() {
		if err := ValidatePaymentRequirement(cfg.Requirement("", payTo)); err != nil {
			errs = append(errs, fmt.Errorf("route %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// ValidatePaymentPayload validates a decoded payment header.
func ValidatePaymentPayload(payment x402.PaymentPayload) error {
	if payment.X402Version != x402.X402Version {
		return fmt.Errorf("unsupported x402 version: %d", payment.X402Version)
	}

	if payment.Scheme != x402.SchemeExact {
		return fmt.Errorf("unsupported scheme: %q", payment.Scheme)
	}

	if payment.Network != "" {
		if _, err := x402.ValidateNetwork(payment.Network); err != nil {
			return fmt.Errorf("invalid network: %w", err)
		}
	}

	if payment.Payload == nil {
		return fmt.Errorf("payload cannot be nil")
	}
	return nil
}
