// Package bcs reads and writes the Binary Canonical Serialization form of
// Move transactions (Aptos and Movement). Only the RawTransaction slice needed
// to recover sender, payload, expiry and chain id is modelled.
package bcs

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the size of a Move account address in bytes.
const AddressLength = 32

// AccountAddress is a Move account address.
type AccountAddress [AddressLength]byte

// ParseAddress parses a hex address with or without the 0x prefix. Short
// forms such as "0x1" are left-padded with zeros.
func ParseAddress(s string) (AccountAddress, error) {
	var addr AccountAddress

	h := strings.TrimSpace(s)
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	if h == "" || len(h) > 2*AddressLength {
		return addr, fmt.Errorf("invalid address %q: expected 1 to 64 hex characters", s)
	}
	if len(h) < 2*AddressLength {
		h = strings.Repeat("0", 2*AddressLength-len(h)) + h
	}

	b, err := hex.DecodeString(h)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(addr[:], b)
	return addr, nil
}

// MustParseAddress is ParseAddress for package-level constants.
func MustParseAddress(s string) AccountAddress {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// Bytes returns a copy of the address bytes.
func (a AccountAddress) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// String returns the long form, 0x followed by 64 lowercase hex characters.
func (a AccountAddress) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// ShortString returns "0x0" through "0xf" for the reserved framework
// addresses and the long form for everything else.
func (a AccountAddress) ShortString() string {
	if a.isSpecial() {
		return fmt.Sprintf("0x%x", a[AddressLength-1])
	}
	return a.String()
}

func (a AccountAddress) isSpecial() bool {
	for _, b := range a[:AddressLength-1] {
		if b != 0 {
			return false
		}
	}
	return a[AddressLength-1] < 0x10
}

// NormalizeAddress returns the long lowercase form of s, or s lowercased when
// it is not a parseable address.
func NormalizeAddress(s string) string {
	addr, err := ParseAddress(s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return addr.String()
}
