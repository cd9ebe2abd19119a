package mvm

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/bcs"
)

// transferKind describes where a known transfer function takes its coin type from.
type transferKind int

const (
	// nativeTransfer always moves the native coin.
	nativeTransfer transferKind = iota
	// typedTransfer moves the coin named by its first type argument.
	typedTransfer
)

// knownTransfers are the entry functions whose first two arguments are
// (recipient address, amount u64).
var knownTransfers = map[string]transferKind{
	normalizeFunctionID("0x1::aptos_account::transfer"):       nativeTransfer,
	normalizeFunctionID("0x1::aptos_account::transfer_coins"): typedTransfer,
	normalizeFunctionID("0x1::coin::transfer"):                typedTransfer,
}

// checkTransaction applies the requirement to a decoded transaction and
// returns the invalid reason, or "" when the transaction satisfies it.
func checkTransaction(tx *Transaction, req x402.PaymentRequirement, now time.Time, expectedChainID *uint8) string {
	if tx.Expiration != nil {
		current := uint64(max(now.Unix(), 0))
		exp := *tx.Expiration
		if exp < current {
			return "transaction has expired"
		}
		if exp > current+uint64(max(req.MaxTimeoutSeconds, 0)) {
			return "transaction expiration exceeds maximum timeout"
		}
	}

	if tx.ChainID != nil && expectedChainID != nil && *tx.ChainID != *expectedChainID {
		return fmt.Sprintf("chain id mismatch: expected %d, got %d", *expectedChainID, *tx.ChainID)
	}

	if tx.EntryFunction == nil {
		return ""
	}
	kind, ok := knownTransfers[normalizeFunctionID(tx.EntryFunction.Function)]
	if !ok {
		return ""
	}
	return checkTransfer(tx.EntryFunction, kind, req)
}

// isKnownTransfer reports whether tx calls one of knownTransfers, whose
// recipient and amount were checked.
func isKnownTransfer(tx *Transaction) bool {
	if tx.EntryFunction == nil {
		return false
	}
	_, ok := knownTransfers[normalizeFunctionID(tx.EntryFunction.Function)]
	return ok
}

func (tx *Transaction) functionName() string {
	if tx.EntryFunction == nil {
		return "none"
	}
	return tx.EntryFunction.Function
}

func checkTransfer(call *EntryFunctionCall, kind transferKind, req x402.PaymentRequirement) string {
	if len(call.Args) < 2 {
		return fmt.Sprintf("transfer arguments malformed: expected recipient and amount, got %d arguments", len(call.Args))
	}
	recipient, err := bcs.DecodeAddressArg(call.Args[0])
	if err != nil {
		return "transfer arguments malformed: " + err.Error()
	}
	amount, err := bcs.DecodeU64Arg(call.Args[1])
	if err != nil {
		return "transfer arguments malformed: " + err.Error()
	}

	expectedPayTo := bcs.NormalizeAddress(req.PayTo)
	if got := recipient.String(); got != expectedPayTo {
		return fmt.Sprintf("recipient mismatch: expected %s, got %s", expectedPayTo, got)
	}

	required, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
	if !ok {
		return fmt.Sprintf("invalid maxAmountRequired: %q", req.MaxAmountRequired)
	}
	if got := new(big.Int).SetUint64(amount); got.Cmp(required) < 0 {
		return fmt.Sprintf("amount insufficient: required %s, got %s", required, got)
	}

	if req.Asset != "" {
		coin := x402.NativeCoin
		if kind == typedTransfer {
			if len(call.TypeArgs) == 0 {
				return "transfer arguments malformed: missing coin type"
			}
			coin = call.TypeArgs[0]
		}
		if normalizeTypeTag(coin) != normalizeTypeTag(req.Asset) {
			return fmt.Sprintf("asset mismatch: expected %s, got %s", req.Asset, coin)
		}
	}
	return ""
}

// normalizeFunctionID rewrites the address part of "ADDR::module::function" to its long form.
func normalizeFunctionID(id string) string {
	return normalizeTypeTag(id)
}

// normalizeTypeTag rewrites the leading address of a "ADDR::module::name"
// string to its long form so short and long spellings compare equal.
func normalizeTypeTag(s string) string {
	s = strings.TrimSpace(s)
	addr, rest, ok := strings.Cut(s, "::")
	if !ok {
		return strings.ToLower(s)
	}
	return bcs.NormalizeAddress(addr) + "::" + rest
}
