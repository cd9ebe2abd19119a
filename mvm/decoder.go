package mvm

import (
	"context"
	"fmt"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/bcs"
)

// Transaction is the part of a Move transaction that payment verification
// needs. Optional fields are nil when the decoder could not recover them.
type Transaction struct {
	Sender         string
	SequenceNumber *uint64
	Expiration     *uint64
	ChainID        *uint8
	EntryFunction  *EntryFunctionCall
}

// EntryFunctionCall is the entry function a transaction executes.
type EntryFunctionCall struct {
	// Function is "0xADDR::module::function".
	Function string
	// TypeArgs are rendered type tags, e.g. "0x1::aptos_coin::AptosCoin".
	TypeArgs []string
	// Args are BCS-encoded arguments in declaration order.
	Args [][]byte
}

// TransactionDecoder recovers a Transaction from raw transaction bytes.
// Implementations are selected once when the facilitator is constructed.
type TransactionDecoder interface {
	Decode(ctx context.Context, txBytes []byte) (*Transaction, error)
	Name() string
}

// BCSDecoder decodes the BCS RawTransaction locally.
type BCSDecoder struct{}

func (BCSDecoder) Name() string { return "bcs" }

func (BCSDecoder) Decode(_ context.Context, txBytes []byte) (*Transaction, error) {
	raw, err := bcs.DecodeRawTransaction(txBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrMalformedTransaction, err)
	}

	seq, exp, chain := raw.SequenceNumber, raw.ExpirationTimestampSecs, raw.ChainID
	tx := &Transaction{
		Sender:         raw.Sender.String(),
		SequenceNumber: &seq,
		Expiration:     &exp,
		ChainID:        &chain,
	}
	if f, ok := raw.Payload.EntryFunctionCall(); ok {
		call := &EntryFunctionCall{
			Function: f.FunctionID(),
			Args:     f.Args,
		}
		for _, t := range f.TypeArgs {
			call.TypeArgs = append(call.TypeArgs, t.String())
		}
		tx.EntryFunction = call
	}
	return tx, nil
}
