package mvm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/facilitator"
)

// Config configures a Facilitator.
type Config struct {
	// Decoder overrides the build-selected transaction decoder.
	Decoder TransactionDecoder

	// Settler submits verified payments, typically an http.FacilitatorClient
	// pointed at ResolveFacilitatorURL.
	Settler facilitator.Interface

	// RPCURL is used by the simulation decoder when no BCS decoder is built in.
	RPCURL string

	// Networks are advertised by Supported. Defaults to ["movement"].
	Networks []string

	// ChainIDs overrides the expected chain id per network.
	ChainIDs map[string]uint8

	Timeouts x402.TimeoutConfig
	Logger   *slog.Logger

	// Now is the clock used for expiry checks. Defaults to time.Now.
	Now func() time.Time
}

// Facilitator verifies Move payments locally and settles them through Settler.
type Facilitator struct {
	decoder  TransactionDecoder
	settler  facilitator.Interface
	networks []string
	chainIDs map[string]uint8
	timeouts x402.TimeoutConfig
	logger   *slog.Logger
	now      func() time.Time
}

var _ facilitator.Interface = (*Facilitator)(nil)

// NewFacilitator builds a Facilitator. The transaction decoder is chosen here,
// once, and used for every request.
func NewFacilitator(cfg Config) (*Facilitator, error) {
	f := &Facilitator{
		decoder:  cfg.Decoder,
		settler:  cfg.Settler,
		networks: cfg.Networks,
		chainIDs: cfg.ChainIDs,
		timeouts: cfg.Timeouts,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.timeouts == (x402.TimeoutConfig{}) {
		f.timeouts = x402.DefaultTimeouts
	}
	if len(f.networks) == 0 {
		f.networks = []string{x402.MovementMainnet.ID}
	}
	if f.decoder == nil {
		d, err := defaultDecoder(cfg.RPCURL, f.timeouts.VerifyTimeout)
		if err != nil {
			return nil, fmt.Errorf("transaction decoder: %w", err)
		}
		f.decoder = d
	}
	f.logger.Info("move facilitator ready", "decoder", f.decoder.Name(), "networks", f.networks)
	return f, nil
}

// Verify decodes the transaction carried by payment and checks it against
// requirement. Every problem with the payment is reported as an invalid
// response; the returned error is always nil.
func (f *Facilitator) Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	body, ok := ParsePayload(payment.Payload)
	if !ok {
		return invalid("transaction not found in payment payload"), nil
	}

	txBytes, err := decodeBase64(body.Transaction)
	if err != nil {
		return invalid(fmt.Sprintf("failed to decode transaction: %v", err)), nil
	}

	tx, err := f.decoder.Decode(ctx, txBytes)
	if err != nil {
		f.logger.Debug("transaction decode failed", "decoder", f.decoder.Name(), "error", err)
		return invalid(err.Error()), nil
	}

	if reason := checkTransaction(tx, requirement, f.now(), f.expectedChainID(requirement.Network)); reason != "" {
		return invalid(reason), nil
	}
	if !isKnownTransfer(tx) {
		f.logger.Warn("accepting payment without transfer checks", "payer", tx.Sender, "function", tx.functionName())
	}
	return &facilitator.VerifyResponse{IsValid: true, Payer: tx.Sender}, nil
}

func (f *Facilitator) expectedChainID(network string) *uint8 {
	if id, ok := f.chainIDs[network]; ok {
		return &id
	}
	if n, ok := x402.LookupNetwork(network); ok {
		id := n.ChainID
		return &id
	}
	return nil
}

func invalid(reason string) *facilitator.VerifyResponse {
	return &facilitator.VerifyResponse{IsValid: false, InvalidReason: reason}
}

// Settle makes one settlement attempt through the configured settler. Remote
// and transport failures are folded into an unsuccessful SettlementResponse.
func (f *Facilitator) Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	if f.settler == nil {
		return &x402.SettlementResponse{Success: false, Error: "no settlement service configured"}, nil
	}

	resp, err := f.settler.Settle(ctx, payment, requirement)
	if err != nil {
		return &x402.SettlementResponse{Success: false, Error: settlementError(err)}, nil
	}
	if resp.Network == "" {
		resp.Network = requirement.Network
	}
	return resp, nil
}

func settlementError(err error) string {
	var statusErr *x402.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Error()
	}
	var transportErr *x402.TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Error()
	}
	return err.Error()
}

// Supported lists the networks this facilitator verifies.
func (f *Facilitator) Supported(context.Context) (*facilitator.SupportedResponse, error) {
	return &facilitator.SupportedResponse{
		Networks: append([]string(nil), f.networks...),
		Schemes:  []string{x402.SchemeExact},
	}, nil
}

// DecoderName reports which transaction decoder is in use.
func (f *Facilitator) DecoderName() string {
	return f.decoder.Name()
}
