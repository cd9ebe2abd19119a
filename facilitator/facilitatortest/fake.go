// Package facilitatortest provides an in-memory facilitator for tests of
// code that gates requests on payments.
package facilitatortest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/facilitator"
)

// DefaultPayer is reported by Fake.Verify when no VerifyFunc is set.
const DefaultPayer = "0x00000000000000000000000000000000000000000000000000000000000a11ce"

// DefaultTxHash is reported by Fake.Settle when no settlement is queued.
const DefaultTxHash = "0xfeed"

// Fake implements facilitator.Interface. Verify accepts every payment unless
// VerifyFunc says otherwise; Settle pops Settlements and SettleErrors in
// order and succeeds once both queues are exhausted.
type Fake struct {
	VerifyFunc   func(x402.PaymentPayload, x402.PaymentRequirement) (*facilitator.VerifyResponse, error)
	Settlements  []*x402.SettlementResponse
	SettleErrors []error
	Networks     []string

	verifyCalls atomic.Int32
	settleCalls atomic.Int32

	mu        sync.Mutex
	payments  []x402.PaymentPayload
	settleCtx error
}

var _ facilitator.Interface = (*Fake)(nil)

func (f *Fake) Verify(_ context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	f.verifyCalls.Add(1)
	f.mu.Lock()
	f.payments = append(f.payments, payment)
	f.mu.Unlock()

	if f.VerifyFunc != nil {
		return f.VerifyFunc(payment, requirement)
	}
	return &facilitator.VerifyResponse{IsValid: true, Payer: DefaultPayer}, nil
}

func (f *Fake) Settle(ctx context.Context, _ x402.PaymentPayload, _ x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	i := int(f.settleCalls.Add(1)) - 1
	f.mu.Lock()
	f.settleCtx = ctx.Err()
	f.mu.Unlock()

	var resp *x402.SettlementResponse
	var err error
	if i < len(f.Settlements) {
		resp = f.Settlements[i]
	}
	if i < len(f.SettleErrors) {
		err = f.SettleErrors[i]
	}
	if resp == nil && err == nil {
		resp = &x402.SettlementResponse{Success: true, TxHash: DefaultTxHash}
	}
	return resp, err
}

func (f *Fake) Supported(context.Context) (*facilitator.SupportedResponse, error) {
	networks := f.Networks
	if len(networks) == 0 {
		networks = []string{x402.MovementMainnet.ID}
	}
	return &facilitator.SupportedResponse{Networks: networks, Schemes: []string{x402.SchemeExact}}, nil
}

// VerifyCalls returns how many times Verify ran.
func (f *Fake) VerifyCalls() int { return int(f.verifyCalls.Load()) }

// SettleCalls returns how many times Settle ran.
func (f *Fake) SettleCalls() int { return int(f.settleCalls.Load()) }

// SettleContextErr returns the context error seen by the latest Settle call.
func (f *Fake) SettleContextErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settleCtx
}

// Payments returns the payloads Verify received.
func (f *Fake) Payments() []x402.PaymentPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]x402.PaymentPayload(nil), f.payments...)
}
