package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/facilitator"
	"github.com/mark3labs/x402-movement/http/internal/helpers"
	"github.com/mark3labs/x402-movement/mvm"
	"github.com/mark3labs/x402-movement/retry"
	"github.com/mark3labs/x402-movement/validation"
)

// State is the paywall's verdict for one request.
type State int

const (
	// StateUnprotected means no route policy applies; the request is forwarded.
	StateUnprotected State = iota
	// StateNoProof means the route is protected and no payment header was sent.
	StateNoProof
	// StateInvalidHeader means the payment header could not be decoded.
	StateInvalidHeader
	// StateVerifyFailed means the payment was rejected or could not be verified.
	StateVerifyFailed
	// StateSettleFailed means settlement failed on both attempts.
	StateSettleFailed
	// StatePaid means the payment settled; the request is forwarded.
	StatePaid
)

func (s State) String() string {
	switch s {
	case StateUnprotected:
		return "unprotected"
	case StateNoProof:
		return "no_proof"
	case StateInvalidHeader:
		return "invalid_header"
	case StateVerifyFailed:
		return "verify_failed"
	case StateSettleFailed:
		return "settle_failed"
	case StatePaid:
		return "paid"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome is the result of running one request through the paywall.
type Outcome struct {
	State State

	// Requirement is the challenge for the matched route. Zero when unprotected.
	Requirement x402.PaymentRequirement

	// Error is the reason reported in the 402 body. Empty for StateNoProof.
	Error string

	Verification *facilitator.VerifyResponse
	Settlement   *x402.SettlementResponse

	RequestID string
}

// Allowed reports whether the request may reach the protected handler.
func (o Outcome) Allowed() bool {
	return o.State == StateUnprotected || o.State == StatePaid
}

// Challenge is the 402 body for a refused request.
func (o Outcome) Challenge() x402.PaymentRequirementsResponse {
	return helpers.PaymentRequired([]x402.PaymentRequirement{o.Requirement}, o.Error)
}

// WriteChallenge writes the 402 response for a refused request.
func (o Outcome) WriteChallenge(w http.ResponseWriter) {
	helpers.SendPaymentRequired(w, []x402.PaymentRequirement{o.Requirement}, o.Error)
}

// AddReceipt sets the X-PAYMENT-RESPONSE header for a paid request.
func (o Outcome) AddReceipt(h http.Header) error {
	if o.Settlement == nil {
		return nil
	}
	return helpers.AddPaymentResponseHeader(h, o.Settlement)
}

// Paywall decides, per request, whether a payment is required and drives
// verification and settlement. It holds no per-request state and is safe
// for concurrent use.
type Paywall struct {
	payTo       string
	routes      *x402.Routes
	skip        []string
	facilitator facilitator.Interface
	retry       retry.Config
	timeouts    x402.TimeoutConfig
	logger      *slog.Logger
}

// NewPaywall validates config and builds a Paywall. When config.Facilitator
// is nil a Move facilitator is built that verifies locally and settles
// through the remote facilitator at config.FacilitatorURL (resolved from the
// environment when empty).
func NewPaywall(config *Config) (*Paywall, error) {
	if config == nil {
		return nil, errors.New("x402: nil config")
	}
	if err := validation.ValidateRoutes(config.Routes, config.PayTo); err != nil {
		return nil, fmt.Errorf("x402: %w", err)
	}

	p := &Paywall{
		payTo:       config.PayTo,
		routes:      config.Routes,
		skip:        config.SkipPaths,
		facilitator: config.Facilitator,
		retry:       config.SettleRetry,
		timeouts:    config.Timeouts,
		logger:      config.Logger,
	}
	if p.skip == nil {
		p.skip = DefaultSkipPaths
	}
	if p.retry == (retry.Config{}) {
		p.retry = retry.SettleConfig
	}
	if p.timeouts == (x402.TimeoutConfig{}) {
		p.timeouts = x402.DefaultTimeouts
	}
	if err := p.timeouts.Validate(); err != nil {
		return nil, fmt.Errorf("x402: %w", err)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	if p.facilitator == nil {
		f, err := newMoveFacilitator(config, p.timeouts, p.logger)
		if err != nil {
			return nil, fmt.Errorf("x402: %w", err)
		}
		p.facilitator = f
	}
	return p, nil
}

func newMoveFacilitator(config *Config, timeouts x402.TimeoutConfig, logger *slog.Logger) (*mvm.Facilitator, error) {
	url := mvm.ResolveFacilitatorURL(config.FacilitatorURL, mvm.OSEnvironment())
	settler := NewFacilitatorClient(url,
		WithAuthorization(config.FacilitatorAuthorization),
		WithAuthorizationProvider(config.FacilitatorAuthorizationProvider),
		WithFacilitatorTimeouts(timeouts),
		WithFacilitatorLogger(logger),
	)
	logger.Info("settling payments through remote facilitator", "url", url)

	rpcURL := config.RPCURL
	if rpcURL == "" {
		rpcURL = x402.MovementMainnet.RPCURL
		if settings, err := mvm.LoadSettings(mvm.OSEnvironment()); err == nil {
			rpcURL = settings.RPCURL
		}
	}

	return mvm.NewFacilitator(mvm.Config{
		Settler:  settler,
		RPCURL:   rpcURL,
		ChainIDs: config.ChainIDs,
		Timeouts: timeouts,
		Logger:   logger,
	})
}

// Process runs r through the paywall. It never panics and never returns an
// error: every failure is an Outcome that denies access.
func (p *Paywall) Process(r *http.Request) (out Outcome) {
	path := r.URL.Path
	if helpers.IsSkipped(path, p.skip) {
		return Outcome{State: StateUnprotected}
	}
	route, ok := p.routes.Lookup(r.Method, path)
	if !ok {
		return Outcome{State: StateUnprotected}
	}

	out = Outcome{
		Requirement: route.Requirement(x402.ResourceURL(r), p.payTo),
		RequestID:   uuid.NewString(),
	}
	logger := p.logger.With("requestID", out.RequestID, "method", r.Method, "path", path)

	header := helpers.PaymentHeaderValue(r)
	if header == "" {
		logger.Info("no payment header provided")
		out.State = StateNoProof
		return out
	}

	payment, err := helpers.ParsePaymentHeaderFromRequest(r)
	if err == nil {
		if verr := validation.ValidatePaymentPayload(payment); verr != nil {
			err = fmt.Errorf("%w: %v", x402.ErrMalformedHeader, verr)
		}
	}
	if err != nil {
		logger.Warn("invalid payment header", "error", err)
		out.State = StateInvalidHeader
		out.Error = err.Error()
		return out
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("payment pipeline panicked", "panic", rec)
			out.State = StateVerifyFailed
			if out.Verification != nil && out.Verification.IsValid {
				out.State = StateSettleFailed
			}
			out.Error = fmt.Sprintf("payment verification error: %v", rec)
			out.Settlement = nil
		}
	}()

	verification, err := p.verify(r.Context(), payment, out.Requirement)
	if err != nil {
		logger.Warn("payment verification error", "error", err)
		out.State = StateVerifyFailed
		out.Error = err.Error()
		return out
	}
	out.Verification = verification
	if !verification.IsValid {
		logger.Warn("payment verification failed", "reason", verification.InvalidReason)
		out.State = StateVerifyFailed
		out.Error = verification.InvalidReason
		if out.Error == "" {
			out.Error = x402.ErrVerificationFailed.Error()
		}
		return out
	}
	logger.Info("payment verified", "payer", verification.Payer)

	settlement, err := p.settle(r.Context(), payment, out.Requirement, logger)
	if reason := settlementFailure(settlement, err); reason != "" {
		logger.Warn("settlement failed", "reason", reason)
		out.State = StateSettleFailed
		out.Error = reason
		return out
	}
	if settlement.Network == "" {
		settlement.Network = out.Requirement.Network
	}
	if settlement.Payer == "" {
		settlement.Payer = verification.Payer
	}
	logger.Info("payment settled", "txHash", settlement.TxHash, "payer", settlement.Payer)

	out.State = StatePaid
	out.Settlement = settlement
	return out
}

func (p *Paywall) verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.VerifyTimeout)
	defer cancel()

	resp, err := p.facilitator.Verify(ctx, payment, requirement)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, x402.ErrVerificationFailed
	}
	return resp, nil
}

// Logger returns the paywall's logger.
func (p *Paywall) Logger() *slog.Logger {
	return p.logger
}

// settle makes at most retry.MaxAttempts settlement attempts. Settlement is
// detached from the client's cancellation so a disconnect cannot abandon a
// submitted transaction.
func (p *Paywall) settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement, logger *slog.Logger) (*x402.SettlementResponse, error) {
	ctx = context.WithoutCancel(ctx)

	return retry.WithRetry(ctx, p.retry,
		func(resp *x402.SettlementResponse, err error) bool {
			return settlementFailure(resp, err) != ""
		},
		func(attempt int) (*x402.SettlementResponse, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, p.timeouts.SettleTimeout)
			defer cancel()

			logger.Info("settling payment", "attempt", attempt)
			resp, err := p.facilitator.Settle(attemptCtx, payment, requirement)
			if reason := settlementFailure(resp, err); reason != "" && attempt < p.retry.MaxAttempts {
				logger.Warn("settlement attempt failed, retrying", "attempt", attempt, "reason", reason, "delay", p.retry.Delay)
			}
			return resp, err
		},
	)
}

// settlementFailure returns why a settlement did not succeed, or "" on success.
func settlementFailure(resp *x402.SettlementResponse, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case resp == nil:
		return x402.ErrSettlementFailed.Error()
	case !resp.Success:
		if resp.Error != "" {
			return resp.Error
		}
		return x402.ErrSettlementFailed.Error()
	}
	return ""
}
