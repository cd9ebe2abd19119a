// Package http provides HTTP middleware for x402 payment gating on Move networks.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/facilitator"
	"github.com/mark3labs/x402-movement/retry"
)

// DefaultSkipPaths are the agent discovery documents that stay publicly
// fetchable even under a catch-all route policy.
var DefaultSkipPaths = []string{
	"/.well-known/agent.json",
	"/.well-known/agent-card.json",
}

// Config holds the configuration for the x402 middleware.
type Config struct {
	// PayTo is the Move account that receives every payment.
	PayTo string

	// Routes maps "METHOD /path" to the price of that route.
	Routes *x402.Routes

	// SkipPaths bypass payment when a request path ends with or contains one
	// of them. Nil means DefaultSkipPaths; an empty slice disables skipping.
	SkipPaths []string

	// Facilitator verifies and settles payments. When nil, a Move facilitator
	// is built from the fields below.
	Facilitator facilitator.Interface

	// FacilitatorURL is the remote settlement service. Empty means resolve it
	// from FACILITATOR_URL, FRONTEND_URL or the container/local defaults.
	FacilitatorURL string

	// FacilitatorAuthorization is a static Authorization header value for the facilitator.
	// Example: "Bearer your-api-key"
	FacilitatorAuthorization string

	// FacilitatorAuthorizationProvider returns an Authorization header value per request.
	// If set, this takes precedence over FacilitatorAuthorization.
	FacilitatorAuthorizationProvider AuthorizationProvider

	// RPCURL is the node used by the simulation decoder in builds without BCS
	// support. Empty means MOVEMENT_RPC_URL, then the mainnet node.
	RPCURL string

	// ChainIDs overrides the expected chain id per network.
	ChainIDs map[string]uint8

	// SettleRetry is the settlement retry policy. Zero means retry.SettleConfig.
	SettleRetry retry.Config

	Timeouts x402.TimeoutConfig
	Logger   *slog.Logger
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PaymentContextKey is the context key for storing verified payment information.
const PaymentContextKey = contextKey("x402_payment")

// PaymentFromContext returns the verification result stored for a paid request.
func PaymentFromContext(ctx context.Context) (*facilitator.VerifyResponse, bool) {
	v, ok := ctx.Value(PaymentContextKey).(*facilitator.VerifyResponse)
	return v, ok
}

// NewX402Middleware creates a new x402 payment middleware.
// It panics if config is invalid; use NewPaywall to handle the error.
func NewX402Middleware(config *Config) func(http.Handler) http.Handler {
	p, err := NewPaywall(config)
	if err != nil {
		panic(err)
	}
	return p.Middleware
}

// Middleware wraps next with payment gating. Refused requests get a 402 with
// the route's requirements; paid requests reach next with the
// X-PAYMENT-RESPONSE header already set and the verification result in the
// request context.
func (p *Paywall) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := p.Process(r)
		if !out.Allowed() {
			out.WriteChallenge(w)
			return
		}
		if out.State == StatePaid {
			if err := out.AddReceipt(w.Header()); err != nil {
				p.logger.Warn("failed to add payment response header", "requestID", out.RequestID, "error", err)
			}
			r = r.WithContext(context.WithValue(r.Context(), PaymentContextKey, out.Verification))
		}
		next.ServeHTTP(w, r)
	})
}
