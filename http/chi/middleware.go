// Package chi provides Chi-compatible middleware for x402 payment gating.
// This package is a thin adapter over httpx402.Paywall.
package chi

import (
	"net/http"

	httpx402 "github.com/mark3labs/x402-movement/http"
)

// NewChiX402Middleware creates a new x402 payment middleware for Chi.
// It panics if config is invalid.
//
// The middleware:
//   - Bypasses OPTIONS requests for CORS preflight support
//   - Forwards requests that match no route policy untouched
//   - Returns 402 Payment Required with the route's requirements when the
//     payment is missing, malformed, invalid or cannot be settled
//   - Sets X-PAYMENT-RESPONSE and stores the verification result in the
//     request context via httpx402.PaymentContextKey before calling next
//
// Example usage:
//
//	routes, _ := x402.NewRoutes(map[string]x402.RouteConfig{
//	    "POST /api/sentiment": {Network: "movement", Asset: x402.NativeCoin, MaxAmountRequired: "100000000"},
//	})
//	r := chi.NewRouter()
//	r.Use(NewChiX402Middleware(&httpx402.Config{PayTo: "0xb0b", Routes: routes}))
//	r.Post("/api/sentiment", func(w http.ResponseWriter, r *http.Request) {
//	    payment, _ := httpx402.PaymentFromContext(r.Context())
//	    w.Write([]byte("Access granted! Payer: " + payment.Payer))
//	})
func NewChiX402Middleware(config *httpx402.Config) func(http.Handler) http.Handler {
	p, err := httpx402.NewPaywall(config)
	if err != nil {
		panic(err)
	}
	return Middleware(p)
}

// Middleware adapts an existing Paywall to Chi.
func Middleware(p *httpx402.Paywall) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		gated := p.Middleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			gated.ServeHTTP(w, r)
		})
	}
}
