// Package pocketbase provides PocketBase-compatible middleware for x402
// payment gating on top of httpx402.Paywall.
package pocketbase

import (
	"context"
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	httpx402 "github.com/mark3labs/x402-movement/http"
)

// PaymentKey is the request event store key holding the
// *facilitator.VerifyResponse of a paid request.
const PaymentKey = "x402_payment"

// NewPocketBaseX402Middleware creates a new x402 payment middleware for
// PocketBase routes and groups. It panics if config is invalid.
//
// Example usage:
//
//	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
//	    se.Router.POST("/api/sentiment", handler).BindFunc(NewPocketBaseX402Middleware(config))
//	    return se.Next()
//	})
func NewPocketBaseX402Middleware(config *httpx402.Config) func(*core.RequestEvent) error {
	p, err := httpx402.NewPaywall(config)
	if err != nil {
		panic(err)
	}
	return Middleware(p)
}

// Middleware adapts an existing Paywall to PocketBase.
func Middleware(p *httpx402.Paywall) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		out := p.Process(e.Request)
		if !out.Allowed() {
			return e.JSON(http.StatusPaymentRequired, out.Challenge())
		}

		if out.State == httpx402.StatePaid {
			if err := out.AddReceipt(e.Response.Header()); err != nil {
				p.Logger().Warn("failed to add payment response header", "requestID", out.RequestID, "error", err)
			}
			e.Set(PaymentKey, out.Verification)
			e.Request = e.Request.WithContext(context.WithValue(e.Request.Context(), httpx402.PaymentContextKey, out.Verification))
		}
		return e.Next()
	}
}
