// Package gin provides Gin-compatible middleware for x402 payment gating.
// This package is a thin adapter that translates gin.Context to the
// httpx402.Paywall decision.
package gin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	httpx402 "github.com/mark3labs/x402-movement/http"
)

// PaymentKey is the gin.Context key holding the *facilitator.VerifyResponse
// of a paid request.
const PaymentKey = "x402_payment"

// NewGinX402Middleware creates a new x402 payment middleware for Gin.
// It panics if config is invalid.
//
// The middleware:
//   - Returns 402 Payment Required and aborts the chain when payment is
//     missing or refused
//   - Stores payment information in Gin context via c.Set("x402_payment", verifyResp)
//   - Calls c.Next() on payment success to proceed to the protected handler
//
// Example usage:
//
//	r := gin.Default()
//	r.Use(NewGinX402Middleware(&httpx402.Config{PayTo: "0xb0b", Routes: routes}))
//	r.POST("/api/sentiment", func(c *gin.Context) {
//	    if payment, exists := c.Get("x402_payment"); exists {
//	        verifyResp := payment.(*facilitator.VerifyResponse)
//	        c.JSON(200, gin.H{"payer": verifyResp.Payer})
//	    }
//	})
func NewGinX402Middleware(config *httpx402.Config) gin.HandlerFunc {
	p, err := httpx402.NewPaywall(config)
	if err != nil {
		panic(err)
	}
	return Middleware(p)
}

// Middleware adapts an existing Paywall to Gin.
func Middleware(p *httpx402.Paywall) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := p.Process(c.Request)
		if !out.Allowed() {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, out.Challenge())
			return
		}

		if out.State == httpx402.StatePaid {
			if err := out.AddReceipt(c.Writer.Header()); err != nil {
				p.Logger().Warn("failed to add payment response header", "requestID", out.RequestID, "error", err)
			}
			c.Set(PaymentKey, out.Verification)
			c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), httpx402.PaymentContextKey, out.Verification))
		}
		c.Next()
	}
}
