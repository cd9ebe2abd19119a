package x402

import (
	"fmt"
	"time"
)

// TimeoutConfig bounds the outbound calls the gateway makes per request.
type TimeoutConfig struct {
	// VerifyTimeout bounds verification, including RPC simulation.
	VerifyTimeout time.Duration

	// SettleTimeout bounds a single settlement attempt against the remote facilitator.
	SettleTimeout time.Duration

	// RequestTimeout bounds auxiliary calls such as /supported.
	RequestTimeout time.Duration
}

// DefaultTimeouts are used when a component is constructed without explicit timeouts.
var DefaultTimeouts = TimeoutConfig{
	VerifyTimeout:  10 * time.Second,
	SettleTimeout:  30 * time.Second,
	RequestTimeout: 60 * time.Second,
}

// Validate reports whether the timeouts are usable.
func (c TimeoutConfig) Validate() error {
	if c.VerifyTimeout <= 0 {
		return fmt.Errorf("verify timeout must be positive, got %v", c.VerifyTimeout)
	}
	if c.SettleTimeout <= 0 {
		return fmt.Errorf("settle timeout must be positive, got %v", c.SettleTimeout)
	}
	if c.SettleTimeout < c.VerifyTimeout {
		return fmt.Errorf("settle timeout (%v) must not be shorter than verify timeout (%v)", c.SettleTimeout, c.VerifyTimeout)
	}
	return nil
}

func (c TimeoutConfig) WithVerifyTimeout(d time.Duration) TimeoutConfig {
	c.VerifyTimeout = d
	return c
}

func (c TimeoutConfig) WithSettleTimeout(d time.Duration) TimeoutConfig {
	c.SettleTimeout = d
	return c
}

func (c TimeoutConfig) WithRequestTimeout(d time.Duration) TimeoutConfig {
	c.RequestTimeout = d
	return c
}
