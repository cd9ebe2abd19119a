package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/facilitator"
)

// maxErrorBody bounds how much of a failed response body is kept in a StatusError.
const maxErrorBody = 500

// AuthorizationProvider returns the Authorization header value for an
// outbound facilitator request. It is called once per request.
type AuthorizationProvider func(*http.Request) string

// FacilitatorClient is a client for a remote x402 facilitator service.
// Every call makes exactly one HTTP attempt.
type FacilitatorClient struct {
	BaseURL  string
	Client   *http.Client
	Timeouts x402.TimeoutConfig

	// Authorization is a static Authorization header value, e.g. "Bearer <token>".
	Authorization string

	// AuthorizationProvider takes precedence over Authorization when set.
	AuthorizationProvider AuthorizationProvider

	Logger *slog.Logger
}

var _ facilitator.Interface = (*FacilitatorClient)(nil)

// FacilitatorOption configures a FacilitatorClient.
type FacilitatorOption func(*FacilitatorClient)

// WithAuthorization sets a static Authorization header value for the facilitator.
func WithAuthorization(authorization string) FacilitatorOption {
	return func(c *FacilitatorClient) {
		c.Authorization = authorization
	}
}

// WithAuthorizationProvider sets a dynamic Authorization header provider.
func WithAuthorizationProvider(provider AuthorizationProvider) FacilitatorOption {
	return func(c *FacilitatorClient) {
		c.AuthorizationProvider = provider
	}
}

// WithFacilitatorHTTPClient replaces the underlying HTTP client.
func WithFacilitatorHTTPClient(client *http.Client) FacilitatorOption {
	return func(c *FacilitatorClient) {
		c.Client = client
	}
}

// WithFacilitatorTimeouts sets the verify and settle timeouts.
func WithFacilitatorTimeouts(timeouts x402.TimeoutConfig) FacilitatorOption {
	return func(c *FacilitatorClient) {
		c.Timeouts = timeouts
	}
}

// WithFacilitatorLogger sets the logger used for request tracing.
func WithFacilitatorLogger(logger *slog.Logger) FacilitatorOption {
	return func(c *FacilitatorClient) {
		c.Logger = logger
	}
}

// NewFacilitatorClient creates a client for the facilitator at baseURL.
//
// Example:
//
//	client := NewFacilitatorClient(mvm.ResolveFacilitatorURL("", mvm.OSEnvironment()),
//	    WithAuthorization("Bearer my-api-key"),
//	)
func NewFacilitatorClient(baseURL string, opts ...FacilitatorOption) *FacilitatorClient {
	c := &FacilitatorClient{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Client:   &http.Client{},
		Timeouts: x402.DefaultTimeouts,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify asks the facilitator to check a payment without settling it.
func (c *FacilitatorClient) Verify(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	var resp facilitator.VerifyResponse
	if err := c.post(ctx, "/verify", c.timeouts().VerifyTimeout, facilitator.NewRequest(payment, requirement), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settle asks the facilitator to submit a verified payment. A non-200 answer
// is returned as *x402.StatusError, a failure to reach the service as
// *x402.TransportError.
func (c *FacilitatorClient) Settle(ctx context.Context, payment x402.PaymentPayload, requirement x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	var resp x402.SettlementResponse
	if err := c.post(ctx, "/settle", c.timeouts().SettleTimeout, facilitator.NewRequest(payment, requirement), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Supported queries the facilitator for the networks and schemes it accepts.
func (c *FacilitatorClient) Supported(ctx context.Context) (*facilitator.SupportedResponse, error) {
	var resp facilitator.SupportedResponse
	if err := c.post(ctx, "/supported", c.timeouts().RequestTimeout, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *FacilitatorClient) post(ctx context.Context, path string, timeout time.Duration, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth := c.authorization(req); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	logger := c.logger()
	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		logger.Warn("facilitator request failed", "url", url, "error", err)
		return &x402.TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &x402.TransportError{Err: err}
	}
	logger.Debug("facilitator response", "url", url, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return newStatusError(resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// newStatusError keeps the facilitator's own "error" or "message" text when
// the body is JSON, and a truncated copy of the raw body either way.
func newStatusError(status int, body []byte) *x402.StatusError {
	e := &x402.StatusError{StatusCode: status, Body: truncate(string(body), maxErrorBody)}

	var parsed map[string]any
	if json.Unmarshal(body, &parsed) == nil {
		for _, key := range []string{"error", "message"} {
			if msg, ok := parsed[key].(string); ok && msg != "" {
				e.Message = msg
				break
			}
		}
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (c *FacilitatorClient) authorization(req *http.Request) string {
	if c.AuthorizationProvider != nil {
		return c.AuthorizationProvider(req)
	}
	return c.Authorization
}

func (c *FacilitatorClient) httpClient() *http.Client {
	if c.Client == nil {
		return http.DefaultClient
	}
	return c.Client
}

func (c *FacilitatorClient) timeouts() x402.TimeoutConfig {
	if c.Timeouts == (x402.TimeoutConfig{}) {
		return x402.DefaultTimeouts
	}
	return c.Timeouts
}

func (c *FacilitatorClient) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
