package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/encoding"
	"github.com/mark3labs/x402-movement/http/internal/helpers"
)

// maxChallengeBytes bounds how much of a 402 body is read.
const maxChallengeBytes = 1 << 20

// X402Transport is a RoundTripper that answers 402 Payment Required
// responses. It signs a payment for one of the offered requirements, sets
// X-PAYMENT and replays the request exactly once.
type X402Transport struct {
	// Base is the underlying RoundTripper (typically http.DefaultTransport).
	Base http.RoundTripper

	// Signers is the list of available payment signers.
	Signers []x402.Signer

	// Selector chooses the requirement and signer. Nil means DefaultPaymentSelector.
	Selector x402.PaymentSelector

	OnPaymentAttempt x402.PaymentCallback
	OnPaymentSuccess x402.PaymentCallback
	OnPaymentFailure x402.PaymentCallback
}

// RoundTrip implements http.RoundTripper.
func (t *X402Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	first, err := cloneWithBody(req, getBody)
	if err != nil {
		return nil, err
	}
	resp, err := base.RoundTrip(first)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	challenge, err := parsePaymentRequirements(resp)
	resp.Body.Close()
	if err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeInvalidRequirements, "failed to parse payment requirements", err)
	}

	selector := t.Selector
	if selector == nil {
		selector = x402.NewDefaultPaymentSelector()
	}
	payment, requirement, err := selector.SelectAndSign(req.Context(), challenge.Accepts, t.Signers)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	event := x402.PaymentEvent{
		URL:       req.URL.String(),
		Network:   requirement.Network,
		Amount:    requirement.MaxAmountRequired,
		Asset:     requirement.Asset,
		Recipient: requirement.PayTo,
	}
	t.emit(t.OnPaymentAttempt, x402.PaymentEventAttempt, event, start)

	header, err := encoding.EncodePayment(*payment)
	if err != nil {
		event.Error = err
		t.emit(t.OnPaymentFailure, x402.PaymentEventFailure, event, start)
		return nil, x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to build payment header", err)
	}

	paid, err := cloneWithBody(req, getBody)
	if err != nil {
		return nil, err
	}
	paid.Header.Set(helpers.PaymentHeader, header)

	resp, err = base.RoundTrip(paid)
	if err != nil {
		event.Error = err
		t.emit(t.OnPaymentFailure, x402.PaymentEventFailure, event, start)
		return nil, err
	}

	if settlement := GetSettlement(resp); settlement != nil && settlement.Success {
		event.TxHash = settlement.TxHash
		event.Payer = settlement.Payer
		t.emit(t.OnPaymentSuccess, x402.PaymentEventSuccess, event, start)
	} else if resp.StatusCode == http.StatusPaymentRequired {
		event.Error = fmt.Errorf("%w: payment refused", x402.ErrPaymentRequired)
		t.emit(t.OnPaymentFailure, x402.PaymentEventFailure, event, start)
	}
	return resp, nil
}

func (t *X402Transport) emit(cb x402.PaymentCallback, typ x402.PaymentEventType, event x402.PaymentEvent, start time.Time) {
	if cb == nil {
		return
	}
	event.Type = typ
	event.Timestamp = time.Now()
	event.Duration = event.Timestamp.Sub(start)
	cb(event)
}

// parsePaymentRequirements decodes a 402 body.
func parsePaymentRequirements(resp *http.Response) (x402.PaymentRequirementsResponse, error) {
	var challenge x402.PaymentRequirementsResponse

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxChallengeBytes))
	if err != nil {
		return challenge, fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, &challenge); err != nil {
		return challenge, fmt.Errorf("failed to parse payment requirements JSON: %w", err)
	}
	if len(challenge.Accepts) == 0 {
		return challenge, fmt.Errorf("no payment requirements in response")
	}
	return challenge, nil
}

// replayableBody returns a function producing fresh copies of req's body.
// The request itself is left untouched. Returns nil for bodyless requests.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}
	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}, nil
}

func cloneWithBody(req *http.Request, getBody func() (io.ReadCloser, error)) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
		clone.GetBody = getBody
	}
	return clone, nil
}
