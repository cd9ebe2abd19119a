package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/encoding"
	"github.com/mark3labs/x402-movement/facilitator"
	"github.com/mark3labs/x402-movement/facilitator/facilitatortest"
)

// newPaidServer serves POST /api/sentiment behind a Paywall backed by fake
// and echoes the request body.
func newPaidServer(t *testing.T, fake *facilitatortest.Fake) *httptest.Server {
	t.Helper()
	if fake == nil {
		fake = &facilitatortest.Fake{}
	}
	paywall := newTestPaywall(t, fake)
	return httptest.NewServer(paywall.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})))
}

func TestRoundTrip_NonPaymentRequest(t *testing.T) {
	server := newPaidServer(t, nil)
	defer server.Close()

	transport := &X402Transport{Signers: []x402.Signer{&mockSigner{network: "movement"}}}
	req, _ := http.NewRequest("GET", server.URL+"/health", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRoundTrip_PaysAndReplaysBody(t *testing.T) {
	fake := &facilitatortest.Fake{}
	server := newPaidServer(t, fake)
	defer server.Close()

	transport := &X402Transport{Signers: []x402.Signer{&mockSigner{network: "movement", tag: "wallet"}}}

	// A body without GetBody must still be replayed on the paid attempt.
	req, _ := http.NewRequest("POST", server.URL+"/api/sentiment", io.NopCloser(strings.NewReader(`{"text":"gm"}`)))
	req.GetBody = nil

	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after payment, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"text":"gm"}` {
		t.Errorf("expected replayed body, got %q", body)
	}
	settlement := GetSettlement(resp)
	if settlement == nil || settlement.TxHash != "0xfeed" {
		t.Errorf("expected receipt, got %+v", settlement)
	}
	if fake.VerifyCalls() != 1 || fake.SettleCalls() != 1 {
		t.Errorf("expected one verify and one settle, got %d/%d", fake.VerifyCalls(), fake.SettleCalls())
	}
}

func TestRoundTrip_SignedPayloadReachesServer(t *testing.T) {
	var got x402.PaymentPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("X-PAYMENT")
		if header == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			_ = json.NewEncoder(w).Encode(x402.PaymentRequirementsResponse{
				X402Version: 1,
				Accepts: []x402.PaymentRequirement{
					{Scheme: "exact", Network: "aptos", MaxAmountRequired: "1", Asset: x402.NativeCoin, PayTo: "0x1"},
					{Scheme: "exact", Network: "movement", MaxAmountRequired: "42", Asset: x402.NativeCoin, PayTo: "0xb0b"},
				},
			})
			return
		}
		var err error
		got, err = encoding.DecodePayment(header)
		if err != nil {
			t.Errorf("server could not decode payment: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := &X402Transport{Signers: []x402.Signer{&mockSigner{network: "movement", tag: "mover"}}}
	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got.Network != "movement" || got.Payload["amount"] != "42" || got.Payload["tag"] != "mover" {
		t.Errorf("unexpected payment: %+v", got)
	}
}

func TestRoundTrip_ChallengeErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		signers  []x402.Signer
		wantCode string
	}{
		{
			name:     "body is not JSON",
			body:     "payment required",
			signers:  []x402.Signer{&mockSigner{network: "movement"}},
			wantCode: x402.ErrCodeInvalidRequirements,
		},
		{
			name:     "no requirements",
			body:     `{"x402Version":1,"accepts":[]}`,
			signers:  []x402.Signer{&mockSigner{network: "movement"}},
			wantCode: x402.ErrCodeInvalidRequirements,
		},
		{
			name:     "no signer for network",
			body:     `{"x402Version":1,"accepts":[{"scheme":"exact","network":"movement","maxAmountRequired":"1","asset":"0x1::aptos_coin::AptosCoin","payTo":"0xb0b"}]}`,
			signers:  []x402.Signer{&mockSigner{network: "aptos"}},
			wantCode: x402.ErrCodeNoValidSigner,
		},
		{
			name:     "signing fails",
			body:     `{"x402Version":1,"accepts":[{"scheme":"exact","network":"movement","maxAmountRequired":"1","asset":"0x1::aptos_coin::AptosCoin","payTo":"0xb0b"}]}`,
			signers:  []x402.Signer{&mockSigner{network: "movement", signError: errors.New("locked")}},
			wantCode: x402.ErrCodeSigningFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(http.StatusPaymentRequired)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			transport := &X402Transport{Signers: tt.signers}
			req, _ := http.NewRequest("GET", server.URL, nil)
			_, err := transport.RoundTrip(req)

			var paymentErr *x402.PaymentError
			if !errors.As(err, &paymentErr) {
				t.Fatalf("expected PaymentError, got %v", err)
			}
			if paymentErr.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, paymentErr.Code)
			}
			if hits.Load() != 1 {
				t.Errorf("expected no paid retry, got %d requests", hits.Load())
			}
		})
	}
}

func TestRoundTrip_RefusedPaymentReturns402(t *testing.T) {
	fake := &facilitatortest.Fake{
		VerifyFunc: func(x402.PaymentPayload, x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
			return &facilitator.VerifyResponse{IsValid: false, InvalidReason: "transaction has expired"}, nil
		},
	}
	server := newPaidServer(t, fake)
	defer server.Close()

	var failure x402.PaymentEvent
	transport := &X402Transport{
		Signers:          []x402.Signer{&mockSigner{network: "movement"}},
		OnPaymentFailure: func(e x402.PaymentEvent) { failure = e },
	}
	req, _ := http.NewRequest("POST", server.URL+"/api/sentiment", nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected the refusal to be returned, got %d", resp.StatusCode)
	}
	var challenge x402.PaymentRequirementsResponse
	if err := json.NewDecoder(resp.Body).Decode(&challenge); err != nil {
		t.Fatal(err)
	}
	if challenge.Error != "transaction has expired" {
		t.Errorf("expected refusal reason, got %q", challenge.Error)
	}
	if !errors.Is(failure.Error, x402.ErrPaymentRequired) {
		t.Errorf("expected failure event, got %+v", failure)
	}
}

func TestRoundTrip_PaymentCallbacks(t *testing.T) {
	server := newPaidServer(t, nil)
	defer server.Close()

	var mu sync.Mutex
	var events []x402.PaymentEvent
	record := func(e x402.PaymentEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	client, err := NewClient(
		WithSigner(&mockSigner{network: "movement"}),
		WithPaymentCallback(x402.PaymentEventAttempt, record),
		WithPaymentCallback(x402.PaymentEventSuccess, record),
		WithPaymentCallback(x402.PaymentEventFailure, record),
	)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := client.Post(server.URL+"/api/sentiment", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if len(events) != 2 {
		t.Fatalf("expected attempt and success events, got %+v", events)
	}
	if events[0].Type != x402.PaymentEventAttempt || events[1].Type != x402.PaymentEventSuccess {
		t.Errorf("unexpected event order: %s, %s", events[0].Type, events[1].Type)
	}
	success := events[1]
	if success.TxHash != "0xfeed" || success.Amount != "100000000" || success.Recipient != payTo || success.Network != "movement" {
		t.Errorf("unexpected success event: %+v", success)
	}
}

func TestRoundTrip_NetworkErrorDuringPaidAttempt(t *testing.T) {
	var calls atomic.Int32
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			rec := httptest.NewRecorder()
			rec.WriteHeader(http.StatusPaymentRequired)
			_ = json.NewEncoder(rec).Encode(x402.PaymentRequirementsResponse{
				X402Version: 1,
				Accepts:     []x402.PaymentRequirement{{Scheme: "exact", Network: "movement", MaxAmountRequired: "5", Asset: x402.NativeCoin, PayTo: "0xb0b"}},
			})
			return rec.Result(), nil
		}
		return nil, errors.New("connection reset")
	})

	var failure x402.PaymentEvent
	transport := &X402Transport{
		Base:             base,
		Signers:          []x402.Signer{&mockSigner{network: "movement"}},
		OnPaymentFailure: func(e x402.PaymentEvent) { failure = e },
	}
	req, _ := http.NewRequest("GET", "http://gateway.invalid/api/sentiment", nil)
	_, err := transport.RoundTrip(req)
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected transport error, got %v", err)
	}
	if failure.Type != x402.PaymentEventFailure || failure.Amount != "5" {
		t.Errorf("expected failure event, got %+v", failure)
	}
	if calls.Load() != 2 {
		t.Errorf("expected exactly one paid retry, got %d calls", calls.Load())
	}
}

func TestRoundTrip_ConcurrentRequests(t *testing.T) {
	fake := &facilitatortest.Fake{}
	server := newPaidServer(t, fake)
	defer server.Close()

	client, err := NewClient(WithSigner(&mockSigner{network: "movement"}))
	if err != nil {
		t.Fatal(err)
	}

	const n = 20
	var wg sync.WaitGroup
	var paid atomic.Int32
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Post(server.URL+"/api/sentiment", "application/json", strings.NewReader(`{"text":"wagmi"}`))
			if err != nil {
				t.Error(err)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK && GetSettlement(resp) != nil {
				paid.Add(1)
			}
		}()
	}
	wg.Wait()

	if paid.Load() != n {
		t.Errorf("expected %d paid responses, got %d", n, paid.Load())
	}
	if fake.SettleCalls() != n {
		t.Errorf("expected %d settlements, got %d", n, fake.SettleCalls())
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
