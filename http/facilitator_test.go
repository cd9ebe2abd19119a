package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/facilitator"
)

func testPayment() x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "movement",
		Payload:     map[string]any{"transaction": "AAAA", "signature": "BBBB"},
	}
}

func testRequirement() x402.PaymentRequirement {
	return x402.PaymentRequirement{
		Scheme:            "exact",
		Network:           "movement",
		MaxAmountRequired: "100000000",
		Asset:             x402.NativeCoin,
		PayTo:             "0xb0b",
		Resource:          "http://localhost/api/sentiment",
		MimeType:          "application/json",
		MaxTimeoutSeconds: 600,
	}
}

func TestFacilitatorClient_Verify(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" {
			t.Errorf("Expected path /verify, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}

		var body facilitator.Request
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if body.X402Version != 1 {
			t.Errorf("Expected x402Version 1, got %d", body.X402Version)
		}
		if body.PaymentPayload["transaction"] != "AAAA" {
			t.Errorf("Expected the payment body to be sent, got %v", body.PaymentPayload)
		}
		if body.PaymentRequirements.MaxAmountRequired != "100000000" {
			t.Errorf("Expected requirements to be sent, got %+v", body.PaymentRequirements)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(facilitator.VerifyResponse{IsValid: true, Payer: "0xa11ce"})
	}))
	defer mockServer.Close()

	client := NewFacilitatorClient(mockServer.URL + "/")

	resp, err := client.Verify(context.Background(), testPayment(), testRequirement())
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !resp.IsValid {
		t.Error("Expected IsValid to be true")
	}
	if resp.Payer != "0xa11ce" {
		t.Errorf("Expected payer 0xa11ce, got %s", resp.Payer)
	}
}

func TestFacilitatorClient_Settle(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/settle" {
			t.Errorf("Expected path /settle, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(x402.SettlementResponse{Success: true, TxHash: "0xfeed", Network: "movement"})
	}))
	defer mockServer.Close()

	client := NewFacilitatorClient(mockServer.URL)

	resp, err := client.Settle(context.Background(), testPayment(), testRequirement())
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if !resp.Success {
		t.Error("Expected Success to be true")
	}
	if resp.TxHash != "0xfeed" {
		t.Errorf("Expected transaction hash 0xfeed, got %s", resp.TxHash)
	}
}

func TestFacilitatorClient_Supported(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/supported" {
			t.Errorf("Expected path /supported, got %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(facilitator.SupportedResponse{Networks: []string{"movement"}, Schemes: []string{"exact"}})
	}))
	defer mockServer.Close()

	resp, err := NewFacilitatorClient(mockServer.URL).Supported(context.Background())
	if err != nil {
		t.Fatalf("Supported failed: %v", err)
	}
	if len(resp.Networks) != 1 || resp.Networks[0] != "movement" {
		t.Errorf("Expected [movement], got %v", resp.Networks)
	}
}

func TestFacilitatorClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{
			name:        "json error field",
			status:      http.StatusInternalServerError,
			body:        `{"error":"sequence number too old"}`,
			wantMessage: "sequence number too old",
		},
		{
			name:        "json message field",
			status:      http.StatusBadRequest,
			body:        `{"message":"paymentPayload is required"}`,
			wantMessage: "paymentPayload is required",
		},
		{
			name:        "plain body",
			status:      http.StatusBadGateway,
			body:        "upstream down",
			wantMessage: "HTTP 502: upstream down",
		},
		{
			name:        "long body is truncated",
			status:      http.StatusServiceUnavailable,
			body:        strings.Repeat("x", 800),
			wantMessage: "HTTP 503: " + strings.Repeat("x", 500),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer mockServer.Close()

			_, err := NewFacilitatorClient(mockServer.URL).Settle(context.Background(), testPayment(), testRequirement())

			var statusErr *x402.StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Expected *x402.StatusError, got %T: %v", err, err)
			}
			if statusErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, statusErr.StatusCode)
			}
			if err.Error() != tt.wantMessage {
				t.Errorf("Expected message %q, got %q", tt.wantMessage, err.Error())
			}
		})
	}
}

func TestFacilitatorClient_TransportError(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := mockServer.URL
	mockServer.Close()

	_, err := NewFacilitatorClient(url).Settle(context.Background(), testPayment(), testRequirement())
	if !errors.Is(err, x402.ErrFacilitatorUnavailable) {
		t.Fatalf("Expected ErrFacilitatorUnavailable, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "facilitator request failed: ") {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

func TestFacilitatorClient_Timeout(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer mockServer.Close()

	client := NewFacilitatorClient(mockServer.URL, WithFacilitatorTimeouts(x402.TimeoutConfig{
		VerifyTimeout: 20 * time.Millisecond,
		SettleTimeout: 20 * time.Millisecond,
	}))

	_, err := client.Verify(context.Background(), testPayment(), testRequirement())
	var transportErr *x402.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected a transport error on timeout, got %v", err)
	}
}

func TestFacilitatorClient_Authorization(t *testing.T) {
	var got []string
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(facilitator.VerifyResponse{IsValid: true})
	}))
	defer mockServer.Close()

	static := NewFacilitatorClient(mockServer.URL, WithAuthorization("Bearer static"))
	if _, err := static.Verify(context.Background(), testPayment(), testRequirement()); err != nil {
		t.Fatal(err)
	}

	dynamic := NewFacilitatorClient(mockServer.URL,
		WithAuthorization("Bearer static"),
		WithAuthorizationProvider(func(r *http.Request) string { return "Bearer for " + r.URL.Path }),
	)
	if _, err := dynamic.Verify(context.Background(), testPayment(), testRequirement()); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 || got[0] != "Bearer static" || got[1] != "Bearer for /verify" {
		t.Errorf("Unexpected Authorization headers: %v", got)
	}
}
