package server_test

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/facilitator"
	"github.com/mark3labs/x402-movement/facilitator/auth"
	"github.com/mark3labs/x402-movement/facilitator/facilitatortest"
	"github.com/mark3labs/x402-movement/facilitator/server"
	httpx402 "github.com/mark3labs/x402-movement/http"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var (
	testPayment = x402.PaymentPayload{
		X402Version: 1,
		Scheme:      x402.SchemeExact,
		Network:     x402.MovementMainnet.ID,
		Payload:     map[string]any{"transaction": "AAAA", "signature": "BBBB"},
	}
	testRequirement = x402.PaymentRequirement{
		Scheme:            x402.SchemeExact,
		Network:           x402.MovementMainnet.ID,
		MaxAmountRequired: "100000000",
		Asset:             x402.NativeCoin,
		PayTo:             "0xb0b",
		MaxTimeoutSeconds: 600,
	}
)

func newServer(t *testing.T, fake facilitator.Interface, validator *auth.Validator) *httptest.Server {
	t.Helper()
	s, err := server.New(server.Config{Facilitator: fake, Validator: validator, Logger: discard})
	require.NoError(t, err)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return ts
}

func TestNew_RequiresFacilitator(t *testing.T) {
	_, err := server.New(server.Config{})
	require.Error(t, err)
}

func TestServer_ThroughFacilitatorClient(t *testing.T) {
	fake := &facilitatortest.Fake{}
	ts := newServer(t, fake, nil)
	client := httpx402.NewFacilitatorClient(ts.URL, httpx402.WithFacilitatorLogger(discard))
	ctx := context.Background()

	verify, err := client.Verify(ctx, testPayment, testRequirement)
	require.NoError(t, err)
	require.True(t, verify.IsValid)
	require.Equal(t, facilitatortest.DefaultPayer, verify.Payer)

	settle, err := client.Settle(ctx, testPayment, testRequirement)
	require.NoError(t, err)
	require.True(t, settle.Success)
	require.Equal(t, facilitatortest.DefaultTxHash, settle.TxHash)
	require.Equal(t, x402.MovementMainnet.ID, settle.Network)

	supported, err := client.Supported(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{x402.SchemeExact}, supported.Schemes)

	payments := fake.Payments()
	require.Len(t, payments, 1)
	require.Equal(t, "AAAA", payments[0].Payload["transaction"])
	require.Equal(t, x402.SchemeExact, payments[0].Scheme)
}

func TestServer_InvalidPaymentIs200(t *testing.T) {
	fake := &facilitatortest.Fake{
		VerifyFunc: func(x402.PaymentPayload, x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
			return &facilitator.VerifyResponse{IsValid: false, InvalidReason: "transaction has expired"}, nil
		},
	}
	ts := newServer(t, fake, nil)

	resp, err := httpx402.NewFacilitatorClient(ts.URL).Verify(context.Background(), testPayment, testRequirement)
	require.NoError(t, err)
	require.False(t, resp.IsValid)
	require.Equal(t, "transaction has expired", resp.InvalidReason)
}

func TestServer_FailedSettlementIs400(t *testing.T) {
	fake := &facilitatortest.Fake{
		Settlements: []*x402.SettlementResponse{{Success: false, Error: "sequence number too old"}},
	}
	ts := newServer(t, fake, nil)

	_, err := httpx402.NewFacilitatorClient(ts.URL).Settle(context.Background(), testPayment, testRequirement)
	var statusErr *x402.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	require.Equal(t, "sequence number too old", statusErr.Message)
}

func TestServer_FacilitatorErrorIs500(t *testing.T) {
	fake := &facilitatortest.Fake{
		VerifyFunc: func(x402.PaymentPayload, x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
			return nil, errors.New("node unreachable")
		},
	}
	ts := newServer(t, fake, nil)

	body := `{"x402Version":1,"paymentPayload":{"transaction":"AAAA"},"paymentRequirements":{"payTo":"0xb0b","maxAmountRequired":"1"}}`
	resp, err := http.Post(ts.URL+"/verify", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var out facilitator.VerifyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.False(t, out.IsValid)
	require.Contains(t, out.InvalidReason, "node unreachable")
}

func TestServer_BadRequests(t *testing.T) {
	ts := newServer(t, &facilitatortest.Fake{}, nil)

	tests := []struct {
		name string
		path string
		body string
		want string
	}{
		{"not json", "/verify", "nope", "invalid JSON"},
		{"missing payload", "/verify", `{"paymentRequirements":{"payTo":"0xb0b","maxAmountRequired":"1"}}`, "paymentPayload is required"},
		{"missing requirements", "/settle", `{"paymentPayload":{"transaction":"AAAA"}}`, "paymentRequirements is required"},
		{"wrong version", "/settle", `{"x402Version":2,"paymentPayload":{"transaction":"AAAA"},"paymentRequirements":{"payTo":"0xb0b","maxAmountRequired":"1"}}`, "unsupported x402 version"},
		{"unknown network", "/verify", `{"paymentPayload":{"transaction":"AAAA"},"paymentRequirements":{"network":"solana","payTo":"0xb0b","maxAmountRequired":"1"}}`, "invalid network"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+tt.path, "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var out map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			require.Contains(t, out["error"], tt.want)
		})
	}
}

func TestServer_SupportedGET(t *testing.T) {
	ts := newServer(t, &facilitatortest.Fake{Networks: []string{"movement-testnet"}}, nil)

	resp, err := http.Get(ts.URL + "/supported")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out facilitator.SupportedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, []string{"movement-testnet"}, out.Networks)
}

func TestServer_BearerAuthWhenMounted(t *testing.T) {
	key := ed25519.NewKeyFromSeed([]byte("0123456789abcdef0123456789abcdef"))
	tokens, err := auth.NewTokenSource("gateway-1", "x402-gateway", "x402-facilitator", key)
	require.NoError(t, err)
	validator := auth.NewValidator(map[string]ed25519.PublicKey{
		"gateway-1": key.Public().(ed25519.PublicKey),
	}, "x402-facilitator", 5*time.Second)

	s, err := server.New(server.Config{Facilitator: &facilitatortest.Fake{}, Validator: validator, Logger: discard})
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Mount("/api/facilitator", s)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	baseURL := ts.URL + "/api/facilitator"
	ctx := context.Background()

	t.Run("signed", func(t *testing.T) {
		client := httpx402.NewFacilitatorClient(baseURL, httpx402.WithAuthorizationProvider(tokens.Authorization))
		resp, err := client.Settle(ctx, testPayment, testRequirement)
		require.NoError(t, err)
		require.True(t, resp.Success)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := httpx402.NewFacilitatorClient(baseURL).Settle(ctx, testPayment, testRequirement)
		var statusErr *x402.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	})

	t.Run("token for another endpoint", func(t *testing.T) {
		verifyToken, err := tokens.Token(http.MethodPost, "/api/facilitator/verify")
		require.NoError(t, err)
		client := httpx402.NewFacilitatorClient(baseURL, httpx402.WithAuthorization("Bearer "+verifyToken))
		_, err = client.Settle(ctx, testPayment, testRequirement)
		var statusErr *x402.StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	})
}
