// Package server exposes a facilitator.Interface over HTTP so that other
// gateways can verify and settle Move payments through it.
//
// Routes, relative to wherever the handler is mounted:
//
//	POST /verify     -> facilitator.VerifyResponse
//	POST /settle     -> x402.SettlementResponse (400 when success is false)
//	GET  /supported  -> facilitator.SupportedResponse
//	POST /supported  -> same as GET
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/facilitator"
	"github.com/mark3labs/x402-movement/facilitator/auth"
	"github.com/mark3labs/x402-movement/validation"
)

// maxBodyBytes bounds the request body of /verify and /settle.
const maxBodyBytes = 1 << 20

// Config configures a Server.
type Config struct {
	// Facilitator does the actual work, typically an *mvm.Facilitator.
	Facilitator facilitator.Interface

	// Validator, when set, requires every request to carry a bearer token
	// minted by a trusted auth.TokenSource.
	Validator *auth.Validator

	Logger *slog.Logger
}

// Server serves the facilitator endpoints.
type Server struct {
	facilitator facilitator.Interface
	validator   *auth.Validator
	logger      *slog.Logger
	router      chi.Router
}

// New builds a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Facilitator == nil {
		return nil, errors.New("facilitator server: nil facilitator")
	}
	s := &Server{
		facilitator: cfg.Facilitator,
		validator:   cfg.Validator,
		logger:      cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	r := chi.NewRouter()
	if s.validator != nil {
		r.Use(s.validator.Middleware)
	}
	r.Post("/verify", s.handleVerify)
	r.Post("/settle", s.handleSettle)
	r.Get("/supported", s.handleSupported)
	r.Post("/supported", s.handleSupported)
	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("requestID", uuid.NewString(), "op", "verify")

	req, err := decodeRequest(r)
	if err != nil {
		logger.Warn("rejected verify request", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	resp, err := s.facilitator.Verify(r.Context(), req.Payment(), req.PaymentRequirements)
	if err != nil {
		logger.Error("verification error", "error", err)
		writeJSON(w, http.StatusInternalServerError, facilitator.VerifyResponse{
			IsValid:       false,
			InvalidReason: fmt.Sprintf("verification error: %v", err),
		})
		return
	}
	logger.Info("payment verified", "valid", resp.IsValid, "payer", resp.Payer, "reason", resp.InvalidReason)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With("requestID", uuid.NewString(), "op", "settle")

	req, err := decodeRequest(r)
	if err != nil {
		logger.Warn("rejected settle request", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	resp, err := s.facilitator.Settle(r.Context(), req.Payment(), req.PaymentRequirements)
	if err != nil {
		logger.Error("settlement error", "error", err)
		writeJSON(w, http.StatusInternalServerError, x402.SettlementResponse{
			Success: false,
			Error:   fmt.Sprintf("settlement error: %v", err),
		})
		return
	}
	if resp.Network == "" {
		resp.Network = req.PaymentRequirements.Network
	}

	status := http.StatusOK
	if !resp.Success {
		status = http.StatusBadRequest
	}
	logger.Info("settlement finished", "success", resp.Success, "txHash", resp.TxHash, "error", resp.Error)
	writeJSON(w, status, resp)
}

func (s *Server) handleSupported(w http.ResponseWriter, r *http.Request) {
	resp, err := s.facilitator.Supported(r.Context())
	if err != nil {
		s.logger.Warn("supported lookup failed", "error", err)
		resp = &facilitator.SupportedResponse{
			Networks: []string{x402.MovementMainnet.ID},
			Schemes:  []string{x402.SchemeExact},
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeRequest reads a /verify or /settle body. Both halves of the body
// are required.
func decodeRequest(r *http.Request) (facilitator.Request, error) {
	var req facilitator.Request
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return req, fmt.Errorf("failed to read request body: %w", err)
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("invalid JSON body: %w", err)
	}
	if len(req.PaymentPayload) == 0 {
		return req, errors.New("paymentPayload is required")
	}
	if req.PaymentRequirements.PayTo == "" && req.PaymentRequirements.MaxAmountRequired == "" {
		return req, errors.New("paymentRequirements is required")
	}
	if req.X402Version != 0 && req.X402Version != x402.X402Version {
		return req, fmt.Errorf("unsupported x402 version: %d", req.X402Version)
	}
	if req.PaymentRequirements.Scheme == "" {
		req.PaymentRequirements.Scheme = x402.SchemeExact
	}
	if req.PaymentRequirements.Network == "" {
		req.PaymentRequirements.Network = x402.MovementMainnet.ID
	}
	if err := validation.ValidatePaymentPayload(req.Payment()); err != nil {
		return req, err
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
