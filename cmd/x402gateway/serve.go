package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/agent"
	"github.com/mark3labs/x402-movement/facilitator"
	"github.com/mark3labs/x402-movement/facilitator/auth"
	httpx402 "github.com/mark3labs/x402-movement/http"
	chix402 "github.com/mark3labs/x402-movement/http/chi"
	"github.com/mark3labs/x402-movement/mvm"
)

// agentPrefix is where the sentiment agent is mounted.
const agentPrefix = "/sentiment"

// defaultPrice is 1 MOVE in octas.
const defaultPrice = "100000000"

type serveOptions struct {
	addr      string
	price     string
	publicURL string

	facilitatorURL      string
	facilitatorKeyFile  string
	facilitatorKeyID    string
	facilitatorAudience string
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve paid agents behind the x402 paywall",
		Long: `Serve the sentiment agent behind an x402 paywall. Every POST under the
agent costs --price octas of the network's native coin; the agent card stays free.

Configuration is read from MOVEMENT_PAY_TO (required), MOVEMENT_NETWORK,
MOVEMENT_RPC_URL, MOVEMENT_CHAIN_ID, FACILITATOR_URL and FRONTEND_URL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := mvm.LoadSettings(mvm.OSEnvironment())
			if err != nil {
				return err
			}
			handler, err := newGateway(opts, settings, nil, slog.Default())
			if err != nil {
				return err
			}
			return listenAndServe(cmd.Context(), opts.addr, handler, slog.Default())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", ":8000", "listen address")
	f.StringVar(&opts.price, "price", defaultPrice, "price per call in the smallest unit of the native coin")
	f.StringVar(&opts.publicURL, "public-url", "", "public base URL advertised in the agent card (default http://localhost<addr>)")
	f.StringVar(&opts.facilitatorURL, "facilitator-url", "", "settlement service URL (default from FACILITATOR_URL / FRONTEND_URL)")
	f.StringVar(&opts.facilitatorKeyFile, "facilitator-key-file", "", "ed25519 key (PEM or hex seed) used to sign facilitator bearer tokens")
	f.StringVar(&opts.facilitatorKeyID, "facilitator-key-id", "gateway", "key id sent with facilitator bearer tokens")
	f.StringVar(&opts.facilitatorAudience, "facilitator-audience", "x402-facilitator", "audience of facilitator bearer tokens")
	return cmd
}

// newGateway builds the gateway router. fac overrides the Move facilitator
// that is otherwise built from settings.
func newGateway(opts serveOptions, settings mvm.Settings, fac facilitator.Interface, logger *slog.Logger) (http.Handler, error) {
	if settings.PayTo == "" {
		return nil, errors.New("MOVEMENT_PAY_TO is required")
	}
	network, ok := x402.LookupNetwork(settings.Network)
	if !ok {
		return nil, fmt.Errorf("%w: %s", x402.ErrUnsupportedNetwork, settings.Network)
	}

	price := opts.price
	if price == "" {
		price = defaultPrice
	}
	routes, err := x402.NewRoutes(map[string]x402.RouteConfig{
		"POST /": {
			Network:           network.ID,
			Asset:             network.Asset,
			MaxAmountRequired: price,
			Description:       "Cryptocurrency sentiment analysis",
		},
	})
	if err != nil {
		return nil, err
	}

	cfg := &httpx402.Config{
		PayTo:          settings.PayTo,
		Routes:         routes,
		Facilitator:    fac,
		FacilitatorURL: opts.facilitatorURL,
		RPCURL:         settings.RPCURL,
		ChainIDs:       map[string]uint8{network.ID: settings.ChainID},
		Logger:         logger,
	}
	if cfg.FacilitatorURL == "" {
		cfg.FacilitatorURL = settings.FacilitatorURL
	}
	if opts.facilitatorKeyFile != "" {
		tokens, err := loadTokenSource(opts)
		if err != nil {
			return nil, err
		}
		cfg.FacilitatorAuthorizationProvider = tokens.Authorization
	}

	paywall, err := httpx402.NewPaywall(cfg)
	if err != nil {
		return nil, err
	}

	publicURL := opts.publicURL
	if publicURL == "" {
		publicURL = "http://localhost" + opts.addr
	}
	sentiment, err := agent.New(agent.Config{
		URL:    strings.TrimRight(publicURL, "/") + agentPrefix,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"network": network.ID,
			"payTo":   settings.PayTo,
			"agents":  []string{agentPrefix},
		})
	})
	r.Group(func(r chi.Router) {
		r.Use(chix402.Middleware(paywall))
		r.Mount(agentPrefix, sentiment.Handler())
	})

	logger.Info("gateway configured", "network", network.ID, "payTo", settings.PayTo, "price", price, "agent", agentPrefix)
	return r, nil
}

func loadTokenSource(opts serveOptions) (*auth.TokenSource, error) {
	raw, err := os.ReadFile(opts.facilitatorKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read facilitator key: %w", err)
	}
	key, err := auth.ParsePrivateKey(string(raw))
	if err != nil {
		return nil, err
	}
	return auth.NewTokenSource(opts.facilitatorKeyID, "x402-gateway", opts.facilitatorAudience, key)
}

// listenAndServe runs handler until ctx is cancelled or the process gets
// SIGINT/SIGTERM, then shuts down gracefully.
func listenAndServe(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
