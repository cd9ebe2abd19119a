package main

import (
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/mark3labs/x402-movement/facilitator/auth"
	"github.com/mark3labs/x402-movement/facilitator/server"
	httpx402 "github.com/mark3labs/x402-movement/http"
	"github.com/mark3labs/x402-movement/mvm"
)

type facilitatorOptions struct {
	addr        string
	prefix      string
	upstream    string
	trustedKeys map[string]string
	audience    string
	clockSkew   time.Duration
}

func newFacilitatorCmd() *cobra.Command {
	opts := facilitatorOptions{}

	cmd := &cobra.Command{
		Use:   "facilitator",
		Short: "Serve /verify, /settle and /supported for other gateways",
		Long: `Run a facilitator that verifies Move payments locally and relays
settlement to an upstream settlement service.

With one or more --trusted-key flags, every request must carry a bearer token
signed by one of those keys.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := mvm.LoadSettings(mvm.OSEnvironment())
			if err != nil {
				return err
			}
			handler, err := newFacilitatorHandler(opts, settings, slog.Default())
			if err != nil {
				return err
			}
			return listenAndServe(cmd.Context(), opts.addr, handler, slog.Default())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", ":3000", "listen address")
	f.StringVar(&opts.prefix, "prefix", mvm.FacilitatorPath, "path the endpoints are mounted under")
	f.StringVar(&opts.upstream, "upstream", "", "settlement service the facilitator relays to (default from FACILITATOR_URL / FRONTEND_URL)")
	f.StringToStringVar(&opts.trustedKeys, "trusted-key", nil, "key id to public key file (PEM or hex), repeatable: --trusted-key gateway=gw.pub")
	f.StringVar(&opts.audience, "audience", "x402-facilitator", "required audience of bearer tokens")
	f.DurationVar(&opts.clockSkew, "clock-skew", 30*time.Second, "allowed clock skew for bearer tokens")
	return cmd
}

func newFacilitatorHandler(opts facilitatorOptions, settings mvm.Settings, logger *slog.Logger) (http.Handler, error) {
	upstream := opts.upstream
	if upstream == "" {
		upstream = settings.FacilitatorURL
	}
	if relaysToSelf(upstream, opts.addr, opts.prefix) {
		return nil, fmt.Errorf("upstream %s is this facilitator's own address; set --upstream or FACILITATOR_URL to the settlement service", upstream)
	}

	verifier, err := mvm.NewFacilitator(mvm.Config{
		Settler:  httpx402.NewFacilitatorClient(upstream, httpx402.WithFacilitatorLogger(logger)),
		RPCURL:   settings.RPCURL,
		Networks: []string{settings.Network},
		ChainIDs: map[string]uint8{settings.Network: settings.ChainID},
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	cfg := server.Config{Facilitator: verifier, Logger: logger}
	if len(opts.trustedKeys) > 0 {
		keys := make(map[string]ed25519.PublicKey, len(opts.trustedKeys))
		for kid, path := range opts.trustedKeys {
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("trusted key %q: %w", kid, err)
			}
			key, err := auth.ParsePublicKey(string(raw))
			if err != nil {
				return nil, fmt.Errorf("trusted key %q: %w", kid, err)
			}
			keys[kid] = key
		}
		cfg.Validator = auth.NewValidator(keys, opts.audience, opts.clockSkew)
	}

	srv, err := server.New(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("facilitator configured", "prefix", opts.prefix, "upstream", upstream, "decoder", verifier.DecoderName(), "trustedKeys", len(opts.trustedKeys))

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if opts.prefix == "" || opts.prefix == "/" {
		r.Mount("/", srv)
	} else {
		r.Mount(opts.prefix, srv)
	}
	return r, nil
}

// relaysToSelf reports whether upstream names the facilitator served on addr
// under prefix. A wildcard or empty listen host matches any loopback host.
func relaysToSelf(upstream, addr, prefix string) bool {
	u, err := url.Parse(upstream)
	if err != nil || u.Host == "" {
		return false
	}
	listenHost, listenPort, err := net.SplitHostPort(addr)
	if err != nil || listenPort == "" {
		return false
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	if port != listenPort {
		return false
	}

	host := u.Hostname()
	switch listenHost {
	case "", "0.0.0.0", "::":
		if !isLoopback(host) {
			return false
		}
	default:
		if !strings.EqualFold(host, listenHost) && !(isLoopback(host) && isLoopback(listenHost)) {
			return false
		}
	}

	return strings.Trim(u.Path, "/") == strings.Trim(prefix, "/")
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
