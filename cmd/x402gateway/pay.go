package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tyler-smith/go-bip39"

	"github.com/mark3labs/x402-movement"
	httpx402 "github.com/mark3labs/x402-movement/http"
	"github.com/mark3labs/x402-movement/mvm"
	"github.com/mark3labs/x402-movement/signers/move"
)

type payOptions struct {
	mnemonic   string
	privateKey string
	network    string
	method     string
	data       string
	maxAmount  string
	sequence   int64
	rpcURL     string
	generate   bool
}

func newPayCmd() *cobra.Command {
	opts := payOptions{}

	cmd := &cobra.Command{
		Use:   "pay URL",
		Short: "Call a paywalled URL, paying its x402 challenge",
		Long: `Call URL. When it answers 402, sign a 0x1::aptos_account::transfer for the
offered price and retry with X-PAYMENT. The key comes from --mnemonic,
MOVEMENT_MNEMONIC or --private-key.

Use --generate to print a fresh 24-word mnemonic and its address instead.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.generate {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.generate {
				return generateAccount(cmd.OutOrStdout(), opts.network)
			}
			if opts.mnemonic == "" {
				opts.mnemonic = os.Getenv("MOVEMENT_MNEMONIC")
			}
			if opts.rpcURL == "" {
				if n, ok := x402.LookupNetwork(opts.network); ok {
					opts.rpcURL = n.RPCURL
				}
			}
			return runPay(cmd.Context(), cmd.OutOrStdout(), args[0], opts, nil)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.mnemonic, "mnemonic", "", "BIP-39 mnemonic of the paying account")
	f.StringVar(&opts.privateKey, "private-key", "", "hex ed25519 seed of the paying account")
	f.StringVar(&opts.network, "network", settingsNetwork(), "network to pay on (default from MOVEMENT_NETWORK)")
	f.StringVarP(&opts.method, "request", "X", http.MethodPost, "HTTP method")
	f.StringVarP(&opts.data, "data", "d", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"sentiment","arguments":{"query":"MOVE looks bullish"}}}`, "request body (JSON)")
	f.StringVar(&opts.maxAmount, "max-amount", "", "refuse to pay more than this per call, in the smallest unit")
	f.Int64Var(&opts.sequence, "sequence", -1, "account sequence number; negative reads it from the fullnode")
	f.StringVar(&opts.rpcURL, "rpc-url", "", "fullnode REST URL for sequence lookups (default: the network's)")
	f.BoolVar(&opts.generate, "generate", false, "print a new mnemonic and its address, then exit")
	return cmd
}

func newPaySigner(opts payOptions, client *http.Client) (*move.Signer, error) {
	signerOpts := []move.SignerOption{move.WithNetwork(opts.network)}
	switch {
	case opts.mnemonic != "":
		signerOpts = append(signerOpts, move.WithMnemonic(opts.mnemonic))
	case opts.privateKey != "":
		signerOpts = append(signerOpts, move.WithPrivateKey(opts.privateKey))
	default:
		return nil, errors.New("a key is required: --mnemonic, MOVEMENT_MNEMONIC or --private-key")
	}
	if opts.maxAmount != "" {
		signerOpts = append(signerOpts, move.WithMaxAmountPerCall(opts.maxAmount))
	}
	if opts.sequence >= 0 {
		signerOpts = append(signerOpts, move.WithSequenceSource(move.FixedSequence(uint64(opts.sequence))))
	} else {
		signerOpts = append(signerOpts, move.WithSequenceSource(move.FullnodeSequence(opts.rpcURL, client)))
	}
	return move.NewSigner(signerOpts...)
}

// runPay performs one paid call and prints the outcome to out. base is the
// transport under the paying client; nil means http.DefaultTransport.
func runPay(ctx context.Context, out io.Writer, url string, opts payOptions, base http.RoundTripper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if base == nil {
		base = http.DefaultTransport
	}
	signer, err := newPaySigner(opts, &http.Client{Transport: base})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Payer: %s (%s)\n", signer.Address(), signer.Network())

	client, err := httpx402.NewClient(
		httpx402.WithHTTPClient(&http.Client{Transport: base}),
		httpx402.WithSigner(signer),
		httpx402.WithPaymentCallback(x402.PaymentEventAttempt, func(e x402.PaymentEvent) {
			slog.Info("paying challenge", "amount", e.Amount, "asset", e.Asset, "network", e.Network)
		}),
	)
	if err != nil {
		return err
	}

	var body io.Reader
	if opts.data != "" {
		body = strings.NewReader(opts.data)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(opts.method), url, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	fmt.Fprintf(out, "Status: %s\n", resp.Status)
	if settlement := httpx402.GetSettlement(resp); settlement != nil {
		fmt.Fprintf(out, "Transaction: %s\n", settlement.TxHash)
		fmt.Fprintf(out, "Network: %s\n", settlement.Network)
		if settlement.Payer != "" {
			fmt.Fprintf(out, "Settled payer: %s\n", settlement.Payer)
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	fmt.Fprintf(out, "\n%s\n", strings.TrimSpace(string(respBody)))

	if resp.StatusCode == http.StatusPaymentRequired {
		return errors.New("payment was not accepted")
	}
	return nil
}

func generateAccount(out io.Writer, network string) error {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return err
	}
	signer, err := move.NewSigner(move.WithMnemonic(mnemonic), move.WithNetwork(network))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Mnemonic: %s\nAddress: %s\nPath: %s\n", mnemonic, signer.Address(), move.DefaultDerivationPath)
	return nil
}

// settingsNetwork is MOVEMENT_NETWORK when it names a known network.
func settingsNetwork() string {
	s, err := mvm.LoadSettings(mvm.OSEnvironment())
	if err != nil {
		return x402.MovementMainnet.ID
	}
	return s.Network
}
