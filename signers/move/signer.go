// Package move provides an ed25519 signer that pays x402 challenges on
// Aptos-family Move networks with a single-key account.
//
// # Quick Start
//
//	signer, err := move.NewSigner(
//		move.WithMnemonic(os.Getenv("MOVEMENT_MNEMONIC")),
//		move.WithNetwork("movement-testnet"),
//		move.WithSequenceSource(move.FullnodeSequence("https://testnet.movementnetwork.xyz/v1", nil)),
//		move.WithMaxAmountPerCall("100000000"),
//	)
//
// The signer builds a 0x1::aptos_account::transfer (native coin) or
// 0x1::coin::transfer<T> (any other coin type), signs it and returns the
// base64 BCS transaction and authenticator as the x402 payload.
package move

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/bcs"
)

const (
	// DefaultMaxGasAmount is the gas limit put on payment transactions.
	DefaultMaxGasAmount = 200_000
	// DefaultGasUnitPrice is the gas price in octas.
	DefaultGasUnitPrice = 100
	// maxExpirySeconds caps how far ahead a payment transaction expires.
	maxExpirySeconds = 60
)

// SequenceSource returns the next sequence number of an account.
type SequenceSource func(ctx context.Context, address bcs.AccountAddress) (uint64, error)

// FixedSequence always returns n.
func FixedSequence(n uint64) SequenceSource {
	return func(context.Context, bcs.AccountAddress) (uint64, error) { return n, nil }
}

// Signer implements x402.Signer for Move networks.
type Signer struct {
	key       ed25519.PrivateKey
	address   bcs.AccountAddress
	network   x402.Network
	assets    []x402.AssetConfig
	priority  int
	maxAmount *big.Int
	sequence  SequenceSource
	maxGas    uint64
	gasPrice  uint64
	now       func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// NewSigner creates a Move signer. A key and a network are required; the
// network's native coin is accepted unless WithAsset names other coins.
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{
		sequence: FixedSequence(0),
		maxGas:   DefaultMaxGasAmount,
		gasPrice: DefaultGasUnitPrice,
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if len(s.key) != ed25519.PrivateKeySize {
		return nil, x402.ErrInvalidKey
	}
	if s.network.ID == "" {
		return nil, fmt.Errorf("%w: no network configured", x402.ErrUnsupportedNetwork)
	}
	if len(s.assets) == 0 {
		s.assets = []x402.AssetConfig{{
			CoinType: s.network.Asset,
			Symbol:   "MOVE",
			Decimals: int(s.network.Decimals),
		}}
	}

	s.address = bcs.AuthenticationKey(s.key.Public().(ed25519.PublicKey))
	return s, nil
}

// WithPrivateKey sets the key from a hex-encoded 32-byte ed25519 seed,
// with or without a 0x prefix.
func WithPrivateKey(hexKey string) SignerOption {
	return func(s *Signer) error {
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
		if err != nil || len(raw) != ed25519.SeedSize {
			return x402.ErrInvalidKey
		}
		s.key = ed25519.NewKeyFromSeed(raw)
		return nil
	}
}

// WithMnemonic derives the key at DefaultDerivationPath from a BIP-39 mnemonic.
func WithMnemonic(mnemonic string) SignerOption {
	return WithMnemonicPath(mnemonic, DefaultDerivationPath)
}

// WithMnemonicPath derives the key at path from a BIP-39 mnemonic.
func WithMnemonicPath(mnemonic, path string) SignerOption {
	return func(s *Signer) error {
		key, err := KeyFromMnemonic(mnemonic, path)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
		}
		s.key = key
		return nil
	}
}

// WithNetwork sets the network the signer pays on.
func WithNetwork(network string) SignerOption {
	return func(s *Signer) error {
		n, ok := x402.LookupNetwork(network)
		if !ok {
			return fmt.Errorf("%w: %s", x402.ErrUnsupportedNetwork, network)
		}
		s.network = n
		return nil
	}
}

// WithAsset adds a coin type the signer can pay with.
func WithAsset(coinType, symbol string, decimals, priority int) SignerOption {
	return func(s *Signer) error {
		if _, err := bcs.NewStructTypeTag(coinType); err != nil {
			return fmt.Errorf("invalid coin type %q: %w", coinType, err)
		}
		s.assets = append(s.assets, x402.AssetConfig{
			CoinType: coinType,
			Symbol:   symbol,
			Decimals: decimals,
			Priority: priority,
		})
		return nil
	}
}

// WithPriority sets the signer priority.
func WithPriority(priority int) SignerOption {
	return func(s *Signer) error {
		s.priority = priority
		return nil
	}
}

// WithMaxAmountPerCall sets the maximum amount per payment, in the asset's smallest unit.
func WithMaxAmountPerCall(amount string) SignerOption {
	return func(s *Signer) error {
		maxAmount, ok := new(big.Int).SetString(amount, 10)
		if !ok || maxAmount.Sign() < 0 {
			return x402.ErrInvalidAmount
		}
		s.maxAmount = maxAmount
		return nil
	}
}

// WithSequenceSource sets how the account's sequence number is obtained.
func WithSequenceSource(source SequenceSource) SignerOption {
	return func(s *Signer) error {
		if source == nil {
			return fmt.Errorf("nil sequence source")
		}
		s.sequence = source
		return nil
	}
}

// WithGas overrides the gas limit and unit price.
func WithGas(maxGasAmount, gasUnitPrice uint64) SignerOption {
	return func(s *Signer) error {
		s.maxGas = maxGasAmount
		s.gasPrice = gasUnitPrice
		return nil
	}
}

// WithClock sets the time source used for transaction expiry.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) error {
		s.now = now
		return nil
	}
}

// Network implements x402.Signer.
func (s *Signer) Network() string { return s.network.ID }

// Scheme implements x402.Signer.
func (s *Signer) Scheme() string { return x402.SchemeExact }

// GetPriority implements x402.Signer.
func (s *Signer) GetPriority() int { return s.priority }

// GetAssets implements x402.Signer.
func (s *Signer) GetAssets() []x402.AssetConfig { return s.assets }

// GetMaxAmount implements x402.Signer.
func (s *Signer) GetMaxAmount() *big.Int { return s.maxAmount }

// Address returns the signer's account address.
func (s *Signer) Address() bcs.AccountAddress { return s.address }

// PublicKey returns the signer's ed25519 public key.
func (s *Signer) PublicKey() ed25519.PublicKey { return s.key.Public().(ed25519.PublicKey) }

// CanSign implements x402.Signer.
func (s *Signer) CanSign(req *x402.PaymentRequirement) bool {
	if req.Network != s.network.ID || req.Scheme != x402.SchemeExact {
		return false
	}
	for _, asset := range s.assets {
		if sameCoin(asset.CoinType, req.Asset) {
			return true
		}
	}
	return false
}

// Sign implements x402.Signer.
func (s *Signer) Sign(ctx context.Context, req *x402.PaymentRequirement) (*x402.PaymentPayload, error) {
	if !s.CanSign(req) {
		return nil, x402.ErrNoValidSigner
	}

	amount, ok := new(big.Int).SetString(req.MaxAmountRequired, 10)
	if !ok || amount.Sign() < 0 || !amount.IsUint64() {
		return nil, x402.ErrInvalidAmount
	}
	if s.maxAmount != nil && amount.Cmp(s.maxAmount) > 0 {
		return nil, fmt.Errorf("%w: %s > %s", x402.ErrAmountExceeded, amount, s.maxAmount)
	}

	recipient, err := bcs.ParseAddress(req.PayTo)
	if err != nil {
		return nil, fmt.Errorf("invalid payTo: %w", err)
	}

	payload, err := transferPayload(req.Asset, recipient, amount.Uint64())
	if err != nil {
		return nil, err
	}

	sequence, err := s.sequence(ctx, s.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get sequence number: %w", err)
	}

	timeout := min(max(req.MaxTimeoutSeconds, 0), maxExpirySeconds)
	tx := &bcs.RawTransaction{
		Sender:                  s.address,
		SequenceNumber:          sequence,
		Payload:                 payload,
		MaxGasAmount:            s.maxGas,
		GasUnitPrice:            s.gasPrice,
		ExpirationTimestampSecs: uint64(s.now().Unix()) + uint64(timeout),
		ChainID:                 s.network.ChainID,
	}

	txBytes, authenticator, err := s.SignTransaction(tx)
	if err != nil {
		return nil, err
	}

	return &x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     s.network.ID,
		Payload: map[string]any{
			"transaction": base64.StdEncoding.EncodeToString(txBytes),
			"signature":   base64.StdEncoding.EncodeToString(authenticator),
		},
	}, nil
}

// SignTransaction returns the BCS bytes of tx and its ed25519 account authenticator.
func (s *Signer) SignTransaction(tx *bcs.RawTransaction) (txBytes, authenticator []byte, err error) {
	message, err := bcs.SigningMessage(tx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	txBytes, err = tx.MarshalBCS()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	signature := ed25519.Sign(s.key, message)
	authenticator, err = bcs.Ed25519Authenticator(s.PublicKey(), signature)
	if err != nil {
		return nil, nil, err
	}
	return txBytes, authenticator, nil
}

func transferPayload(asset string, recipient bcs.AccountAddress, amount uint64) (bcs.TransactionPayload, error) {
	if asset == "" || sameCoin(asset, x402.NativeCoin) {
		return bcs.AptosAccountTransfer(recipient, amount), nil
	}
	coin, err := bcs.NewStructTypeTag(asset)
	if err != nil {
		return bcs.TransactionPayload{}, fmt.Errorf("invalid asset %q: %w", asset, err)
	}
	return bcs.CoinTransfer(coin, recipient, amount), nil
}

// sameCoin compares coin types with the address part normalized.
func sameCoin(a, b string) bool {
	return coinKey(a) == coinKey(b)
}

func coinKey(s string) string {
	addr, rest, ok := strings.Cut(strings.TrimSpace(s), "::")
	if !ok {
		return strings.ToLower(s)
	}
	return bcs.NormalizeAddress(addr) + "::" + rest
}
