// Package x402 holds the protocol types shared by the paywall, the Move
// facilitator and the facilitator server: payment requirements, settlement
// receipts, the route registry and the supported Move networks.
package x402

import (
	"fmt"
	"sort"
	"strings"
)

// NetworkType represents the virtual machine family of a network.
type NetworkType int

const (
	// NetworkTypeUnknown represents an unrecognized network.
	NetworkTypeUnknown NetworkType = iota
	// NetworkTypeMoveVM represents Aptos-family Move chains.
	NetworkTypeMoveVM
)

// NativeCoin is the coin type tag of the gas coin on Aptos-family chains.
const NativeCoin = "0x1::aptos_coin::AptosCoin"

// NativeCoinDecimals is the number of decimals of NativeCoin (octas).
const NativeCoinDecimals = 8

// Network describes a Move network the gateway can accept payments on.
type Network struct {
	// ID is the x402 network identifier (e.g., "movement").
	ID string

	// ChainID is the value RawTransaction.chain_id must carry on this network.
	ChainID uint8

	// RPCURL is the public fullnode REST endpoint.
	RPCURL string

	// Asset is the default coin type for payments.
	Asset string

	// Decimals of Asset.
	Decimals uint8
}

var (
	MovementMainnet = Network{
		ID:       "movement",
		ChainID:  126,
		RPCURL:   "https://mainnet.movementnetwork.xyz/v1",
		Asset:    NativeCoin,
		Decimals: NativeCoinDecimals,
	}

	MovementTestnet = Network{
		ID:       "movement-testnet",
		ChainID:  250,
		RPCURL:   "https://testnet.movementnetwork.xyz/v1",
		Asset:    NativeCoin,
		Decimals: NativeCoinDecimals,
	}

	AptosMainnet = Network{
		ID:       "aptos",
		ChainID:  1,
		RPCURL:   "https://fullnode.mainnet.aptoslabs.com/v1",
		Asset:    NativeCoin,
		Decimals: NativeCoinDecimals,
	}

	AptosTestnet = Network{
		ID:       "aptos-testnet",
		ChainID:  2,
		RPCURL:   "https://fullnode.testnet.aptoslabs.com/v1",
		Asset:    NativeCoin,
		Decimals: NativeCoinDecimals,
	}
)

var networks = map[string]Network{
	MovementMainnet.ID: MovementMainnet,
	MovementTestnet.ID: MovementTestnet,
	AptosMainnet.ID:    AptosMainnet,
	AptosTestnet.ID:    AptosTestnet,
}

// LookupNetwork returns the network registered under id. Matching is case-insensitive.
func LookupNetwork(id string) (Network, bool) {
	n, ok := networks[strings.ToLower(strings.TrimSpace(id))]
	return n, ok
}

// Networks returns the identifiers of all known networks, sorted.
func Networks() []string {
	ids := make([]string, 0, len(networks))
	for id := range networks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateNetwork validates a network identifier and returns its type.
func ValidateNetwork(networkID string) (NetworkType, error) {
	if networkID == "" {
		return NetworkTypeUnknown, fmt.Errorf("networkID: cannot be empty")
	}
	if _, ok := LookupNetwork(networkID); !ok {
		return NetworkTypeUnknown, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, networkID)
	}
	return NetworkTypeMoveVM, nil
}

// NativeCoinRoute builds a RouteConfig charging amount (a decimal string such
// as "0.01") of the network's native coin.
func NativeCoinRoute(network Network, amount, description string) (RouteConfig, error) {
	atomic, err := AmountToBigInt(amount, int(network.Decimals))
	if err != nil {
		return RouteConfig{}, fmt.Errorf("amount: %w", err)
	}
	return RouteConfig{
		Network:           network.ID,
		Asset:             network.Asset,
		MaxAmountRequired: atomic.String(),
		Description:       description,
	}, nil
}
