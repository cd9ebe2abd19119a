package mvm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mark3labs/x402-movement"
	"github.com/mark3labs/x402-movement/bcs"
)

// SimulateMethod is the JSON-RPC method used to dry-run a transaction.
const SimulateMethod = "transaction.simulate"

// ErrNoSender is returned when a simulation result does not name the sender.
var ErrNoSender = errors.New("could not extract sender from transaction")

// SimulationDecoder asks a JSON-RPC node to simulate the transaction and reads
// the fields it reports. It is used where local BCS decoding is not built in.
type SimulationDecoder struct {
	client  *rpc.Client
	timeout time.Duration
}

// NewSimulationDecoder dials rpcURL. HTTP endpoints are dialed lazily, so
// this does not touch the network.
func NewSimulationDecoder(rpcURL string, httpClient *http.Client, timeout time.Duration) (*SimulationDecoder, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = x402.DefaultTimeouts.VerifyTimeout
	}
	client, err := rpc.DialOptions(context.Background(), rpcURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &SimulationDecoder{client: client, timeout: timeout}, nil
}

func (d *SimulationDecoder) Name() string { return "simulation" }

// Close releases the RPC client.
func (d *SimulationDecoder) Close() {
	d.client.Close()
}

func (d *SimulationDecoder) Decode(ctx context.Context, txBytes []byte) (*Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var result map[string]any
	if err := d.client.CallContext(ctx, &result, SimulateMethod, hexutil.Encode(txBytes)); err != nil {
		return nil, simulationError(err)
	}
	return parseSimulation(result)
}

// simulationError keeps the node's own message for JSON-RPC errors so it can
// be surfaced as the invalid reason.
func simulationError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return errors.New(rpcErr.Error())
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Errorf("HTTP %d", httpErr.StatusCode)
	}
	return err
}

func parseSimulation(result map[string]any) (*Transaction, error) {
	body := result
	sender, _ := body["sender"].(string)
	if nested, ok := result["transaction"].(map[string]any); ok {
		if sender == "" {
			sender, _ = nested["sender"].(string)
		}
		body = nested
	}
	if sender == "" {
		return nil, ErrNoSender
	}

	tx := &Transaction{Sender: bcs.NormalizeAddress(sender)}
	if v, ok := uintField(body, "sequence_number"); ok {
		tx.SequenceNumber = &v
	}
	if v, ok := uintField(body, "expiration_timestamp_secs"); ok {
		tx.Expiration = &v
	}
	if v, ok := uintField(body, "chain_id"); ok && v <= 0xff {
		id := uint8(v)
		tx.ChainID = &id
	}

	if payload, ok := body["payload"].(map[string]any); ok {
		if fn, _ := payload["function"].(string); fn != "" {
			call := &EntryFunctionCall{Function: fn}
			if targs, ok := payload["type_arguments"].([]any); ok {
				for _, t := range targs {
					if s, ok := t.(string); ok {
						call.TypeArgs = append(call.TypeArgs, s)
					}
				}
			}
			args, _ := payload["arguments"].([]any)
			for _, a := range args {
				call.Args = append(call.Args, jsonArgument(a))
			}
			tx.EntryFunction = call
		}
	}
	return tx, nil
}

// uintField reads a u64 that the node may render as a JSON number or a decimal string.
func uintField(m map[string]any, key string) (uint64, bool) {
	switch v := m[key].(type) {
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return n, err == nil
	case float64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// jsonArgument converts a JSON-rendered Move argument back to its BCS form:
// hex strings become addresses, decimal strings and numbers become u64.
func jsonArgument(v any) []byte {
	switch a := v.(type) {
	case string:
		if strings.HasPrefix(a, "0x") {
			if addr, err := bcs.ParseAddress(a); err == nil {
				return addr.Bytes()
			}
		}
		if n, ok := new(big.Int).SetString(a, 10); ok && n.Sign() >= 0 && n.IsUint64() {
			return bcs.U64Arg(n.Uint64())
		}
		return []byte(a)
	case float64:
		if a >= 0 {
			return bcs.U64Arg(uint64(a))
		}
	}
	b, _ := json.Marshal(v)
	return b
}
