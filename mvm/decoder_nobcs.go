//go:build x402_nobcs

package mvm

import (
	"errors"
	"net/http"
	"time"
)

func defaultDecoder(rpcURL string, timeout time.Duration) (TransactionDecoder, error) {
	if rpcURL == "" {
		return nil, errors.New("simulation decoder requires an RPC URL")
	}
	return NewSimulationDecoder(rpcURL, &http.Client{}, timeout)
}
