//go:build !x402_nobcs

package mvm

import "time"

func defaultDecoder(string, time.Duration) (TransactionDecoder, error) {
	return BCSDecoder{}, nil
}
