// Package mvm verifies x402 payments made with Move transactions on
// Aptos-family networks and settles them through a remote facilitator.
package mvm

import (
	"encoding/base64"
	"strings"

	"github.com/mark3labs/x402-movement"
)

var (
	transactionFields = []string{"transaction", "transactionBcsBase64"}
	signatureFields   = []string{"signature", "signatureBcsBase64"}
)

// ParsePayload normalizes the two historical field spellings of a Move
// payment body. It reports false when no transaction blob is present.
func ParsePayload(body map[string]any) (x402.MovePayload, bool) {
	p := x402.MovePayload{
		Transaction: firstString(body, transactionFields),
		Signature:   firstString(body, signatureFields),
	}
	return p, p.Transaction != ""
}

func firstString(body map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := body[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	b, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return b, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}
