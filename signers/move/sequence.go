package move

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/mark3labs/x402-movement/bcs"
)

// FullnodeSequence reads the account's sequence number from a fullnode REST
// API (GET {baseURL}/accounts/{address}). An account the node does not know
// yet has sequence number 0. client defaults to http.DefaultClient.
func FullnodeSequence(baseURL string, client *http.Client) SequenceSource {
	if client == nil {
		client = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return func(ctx context.Context, address bcs.AccountAddress) (uint64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/accounts/"+address.String(), nil)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return 0, fmt.Errorf("fullnode request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return 0, nil
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return 0, fmt.Errorf("failed to read fullnode response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("fullnode returned HTTP %d: %s", resp.StatusCode, body)
		}

		var account struct {
			SequenceNumber string `json:"sequence_number"`
		}
		if err := json.Unmarshal(body, &account); err != nil {
			return 0, fmt.Errorf("failed to decode account: %w", err)
		}
		n, err := strconv.ParseUint(account.SequenceNumber, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid sequence number %q: %w", account.SequenceNumber, err)
		}
		return n, nil
	}
}
