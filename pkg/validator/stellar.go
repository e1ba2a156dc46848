package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type horizonLedgersResponse struct {
	Embedded struct {
		Records []struct {
			Sequence int64 `json:"sequence"`
		} `json:"records"`
	} `json:"_embedded"`
}

// probeStellar fetches the latest ledger from a Horizon endpoint and
// returns its sequence number as the block height.
func (v *Validator) probeStellar(ctx context.Context, endpoint string) (int64, error) {
	url := strings.TrimRight(wsToHTTP(endpoint), "/") + "/ledgers?limit=1&order=desc"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP error: status %d from ledgers endpoint", resp.StatusCode)
	}

	var ledgers horizonLedgersResponse
	if err := json.NewDecoder(resp.Body).Decode(&ledgers); err != nil {
		return 0, fmt.Errorf("malformed ledgers response: %w", err)
	}
	if len(ledgers.Embedded.Records) == 0 {
		return 0, fmt.Errorf("ledgers endpoint returned no records")
	}
	return ledgers.Embedded.Records[0].Sequence, nil
}
