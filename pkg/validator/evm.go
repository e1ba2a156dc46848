package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

type jsonrpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type jsonrpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// probeEVM asks the endpoint for its head block, and when a chain id is
// configured verifies the endpoint agrees. WebSocket URLs are probed over
// the equivalent HTTP scheme; every EVM provider we target serves JSON-RPC
// on both.
func (v *Validator) probeEVM(ctx context.Context, endpoint string, chainID *int64) (int64, error) {
	httpEndpoint := wsToHTTP(endpoint)

	height, err := v.callEVM(ctx, httpEndpoint, "eth_blockNumber")
	if err != nil {
		return 0, err
	}

	if chainID != nil {
		got, err := v.callEVM(ctx, httpEndpoint, "eth_chainId")
		if err != nil {
			return 0, err
		}
		if got != *chainID {
			return 0, errChainMismatch{expected: *chainID, got: got}
		}
	}
	return height, nil
}

// callEVM issues a single parameterless JSON-RPC call and parses the hex
// quantity result.
func (v *Validator) callEVM(ctx context.Context, endpoint, method string) (int64, error) {
	body, err := json.Marshal(jsonrpcRequest{JSONRPC: "2.0", Method: method, Params: []interface{}{}, ID: 1})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP error: status %d from %s", resp.StatusCode, method)
	}

	var rpcResp jsonrpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return 0, fmt.Errorf("malformed %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return 0, fmt.Errorf("%s returned error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	n, err := strconv.ParseInt(strings.TrimPrefix(rpcResp.Result, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed %s result %q", method, rpcResp.Result)
	}
	return n, nil
}

func wsToHTTP(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "wss://"):
		return "https://" + strings.TrimPrefix(endpoint, "wss://")
	case strings.HasPrefix(endpoint, "ws://"):
		return "http://" + strings.TrimPrefix(endpoint, "ws://")
	}
	return endpoint
}
