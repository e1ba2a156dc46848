package validator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/blip0/blip0/pkg/config"
	"github.com/blip0/blip0/pkg/log"
	"github.com/blip0/blip0/pkg/metrics"
	"github.com/blip0/blip0/pkg/types"
)

// EndpointStatus is the probe outcome for one RPC endpoint.
type EndpointStatus struct {
	Online    bool    `json:"online"`
	LatencyMS *int64  `json:"latency_ms,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// Result aggregates a network validation pass. Unreachable endpoints are
// data, not errors: the validator never fails.
type Result struct {
	IsValid            bool                      `json:"is_valid"`
	CurrentBlockHeight int64                     `json:"current_block_height"`
	RPCStatus          map[string]EndpointStatus `json:"rpc_status"`
	Errors             types.ValidationErrors    `json:"errors,omitempty"`
}

// Validator probes network RPC endpoints for liveness, latency, and block
// height, and checks the structural shape of a network row.
type Validator struct {
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a validator with the configured per-endpoint deadline.
func New(cfg config.ValidatorConfig) *Validator {
	return NewWithClient(&http.Client{}, cfg.ProbeTimeout)
}

// NewWithClient creates a validator with a custom HTTP client. Used by
// tests to point probes at stub servers.
func NewWithClient(client *http.Client, timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Validator{
		client:  client,
		timeout: timeout,
		logger:  log.WithComponent("validator"),
	}
}

var allowedSchemes = map[string]bool{"http": true, "https": true, "ws": true, "wss": true}

// StructuralErrors checks the shape of a network row without touching the
// wire.
func (v *Validator) StructuralErrors(n *types.Network) types.ValidationErrors {
	errs := types.ValidationErrors{}

	if !types.ValidSlug(n.Slug) {
		errs.Add("slug", "must be lowercase alphanumerics separated by single hyphens")
	}
	if n.BlockTimeMS <= 0 {
		errs.Add("block_time_ms", "must be positive")
	}
	if n.ConfirmationBlocks < 1 {
		errs.Add("confirmation_blocks", "must be at least 1")
	}
	if n.MaxPastBlocks < 1 {
		errs.Add("max_past_blocks", "must be at least 1")
	}
	if len(n.RPCUrls) == 0 {
		errs.Add("rpc_urls", "at least one RPC endpoint is required")
	}
	for _, rpc := range n.RPCUrls {
		u, err := url.Parse(rpc.URL)
		if err != nil || !allowedSchemes[u.Scheme] {
			errs.Add("rpc_urls", fmt.Sprintf("invalid endpoint URL %q", rpc.URL))
		}
	}

	switch n.NetworkType {
	case types.NetworkTypeEVM:
		if n.ChainID == nil {
			errs.Add("chain_id", "required for EVM networks")
		}
	case types.NetworkTypeStellar:
		if n.NetworkPassphrase == nil || *n.NetworkPassphrase == "" {
			errs.Add("network_passphrase", "required for Stellar networks")
		}
	default:
		errs.Add("network_type", fmt.Sprintf("unknown network type %q", n.NetworkType))
	}

	if n.CronSchedule != "" {
		if _, err := cron.ParseStandard(n.CronSchedule); err != nil {
			errs.Add("cron_schedule", fmt.Sprintf("invalid cron expression: %v", err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateNetwork runs the structural checks and probes every endpoint in
// parallel, each under its own deadline. Validity requires no structural
// errors and at least one online endpoint.
func (v *Validator) ValidateNetwork(ctx context.Context, n *types.Network) *Result {
	result := &Result{
		RPCStatus: make(map[string]EndpointStatus, len(n.RPCUrls)),
		Errors:    v.StructuralErrors(n),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, rpc := range n.RPCUrls {
		wg.Add(1)
		go func(endpoint string) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, v.timeout)
			defer cancel()

			start := time.Now()
			height, err := v.probe(probeCtx, n, endpoint)
			latency := time.Since(start).Milliseconds()

			status := EndpointStatus{}
			if err != nil {
				msg := classify(err)
				status.Error = &msg
				metrics.ValidationProbes.WithLabelValues(string(n.NetworkType), "offline").Inc()
			} else {
				status.Online = true
				status.LatencyMS = &latency
				metrics.ValidationProbes.WithLabelValues(string(n.NetworkType), "online").Inc()
			}

			mu.Lock()
			result.RPCStatus[endpoint] = status
			if err == nil && height > result.CurrentBlockHeight {
				result.CurrentBlockHeight = height
			}
			mu.Unlock()
		}(rpc.URL)
	}
	wg.Wait()

	anyOnline := false
	for _, s := range result.RPCStatus {
		if s.Online {
			anyOnline = true
			break
		}
	}
	result.IsValid = len(result.Errors) == 0 && anyOnline
	return result
}

func (v *Validator) probe(ctx context.Context, n *types.Network, endpoint string) (int64, error) {
	switch n.NetworkType {
	case types.NetworkTypeStellar:
		return v.probeStellar(ctx, endpoint)
	default:
		return v.probeEVM(ctx, endpoint, n.ChainID)
	}
}

// errChainMismatch wraps a chain-id disagreement so classify keeps the
// message verbatim.
type errChainMismatch struct {
	expected, got int64
}

func (e errChainMismatch) Error() string {
	return fmt.Sprintf("Chain ID mismatch: expected %d, got %d", e.expected, e.got)
}

func classify(err error) string {
	var mismatch errChainMismatch
	if errors.As(err, &mismatch) {
		return mismatch.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Connection timeout"
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if uerr.Timeout() {
			return "Connection timeout"
		}
		return "HTTP error: " + uerr.Err.Error()
	}
	if strings.HasPrefix(err.Error(), "HTTP error:") {
		return err.Error()
	}
	return "Test failed: " + err.Error()
}
