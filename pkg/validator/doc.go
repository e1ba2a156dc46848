/*
Package validator checks network configurations before they are admitted
to the control plane.

Validation has two halves. Structural checks inspect the row itself: slug
shape, endpoint URL schemes, the chain identity field required by the
network type, polling cadence, and cron syntax. Liveness probes then hit
every configured RPC endpoint in parallel, each under its own deadline:
EVM endpoints get eth_blockNumber and, when a chain id is configured,
eth_chainId; Stellar endpoints get the latest ledger from Horizon.

A probe failure is recorded per endpoint, never returned as an error. The
network is valid when the structure is clean and at least one endpoint
answered; the reported block height is the maximum across endpoints.
*/
package validator
