package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/blip0/blip0/pkg/types"
)

// Page is one page of a list query.
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Pages int   `json:"pages"`
}

func newPage[T any](items []T, total int64, page, size int) *Page[T] {
	pages := int((total + int64(size) - 1) / int64(size))
	return &Page[T]{Items: items, Total: total, Page: page, Size: size, Pages: pages}
}

// ListOptions carries pagination, filters, and sort for list queries.
// Filter keys follow the suffix grammar documented on whereClause.
type ListOptions struct {
	Page      int
	Size      int
	Filters   map[string]interface{}
	SortField string
	SortOrder string
}

func (o *ListOptions) normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Size < 1 {
		o.Size = 20
	}
	if o.Size > 100 {
		o.Size = 100
	}
}

func (o *ListOptions) limitOffset() (int, int) {
	return o.Size, (o.Page - 1) * o.Size
}

// Store defines the repository vocabulary over the relational source of
// truth. Postgres is the only implementation.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, tenant *types.Tenant, limits *types.TenantLimits) error
	GetTenant(ctx context.Context, id uuid.UUID) (*types.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*types.Tenant, error)
	UpdateTenant(ctx context.Context, tenant *types.Tenant) error
	GetTenantLimits(ctx context.Context, tenantID uuid.UUID) (*types.TenantLimits, error)

	// Networks
	GetNetwork(ctx context.Context, id uuid.UUID) (*types.Network, error)
	GetNetworkBySlug(ctx context.Context, slug string) (*types.Network, error)
	UpdateNetwork(ctx context.Context, id uuid.UUID, patch *types.NetworkUpdate) (*types.Network, error)
	ListNetworks(ctx context.Context, opts ListOptions) (*Page[*types.Network], error)

	// Monitors
	GetMonitor(ctx context.Context, id, tenantID uuid.UUID) (*types.Monitor, error)
	GetMonitorBySlug(ctx context.Context, tenantID uuid.UUID, slug string) (*types.Monitor, error)
	UpdateMonitor(ctx context.Context, id, tenantID uuid.UUID, patch *types.MonitorUpdate) (*types.Monitor, error)
	ListMonitors(ctx context.Context, tenantID uuid.UUID, opts ListOptions) (*Page[*types.Monitor], error)
	ListAllMonitors(ctx context.Context, tenantID uuid.UUID) ([]*types.Monitor, error)
	MonitorSlugExists(ctx context.Context, tenantID uuid.UUID, slug string) (bool, error)

	// Triggers
	GetTrigger(ctx context.Context, id, tenantID uuid.UUID) (*types.Trigger, error)
	GetTriggerBySlug(ctx context.Context, tenantID uuid.UUID, slug string) (*types.Trigger, error)
	UpdateTrigger(ctx context.Context, id, tenantID uuid.UUID, patch *types.TriggerUpdate) (*types.Trigger, error)
	ListTriggers(ctx context.Context, tenantID uuid.UUID, opts ListOptions) (*Page[*types.Trigger], error)
	TriggerSlugExists(ctx context.Context, tenantID uuid.UUID, slug string) (bool, error)

	// Block states
	GetBlockState(ctx context.Context, tenantID, networkID uuid.UUID) (*types.BlockState, error)
	CreateBlockState(ctx context.Context, state *types.BlockState) error
	UpdateBlockState(ctx context.Context, state *types.BlockState) error
	ListBlockStates(ctx context.Context, tenantID uuid.UUID, opts ListOptions) (*Page[*types.BlockState], error)

	// Missed blocks
	GetMissedBlock(ctx context.Context, id, tenantID uuid.UUID) (*types.MissedBlock, error)
	GetMissedBlockByNumber(ctx context.Context, tenantID, networkID uuid.UUID, blockNumber int64) (*types.MissedBlock, error)
	CreateMissedBlock(ctx context.Context, mb *types.MissedBlock) error
	UpdateMissedBlock(ctx context.Context, mb *types.MissedBlock) error
	ListUnprocessedMissedBlocks(ctx context.Context, tenantID, networkID uuid.UUID, limit int) ([]*types.MissedBlock, error)
	CountMissedBlocksSince(ctx context.Context, tenantID, networkID uuid.UUID, since time.Time) (int64, error)
	BulkResetMissedBlocks(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID, maxRetries int, reason string) (int64, error)

	// Monitor matches
	CreateMonitorMatch(ctx context.Context, match *types.MonitorMatch) error
	GetMonitorMatch(ctx context.Context, id, tenantID uuid.UUID) (*types.MonitorMatch, error)
	IncrementMatchTriggerCounts(ctx context.Context, id, tenantID uuid.UUID, executed, failed int) error
	ListRecentMatches(ctx context.Context, tenantID uuid.UUID, monitorID *uuid.UUID, since time.Time, limit int) ([]*types.MonitorMatch, error)

	// Trigger executions
	CreateTriggerExecution(ctx context.Context, exec *types.TriggerExecution) error
	GetTriggerExecution(ctx context.Context, id, tenantID uuid.UUID) (*types.TriggerExecution, error)
	UpdateTriggerExecution(ctx context.Context, exec *types.TriggerExecution) error
	ListTriggerExecutions(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*types.TriggerExecution, error)
	ExecutionStatsSince(ctx context.Context, tenantID uuid.UUID, triggerID *uuid.UUID, since time.Time) (*types.TriggerExecutionStats, error)
}
