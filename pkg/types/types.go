package types

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlatformTenantID is the distinguished tenant that owns platform-managed
// networks. It is materialized on first use by the admin network endpoints.
var PlatformTenantID = uuid.MustParse("11111111-1111-1111-1111-111111111111")

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a well-formed slug.
func ValidSlug(s string) bool {
	return slugRe.MatchString(s)
}

// Plan is the subscription plan of a tenant
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// TenantStatus represents the lifecycle state of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusDeleted   TenantStatus = "deleted"
)

// Tenant is an isolation unit owning monitors, triggers, and audit records
type Tenant struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	Slug      string       `db:"slug" json:"slug"`
	Plan      Plan         `db:"plan" json:"plan"`
	Status    TenantStatus `db:"status" json:"status"`
	Settings  JSONMap      `db:"settings" json:"settings"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// TenantLimits holds the per-tenant caps and live counters. Exactly one row
// exists per tenant; it is created together with the tenant.
type TenantLimits struct {
	ID                      uuid.UUID       `db:"id" json:"id"`
	TenantID                uuid.UUID       `db:"tenant_id" json:"tenant_id"`
	MaxMonitors             int             `db:"max_monitors" json:"max_monitors"`
	MaxNetworks             int             `db:"max_networks" json:"max_networks"`
	MaxTriggers             int             `db:"max_triggers" json:"max_triggers"`
	MaxAPICallsPerHour      int             `db:"max_api_calls_per_hour" json:"max_api_calls_per_hour"`
	MaxStorageGB            decimal.Decimal `db:"max_storage_gb" json:"max_storage_gb"`
	MaxConcurrentOperations int             `db:"max_concurrent_operations" json:"max_concurrent_operations"`
	CurrentMonitors         int             `db:"current_monitors" json:"current_monitors"`
	CurrentNetworks         int             `db:"current_networks" json:"current_networks"`
	CurrentTriggers         int             `db:"current_triggers" json:"current_triggers"`
	CurrentStorageGB        decimal.Decimal `db:"current_storage_gb" json:"current_storage_gb"`
	CreatedAt               time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at" json:"updated_at"`
}

// NetworkType identifies the chain family of a network
type NetworkType string

const (
	NetworkTypeEVM     NetworkType = "EVM"
	NetworkTypeStellar NetworkType = "Stellar"
)

// RPCUrlType ranks an endpoint within a network's endpoint list
type RPCUrlType string

const (
	RPCUrlPrimary  RPCUrlType = "primary"
	RPCUrlBackup   RPCUrlType = "backup"
	RPCUrlFallback RPCUrlType = "fallback"
)

// RPCUrl is a single RPC endpoint of a network
type RPCUrl struct {
	URL    string     `json:"url"`
	Type   RPCUrlType `json:"type"`
	Weight int        `json:"weight"`
}

// Network is a blockchain configuration: endpoints, chain identity, and
// polling cadence. Platform-managed networks carry the platform tenant id.
type Network struct {
	ID                 uuid.UUID        `db:"id" json:"id"`
	TenantID           uuid.UUID        `db:"tenant_id" json:"tenant_id"`
	Name               string           `db:"name" json:"name"`
	Slug               string           `db:"slug" json:"slug"`
	NetworkType        NetworkType      `db:"network_type" json:"network_type"`
	ChainID            *int64           `db:"chain_id" json:"chain_id,omitempty"`
	NetworkPassphrase  *string          `db:"network_passphrase" json:"network_passphrase,omitempty"`
	BlockTimeMS        int64            `db:"block_time_ms" json:"block_time_ms"`
	RPCUrls            RPCUrlList       `db:"rpc_urls" json:"rpc_urls"`
	ConfirmationBlocks int64            `db:"confirmation_blocks" json:"confirmation_blocks"`
	CronSchedule       string           `db:"cron_schedule" json:"cron_schedule"`
	MaxPastBlocks      int64            `db:"max_past_blocks" json:"max_past_blocks"`
	StoreBlocks        bool             `db:"store_blocks" json:"store_blocks"`
	Active             bool             `db:"active" json:"active"`
	Validated          bool             `db:"validated" json:"validated"`
	ValidationErrors   ValidationErrors `db:"validation_errors" json:"validation_errors,omitempty"`
	LastValidatedAt    *time.Time       `db:"last_validated_at" json:"last_validated_at,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// Address is a watched contract or account address on a monitor
type Address struct {
	Address       string  `json:"address"`
	ContractSpecs JSONMap `json:"contract_specs,omitempty"`
}

// Monitor is a tenant-owned rule set matching blockchain events, function
// calls, or transactions on one or more networks.
type Monitor struct {
	ID                uuid.UUID        `db:"id" json:"id"`
	TenantID          uuid.UUID        `db:"tenant_id" json:"tenant_id"`
	Name              string           `db:"name" json:"name"`
	Slug              string           `db:"slug" json:"slug"`
	Description       string           `db:"description" json:"description"`
	Paused            bool             `db:"paused" json:"paused"`
	Active            bool             `db:"active" json:"active"`
	Networks          StringList       `db:"networks" json:"networks"`
	Addresses         AddressList      `db:"addresses" json:"addresses"`
	MatchFunctions    DocList          `db:"match_functions" json:"match_functions"`
	MatchEvents       DocList          `db:"match_events" json:"match_events"`
	MatchTransactions DocList          `db:"match_transactions" json:"match_transactions"`
	TriggerConditions DocList          `db:"trigger_conditions" json:"trigger_conditions"`
	Triggers          StringList       `db:"triggers" json:"triggers"`
	Validated         bool             `db:"validated" json:"validated"`
	ValidationErrors  ValidationErrors `db:"validation_errors" json:"validation_errors,omitempty"`
	LastValidatedAt   *time.Time       `db:"last_validated_at" json:"last_validated_at,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
	DeletedAt         *time.Time       `db:"deleted_at" json:"deleted_at,omitempty"`
}

// Runnable reports whether downstream workers should evaluate this monitor.
func (m *Monitor) Runnable() bool {
	return m.Active && !m.Paused && m.Validated
}

// MonitorWithTriggers is the denormalized worker-facing view of a monitor:
// the monitor plus the resolved trigger records it references, so workers
// never join.
type MonitorWithTriggers struct {
	Monitor
	TriggerRecords []*Trigger `json:"trigger_records"`
}

// TriggerType identifies the notification action of a trigger
type TriggerType string

const (
	TriggerTypeEmail   TriggerType = "email"
	TriggerTypeWebhook TriggerType = "webhook"
)

// SecretSource tags where a credential value is resolved from. The control
// plane never dereferences it; resolution happens in the worker.
type SecretSource string

const (
	SecretSourcePlain       SecretSource = "Plain"
	SecretSourceEnvironment SecretSource = "Environment"
	SecretSourceVault       SecretSource = "HashicorpCloudVault"
)

// SecretValue is an opaque (source, value) credential reference. The raw
// value keeps the wire name "value"; the Go field differs so the struct can
// also satisfy driver.Valuer.
type SecretValue struct {
	Type SecretSource `json:"type"`
	Raw  string       `json:"value"`
}

// Trigger is a tenant-owned notification action. Exactly one companion
// config (Email or Webhook) matches TriggerType.
type Trigger struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	TenantID         uuid.UUID        `db:"tenant_id" json:"tenant_id"`
	Name             string           `db:"name" json:"name"`
	Slug             string           `db:"slug" json:"slug"`
	TriggerType      TriggerType      `db:"trigger_type" json:"trigger_type"`
	Description      string           `db:"description" json:"description"`
	Active           bool             `db:"active" json:"active"`
	Validated        bool             `db:"validated" json:"validated"`
	ValidationErrors ValidationErrors `db:"validation_errors" json:"validation_errors,omitempty"`
	LastValidatedAt  *time.Time       `db:"last_validated_at" json:"last_validated_at,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`

	Email   *EmailTriggerConfig   `db:"-" json:"email,omitempty"`
	Webhook *WebhookTriggerConfig `db:"-" json:"webhook,omitempty"`
}

// EmailTriggerConfig is the companion record for email triggers
type EmailTriggerConfig struct {
	ID           uuid.UUID   `db:"id" json:"-"`
	TriggerID    uuid.UUID   `db:"trigger_id" json:"-"`
	Host         string      `db:"host" json:"host"`
	Port         int         `db:"port" json:"port"`
	Username     SecretValue `db:"username" json:"username"`
	Password     SecretValue `db:"password" json:"password"`
	Sender       string      `db:"sender" json:"sender"`
	Recipients   StringList  `db:"recipients" json:"recipients"`
	MessageTitle string      `db:"message_title" json:"message_title"`
	MessageBody  string      `db:"message_body" json:"message_body"`
}

// WebhookTriggerConfig is the companion record for webhook triggers
type WebhookTriggerConfig struct {
	ID           uuid.UUID    `db:"id" json:"-"`
	TriggerID    uuid.UUID    `db:"trigger_id" json:"-"`
	URL          SecretValue  `db:"url" json:"url"`
	Method       string       `db:"method" json:"method"`
	Headers      StringMap    `db:"headers" json:"headers"`
	Secret       *SecretValue `db:"secret" json:"secret,omitempty"`
	MessageTitle string       `db:"message_title" json:"message_title"`
	MessageBody  string       `db:"message_body" json:"message_body"`
}

// ProcessingStatus is the block-processing state of a (tenant, network) pair
type ProcessingStatus string

const (
	ProcessingStatusIdle       ProcessingStatus = "idle"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusError      ProcessingStatus = "error"
	ProcessingStatusPaused     ProcessingStatus = "paused"
)

// BlockState tracks block-processing progress per tenant and network
type BlockState struct {
	ID                      uuid.UUID        `db:"id" json:"id"`
	TenantID                uuid.UUID        `db:"tenant_id" json:"tenant_id"`
	NetworkID               uuid.UUID        `db:"network_id" json:"network_id"`
	ProcessingStatus        ProcessingStatus `db:"processing_status" json:"processing_status"`
	LastProcessedBlock      *int64           `db:"last_processed_block" json:"last_processed_block,omitempty"`
	LastProcessedAt         *time.Time       `db:"last_processed_at" json:"last_processed_at,omitempty"`
	LastError               *string          `db:"last_error" json:"last_error,omitempty"`
	LastErrorAt             *time.Time       `db:"last_error_at" json:"last_error_at,omitempty"`
	ErrorCount              int              `db:"error_count" json:"error_count"`
	BlocksPerMinute         decimal.Decimal  `db:"blocks_per_minute" json:"blocks_per_minute"`
	AverageProcessingTimeMS *int64           `db:"average_processing_time_ms" json:"average_processing_time_ms,omitempty"`
	CreatedAt               time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time        `db:"updated_at" json:"updated_at"`
}

// BlockProcessingStats is the aggregate view returned by the block-state
// stats query over a trailing window.
type BlockProcessingStats struct {
	TenantID             uuid.UUID `json:"tenant_id"`
	NetworkID            uuid.UUID `json:"network_id"`
	PeriodStart          time.Time `json:"period_start"`
	PeriodEnd            time.Time `json:"period_end"`
	TotalBlocksProcessed int64     `json:"total_blocks_processed"`
	TotalMissedBlocks    int64     `json:"total_missed_blocks"`
	ErrorRate            float64   `json:"error_rate"`
	UptimePercentage     float64   `json:"uptime_percentage"`
}

// MissedBlock records a block a worker failed to process
type MissedBlock struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TenantID    uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	NetworkID   uuid.UUID  `db:"network_id" json:"network_id"`
	BlockNumber int64      `db:"block_number" json:"block_number"`
	Reason      string     `db:"reason" json:"reason"`
	RetryCount  int        `db:"retry_count" json:"retry_count"`
	Processed   bool       `db:"processed" json:"processed"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// MonitorMatch records a monitor firing on a block
type MonitorMatch struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	TenantID         uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	MonitorID        uuid.UUID  `db:"monitor_id" json:"monitor_id"`
	NetworkID        uuid.UUID  `db:"network_id" json:"network_id"`
	BlockNumber      int64      `db:"block_number" json:"block_number"`
	TransactionHash  *string    `db:"transaction_hash" json:"transaction_hash,omitempty"`
	MatchData        JSONMap    `db:"match_data" json:"match_data"`
	TriggersExecuted int        `db:"triggers_executed" json:"triggers_executed"`
	TriggersFailed   int        `db:"triggers_failed" json:"triggers_failed"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// ExecutionStatus is the lifecycle state of a trigger execution
type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
	ExecutionStatusTimeout ExecutionStatus = "timeout"
)

// TriggerExecution records one delivery attempt of a trigger
type TriggerExecution struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	TenantID       uuid.UUID       `db:"tenant_id" json:"tenant_id"`
	TriggerID      uuid.UUID       `db:"trigger_id" json:"trigger_id"`
	MonitorMatchID *uuid.UUID      `db:"monitor_match_id" json:"monitor_match_id,omitempty"`
	ExecutionType  TriggerType     `db:"execution_type" json:"execution_type"`
	ExecutionData  JSONMap         `db:"execution_data" json:"execution_data"`
	Status         ExecutionStatus `db:"status" json:"status"`
	StartedAt      *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	DurationMS     *int64          `db:"duration_ms" json:"duration_ms,omitempty"`
	RetryCount     int             `db:"retry_count" json:"retry_count"`
	ErrorMessage   *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// TriggerExecutionStats is the aggregate view over recent executions
type TriggerExecutionStats struct {
	TenantID          uuid.UUID  `json:"tenant_id"`
	TriggerID         *uuid.UUID `json:"trigger_id,omitempty"`
	Total             int64      `json:"total"`
	SuccessRate       float64    `json:"success_rate"`
	RetryRate         float64    `json:"retry_rate"`
	AverageDurationMS float64    `json:"average_duration_ms"`
}
