package types

import (
	"time"

	"github.com/google/uuid"
)

// MonitorCreate is the write schema for creating a monitor
type MonitorCreate struct {
	TenantID          *uuid.UUID  `json:"tenant_id,omitempty"`
	Name              string      `json:"name"`
	Slug              string      `json:"slug"`
	Description       string      `json:"description"`
	Networks          StringList  `json:"networks"`
	Addresses         AddressList `json:"addresses"`
	MatchFunctions    DocList     `json:"match_functions"`
	MatchEvents       DocList     `json:"match_events"`
	MatchTransactions DocList     `json:"match_transactions"`
	TriggerConditions DocList     `json:"trigger_conditions"`
	Triggers          StringList  `json:"triggers"`
}

// MonitorUpdate is a partial patch; nil fields are left untouched
type MonitorUpdate struct {
	Name              *string      `json:"name,omitempty"`
	Slug              *string      `json:"slug,omitempty"`
	Description       *string      `json:"description,omitempty"`
	Paused            *bool        `json:"paused,omitempty"`
	Active            *bool        `json:"active,omitempty"`
	Networks          *StringList  `json:"networks,omitempty"`
	Addresses         *AddressList `json:"addresses,omitempty"`
	MatchFunctions    *DocList     `json:"match_functions,omitempty"`
	MatchEvents       *DocList     `json:"match_events,omitempty"`
	MatchTransactions *DocList     `json:"match_transactions,omitempty"`
	TriggerConditions *DocList     `json:"trigger_conditions,omitempty"`
	Triggers          *StringList  `json:"triggers,omitempty"`

	// Validation outcome fields, written by the validate path only.
	Validated        *bool             `json:"-"`
	ValidationErrors *ValidationErrors `json:"-"`
	LastValidatedAt  *time.Time        `json:"-"`
}

// NetworkCreate is the write schema for creating a network
type NetworkCreate struct {
	Name               string      `json:"name"`
	Slug               string      `json:"slug"`
	NetworkType        NetworkType `json:"network_type"`
	ChainID            *int64      `json:"chain_id,omitempty"`
	NetworkPassphrase  *string     `json:"network_passphrase,omitempty"`
	BlockTimeMS        int64       `json:"block_time_ms"`
	RPCUrls            RPCUrlList  `json:"rpc_urls"`
	ConfirmationBlocks int64       `json:"confirmation_blocks"`
	CronSchedule       string      `json:"cron_schedule"`
	MaxPastBlocks      int64       `json:"max_past_blocks"`
	StoreBlocks        bool        `json:"store_blocks"`

	// ValidateRPCs runs the endpoint validator as an admission check; when
	// false the network is stored with validated=false.
	ValidateRPCs bool `json:"validate_rpcs"`
}

// NetworkUpdate is a partial patch; nil fields are left untouched
type NetworkUpdate struct {
	Name               *string     `json:"name,omitempty"`
	ChainID            *int64      `json:"chain_id,omitempty"`
	NetworkPassphrase  *string     `json:"network_passphrase,omitempty"`
	BlockTimeMS        *int64      `json:"block_time_ms,omitempty"`
	RPCUrls            *RPCUrlList `json:"rpc_urls,omitempty"`
	ConfirmationBlocks *int64      `json:"confirmation_blocks,omitempty"`
	CronSchedule       *string     `json:"cron_schedule,omitempty"`
	MaxPastBlocks      *int64      `json:"max_past_blocks,omitempty"`
	StoreBlocks        *bool       `json:"store_blocks,omitempty"`
	Active             *bool       `json:"active,omitempty"`

	Validated        *bool             `json:"-"`
	ValidationErrors *ValidationErrors `json:"-"`
	LastValidatedAt  *time.Time        `json:"-"`
}

// TriggerCreate is the write schema for creating a trigger; exactly one
// companion config must be set and must match TriggerType.
type TriggerCreate struct {
	TenantID    *uuid.UUID  `json:"tenant_id,omitempty"`
	Name        string      `json:"name"`
	Slug        string      `json:"slug"`
	TriggerType TriggerType `json:"trigger_type"`
	Description string      `json:"description"`

	Email   *EmailTriggerConfig   `json:"email,omitempty"`
	Webhook *WebhookTriggerConfig `json:"webhook,omitempty"`
}

// TriggerUpdate is a partial patch; nil fields are left untouched
type TriggerUpdate struct {
	Name        *string `json:"name,omitempty"`
	Slug        *string `json:"slug,omitempty"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"active,omitempty"`

	Email   *EmailTriggerConfig   `json:"email,omitempty"`
	Webhook *WebhookTriggerConfig `json:"webhook,omitempty"`

	Validated        *bool             `json:"-"`
	ValidationErrors *ValidationErrors `json:"-"`
	LastValidatedAt  *time.Time        `json:"-"`
}

// ValidationResult is the outcome of a configuration validation pass
type ValidationResult struct {
	IsValid  bool             `json:"is_valid"`
	Errors   ValidationErrors `json:"errors"`
	Warnings []string         `json:"warnings"`
}
