package cache

import (
	"fmt"

	"github.com/google/uuid"
	"time"
)

// Cache TTLs. Active-set TTL is refreshed on every add so a tenant with
// ongoing writes never loses the set.
const (
	MonitorTTL   = 30 * time.Minute
	TriggerTTL   = time.Hour
	NetworkTTL   = time.Hour
	ActiveSetTTL = time.Hour
)

// MonitorKey is the entity cache key for a tenant's monitor.
func MonitorKey(tenantID, monitorID uuid.UUID) string {
	return fmt.Sprintf("tenant:%s:monitor:%s", tenantID, monitorID)
}

// MonitorPattern matches every monitor key of a tenant.
func MonitorPattern(tenantID uuid.UUID) string {
	return fmt.Sprintf("tenant:%s:monitor:*", tenantID)
}

// ActiveMonitorsKey is the set of runnable monitor ids for a tenant.
func ActiveMonitorsKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("tenant:%s:monitors:active", tenantID)
}

// TriggerKey is the entity cache key for a tenant's trigger.
func TriggerKey(tenantID, triggerID uuid.UUID) string {
	return fmt.Sprintf("tenant:%s:trigger:%s", tenantID, triggerID)
}

// NetworkSlugKey is the worker-facing cache key for a platform network.
func NetworkSlugKey(slug string) string {
	return fmt.Sprintf("platform:networks:%s", slug)
}

// NetworkIDKey is the admin-facing cache key for a platform network.
func NetworkIDKey(id uuid.UUID) string {
	return fmt.Sprintf("platform:network:id:%s", id)
}
