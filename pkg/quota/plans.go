package quota

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/blip0/blip0/pkg/types"
)

// PlanLimits are the caps granted by one subscription plan.
type PlanLimits struct {
	MaxMonitors             int     `yaml:"max_monitors"`
	MaxNetworks             int     `yaml:"max_networks"`
	MaxTriggers             int     `yaml:"max_triggers"`
	MaxAPICallsPerHour      int     `yaml:"max_api_calls_per_hour"`
	MaxStorageGB            float64 `yaml:"max_storage_gb"`
	MaxConcurrentOperations int     `yaml:"max_concurrent_operations"`
}

// defaultPlans is the compiled-in plan table. A YAML file loaded with
// LoadPlanFile overrides individual plans.
var defaultPlans = map[types.Plan]PlanLimits{
	types.PlanFree: {
		MaxMonitors:             5,
		MaxNetworks:             2,
		MaxTriggers:             5,
		MaxAPICallsPerHour:      1000,
		MaxStorageGB:            1,
		MaxConcurrentOperations: 2,
	},
	types.PlanStarter: {
		MaxMonitors:             25,
		MaxNetworks:             5,
		MaxTriggers:             25,
		MaxAPICallsPerHour:      10000,
		MaxStorageGB:            10,
		MaxConcurrentOperations: 5,
	},
	types.PlanPro: {
		MaxMonitors:             100,
		MaxNetworks:             20,
		MaxTriggers:             100,
		MaxAPICallsPerHour:      100000,
		MaxStorageGB:            100,
		MaxConcurrentOperations: 20,
	},
	types.PlanEnterprise: {
		MaxMonitors:             1000,
		MaxNetworks:             100,
		MaxTriggers:             1000,
		MaxAPICallsPerHour:      1000000,
		MaxStorageGB:            1000,
		MaxConcurrentOperations: 100,
	},
}

// LoadPlanFile replaces plan entries from a YAML file keyed by plan name.
func (e *Engine) LoadPlanFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read plan file: %w", err)
	}
	overrides := map[types.Plan]PlanLimits{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse plan file: %w", err)
	}
	for plan, limits := range overrides {
		e.plans[plan] = limits
	}
	return nil
}

// Limits returns the caps for a plan; unknown plans fall back to free.
func (e *Engine) Limits(plan types.Plan) PlanLimits {
	if l, ok := e.plans[plan]; ok {
		return l
	}
	return e.plans[types.PlanFree]
}

// NewTenantLimits builds a fresh limits row for a tenant on the plan.
func (e *Engine) NewTenantLimits(plan types.Plan) *types.TenantLimits {
	l := e.Limits(plan)
	return &types.TenantLimits{
		MaxMonitors:             l.MaxMonitors,
		MaxNetworks:             l.MaxNetworks,
		MaxTriggers:             l.MaxTriggers,
		MaxAPICallsPerHour:      l.MaxAPICallsPerHour,
		MaxStorageGB:            decimal.NewFromFloat(l.MaxStorageGB),
		MaxConcurrentOperations: l.MaxConcurrentOperations,
		CurrentStorageGB:        decimal.Zero,
	}
}
