/*
Package types defines the core data model for the blip0 control plane.

The model covers three groups of entities:

  - Tenancy: Tenant and its 1:1 TenantLimits row holding plan caps and
    live resource counters.
  - Configuration: Network (EVM or Stellar chain endpoints and cadence),
    Monitor (match rules over networks), and Trigger with its polymorphic
    companion config (email or webhook).
  - Audit: BlockState, MissedBlock, MonitorMatch, and TriggerExecution,
    recorded by downstream workers through the audit services.

Open-ended documents (match clauses, addresses, settings, validation
errors) are typed JSON blobs with database/sql round-tripping, so the
relational store keeps them as JSONB while the service boundary validates
their shape.

Credential references (SecretValue) are opaque: the control plane records
the (source, value) pair and never resolves it.
*/
package types
