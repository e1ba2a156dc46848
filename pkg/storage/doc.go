/*
Package storage provides PostgreSQL-backed persistence for the blip0
control plane.

The package implements the Store interface over sqlx, one file per entity
family: tenants and their limits, networks, monitors, triggers with their
polymorphic companion configs, and the audit entities (block states,
missed blocks, monitor matches, trigger executions).

List queries share a small filter grammar compiled in filters.go:
temporal ranges (_after/_before), numeric ranges (_gte/_lte), membership
(_in), null probes (has_X), exact match for slugs, and case-insensitive
substring match for free-text fields. Sort fields are whitelisted per
entity; pagination is capped at 100 rows per page.

Mutations that participate in quota accounting (monitor, network, and
trigger create and delete) expose Tx variants so the quota engine can run
the entity mutation and the counter update inside one transaction holding
the tenant_limits row lock.

Unique-constraint violations normalize to Duplicate errors naming the
offending field; missing rows normalize to NotFound; connection-class
failures to Transient. The schema, including the named constraints the
optimistic create paths rely on (unique_block_state, unique_missed_block,
the tenant-scoped slug keys), lives in migrations/ and is embedded for
the migration tool.
*/
package storage
