/*
Package api serves the control-plane REST surface over gin.

Tenant-facing routes live under /v1 and require an X-Tenant-ID header;
every handler scopes its queries to that tenant, so cross-tenant reads
are structurally impossible. Platform administration (network and tenant
management) lives under /admin behind the admin token header. Worker
reporting endpoints (block states, missed blocks, matches, executions)
share the /v1 tenant scope.

Errors cross the boundary as the classified taxonomy from pkg/apperr;
the handlers translate kinds to status codes and carry field-level
validation details into the response body.
*/
package api
