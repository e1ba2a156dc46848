/*
Package service implements the control-plane operations over the storage,
cache, quota, validation, and pub/sub backends.

The configuration services (monitors, networks, triggers, tenants) follow
one write discipline: validate the input, commit to the database under
the tenant's quota where the operation is counted, then refresh the cache
and publish a change event. Cache and pub/sub failures after commit are
logged and swallowed; the database holds the truth and workers reconcile
through read-through caching.

The audit services (block states, missed blocks, matches, executions)
record worker activity. They carry no cache and publish no events; their
readers query the database directly.
*/
package service
