/*
Package cache provides the typed Redis client shared by all control-plane
components.

The client wraps a single process-wide connection pool and exposes the
operations the configuration and audit services need: JSON get/set with
TTL and NX/XX flags, sets and lists, cursor-scanned pattern delete and
listing, transactional pipelines, and pub/sub.

Failure model: operations either succeed, report ErrNotFound, or fail with
a transport error that is logged and returned unchanged. Services on the
write path log and swallow those errors; the read path self-heals because
a miss always falls back to the database and rewrites the cache.

The key namespace and TTLs live in keys.go; every key is tenant-scoped
except the platform network keys read by downstream workers.
*/
package cache
