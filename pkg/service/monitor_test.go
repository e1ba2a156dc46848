package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blip0/blip0/pkg/apperr"
	"github.com/blip0/blip0/pkg/cache"
	"github.com/blip0/blip0/pkg/pubsub"
	"github.com/blip0/blip0/pkg/quota"
	"github.com/blip0/blip0/pkg/storage"
	"github.com/blip0/blip0/pkg/types"
)

type monitorFixture struct {
	svc   *MonitorService
	mock  sqlmock.Sqlmock
	redis *miniredis.Miniredis
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := storage.NewPostgresFromDB(sqlx.NewDb(db, "postgres"))

	mr := miniredis.RunT(t)
	c := cache.NewFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })

	return &monitorFixture{
		svc:   NewMonitorService(store, quota.NewEngine(store), c, pubsub.NewPublisher(c)),
		mock:  mock,
		redis: mr,
	}
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

var monitorColumns = []string{
	"id", "tenant_id", "name", "slug", "description", "paused", "active",
	"networks", "addresses", "match_functions", "match_events",
	"match_transactions", "trigger_conditions", "triggers",
	"validated", "validation_errors", "last_validated_at",
	"created_at", "updated_at", "deleted_at",
}

func monitorRow(m *types.Monitor) *sqlmock.Rows {
	networks, _ := m.Networks.Value()
	triggers, _ := m.Triggers.Value()
	now := time.Now().UTC()
	return sqlmock.NewRows(monitorColumns).AddRow(
		m.ID, m.TenantID, m.Name, m.Slug, m.Description, m.Paused, m.Active,
		networks, []byte(`[]`), []byte(`[]`), []byte(`[]`),
		[]byte(`[]`), []byte(`[]`), triggers,
		m.Validated, []byte(`{}`), m.LastValidatedAt,
		now, now, nil,
	)
}

func (f *monitorFixture) expectActiveTenant(tenantID uuid.UUID) {
	f.mock.ExpectQuery(`SELECT \* FROM tenants WHERE id`).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "slug", "plan", "status", "settings", "created_at", "updated_at",
		}).AddRow(tenantID, "Acme", "acme", "pro", "active", []byte(`{}`), time.Now(), time.Now()))
}

func (f *monitorFixture) expectLimitsForUpdate(tenantID uuid.UUID, currentMonitors, maxMonitors int) {
	f.mock.ExpectQuery(`SELECT \* FROM tenant_limits WHERE tenant_id = \$1 FOR UPDATE`).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "max_monitors", "max_networks", "max_triggers",
			"max_api_calls_per_hour", "max_storage_gb", "max_concurrent_operations",
			"current_monitors", "current_networks", "current_triggers", "current_storage_gb",
			"created_at", "updated_at",
		}).AddRow(uuid.New(), tenantID, maxMonitors, 20, 100, 100000, "100.00", 20,
			currentMonitors, 0, 0, "0.00", time.Now(), time.Now()))
}

func TestMonitorCreateQuotaExceeded(t *testing.T) {
	f := newMonitorFixture(t)
	tenantID := uuid.New()

	f.expectActiveTenant(tenantID)
	f.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(tenantID, "usdc-transfers").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectBegin()
	f.expectLimitsForUpdate(tenantID, 100, 100)
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), tenantID, &types.MonitorCreate{
		Name: "USDC transfers",
		Slug: "usdc-transfers",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindQuotaExceeded))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMonitorCreateSlugCollision(t *testing.T) {
	f := newMonitorFixture(t)
	tenantID := uuid.New()

	f.expectActiveTenant(tenantID)
	f.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(tenantID, "usdc-transfers").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := f.svc.Create(context.Background(), tenantID, &types.MonitorCreate{
		Name: "USDC transfers",
		Slug: "usdc-transfers",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindDuplicate))
}

func TestMonitorCreateRejectsBadSlug(t *testing.T) {
	f := newMonitorFixture(t)
	tenantID := uuid.New()
	f.expectActiveTenant(tenantID)

	_, err := f.svc.Create(context.Background(), tenantID, &types.MonitorCreate{
		Name: "x",
		Slug: "Not_A_Slug",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestMonitorCreateSuspendedTenant(t *testing.T) {
	f := newMonitorFixture(t)
	tenantID := uuid.New()

	f.mock.ExpectQuery(`SELECT \* FROM tenants WHERE id`).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "slug", "plan", "status", "settings", "created_at", "updated_at",
		}).AddRow(tenantID, "Acme", "acme", "pro", "suspended", []byte(`{}`), time.Now(), time.Now()))

	_, err := f.svc.Create(context.Background(), tenantID, &types.MonitorCreate{
		Name: "x", Slug: "x",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestMonitorCreateHappyPath(t *testing.T) {
	f := newMonitorFixture(t)
	tenantID := uuid.New()

	f.expectActiveTenant(tenantID)
	f.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(tenantID, "usdc-transfers").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	f.mock.ExpectBegin()
	f.expectLimitsForUpdate(tenantID, 3, 100)
	f.mock.ExpectExec(`INSERT INTO monitors`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(`UPDATE tenant_limits SET current_monitors`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	m, err := f.svc.Create(context.Background(), tenantID, &types.MonitorCreate{
		Name:     "USDC transfers",
		Slug:     "usdc-transfers",
		Networks: types.StringList{"ethereum-mainnet"},
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, m.ID)
	assert.True(t, m.Active)
	assert.False(t, m.Paused)
	assert.False(t, m.Validated)

	// The denormalized view landed in the cache.
	assert.True(t, f.redis.Exists(cache.MonitorKey(tenantID, m.ID)))
	// Unvalidated monitors never enter the active set.
	ids, err := f.svc.GetActiveIDs(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMonitorGetWithTriggersCacheHit(t *testing.T) {
	f := newMonitorFixture(t)
	tenantID, id := uuid.New(), uuid.New()

	seeded := types.MonitorWithTriggers{
		Monitor: types.Monitor{ID: id, TenantID: tenantID, Name: "cached", Slug: "cached"},
	}
	require.NoError(t, f.redis.Set(cache.MonitorKey(tenantID, id), mustJSON(t, seeded)))

	// No database expectations: a hit never touches the store.
	got, err := f.svc.GetWithTriggers(context.Background(), tenantID, id)
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Name)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMonitorGetWithTriggersCacheMiss(t *testing.T) {
	f := newMonitorFixture(t)
	tenantID, id := uuid.New(), uuid.New()

	m := &types.Monitor{
		ID: id, TenantID: tenantID, Name: "fresh", Slug: "fresh",
		Triggers: types.StringList{"gone-trigger"},
	}
	f.mock.ExpectQuery(`SELECT \* FROM monitors WHERE id = \$1 AND tenant_id = \$2`).
		WithArgs(id, tenantID).
		WillReturnRows(monitorRow(m))
	// The referenced trigger no longer exists; the view skips it.
	f.mock.ExpectQuery(`SELECT \* FROM triggers WHERE tenant_id = \$1 AND slug = \$2`).
		WithArgs(tenantID, "gone-trigger").
		WillReturnError(sql.ErrNoRows)

	got, err := f.svc.GetWithTriggers(context.Background(), tenantID, id)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Name)
	assert.Empty(t, got.TriggerRecords)
	assert.True(t, f.redis.Exists(cache.MonitorKey(tenantID, id)))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMonitorPauseLeavesActiveSet(t *testing.T) {
	f := newMonitorFixture(t)
	tenantID, id := uuid.New(), uuid.New()

	activeKey := cache.ActiveMonitorsKey(tenantID)
	_, err := f.redis.SAdd(activeKey, id.String())
	require.NoError(t, err)

	f.expectActiveTenant(tenantID)
	now := time.Now().UTC()
	paused := &types.Monitor{
		ID: id, TenantID: tenantID, Name: "m", Slug: "m",
		Paused: true, Active: false, Validated: true, LastValidatedAt: &now,
	}
	f.mock.ExpectQuery(`UPDATE monitors SET .+ RETURNING \*`).
		WillReturnRows(monitorRow(paused))

	got, err := f.svc.Pause(context.Background(), tenantID, id)
	require.NoError(t, err)
	assert.True(t, got.Paused)
	assert.False(t, got.Active)

	// Removing the only member drops the whole key.
	assert.False(t, f.redis.Exists(activeKey))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMonitorResumeRejoinsActiveSet(t *testing.T) {
	f := newMonitorFixture(t)
	tenantID, id := uuid.New(), uuid.New()

	f.expectActiveTenant(tenantID)
	now := time.Now().UTC()
	resumed := &types.Monitor{
		ID: id, TenantID: tenantID, Name: "m", Slug: "m",
		Paused: false, Active: true, Validated: true, LastValidatedAt: &now,
	}
	f.mock.ExpectQuery(`UPDATE monitors SET .+ RETURNING \*`).
		WillReturnRows(monitorRow(resumed))

	_, err := f.svc.Resume(context.Background(), tenantID, id)
	require.NoError(t, err)

	ids, err := f.svc.GetActiveIDs(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Contains(t, ids, id.String())
}

func TestMonitorValidateRecordsOutcome(t *testing.T) {
	f := newMonitorFixture(t)
	tenantID, id := uuid.New(), uuid.New()

	// No networks and a bare address: two errors, plus both warnings.
	broken := &types.Monitor{ID: id, TenantID: tenantID, Name: "m", Slug: "m", Active: true}
	f.mock.ExpectQuery(`SELECT \* FROM monitors WHERE id = \$1 AND tenant_id = \$2`).
		WithArgs(id, tenantID).
		WillReturnRows(monitorRow(broken))
	f.mock.ExpectQuery(`UPDATE monitors SET .+ RETURNING \*`).
		WillReturnRows(monitorRow(broken))

	result, err := f.svc.Validate(context.Background(), tenantID, id, false)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "networks")
	assert.Len(t, result.Warnings, 2)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMonitorValidateChecksTriggerReferences(t *testing.T) {
	f := newMonitorFixture(t)
	tenantID, id := uuid.New(), uuid.New()

	m := &types.Monitor{
		ID: id, TenantID: tenantID, Name: "m", Slug: "m", Active: true,
		Networks: types.StringList{"ethereum-mainnet"},
		Triggers: types.StringList{"ghost"},
	}
	f.mock.ExpectQuery(`SELECT \* FROM monitors WHERE id = \$1 AND tenant_id = \$2`).
		WithArgs(id, tenantID).
		WillReturnRows(monitorRow(m))
	f.mock.ExpectQuery(`SELECT \* FROM triggers WHERE tenant_id = \$1 AND slug = \$2`).
		WithArgs(tenantID, "ghost").
		WillReturnError(sql.ErrNoRows)
	f.mock.ExpectQuery(`UPDATE monitors SET .+ RETURNING \*`).
		WillReturnRows(monitorRow(m))
	// Rewriting the cached view resolves the slug once more.
	f.mock.ExpectQuery(`SELECT \* FROM triggers WHERE tenant_id = \$1 AND slug = \$2`).
		WithArgs(tenantID, "ghost").
		WillReturnError(sql.ErrNoRows)

	result, err := f.svc.Validate(context.Background(), tenantID, id, true)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "triggers")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMonitorRefreshAllRebuildsCache(t *testing.T) {
	f := newMonitorFixture(t)
	tenantID := uuid.New()

	// Stale entries that the refresh must discard.
	staleID := uuid.New()
	require.NoError(t, f.redis.Set(cache.MonitorKey(tenantID, staleID), `{"stale":true}`))
	_, err := f.redis.SAdd(cache.ActiveMonitorsKey(tenantID), staleID.String())
	require.NoError(t, err)

	now := time.Now().UTC()
	runnable := &types.Monitor{
		ID: uuid.New(), TenantID: tenantID, Name: "live", Slug: "live",
		Active: true, Validated: true, LastValidatedAt: &now,
	}
	dormant := &types.Monitor{
		ID: uuid.New(), TenantID: tenantID, Name: "off", Slug: "off",
		Paused: true, Validated: true, LastValidatedAt: &now,
	}
	rows := monitorRow(runnable)
	networks, _ := dormant.Networks.Value()
	triggers, _ := dormant.Triggers.Value()
	rows.AddRow(
		dormant.ID, dormant.TenantID, dormant.Name, dormant.Slug, dormant.Description,
		dormant.Paused, dormant.Active, networks, []byte(`[]`), []byte(`[]`), []byte(`[]`),
		[]byte(`[]`), []byte(`[]`), triggers, dormant.Validated, []byte(`{}`),
		dormant.LastValidatedAt, now, now, nil,
	)
	f.mock.ExpectQuery(`SELECT \* FROM monitors WHERE tenant_id = \$1 AND deleted_at IS NULL`).
		WithArgs(tenantID).
		WillReturnRows(rows)

	n, err := f.svc.RefreshAll(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.False(t, f.redis.Exists(cache.MonitorKey(tenantID, staleID)))
	assert.True(t, f.redis.Exists(cache.MonitorKey(tenantID, runnable.ID)))
	assert.True(t, f.redis.Exists(cache.MonitorKey(tenantID, dormant.ID)))

	ids, err := f.svc.GetActiveIDs(context.Background(), tenantID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{runnable.ID.String()}, ids)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
