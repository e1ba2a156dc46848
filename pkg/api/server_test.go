package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blip0/blip0/pkg/cache"
	"github.com/blip0/blip0/pkg/config"
	"github.com/blip0/blip0/pkg/pubsub"
	"github.com/blip0/blip0/pkg/quota"
	"github.com/blip0/blip0/pkg/service"
	"github.com/blip0/blip0/pkg/storage"
	"github.com/blip0/blip0/pkg/types"
	"github.com/blip0/blip0/pkg/validator"
)

type apiFixture struct {
	server *Server
	mock   sqlmock.Sqlmock
	redis  *miniredis.Miniredis
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := storage.NewPostgresFromDB(sqlx.NewDb(db, "postgres"))
	mr := miniredis.RunT(t)
	c := cache.NewFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })

	q := quota.NewEngine(store)
	pub := pubsub.NewPublisher(c)
	v := validator.NewWithClient(http.DefaultClient, time.Second)

	server := New(config.ServerConfig{ListenAddr: ":0", ShutdownTimeout: time.Second}, Services{
		Tenants:     service.NewTenantService(store, q),
		Monitors:    service.NewMonitorService(store, q, c, pub),
		Networks:    service.NewNetworkService(store, q, c, v, pub),
		Triggers:    service.NewTriggerService(store, q, c, pub),
		BlockStates: service.NewBlockStateService(store),
		Missed:      service.NewMissedBlockService(store),
		Matches:     service.NewMatchService(store),
		Executions:  service.NewExecutionService(store),
	})
	return &apiFixture{server: server, mock: mock, redis: mr}
}

func (f *apiFixture) do(t *testing.T, method, path, tenant, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if tenant != "" {
		req.Header.Set(headerTenantID, tenant)
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTenantHeaderRequired(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/v1/monitors", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/v1/monitors", "not-a-uuid", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminTokenRequired(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodPost, "/admin/networks", "", `{"name":"x"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBodyTenantMismatchRejected(t *testing.T) {
	f := newAPIFixture(t)
	caller := uuid.New()
	other := uuid.New()

	body, err := json.Marshal(map[string]interface{}{
		"tenant_id": other.String(),
		"name":      "sneaky",
		"slug":      "sneaky",
	})
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/v1/monitors", caller.String(), string(body))
	assert.Equal(t, http.StatusForbidden, w.Code)
	// Nothing reached the database.
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetMonitorMalformedID(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/v1/monitors/zzz", uuid.NewString(), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMonitorServedFromCache(t *testing.T) {
	f := newAPIFixture(t)
	tenantID, id := uuid.New(), uuid.New()

	cached, err := json.Marshal(types.MonitorWithTriggers{
		Monitor: types.Monitor{ID: id, TenantID: tenantID, Name: "cached", Slug: "cached"},
	})
	require.NoError(t, err)
	require.NoError(t, f.redis.Set(cache.MonitorKey(tenantID, id), string(cached)))

	w := f.do(t, http.MethodGet, "/v1/monitors/"+id.String(), tenantID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)

	var got types.Monitor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "cached", got.Name)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetMonitorNotFoundMapsTo404(t *testing.T) {
	f := newAPIFixture(t)
	tenantID, id := uuid.New(), uuid.New()

	f.mock.ExpectQuery(`SELECT \* FROM monitors WHERE id = \$1 AND tenant_id = \$2`).
		WithArgs(id, tenantID).
		WillReturnError(sql.ErrNoRows)

	w := f.do(t, http.MethodGet, "/v1/monitors/"+id.String(), tenantID.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["kind"])
}

func TestCreateMonitorDuplicateSlugMapsTo409(t *testing.T) {
	f := newAPIFixture(t)
	tenantID := uuid.New()

	f.mock.ExpectQuery(`SELECT \* FROM tenants WHERE id`).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "slug", "plan", "status", "settings", "created_at", "updated_at",
		}).AddRow(tenantID, "Acme", "acme", "pro", "active", []byte(`{}`), time.Now(), time.Now()))
	f.mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(tenantID, "taken").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	w := f.do(t, http.MethodPost, "/v1/monitors", tenantID.String(),
		`{"name":"Taken","slug":"taken"}`)
	require.Equal(t, http.StatusConflict, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "duplicate", body["kind"])
	assert.Equal(t, "slug", body["field"])
}

func TestUpdateExecutionStatusRejectsUnknownStatus(t *testing.T) {
	f := newAPIFixture(t)
	tenantID, execID := uuid.New(), uuid.New()

	f.mock.ExpectQuery(`SELECT \* FROM trigger_executions WHERE id = \$1 AND tenant_id = \$2`).
		WithArgs(execID, tenantID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "trigger_id", "monitor_match_id", "execution_type",
			"execution_data", "status", "started_at", "completed_at", "duration_ms",
			"retry_count", "error_message", "created_at",
		}).AddRow(execID, tenantID, uuid.New(), nil, "webhook",
			[]byte(`{}`), "pending", nil, nil, nil, 0, nil, time.Now()))

	w := f.do(t, http.MethodPut, "/v1/executions/"+execID.String()+"/status",
		tenantID.String(), `{"status":"exploded"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetryMissedBlocksScopedToCaller(t *testing.T) {
	f := newAPIFixture(t)
	tenantID, rowID := uuid.New(), uuid.New()

	// The bulk reset carries the caller's tenant in its predicate.
	f.mock.ExpectExec(`UPDATE missed_blocks SET retry_count = 0`).
		WithArgs("Marked for retry", sqlmock.AnyArg(), tenantID, sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := f.do(t, http.MethodPost, "/v1/missed-blocks/retry", tenantID.String(),
		`{"ids":["`+rowID.String()+`"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Zero(t, body["reset"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestActiveMonitorsEmptySet(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, http.MethodGet, "/v1/monitors/active", uuid.NewString(), "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		MonitorIDs []string `json:"monitor_ids"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotNil(t, body.MonitorIDs)
	assert.Empty(t, body.MonitorIDs)
}

func TestRequestIDPropagates(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "req-42")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(headerRequestID))

	// A missing id gets generated.
	w2 := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.NotEmpty(t, w2.Header().Get(headerRequestID))
}
