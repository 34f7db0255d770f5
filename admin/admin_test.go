package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oracle/coherence-js-client-sub001/cfg"
	"github.com/oracle/coherence-js-client-sub001/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	stats map[string]events.Stats
}

func (f *fakeSource) Format() string { return "json" }

func (f *fakeSource) Stats() map[string]events.Stats { return f.stats }

func newTestMux(t *testing.T, src StatusSource) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	RegisterRoutes(mux, NewAdminHandlers(src))
	return mux
}

func get(t *testing.T, mux http.Handler, path string, header ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var body map[string]interface{}
	if rec.Code != http.StatusMovedPermanently {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func twoMaps() *fakeSource {
	return &fakeSource{stats: map[string]events.Stats{
		"orders": {Connection: events.StateOpen, KeyGroups: 2, FilterGroups: 1, Listeners: 4},
		"users":  {Connection: events.StateUnconnected, PendingRequests: 1},
	}}
}

func TestStatus(t *testing.T) {
	rec, body := get(t, newTestMux(t, twoMaps()), "/admin/status")
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "json", data["format"])
	assert.EqualValues(t, 2, data["maps"])
	assert.EqualValues(t, 1, data["open_streams"])
	assert.EqualValues(t, 2, data["key_groups"])
	assert.EqualValues(t, 4, data["listeners"])
	assert.EqualValues(t, 1, data["pending_requests"])
}

func TestListMaps(t *testing.T) {
	rec, body := get(t, newTestMux(t, twoMaps()), "/admin/maps/")
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].([]interface{})
	require.Len(t, data, 2)
	assert.Equal(t, "orders", data[0].(map[string]interface{})["name"])
	assert.Equal(t, "open", data[0].(map[string]interface{})["connection"])
	assert.Equal(t, "users", data[1].(map[string]interface{})["name"])

	_, body = get(t, newTestMux(t, twoMaps()), "/admin/maps/?limit=1")
	assert.Len(t, body["data"].([]interface{}), 1)

	rec, _ = get(t, newTestMux(t, twoMaps()), "/admin/maps/?limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapByName(t *testing.T) {
	mux := newTestMux(t, twoMaps())

	rec, body := get(t, mux, "/admin/maps/orders")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["data"].(map[string]interface{})["filter_groups"])

	rec, body = get(t, mux, "/admin/maps/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "missing")
}

func TestHealth(t *testing.T) {
	src := twoMaps()
	mux := newTestMux(t, src)

	rec, _ := get(t, mux, "/admin/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	src.stats["users"] = events.Stats{Connection: events.StateFailed}
	rec, body := get(t, mux, "/admin/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "degraded", data["status"])
	assert.Equal(t, []interface{}{"users"}, data["failed"])
}

func TestAuthMiddleware(t *testing.T) {
	cfg.Config.Admin.Secret = "s3cret"
	t.Cleanup(func() { cfg.Config.Admin.Secret = "" })
	mux := newTestMux(t, twoMaps())

	rec, _ := get(t, mux, "/admin/status")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = get(t, mux, "/admin/status", "Authorization", "Basic s3cret")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = get(t, mux, "/admin/status", "X-Admin-Secret", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = get(t, mux, "/admin/status", "X-Admin-Secret", "s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = get(t, mux, "/admin/status", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRedirect(t *testing.T) {
	rec, _ := get(t, newTestMux(t, twoMaps()), "/admin")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
}
