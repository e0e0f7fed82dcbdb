package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuota struct {
	inFlight map[string]int
}

func (f *fakeQuota) InFlight(key string) int {
	return f.inFlight[key]
}

func TestHandleSystemStatus(t *testing.T) {
	h := NewSystemHandlers(zerolog.Nop(), t.TempDir(), nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	rec := httptest.NewRecorder()
	h.HandleSystemStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, 0.0)
	assert.GreaterOrEqual(t, resp.RAMPercent, 0.0)
	assert.LessOrEqual(t, resp.RAMPercent, 100.0)
	assert.Nil(t, resp.SourceCalls, "no quota wired, counts omitted")
}

func TestHandleSystemStatusReportsSourceCalls(t *testing.T) {
	quota := &fakeQuota{inFlight: map[string]int{"yahoo": 3, "binance": 0}}
	h := NewSystemHandlers(zerolog.Nop(), t.TempDir(), nil, nil, quota, []string{"yahoo", "binance"})

	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	rec := httptest.NewRecorder()
	h.HandleSystemStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, map[string]int{"yahoo": 3, "binance": 0}, resp.SourceCalls)
}

func TestHandleDatabaseStatsWithoutDatabases(t *testing.T) {
	h := NewSystemHandlers(zerolog.Nop(), t.TempDir(), nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/system/databases", nil)
	rec := httptest.NewRecorder()
	h.HandleDatabaseStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp DatabaseStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.LedgerPath)
	assert.Zero(t, resp.LedgerSizeMB)
}
