package transactions

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwchen/keeper/internal/database"
	"github.com/jwchen/keeper/internal/modules/importer"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	db, err := database.NewInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := NewRepository(db.Conn(), zerolog.Nop())
	require.NoError(t, err)

	return NewHandler(repo, importer.New(zerolog.Nop()), zerolog.Nop())
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		h.Routes(r)
	})
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func buyRequest(symbol string, qty, price float64, date string) map[string]interface{} {
	return map[string]interface{}{
		"symbol":         symbol,
		"type":           "BUY",
		"asset_type":     "stock",
		"quantity":       qty,
		"price_per_unit": price,
		"date":           date,
	}
}

func TestHandleCreateAndList(t *testing.T) {
	router := newTestRouter(newTestHandler(t))

	rec := postJSON(t, router, "/api/transactions", buyRequest("aapl", 10, 150.5, "2024-01-15"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created["id"])
	assert.Equal(t, "AAPL", created["symbol"], "symbol is normalized")
	assert.InDelta(t, 1505.0, created["total_amount"].(float64), 1e-9)

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var listed []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "2024-01-15", listed[0]["date"])
}

func TestHandleCreateRejectsOversell(t *testing.T) {
	router := newTestRouter(newTestHandler(t))

	rec := postJSON(t, router, "/api/transactions", buyRequest("AAPL", 5, 100, "2024-01-01"))
	require.Equal(t, http.StatusCreated, rec.Code)

	sellReq := buyRequest("AAPL", 10, 120, "2024-02-01")
	sellReq["type"] = "SELL"
	rec = postJSON(t, router, "/api/transactions", sellReq)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient holdings")

	// Nothing was written for the rejected sell.
	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, req)
	var listed []map[string]interface{}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)
}

func TestHandleCreateRejectsBadInput(t *testing.T) {
	router := newTestRouter(newTestHandler(t))

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"bad date", buyRequest("AAPL", 5, 100, "01/15/2024")},
		{"zero quantity", buyRequest("AAPL", 0, 100, "2024-01-01")},
		{"bad asset type", func() map[string]interface{} {
			b := buyRequest("AAPL", 5, 100, "2024-01-01")
			b["asset_type"] = "bond"
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, router, "/api/transactions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleDelete(t *testing.T) {
	router := newTestRouter(newTestHandler(t))

	rec := postJSON(t, router, "/api/transactions", buyRequest("AAPL", 5, 100, "2024-01-01"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["id"].(string)

	req := httptest.NewRequest(http.MethodDelete, "/api/transactions/"+id, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/transactions/"+id, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleImportCSV(t *testing.T) {
	router := newTestRouter(newTestHandler(t))

	csv := `Symbol,Quantity,Price,Action,Description,TradeDate,SettledDate,Interest,Amount,Commission,Fee,CUSIP,RecordType
AAPL,10,150.00,BUY,APPLE INC,2024-01-15,2024-01-17,0,-1500.00,0,0,037833100,Trade
AAPL,-20,180.00,SELL,APPLE INC,2024-03-01,2024-03-03,0,3600.00,0,0,037833100,Trade
`

	req := httptest.NewRequest(http.MethodPost, "/api/import/csv", strings.NewReader(csv))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, float64(1), result["imported"], "the oversell row is skipped")
	assert.Len(t, result["skipped"], 1)
}

func TestHandleImportPreviewWritesNothing(t *testing.T) {
	router := newTestRouter(newTestHandler(t))

	csv := `Symbol,Quantity,Price,Action,Description,TradeDate,SettledDate,Interest,Amount,Commission,Fee,CUSIP,RecordType
AAPL,10,150.00,BUY,APPLE INC,2024-01-15,2024-01-17,0,-1500.00,0,0,037833100,Trade
`

	req := httptest.NewRequest(http.MethodPost, "/api/import/preview", strings.NewReader(csv))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, float64(1), result["count"])

	listReq := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	var listed []map[string]interface{}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listed))
	assert.Empty(t, listed)
}
