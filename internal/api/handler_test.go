package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alertv1 "github.com/serkee5559/coin-portal/internal/domain/alert/v1"
	marketv1 "github.com/serkee5559/coin-portal/internal/domain/market/v1"
	"github.com/serkee5559/coin-portal/internal/infrastructure/memstore"
	alertuc "github.com/serkee5559/coin-portal/internal/usecase/alert"
	"github.com/serkee5559/coin-portal/internal/usecase/broadcast"
	"github.com/serkee5559/coin-portal/internal/usecase/indicator"
	"github.com/serkee5559/coin-portal/internal/usecase/store"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	handler *Handler
	router  http.Handler
	store   *store.Store
	engine  *indicator.Engine
	alerts  *alertuc.Usecase
	bcast   *broadcast.Broadcaster
}

// newTestAPI wires the full in-memory pipeline behind the router.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log, err := logger.NewLogger()
	require.NoError(t, err)

	st := store.NewStore(log, time.UTC)
	engine := indicator.NewEngine(log, 0)
	bcast := broadcast.NewBroadcaster(st, log, time.Second, 0, 0)
	alerts := alertuc.NewUsecase(memstore.NewRuleRepository(), memstore.NewEventRepository(0), bcast, log, time.Minute)

	st.AddObserver(engine.OnTick)
	st.AddObserver(alerts.OnTick)
	st.AddObserver(bcast.Publish)

	handler := NewHandler(st, engine, alerts, bcast, log)
	return &testAPI{
		handler: handler,
		router:  handler.InitRoutes(),
		store:   st,
		engine:  engine,
		alerts:  alerts,
		bcast:   bcast,
	}
}

func (a *testAPI) applyTick(t *testing.T, symbol string, price float64, ts time.Time) {
	t.Helper()
	_, err := a.store.ApplyTick(context.Background(), marketv1.Tick{Symbol: symbol, Price: price, Timestamp: ts})
	require.NoError(t, err)
}

func (a *testAPI) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Health(t *testing.T) {
	a := newTestAPI(t)
	rec := a.request(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["feed_connected"])
}

func TestHandler_MarketSummary(t *testing.T) {
	a := newTestAPI(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a.applyTick(t, "KRW-BTC", 92000000, base)
	a.applyTick(t, "KRW-ETH", 2000000, base)
	a.store.SetConnected(true)

	rec := a.request(t, http.MethodGet, "/api/v1/market-summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		FeedConnected bool                 `json:"feed_connected"`
		Data          []marketv1.Instrument `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.FeedConnected)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "KRW-BTC", body.Data[0].Symbol)
}

func TestHandler_MarketDetail(t *testing.T) {
	a := newTestAPI(t)
	a.applyTick(t, "KRW-BTC", 92000000, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	rec := a.request(t, http.MethodGet, "/api/v1/market-summary/KRW-BTC", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var inst marketv1.Instrument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inst))
	assert.Equal(t, 92000000.0, inst.Price)

	rec = a.request(t, http.MethodGet, "/api/v1/market-summary/KRW-DOGE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Indicators(t *testing.T) {
	a := newTestAPI(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 9; i++ {
		a.applyTick(t, "KRW-BTC", 92000000+float64(i)*1000, base.Add(time.Duration(i)*time.Minute))
	}

	rec := a.request(t, http.MethodGet, "/api/v1/indicators/KRW-BTC?interval=1m", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap marketv1.IndicatorSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "KRW-BTC", snap.Symbol)
	require.NotNil(t, snap.MA7)
	assert.Nil(t, snap.RSI)
	assert.Equal(t, "Hold", snap.Recommendation)

	rec = a.request(t, http.MethodGet, "/api/v1/indicators/KRW-BTC?interval=2m", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.request(t, http.MethodGet, "/api/v1/indicators/KRW-DOGE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Candles(t *testing.T) {
	a := newTestAPI(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		a.applyTick(t, "KRW-BTC", 92000000, base.Add(time.Duration(i)*time.Minute))
	}

	rec := a.request(t, http.MethodGet, "/api/v1/candles/KRW-BTC?interval=1m&count=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Symbol   string            `json:"symbol"`
		Interval string            `json:"interval"`
		Data     []marketv1.Candle `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "KRW-BTC", body.Symbol)
	assert.Equal(t, "1m", body.Interval)
	assert.Len(t, body.Data, 3)

	rec = a.request(t, http.MethodGet, "/api/v1/candles/KRW-BTC?count=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_AlertCRUD(t *testing.T) {
	a := newTestAPI(t)

	rec := a.request(t, http.MethodPost, "/api/v1/alerts", map[string]any{
		"symbol": "KRW-BTC", "op": "gte", "threshold": 93000000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var rule alertv1.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.NotEmpty(t, rule.ID)
	assert.True(t, rule.Active)

	rec = a.request(t, http.MethodPost, "/api/v1/alerts", map[string]any{"symbol": "KRW-BTC"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.request(t, http.MethodPost, "/api/v1/alerts", map[string]any{
		"symbol": "KRW-BTC", "op": "eq", "threshold": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.request(t, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []alertv1.Rule `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)

	rec = a.request(t, http.MethodPatch, "/api/v1/alerts/"+rule.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled alertv1.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &toggled))
	assert.False(t, toggled.Active)

	rec = a.request(t, http.MethodDelete, "/api/v1/alerts/"+rule.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.request(t, http.MethodDelete, "/api/v1/alerts/"+rule.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_AlertHistory(t *testing.T) {
	a := newTestAPI(t)
	rec := a.request(t, http.MethodPost, "/api/v1/alerts", map[string]any{
		"symbol": "KRW-BTC", "op": "gte", "threshold": 93000000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a.applyTick(t, "KRW-BTC", 92000000, base)
	a.applyTick(t, "KRW-BTC", 93000000, base.Add(time.Second))

	rec = a.request(t, http.MethodGet, "/api/v1/alerts/history?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []alertv1.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, alertv1.ActionAlert, body.Data[0].Action)
	assert.Equal(t, 93000000.0, body.Data[0].TriggerPrice)
}

func TestHandler_Metrics(t *testing.T) {
	a := newTestAPI(t)
	rec := a.request(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coinportal_")
}
