package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/hub"
	"StockPulse/internal/registry"
	"StockPulse/internal/usecase"
	"StockPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

type stubHistory struct{}

func (stubHistory) Fetch(ctx context.Context, symbol, period, interval string) (*models.History, error) {
	return &models.History{
		Symbol:    symbol,
		Candles:   []models.Candle{{Timestamp: 1700000000, Close: 252.29}},
		Origin:    models.OriginUpstream,
		FetchedAt: time.Unix(1700000000, 0),
	}, nil
}

func (stubHistory) Refresh(ctx context.Context, symbol, period, interval string) (*models.History, error) {
	return nil, nil
}

func (stubHistory) Search(ctx context.Context, query string, limit int) ([]models.SymbolMatch, error) {
	return []models.SymbolMatch{{Symbol: "AAPL", Name: "Apple Inc."}}, nil
}

type stubStream struct {
	state models.ConnectionState
}

func (s *stubStream) Connect(ctx context.Context) error { return nil }
func (s *stubStream) Read(ctx context.Context) (<-chan *models.PriceUpdate, <-chan error) {
	return nil, nil
}
func (s *stubStream) Reconnect(ctx context.Context) error { return nil }
func (s *stubStream) Close() error                        { return nil }
func (s *stubStream) State() models.ConnectionState       { return s.state }

type nopMetrics struct{}

func (nopMetrics) RecordUpdateEmitted(string, string) {}
func (nopMetrics) RecordError(string)                 {}
func (nopMetrics) RecordLastPrice(string, float64)    {}
func (nopMetrics) RecordLatency(string, float64)      {}
func (nopMetrics) SetConnected(bool)                  {}
func (nopMetrics) SetWatchedSymbols(int)              {}
func (nopMetrics) RecordFanoutDrop(string)            {}

func newTestHandler(t *testing.T) (*FeedHandler, *echo.Echo, *registry.Registry, *hub.Hub) {
	t.Helper()
	lgr, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	reg := registry.New(lgr)
	h := hub.New(lgr, nopMetrics{})
	gw := hub.NewGateway(lgr, reg, h)
	stream := &stubStream{state: models.ConnectionState{
		Status:    models.StatusConnected,
		Degraded:  true,
		LastError: "historical fetch failed",
	}}
	proc := usecase.NewUpdateProcessor(nil, nil, nopMetrics{}, "none")
	collector := usecase.NewUpdateCollector(lgr, stream, proc, nil, h, nopMetrics{})

	handler := NewFeedHandler(lgr, stubHistory{}, collector, nil, reg, h, gw)
	e := echo.New()
	handler.RegisterRoutes(e)
	return handler, e, reg, h
}

func TestHistoricalReturnsTaggedSeries(t *testing.T) {
	_, e, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stocks/AAPL/historical?period=1y&interval=1d", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data models.History `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Origin != models.OriginUpstream {
		t.Fatalf("origin = %s, want upstream", resp.Data.Origin)
	}
	if len(resp.Data.Candles) != 1 || resp.Data.Candles[0].Close != 252.29 {
		t.Fatalf("candles = %+v", resp.Data.Candles)
	}
}

func TestHistoricalRejectsBadPeriod(t *testing.T) {
	_, e, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stocks/AAPL/historical?period=13mo", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Status)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	_, e, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stocks/search", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.Status)
	}
}

func TestStatusSurfacesDegradedState(t *testing.T) {
	_, e, reg, _ := newTestHandler(t)
	reg.Pin("AAPL")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Data statusResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Data.Connection.Degraded {
		t.Fatal("degraded flag must be surfaced")
	}
	if resp.Data.Connection.LastError == "" {
		t.Fatal("last error must be surfaced")
	}
	if resp.Data.Registry.Pinned != 1 {
		t.Fatalf("pinned = %d, want 1", resp.Data.Registry.Pinned)
	}
}

func TestQuotesReturnsLatestSnapshot(t *testing.T) {
	_, e, _, h := newTestHandler(t)
	h.Publish(&models.PriceUpdate{Symbol: "AAPL", Price: 252.29, Timestamp: 1700000000})
	h.Publish(&models.PriceUpdate{Symbol: "AAPL", Price: 252.55, Timestamp: 1700000002})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/feed/quotes", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp struct {
		Data []models.PriceUpdate `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Price != 252.55 {
		t.Fatalf("quotes = %+v, want single latest AAPL", resp.Data)
	}
}

func TestWatchPinsSymbol(t *testing.T) {
	_, e, reg, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/feed/watch", strings.NewReader(`{"symbol":"tsla"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !reg.Watched("TSLA") {
		t.Fatal("TSLA should be pinned")
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/v1/feed/watch/TSLA", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, del)

	if reg.Watched("TSLA") {
		t.Fatal("TSLA should be unpinned")
	}
}

func TestUpdatesUnavailableWithoutStorage(t *testing.T) {
	_, e, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stocks/AAPL/updates", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.Status)
	}
}
