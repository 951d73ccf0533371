package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/pkg/cache"
	"StockPulse/pkg/logger"
)

type fakeSource struct {
	candles []models.Candle
	matches []models.SymbolMatch
	err     error
	calls   int
}

func (f *fakeSource) Historical(ctx context.Context, symbol, period, interval string) ([]models.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func (f *fakeSource) Search(ctx context.Context, query string, limit int) ([]models.SymbolMatch, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type nopMetrics struct{}

func (nopMetrics) RecordUpdateEmitted(string, string) {}
func (nopMetrics) RecordError(string)                 {}
func (nopMetrics) RecordLastPrice(string, float64)    {}
func (nopMetrics) RecordLatency(string, float64)      {}
func (nopMetrics) SetConnected(bool)                  {}
func (nopMetrics) SetWatchedSymbols(int)              {}
func (nopMetrics) RecordFanoutDrop(string)            {}

func newHistoryService(t *testing.T, source *fakeSource) *HistoryService {
	t.Helper()
	lgr, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	mem := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	return NewHistoryService(lgr, source, mem, nopMetrics{}, time.Minute).(*HistoryService)
}

func TestFetchUpstreamThenCache(t *testing.T) {
	source := &fakeSource{candles: []models.Candle{{Timestamp: 1700000000, Close: 252.29}}}
	svc := newHistoryService(t, source)
	ctx := context.Background()

	h, err := svc.Fetch(ctx, "aapl", "1y", "1d")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if h.Origin != models.OriginUpstream {
		t.Fatalf("origin = %s, want upstream", h.Origin)
	}
	if h.Symbol != "AAPL" {
		t.Fatalf("symbol = %s, want AAPL", h.Symbol)
	}
	if close, ok := h.LastClose(); !ok || close != 252.29 {
		t.Fatalf("last close = %v", close)
	}

	// Second fetch is served from cache without touching upstream.
	h2, err := svc.Fetch(ctx, "AAPL", "1y", "1d")
	if err != nil {
		t.Fatalf("fetch cached: %v", err)
	}
	if h2.Origin != models.OriginCache {
		t.Fatalf("origin = %s, want cache", h2.Origin)
	}
	if source.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", source.calls)
	}
}

func TestFetchFallbackOnUpstreamError(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	svc := newHistoryService(t, source)

	h, err := svc.Fetch(context.Background(), "AAPL", "1y", "1d")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if h.Origin != models.OriginFallback {
		t.Fatalf("origin = %s, want fallback", h.Origin)
	}
	if !strings.Contains(h.Cause, "connection refused") {
		t.Fatalf("cause = %q, want the upstream error", h.Cause)
	}
	if close, _ := h.LastClose(); close != 252.29 {
		t.Fatalf("AAPL fallback close = %v, want 252.29", close)
	}
}

func TestFetchFallbackDefaultPrice(t *testing.T) {
	source := &fakeSource{err: errors.New("boom")}
	svc := newHistoryService(t, source)

	h, err := svc.Fetch(context.Background(), "ZZZZ", "1y", "1d")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if close, _ := h.LastClose(); close != 150.00 {
		t.Fatalf("unknown-symbol fallback close = %v, want 150.00", close)
	}
}

func TestFallbackIsNotCached(t *testing.T) {
	source := &fakeSource{err: errors.New("down")}
	svc := newHistoryService(t, source)
	ctx := context.Background()

	if _, err := svc.Fetch(ctx, "MSFT", "1y", "1d"); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// Upstream recovers; the next fetch must go back to it instead of
	// serving the degenerate series from cache.
	source.err = nil
	source.candles = []models.Candle{{Timestamp: 1700000000, Close: 350.10}}

	h, err := svc.Fetch(ctx, "MSFT", "1y", "1d")
	if err != nil {
		t.Fatalf("fetch after recovery: %v", err)
	}
	if h.Origin != models.OriginUpstream {
		t.Fatalf("origin = %s, want upstream after recovery", h.Origin)
	}
}

func TestRefreshReturnsError(t *testing.T) {
	source := &fakeSource{err: errors.New("timeout")}
	svc := newHistoryService(t, source)

	if _, err := svc.Refresh(context.Background(), "AAPL", "1y", "1d"); err == nil {
		t.Fatal("refresh must surface the upstream error")
	}
}

func TestRefreshRewritesCache(t *testing.T) {
	source := &fakeSource{candles: []models.Candle{{Timestamp: 1, Close: 100}}}
	svc := newHistoryService(t, source)
	ctx := context.Background()

	if _, err := svc.Fetch(ctx, "NVDA", "1y", "1d"); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	source.candles = []models.Candle{{Timestamp: 2, Close: 460.00}}
	if _, err := svc.Refresh(ctx, "NVDA", "1y", "1d"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	h, err := svc.Fetch(ctx, "NVDA", "1y", "1d")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if h.Origin != models.OriginCache {
		t.Fatalf("origin = %s, want cache", h.Origin)
	}
	if close, _ := h.LastClose(); close != 460.00 {
		t.Fatalf("close = %v, want refreshed 460.00", close)
	}
}

func TestSearchCaches(t *testing.T) {
	source := &fakeSource{matches: []models.SymbolMatch{{Symbol: "AAPL", Name: "Apple Inc."}}}
	svc := newHistoryService(t, source)
	ctx := context.Background()

	first, err := svc.Search(ctx, "app", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(first) != 1 || first[0].Symbol != "AAPL" {
		t.Fatalf("matches = %+v", first)
	}

	if _, err := svc.Search(ctx, "app", 10); err != nil {
		t.Fatalf("search cached: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", source.calls)
	}
}
