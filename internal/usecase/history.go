package usecase

import (
	"context"
	"errors"
	"time"

	"StockPulse/internal/domain/models"
	drepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/registry"
	"StockPulse/pkg/cache"
	"StockPulse/pkg/logger"
)

// Last-known close prices for well-known symbols, used to synthesize a
// degenerate one-point series when the upstream fetch fails and nothing
// is cached. Results built from this table are tagged OriginFallback so
// callers can tell them apart from real data.
var fallbackPrices = map[string]float64{
	"AAPL":  252.29,
	"GOOGL": 140.50,
	"MSFT":  350.10,
	"TSLA":  250.75,
	"AMZN":  140.25,
	"META":  320.40,
	"NVDA":  450.60,
	"NFLX":  400.35,
	"SPY":   450.90,
}

const defaultFallbackPrice = 150.00

const searchCacheTTL = 5 * time.Minute

// HistoryService is the cache-aside layer between the upstream provider
// and everything that needs candle series.
type HistoryService struct {
	logger  *logger.Logger
	source  drepo.HistorySource
	cache   cache.Service
	metrics drepo.Metrics
	ttl     time.Duration
}

// NewHistoryService creates a HistoryProvider.
func NewHistoryService(lgr *logger.Logger, source drepo.HistorySource, c cache.Service, m drepo.Metrics, ttl time.Duration) drepo.HistoryProvider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &HistoryService{
		logger:  lgr,
		source:  source,
		cache:   c,
		metrics: m,
		ttl:     ttl,
	}
}

// Fetch returns a series for the symbol, preferring cache, then
// upstream, then the fallback table. The result is always tagged with
// its origin; a fallback result carries the upstream error as Cause and
// is never written to the cache.
func (s *HistoryService) Fetch(ctx context.Context, symbol, period, interval string) (*models.History, error) {
	symbol = registry.Normalize(symbol)
	key := historyKey(symbol, period, interval)

	var cached models.History
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		cached.Origin = models.OriginCache
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("history cache read failed",
			logger.String("symbol", symbol),
			logger.Error(err))
	}

	start := time.Now()
	candles, err := s.source.Historical(ctx, symbol, period, interval)
	s.metrics.RecordLatency("upstream_historical", time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordError("upstream_fetch")
		s.logger.Warn("upstream fetch failed, serving fallback",
			logger.String("symbol", symbol),
			logger.Error(err))
		return s.fallback(symbol, err), nil
	}

	h := &models.History{
		Symbol:    symbol,
		Candles:   candles,
		Origin:    models.OriginUpstream,
		FetchedAt: time.Now().UTC(),
	}
	if err := s.cache.Set(ctx, key, h, s.ttl); err != nil {
		s.logger.Warn("history cache write failed",
			logger.String("symbol", symbol),
			logger.Error(err))
	}
	return h, nil
}

// Refresh fetches from upstream unconditionally and rewrites the cache.
// Unlike Fetch it returns the upstream error instead of a fallback, so
// the refresh queue can retry.
func (s *HistoryService) Refresh(ctx context.Context, symbol, period, interval string) (*models.History, error) {
	symbol = registry.Normalize(symbol)

	candles, err := s.source.Historical(ctx, symbol, period, interval)
	if err != nil {
		s.metrics.RecordError("upstream_refresh")
		return nil, err
	}

	h := &models.History{
		Symbol:    symbol,
		Candles:   candles,
		Origin:    models.OriginUpstream,
		FetchedAt: time.Now().UTC(),
	}
	if err := s.cache.Set(ctx, historyKey(symbol, period, interval), h, s.ttl); err != nil {
		s.logger.Warn("history cache write failed",
			logger.String("symbol", symbol),
			logger.Error(err))
	}

	s.logger.Info("history refreshed",
		logger.String("symbol", symbol),
		logger.Int("candles", len(h.Candles)))
	return h, nil
}

// Search proxies symbol search with a short-lived cache.
func (s *HistoryService) Search(ctx context.Context, query string, limit int) ([]models.SymbolMatch, error) {
	key := cache.GenerateKeyWithParams("search", query, limit)

	var cached []models.SymbolMatch
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	matches, err := s.source.Search(ctx, query, limit)
	if err != nil {
		s.metrics.RecordError("upstream_search")
		return nil, err
	}
	if err := s.cache.Set(ctx, key, matches, searchCacheTTL); err != nil {
		s.logger.Warn("search cache write failed", logger.Error(err))
	}
	return matches, nil
}

// fallback synthesizes a one-point series from the price table.
func (s *HistoryService) fallback(symbol string, cause error) *models.History {
	price, ok := fallbackPrices[symbol]
	if !ok {
		price = defaultFallbackPrice
	}
	now := time.Now().UTC()
	return &models.History{
		Symbol: symbol,
		Candles: []models.Candle{{
			Timestamp: now.Unix(),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
		}},
		Origin:    models.OriginFallback,
		Cause:     cause.Error(),
		FetchedAt: now,
	}
}

func historyKey(symbol, period, interval string) string {
	return cache.GenerateKeyWithParams("history", symbol, period, interval)
}
