package repository

import (
	"context"
	"time"

	"StockPulse/internal/domain/models"
)

// FeedStream produces live price updates. The production implementation
// is the in-process simulator; the interface keeps the collector
// agnostic of how updates are manufactured.
type FeedStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.PriceUpdate, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	State() models.ConnectionState
}

// HistorySource fetches historical series and symbol matches from the
// upstream stock-data provider.
type HistorySource interface {
	Historical(ctx context.Context, symbol, period, interval string) ([]models.Candle, error)
	Search(ctx context.Context, query string, limit int) ([]models.SymbolMatch, error)
}

// HistoryProvider serves cached historical series to the simulator and
// the HTTP layer.
type HistoryProvider interface {
	Fetch(ctx context.Context, symbol, period, interval string) (*models.History, error)
	Refresh(ctx context.Context, symbol, period, interval string) (*models.History, error)
	Search(ctx context.Context, query string, limit int) ([]models.SymbolMatch, error)
}

type Publisher interface {
	Publish(ctx context.Context, u *models.PriceUpdate) error
	PublishBatch(ctx context.Context, updates []*models.PriceUpdate) error
	Close() error
}

type Storage interface {
	Store(ctx context.Context, u *models.PriceUpdate) error
	StoreBatch(ctx context.Context, updates []*models.PriceUpdate) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.PriceUpdate, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordUpdateEmitted(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	SetConnected(connected bool)
	SetWatchedSymbols(n int)
	RecordFanoutDrop(kind string)
}
