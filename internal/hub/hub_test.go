package hub

import (
	"sync"
	"testing"

	"StockPulse/internal/domain/models"
	"StockPulse/pkg/logger"
)

type fakeMetrics struct {
	mu    sync.Mutex
	drops int
}

func (m *fakeMetrics) RecordUpdateEmitted(string, string) {}
func (m *fakeMetrics) RecordError(string)                 {}
func (m *fakeMetrics) RecordLastPrice(string, float64)    {}
func (m *fakeMetrics) RecordLatency(string, float64)      {}
func (m *fakeMetrics) SetConnected(bool)                  {}
func (m *fakeMetrics) SetWatchedSymbols(int)              {}
func (m *fakeMetrics) RecordFanoutDrop(string) {
	m.mu.Lock()
	m.drops++
	m.mu.Unlock()
}

func (m *fakeMetrics) Drops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

func newTestHub(t *testing.T, opts ...Option) (*Hub, *fakeMetrics) {
	t.Helper()
	lgr, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	m := &fakeMetrics{}
	return New(lgr, m, opts...), m
}

func update(symbol string, price float64) *models.PriceUpdate {
	return &models.PriceUpdate{Symbol: symbol, Price: price, Timestamp: 1700000000}
}

func TestPublishDelivers(t *testing.T) {
	h, _ := newTestHub(t)
	sub := h.Subscribe(nil)
	defer sub.Close()

	h.Publish(update("AAPL", 252.29))

	got := <-sub.C
	if got.Symbol != "AAPL" || got.Price != 252.29 {
		t.Fatalf("unexpected update %+v", got)
	}
}

func TestPublishRespectsFilter(t *testing.T) {
	h, _ := newTestHub(t)
	sub := h.Subscribe(func(symbol string) bool { return symbol == "TSLA" })
	defer sub.Close()

	h.Publish(update("AAPL", 252.29))
	h.Publish(update("TSLA", 800.0))

	got := <-sub.C
	if got.Symbol != "TSLA" {
		t.Fatalf("filter leaked %s", got.Symbol)
	}
	select {
	case extra := <-sub.C:
		t.Fatalf("unexpected extra update %+v", extra)
	default:
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	h, m := newTestHub(t, WithBuffer(1))
	sub := h.Subscribe(nil)
	defer sub.Close()

	h.Publish(update("AAPL", 1))
	h.Publish(update("AAPL", 2)) // buffer full, dropped

	if m.Drops() != 1 {
		t.Fatalf("drops = %d, want 1", m.Drops())
	}

	got := <-sub.C
	if got.Price != 1 {
		t.Fatalf("price = %v, want 1", got.Price)
	}

	// The latest view still reflects the newest update.
	latest, ok := h.Latest("AAPL")
	if !ok || latest.Price != 2 {
		t.Fatalf("latest = %+v", latest)
	}
}

func TestSnapshotSorted(t *testing.T) {
	h, _ := newTestHub(t)

	h.Publish(update("MSFT", 350))
	h.Publish(update("AAPL", 252.29))
	h.Publish(update("AAPL", 253.01))

	snap := h.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d", len(snap))
	}
	if snap[0].Symbol != "AAPL" || snap[1].Symbol != "MSFT" {
		t.Fatalf("snapshot order %v %v", snap[0].Symbol, snap[1].Symbol)
	}
	if snap[0].Price != 253.01 {
		t.Fatalf("snapshot kept stale price %v", snap[0].Price)
	}
}

func TestCloseDetaches(t *testing.T) {
	h, _ := newTestHub(t)
	sub := h.Subscribe(nil)

	sub.Close()
	sub.Close() // idempotent

	if n := h.Subscribers(); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}

	// Publishing after close must not panic.
	h.Publish(update("AAPL", 1))

	if _, ok := <-sub.C; ok {
		t.Fatal("channel should be closed")
	}
}
