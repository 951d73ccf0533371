package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/registry"
	"StockPulse/pkg/logger"
)

type stubHistory struct {
	histories map[string]*models.History
	err       error
}

func (s *stubHistory) Fetch(ctx context.Context, symbol, period, interval string) (*models.History, error) {
	if s.err != nil {
		return nil, s.err
	}
	if h, ok := s.histories[symbol]; ok {
		return h, nil
	}
	return &models.History{
		Symbol:  symbol,
		Candles: []models.Candle{{Close: 150.00, Timestamp: time.Now().Unix()}},
		Origin:  models.OriginFallback,
		Cause:   "unknown symbol",
	}, nil
}

func (s *stubHistory) Refresh(ctx context.Context, symbol, period, interval string) (*models.History, error) {
	return s.Fetch(ctx, symbol, period, interval)
}

func (s *stubHistory) Search(ctx context.Context, query string, limit int) ([]models.SymbolMatch, error) {
	return nil, nil
}

type nopMetrics struct{}

func (nopMetrics) RecordUpdateEmitted(string, string) {}
func (nopMetrics) RecordError(string)                 {}
func (nopMetrics) RecordLastPrice(string, float64)    {}
func (nopMetrics) RecordLatency(string, float64)      {}
func (nopMetrics) SetConnected(bool)                  {}
func (nopMetrics) SetWatchedSymbols(int)              {}
func (nopMetrics) RecordFanoutDrop(string)            {}

func newTestSimulator(t *testing.T, hist *stubHistory, opts ...Option) (*Simulator, *registry.Registry) {
	t.Helper()
	lgr, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	reg := registry.New(lgr)

	base := []Option{
		WithTickInterval(10 * time.Millisecond),
		WithDelays(0, time.Millisecond),
		WithSeed(42),
	}
	return New(lgr, hist, reg, nopMetrics{}, append(base, opts...)...), reg
}

func upstreamHistory(symbol string, closePrice float64) *models.History {
	return &models.History{
		Symbol:  symbol,
		Candles: []models.Candle{{Close: closePrice, Timestamp: 1700000000}},
		Origin:  models.OriginUpstream,
	}
}

func TestConnectTransitionsState(t *testing.T) {
	sim, _ := newTestSimulator(t, &stubHistory{})

	if st := sim.State(); st.Status != models.StatusDisconnected {
		t.Fatalf("initial status = %s", st.Status)
	}
	if err := sim.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if st := sim.State(); st.Status != models.StatusConnected || !st.Connected() {
		t.Fatalf("status after connect = %s", st.Status)
	}
	if err := sim.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := sim.State(); st.Status != models.StatusDisconnected {
		t.Fatalf("status after close = %s", st.Status)
	}
}

func TestConnectHonorsCancelledContext(t *testing.T) {
	sim, _ := newTestSimulator(t, &stubHistory{}, WithDelays(time.Second, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sim.Connect(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestUpdatesStayWithinJitterBounds(t *testing.T) {
	hist := &stubHistory{histories: map[string]*models.History{
		"AAPL": upstreamHistory("AAPL", 252.29),
	}}
	sim, reg := newTestSimulator(t, hist, WithJitter(0.002))
	reg.Pin("AAPL")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sim.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	updates, _ := sim.Read(ctx)

	last := 252.29
	for i := 0; i < 10; i++ {
		select {
		case u := <-updates:
			lo, hi := last*(1-0.002)-0.01, last*(1+0.002)+0.01
			if u.Price < lo || u.Price > hi {
				t.Fatalf("price %v outside [%v, %v]", u.Price, lo, hi)
			}
			if u.Fallback {
				t.Fatal("upstream-seeded symbol must not be marked fallback")
			}
			last = u.Price
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for update")
		}
	}
}

func TestFallbackSymbolMarksDegraded(t *testing.T) {
	sim, reg := newTestSimulator(t, &stubHistory{})
	reg.Pin("ZZZZ")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sim.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	updates, _ := sim.Read(ctx)

	select {
	case u := <-updates:
		if !u.Fallback {
			t.Fatal("unknown symbol must be marked fallback")
		}
		if u.Price < 150.00*(1-0.01) || u.Price > 150.00*(1+0.01) {
			t.Fatalf("fallback price %v not near 150.00", u.Price)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}

	// Degraded state is surfaced, not swallowed.
	deadline := time.Now().Add(time.Second)
	for {
		if st := sim.State(); st.Degraded {
			if st.LastError == "" {
				t.Fatal("degraded state must carry the cause")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("state never became degraded")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUnsubscribedSymbolGoesSilent(t *testing.T) {
	hist := &stubHistory{histories: map[string]*models.History{
		"AAPL": upstreamHistory("AAPL", 252.29),
		"MSFT": upstreamHistory("MSFT", 350.10),
	}}
	sim, reg := newTestSimulator(t, hist)
	reg.Pin("AAPL")
	reg.Subscribe("c1", "MSFT")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sim.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	updates, _ := sim.Read(ctx)

	seen := map[string]bool{}
	deadline := time.After(time.Second)
	for !(seen["AAPL"] && seen["MSFT"]) {
		select {
		case u := <-updates:
			seen[u.Symbol] = true
		case <-deadline:
			t.Fatalf("both symbols should emit, saw %v", seen)
		}
	}

	reg.Unsubscribe("c1", "MSFT")

	// A tick in flight at unsubscribe time may still carry MSFT; let
	// the buffer drain before asserting silence.
	settle := time.After(50 * time.Millisecond)
drain:
	for {
		select {
		case <-updates:
		case <-settle:
			break drain
		}
	}

	watch := time.After(200 * time.Millisecond)
	sawAAPL := false
	for {
		select {
		case u := <-updates:
			if u.Symbol == "MSFT" {
				t.Fatal("MSFT emitted after unsubscribe")
			}
			if u.Symbol == "AAPL" {
				sawAAPL = true
			}
		case <-watch:
			if !sawAAPL {
				t.Fatal("pinned AAPL should keep emitting")
			}
			return
		}
	}
}

func TestCloseStopsEmission(t *testing.T) {
	hist := &stubHistory{histories: map[string]*models.History{
		"MSFT": upstreamHistory("MSFT", 350.10),
	}}
	sim, reg := newTestSimulator(t, hist)
	reg.Pin("MSFT")

	ctx := context.Background()
	if err := sim.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	updates, _ := sim.Read(ctx)

	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("no update before close")
	}

	if err := sim.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// The channel drains and closes; nothing is emitted after Close.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("update channel never closed")
		}
	}
}
