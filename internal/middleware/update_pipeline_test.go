package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"StockPulse/internal/domain/models"
)

type captureProc struct {
	mu       sync.Mutex
	got      []*models.PriceUpdate
	failNext bool
}

func (p *captureProc) Process(ctx context.Context, u *models.PriceUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext {
		return errors.New("downstream unavailable")
	}
	p.got = append(p.got, u)
	return nil
}

func (p *captureProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

type nopMetrics struct{}

func (nopMetrics) RecordUpdateEmitted(string, string) {}
func (nopMetrics) RecordError(string)                 {}
func (nopMetrics) RecordLastPrice(string, float64)    {}
func (nopMetrics) RecordLatency(string, float64)      {}
func (nopMetrics) SetConnected(bool)                  {}
func (nopMetrics) SetWatchedSymbols(int)              {}
func (nopMetrics) RecordFanoutDrop(string)            {}

func validTestUpdate() *models.PriceUpdate {
	return &models.PriceUpdate{Symbol: "AAPL", Price: 252.29, Timestamp: 1700000000}
}

func TestPipelineForwardsValidUpdate(t *testing.T) {
	proc := &captureProc{}
	p := NewUpdatePipeline(proc, nopMetrics{})

	if err := p.Process(context.Background(), validTestUpdate()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if proc.count() != 1 {
		t.Fatalf("forwarded = %d, want 1", proc.count())
	}
}

func TestPipelineRejectsInvalidUpdate(t *testing.T) {
	proc := &captureProc{}
	p := NewUpdatePipeline(proc, nopMetrics{})
	ctx := context.Background()

	cases := []*models.PriceUpdate{
		nil,
		{Symbol: "", Price: 1, Timestamp: 1},
		{Symbol: "AAPL", Price: 1, Timestamp: 0},
		{Symbol: "AAPL", Price: 0, Timestamp: 1},
	}
	for _, u := range cases {
		if err := p.Process(ctx, u); err == nil {
			t.Fatalf("update %+v must be rejected", u)
		}
	}
	if proc.count() != 0 {
		t.Fatalf("invalid updates reached downstream: %d", proc.count())
	}
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	proc := &captureProc{}
	p := NewUpdatePipeline(proc, nopMetrics{}, WithMaxRPS(1))
	ctx := context.Background()

	// Burst far beyond one token; excess drops silently without error.
	for i := 0; i < 10; i++ {
		if err := p.Process(ctx, validTestUpdate()); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if proc.count() >= 10 {
		t.Fatalf("throttle let everything through: %d", proc.count())
	}
	if proc.count() == 0 {
		t.Fatal("throttle dropped everything")
	}
}

func TestPipelineBuffersOnDownstreamError(t *testing.T) {
	proc := &captureProc{failNext: true}
	p := NewUpdatePipeline(proc, nopMetrics{}, WithBufferSize(4))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	if err := p.Process(ctx, validTestUpdate()); err == nil {
		t.Fatal("downstream error must surface")
	}

	// Downstream recovers; the buffered update flushes.
	proc.mu.Lock()
	proc.failNext = false
	proc.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("buffered update never flushed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
