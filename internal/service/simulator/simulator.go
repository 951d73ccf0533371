package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"StockPulse/internal/domain/models"
	drepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/registry"
	"StockPulse/pkg/logger"
)

// Simulator implements a FeedStream by manufacturing price updates from
// cached historical closes. Each watched symbol does a bounded random
// walk: every tick the price moves by a uniform factor in [-jitter,
// +jitter] relative to the previous emitted price.
type Simulator struct {
	logger   *logger.Logger
	history  drepo.HistoryProvider
	registry *registry.Registry
	metrics  drepo.Metrics

	tickInterval   time.Duration
	jitter         float64
	connectDelay   time.Duration
	reconnectDelay time.Duration
	stagger        time.Duration
	period         string
	interval       string
	bufferSize     int

	mu     sync.Mutex
	state  models.ConnectionState
	basis  map[string]*walk
	cancel context.CancelFunc
	rng    *rand.Rand
}

// walk is the per-symbol price state.
type walk struct {
	price    float64
	fallback bool
}

// Option configures the Simulator.
type Option func(*Simulator)

// WithTickInterval sets the emission period.
func WithTickInterval(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithJitter sets the per-tick price move bound as a fraction.
func WithJitter(j float64) Option {
	return func(s *Simulator) {
		if j > 0 {
			s.jitter = j
		}
	}
}

// WithDelays sets the simulated connect delay and the reconnect backoff.
func WithDelays(connect, reconnect time.Duration) Option {
	return func(s *Simulator) {
		s.connectDelay = connect
		s.reconnectDelay = reconnect
	}
}

// WithSeries sets the period and interval used for basis lookups.
func WithSeries(period, interval string) Option {
	return func(s *Simulator) {
		s.period = period
		s.interval = interval
	}
}

// WithStagger spreads per-symbol emissions inside a tick by the given
// delay, so bursts do not land on subscribers all at once.
func WithStagger(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.stagger = d
		}
	}
}

// WithBuffer sets the update channel capacity.
func WithBuffer(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithSeed pins the random source, for tests.
func WithSeed(seed int64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a simulator FeedStream.
func New(lgr *logger.Logger, history drepo.HistoryProvider, reg *registry.Registry, m drepo.Metrics, opts ...Option) *Simulator {
	s := &Simulator{
		logger:         lgr,
		history:        history,
		registry:       reg,
		metrics:        m,
		tickInterval:   2 * time.Second,
		jitter:         0.002,
		connectDelay:   500 * time.Millisecond,
		reconnectDelay: 5 * time.Second,
		period:         "1y",
		interval:       "1d",
		bufferSize:     1024,
		basis:          make(map[string]*walk),
		state:          models.ConnectionState{Status: models.StatusDisconnected, Since: time.Now()},
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect transitions the feed to connected after the simulated
// handshake delay.
func (s *Simulator) Connect(ctx context.Context) error {
	s.setStatus(models.StatusConnecting, "")

	if s.connectDelay > 0 {
		select {
		case <-ctx.Done():
			s.setStatus(models.StatusDisconnected, ctx.Err().Error())
			return fmt.Errorf("simulator connect: %w", ctx.Err())
		case <-time.After(s.connectDelay):
		}
	}

	s.setStatus(models.StatusConnected, "")
	s.metrics.SetConnected(true)
	s.logger.Info("simulator: connected",
		logger.Duration("tick", s.tickInterval),
		logger.Float64("jitter", s.jitter))
	return nil
}

// Read streams price updates and errors. The loop stops, and both
// channels close, when ctx is cancelled or Close is called; no update
// is emitted after that point.
func (s *Simulator) Read(ctx context.Context) (<-chan *models.PriceUpdate, <-chan error) {
	updates := make(chan *models.PriceUpdate, s.bufferSize)
	errs := make(chan error, 1)

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx, updates, errs)
	return updates, errs
}

func (s *Simulator) run(ctx context.Context, updates chan<- *models.PriceUpdate, errs chan<- error) {
	defer close(updates)
	defer close(errs)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, updates)
		}
	}
}

// tick emits one update per watched symbol.
func (s *Simulator) tick(ctx context.Context, updates chan<- *models.PriceUpdate) {
	symbols := s.registry.Symbols()
	s.metrics.SetWatchedSymbols(len(symbols))
	if len(symbols) == 0 {
		return
	}

	degraded := false
	now := time.Now().Unix()

	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w, err := s.walkFor(ctx, symbol)
		if err != nil {
			// walkFor only fails on context cancellation.
			return
		}
		if w.fallback {
			degraded = true
		}

		jitter := (s.rng.Float64()*2 - 1) * s.jitter
		price := round2(w.price * (1 + jitter))
		change := round2(price - w.price)
		w.price = price

		u := &models.PriceUpdate{
			Symbol:        symbol,
			Price:         price,
			Change:        change,
			ChangePercent: round2(jitter * 100),
			Timestamp:     now,
			Fallback:      w.fallback,
		}

		// A cached basis skips the blocking fetch above, so re-check
		// cancellation here; no update may land after Close.
		if ctx.Err() != nil {
			return
		}
		select {
		case updates <- u:
		default:
			// Drop on backpressure; the next tick supersedes this one.
			s.metrics.RecordFanoutDrop("stream")
		}

		if s.stagger > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.stagger):
			}
		}
	}

	s.setDegraded(degraded)
}

// walkFor returns the walk state for a symbol, seeding it from the
// history provider on first sight.
func (s *Simulator) walkFor(ctx context.Context, symbol string) (*walk, error) {
	s.mu.Lock()
	if w, ok := s.basis[symbol]; ok {
		s.mu.Unlock()
		return w, nil
	}
	s.mu.Unlock()

	h, err := s.history.Fetch(ctx, symbol, s.period, s.interval)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Fetch degrades internally; an error here is unexpected but
		// must not kill the loop.
		s.logger.Error("simulator: basis fetch failed",
			logger.String("symbol", symbol),
			logger.Error(err))
		h = &models.History{
			Symbol:  symbol,
			Candles: []models.Candle{{Close: 150.00, Timestamp: time.Now().Unix()}},
			Origin:  models.OriginFallback,
			Cause:   err.Error(),
		}
	}

	price, _ := h.LastClose()
	w := &walk{price: price, fallback: h.Origin == models.OriginFallback}

	s.mu.Lock()
	s.basis[symbol] = w
	if w.fallback {
		s.state.Degraded = true
		s.state.LastError = h.Cause
	}
	s.mu.Unlock()

	s.logger.Debug("simulator: basis seeded",
		logger.String("symbol", symbol),
		logger.Float64("price", price),
		logger.String("origin", string(h.Origin)))
	return w, nil
}

// Reconnect tears the stream down and connects again after the backoff.
// The walk state is dropped so prices reseed from fresh history.
func (s *Simulator) Reconnect(ctx context.Context) error {
	if err := s.Close(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("simulator reconnect: %w", ctx.Err())
	case <-time.After(s.reconnectDelay):
	}

	s.mu.Lock()
	s.basis = make(map[string]*walk)
	s.mu.Unlock()

	return s.Connect(ctx)
}

// Close stops the update loop and marks the feed disconnected.
func (s *Simulator) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.setStatus(models.StatusDisconnected, "")
	s.metrics.SetConnected(false)
	s.logger.Info("simulator: closed")
	return nil
}

// State returns the current connection snapshot.
func (s *Simulator) State() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Simulator) setStatus(status models.FeedStatus, lastErr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != status {
		s.state.Since = time.Now()
	}
	s.state.Status = status
	if lastErr != "" {
		s.state.LastError = lastErr
	}
	if status != models.StatusConnected {
		s.state.Degraded = false
	}
}

func (s *Simulator) setDegraded(degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Degraded = degraded
	if !degraded {
		s.state.LastError = ""
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
