package hub

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"StockPulse/internal/domain/models"
	"StockPulse/internal/domain/repository"
	"StockPulse/pkg/logger"
)

// Filter decides whether a subscriber receives an update for a symbol.
// A nil filter receives everything.
type Filter func(symbol string) bool

// Subscription is one consumer of the update stream. Read from C until
// it is closed; call Close when done.
type Subscription struct {
	C  <-chan *models.PriceUpdate
	id string
	ch chan *models.PriceUpdate

	hub  *Hub
	once sync.Once

	filter Filter
}

// Close detaches the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		// Publish sends under the read lock, so closing under the write
		// lock cannot race an in-flight send.
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

// Hub fans updates out to subscribers and keeps the latest update per
// symbol. Sends never block: a subscriber that cannot keep up loses
// updates, not the hub.
type Hub struct {
	logger  *logger.Logger
	metrics repository.Metrics
	buffer  int

	mu     sync.RWMutex
	subs   map[string]*Subscription
	latest map[string]*models.PriceUpdate

	seq uint64
}

// Option configures the Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// New creates an empty hub.
func New(lgr *logger.Logger, m repository.Metrics, opts ...Option) *Hub {
	h := &Hub{
		logger:  lgr,
		metrics: m,
		buffer:  16,
		subs:    make(map[string]*Subscription),
		latest:  make(map[string]*models.PriceUpdate),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe attaches a consumer. The filter limits which symbols it
// receives; pass nil for all.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	id := fmt.Sprintf("sub-%d", atomic.AddUint64(&h.seq, 1))

	ch := make(chan *models.PriceUpdate, h.buffer)
	sub := &Subscription{
		C:      ch,
		id:     id,
		ch:     ch,
		hub:    h,
		filter: filter,
	}

	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()
	return sub
}

// Publish records the update as the latest for its symbol and fans it
// out. An update superseded before a slow subscriber drains it is
// simply dropped for that subscriber.
func (h *Hub) Publish(u *models.PriceUpdate) {
	if u == nil {
		return
	}

	h.mu.Lock()
	h.latest[u.Symbol] = u
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter(u.Symbol) {
			continue
		}
		select {
		case sub.ch <- u:
		default:
			h.metrics.RecordFanoutDrop("subscriber")
			h.logger.Debug("fanout drop",
				logger.String("subscriber", sub.id),
				logger.String("symbol", u.Symbol))
		}
	}
}

// Latest returns the most recent update for a symbol.
func (h *Hub) Latest(symbol string) (*models.PriceUpdate, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	u, ok := h.latest[symbol]
	return u, ok
}

// Snapshot returns the latest update of every symbol, sorted by symbol.
func (h *Hub) Snapshot() []*models.PriceUpdate {
	h.mu.RLock()
	out := make([]*models.PriceUpdate, 0, len(h.latest))
	for _, u := range h.latest {
		out = append(out, u)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Subscribers returns the number of attached consumers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
