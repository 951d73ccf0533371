package registry

import (
	"sort"
	"strings"
	"sync"

	"StockPulse/pkg/logger"
)

// Registry tracks which symbols each client wants and which symbols are
// pinned by configuration. The watched set is the union of both; the
// simulator reads it every tick, so all methods are safe for concurrent
// use.
type Registry struct {
	logger *logger.Logger

	mu      sync.RWMutex
	clients map[string]map[string]struct{} // clientID -> symbol set
	refs    map[string]int                 // symbol -> subscriber count
	pinned  map[string]struct{}
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Clients       int `json:"clients"`
	Symbols       int `json:"symbols"`
	Pinned        int `json:"pinned"`
	Subscriptions int `json:"subscriptions"`
}

// New creates an empty registry.
func New(lgr *logger.Logger) *Registry {
	return &Registry{
		logger:  lgr,
		clients: make(map[string]map[string]struct{}),
		refs:    make(map[string]int),
		pinned:  make(map[string]struct{}),
	}
}

// Normalize canonicalizes a symbol for registry keys.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Subscribe adds a symbol to a client's set. Returns true if the
// subscription is new for this client.
func (r *Registry) Subscribe(clientID, symbol string) bool {
	symbol = Normalize(symbol)
	if symbol == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.clients[clientID]
	if !ok {
		set = make(map[string]struct{})
		r.clients[clientID] = set
	}
	if _, exists := set[symbol]; exists {
		return false
	}

	set[symbol] = struct{}{}
	r.refs[symbol]++

	r.logger.Debug("client subscribed",
		logger.String("client_id", clientID),
		logger.String("symbol", symbol),
		logger.Int("refs", r.refs[symbol]))
	return true
}

// Unsubscribe removes a symbol from a client's set. Returns true if the
// client was actually subscribed.
func (r *Registry) Unsubscribe(clientID, symbol string) bool {
	symbol = Normalize(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.clients[clientID]
	if !ok {
		return false
	}
	if _, exists := set[symbol]; !exists {
		return false
	}

	delete(set, symbol)
	r.release(symbol)
	if len(set) == 0 {
		delete(r.clients, clientID)
	}

	r.logger.Debug("client unsubscribed",
		logger.String("client_id", clientID),
		logger.String("symbol", symbol))
	return true
}

// DropClient removes every subscription held by a client. Called when a
// websocket disconnects so refcounts never leak.
func (r *Registry) DropClient(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.clients[clientID]
	if !ok {
		return
	}
	for symbol := range set {
		r.release(symbol)
	}
	delete(r.clients, clientID)

	r.logger.Debug("client dropped",
		logger.String("client_id", clientID),
		logger.Int("released", len(set)))
}

// Pin marks a symbol as always watched regardless of client interest.
func (r *Registry) Pin(symbols ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range symbols {
		s = Normalize(s)
		if s == "" {
			continue
		}
		r.pinned[s] = struct{}{}
	}
}

// Unpin removes a symbol from the pinned set. Client subscriptions for
// it are untouched.
func (r *Registry) Unpin(symbol string) {
	symbol = Normalize(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pinned, symbol)
}

// Subscribed reports whether a client holds a subscription for a symbol.
func (r *Registry) Subscribed(clientID, symbol string) bool {
	symbol = Normalize(symbol)
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.clients[clientID]
	if !ok {
		return false
	}
	_, ok = set[symbol]
	return ok
}

// Watched reports whether a symbol is currently in the watched set.
func (r *Registry) Watched(symbol string) bool {
	symbol = Normalize(symbol)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.pinned[symbol]; ok {
		return true
	}
	return r.refs[symbol] > 0
}

// Symbols returns the sorted union of pinned and client-subscribed
// symbols. Sorted output keeps tick emission order stable.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	union := make(map[string]struct{}, len(r.pinned)+len(r.refs))
	for s := range r.pinned {
		union[s] = struct{}{}
	}
	for s, n := range r.refs {
		if n > 0 {
			union[s] = struct{}{}
		}
	}

	out := make([]string, 0, len(union))
	for s := range union {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ClientSymbols returns the sorted symbols a single client subscribed to.
func (r *Registry) ClientSymbols(clientID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.clients[clientID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Stats returns counters for the status endpoint.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := 0
	for _, n := range r.refs {
		subs += n
	}
	symbols := len(r.pinned)
	for s, n := range r.refs {
		if n > 0 {
			if _, ok := r.pinned[s]; !ok {
				symbols++
			}
		}
	}
	return Stats{
		Clients:       len(r.clients),
		Symbols:       symbols,
		Pinned:        len(r.pinned),
		Subscriptions: subs,
	}
}

// release decrements a refcount, deleting the entry at zero. Caller
// holds the write lock.
func (r *Registry) release(symbol string) {
	if n := r.refs[symbol]; n <= 1 {
		delete(r.refs, symbol)
	} else {
		r.refs[symbol] = n - 1
	}
}
