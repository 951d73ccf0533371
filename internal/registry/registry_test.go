package registry

import (
	"reflect"
	"testing"

	"StockPulse/pkg/logger"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	lgr, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return New(lgr)
}

func TestSubscribeNormalizesSymbol(t *testing.T) {
	r := newTestRegistry(t)

	if !r.Subscribe("c1", " aapl ") {
		t.Fatal("first subscribe should be new")
	}
	if r.Subscribe("c1", "AAPL") {
		t.Fatal("duplicate subscribe should not be new")
	}
	if got := r.ClientSymbols("c1"); !reflect.DeepEqual(got, []string{"AAPL"}) {
		t.Fatalf("client symbols = %v", got)
	}
}

func TestSubscribeEmptySymbol(t *testing.T) {
	r := newTestRegistry(t)
	if r.Subscribe("c1", "   ") {
		t.Fatal("blank symbol must be rejected")
	}
}

func TestUnsubscribeRefcounts(t *testing.T) {
	r := newTestRegistry(t)
	r.Subscribe("c1", "TSLA")
	r.Subscribe("c2", "TSLA")

	if !r.Unsubscribe("c1", "tsla") {
		t.Fatal("unsubscribe existing should return true")
	}
	if !r.Watched("TSLA") {
		t.Fatal("TSLA still has one subscriber")
	}
	if !r.Unsubscribe("c2", "TSLA") {
		t.Fatal("unsubscribe existing should return true")
	}
	if r.Watched("TSLA") {
		t.Fatal("TSLA should be unwatched after last unsubscribe")
	}
	if r.Unsubscribe("c2", "TSLA") {
		t.Fatal("double unsubscribe should return false")
	}
}

func TestDropClientReleasesAll(t *testing.T) {
	r := newTestRegistry(t)
	r.Subscribe("c1", "AAPL")
	r.Subscribe("c1", "MSFT")
	r.Subscribe("c2", "MSFT")

	r.DropClient("c1")

	if r.Watched("AAPL") {
		t.Fatal("AAPL had only c1")
	}
	if !r.Watched("MSFT") {
		t.Fatal("MSFT still held by c2")
	}
	if got := r.Stats().Clients; got != 1 {
		t.Fatalf("clients = %d, want 1", got)
	}
}

func TestSymbolsUnionWithPinned(t *testing.T) {
	r := newTestRegistry(t)
	r.Pin("nvda", "AAPL")
	r.Subscribe("c1", "GOOGL")
	r.Subscribe("c1", "AAPL")

	want := []string{"AAPL", "GOOGL", "NVDA"}
	if got := r.Symbols(); !reflect.DeepEqual(got, want) {
		t.Fatalf("symbols = %v, want %v", got, want)
	}

	// Unpinning drops a pinned-only symbol, while a symbol a client
	// still subscribes to stays watched.
	r.Unpin("NVDA")
	r.Unpin("AAPL")
	want = []string{"AAPL", "GOOGL"}
	if got := r.Symbols(); !reflect.DeepEqual(got, want) {
		t.Fatalf("symbols after unpin = %v, want %v", got, want)
	}
}

func TestStats(t *testing.T) {
	r := newTestRegistry(t)
	r.Pin("AAPL")
	r.Subscribe("c1", "AAPL")
	r.Subscribe("c1", "MSFT")
	r.Subscribe("c2", "MSFT")

	st := r.Stats()
	if st.Clients != 2 || st.Pinned != 1 || st.Subscriptions != 3 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.Symbols != 2 {
		t.Fatalf("symbols = %d, want 2", st.Symbols)
	}
}
