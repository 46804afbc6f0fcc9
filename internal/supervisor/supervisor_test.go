package supervisor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/arbitgo/triarb/internal/attempt"
	"github.com/arbitgo/triarb/internal/domain"
	"github.com/arbitgo/triarb/internal/monitor"
	"github.com/arbitgo/triarb/internal/triangle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAdapter implements gateway.Adapter against an in-memory market list
// and book streams supplied by the test, with no real network I/O.
type fakeAdapter struct {
	name    string
	markets map[string]domain.MarketInfo
	streams map[string]chan domain.OrderBookSnapshot
	orders  []domain.OrderSpec
	closed  bool
}

func newFakeAdapter(name string, markets map[string]domain.MarketInfo) *fakeAdapter {
	return &fakeAdapter{name: name, markets: markets, streams: make(map[string]chan domain.OrderBookSnapshot)}
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) LoadMarkets(ctx context.Context) (map[string]domain.MarketInfo, error) {
	return f.markets, nil
}

func (f *fakeAdapter) FetchFees(ctx context.Context, symbol string) (domain.FeeRates, error) {
	return domain.FeeRates{Maker: 0.001, Taker: 0.001}, nil
}

func (f *fakeAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBookSnapshot, error) {
	return domain.OrderBookSnapshot{Venue: f.name, Symbol: symbol}, nil
}

func (f *fakeAdapter) OrderBookStream(ctx context.Context, symbol string) (<-chan domain.OrderBookSnapshot, error) {
	ch := make(chan domain.OrderBookSnapshot, 4)
	f.streams[symbol] = ch
	return ch, nil
}

func (f *fakeAdapter) CreateOrder(ctx context.Context, spec domain.OrderSpec) (domain.Fill, error) {
	f.orders = append(f.orders, spec)
	return domain.Fill{
		ID:     uuid.Must(uuid.NewV7()),
		Symbol: spec.Symbol,
		Side:   spec.Side,
		Price:  decimal.NewFromInt(1),
		Qty:    spec.Qty,
		Fee:    decimal.Zero,
	}, nil
}

func (f *fakeAdapter) Balances(ctx context.Context) (map[string]domain.Balance, error) {
	return map[string]domain.Balance{"USDT": {Venue: f.name, Asset: "USDT", Free: decimal.NewFromInt(1000)}}, nil
}

func (f *fakeAdapter) Close() error {
	f.closed = true
	for _, ch := range f.streams {
		close(ch)
	}
	return nil
}

// fakeStore implements persistence.Store entirely in memory.
type fakeStore struct {
	mu        sync.Mutex
	triangles map[triangle.Triangle]uuid.UUID
	attempts  int
	closed    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{triangles: make(map[triangle.Triangle]uuid.UUID)}
}

func (s *fakeStore) Migrate(ctx context.Context) error { return nil }

func (s *fakeStore) InsertTriangle(ctx context.Context, tri triangle.Triangle) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.triangles[tri]; ok {
		return id, nil
	}
	id := uuid.Must(uuid.NewV7())
	s.triangles[tri] = id
	return id, nil
}

func (s *fakeStore) InsertAttempt(ctx context.Context, triangleID uuid.UUID, attempt domain.TriangleAttempt, fills []domain.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return nil
}

func (s *fakeStore) Close() error {
	s.closed = true
	return nil
}

func testMarkets() map[string]domain.MarketInfo {
	return map[string]domain.MarketInfo{
		"ETH/USDT": {Symbol: "ETH/USDT", Active: true, MinNotional: decimal.NewFromInt(10)},
		"BTC/USDT": {Symbol: "BTC/USDT", Active: true, MinNotional: decimal.NewFromInt(10)},
		"ETH/BTC":  {Symbol: "ETH/BTC", Active: true, MinNotional: decimal.NewFromInt(1)},
	}
}

func newTestSupervisor(t *testing.T, adapter *fakeAdapter, store *fakeStore) *VenueSupervisor {
	t.Helper()
	cfg := Config{
		Venue: "kcex",
		Engine: attempt.Config{
			Venue:          "kcex",
			NotionalUSD:    decimal.NewFromInt(100),
			MinEdgeBps:     1,
			MaxSlippageBps: 100,
			TakerFee:       0.001,
		},
		StalenessHorizon: time.Minute,
		Heartbeat:        time.Hour,
		AttemptNotify:    false,
	}
	metrics := monitor.NewMetrics(prometheus.NewRegistry())
	notifier := monitor.NewNotifier("", time.Second, time.Second, discardLogger())
	return New(cfg, adapter, store, metrics, notifier, discardLogger())
}

func TestVenueSupervisor_DiscoverTriangles_FindsValidCycle(t *testing.T) {
	adapter := newFakeAdapter("kcex", testMarkets())
	s := newTestSupervisor(t, adapter, newFakeStore())

	triangles, markets, err := s.discoverTriangles(context.Background())
	if err != nil {
		t.Fatalf("discoverTriangles: %v", err)
	}
	if len(triangles) == 0 {
		t.Fatal("expected at least one discoverable triangle from ETH/USDT, ETH/BTC, BTC/USDT")
	}
	if len(markets) == 0 {
		t.Fatal("expected the raw market map to be returned alongside the discovered triangles")
	}
}

func TestVenueSupervisor_DiscoverTriangles_UsesManualOverrideWhenConfigured(t *testing.T) {
	adapter := newFakeAdapter("kcex", testMarkets())
	s := newTestSupervisor(t, adapter, newFakeStore())
	s.cfg.ManualTriangles = []triangle.Triangle{{AB: "ETH/USDT", BC: "ETH/BTC", AC: "BTC/USDT"}}

	triangles, _, err := s.discoverTriangles(context.Background())
	if err != nil {
		t.Fatalf("discoverTriangles: %v", err)
	}
	if len(triangles) != 1 {
		t.Fatalf("len(triangles) = %d, want 1", len(triangles))
	}
}

func TestVenueSupervisor_Run_StopsOnContextCancelAndClosesResources(t *testing.T) {
	adapter := newFakeAdapter("kcex", testMarkets())
	store := newFakeStore()
	s := newTestSupervisor(t, adapter, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Give Run time to subscribe before canceling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	if !store.closed {
		t.Error("expected persistence store to be closed on shutdown")
	}
	if !adapter.closed {
		t.Error("expected adapter to be closed on shutdown")
	}
}

func TestVenueSupervisor_OnUpdate_ExecutesAndPersistsProfitableAttempt(t *testing.T) {
	adapter := newFakeAdapter("kcex", testMarkets())
	store := newFakeStore()
	s := newTestSupervisor(t, adapter, store)

	tri := triangle.Triangle{AB: "ETH/USDT", BC: "ETH/BTC", AC: "BTC/USDT"}
	s.engine = attempt.NewEngine(s.cfg.Engine, []triangle.Triangle{tri}, s.books, s.logger)
	s.triangleIDs[tri] = uuid.Must(uuid.NewV7())

	now := time.Now()
	s.books.Update(domain.OrderBookSnapshot{
		Venue: "kcex", Symbol: "ETH/USDT",
		Asks: []domain.PriceLevel{{Price: decimal.NewFromFloat(2000), Size: decimal.NewFromFloat(10)}},
		Bids: []domain.PriceLevel{{Price: decimal.NewFromFloat(1999), Size: decimal.NewFromFloat(10)}},
		LocalTimestamp: now,
	})
	s.books.Update(domain.OrderBookSnapshot{
		Venue: "kcex", Symbol: "ETH/BTC",
		Asks: []domain.PriceLevel{{Price: decimal.NewFromFloat(0.05), Size: decimal.NewFromFloat(10)}},
		Bids: []domain.PriceLevel{{Price: decimal.NewFromFloat(0.0505), Size: decimal.NewFromFloat(10)}},
		LocalTimestamp: now,
	})
	s.books.Update(domain.OrderBookSnapshot{
		Venue: "kcex", Symbol: "BTC/USDT",
		Asks: []domain.PriceLevel{{Price: decimal.NewFromFloat(41000), Size: decimal.NewFromFloat(1)}},
		Bids: []domain.PriceLevel{{Price: decimal.NewFromFloat(41000), Size: decimal.NewFromFloat(1)}},
		LocalTimestamp: now,
	})

	s.onUpdate("BTC/USDT", domain.OrderBookSnapshot{Venue: "kcex", Symbol: "BTC/USDT", LocalTimestamp: now})

	if store.attempts == 0 {
		t.Fatal("expected at least one attempt to be persisted")
	}
	if s.stats.attempts == 0 {
		t.Fatal("expected heartbeat stats to record the attempt")
	}
	if recent := s.RecentAttempts(recentAttemptWindow); len(recent) == 0 {
		t.Fatal("expected the recent-attempts ring buffer to record the attempt")
	}
}
