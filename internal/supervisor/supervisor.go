// Package supervisor owns a venue end to end: connecting its adapter,
// discovering triangles, driving the book multiplexer into the attempt
// engine, executing and persisting the attempts that clear every gate, and
// reporting a periodic heartbeat until its context is canceled.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arbitgo/triarb/internal/attempt"
	"github.com/arbitgo/triarb/internal/domain"
	"github.com/arbitgo/triarb/internal/execution"
	"github.com/arbitgo/triarb/internal/gateway"
	"github.com/arbitgo/triarb/internal/marketdata"
	"github.com/arbitgo/triarb/internal/monitor"
	"github.com/arbitgo/triarb/internal/persistence"
	"github.com/arbitgo/triarb/internal/triangle"
)

// Config bounds one venue's supervisor run. It mirrors the fields of
// attempt.Config plus the pieces of config.Config the supervisor itself
// needs to wire the pipeline together.
type Config struct {
	Venue            string
	Engine           attempt.Config
	SymbolAliases    map[string]string
	ManualTriangles  []triangle.Triangle
	StalenessHorizon time.Duration
	Heartbeat        time.Duration
	AttemptNotify    bool
}

// heartbeatStats accumulates the counters the spec's periodic summary log
// line reports, reset at the start of each heartbeat window.
type heartbeatStats struct {
	attempts      int64
	successes     int64
	spreadSum     float64
	latencySumMs  int64
	lastNet       float64
	lastPnL       float64
	windowStart   time.Time
}

// VenueSupervisor runs the full per-update pipeline for one venue: one
// goroutine owns the multiplexer loop and every downstream write, so none
// of its fields need synchronization beyond the heartbeat ticker's own
// channel.
type VenueSupervisor struct {
	cfg       Config
	adapter   gateway.Adapter
	store     persistence.Store
	metrics   *monitor.Metrics
	notifier  *monitor.Notifier
	logger    *slog.Logger

	books     *marketdata.BookCache
	engine    *attempt.Engine
	executor  *execution.Executor

	triangleIDs    map[triangle.Triangle]uuid.UUID
	stats          heartbeatStats
	recentAttempts *marketdata.RingBuffer[domain.TriangleAttempt]
}

// recentAttemptWindow bounds how many of the most recent attempts the
// supervisor keeps in memory for the heartbeat's skip-reason breakdown and
// for status readers that want a window without querying persistence.
const recentAttemptWindow = 64

// New constructs a venue supervisor. The adapter, store, metrics, and
// notifier are already configured for this venue; New only wires them
// together, it does not perform any network or database I/O itself — that
// happens in Run, so construction never blocks or fails.
func New(cfg Config, adapter gateway.Adapter, store persistence.Store, metrics *monitor.Metrics, notifier *monitor.Notifier, logger *slog.Logger) *VenueSupervisor {
	return &VenueSupervisor{
		cfg:            cfg,
		adapter:        adapter,
		store:          store,
		metrics:        metrics,
		notifier:       notifier,
		logger:         logger.With("venue", cfg.Venue),
		books:          marketdata.NewBookCache(cfg.StalenessHorizon),
		executor:       execution.NewExecutor(adapter, logger.With("venue", cfg.Venue)),
		triangleIDs:    make(map[triangle.Triangle]uuid.UUID),
		recentAttempts: marketdata.NewRingBuffer[domain.TriangleAttempt](recentAttemptWindow),
	}
}

// RecentAttempts returns up to n of the most recently evaluated attempts,
// newest last. It reads from an in-memory ring buffer rather than the
// persistence store, so it stays cheap enough for a status endpoint to call
// on every request.
func (s *VenueSupervisor) RecentAttempts(n int) []domain.TriangleAttempt {
	ptrs := s.recentAttempts.Recent(n)
	out := make([]domain.TriangleAttempt, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

// Run executes the seven-step venue lifecycle: connect, discover, persist
// triangle rows, subscribe, evaluate, heartbeat, and shut down cleanly when
// ctx is canceled. It blocks until the multiplexer loop exits.
func (s *VenueSupervisor) Run(ctx context.Context) error {
	if err := s.logStartingBalances(ctx); err != nil {
		s.logger.Warn("could not fetch starting balances", "error", err)
	}

	triangles, markets, err := s.discoverTriangles(ctx)
	if err != nil {
		return fmt.Errorf("supervisor: discover triangles: %w", err)
	}
	if len(triangles) == 0 {
		return fmt.Errorf("supervisor: no triangles discoverable for venue %s", s.cfg.Venue)
	}
	s.cfg.Engine.MinNotional = minNotionalBySymbol(markets, s.cfg.SymbolAliases)

	if err := s.store.Migrate(ctx); err != nil {
		return fmt.Errorf("supervisor: migrate store: %w", err)
	}
	for _, tri := range triangles {
		id, err := s.store.InsertTriangle(ctx, tri)
		if err != nil {
			return fmt.Errorf("supervisor: insert triangle %s/%s/%s: %w", tri.AB, tri.BC, tri.AC, err)
		}
		s.triangleIDs[tri] = id
	}

	s.engine = attempt.NewEngine(s.cfg.Engine, triangles, s.books, s.logger)

	mux, err := s.subscribe(ctx, triangles)
	if err != nil {
		return fmt.Errorf("supervisor: subscribe: %w", err)
	}

	s.stats.windowStart = time.Now()
	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- mux.Run(ctx, s.onUpdate) }()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case err := <-runErrCh:
			runErr = err
			break loop
		case <-heartbeat.C:
			s.emitHeartbeat()
		}
	}

	s.shutdown()
	return runErr
}

func (s *VenueSupervisor) logStartingBalances(ctx context.Context) error {
	balances, err := s.adapter.Balances(ctx)
	if err != nil {
		return err
	}
	for asset, bal := range balances {
		s.logger.Info("starting balance", "asset", asset, "free", bal.Free.String())
	}
	return nil
}

// discoverTriangles loads the venue's market list, resolves configured
// symbol aliases, enumerates every valid triangle, and keeps only the ones
// whose three legs all actually trade. A venue with manual triangles
// configured skips discovery and validates those directly instead. The
// venue's raw market map is returned alongside so callers can read
// per-symbol metadata, such as minimum notional, that discovery itself
// does not need.
func (s *VenueSupervisor) discoverTriangles(ctx context.Context) ([]triangle.Triangle, map[string]domain.MarketInfo, error) {
	markets, err := s.adapter.LoadMarkets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load markets: %w", err)
	}

	meta := make(map[string]triangle.MarketMeta, len(markets))
	for symbol, info := range markets {
		meta[resolveAlias(symbol, s.cfg.SymbolAliases)] = triangle.MarketMeta{Symbol: symbol, Active: info.Active}
	}

	if len(s.cfg.ManualTriangles) > 0 {
		out := make([]triangle.Triangle, 0, len(s.cfg.ManualTriangles))
		for _, tri := range s.cfg.ManualTriangles {
			if err := triangle.Validate(tri); err != nil {
				return nil, nil, err
			}
			out = append(out, tri)
		}
		return triangle.FilterByMarkets(out, meta), markets, nil
	}

	discovered := triangle.Discover(meta)
	return triangle.FilterByMarkets(discovered, meta), markets, nil
}

func resolveAlias(symbol string, aliases map[string]string) string {
	for canonical, aliased := range aliases {
		if aliased == symbol {
			return canonical
		}
	}
	return symbol
}

// minNotionalBySymbol re-keys a venue's raw market map by the engine's
// alias-resolved symbol form, so attempt.Config.MinNotional can be indexed
// the same way the engine indexes triangle legs.
func minNotionalBySymbol(markets map[string]domain.MarketInfo, aliases map[string]string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(markets))
	for symbol, info := range markets {
		out[resolveAlias(symbol, aliases)] = info.MinNotional
	}
	return out
}

// subscribe opens one order-book stream per distinct leg symbol across
// every discovered triangle and feeds them into a single multiplexer.
func (s *VenueSupervisor) subscribe(ctx context.Context, triangles []triangle.Triangle) (*marketdata.Multiplexer, error) {
	seen := make(map[string]bool)
	mux := marketdata.NewMultiplexer()
	for _, tri := range triangles {
		for _, symbol := range tri.Legs() {
			if seen[symbol] {
				continue
			}
			seen[symbol] = true
			stream, err := s.adapter.OrderBookStream(ctx, symbol)
			if err != nil {
				return nil, fmt.Errorf("subscribe %s: %w", symbol, err)
			}
			mux.Add(symbol, stream)
		}
	}
	return mux, nil
}

// onUpdate is the multiplexer's single callback, invoked once per book
// update on the caller's goroutine. It refreshes the book cache, evaluates
// every triangle the update touches, and executes, persists, and reports
// each attempt that clears the engine's gates.
func (s *VenueSupervisor) onUpdate(symbol string, snap domain.OrderBookSnapshot) {
	s.books.Update(snap)
	now := time.Now()

	attempts := s.engine.OnUpdate(symbol, now)
	for _, att := range attempts {
		s.handleAttempt(att)
	}
}

func (s *VenueSupervisor) handleAttempt(att domain.TriangleAttempt) {
	ctx, span := monitor.Tracer().Start(context.Background(), "handleAttempt",
		trace.WithAttributes(
			attribute.String("venue", s.cfg.Venue),
			attribute.String("ab", att.AB),
			attribute.String("bc", att.BC),
			attribute.String("ac", att.AC),
			attribute.Bool("ok", att.OK),
		),
	)
	defer span.End()

	tri := triangle.Triangle{AB: att.AB, BC: att.BC, AC: att.AC}
	triangleID := s.triangleIDs[tri]

	s.stats.attempts++
	s.stats.spreadSum += att.NetEst
	s.stats.lastNet = att.NetEst

	var fills []domain.Fill
	result := "skipped"

	if att.OK && att.QtyBase != nil {
		executed, execFills, err := s.executor.Run(ctx, att, *att.QtyBase)
		if err != nil {
			s.logger.Error("execution failed", "attempt_id", att.ID, "error", err)
			span.SetAttributes(attribute.String("error", err.Error()))
			att = executed
			fills = execFills
			result = "failed"
		} else {
			att = executed
			fills = execFills
			result = "filled"
			s.stats.successes++
			if att.RealizedUSDT != nil {
				realized, _ := att.RealizedUSDT.Float64()
				s.stats.lastPnL = realized
			}
			if s.cfg.AttemptNotify {
				s.notifier.NotifySuccess(ctx, s.cfg.Venue, att)
			}
		}
	}

	s.stats.latencySumMs += att.LatencyMs
	s.recentAttempts.Push(&att)

	if err := s.store.InsertAttempt(ctx, triangleID, att, fills); err != nil {
		s.logger.Error("failed to persist attempt", "attempt_id", att.ID, "error", err)
	}

	var realizedDelta float64
	if att.RealizedUSDT != nil {
		realizedDelta, _ = att.RealizedUSDT.Float64()
	}
	s.metrics.RecordAttempt(s.cfg.Venue, result, float64(att.LatencyMs)/1000, len(fills), realizedDelta)
	if !att.OK {
		s.metrics.RecordError(s.cfg.Venue, "attempt")
	}

	if s.cfg.AttemptNotify {
		s.notifier.NotifyAttempt(ctx, s.cfg.Venue, att)
	}
}

// emitHeartbeat logs the aggregated window summary and resets the counters
// for the next window.
func (s *VenueSupervisor) emitHeartbeat() {
	elapsed := time.Since(s.stats.windowStart).Seconds()
	var hitRate, avgSpread, avgLatency, attemptsPerSec float64
	if s.stats.attempts > 0 {
		hitRate = float64(s.stats.successes) / float64(s.stats.attempts)
		avgSpread = s.stats.spreadSum / float64(s.stats.attempts)
		avgLatency = float64(s.stats.latencySumMs) / float64(s.stats.attempts)
	}
	if elapsed > 0 {
		attemptsPerSec = float64(s.stats.attempts) / elapsed
	}

	s.logger.Info("heartbeat",
		"attempts", s.stats.attempts,
		"successes", s.stats.successes,
		"hit_rate", hitRate,
		"avg_spread", avgSpread,
		"avg_latency_ms", avgLatency,
		"last_net", s.stats.lastNet,
		"last_pnl", s.stats.lastPnL,
		"attempts_per_sec", attemptsPerSec,
		"recent_skip_reasons", s.recentSkipReasonCounts(),
	)

	s.stats = heartbeatStats{windowStart: time.Now()}
}

// recentSkipReasonCounts tallies skip reasons across the in-memory window of
// recently evaluated attempts, giving the heartbeat a cheap view of why
// attempts are being skipped without a persistence query.
func (s *VenueSupervisor) recentSkipReasonCounts() map[domain.SkipReason]int {
	counts := make(map[domain.SkipReason]int)
	for _, att := range s.RecentAttempts(recentAttemptWindow) {
		for _, reason := range att.SkipReasons {
			counts[reason]++
		}
	}
	return counts
}

// shutdown closes the persistence store and reports final balances, best
// effort: a failure fetching balances or closing the store is logged but
// never escalated, since the process is already exiting.
func (s *VenueSupervisor) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if balances, err := s.adapter.Balances(shutdownCtx); err != nil {
		s.logger.Warn("could not fetch final balances", "error", err)
	} else {
		s.notifier.NotifyStop(shutdownCtx, s.cfg.Venue, balances)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("failed to close persistence store", "error", err)
	}
	if err := s.adapter.Close(); err != nil {
		s.logger.Error("failed to close adapter", "error", err)
	}

	s.logger.Info("venue supervisor stopped")
}
