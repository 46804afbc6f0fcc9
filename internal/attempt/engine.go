// Package attempt implements the per-update evaluation pipeline: given a
// book update on one symbol, find every triangle it touches and run each
// through the freshness, edge, sizing, min-notional, and slippage gates.
package attempt

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arbitgo/triarb/internal/domain"
	"github.com/arbitgo/triarb/internal/kernel"
	"github.com/arbitgo/triarb/internal/triangle"
)

// BookSource is the read side of a marketdata.BookCache the engine needs.
// Narrowing to an interface keeps the engine testable without a full cache.
type BookSource interface {
	Get(symbol string) (domain.OrderBookSnapshot, bool)
	IsFresh(symbol string, now time.Time) bool
}

// Config bounds one venue's evaluation: how much notional to risk per
// attempt, the minimum edge worth acting on, and the slippage tolerance
// each leg's VWAP fill may incur relative to its top-of-book price.
type Config struct {
	Venue           string
	NotionalUSD     decimal.Decimal
	MinEdgeBps      int
	MaxSlippageBps  int
	TakerFee        float64
	// MinNotional is the venue's real per-symbol minimum order size, keyed
	// by the AB leg's symbol (the leg the sizing gate sizes against). A
	// symbol absent from the map is treated as unconstrained, since the
	// adapter did not report a minimum for it.
	MinNotional map[string]decimal.Decimal
}

// Engine evaluates triangles against a venue's book cache. It holds no
// mutable state of its own beyond its configuration, so one Engine can be
// shared read-only across goroutines as long as its BookSource is safe for
// the same — in practice the venue supervisor owns both on a single task.
type Engine struct {
	cfg        Config
	triangles  []triangle.Triangle
	bySymbol   map[string][]triangle.Triangle
	books      BookSource
	logger     *slog.Logger
}

func NewEngine(cfg Config, triangles []triangle.Triangle, books BookSource, logger *slog.Logger) *Engine {
	bySymbol := make(map[string][]triangle.Triangle)
	for _, tri := range triangles {
		for _, leg := range tri.Legs() {
			bySymbol[leg] = append(bySymbol[leg], tri)
		}
	}
	return &Engine{cfg: cfg, triangles: triangles, bySymbol: bySymbol, books: books, logger: logger}
}

// OnUpdate evaluates every triangle that includes symbol and returns one
// TriangleAttempt per triangle touched, in triangle-discovery order.
func (e *Engine) OnUpdate(symbol string, now time.Time) []domain.TriangleAttempt {
	triangles := e.bySymbol[symbol]
	if len(triangles) == 0 {
		return nil
	}
	out := make([]domain.TriangleAttempt, 0, len(triangles))
	for _, tri := range triangles {
		out = append(out, e.Evaluate(tri, now))
	}
	return out
}

// Evaluate runs the five-gate pipeline against one triangle: freshness,
// edge, depth sizing, minimum notional, and slippage. The first failing
// gate determines the attempt's SkipReason; an attempt that clears every
// gate comes back with OK=true and a sized quantity ready for execution.
func (e *Engine) Evaluate(tri triangle.Triangle, now time.Time) domain.TriangleAttempt {
	start := now
	attempt := domain.TriangleAttempt{
		ID:           uuid.Must(uuid.NewV7()),
		Venue:        e.cfg.Venue,
		AB:           tri.AB,
		BC:           tri.BC,
		AC:           tri.AC,
		Timestamp:    now,
		ThresholdBps: e.cfg.MinEdgeBps,
		NotionalUSD:  e.cfg.NotionalUSD,
		SlippageBps:  e.cfg.MaxSlippageBps,
	}

	books, reason := e.fetchFreshBooks(tri, now)
	if reason != "" {
		attempt.SkipReasons = append(attempt.SkipReasons, reason)
		attempt.LatencyMs = time.Since(start).Milliseconds()
		return attempt
	}

	bookAB, bookBC, bookAC := books[tri.AB], books[tri.BC], books[tri.AC]
	askAB, okAB := bookAB.BestAsk()
	bidBC, okBC := bookBC.BestBid()
	bidAC, okAC := bookAC.BestBid()
	if !okAB || !okBC || !okAC {
		attempt.SkipReasons = append(attempt.SkipReasons, domain.SkipEmptyBook)
		attempt.LatencyMs = time.Since(start).Milliseconds()
		return attempt
	}

	attempt.LegSnapshots = []domain.LegSnapshot{
		{Symbol: tri.AB, Ask: askAB.Price},
		{Symbol: tri.BC, Bid: bidBC.Price},
		{Symbol: tri.AC, Bid: bidAC.Price},
	}

	edge, err := kernel.NetEdge(askAB.Price.InexactFloat64(), bidBC.Price.InexactFloat64(), bidAC.Price.InexactFloat64(), e.cfg.TakerFee)
	if err != nil {
		attempt.SkipReasons = append(attempt.SkipReasons, domain.SkipEmptyBook)
		attempt.LatencyMs = time.Since(start).Milliseconds()
		return attempt
	}
	attempt.NetEst = edge

	thresholdFraction := float64(e.cfg.MinEdgeBps) / 10000
	if edge <= thresholdFraction {
		attempt.SkipReasons = append(attempt.SkipReasons, domain.SkipBelowThreshold)
		attempt.LatencyMs = time.Since(start).Milliseconds()
		return attempt
	}

	qtyBaseB := kernel.SizeFromDepth(e.cfg.NotionalUSD.InexactFloat64(), askAB.Price.InexactFloat64(), askAB.Size.InexactFloat64())
	if qtyBaseB <= 0 {
		attempt.SkipReasons = append(attempt.SkipReasons, domain.SkipBelowMinNotional)
		attempt.LatencyMs = time.Since(start).Milliseconds()
		return attempt
	}
	actualNotional := qtyBaseB * askAB.Price.InexactFloat64()
	if minNotional, ok := e.cfg.MinNotional[tri.AB]; ok && actualNotional < minNotional.InexactFloat64() {
		attempt.SkipReasons = append(attempt.SkipReasons, domain.SkipBelowMinNotional)
		attempt.LatencyMs = time.Since(start).Milliseconds()
		return attempt
	}
	attempt.QtyBase = &qtyBaseB

	slippageBps, ok := e.maxSlippageBps(books, tri, qtyBaseB)
	if !ok || slippageBps > float64(e.cfg.MaxSlippageBps) {
		attempt.SkipReasons = append(attempt.SkipReasons, domain.SkipSlippage)
		attempt.LatencyMs = time.Since(start).Milliseconds()
		return attempt
	}

	attempt.OK = true
	attempt.LatencyMs = time.Since(start).Milliseconds()
	return attempt
}

func (e *Engine) fetchFreshBooks(tri triangle.Triangle, now time.Time) (map[string]domain.OrderBookSnapshot, domain.SkipReason) {
	books := make(map[string]domain.OrderBookSnapshot, 3)
	for _, symbol := range tri.Legs() {
		book, ok := e.books.Get(symbol)
		if !ok {
			return nil, domain.SkipEmptyBook
		}
		if !e.books.IsFresh(symbol, now) {
			return nil, domain.SkipStaleBook
		}
		books[symbol] = book
	}
	return books, ""
}

// maxSlippageBps walks each leg's relevant side to depth qtyBaseB (converted
// to that leg's own base-quantity terms) and returns the worst VWAP
// deviation from the leg's top-of-book price, in basis points.
func (e *Engine) maxSlippageBps(books map[string]domain.OrderBookSnapshot, tri triangle.Triangle, qtyBaseB float64) (float64, bool) {
	// Leg 3 sells the C proceeds of leg 2, roughly qtyBaseB · bid_BC units.
	var qtyBaseC float64
	bookBC := books[tri.BC]
	if bidBC, ok := bookBC.BestBid(); ok {
		qtyBaseC = qtyBaseB * bidBC.Price.InexactFloat64()
	}
	legs := []struct {
		symbol string
		levels []domain.PriceLevel
		qty    float64
	}{
		{tri.AB, books[tri.AB].Asks, qtyBaseB},
		{tri.BC, books[tri.BC].Bids, qtyBaseB},
		{tri.AC, books[tri.AC].Bids, qtyBaseC},
	}

	worst := 0.0
	for _, leg := range legs {
		kernelLevels := toKernelLevels(leg.levels)
		top, _, ok := kernel.Top(kernelLevels)
		if !ok || top == 0 {
			return 0, false
		}
		avg, filled := kernel.VWAP(kernelLevels, leg.qty)
		if filled <= 0 {
			return 0, false
		}
		dev := (avg - top) / top * 10000
		if dev < 0 {
			dev = -dev
		}
		if dev > worst {
			worst = dev
		}
	}
	return worst, true
}

func toKernelLevels(levels []domain.PriceLevel) []kernel.Level {
	out := make([]kernel.Level, len(levels))
	for i, l := range levels {
		out[i] = kernel.Level{Price: l.Price.InexactFloat64(), Size: l.Size.InexactFloat64()}
	}
	return out
}
