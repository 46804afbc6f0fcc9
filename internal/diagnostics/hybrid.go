// Package diagnostics holds read-only estimators that never place orders.
// The hybrid estimator is the one piece of the engine allowed to mix books
// from more than one venue: it exists purely to surface a cross-venue net
// edge number for an operator deciding whether a second venue is worth
// onboarding, not to drive an attempt.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/arbitgo/triarb/internal/gateway"
	"github.com/arbitgo/triarb/internal/kernel"
	"github.com/arbitgo/triarb/internal/monitor"
)

// Leg names one symbol on one venue's adapter — the hybrid estimator's three
// legs need not share a venue the way a live triangle's legs do.
type Leg struct {
	Venue   string
	Symbol  string
	Adapter gateway.Adapter
}

// HybridEstimator samples AB's ask, BC's bid, and AC's bid from three
// independently addressable legs and reports the resulting net edge as a
// gauge. It holds no state across samples and persists nothing.
type HybridEstimator struct {
	ab, bc, ac Leg
	metrics    *monitor.Metrics
	logger     *slog.Logger
}

func NewHybridEstimator(ab, bc, ac Leg, metrics *monitor.Metrics, logger *slog.Logger) *HybridEstimator {
	return &HybridEstimator{ab: ab, bc: bc, ac: ac, metrics: metrics, logger: logger}
}

// Sample fetches one top-of-book snapshot per leg, combines them with each
// leg's own taker fee, and records the resulting net edge. It returns the
// net edge (a fraction, not a percentage) for callers that want to log it
// directly.
func (h *HybridEstimator) Sample(ctx context.Context) (float64, error) {
	askAB, _, err := bestAsk(ctx, h.ab)
	if err != nil {
		return 0, fmt.Errorf("diagnostics: leg %s@%s: %w", h.ab.Symbol, h.ab.Venue, err)
	}
	bidBC, _, err := bestBid(ctx, h.bc)
	if err != nil {
		return 0, fmt.Errorf("diagnostics: leg %s@%s: %w", h.bc.Symbol, h.bc.Venue, err)
	}
	bidAC, _, err := bestBid(ctx, h.ac)
	if err != nil {
		return 0, fmt.Errorf("diagnostics: leg %s@%s: %w", h.ac.Symbol, h.ac.Venue, err)
	}

	feeAB, err := h.ab.Adapter.FetchFees(ctx, h.ab.Symbol)
	if err != nil {
		return 0, fmt.Errorf("diagnostics: fees %s@%s: %w", h.ab.Symbol, h.ab.Venue, err)
	}
	feeBC, err := h.bc.Adapter.FetchFees(ctx, h.bc.Symbol)
	if err != nil {
		return 0, fmt.Errorf("diagnostics: fees %s@%s: %w", h.bc.Symbol, h.bc.Venue, err)
	}
	feeAC, err := h.ac.Adapter.FetchFees(ctx, h.ac.Symbol)
	if err != nil {
		return 0, fmt.Errorf("diagnostics: fees %s@%s: %w", h.ac.Symbol, h.ac.Venue, err)
	}

	edges := []float64{
		(1 / askAB) * (1 - feeAB.Taker),
		bidBC * (1 - feeBC.Taker),
		bidAC * (1 - feeAC.Taker),
	}
	net := kernel.NetEdgeCycle(edges)

	h.metrics.HybridNetEdgePct.WithLabelValues(
		fmt.Sprintf("%s@%s", h.ab.Symbol, h.ab.Venue),
		fmt.Sprintf("%s@%s", h.bc.Symbol, h.bc.Venue),
		fmt.Sprintf("%s@%s", h.ac.Symbol, h.ac.Venue),
	).Set(net * 100)

	h.logger.Info("hybrid net edge sample",
		"ab", h.ab.Symbol, "ab_venue", h.ab.Venue,
		"bc", h.bc.Symbol, "bc_venue", h.bc.Venue,
		"ac", h.ac.Symbol, "ac_venue", h.ac.Venue,
		"net_pct", net*100,
	)

	return net, nil
}

func bestAsk(ctx context.Context, leg Leg) (price, size float64, err error) {
	book, err := leg.Adapter.FetchOrderBook(ctx, leg.Symbol, 1)
	if err != nil {
		return 0, 0, err
	}
	level, ok := book.BestAsk()
	if !ok {
		return 0, 0, fmt.Errorf("empty ask side")
	}
	return level.Price.InexactFloat64(), level.Size.InexactFloat64(), nil
}

func bestBid(ctx context.Context, leg Leg) (price, size float64, err error) {
	book, err := leg.Adapter.FetchOrderBook(ctx, leg.Symbol, 1)
	if err != nil {
		return 0, 0, err
	}
	level, ok := book.BestBid()
	if !ok {
		return 0, 0, fmt.Errorf("empty bid side")
	}
	return level.Price.InexactFloat64(), level.Size.InexactFloat64(), nil
}
