// Package execution issues the three IOC legs of a triangle attempt against
// a venue adapter and computes realized PnL. There is no retry of a failed
// leg and no compensating order: IOC semantics plus a small notional cap are
// the entire risk control, per the partial-failure exposure model below.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbitgo/triarb/internal/domain"
	"github.com/arbitgo/triarb/internal/gateway"
)

type Executor struct {
	adapter gateway.Adapter
	quality *QualityTracker
	logger  *slog.Logger
}

func NewExecutor(adapter gateway.Adapter, logger *slog.Logger) *Executor {
	return &Executor{adapter: adapter, quality: NewQualityTracker(1000), logger: logger}
}

// Quality exposes the executor's running fill-quality tracker, read by the
// monitoring layer to report realized slippage independent of any single
// attempt's own slippage gate.
func (x *Executor) Quality() *QualityTracker {
	return x.quality
}

// expectedPrice finds the top-of-book snapshot recorded for symbol when the
// attempt was evaluated, used as the quality tracker's baseline.
func expectedPrice(tri domain.TriangleAttempt, symbol string, side domain.Side) decimal.Decimal {
	for _, snap := range tri.LegSnapshots {
		if snap.Symbol != symbol {
			continue
		}
		if side == domain.SideBuy {
			return snap.Ask
		}
		return snap.Bid
	}
	return decimal.Zero
}

// Run issues leg 1 (buy AB), leg 2 (sell BC), leg 3 (sell AC) sequentially
// for qtyBaseB units of AB's base asset. It returns the updated attempt
// (OK and RealizedUSDT set on full success, SkipReasons set otherwise) and
// whatever fills were actually obtained before any failure.
//
// Leg 2 is a same-base conversion of B into C; its fee is recorded on the
// fill but does not separately reduce realized PnL, since the conversion
// rate it pays is already embedded in leg 3's proceeds. See realized below.
func (x *Executor) Run(ctx context.Context, tri domain.TriangleAttempt, qtyBaseB float64) (domain.TriangleAttempt, []domain.Fill, error) {
	qty := decimal.NewFromFloat(qtyBaseB)

	leg1, err := x.adapter.CreateOrder(ctx, domain.OrderSpec{
		Symbol: tri.AB,
		Side:   domain.SideBuy,
		Qty:    qty,
		TIF:    domain.TIFImmediateOrCancel,
		Type:   domain.OrderTypeMarket,
	})
	if err != nil {
		x.logger.Error("leg 1 failed", "attempt_id", tri.ID, "symbol", tri.AB, "error", err)
		tri.OK = false
		tri.SkipReasons = append(tri.SkipReasons, domain.SkipAdapterError)
		return tri, nil, fmt.Errorf("execution: leg 1 (%s) failed: %w", tri.AB, err)
	}
	leg1.AttemptID, leg1.Leg = tri.ID, domain.LegAB
	fills := []domain.Fill{leg1}
	x.quality.RecordFill(tri.AB, string(domain.SideBuy), expectedPrice(tri, tri.AB, domain.SideBuy), leg1.Price)

	leg2, err := x.adapter.CreateOrder(ctx, domain.OrderSpec{
		Symbol: tri.BC,
		Side:   domain.SideSell,
		Qty:    leg1.Qty,
		TIF:    domain.TIFImmediateOrCancel,
		Type:   domain.OrderTypeMarket,
	})
	if err != nil {
		x.logger.Error("leg 2 failed, holding intermediary asset",
			"attempt_id", tri.ID, "symbol", tri.BC, "exposed_qty", leg1.Qty, "error", err)
		tri.OK = false
		tri.SkipReasons = append(tri.SkipReasons, domain.SkipAdapterError)
		return tri, fills, fmt.Errorf("execution: leg 2 (%s) failed holding %s %s: %w", tri.BC, leg1.Qty, tri.AB, err)
	}
	leg2.AttemptID, leg2.Leg = tri.ID, domain.LegBC
	fills = append(fills, leg2)
	x.quality.RecordFill(tri.BC, string(domain.SideSell), expectedPrice(tri, tri.BC, domain.SideSell), leg2.Price)

	leg3Qty := leg2.Qty.Mul(leg2.Price)
	leg3, err := x.adapter.CreateOrder(ctx, domain.OrderSpec{
		Symbol: tri.AC,
		Side:   domain.SideSell,
		Qty:    leg3Qty,
		TIF:    domain.TIFImmediateOrCancel,
		Type:   domain.OrderTypeMarket,
	})
	if err != nil {
		x.logger.Error("leg 3 failed, holding bridge asset",
			"attempt_id", tri.ID, "symbol", tri.AC, "exposed_qty", leg3Qty, "error", err)
		tri.OK = false
		tri.SkipReasons = append(tri.SkipReasons, domain.SkipAdapterError)
		return tri, fills, fmt.Errorf("execution: leg 3 (%s) failed holding %s: %w", tri.AC, leg3Qty, err)
	}
	leg3.AttemptID, leg3.Leg = tri.ID, domain.LegAC
	fills = append(fills, leg3)
	x.quality.RecordFill(tri.AC, string(domain.SideSell), expectedPrice(tri, tri.AC, domain.SideSell), leg3.Price)

	spent := leg1.Price.Mul(leg1.Qty).Add(leg1.Fee)
	proceeds := leg3.Price.Mul(leg3.Qty).Sub(leg3.Fee)
	realized := proceeds.Sub(spent)

	tri.OK = true
	tri.RealizedUSDT = &realized
	tri.DryRun = leg1.DryRun

	x.logger.Info("attempt executed",
		"attempt_id", tri.ID,
		"venue", tri.Venue,
		"realized_usdt", realized.String(),
		"dry_run", tri.DryRun,
		"latency_ms", time.Since(tri.Timestamp).Milliseconds(),
	)

	return tri, fills, nil
}
