package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arbitgo/triarb/internal/domain"
)

// DryRunAdapter decorates any Adapter, replacing CreateOrder with a
// synthesized fill against the venue's live book instead of a real
// submission. Market data and fee methods pass through to the wrapped
// adapter. Balances does not: it returns this adapter's own paper account,
// and the wrapped adapter's live balances are never queried.
type DryRunAdapter struct {
	inner Adapter

	mu           sync.Mutex
	balances     map[string]domain.Balance
	latencyMs    int
	rejectRatePct float64
	rng          *rand.Rand
	logger       *slog.Logger
}

// NewDryRunAdapter wraps inner. initialBalances seeds the paper account;
// latencyMs and rejectRatePct model venue behavior a strategy should be
// robust to even though no order actually reaches the venue.
func NewDryRunAdapter(inner Adapter, initialBalances map[string]domain.Balance, latencyMs int, rejectRatePct float64, logger *slog.Logger) *DryRunAdapter {
	balances := make(map[string]domain.Balance, len(initialBalances))
	for k, v := range initialBalances {
		balances[k] = v
	}
	return &DryRunAdapter{
		inner:         inner,
		balances:      balances,
		latencyMs:     latencyMs,
		rejectRatePct: rejectRatePct,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:        logger,
	}
}

func (d *DryRunAdapter) Name() string { return d.inner.Name() + "_dry_run" }

func (d *DryRunAdapter) LoadMarkets(ctx context.Context) (map[string]domain.MarketInfo, error) {
	return d.inner.LoadMarkets(ctx)
}

func (d *DryRunAdapter) FetchFees(ctx context.Context, symbol string) (domain.FeeRates, error) {
	return d.inner.FetchFees(ctx, symbol)
}

func (d *DryRunAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBookSnapshot, error) {
	return d.inner.FetchOrderBook(ctx, symbol, depth)
}

func (d *DryRunAdapter) OrderBookStream(ctx context.Context, symbol string) (<-chan domain.OrderBookSnapshot, error) {
	return d.inner.OrderBookStream(ctx, symbol)
}

func (d *DryRunAdapter) Balances(ctx context.Context) (map[string]domain.Balance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]domain.Balance, len(d.balances))
	for k, v := range d.balances {
		out[k] = v
	}
	return out, nil
}

func (d *DryRunAdapter) Close() error { return d.inner.Close() }

// CreateOrder simulates an IOC market order by walking the adapter's current
// book the same way the live VWAP slippage gate does, so a dry-run fill and
// a live fill are computed from identical book data.
func (d *DryRunAdapter) CreateOrder(ctx context.Context, spec domain.OrderSpec) (domain.Fill, error) {
	if d.latencyMs > 0 {
		select {
		case <-time.After(time.Duration(d.latencyMs) * time.Millisecond):
		case <-ctx.Done():
			return domain.Fill{}, ctx.Err()
		}
	}

	if d.rejectRatePct > 0 && d.rng.Float64()*100 < d.rejectRatePct {
		return domain.Fill{}, fmt.Errorf("dry run: simulated rejection for %s", spec.Symbol)
	}

	book, err := d.inner.FetchOrderBook(ctx, spec.Symbol, 50)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("dry run: fetch book for fill simulation: %w", err)
	}

	var levels []domain.PriceLevel
	if spec.Side == domain.SideBuy {
		levels = book.Asks
	} else {
		levels = book.Bids
	}
	if len(levels) == 0 {
		return domain.Fill{}, fmt.Errorf("dry run: empty book for %s", spec.Symbol)
	}

	price, filled := vwapFill(levels, spec.Qty)
	if filled.IsZero() {
		return domain.Fill{}, fmt.Errorf("dry run: no depth available for %s", spec.Symbol)
	}

	fees, err := d.inner.FetchFees(ctx, spec.Symbol)
	if err != nil {
		fees = domain.FeeRates{}
	}
	feeRate := decimal.NewFromFloat(fees.Taker)
	notional := price.Mul(filled)
	fee := notional.Mul(feeRate)

	return domain.Fill{
		ID:        uuid.New(),
		Venue:     d.inner.Name(),
		Symbol:    spec.Symbol,
		Side:      spec.Side,
		Price:     price,
		Qty:       filled,
		Fee:       fee,
		FeeRate:   feeRate,
		Notional:  notional,
		TIF:       spec.TIF,
		Type:      spec.Type,
		DryRun:    true,
		Timestamp: time.Now(),
	}, nil
}

func vwapFill(levels []domain.PriceLevel, qty decimal.Decimal) (avgPrice, filled decimal.Decimal) {
	remaining := qty
	cost := decimal.Zero
	filled = decimal.Zero
	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		take := decimal.Min(remaining, lvl.Size)
		cost = cost.Add(take.Mul(lvl.Price))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
	}
	if filled.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return cost.Div(filled), filled
}

var _ Adapter = (*DryRunAdapter)(nil)
