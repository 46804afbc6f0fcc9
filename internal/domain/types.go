package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
)

type TimeInForce string

const (
	TIFImmediateOrCancel TimeInForce = "IOC"
)

// LegName identifies which of a triangle's three markets a fill belongs to.
type LegName string

const (
	LegAB LegName = "AB"
	LegBC LegName = "BC"
	LegAC LegName = "AC"
)

// SkipReason is the closed set of classification strings an attempt that did
// not execute can carry.
type SkipReason string

const (
	SkipEmptyBook           SkipReason = "empty_book"
	SkipStaleBook           SkipReason = "stale_book"
	SkipBelowThreshold      SkipReason = "below_threshold"
	SkipBelowMinNotional    SkipReason = "below_min_notional"
	SkipSlippage            SkipReason = "slippage"
	SkipInsufficientBalance SkipReason = "insufficient_balance"
	SkipAdapterError        SkipReason = "adapter_error"
	SkipUnprofitable        SkipReason = "unprofitable"
)

type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBookSnapshot is a venue's full book for one symbol, replaced
// wholesale on each stream update rather than mutated in place.
type OrderBookSnapshot struct {
	Venue          string
	Symbol         string
	Bids           []PriceLevel
	Asks           []PriceLevel
	VenueTimestamp time.Time
	LocalTimestamp time.Time
}

func (ob *OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(ob.Bids) == 0 {
		return PriceLevel{}, false
	}
	return ob.Bids[0], true
}

func (ob *OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(ob.Asks) == 0 {
		return PriceLevel{}, false
	}
	return ob.Asks[0], true
}

// Age reports how stale the snapshot is relative to now, measured against
// the venue-reported timestamp when present and the local receipt time
// otherwise.
func (ob *OrderBookSnapshot) Age(now time.Time) time.Duration {
	ts := ob.VenueTimestamp
	if ts.IsZero() {
		ts = ob.LocalTimestamp
	}
	return now.Sub(ts)
}

// OrderSpec is an immutable request to place one leg of a triangle.
type OrderSpec struct {
	Symbol string
	Side   Side
	Qty    decimal.Decimal
	TIF    TimeInForce
	Type   OrderType
}

// Fill is the result of one submitted order, live or dry-run synthesized.
// The shape is identical in both modes.
type Fill struct {
	ID        uuid.UUID
	AttemptID uuid.UUID
	Venue     string
	Symbol    string
	Side      Side
	Leg       LegName
	Price     decimal.Decimal
	Qty       decimal.Decimal
	Fee       decimal.Decimal
	FeeRate   decimal.Decimal
	Notional  decimal.Decimal
	TIF       TimeInForce
	Type      OrderType
	DryRun    bool
	Timestamp time.Time
}

// LegSnapshot records the top-of-book state a triangle leg was evaluated
// against. The engine records one per leg on every attempt whose three books
// have a top level; the persistence stores do not write them.
type LegSnapshot struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
}

// TriangleAttempt is one evaluation outcome for one triangle on one update.
// OK=true implies exactly three correlated Fill rows exist and RealizedUSDT
// is set; OK=false implies SkipReasons is non-empty.
type TriangleAttempt struct {
	ID           uuid.UUID
	Venue        string
	AB, BC, AC   string
	Timestamp    time.Time
	OK           bool
	NetEst       float64
	RealizedUSDT *decimal.Decimal
	ThresholdBps int
	NotionalUSD  decimal.Decimal
	SlippageBps  int
	DryRun       bool
	LatencyMs    int64
	SkipReasons  []SkipReason
	LegSnapshots []LegSnapshot
	QtyBase      *float64
}

// FeeRates holds a venue's maker/taker fee for one symbol, cached after
// first resolution by the adapter.
type FeeRates struct {
	Maker float64
	Taker float64
}

// Balance is one asset's free balance on a venue.
type Balance struct {
	Venue string
	Asset string
	Free  decimal.Decimal
}

// MarketInfo is the subset of exchange market metadata the engine needs:
// whether a symbol currently trades and its minimum order cost.
type MarketInfo struct {
	Symbol      string
	Active      bool
	MinNotional decimal.Decimal
}

// EndpointCategory buckets venue API endpoints for independent rate limits.
type EndpointCategory string

const (
	EndpointPublicData  EndpointCategory = "public_data"
	EndpointPrivateData EndpointCategory = "private_data"
	EndpointOrderPlace  EndpointCategory = "order_place"
	EndpointAccount     EndpointCategory = "account"
)

type AlertSeverity string

const (
	AlertP1 AlertSeverity = "P1"
	AlertP2 AlertSeverity = "P2"
)
