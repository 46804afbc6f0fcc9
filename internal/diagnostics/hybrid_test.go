package diagnostics

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/arbitgo/triarb/internal/domain"
	"github.com/arbitgo/triarb/internal/gateway"
	"github.com/arbitgo/triarb/internal/monitor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAdapter answers FetchOrderBook/FetchFees from fixed values, standing
// in for one venue's leg of the hybrid estimator.
type stubAdapter struct {
	gateway.Adapter
	book domain.OrderBookSnapshot
	fees domain.FeeRates
}

func (s *stubAdapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBookSnapshot, error) {
	return s.book, nil
}

func (s *stubAdapter) FetchFees(ctx context.Context, symbol string) (domain.FeeRates, error) {
	return s.fees, nil
}

func TestHybridEstimator_Sample_ComputesNetEdgeAcrossLegs(t *testing.T) {
	ab := Leg{Venue: "kcex", Symbol: "ETH/USDT", Adapter: &stubAdapter{
		book: domain.OrderBookSnapshot{Asks: []domain.PriceLevel{{Price: decimal.NewFromFloat(2000), Size: decimal.NewFromInt(10)}}},
		fees: domain.FeeRates{Taker: 0.001},
	}}
	bc := Leg{Venue: "nobitex", Symbol: "ETH/BTC", Adapter: &stubAdapter{
		book: domain.OrderBookSnapshot{Bids: []domain.PriceLevel{{Price: decimal.NewFromFloat(0.051), Size: decimal.NewFromInt(10)}}},
		fees: domain.FeeRates{Taker: 0.001},
	}}
	ac := Leg{Venue: "kcex", Symbol: "BTC/USDT", Adapter: &stubAdapter{
		book: domain.OrderBookSnapshot{Bids: []domain.PriceLevel{{Price: decimal.NewFromFloat(41000), Size: decimal.NewFromInt(1)}}},
		fees: domain.FeeRates{Taker: 0.001},
	}}

	metrics := monitor.NewMetrics(prometheus.NewRegistry())
	h := NewHybridEstimator(ab, bc, ac, metrics, discardLogger())

	net, err := h.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if net <= 0 {
		t.Fatalf("net = %v, want a positive edge given the fixture's mispriced legs", net)
	}
}

func TestHybridEstimator_Sample_PropagatesEmptyBookError(t *testing.T) {
	ab := Leg{Venue: "kcex", Symbol: "ETH/USDT", Adapter: &stubAdapter{}}
	bc := Leg{Venue: "nobitex", Symbol: "ETH/BTC", Adapter: &stubAdapter{
		book: domain.OrderBookSnapshot{Bids: []domain.PriceLevel{{Price: decimal.NewFromFloat(0.05), Size: decimal.NewFromInt(1)}}},
	}}
	ac := Leg{Venue: "kcex", Symbol: "BTC/USDT", Adapter: &stubAdapter{
		book: domain.OrderBookSnapshot{Bids: []domain.PriceLevel{{Price: decimal.NewFromFloat(41000), Size: decimal.NewFromInt(1)}}},
	}}

	metrics := monitor.NewMetrics(prometheus.NewRegistry())
	h := NewHybridEstimator(ab, bc, ac, metrics, discardLogger())

	if _, err := h.Sample(context.Background()); err == nil {
		t.Fatal("expected an error when the AB leg's ask side is empty")
	}
}
