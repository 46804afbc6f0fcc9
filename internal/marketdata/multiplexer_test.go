package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/arbitgo/triarb/internal/domain"
)

func TestMultiplexer_DeliversFromAllSymbols(t *testing.T) {
	ab := make(chan domain.OrderBookSnapshot, 1)
	bc := make(chan domain.OrderBookSnapshot, 1)
	ab <- domain.OrderBookSnapshot{Symbol: "ETH/USDT"}
	bc <- domain.OrderBookSnapshot{Symbol: "BTC/ETH"}
	close(ab)
	close(bc)

	mux := NewMultiplexer()
	mux.Add("ETH/USDT", ab)
	mux.Add("BTC/ETH", bc)

	seen := map[string]int{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := mux.Run(ctx, func(symbol string, _ domain.OrderBookSnapshot) {
		seen[symbol]++
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seen["ETH/USDT"] != 1 || seen["BTC/ETH"] != 1 {
		t.Fatalf("unexpected delivery counts: %v", seen)
	}
}

func TestMultiplexer_StopsOnContextCancel(t *testing.T) {
	ab := make(chan domain.OrderBookSnapshot)
	mux := NewMultiplexer()
	mux.Add("ETH/USDT", ab)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Run(ctx, func(string, domain.OrderBookSnapshot) {}) }()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestMultiplexer_NoSingleSymbolStarvesAnother(t *testing.T) {
	busy := make(chan domain.OrderBookSnapshot, 100)
	quiet := make(chan domain.OrderBookSnapshot, 1)
	for i := 0; i < 100; i++ {
		busy <- domain.OrderBookSnapshot{Symbol: "BUSY"}
	}
	quiet <- domain.OrderBookSnapshot{Symbol: "QUIET"}

	mux := NewMultiplexer()
	mux.Add("BUSY", busy)
	mux.Add("QUIET", quiet)

	var quietSeenAt int
	count := 0
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		mux.Run(ctx, func(symbol string, _ domain.OrderBookSnapshot) {
			count++
			if symbol == "QUIET" && quietSeenAt == 0 {
				quietSeenAt = count
			}
			if count >= 101 {
				cancel()
			}
		})
	}()
	<-ctx.Done()

	if quietSeenAt == 0 {
		t.Fatal("quiet symbol was never delivered")
	}
	if quietSeenAt > 50 {
		t.Fatalf("quiet symbol starved: delivered at position %d of 101", quietSeenAt)
	}
}
