package marketdata

import (
	"testing"
	"time"

	"github.com/arbitgo/triarb/internal/domain"
)

func TestBookCache_UpdateAndGet(t *testing.T) {
	c := NewBookCache(time.Second)
	c.Update(domain.OrderBookSnapshot{Symbol: "ETH/USDT"})

	book, ok := c.Get("ETH/USDT")
	if !ok {
		t.Fatal("expected book to exist")
	}
	if book.Symbol != "ETH/USDT" {
		t.Fatalf("symbol = %q", book.Symbol)
	}
}

func TestBookCache_FreshnessAndAge(t *testing.T) {
	c := NewBookCache(50 * time.Millisecond)
	c.Update(domain.OrderBookSnapshot{Symbol: "ETH/USDT"})

	if !c.IsFresh("ETH/USDT", time.Now()) {
		t.Fatal("expected fresh right after update")
	}

	time.Sleep(70 * time.Millisecond)
	if c.IsFresh("ETH/USDT", time.Now()) {
		t.Fatal("expected stale after exceeding threshold")
	}

	age, ok := c.Age("ETH/USDT", time.Now())
	if !ok || age < 70*time.Millisecond {
		t.Fatalf("age = %v, ok = %v", age, ok)
	}
}

func TestBookCache_UnknownSymbolNeverFresh(t *testing.T) {
	c := NewBookCache(time.Second)
	if c.IsFresh("ETH/USDT", time.Now()) {
		t.Fatal("expected unknown symbol to be not fresh")
	}
	if _, ok := c.Age("ETH/USDT", time.Now()); ok {
		t.Fatal("expected no age for unknown symbol")
	}
}
