// Package marketdata holds the per-venue order book cache and the stream
// multiplexer that feeds it, both designed around a single owning goroutine
// per venue rather than shared mutable state.
package marketdata

import (
	"time"

	"github.com/arbitgo/triarb/internal/domain"
)

// BookCache holds the latest order book snapshot per symbol for one venue.
// It is intentionally unsynchronized: the venue supervisor's single task is
// its only reader and writer, so a mutex would protect nothing. Sharing a
// BookCache across goroutines is a misuse of the type, not a supported mode.
type BookCache struct {
	books      map[string]domain.OrderBookSnapshot
	lastUpdate map[string]time.Time
	staleAfter time.Duration
}

func NewBookCache(staleAfter time.Duration) *BookCache {
	return &BookCache{
		books:      make(map[string]domain.OrderBookSnapshot),
		lastUpdate: make(map[string]time.Time),
		staleAfter: staleAfter,
	}
}

func (c *BookCache) Update(snap domain.OrderBookSnapshot) {
	if snap.LocalTimestamp.IsZero() {
		snap.LocalTimestamp = time.Now()
	}
	c.books[snap.Symbol] = snap
	c.lastUpdate[snap.Symbol] = time.Now()
}

func (c *BookCache) Get(symbol string) (domain.OrderBookSnapshot, bool) {
	book, ok := c.books[symbol]
	return book, ok
}

// IsFresh reports whether symbol has been updated within staleAfter. A
// symbol with no update on record is never fresh.
func (c *BookCache) IsFresh(symbol string, now time.Time) bool {
	t, ok := c.lastUpdate[symbol]
	if !ok {
		return false
	}
	return now.Sub(t) < c.staleAfter
}

func (c *BookCache) Age(symbol string, now time.Time) (time.Duration, bool) {
	t, ok := c.lastUpdate[symbol]
	if !ok {
		return 0, false
	}
	return now.Sub(t), true
}

// Symbols returns every symbol with at least one recorded update.
func (c *BookCache) Symbols() []string {
	out := make([]string, 0, len(c.books))
	for s := range c.books {
		out = append(out, s)
	}
	return out
}
