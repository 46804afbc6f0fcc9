// Package gateway defines the venue-facing contract every exchange
// integration implements, plus the pieces shared across implementations:
// rate limiting and the dry-run decorator.
package gateway

import (
	"context"

	"github.com/arbitgo/triarb/internal/domain"
)

// Adapter is the single contract the rest of the engine depends on. A
// native websocket+REST implementation and a generic REST-polling
// implementation both satisfy it, and the dry-run decorator wraps either
// one transparently.
type Adapter interface {
	Name() string

	// LoadMarkets fetches the venue's tradable symbol list and metadata.
	// Engines call it once at startup and treat the result as static for
	// the life of the process.
	LoadMarkets(ctx context.Context) (map[string]domain.MarketInfo, error)

	// FetchFees resolves the taker fee rate for symbol, used by the
	// attempt engine's edge calculation. Implementations may cache this
	// per account tier.
	FetchFees(ctx context.Context, symbol string) (domain.FeeRates, error)

	// FetchOrderBook is a one-shot snapshot fetch, used by adapters whose
	// OrderBookStream is implemented as REST polling and by diagnostics
	// tooling that does not want a live subscription.
	FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBookSnapshot, error)

	// OrderBookStream delivers book snapshots for symbol until ctx is
	// canceled or an unrecoverable error occurs, at which point the
	// channel is closed.
	OrderBookStream(ctx context.Context, symbol string) (<-chan domain.OrderBookSnapshot, error)

	// CreateOrder submits spec and blocks until the venue reports a
	// terminal outcome — IOC orders never rest, so there is no separate
	// acknowledgement phase to track.
	CreateOrder(ctx context.Context, spec domain.OrderSpec) (domain.Fill, error)

	Balances(ctx context.Context) (map[string]domain.Balance, error)

	Close() error
}
