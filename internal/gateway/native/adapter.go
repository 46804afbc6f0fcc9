// Package native implements gateway.Adapter against a single exchange's own
// websocket and REST APIs. It is the preferred adapter for any venue worth
// the integration cost; ccxtbridge exists for everything else.
package native

import (
	"context"
	"log/slog"

	"github.com/arbitgo/triarb/internal/domain"
	"github.com/arbitgo/triarb/internal/gateway"
)

// Adapter wires one venue's websocket order-book feed to a REST client for
// market metadata, order placement, and account queries. Quote assets
// spelled "/USD" are aliased to "/USDT" in LoadMarkets so triangle discovery
// never sees the two as distinct currencies. Only LoadMarkets rewrites
// symbols: FetchFees, FetchOrderBook, OrderBookStream and CreateOrder send
// the symbol they are given unchanged.
type Adapter struct {
	venue  string
	ws     *wsClient
	rest   *restClient
	logger *slog.Logger
}

// New builds a native adapter. wsURL and restURL are the venue's public
// endpoints; apiKey/apiSecret may be empty for market-data-only use (the
// fitness and markets-limits CLI subcommands never place orders).
func New(venue, wsURL, restURL, apiKey, apiSecret string, logger *slog.Logger) *Adapter {
	rl := gateway.NewRateLimiter()
	rl.AddBucket(domain.EndpointPublicData, 40, 20)
	rl.AddBucket(domain.EndpointPrivateData, 20, 10)
	rl.AddBucket(domain.EndpointOrderPlace, 15, 7)
	rl.AddBucket(domain.EndpointAccount, 10, 5)

	return &Adapter{
		venue:  venue,
		ws:     newWSClient(wsURL, venue, logger),
		rest:   newRESTClient(venue, restURL, apiKey, apiSecret, rl, logger),
		logger: logger,
	}
}

func (a *Adapter) Name() string { return a.venue }

func (a *Adapter) LoadMarkets(ctx context.Context) (map[string]domain.MarketInfo, error) {
	raw, err := a.rest.loadMarkets(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.MarketInfo, len(raw))
	for symbol, info := range raw {
		canonical := domain.NormalizeQuoteAlias(symbol)
		info.Symbol = canonical
		out[canonical] = info
	}
	return out, nil
}

func (a *Adapter) FetchFees(ctx context.Context, symbol string) (domain.FeeRates, error) {
	return a.rest.fetchFees(ctx, symbol)
}

func (a *Adapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBookSnapshot, error) {
	return a.rest.fetchOrderBook(ctx, symbol, depth)
}

func (a *Adapter) OrderBookStream(ctx context.Context, symbol string) (<-chan domain.OrderBookSnapshot, error) {
	if !a.ws.isConnected() {
		if err := a.ws.connect(ctx); err != nil {
			return nil, err
		}
		go a.ws.readPump(ctx)
	}
	ch := a.ws.subscribeBook(symbol)
	if err := a.ws.subscribe(symbol); err != nil {
		return nil, err
	}
	return ch, nil
}

func (a *Adapter) CreateOrder(ctx context.Context, spec domain.OrderSpec) (domain.Fill, error) {
	return a.rest.createOrder(ctx, spec)
}

func (a *Adapter) Balances(ctx context.Context) (map[string]domain.Balance, error) {
	return a.rest.balances(ctx)
}

func (a *Adapter) Close() error {
	return a.ws.close()
}

var _ gateway.Adapter = (*Adapter)(nil)
