package gateway

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/arbitgo/triarb/internal/domain"
)

type fakeAdapter struct {
	name string
	book domain.OrderBookSnapshot
	fees domain.FeeRates
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) LoadMarkets(context.Context) (map[string]domain.MarketInfo, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchFees(context.Context, string) (domain.FeeRates, error) { return f.fees, nil }
func (f *fakeAdapter) FetchOrderBook(context.Context, string, int) (domain.OrderBookSnapshot, error) {
	return f.book, nil
}
func (f *fakeAdapter) OrderBookStream(context.Context, string) (<-chan domain.OrderBookSnapshot, error) {
	return nil, nil
}
func (f *fakeAdapter) CreateOrder(context.Context, domain.OrderSpec) (domain.Fill, error) {
	panic("dry run should never call through to the wrapped adapter's CreateOrder")
}
func (f *fakeAdapter) Balances(context.Context) (map[string]domain.Balance, error) { return nil, nil }
func (f *fakeAdapter) Close() error                                                { return nil }

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestDryRunAdapter_CreateOrder_WalksBookForFill(t *testing.T) {
	inner := &fakeAdapter{
		name: "kcex",
		book: domain.OrderBookSnapshot{
			Symbol: "ETH/USDT",
			Asks: []domain.PriceLevel{
				{Price: dec("2000"), Size: dec("1")},
				{Price: dec("2001"), Size: dec("1")},
			},
		},
		fees: domain.FeeRates{Taker: 0.001},
	}
	d := NewDryRunAdapter(inner, nil, 0, 0, nil)

	fill, err := d.CreateOrder(context.Background(), domain.OrderSpec{
		Symbol: "ETH/USDT",
		Side:   domain.SideBuy,
		Qty:    dec("1.5"),
		TIF:    domain.TIFImmediateOrCancel,
		Type:   domain.OrderTypeMarket,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fill.DryRun {
		t.Fatal("expected DryRun=true")
	}
	if !fill.Qty.Equal(dec("1.5")) {
		t.Fatalf("qty = %s, want 1.5", fill.Qty)
	}
	wantAvg := dec("2000").Mul(dec("1")).Add(dec("2001").Mul(dec("0.5"))).Div(dec("1.5"))
	if !fill.Price.Equal(wantAvg) {
		t.Fatalf("avg price = %s, want %s", fill.Price, wantAvg)
	}
}

func TestDryRunAdapter_CreateOrder_EmptyBookErrors(t *testing.T) {
	inner := &fakeAdapter{name: "kcex", book: domain.OrderBookSnapshot{Symbol: "ETH/USDT"}}
	d := NewDryRunAdapter(inner, nil, 0, 0, nil)

	_, err := d.CreateOrder(context.Background(), domain.OrderSpec{
		Symbol: "ETH/USDT", Side: domain.SideBuy, Qty: dec("1"),
	})
	if err == nil {
		t.Fatal("expected error for empty book")
	}
}

func TestDryRunAdapter_NameSuffix(t *testing.T) {
	inner := &fakeAdapter{name: "kcex"}
	d := NewDryRunAdapter(inner, nil, 0, 0, nil)
	if d.Name() != "kcex_dry_run" {
		t.Fatalf("Name() = %q, want kcex_dry_run", d.Name())
	}
}
