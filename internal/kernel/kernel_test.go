package kernel

import (
	"math"
	"testing"
)

func TestNetEdge_MatchesClosedForm(t *testing.T) {
	cases := []struct {
		name                       string
		ask, bidBC, bidAC, fee     float64
	}{
		{"profitable", 2000, 0.051, 102.5, 0.001},
		{"unprofitable", 2000, 0.05, 99, 0.001},
		{"zero fee", 100, 1, 1, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := NetEdge(c.ask, c.bidBC, c.bidAC, c.fee)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := (c.bidBC * c.bidAC / c.ask) * math.Pow(1-c.fee, 3) - 1
			if math.Abs(got-want) > 1e-12 {
				t.Fatalf("got %v, want %v", got, want)
			}
		})
	}
}

func TestNetEdge_RejectsNonPositiveInputs(t *testing.T) {
	for _, bad := range [][4]float64{
		{0, 1, 1, 0.001},
		{1, 0, 1, 0.001},
		{1, 1, 0, 0.001},
		{-1, 1, 1, 0.001},
	} {
		if _, err := NetEdge(bad[0], bad[1], bad[2], bad[3]); err == nil {
			t.Fatalf("expected error for inputs %v", bad)
		} else if KindOf(err) != ErrKindInvalidQuote {
			t.Fatalf("expected ErrKindInvalidQuote, got %v", KindOf(err))
		}
	}
}

func TestNetEdgeCycle_IsProductMinusOne(t *testing.T) {
	got := NetEdgeCycle([]float64{1.01, 0.995, 1.002})
	want := 1.01*0.995*1.002 - 1
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSizeFromDepth_BoundedByNotionalAndDepth(t *testing.T) {
	cases := []struct {
		notional, price, qty float64
	}{
		{1000, 100, 5},
		{50, 100, 5},
		{1000, 100, 0.1},
	}
	for _, c := range cases {
		got := SizeFromDepth(c.notional, c.price, c.qty)
		if got > c.notional/c.price+1e-9 {
			t.Fatalf("size %v exceeds notional bound %v", got, c.notional/c.price)
		}
		if got > c.qty*0.9+1e-9 {
			t.Fatalf("size %v exceeds depth bound %v", got, c.qty*0.9)
		}
	}
}

func TestSizeFromDepth_ZeroInputs(t *testing.T) {
	if got := SizeFromDepth(100, 0, 5); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := SizeFromDepth(100, 10, 0); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestVWAP_WalksLevelsInOrder(t *testing.T) {
	levels := []Level{{Price: 100, Size: 1}, {Price: 101, Size: 1}, {Price: 102, Size: 5}}
	avg, filled := VWAP(levels, 2.5)
	wantFilled := 2.5
	wantAvg := (100*1 + 101*1 + 102*0.5) / 2.5
	if math.Abs(filled-wantFilled) > 1e-9 {
		t.Fatalf("filled = %v, want %v", filled, wantFilled)
	}
	if math.Abs(avg-wantAvg) > 1e-9 {
		t.Fatalf("avg = %v, want %v", avg, wantAvg)
	}
}

func TestVWAP_InsufficientDepth(t *testing.T) {
	levels := []Level{{Price: 100, Size: 1}}
	avg, filled := VWAP(levels, 5)
	if filled != 1 {
		t.Fatalf("filled = %v, want 1", filled)
	}
	if avg != 100 {
		t.Fatalf("avg = %v, want 100", avg)
	}
}

func TestTop_EmptyReturnsFalse(t *testing.T) {
	if _, _, ok := Top(nil); ok {
		t.Fatal("expected ok=false for empty levels")
	}
}
