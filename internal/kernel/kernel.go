// Package kernel implements the arbitrage math: edge formula, depth sizing,
// and the VWAP walk used by the slippage gate. It has no dependency on any
// venue, stream, or persistence type so it can be exercised with plain
// fixtures.
package kernel

// Level is a single price/size pair from either side of an order book.
type Level struct {
	Price float64
	Size  float64
}

// Top returns the first level of a monotone level list, or ok=false if the
// list is empty.
func Top(levels []Level) (price, size float64, ok bool) {
	if len(levels) == 0 {
		return 0, 0, false
	}
	return levels[0].Price, levels[0].Size, true
}

// NetEdge returns the fractional return of buying AB at ask, selling BC at
// bid, and selling AC at bid, after paying the taker fee three times:
//
//	(bidBC*bidAC/askAB) * (1-fee)^3 - 1
//
// All inputs must be strictly positive.
func NetEdge(askAB, bidBC, bidAC, fee float64) (float64, error) {
	if askAB <= 0 || bidBC <= 0 || bidAC <= 0 {
		return 0, ErrInvalidQuote
	}
	gross := (bidBC * bidAC) / askAB
	retention := 1 - fee
	return gross*retention*retention*retention - 1, nil
}

// NetEdgeCycle generalizes NetEdge to an arbitrary chain of realized edges,
// each already expressed as a per-leg multiplicative factor minus fees. It is
// used only by the read-only cross-venue diagnostic estimator; the live
// triangle path always uses NetEdge.
func NetEdgeCycle(edges []float64) float64 {
	product := 1.0
	for _, e := range edges {
		product *= e
	}
	return product - 1
}

// depthSafetyMargin caps sizing at 90% of the best level's displayed size, so
// a triangle's third leg still has room to fill against the remainder of the
// book after the first two legs walk it.
const depthSafetyMargin = 0.9

// SizeFromDepth returns the base-asset quantity obtainable for notionalQuote
// units of quote currency without exceeding the safety-margined top-of-book
// size. Returns 0 if either bestAskPrice or bestAskQty is zero.
func SizeFromDepth(notionalQuote, bestAskPrice, bestAskQty float64) float64 {
	if bestAskPrice == 0 || bestAskQty == 0 {
		return 0
	}
	fromNotional := notionalQuote / bestAskPrice
	fromDepth := bestAskQty * depthSafetyMargin
	if fromNotional < fromDepth {
		return fromNotional
	}
	return fromDepth
}

// VWAP walks levels (already ordered best-first) and returns the
// volume-weighted average price required to fill qty, along with the
// quantity it could actually source (less than qty if the levels run out).
func VWAP(levels []Level, qty float64) (avgPrice, filled float64) {
	remaining := qty
	var cost float64
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		take := remaining
		if lvl.Size < take {
			take = lvl.Size
		}
		cost += take * lvl.Price
		filled += take
		remaining -= take
	}
	if filled == 0 {
		return 0, 0
	}
	return cost / filled, filled
}
