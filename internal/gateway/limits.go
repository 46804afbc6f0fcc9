package gateway

import "fmt"

// FormatMarketLimits renders one symbol's minimum-notional and maker/taker
// fee rates into the CSV row markets-limits prints, bps rounded the way
// fees are normally quoted.
func FormatMarketLimits(symbol, minNotional string, maker, taker float64) string {
	return fmt.Sprintf("%s,%s,%.2f,%.2f", symbol, minNotional, maker*10000, taker*10000)
}
