package trade

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side classifies the taker direction of a trade.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = "UNKNOWN"
)

// Trade is a single normalised fill on the watched pair.
type Trade struct {
	ID         string
	Side       Side
	AmountBase decimal.NullDecimal
	AmountUSD  decimal.NullDecimal
	PriceUSD   decimal.NullDecimal
	// Timestamp is unix seconds; nil when the source omitted it.
	Timestamp *int64
}

// Unix returns the trade timestamp, treating a missing value as zero.
func (t Trade) Unix() int64 {
	if t.Timestamp == nil {
		return 0
	}
	return *t.Timestamp
}

// Time returns the trade timestamp as UTC time, or the zero time.
func (t Trade) Time() time.Time {
	if t.Timestamp == nil {
		return time.Time{}
	}
	return time.Unix(*t.Timestamp, 0).UTC()
}

// PriceSnapshot carries the pair's current price figures for display.
type PriceSnapshot struct {
	PriceUSD     decimal.NullDecimal `json:"price_usd"`
	PriceNative  decimal.NullDecimal `json:"price_native"`
	LiquidityUSD decimal.NullDecimal `json:"liquidity_usd"`
	URL          string              `json:"url"`
	BaseSymbol   string              `json:"base_symbol"`
	QuoteSymbol  string              `json:"quote_symbol"`
	FetchedAt    time.Time           `json:"fetched_at"`
}

// Label renders "BASE/QUOTE" when both symbols are known.
func (p PriceSnapshot) Label() string {
	base := strings.TrimSpace(p.BaseSymbol)
	quote := strings.TrimSpace(p.QuoteSymbol)
	switch {
	case base != "" && quote != "":
		return base + "/" + quote
	case base != "":
		return base
	default:
		return ""
	}
}
