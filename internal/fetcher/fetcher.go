package fetcher

import (
	"context"

	"pairwatch/internal/trade"
)

// PriceFetcher retrieves the current price snapshot of a pair. The boolean
// is false when no snapshot is available; failures never surface as errors.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, pair string) (trade.PriceSnapshot, bool)
}

// TradeFetcher retrieves the most recent trades of a pair, sorted ascending
// by timestamp. An unavailable source yields an empty slice.
type TradeFetcher interface {
	FetchTrades(ctx context.Context, pair string) []trade.Trade
}

// MarketData combines both halves of the upstream data source.
type MarketData interface {
	PriceFetcher
	TradeFetcher
}
