package fetcher

import (
	"strings"

	"pairwatch/internal/trade"
)

// fieldRule maps an ordered list of upstream key aliases onto one canonical
// field. The first alias with a non-null value wins. Aliases may be dotted
// paths into nested objects.
type fieldRule struct {
	field   trade.Field
	aliases []string
}

var tradeRules = []fieldRule{
	{trade.FieldSide, []string{"side", "type", "kind", "tradeType", "direction"}},
	{trade.FieldID, []string{"txHash", "tx_hash", "txId", "tx_id", "signature", "hash", "id"}},
	{trade.FieldTimestamp, []string{"timestamp", "blockTimestamp", "blockUnixTime", "ts", "time", "date"}},
	{trade.FieldAmountUSD, []string{"amountUsd", "amount_usd", "volumeUsd", "valueUsd", "totalUsd", "usd", "volume.usd"}},
	{trade.FieldAmountBase, []string{"amountBase", "amount_base", "baseAmount", "tokenAmount", "amount"}},
	{trade.FieldPriceUSD, []string{"priceUsd", "price_usd", "tokenPriceUsd", "price"}},
}

const (
	snapPriceUSD    = "price_usd"
	snapPriceNative = "price_native"
	snapURL         = "url"
	snapBase        = "base_symbol"
	snapQuote       = "quote_symbol"
	snapLiquidity   = "liquidity_usd"
)

var priceRules = []fieldRule{
	{snapPriceUSD, []string{"priceUsd", "price_usd", "priceUSD"}},
	{snapPriceNative, []string{"priceNative", "price_native"}},
	{snapURL, []string{"url", "pairUrl", "link"}},
	{snapBase, []string{"baseToken.symbol", "baseSymbol", "base_symbol", "base.symbol"}},
	{snapQuote, []string{"quoteToken.symbol", "quoteSymbol", "quote_symbol", "quote.symbol"}},
	{snapLiquidity, []string{"liquidity.usd", "liquidityUsd", "liquidity_usd"}},
}

var (
	tradeListKeys = []string{"trades", "data", "items", "result", "transactions"}
	pairKeys      = []string{"pair", "data"}
	pairListKeys  = []string{"pairs", "data"}
)

func extract(obj map[string]any, rules []fieldRule) trade.Record {
	rec := make(trade.Record, len(rules))
	for _, rule := range rules {
		for _, alias := range rule.aliases {
			if v, ok := lookup(obj, alias); ok && v != nil {
				rec[rule.field] = v
				break
			}
		}
	}
	return rec
}

func lookup(obj map[string]any, path string) (any, bool) {
	var cur any = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// locateTrades finds the list of trade objects inside a payload. Nested
// envelopes such as {"data": {"items": [...]}} are followed one level.
func locateTrades(payload any) []map[string]any {
	switch v := payload.(type) {
	case []any:
		return objects(v)
	case map[string]any:
		for _, key := range tradeListKeys {
			switch inner := v[key].(type) {
			case []any:
				return objects(inner)
			case map[string]any:
				for _, nested := range tradeListKeys {
					if list, ok := inner[nested].([]any); ok {
						return objects(list)
					}
				}
			}
		}
	}
	return nil
}

// locatePair finds the pair object inside a price payload.
func locatePair(payload any) (map[string]any, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		if list, isList := payload.([]any); isList {
			if items := objects(list); len(items) > 0 {
				return items[0], true
			}
		}
		return nil, false
	}
	for _, key := range pairKeys {
		if inner, ok := obj[key].(map[string]any); ok {
			return inner, true
		}
	}
	for _, key := range pairListKeys {
		if list, ok := obj[key].([]any); ok {
			if items := objects(list); len(items) > 0 {
				return items[0], true
			}
			return nil, false
		}
	}
	return obj, true
}

func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
