package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pairwatch/internal/trade"
)

const (
	defaultPriceURL  = "https://api.dexscreener.com/latest/dex/pairs/solana/{pair}"
	defaultUserAgent = "pairwatch/1.0"
	pairPlaceholder  = "{pair}"
	maxPayloadBytes  = 4 << 20
)

// MarketOptions parameterise the HTTP market data gateway.
type MarketOptions struct {
	PriceURL  string
	TradesURL string
	Timeout   time.Duration
	UserAgent string
}

// Market fetches prices and trades over HTTP and absorbs every failure.
type Market struct {
	opts   MarketOptions
	logger zerolog.Logger
	client *http.Client
}

// NewMarket constructs a market data gateway.
func NewMarket(opts MarketOptions, logger zerolog.Logger) *Market {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if strings.TrimSpace(opts.PriceURL) == "" {
		opts.PriceURL = defaultPriceURL
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}

	return &Market{
		opts:   opts,
		logger: logger.With().Str("component", "market_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchPrice returns the pair's current price snapshot.
func (m *Market) FetchPrice(ctx context.Context, pair string) (trade.PriceSnapshot, bool) {
	payload, err := m.getJSON(ctx, m.opts.PriceURL, pair)
	if err != nil {
		m.logger.Warn().Err(err).Str("pair", pair).Msg("price fetch failed")
		return trade.PriceSnapshot{}, false
	}

	obj, ok := locatePair(payload)
	if !ok {
		m.logger.Warn().Str("pair", pair).Msg("price payload has no pair object")
		return trade.PriceSnapshot{}, false
	}

	rec := extract(obj, priceRules)
	snap := trade.PriceSnapshot{
		PriceUSD:     trade.ToDecimal(rec[snapPriceUSD]),
		PriceNative:  trade.ToDecimal(rec[snapPriceNative]),
		LiquidityUSD: trade.ToDecimal(rec[snapLiquidity]),
		URL:          trade.ToString(rec[snapURL]),
		BaseSymbol:   trade.ToString(rec[snapBase]),
		QuoteSymbol:  trade.ToString(rec[snapQuote]),
		FetchedAt:    time.Now().UTC(),
	}
	if !snap.PriceUSD.Valid && !snap.PriceNative.Valid {
		m.logger.Warn().Str("pair", pair).Msg("price payload carries no usable price")
		return trade.PriceSnapshot{}, false
	}
	return snap, true
}

// FetchTrades returns recent trades sorted ascending by timestamp.
func (m *Market) FetchTrades(ctx context.Context, pair string) []trade.Trade {
	if strings.TrimSpace(m.opts.TradesURL) == "" {
		m.logger.Warn().Msg("market.trades_url not configured")
		return nil
	}

	payload, err := m.getJSON(ctx, m.opts.TradesURL, pair)
	if err != nil {
		m.logger.Warn().Err(err).Str("pair", pair).Msg("trades fetch failed")
		return nil
	}

	items := locateTrades(payload)
	records := make([]trade.Record, 0, len(items))
	for _, item := range items {
		records = append(records, extract(item, tradeRules))
	}

	trades := trade.Normalize(records)
	m.logger.Debug().Str("pair", pair).Int("trades", len(trades)).Msg("trades fetched")
	return trades
}

func (m *Market) getJSON(ctx context.Context, tmpl, pair string) (any, error) {
	endpoint := strings.ReplaceAll(tmpl, pairPlaceholder, url.PathEscape(pair))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", m.opts.UserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, body)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("market api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("market api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("market api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("market api error (%d)", status)
}

var _ MarketData = (*Market)(nil)
