package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pairwatch/internal/alerting"
	"pairwatch/internal/command"
	"pairwatch/internal/pair"
	"pairwatch/internal/trade"
)

// SimulateAlert renders and delivers one synthetic trade alert through the
// same dispatcher the bot uses, so message formatting and delivery can be
// checked without waiting for a real trade.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if err := a.Config.RequireBot(); err != nil {
		return err
	}
	if opts.ChatID == 0 {
		return errors.New("--chat is required")
	}

	pairID := a.Config.Watch.DefaultPair
	if opts.Pair != "" {
		pairID = opts.Pair
	}
	if pairID == "" {
		return errors.New("--pair is required when watch.default_pair is not configured")
	}
	pairID, err := pair.Normalize(pairID)
	if err != nil {
		return fmt.Errorf("pair %q: %w", opts.Pair, err)
	}

	synthetic, err := syntheticTrade(opts, time.Now().UTC())
	if err != nil {
		return err
	}

	var snap *trade.PriceSnapshot
	if price, ok := a.newMarket().FetchPrice(ctx, pairID); ok {
		snap = &price
		if price.PriceUSD.Valid && price.PriceUSD.Decimal.IsPositive() && synthetic.AmountUSD.Valid {
			synthetic.PriceUSD = price.PriceUSD
			synthetic.AmountBase = decimal.NewNullDecimal(synthetic.AmountUSD.Decimal.Div(price.PriceUSD.Decimal).Round(6))
		}
	} else {
		a.Logger.Warn().Str("pair", pairID).Msg("price unavailable; sending alert without price block")
	}

	journal, closeJournal, err := a.openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	dispatcher := alerting.NewDispatcher(a.newSender(), journal, a.Logger)
	if !dispatcher.Dispatch(ctx, opts.ChatID, pairID, synthetic, snap) {
		return errors.New("simulated alert was not delivered; see log for details")
	}

	a.Logger.Info().Int64("chat_id", opts.ChatID).Str("pair", pairID).Str("trade_id", synthetic.ID).Msg("simulated alert delivered")
	return nil
}

func syntheticTrade(opts SimulateOptions, now time.Time) (trade.Trade, error) {
	side := trade.ParseSide(opts.Side)
	if opts.Side != "" && side == trade.SideUnknown {
		return trade.Trade{}, fmt.Errorf("unknown side %q; use buy or sell", opts.Side)
	}
	if opts.Side == "" {
		side = trade.SideBuy
	}

	usdArg := opts.USD
	if usdArg == "" {
		usdArg = "1000"
	}
	amount, err := command.ParseUSD(usdArg)
	if err != nil {
		return trade.Trade{}, err
	}

	ts := now.Unix()
	return trade.Trade{
		ID:        "sim-" + uuid.NewString(),
		Side:      side,
		AmountUSD: decimal.NewNullDecimal(amount),
		Timestamp: &ts,
	}, nil
}
