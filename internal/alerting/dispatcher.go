package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pairwatch/internal/storage"
	"pairwatch/internal/trade"
)

// Journal records dispatched alerts.
type Journal interface {
	InsertAlert(ctx context.Context, alert storage.AlertRecord) (storage.AlertRecord, error)
}

// Dispatcher turns one trade into exactly one outbound message. Delivery is
// at-most-once: failures are logged and never retried.
type Dispatcher struct {
	sender  Sender
	journal Journal
	logger  zerolog.Logger
}

// NewDispatcher constructs a Dispatcher. journal may be nil.
func NewDispatcher(sender Sender, journal Journal, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		journal: journal,
		logger:  logger.With().Str("component", "alert_dispatcher").Logger(),
	}
}

// Dispatch renders t and sends it to subscriber. It reports whether the
// message was accepted by the sender.
func (d *Dispatcher) Dispatch(ctx context.Context, subscriber int64, pair string, t trade.Trade, snap *trade.PriceSnapshot) bool {
	label := pair
	if snap != nil && snap.Label() != "" {
		label = snap.Label()
	}

	correlation := uuid.New()
	logger := d.logger.With().
		Int64("chat_id", subscriber).
		Str("alert_id", correlation.String()).
		Str("trade_id", t.ID).
		Logger()

	sendErr := d.sender.Send(ctx, subscriber, Render(label, t, snap))
	if sendErr != nil {
		logger.Warn().Err(sendErr).Msg("alert delivery failed")
	} else {
		logger.Info().Str("side", string(t.Side)).Msg("alert sent")
	}

	d.record(ctx, logger, storage.AlertRecord{
		ID:         correlation,
		ChatID:     subscriber,
		Pair:       pair,
		TradeID:    t.ID,
		Side:       string(t.Side),
		AmountUSD:  t.AmountUSD,
		AmountBase: t.AmountBase,
		PriceUSD:   t.PriceUSD,
		TradeTime:  tradeTime(t),
		Delivered:  sendErr == nil,
		Error:      errString(sendErr),
	})
	return sendErr == nil
}

func (d *Dispatcher) record(ctx context.Context, logger zerolog.Logger, rec storage.AlertRecord) {
	if d.journal == nil {
		return
	}
	if _, err := d.journal.InsertAlert(ctx, rec); err != nil {
		logger.Warn().Err(err).Msg("journal alert failed")
	}
}

func tradeTime(t trade.Trade) *time.Time {
	if t.Timestamp == nil {
		return nil
	}
	ts := t.Time()
	return &ts
}

func errString(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
