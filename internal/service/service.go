package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pairwatch/internal/dedup"
	"pairwatch/internal/fetcher"
	"pairwatch/internal/scheduler"
	"pairwatch/internal/trade"
	"pairwatch/internal/watch"
)

// Scheduler is the slice of the timer facility the service drives.
type Scheduler interface {
	Schedule(subscriber int64, interval time.Duration) error
	Cancel(subscriber int64) bool
	Scheduled(subscriber int64) bool
}

// Dispatcher sends one alert per call.
type Dispatcher interface {
	Dispatch(ctx context.Context, subscriber int64, pair string, t trade.Trade, snap *trade.PriceSnapshot) bool
}

// RejectedError carries a user-correctable reason; its text is safe to reply with.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return e.Reason
}

func rejected(format string, args ...any) error {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

// errStale aborts a tick commit whose batch no longer matches the state.
var errStale = errors.New("stale tick")

// TickReport summarises one polling pass.
type TickReport struct {
	Skipped   bool
	Discarded bool
	Seeded    bool
	Fetched   int
	New       int
	Filtered  int
	Sent      int
	Failed    int
	Dropped   int
	Cursor    watch.Cursor
}

// Status describes a subscriber for the status reply.
type Status struct {
	State     watch.State
	Scheduled bool
}

// Service orchestrates polling, dedup and alerting per subscriber and
// applies subscriber commands to the watch state and the scheduler.
type Service struct {
	store       *watch.Store
	scheduler   Scheduler
	trades      fetcher.TradeFetcher
	prices      fetcher.PriceFetcher
	engine      *dedup.Engine
	dispatcher  Dispatcher
	minInterval time.Duration
	logger      zerolog.Logger
}

// New constructs the watcher service.
func New(store *watch.Store, sched Scheduler, trades fetcher.TradeFetcher, prices fetcher.PriceFetcher, engine *dedup.Engine, dispatcher Dispatcher, minInterval time.Duration, logger zerolog.Logger) *Service {
	if engine == nil {
		engine = dedup.New(nil)
	}
	return &Service{
		store:       store,
		scheduler:   sched,
		trades:      trades,
		prices:      prices,
		engine:      engine,
		dispatcher:  dispatcher,
		minInterval: minInterval,
		logger:      logger.With().Str("component", "service").Logger(),
	}
}

// MinInterval is the smallest polling period accepted.
func (s *Service) MinInterval() time.Duration {
	return s.minInterval
}

// HandleTick is the scheduler callback. Data-availability problems never
// surface as errors.
func (s *Service) HandleTick(ctx context.Context, tick scheduler.Tick) error {
	report := s.Poll(ctx, tick.Subscriber)
	if report.Skipped {
		return nil
	}

	event := s.logger.Debug()
	if report.Sent > 0 || report.Failed > 0 || report.Discarded {
		event = s.logger.Info()
	}
	event.Int64("chat_id", tick.Subscriber).
		Uint64("seq", tick.Seq).
		Int("fetched", report.Fetched).
		Int("new", report.New).
		Int("filtered", report.Filtered).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Int("dropped", report.Dropped).
		Bool("seeded", report.Seeded).
		Bool("discarded", report.Discarded).
		Str("cursor", report.Cursor.String()).
		Msg("tick processed")
	return nil
}

// Poll runs one fetch, dedup and dispatch pass for subscriber. The trade
// fetch runs without holding the subscriber lock; the cursor commit is
// abandoned when the subscriber was disabled or re-pointed meanwhile.
func (s *Service) Poll(ctx context.Context, subscriber int64) TickReport {
	snapshot, ok := s.store.Get(subscriber)
	if !ok || !snapshot.Enabled || snapshot.Pair == "" {
		return TickReport{Skipped: true}
	}

	batch := s.trades.FetchTrades(ctx, snapshot.Pair)
	report := TickReport{Fetched: len(batch)}

	var result dedup.Result
	committed, err := s.store.Update(subscriber, func(cur *watch.State) error {
		if !cur.Enabled || cur.Epoch != snapshot.Epoch || cur.Pair != snapshot.Pair {
			return errStale
		}
		result = s.engine.Apply(cur.Cursor, batch, cur.MinUSD)
		cur.Cursor = result.Cursor
		return nil
	})
	if err != nil {
		report.Discarded = true
		report.Cursor = committed.Cursor
		return report
	}

	report.Seeded = result.Seeded
	report.New = len(result.New)
	report.Filtered = result.Filtered
	report.Cursor = committed.Cursor
	if len(result.New) == 0 {
		return report
	}

	var snap *trade.PriceSnapshot
	if price, ok := s.prices.FetchPrice(ctx, committed.Pair); ok {
		snap = &price
	}

	for i, t := range result.New {
		if !s.stillWatching(subscriber, committed) {
			report.Dropped = len(result.New) - i
			break
		}
		if s.dispatcher.Dispatch(ctx, subscriber, committed.Pair, t, snap) {
			report.Sent++
		} else {
			report.Failed++
		}
	}
	return report
}

func (s *Service) stillWatching(subscriber int64, committed watch.State) bool {
	cur, ok := s.store.Get(subscriber)
	return ok && cur.Enabled && cur.Epoch == committed.Epoch
}

// Enable turns polling on and (re)schedules the subscriber's timer.
func (s *Service) Enable(subscriber int64) (watch.State, error) {
	return s.store.Update(subscriber, func(st *watch.State) error {
		if st.Pair == "" {
			return rejected("No pair configured yet. Use: pair <id>")
		}
		if err := s.scheduler.Schedule(subscriber, st.Interval); err != nil {
			return fmt.Errorf("schedule subscriber: %w", err)
		}
		st.Enabled = true
		return nil
	})
}

// Disable turns polling off. It reports whether a timer was cancelled.
func (s *Service) Disable(subscriber int64) (watch.State, bool, error) {
	var cancelled bool
	state, err := s.store.Update(subscriber, func(st *watch.State) error {
		cancelled = s.scheduler.Cancel(subscriber)
		st.Enabled = false
		return nil
	})
	return state, cancelled, err
}

// SetInterval changes the polling period, rescheduling when enabled.
func (s *Service) SetInterval(subscriber int64, interval time.Duration) (watch.State, error) {
	if interval < s.minInterval {
		return s.store.Ensure(subscriber), rejected("Interval must be at least %s.", s.minInterval)
	}
	return s.store.Update(subscriber, func(st *watch.State) error {
		if st.Enabled {
			if err := s.scheduler.Schedule(subscriber, interval); err != nil {
				return fmt.Errorf("reschedule subscriber: %w", err)
			}
		}
		st.Interval = interval
		return nil
	})
}

// SetMinUSD changes the alert threshold.
func (s *Service) SetMinUSD(subscriber int64, minUSD decimal.Decimal) (watch.State, error) {
	if minUSD.IsNegative() {
		return s.store.Ensure(subscriber), rejected("Minimum must not be negative.")
	}
	return s.store.Update(subscriber, func(st *watch.State) error {
		st.MinUSD = minUSD
		return nil
	})
}

// SetPair re-points the subscriber. The cursor is reset so the next tick
// suppresses the new pair's backlog, and an active timer is replaced.
func (s *Service) SetPair(subscriber int64, pair string) (watch.State, error) {
	return s.store.Update(subscriber, func(st *watch.State) error {
		if st.Enabled {
			if err := s.scheduler.Schedule(subscriber, st.Interval); err != nil {
				return fmt.Errorf("reschedule subscriber: %w", err)
			}
		}
		st.ChangePair(pair)
		return nil
	})
}

// Status reports the subscriber's current settings.
func (s *Service) Status(subscriber int64) Status {
	return Status{
		State:     s.store.Ensure(subscriber),
		Scheduled: s.scheduler.Scheduled(subscriber),
	}
}

// Price fetches the current snapshot for the subscriber's pair.
func (s *Service) Price(ctx context.Context, subscriber int64) (string, trade.PriceSnapshot, bool, error) {
	state := s.store.Ensure(subscriber)
	if state.Pair == "" {
		return "", trade.PriceSnapshot{}, false, rejected("No pair configured yet. Use: pair <id>")
	}
	snap, ok := s.prices.FetchPrice(ctx, state.Pair)
	return state.Pair, snap, ok, nil
}
