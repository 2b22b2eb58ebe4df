package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotStarted is returned when scheduling before Start.
	ErrNotStarted = errors.New("scheduler: not started")
	// ErrInvalidInterval is returned for non-positive intervals.
	ErrInvalidInterval = errors.New("scheduler: interval must be positive")
)

// Tick is emitted every time a subscriber's timer fires. Handlers load
// whatever state they need when the tick arrives.
type Tick struct {
	Subscriber int64
	Seq        uint64
	At         time.Time
}

// TickFunc is invoked on every firing.
type TickFunc func(ctx context.Context, tick Tick) error

type job struct {
	interval time.Duration
	stop     chan struct{}
}

// Scheduler keeps at most one recurring timer per subscriber. Each timer
// runs in its own goroutine, so firings for one subscriber never overlap
// while different subscribers proceed independently.
type Scheduler struct {
	logger zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	tick   TickFunc
	jobs   map[int64]*job

	wg  sync.WaitGroup
	seq atomic.Uint64
}

// New constructs a Scheduler instance.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With().Str("component", "scheduler").Logger(),
		jobs:   make(map[int64]*job),
	}
}

// Start binds the scheduler to ctx and the tick handler.
func (s *Scheduler) Start(ctx context.Context, tick TickFunc) error {
	if tick == nil {
		return errors.New("scheduler: tick func is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return errors.New("scheduler: already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.tick = tick
	return nil
}

// Schedule replaces any timer of subscriber with a new one firing every
// interval. The first firing happens one interval from now.
func (s *Scheduler) Schedule(subscriber int64, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return ErrNotStarted
	}
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("scheduler stopped: %w", err)
	}

	replaced := s.cancelLocked(subscriber)
	j := &job{interval: interval, stop: make(chan struct{})}
	s.jobs[subscriber] = j

	s.wg.Add(1)
	go s.run(s.ctx, subscriber, j)

	s.logger.Debug().Int64("chat_id", subscriber).
		Dur("interval", interval).
		Bool("replaced", replaced).
		Msg("timer scheduled")
	return nil
}

// Cancel stops the subscriber's timer. It reports whether one existed.
// A firing already executing is allowed to finish.
func (s *Scheduler) Cancel(subscriber int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := s.cancelLocked(subscriber)
	if cancelled {
		s.logger.Debug().Int64("chat_id", subscriber).Msg("timer cancelled")
	}
	return cancelled
}

// Scheduled reports whether subscriber has an active timer.
func (s *Scheduler) Scheduled(subscriber int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[subscriber]
	return ok
}

// Interval returns the active timer period of subscriber.
func (s *Scheduler) Interval(subscriber int64) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[subscriber]
	if !ok {
		return 0, false
	}
	return j.interval, true
}

// Active counts active timers.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels every timer and waits for in-flight firings to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id := range s.jobs {
		s.cancelLocked(id)
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) cancelLocked(subscriber int64) bool {
	j, ok := s.jobs[subscriber]
	if !ok {
		return false
	}
	close(j.stop)
	delete(s.jobs, subscriber)
	return true
}

func (s *Scheduler) run(ctx context.Context, subscriber int64, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case at := <-ticker.C:
			// A cancel racing with the ticker wins.
			select {
			case <-j.stop:
				return
			default:
			}
			s.fire(ctx, Tick{Subscriber: subscriber, Seq: s.seq.Add(1), At: at.UTC()})
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, tick Tick) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Int64("chat_id", tick.Subscriber).
				Interface("panic", r).
				Msg("tick handler panicked")
		}
	}()

	s.logger.Debug().Int64("chat_id", tick.Subscriber).Uint64("seq", tick.Seq).Msg("executing scheduled tick")
	if err := s.tick(ctx, tick); err != nil {
		s.logger.Error().Err(err).Int64("chat_id", tick.Subscriber).Msg("tick execution failed")
	}
}
