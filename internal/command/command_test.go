package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pairwatch/internal/service"
	"pairwatch/internal/trade"
	"pairwatch/internal/watch"
)

type fakeWatcher struct {
	state     watch.State
	scheduled bool
	calls     []string
	enableErr error
	priceOK   bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{state: watch.State{Pair: "PAIR", Interval: time.Minute, MinUSD: decimal.NewFromInt(10)}}
}

func (f *fakeWatcher) Enable(int64) (watch.State, error) {
	f.calls = append(f.calls, "enable")
	if f.enableErr != nil {
		return f.state, f.enableErr
	}
	f.state.Enabled, f.scheduled = true, true
	return f.state, nil
}

func (f *fakeWatcher) Disable(int64) (watch.State, bool, error) {
	f.calls = append(f.calls, "disable")
	was := f.scheduled
	f.state.Enabled, f.scheduled = false, false
	return f.state, was, nil
}

func (f *fakeWatcher) SetInterval(_ int64, d time.Duration) (watch.State, error) {
	f.calls = append(f.calls, "interval")
	f.state.Interval = d
	return f.state, nil
}

func (f *fakeWatcher) SetMinUSD(_ int64, v decimal.Decimal) (watch.State, error) {
	f.calls = append(f.calls, "min")
	f.state.MinUSD = v
	return f.state, nil
}

func (f *fakeWatcher) SetPair(_ int64, p string) (watch.State, error) {
	f.calls = append(f.calls, "pair")
	f.state.ChangePair(p)
	return f.state, nil
}

func (f *fakeWatcher) Status(int64) service.Status {
	return service.Status{State: f.state, Scheduled: f.scheduled}
}

func (f *fakeWatcher) Price(context.Context, int64) (string, trade.PriceSnapshot, bool, error) {
	if !f.priceOK {
		return f.state.Pair, trade.PriceSnapshot{}, false, nil
	}
	return f.state.Pair, trade.PriceSnapshot{
		PriceUSD:    decimal.NewNullDecimal(decimal.RequireFromString("0.5")),
		BaseSymbol:  "TKN",
		QuoteSymbol: "SOL",
	}, true, nil
}

func newRouter(w Watcher) *Router {
	return NewRouter(w, 10*time.Second, zerolog.Nop())
}

func TestParse(t *testing.T) {
	verb, args := Parse("/Interval@PairWatchBot  30s ")
	require.Equal(t, "interval", verb)
	require.Equal(t, []string{"30s"}, args)

	verb, args = Parse("watch on")
	require.Equal(t, "watch", verb)
	require.Equal(t, []string{"on"}, args)

	verb, args = Parse("   ")
	require.Equal(t, "", verb)
	require.Empty(t, args)
}

func TestParseInterval(t *testing.T) {
	floor := 10 * time.Second
	ok := map[string]time.Duration{
		"10":   10 * time.Second,
		"45s":  45 * time.Second,
		"5m":   5 * time.Minute,
		"2H":   2 * time.Hour,
		" 90 ": 90 * time.Second,
	}
	for in, want := range ok {
		got, err := ParseInterval(in, floor)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "abc", "5", "9s", "1.5m", "-10", "10d", "1m30s", "0m"} {
		_, err := ParseInterval(in, floor)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, in)
	}
}

func TestParseUSD(t *testing.T) {
	v, err := ParseUSD("$1,250.75")
	require.NoError(t, err)
	require.True(t, v.Equal(decimal.RequireFromString("1250.75")))

	v, err = ParseUSD("0")
	require.NoError(t, err)
	require.True(t, v.IsZero())

	for _, in := range []string{"-5", "ten", ""} {
		_, err := ParseUSD(in)
		require.Error(t, err, in)
	}
}

func TestFormatInterval(t *testing.T) {
	require.Equal(t, "45s", FormatInterval(45*time.Second))
	require.Equal(t, "90s", FormatInterval(90*time.Second))
	require.Equal(t, "5m", FormatInterval(5*time.Minute))
	require.Equal(t, "2h", FormatInterval(2*time.Hour))
}

func TestHandleWatchOnOff(t *testing.T) {
	w := newFakeWatcher()
	r := newRouter(w)
	ctx := context.Background()

	require.Equal(t, "Watching PAIR every 1m for trades of at least $10.", r.Handle(ctx, 1, "/watch on"))
	require.Equal(t, "Watching stopped.", r.Handle(ctx, 1, "watch OFF"))
	require.Equal(t, "Watching was already off.", r.Handle(ctx, 1, "/stop"))
	require.Contains(t, r.Handle(ctx, 1, "/start"), "Watching PAIR")
	require.Equal(t, "Usage: /watch on|off", r.Handle(ctx, 1, "/watch maybe"))
	require.Equal(t, []string{"enable", "disable", "disable", "enable"}, w.calls)
}

func TestHandleIntervalValidation(t *testing.T) {
	w := newFakeWatcher()
	r := newRouter(w)
	ctx := context.Background()

	require.Equal(t, "Interval must be at least 10s.", r.Handle(ctx, 1, "/interval 5s"))
	require.Empty(t, w.calls, "validation errors must not reach the watcher")

	require.Equal(t, "Interval set to 2m.", r.Handle(ctx, 1, "/interval 2m"))
	require.Equal(t, "Interval set to 30s.", r.Handle(ctx, 1, "/setinterval 30"))
	require.Equal(t, "Usage: /setinterval <seconds>", r.Handle(ctx, 1, "/setinterval 30s"))
	require.Equal(t, "Usage: /interval <30s|5m|1h>", r.Handle(ctx, 1, "/interval"))
}

func TestHandleMin(t *testing.T) {
	w := newFakeWatcher()
	r := newRouter(w)

	require.Equal(t, "Minimum trade size set to $2500.", r.Handle(context.Background(), 1, "/min $2,500"))
	require.Contains(t, r.Handle(context.Background(), 1, "/min lots"), "Invalid amount")
	require.Equal(t, []string{"min"}, w.calls)
}

func TestHandlePair(t *testing.T) {
	w := newFakeWatcher()
	r := newRouter(w)
	ctx := context.Background()

	reply := r.Handle(ctx, 1, "/pair 0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	require.Contains(t, reply, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	require.Contains(t, reply, "/watch on")
	require.False(t, w.state.Cursor.Set)

	require.Equal(t, `Invalid pair id "nope".`, r.Handle(ctx, 1, "/pair nope"))
	require.Equal(t, []string{"pair"}, w.calls)
}

func TestHandleStatus(t *testing.T) {
	w := newFakeWatcher()
	w.state.Cursor = watch.At(1234)
	r := newRouter(w)
	_ = r.Handle(context.Background(), 1, "/watch on")

	require.Equal(t, "Pair: PAIR\nWatching: on\nInterval: 1m\nMin trade: $10\nLast seen: 1234", r.Handle(context.Background(), 1, "/status"))
}

func TestHandlePrice(t *testing.T) {
	w := newFakeWatcher()
	r := newRouter(w)
	ctx := context.Background()

	require.Equal(t, "Price for PAIR is unavailable right now.", r.Handle(ctx, 1, "/price"))

	w.priceOK = true
	require.Equal(t, "TKN/SOL\nPrice: $0.5", r.Handle(ctx, 1, "/price"))
}

func TestHandleErrors(t *testing.T) {
	w := newFakeWatcher()
	r := newRouter(w)
	ctx := context.Background()

	w.enableErr = &service.RejectedError{Reason: "No pair configured yet. Use: pair <id>"}
	require.Equal(t, "No pair configured yet. Use: pair <id>", r.Handle(ctx, 1, "/watch on"))

	w.enableErr = errors.New("scheduler: not started")
	require.Equal(t, "Something went wrong, please try again.", r.Handle(ctx, 1, "/watch on"))

	require.Contains(t, r.Handle(ctx, 1, "/frobnicate"), "Unknown command")
}

func TestHelpListsEveryCommand(t *testing.T) {
	help := newRouter(newFakeWatcher()).Handle(context.Background(), 1, "/help")
	for _, entry := range Entries() {
		require.Contains(t, help, entry.Usage)
	}
}

func TestKnown(t *testing.T) {
	require.True(t, Known("watch"))
	require.True(t, Known("setinterval"))
	require.False(t, Known("hello"))
	require.False(t, Known(""))
}
