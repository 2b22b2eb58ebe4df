// Package command turns subscriber text commands into watcher operations
// and renders the replies.
package command

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/xhit/go-str2duration/v2"

	"pairwatch/internal/alerting"
	"pairwatch/internal/pair"
	"pairwatch/internal/service"
	"pairwatch/internal/trade"
	"pairwatch/internal/watch"
)

// ValidationError reports malformed command input. No state was changed.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Watcher is the set of operations commands map onto.
type Watcher interface {
	Enable(subscriber int64) (watch.State, error)
	Disable(subscriber int64) (watch.State, bool, error)
	SetInterval(subscriber int64, interval time.Duration) (watch.State, error)
	SetMinUSD(subscriber int64, minUSD decimal.Decimal) (watch.State, error)
	SetPair(subscriber int64, pair string) (watch.State, error)
	Status(subscriber int64) service.Status
	Price(ctx context.Context, subscriber int64) (string, trade.PriceSnapshot, bool, error)
}

// Entry describes one command for help output and bot menus.
type Entry struct {
	Name        string
	Usage       string
	Description string
}

var entries = []Entry{
	{Name: "start", Usage: "/start", Description: "start watching with the current settings"},
	{Name: "stop", Usage: "/stop", Description: "stop watching"},
	{Name: "watch", Usage: "/watch on|off", Description: "turn alerts on or off"},
	{Name: "pair", Usage: "/pair <id>", Description: "set the pair to watch"},
	{Name: "interval", Usage: "/interval <30s|5m|1h>", Description: "set the polling interval"},
	{Name: "setinterval", Usage: "/setinterval <seconds>", Description: "set the polling interval in seconds"},
	{Name: "min", Usage: "/min <usd>", Description: "only alert on trades of at least this size"},
	{Name: "status", Usage: "/status", Description: "show current settings"},
	{Name: "price", Usage: "/price", Description: "show the current price"},
	{Name: "help", Usage: "/help", Description: "list commands"},
}

// Entries lists the supported commands.
func Entries() []Entry {
	return append([]Entry(nil), entries...)
}

var (
	durationPattern = regexp.MustCompile(`^\d+[smh]?$`)
	secondsPattern  = regexp.MustCompile(`^\d+$`)
)

// ParseInterval parses an integer with an optional s, m or h suffix
// (seconds by default) and enforces floor.
func ParseInterval(arg string, floor time.Duration) (time.Duration, error) {
	literal := strings.ToLower(strings.TrimSpace(arg))
	if !durationPattern.MatchString(literal) {
		return 0, invalid("Invalid interval %q. Use a number with an optional s, m or h suffix, e.g. 30s or 5m.", arg)
	}
	if secondsPattern.MatchString(literal) {
		literal += "s"
	}

	d, err := str2duration.ParseDuration(literal)
	if err != nil || d <= 0 {
		return 0, invalid("Invalid interval %q.", arg)
	}
	if d < floor {
		return 0, invalid("Interval must be at least %s.", FormatInterval(floor))
	}
	return d, nil
}

// ParseUSD parses a non-negative dollar amount; "$" and "," are ignored.
func ParseUSD(arg string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(arg))
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, invalid("Invalid amount %q. Use a number such as 250 or 1,000.", arg)
	}
	if value.IsNegative() {
		return decimal.Zero, invalid("Minimum must not be negative.")
	}
	return value, nil
}

// FormatInterval renders d compactly using its largest exact unit.
func FormatInterval(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}

// Router dispatches parsed commands to a Watcher.
type Router struct {
	watcher Watcher
	floor   time.Duration
	logger  zerolog.Logger
}

// NewRouter constructs a command router. floor is the minimum interval.
func NewRouter(watcher Watcher, floor time.Duration, logger zerolog.Logger) *Router {
	return &Router{
		watcher: watcher,
		floor:   floor,
		logger:  logger.With().Str("component", "command").Logger(),
	}
}

// Parse splits text into a lowercase verb and its arguments, dropping a
// leading slash and any @botname suffix.
func Parse(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	verb := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(verb, '@'); at >= 0 {
		verb = verb[:at]
	}
	return strings.ToLower(verb), fields[1:]
}

// Handle executes one command and returns the reply text.
func (r *Router) Handle(ctx context.Context, subscriber int64, text string) string {
	verb, args := Parse(text)
	reply, err := r.execute(ctx, subscriber, verb, args)
	if err != nil {
		var vErr *ValidationError
		var rErr *service.RejectedError
		switch {
		case errors.As(err, &vErr), errors.As(err, &rErr):
			return err.Error()
		default:
			r.logger.Error().Err(err).Int64("chat_id", subscriber).Str("verb", verb).Msg("command failed")
			return "Something went wrong, please try again."
		}
	}
	return reply
}

func (r *Router) execute(ctx context.Context, subscriber int64, verb string, args []string) (string, error) {
	switch verb {
	case "start":
		return r.enable(subscriber)
	case "stop":
		return r.disable(subscriber)
	case "watch":
		switch strings.ToLower(first(args)) {
		case "on":
			return r.enable(subscriber)
		case "off":
			return r.disable(subscriber)
		default:
			return "", invalid("Usage: /watch on|off")
		}
	case "interval":
		if len(args) != 1 {
			return "", invalid("Usage: /interval <30s|5m|1h>")
		}
		return r.setInterval(subscriber, args[0])
	case "setinterval":
		if len(args) != 1 || !secondsPattern.MatchString(args[0]) {
			return "", invalid("Usage: /setinterval <seconds>")
		}
		return r.setInterval(subscriber, args[0])
	case "min":
		if len(args) != 1 {
			return "", invalid("Usage: /min <usd>")
		}
		value, err := ParseUSD(args[0])
		if err != nil {
			return "", err
		}
		state, err := r.watcher.SetMinUSD(subscriber, value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Minimum trade size set to $%s.", state.MinUSD.String()), nil
	case "pair":
		if len(args) != 1 {
			return "", invalid("Usage: /pair <id>")
		}
		id, err := pair.Normalize(args[0])
		if err != nil {
			return "", invalid("Invalid pair id %q.", args[0])
		}
		state, err := r.watcher.SetPair(subscriber, id)
		if err != nil {
			return "", err
		}
		reply := fmt.Sprintf("Now watching pair %s. Existing trades are skipped; only new ones will alert.", state.Pair)
		if !state.Enabled {
			reply += " Send /watch on to start."
		}
		return reply, nil
	case "status":
		return renderStatus(r.watcher.Status(subscriber)), nil
	case "price":
		pairID, snap, ok, err := r.watcher.Price(ctx, subscriber)
		if err != nil {
			return "", err
		}
		if !ok {
			return fmt.Sprintf("Price for %s is unavailable right now.", pair.Short(pairID)), nil
		}
		label := lo.Ternary(snap.Label() != "", snap.Label(), pairID)
		return alerting.RenderPrice(label, snap), nil
	case "help", "":
		return Help(), nil
	default:
		return fmt.Sprintf("Unknown command %q. Send /help for the list.", verb), nil
	}
}

func (r *Router) enable(subscriber int64) (string, error) {
	state, err := r.watcher.Enable(subscriber)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Watching %s every %s for trades of at least $%s.",
		pair.Short(state.Pair), FormatInterval(state.Interval), state.MinUSD.String()), nil
}

func (r *Router) disable(subscriber int64) (string, error) {
	_, cancelled, err := r.watcher.Disable(subscriber)
	if err != nil {
		return "", err
	}
	if !cancelled {
		return "Watching was already off.", nil
	}
	return "Watching stopped.", nil
}

func (r *Router) setInterval(subscriber int64, arg string) (string, error) {
	interval, err := ParseInterval(arg, r.floor)
	if err != nil {
		return "", err
	}
	state, err := r.watcher.SetInterval(subscriber, interval)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Interval set to %s.", FormatInterval(state.Interval)), nil
}

func renderStatus(status service.Status) string {
	st := status.State
	pairText := lo.Ternary(st.Pair == "", "(none)", st.Pair)
	watching := lo.Ternary(st.Enabled && status.Scheduled, "on", "off")
	return strings.Join([]string{
		fmt.Sprintf("Pair: %s", pairText),
		fmt.Sprintf("Watching: %s", watching),
		fmt.Sprintf("Interval: %s", FormatInterval(st.Interval)),
		fmt.Sprintf("Min trade: $%s", st.MinUSD.String()),
		fmt.Sprintf("Last seen: %s", st.Cursor),
	}, "\n")
}

// Help renders the command list.
func Help() string {
	lines := lo.Map(entries, func(s Entry, _ int) string {
		return fmt.Sprintf("%s - %s", s.Usage, s.Description)
	})
	return "Commands:\n" + strings.Join(lines, "\n")
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// Known reports whether verb names a supported command.
func Known(verb string) bool {
	return lo.ContainsBy(entries, func(s Entry) bool { return s.Name == verb })
}
