package dedup

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"pairwatch/internal/trade"
	"pairwatch/internal/watch"
)

// KeyFunc derives the ordering key compared against a cursor.
type KeyFunc func(trade.Trade) int64

// ByTimestamp orders trades by unix seconds; missing timestamps are 0.
func ByTimestamp(t trade.Trade) int64 {
	return t.Unix()
}

// BySequence orders trades by a numeric id. Non-numeric ids key as 0 and are
// therefore never newer than an initialised cursor.
func BySequence(t trade.Trade) int64 {
	n, err := strconv.ParseInt(t.ID, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// KeyFuncFor resolves an ordering key by its config name.
func KeyFuncFor(name string) (KeyFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "timestamp":
		return ByTimestamp, nil
	case "sequence":
		return BySequence, nil
	default:
		return nil, fmt.Errorf("unknown order key %q", name)
	}
}

// Result is the outcome of one dedup pass.
type Result struct {
	// New holds trades newer than the input cursor that pass the size
	// filter, in ascending key order.
	New []trade.Trade
	// Filtered counts new trades dropped by the size filter.
	Filtered int
	Cursor   watch.Cursor
	// Seeded is true when an unset cursor was initialised silently.
	Seeded bool
}

// Engine computes which trades of a batch are new relative to a cursor.
type Engine struct {
	key KeyFunc
}

// New builds an engine; a nil key orders by timestamp.
func New(key KeyFunc) *Engine {
	if key == nil {
		key = ByTimestamp
	}
	return &Engine{key: key}
}

// Key exposes the engine's ordering key.
func (e *Engine) Key(t trade.Trade) int64 {
	return e.key(t)
}

// Apply partitions batch against cursor. Trades below minUSD still advance
// the cursor so they are never evaluated again.
func (e *Engine) Apply(cursor watch.Cursor, batch []trade.Trade, minUSD decimal.Decimal) Result {
	sorted := make([]trade.Trade, len(batch))
	copy(sorted, batch)
	sort.SliceStable(sorted, func(i, j int) bool {
		return e.key(sorted[i]) < e.key(sorted[j])
	})

	if !cursor.Set {
		if len(sorted) == 0 {
			return Result{Cursor: cursor}
		}
		return Result{Cursor: watch.At(e.key(sorted[len(sorted)-1])), Seeded: true}
	}

	fresh := lo.Filter(sorted, func(t trade.Trade, _ int) bool {
		return e.key(t) > cursor.Key
	})

	next := cursor
	if len(fresh) > 0 {
		next = watch.At(e.key(fresh[len(fresh)-1]))
	}

	qualifying := lo.Filter(fresh, func(t trade.Trade, _ int) bool {
		return Qualifies(t, minUSD)
	})

	return Result{
		New:      qualifying,
		Filtered: len(fresh) - len(qualifying),
		Cursor:   next,
	}
}

// Qualifies reports whether a trade meets the minimum notional. Trades of
// unknown size always qualify.
func Qualifies(t trade.Trade, minUSD decimal.Decimal) bool {
	if !t.AmountUSD.Valid {
		return true
	}
	return t.AmountUSD.Decimal.GreaterThanOrEqual(minUSD)
}
