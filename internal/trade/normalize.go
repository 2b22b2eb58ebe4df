package trade

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field names a canonical trade attribute extracted from an upstream record.
type Field string

const (
	FieldSide       Field = "side"
	FieldID         Field = "id"
	FieldTimestamp  Field = "timestamp"
	FieldAmountUSD  Field = "amount_usd"
	FieldAmountBase Field = "amount_base"
	FieldPriceUSD   Field = "price_usd"
)

// Record holds the raw upstream values of one trade keyed by canonical field.
type Record map[Field]any

// maxEpochSeconds bounds plausible timestamps after unit scaling.
const maxEpochSeconds = 100_000_000_000

// epochScales maps epoch magnitudes onto their unit divisor: nanoseconds,
// microseconds, then milliseconds.
var epochScales = []struct {
	above   int64
	divisor int64
}{
	{1_000_000_000_000_000_000, 1_000_000_000},
	{1_000_000_000_000_000, 1_000_000},
	{1_000_000_000_000, 1_000},
}

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// Normalize converts records into trades sorted ascending by timestamp.
// Missing timestamps sort as zero; the sort is stable.
func Normalize(records []Record) []Trade {
	trades := make([]Trade, 0, len(records))
	for _, rec := range records {
		trades = append(trades, FromRecord(rec))
	}
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Unix() < trades[j].Unix()
	})
	return trades
}

// FromRecord coerces one record. Values that cannot be parsed become null.
func FromRecord(rec Record) Trade {
	t := Trade{
		ID:         ToString(rec[FieldID]),
		Side:       ParseSide(rec[FieldSide]),
		AmountBase: ToDecimal(rec[FieldAmountBase]),
		AmountUSD:  ToDecimal(rec[FieldAmountUSD]),
		PriceUSD:   ToDecimal(rec[FieldPriceUSD]),
		Timestamp:  ToUnix(rec[FieldTimestamp]),
	}
	if t.ID == "" {
		t.ID = compositeID(t)
	}
	return t
}

func compositeID(t Trade) string {
	return fmt.Sprintf("ts:%d|base:%s|usd:%s", t.Unix(), nullString(t.AmountBase), nullString(t.AmountUSD))
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

// ParseSide maps loosely spelled directions onto Side.
func ParseSide(v any) Side {
	s, ok := v.(string)
	if !ok {
		return SideUnknown
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b", "bid", "long":
		return SideBuy
	case "sell", "s", "ask", "short":
		return SideSell
	default:
		return SideUnknown
	}
}

// ToDecimal accepts JSON numbers, numeric strings and native numbers.
func ToDecimal(v any) decimal.NullDecimal {
	switch x := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case json.Number:
		return parseDecimal(x.String())
	case string:
		return parseDecimal(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(decimal.NewFromFloat(x))
	case float32:
		return ToDecimal(float64(x))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(x)))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(x))
	default:
		return decimal.NullDecimal{}
	}
}

func parseDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// ToUnix converts epoch seconds, milli-, micro- or nanoseconds, or RFC3339
// text into unix seconds. Values outside the int64 range or beyond
// maxEpochSeconds after scaling are nil.
func ToUnix(v any) *int64 {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			sec := ts.Unix()
			return &sec
		}
	}

	d := ToDecimal(v)
	if !d.Valid || d.Decimal.IsNegative() || d.Decimal.GreaterThan(maxInt64) {
		return nil
	}
	sec := d.Decimal.IntPart()
	for _, scale := range epochScales {
		if sec > scale.above {
			sec /= scale.divisor
			break
		}
	}
	if sec > maxEpochSeconds {
		return nil
	}
	return &sec
}

// ToString renders identifiers that may arrive as strings or numbers.
func ToString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	default:
		return ""
	}
}
