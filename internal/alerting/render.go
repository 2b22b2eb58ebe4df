package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pairwatch/internal/trade"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

// Render formats a trade alert. The price block is omitted when snap is nil.
func Render(pairLabel string, t trade.Trade, snap *trade.PriceSnapshot) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s] %s\n", t.Side, pairLabel))
	builder.WriteString(fmt.Sprintf("Value: %s\n", usd(t.AmountUSD, 2)))

	amount := plain(t.AmountBase)
	if snap != nil && snap.BaseSymbol != "" && t.AmountBase.Valid {
		amount += " " + snap.BaseSymbol
	}
	builder.WriteString(fmt.Sprintf("Amount: %s\n", amount))

	if t.PriceUSD.Valid {
		builder.WriteString(fmt.Sprintf("Trade price: %s\n", usd(t.PriceUSD, -1)))
	}
	if t.Timestamp != nil {
		builder.WriteString(fmt.Sprintf("Time: %s\n", t.Time().Format(timeLayout)))
	}
	builder.WriteString(fmt.Sprintf("Tx: %s", t.ID))

	if snap != nil {
		builder.WriteString("\n\n")
		builder.WriteString(renderSnapshot(*snap))
	}
	return builder.String()
}

// RenderPrice formats a standalone price reply.
func RenderPrice(pairLabel string, snap trade.PriceSnapshot) string {
	return fmt.Sprintf("%s\n%s", pairLabel, renderSnapshot(snap))
}

func renderSnapshot(snap trade.PriceSnapshot) string {
	lines := make([]string, 0, 4)

	price := fmt.Sprintf("Price: %s", usd(snap.PriceUSD, -1))
	if snap.PriceNative.Valid {
		native := snap.PriceNative.Decimal.String()
		if snap.QuoteSymbol != "" {
			native += " " + snap.QuoteSymbol
		}
		price += fmt.Sprintf(" (%s)", native)
	}
	lines = append(lines, price)

	if snap.LiquidityUSD.Valid {
		lines = append(lines, fmt.Sprintf("Liquidity: %s", usd(snap.LiquidityUSD, 0)))
	}
	if snap.URL != "" {
		lines = append(lines, snap.URL)
	}
	if !snap.FetchedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("As of %s", snap.FetchedAt.UTC().Format(time.TimeOnly)))
	}
	return strings.Join(lines, "\n")
}

// usd renders a dollar figure with thousands separators. places < 0 keeps
// the exact value.
func usd(value decimal.NullDecimal, places int32) string {
	if !value.Valid {
		return "n/a"
	}
	d := value.Decimal
	if places >= 0 {
		d = d.Round(places)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	var text string
	if places >= 0 {
		text = d.StringFixed(places)
	} else {
		text = d.String()
	}
	return sign + "$" + groupThousands(text)
}

func plain(value decimal.NullDecimal) string {
	if !value.Valid {
		return "n/a"
	}
	return groupThousands(value.Decimal.String())
}

func groupThousands(number string) string {
	whole, frac, hasFrac := strings.Cut(number, ".")
	if len(whole) <= 3 {
		return number
	}

	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
