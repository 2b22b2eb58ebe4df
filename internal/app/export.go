package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"pairwatch/internal/storage"
	"pairwatch/internal/trade"
)

const defaultExportWindow = 7 * 24 * time.Hour

// Export renders journalled alerts as CSV and/or a PNG scatter chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openAlertJournal(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	from, to, err := exportWindow(opts, time.Now().UTC())
	if err != nil {
		return err
	}

	alerts, err := store.ListAlertsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Msg("no alerts found for export window")
		return nil
	}

	downsampled := downsampleAlerts(alerts, opts.MaxPoints)
	a.Logger.Info().Int("total", len(alerts)).Int("exported", len(downsampled)).Msg("exporting alerts")

	if opts.CSVPath != "" {
		if err := writeAlertsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeAlertsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func exportWindow(opts ExportOptions, now time.Time) (time.Time, time.Time, error) {
	to := now
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, errors.New("from must be before to")
	}
	return from, to, nil
}

func downsampleAlerts(alerts []storage.AlertRecord, max int) []storage.AlertRecord {
	if max <= 0 || len(alerts) <= max {
		return alerts
	}
	if max == 1 {
		return alerts[len(alerts)-1:]
	}

	result := make([]storage.AlertRecord, 0, max)
	step := float64(len(alerts)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(alerts) {
			idx = len(alerts) - 1
		}
		result = append(result, alerts[idx])
	}
	return result
}

func writeAlertsCSV(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"alert_id", "created_at", "chat_id", "pair", "trade_id", "side", "amount_usd", "amount_base", "price_usd", "trade_ts", "delivered", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, alert := range alerts {
		tradeTS := ""
		if alert.TradeTime != nil {
			tradeTS = alert.TradeTime.UTC().Format(time.RFC3339)
		}
		errMsg := ""
		if alert.Error != nil {
			errMsg = *alert.Error
		}
		record := []string{
			alert.ID.String(),
			alert.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(alert.ChatID, 10),
			alert.Pair,
			alert.TradeID,
			alert.Side,
			nullString(alert.AmountUSD),
			nullString(alert.AmountBase),
			nullString(alert.PriceUSD),
			tradeTS,
			strconv.FormatBool(alert.Delivered),
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeAlertsPNG(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	buys := sideSeries("Buys", alerts, trade.SideBuy, drawing.ColorFromHex("2e7d32"))
	sells := sideSeries("Sells", alerts, trade.SideSell, drawing.ColorFromHex("c62828"))

	series := make([]chart.Series, 0, 2)
	for _, s := range []chart.TimeSeries{buys, sells} {
		if len(s.XValues) > 0 {
			series = append(series, s)
		}
	}
	if len(series) == 0 {
		return errors.New("no alerts with both a trade time and a USD value to chart")
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Trade size (USD)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func sideSeries(name string, alerts []storage.AlertRecord, side trade.Side, color drawing.Color) chart.TimeSeries {
	series := chart.TimeSeries{
		Name: name,
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    4,
			DotColor:    color,
		},
	}
	for _, alert := range alerts {
		if alert.Side != string(side) || alert.TradeTime == nil || !alert.AmountUSD.Valid {
			continue
		}
		series.XValues = append(series.XValues, *alert.TradeTime)
		series.YValues = append(series.YValues, alert.AmountUSD.Decimal.InexactFloat64())
	}
	return series
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
