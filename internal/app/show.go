package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"pairwatch/internal/pair"
	"pairwatch/internal/storage"
)

// Show prints recently journalled alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openAlertJournal(ctx, "show")
	if err != nil {
		return err
	}
	defer closeStore()

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if err := printAlerts(a.stdout(), alerts); err != nil {
		return err
	}

	total, err := store.CountAlerts(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.stdout(), "\n%d of %d journalled alerts shown\n", len(alerts), total)
	return err
}

// Prune deletes journalled alerts older than opts.OlderThan.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	if opts.OlderThan <= 0 {
		return errors.New("older-than must be greater than zero")
	}

	store, closeStore, err := a.openAlertJournal(ctx, "prune")
	if err != nil {
		return err
	}
	defer closeStore()

	before, err := store.CountAlerts(ctx)
	if err != nil {
		return err
	}
	cutoff := time.Now().UTC().Add(-opts.OlderThan)
	if err := store.DeleteAlertsBefore(ctx, cutoff); err != nil {
		return err
	}
	after, err := store.CountAlerts(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().Time("cutoff", cutoff).Int64("deleted", before-after).Int64("remaining", after).Msg("alert journal pruned")
	return nil
}

func printAlerts(out io.Writer, alerts []storage.AlertRecord) error {
	if len(alerts) == 0 {
		_, err := fmt.Fprintln(out, "no alerts found")
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Sent (UTC)\tChat\tPair\tSide\tUSD\tTrade time\tDelivered\tError")

	for _, alert := range alerts {
		tradeTime := "-"
		if alert.TradeTime != nil {
			tradeTime = alert.TradeTime.UTC().Format(time.RFC3339)
		}
		errMsg := ""
		if alert.Error != nil {
			errMsg = sanitizeInline(*alert.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%s\t%s\t%s\t%t\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.ChatID,
			pair.Short(alert.Pair),
			alert.Side,
			formatNullDecimal(alert.AmountUSD, 2),
			tradeTime,
			alert.Delivered,
			errMsg,
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatNullDecimal(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(places)
}
