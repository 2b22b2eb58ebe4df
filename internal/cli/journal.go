package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"

	"pairwatch/internal/app"
)

func newShowCmd(s *session) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List recently sent alerts from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be greater than zero")
			}
			return s.App().Show(cmd.Context(), app.ShowOptions{Limit: limit})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of alerts to display")
	return cmd
}

func newExportCmd(s *session) *cobra.Command {
	var (
		from, to string
		opts     app.ExportOptions
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export journalled alerts as CSV and/or a PNG chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			var err error
			if opts.From, err = parseWhen(from, now); err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			if opts.To, err = parseWhen(to, now); err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			return s.App().Export(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Window start: RFC3339, YYYY-MM-DD, or an age such as 24h or 7d (default 7d)")
	cmd.Flags().StringVar(&to, "to", "", "Window end, exclusive, in the same formats (default now)")
	cmd.Flags().StringVar(&opts.PNGPath, "png", "", "Path to write the PNG chart")
	cmd.Flags().StringVar(&opts.CSVPath, "csv", "", "Path to write CSV rows")
	cmd.Flags().IntVar(&opts.MaxPoints, "max-points", 0, "Maximum alerts to export (defaults to export.max_data_points)")
	return cmd
}

func newPruneCmd(s *session) *cobra.Command {
	var olderThan string
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete journalled alerts older than a retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			window, err := str2duration.ParseDuration(olderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than value: %w", err)
			}
			return s.App().Prune(cmd.Context(), app.PruneOptions{OlderThan: window})
		},
	}
	cmd.Flags().StringVar(&olderThan, "older-than", "30d", "Retention window, e.g. 30d or 720h")
	return cmd
}

// parseWhen accepts an absolute RFC3339 time, a UTC date, or an age relative
// to now. An empty value yields nil.
func parseWhen(value string, now time.Time) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return &ts, nil
	}
	if ts, err := time.Parse(time.DateOnly, value); err == nil {
		return &ts, nil
	}
	age, err := str2duration.ParseDuration(value)
	if err != nil || age < 0 {
		return nil, fmt.Errorf("%q is not a time, date or age", value)
	}
	ts := now.Add(-age)
	return &ts, nil
}
