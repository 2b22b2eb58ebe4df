package cli

import (
	"github.com/spf13/cobra"

	"pairwatch/internal/app"
)

func newSimulateCmd(s *session) *cobra.Command {
	var opts app.SimulateOptions
	cmd := &cobra.Command{
		Use:   "simulate-alert",
		Short: "Send one synthetic trade alert to a chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.App().SimulateAlert(cmd.Context(), opts)
		},
	}
	cmd.Flags().Int64Var(&opts.ChatID, "chat", 0, "Telegram chat id to deliver to")
	cmd.Flags().StringVar(&opts.Pair, "pair", "", "Pair id (defaults to watch.default_pair)")
	cmd.Flags().StringVar(&opts.Side, "side", "buy", "Trade side: buy or sell")
	cmd.Flags().StringVar(&opts.USD, "usd", "1000", "Trade size in USD")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}
