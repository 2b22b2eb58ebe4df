package cli

import (
	"github.com/spf13/cobra"
)

func newRunCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the Telegram bot and the per-chat trade watchers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.App().Run(cmd.Context())
		},
	}
}
