package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/kingrea/smart-mirror/internal/tui"
)

func inspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Browse and edit the dashboard layout in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The TUI owns the terminal; logs still go to data/logs.
			a, err := opts.openApp(io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := commandContext(cmd)
			if err := a.Registry.Load(ctx); err != nil {
				return err
			}
			model := tui.NewApp(ctx, a.Store, a.Registry, tui.WithReloader(a.Reloader))
			return tui.Run(ctx, model)
		},
	}
}
