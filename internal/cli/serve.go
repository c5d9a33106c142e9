package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		host  string
		port  int
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API server",
		Long: `Run the HTTP API and the config change stream until interrupted.

The plugin directory is watched for changes unless watch_plugins is false.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("host") {
				a.Config.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.Config.Server.Port = port
			}
			if cmd.Flags().Changed("watch") {
				a.Config.WatchPlugins = &watch
			}
			if err := a.Config.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload components when the plugin directory changes")
	return cmd
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
