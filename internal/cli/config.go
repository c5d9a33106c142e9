package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/smart-mirror/internal/config"
)

func configCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and maintain the dashboard configuration",
	}
	cmd.AddCommand(
		configShowCmd(opts),
		configReconcileCmd(opts),
		configInitCmd(opts),
	)
	return cmd
}

func configShowCmd(opts *rootOptions) *cobra.Command {
	var settings bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the reconciled user configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if settings {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				data, err := cfg.Encode()
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			a, err := opts.openApp(io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg, err := a.Store.LoadReconciled(commandContext(cmd))
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("cli: encode config: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&settings, "settings", false, "print the service settings (mirror.yaml) instead")
	return cmd
}

func configReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Align the dashboard layout with the installed components",
		Long: `Drop layout entries for components that are no longer installed and
add newly installed components as disabled entries. The configuration is
only written when something changed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := commandContext(cmd)
			before := a.Store.Load(ctx)
			after, err := a.Store.Reconcile(ctx, before)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if slices.Equal(before.Dashboard.Components, after.Dashboard.Components) {
				success(out, "Configuration already matches %d installed components", a.Registry.Len())
				return nil
			}
			known := make(map[string]bool, len(after.Dashboard.Components))
			for _, entry := range after.Dashboard.Components {
				known[entry.ID] = true
			}
			var removed []string
			seen := make(map[string]bool, len(before.Dashboard.Components))
			for _, entry := range before.Dashboard.Components {
				seen[entry.ID] = true
				if !known[entry.ID] {
					removed = append(removed, entry.ID)
				}
			}
			var added []string
			for _, entry := range after.Dashboard.Components {
				if !seen[entry.ID] {
					added = append(added, entry.ID)
				}
			}
			success(out, "Configuration reconciled")
			if len(added) > 0 {
				info(out, "added (disabled): %s", strings.Join(added, ", "))
			}
			if len(removed) > 0 {
				info(out, "removed: %s", strings.Join(removed, ", "))
			}
			return nil
		},
	}
}

func configInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default mirror.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.FileName
			}
			written, err := config.WriteDefault(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !written {
				info(out, "%s already exists, left unchanged", path)
				return nil
			}
			success(out, "Wrote %s", path)
			return nil
		},
	}
}
