// Package cli implements the mirror command tree.
package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kingrea/smart-mirror/internal/app"
	"github.com/kingrea/smart-mirror/internal/config"
)

// rootOptions carries the persistent flags shared by every subcommand.
type rootOptions struct {
	version    string
	configPath string
	dataDir    string
	pluginsDir string
	logLevel   string
	noColor    bool
}

// NewRootCommand builds the mirror command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{version: version}
	root := &cobra.Command{
		Use:   "mirror",
		Short: "Smart mirror dashboard service",
		Long: `mirror serves the smart mirror dashboard API.

It discovers built-in and plugin components, keeps the dashboard layout
in sync with what is installed, and proxies component data requests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "settings file (default ./mirror.yaml)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "directory for config.json and logs")
	flags.StringVar(&opts.pluginsDir, "plugins-dir", "", "directory scanned for plugin components")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		serveCmd(opts),
		componentsCmd(opts),
		configCmd(opts),
		inspectCmd(opts),
		versionCmd(opts),
	)
	return root
}

// loadConfig reads the settings file and applies flag overrides on top of
// file and environment values.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		abs, err := filepath.Abs(o.dataDir)
		if err != nil {
			return nil, fmt.Errorf("cli: resolve --data-dir: %w", err)
		}
		cfg.DataDir = abs
	}
	if o.pluginsDir != "" {
		abs, err := filepath.Abs(o.pluginsDir)
		if err != nil {
			return nil, fmt.Errorf("cli: resolve --plugins-dir: %w", err)
		}
		cfg.PluginsDir = abs
	}
	if o.logLevel != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(o.logLevel))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp builds the services. console receives log lines; one-shot
// commands pass io.Discard so their output stays clean.
func (o *rootOptions) openApp(console io.Writer) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, app.Options{Version: o.version, Console: console})
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
