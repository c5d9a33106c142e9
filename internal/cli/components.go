package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kingrea/smart-mirror/internal/component"
)

func componentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "components",
		Aliases: []string{"ls"},
		Short:   "List discovered components",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Registry.Load(commandContext(cmd)); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			components := a.Registry.Components()
			if len(components) == 0 {
				fmt.Fprintln(out, "No components found.")
				return nil
			}
			writeComponentTable(out, components)
			fmt.Fprintln(out)
			info(out, "%d components (plugins from %s)", len(components), a.Config.PluginsDir)
			return nil
		},
	}
}

func writeComponentTable(w io.Writer, components []component.Component) {
	headers := []string{"ID", "NAME", "VERSION", "SOURCE", "HANDLER"}
	rows := make([][]string, 0, len(components))
	for _, c := range components {
		handler := "no"
		if c.HasHandler() {
			handler = "yes"
		}
		rows = append(rows, []string{c.ID, c.Manifest.Name, c.Manifest.Version, string(c.Source), handler})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	bold := color.New(color.Bold, color.FgCyan)
	for i, h := range headers {
		bold.Fprint(w, padRight(h, widths[i]))
		if i < len(headers)-1 {
			fmt.Fprint(w, "  ")
		}
	}
	fmt.Fprintln(w)

	gray := color.New(color.FgHiBlack)
	for i, width := range widths {
		gray.Fprint(w, strings.Repeat("─", width))
		if i < len(widths)-1 {
			fmt.Fprint(w, "  ")
		}
	}
	fmt.Fprintln(w)

	plugin := color.New(color.FgYellow)
	yes := color.New(color.FgGreen)
	for _, row := range rows {
		for i, cell := range row {
			padded := padRight(cell, widths[i])
			switch {
			case i == 3 && cell == string(component.SourcePlugin):
				plugin.Fprint(w, padded)
			case i == 4 && cell == "yes":
				yes.Fprint(w, padded)
			default:
				fmt.Fprint(w, padded)
			}
			if i < len(row)-1 {
				fmt.Fprint(w, "  ")
			}
		}
		fmt.Fprintln(w)
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
