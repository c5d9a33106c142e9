// internal/tui/app.go
//
// The inspector is a small terminal view over the dashboard layout. It is a
// bubbletea model:
//
// 1. Model: the reconciled UserConfig plus list/selection state
// 2. Update: key presses edit the layout, commands load, save and reload
// 3. View: a bordered list with a status line underneath

package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/smart-mirror/internal/component"
	"github.com/kingrea/smart-mirror/internal/userconfig"
)

// Store is the part of the config store the inspector edits through.
type Store interface {
	LoadReconciled(ctx context.Context) (userconfig.UserConfig, error)
	Save(ctx context.Context, cfg userconfig.UserConfig) error
}

// Catalog resolves component display names.
type Catalog interface {
	Component(id string) (component.Component, bool)
}

// Reloader rediscovers components.
type Reloader interface {
	Reload(ctx context.Context) error
}

// AppOption customizes App construction.
type AppOption func(*App)

// WithReloader enables the "r" key.
func WithReloader(r Reloader) AppOption {
	return func(a *App) {
		a.reloader = r
	}
}

type configLoadedMsg struct {
	cfg      userconfig.UserConfig
	err      error
	reloaded bool
}

type configSavedMsg struct {
	err error
}

type entryItem struct {
	entry userconfig.DashboardComponentConfig
	name  string
}

func (i entryItem) Title() string {
	mark := "○"
	if i.entry.Enabled {
		mark = "●"
	}
	return fmt.Sprintf("%s %s", mark, i.name)
}

func (i entryItem) Description() string {
	state := "disabled"
	if i.entry.Enabled {
		state = "enabled"
	}
	return fmt.Sprintf("%s · %s · %s", i.entry.ID, i.entry.Area, state)
}

func (i entryItem) FilterValue() string { return i.entry.ID }

// App is the inspector model.
type App struct {
	ctx      context.Context
	store    Store
	catalog  Catalog
	reloader Reloader

	cfg    userconfig.UserConfig
	loaded bool
	dirty  bool

	list      list.Model
	statusMsg string
	width     int
	height    int
}

// NewApp builds the inspector. ctx bounds every store and reload call.
func NewApp(ctx context.Context, store Store, catalog Catalog, opts ...AppOption) *App {
	if ctx == nil {
		ctx = context.Background()
	}
	l := list.New(nil, list.NewDefaultDelegate(), 76, 20)
	l.Title = "Dashboard components"
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#5B8DEF")).
		Padding(0, 1)

	a := &App{
		ctx:       ctx,
		store:     store,
		catalog:   catalog,
		list:      l,
		statusMsg: "Loading configuration...",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Run starts the inspector on the terminal and blocks until it exits.
func Run(ctx context.Context, app *App) error {
	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

// Config returns the layout currently shown, including unsaved edits.
func (a *App) Config() userconfig.UserConfig {
	return a.cfg.Clone()
}

// Dirty reports whether there are unsaved edits.
func (a *App) Dirty() bool {
	return a.dirty
}

// Status returns the status line text.
func (a *App) Status() string {
	return a.statusMsg
}

// Init loads the reconciled configuration.
func (a *App) Init() tea.Cmd {
	return a.loadConfig(false)
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.list.SetSize(max(20, msg.Width-6), max(5, msg.Height-8))
		return a, nil

	case configLoadedMsg:
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Load failed: %v", msg.err)
			return a, nil
		}
		a.cfg = msg.cfg
		a.loaded = true
		a.dirty = false
		a.refreshItems()
		n := len(a.cfg.Dashboard.Components)
		if msg.reloaded {
			a.statusMsg = fmt.Sprintf("Reloaded components (%d on dashboard)", n)
		} else {
			a.statusMsg = fmt.Sprintf("Loaded %d dashboard components", n)
		}
		return a, nil

	case configSavedMsg:
		if msg.err != nil {
			a.statusMsg = fmt.Sprintf("Save failed: %v", msg.err)
			return a, nil
		}
		a.dirty = false
		a.statusMsg = "Configuration saved"
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case " ", "space":
			a.editSelected(func(e *userconfig.DashboardComponentConfig) {
				e.Enabled = !e.Enabled
			})
			return a, nil
		case "a":
			a.editSelected(func(e *userconfig.DashboardComponentConfig) {
				e.Area = e.Area.Next()
			})
			return a, nil
		case "s":
			if !a.loaded {
				return a, nil
			}
			a.statusMsg = "Saving..."
			return a, a.saveConfig()
		case "r":
			if a.reloader == nil {
				a.statusMsg = "Reload is not available"
				return a, nil
			}
			a.statusMsg = "Reloading components..."
			return a, a.loadConfig(true)
		}
	}

	var cmd tea.Cmd
	a.list, cmd = a.list.Update(msg)
	return a, cmd
}

func (a *App) editSelected(edit func(*userconfig.DashboardComponentConfig)) {
	idx := a.list.Index()
	if !a.loaded || idx < 0 || idx >= len(a.cfg.Dashboard.Components) {
		return
	}
	entry := &a.cfg.Dashboard.Components[idx]
	edit(entry)
	a.dirty = true
	a.list.SetItem(idx, a.itemFor(*entry))
	a.statusMsg = fmt.Sprintf("%s: %s, %s (unsaved)", entry.ID, entry.Area, enabledLabel(entry.Enabled))
}

func (a *App) refreshItems() {
	items := make([]list.Item, 0, len(a.cfg.Dashboard.Components))
	for _, entry := range a.cfg.Dashboard.Components {
		items = append(items, a.itemFor(entry))
	}
	a.list.SetItems(items)
}

func (a *App) itemFor(entry userconfig.DashboardComponentConfig) entryItem {
	name := entry.ID
	if a.catalog != nil {
		if c, ok := a.catalog.Component(entry.ID); ok && c.Manifest.Name != "" {
			name = c.Manifest.Name
		}
	}
	return entryItem{entry: entry, name: name}
}

func (a *App) loadConfig(reload bool) tea.Cmd {
	ctx := a.ctx
	store := a.store
	reloader := a.reloader
	return func() tea.Msg {
		if reload {
			if err := reloader.Reload(ctx); err != nil {
				return configLoadedMsg{err: err}
			}
		}
		cfg, err := store.LoadReconciled(ctx)
		return configLoadedMsg{cfg: cfg, err: err, reloaded: reload}
	}
}

func (a *App) saveConfig() tea.Cmd {
	ctx := a.ctx
	store := a.store
	cfg := a.cfg.Clone()
	return func() tea.Msg {
		return configSavedMsg{err: store.Save(ctx, cfg)}
	}
}

// View renders the inspector.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 80
	}
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("◐ SMART MIRROR")
	var body string
	if a.loaded && len(a.cfg.Dashboard.Components) == 0 {
		body = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render("No components on the dashboard.")
	} else {
		body = a.list.View()
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, width-4)).
		Render(body)
	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666666")).
		Render("space toggle · a area · s save · r reload · q quit")
	status := a.statusMsg
	if a.dirty {
		status += " *"
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render(status)
	return strings.Join([]string{header, box, hint, footer}, "\n")
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
