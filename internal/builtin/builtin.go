// Package builtin holds the components compiled into the binary. Their
// manifests are embedded and their handlers come from a static id→handler
// table, so every deployment has them without runtime loading.
package builtin

import (
	"embed"
	"io/fs"

	"github.com/kingrea/smart-mirror/internal/component"
	"github.com/kingrea/smart-mirror/internal/registry"
)

//go:embed components
var embedded embed.FS

// FS returns the built-in component tree; each top-level directory is one
// component.
func FS() fs.FS {
	sub, err := fs.Sub(embedded, "components")
	if err != nil {
		panic(err)
	}
	return sub
}

// Handlers returns the static handler table keyed by component id.
// Components missing from the table are presentational.
func Handlers() map[string]component.Handler {
	stats := newSystemStats(newHostSource("", ""))
	events := newEvents(nil)
	calendar := newCalendar(settingTokens{}, emptyCalendar{})
	return map[string]component.Handler{
		"system-stats": stats.handle,
		"wifi-qr-code": wifiQRCode,
		"events":       events.handle,
		"calendar":     calendar.handle,
	}
}

// Resolver looks handlers up in a fixed table.
type Resolver struct {
	handlers map[string]component.Handler
}

var _ registry.HandlerResolver = Resolver{}

// NewResolver returns a resolver backed by Handlers().
func NewResolver() Resolver {
	return Resolver{handlers: Handlers()}
}

// Resolve implements registry.HandlerResolver.
func (r Resolver) Resolve(_ fs.FS, _ string, id string) (component.Handler, error) {
	return r.handlers[id], nil
}

// Source returns the built-in discovery tier.
func Source() registry.Source {
	return registry.Source{
		Kind:     component.SourceBuiltin,
		FS:       FS(),
		Resolver: NewResolver(),
	}
}
