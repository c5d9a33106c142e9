// Package plugins resolves handlers for external components: directories
// under the plugins location whose handler.go is interpreted at runtime.
// Plugin code runs with full host trust.
package plugins

import (
	"io/fs"

	"github.com/kingrea/smart-mirror/internal/component"
)

// Resolver loads external handlers with the Go interpreter.
type Resolver struct{}

// NewResolver returns a resolver for interpreted plugin handlers.
func NewResolver() Resolver {
	return Resolver{}
}

// Resolve implements registry.HandlerResolver.
func (Resolver) Resolve(fsys fs.FS, dir, _ string) (component.Handler, error) {
	return LoadHandler(fsys, dir)
}
