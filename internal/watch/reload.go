// Package watch reloads the component registry when the plugin directory
// changes and tells connected dashboards about it.
package watch

import (
	"context"
	"fmt"

	"github.com/kingrea/smart-mirror/internal/logging"
	"github.com/kingrea/smart-mirror/internal/registry"
	"github.com/kingrea/smart-mirror/internal/stream"
	"github.com/kingrea/smart-mirror/internal/userconfig"
)

// Reloader rediscovers components and reconciles the stored layout.
type Reloader struct {
	Registry *registry.Registry
	Store    *userconfig.Store
	Hub      *stream.Hub
	Logger   logging.Logger
}

// Reload clears the registry, loads it again, reconciles the user
// configuration and publishes "components-reloaded".
func (r *Reloader) Reload(ctx context.Context) error {
	logger := logging.OrNop(r.Logger)
	before := r.Registry.IDs()
	r.Registry.Clear()
	if err := r.Registry.Load(ctx); err != nil {
		return fmt.Errorf("watch: reload: %w", err)
	}
	if r.Store != nil {
		if _, err := r.Store.LoadReconciled(ctx); err != nil {
			return fmt.Errorf("watch: reload: %w", err)
		}
	}
	after := r.Registry.IDs()
	logger.Infof("watch: reloaded components (%d before, %d now)", len(before), len(after))
	if r.Hub != nil {
		r.Hub.Publish(stream.TypeComponentsReloaded)
	}
	return nil
}
