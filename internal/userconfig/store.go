package userconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kingrea/smart-mirror/internal/component"
	"github.com/kingrea/smart-mirror/internal/logging"
	"github.com/kingrea/smart-mirror/internal/registry"
)

// Catalog is the view of the registry reconciliation needs.
type Catalog interface {
	Load(ctx context.Context) error
	IDs() registry.IDSet
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger overrides the default no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaults overrides the configuration used when nothing is persisted.
func WithDefaults(fn func() UserConfig) Option {
	return func(s *Store) {
		if fn != nil {
			s.defaults = fn
		}
	}
}

// Store caches the user configuration in front of a Backend.
type Store struct {
	backend  Backend
	catalog  Catalog
	logger   logging.Logger
	defaults func() UserConfig

	mu     sync.RWMutex
	cached *UserConfig
}

// NewStore returns a store persisting through backend and reconciling
// against catalog.
func NewStore(backend Backend, catalog Catalog, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		catalog:  catalog,
		logger:   logging.Nop(),
		defaults: DefaultConfig,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load returns the cached configuration, reading the backend on first use.
// Missing sections are filled from defaults; an unreadable or unparsable
// document yields the defaults.
func (s *Store) Load(ctx context.Context) UserConfig {
	s.mu.RLock()
	if s.cached != nil {
		cfg := s.cached.Clone()
		s.mu.RUnlock()
		return cfg
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		cfg := s.read(ctx)
		s.cached = &cfg
	}
	return s.cached.Clone()
}

// Invalidate drops the cached value so the next Load reads the backend.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

type document struct {
	Dashboard  *Dashboard                    `json:"dashboard"`
	Components map[string]component.Settings `json:"components"`
}

func (s *Store) read(ctx context.Context) UserConfig {
	defaults := s.defaults()
	data, err := s.backend.Read(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debugf("userconfig: nothing persisted, using defaults")
		} else {
			s.logger.Warnf("userconfig: %v; using defaults", err)
		}
		return defaults
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warnf("userconfig: parse config: %v; using defaults", err)
		return defaults
	}
	cfg := defaults
	if doc.Dashboard != nil {
		cfg.Dashboard = *doc.Dashboard
	}
	if doc.Components != nil {
		cfg.Components = doc.Components
	}
	if cfg.Dashboard.Components == nil {
		cfg.Dashboard.Components = []DashboardComponentConfig{}
	}
	return cfg
}

// Save persists cfg and, once the write succeeds, replaces the cache. A
// failed write leaves the cache untouched.
func (s *Store) Save(ctx context.Context, cfg UserConfig) error {
	snapshot := cfg.Clone()
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("userconfig: encode: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("userconfig: save: %w", err)
	}
	s.cached = &snapshot
	return nil
}

// ComponentSettings returns the persisted settings of id, or an empty map.
func (s *Store) ComponentSettings(ctx context.Context, id string) component.Settings {
	cfg := s.Load(ctx)
	if settings, ok := cfg.Components[id]; ok && settings != nil {
		return settings
	}
	return component.Settings{}
}

// Reconcile reshapes cfg so its dashboard lists exactly the registry's ids.
// Unknown and duplicate entries are dropped; registry ids without an entry
// are appended disabled at DefaultArea in id order. When anything changed
// the result is persisted; persistence errors are logged and the
// reconciled config is returned regardless. The error is non-nil only when
// ctx ends before the registry finishes loading.
func (s *Store) Reconcile(ctx context.Context, cfg UserConfig) (UserConfig, error) {
	if err := s.catalog.Load(ctx); err != nil {
		return cfg, fmt.Errorf("userconfig: reconcile: %w", err)
	}
	ids := s.catalog.IDs()

	out := cfg.Clone()
	kept := make([]DashboardComponentConfig, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	var dropped []string
	for _, entry := range cfg.Dashboard.Components {
		if !ids.Has(entry.ID) || seen[entry.ID] {
			dropped = append(dropped, entry.ID)
			continue
		}
		seen[entry.ID] = true
		kept = append(kept, entry)
	}
	var added []string
	for _, id := range ids.Sorted() {
		if seen[id] {
			continue
		}
		added = append(added, id)
		kept = append(kept, DashboardComponentConfig{ID: id, Enabled: false, Area: DefaultArea})
	}
	out.Dashboard.Components = kept
	if out.Components == nil {
		out.Components = map[string]component.Settings{}
	}

	if len(dropped) == 0 && len(added) == 0 {
		return out, nil
	}
	if len(dropped) > 0 {
		sort.Strings(dropped)
		s.logger.Infof("userconfig: removed unknown components from dashboard: %s", strings.Join(dropped, ", "))
	}
	if len(added) > 0 {
		s.logger.Infof("userconfig: added new components to dashboard (disabled): %s", strings.Join(added, ", "))
	}
	if err := s.Save(ctx, out); err != nil {
		s.logger.Errorf("userconfig: persisting reconciled config: %v", err)
	}
	return out, nil
}

// LoadReconciled loads the configuration and reconciles it.
func (s *Store) LoadReconciled(ctx context.Context) (UserConfig, error) {
	return s.Reconcile(ctx, s.Load(ctx))
}
