package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kingrea/smart-mirror/internal/component"
	"github.com/kingrea/smart-mirror/internal/logging"
)

// HandlerResolver resolves the optional handler of the component stored in
// dir. A nil handler with a nil error means the component is presentational.
type HandlerResolver interface {
	Resolve(fsys fs.FS, dir, id string) (component.Handler, error)
}

// ResolverFunc adapts a function into a HandlerResolver.
type ResolverFunc func(fsys fs.FS, dir, id string) (component.Handler, error)

// Resolve executes f.
func (f ResolverFunc) Resolve(fsys fs.FS, dir, id string) (component.Handler, error) {
	if f == nil {
		return nil, nil
	}
	return f(fsys, dir, id)
}

// Source is one discovery tier. Earlier sources take precedence over later
// ones when ids collide.
type Source struct {
	Kind     component.Source
	FS       fs.FS
	Resolver HandlerResolver
}

// IDSet is an immutable set of component ids.
type IDSet map[string]struct{}

// Has reports whether id is in the set.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in lexical order.
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Option customizes a Registry.
type Option func(*Registry)

// WithSource appends a discovery tier.
func WithSource(src Source) Option {
	return func(r *Registry) {
		r.sources = append(r.sources, src)
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics registers registry metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Registry) {
		if reg != nil {
			r.metrics = newMetrics(reg)
		}
	}
}

// Registry holds the discovered components.
type Registry struct {
	sources []Source
	logger  logging.Logger
	metrics *metrics

	mu         sync.RWMutex
	components map[string]component.Component
	ids        IDSet
	loaded     bool
	inflight   *loadCall

	passes atomic.Int64
}

type loadCall struct {
	done chan struct{}
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger:     logging.Nop(),
		components: map[string]component.Component{},
		ids:        IDSet{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Load discovers components unless they are already loaded. Concurrent
// callers share one discovery pass. A pass discarded by Clear does not
// count: waiters join or start the next one, so Load returns nil only once
// the registry is loaded. The returned error is only ever the caller's
// context error; discovery failures are logged instead.
func (r *Registry) Load(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		r.mu.Lock()
		if r.loaded {
			r.mu.Unlock()
			return nil
		}
		call := r.inflight
		if call == nil {
			call = &loadCall{done: make(chan struct{})}
			r.inflight = call
			go r.discover(call)
		}
		r.mu.Unlock()
		select {
		case <-call.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Loaded reports whether a discovery pass has completed since the last Clear.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Clear empties the registry. A pass still running when Clear is called is
// discarded when it finishes.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components = map[string]component.Component{}
	r.ids = IDSet{}
	r.loaded = false
	r.inflight = nil
	r.metrics.setComponents(0)
}

// Components returns a snapshot of every component ordered by id.
func (r *Registry) Components() []component.Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]component.Component, 0, len(r.components))
	for _, c := range r.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the cached id set. The set is replaced, never mutated, when the
// registry reloads; callers must not modify it.
func (r *Registry) IDs() IDSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ids
}

// Component looks up a single component.
func (r *Registry) Component(id string) (component.Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[id]
	return c, ok
}

// Len returns the number of loaded components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

func (r *Registry) discover(call *loadCall) {
	defer close(call.done)
	r.passes.Add(1)
	r.metrics.incLoads()

	found := map[string]component.Component{}
	tierOf := map[string]int{}
	for tier, src := range r.sources {
		r.discoverSource(tier, src, found, tierOf)
	}
	ids := make(IDSet, len(found))
	for id := range found {
		ids[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight != call {
		r.logger.Debugf("registry: discarding discovery pass superseded by clear")
		return
	}
	r.components = found
	r.ids = ids
	r.loaded = true
	r.inflight = nil
	r.metrics.setComponents(len(found))
	r.logger.Infof("registry: loaded %d components", len(found))
}

func (r *Registry) discoverSource(tier int, src Source, found map[string]component.Component, tierOf map[string]int) {
	if src.FS == nil {
		return
	}
	entries, err := fs.ReadDir(src.FS, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Infof("registry: no %s components location", src.Kind)
			return
		}
		r.logger.Warnf("registry: read %s components: %v", src.Kind, err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := entry.Name()
		manifest, err := component.LoadManifest(src.FS, dir)
		if err != nil {
			if errors.Is(err, component.ErrNoManifest) {
				r.logger.Warnf("registry: no %s in %s component %s, skipping", component.ManifestFile, src.Kind, dir)
			} else {
				r.logger.Warnf("registry: skipping %s component %s: %v", src.Kind, dir, err)
			}
			continue
		}
		id := manifest.ID
		if existing, ok := found[id]; ok {
			if tierOf[id] != tier {
				r.logger.Warnf("registry: %s component %s (%s) collides with %s component in %s, keeping %s",
					src.Kind, id, dir, existing.Source, existing.Dir, existing.Source)
				continue
			}
			r.logger.Warnf("registry: component id %s already registered from %s, overwriting with %s", id, existing.Dir, dir)
		}
		found[id] = component.Component{
			ID:       id,
			Manifest: manifest,
			Handler:  r.resolveHandler(src, dir, id),
			Source:   src.Kind,
			Dir:      dir,
		}
		tierOf[id] = tier
	}
}

func (r *Registry) resolveHandler(src Source, dir, id string) (handler component.Handler) {
	if src.Resolver == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warnf("registry: resolving handler for %s panicked: %v", id, rec)
			handler = nil
		}
	}()
	h, err := src.Resolver.Resolve(src.FS, dir, id)
	if err != nil {
		r.logger.Warnf("registry: %s registers without handler: %v", id, fmt.Errorf("resolve %s: %w", dir, err))
		return nil
	}
	return h
}
