// Package dispatch is the single entry point for calling component
// handlers. It turns every handler result, error and panic into an Outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kingrea/smart-mirror/internal/component"
	"github.com/kingrea/smart-mirror/internal/logging"
)

// Lookup is the registry view the proxy needs.
type Lookup interface {
	Load(ctx context.Context) error
	Component(id string) (component.Component, bool)
}

// SettingsSource provides the persisted settings of a component.
type SettingsSource interface {
	ComponentSettings(ctx context.Context, id string) component.Settings
}

// Outcome is the transport-agnostic result of a call. Error is set when the
// call failed, never empty; Data otherwise.
type Outcome struct {
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
	Status int    `json:"status"`
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool {
	return o.Status < http.StatusBadRequest
}

func failed(msg string, status int) Outcome {
	if msg == "" {
		msg = component.UnknownErrorMessage
	}
	return Outcome{Error: msg, Status: status}
}

// Option customizes a Proxy.
type Option func(*Proxy)

// WithLogger overrides the default no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Proxy) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics registers dispatch metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(p *Proxy) {
		if reg != nil {
			p.metrics = newMetrics(reg)
		}
	}
}

// Proxy resolves component ids to handlers and invokes them.
type Proxy struct {
	components Lookup
	settings   SettingsSource
	logger     logging.Logger
	metrics    *metrics
	now        func() time.Time
}

// New builds a proxy over the registry and config store.
func New(components Lookup, settings SettingsSource, opts ...Option) *Proxy {
	p := &Proxy{
		components: components,
		settings:   settings,
		logger:     logging.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Call invokes the handler of component id with its persisted settings. req
// may be nil.
func (p *Proxy) Call(ctx context.Context, id string, req *http.Request) Outcome {
	if ctx == nil {
		ctx = context.Background()
	}
	start := p.now()
	out := p.call(ctx, id, req)
	label := id
	if _, known := p.components.Component(id); !known {
		label = "unknown"
	}
	p.metrics.observe(label, out.Status, p.now().Sub(start))
	if out.Status >= http.StatusInternalServerError {
		p.logger.Warnf("dispatch: %s failed: %s", id, out.Error)
	}
	return out
}

func (p *Proxy) call(ctx context.Context, id string, req *http.Request) Outcome {
	if err := p.components.Load(ctx); err != nil {
		return failed(err.Error(), http.StatusServiceUnavailable)
	}
	comp, ok := p.components.Component(id)
	if !ok {
		return failed(fmt.Sprintf("Component %q not found", id), http.StatusNotFound)
	}
	if !comp.HasHandler() {
		return failed(fmt.Sprintf("Component %q has no API handler", id), http.StatusNotFound)
	}
	settings := component.Settings{}
	if p.settings != nil {
		if s := p.settings.ComponentSettings(ctx, id); s != nil {
			settings = s
		}
	}
	result, err := invoke(ctx, comp.Handler, settings, req)
	if err != nil {
		if errors.Is(err, component.ErrNotAuthenticated) {
			return failed(component.AuthRequiredMessage, http.StatusUnauthorized)
		}
		return failed(err.Error(), http.StatusInternalServerError)
	}
	if msg, isFailure := component.FailureMessage(result); isFailure {
		if msg == component.AuthRequiredMessage {
			return failed(msg, http.StatusUnauthorized)
		}
		return failed(msg, http.StatusInternalServerError)
	}
	return Outcome{Data: result, Status: http.StatusOK}
}

func invoke(ctx context.Context, h component.Handler, settings component.Settings, req *http.Request) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			switch v := rec.(type) {
			case error:
				err = v
			default:
				err = fmt.Errorf("%v", v)
			}
			result = nil
		}
	}()
	return h(ctx, settings, req)
}
