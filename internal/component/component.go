// Package component defines the self-describing dashboard widget unit: a
// manifest, an optional server-side handler, and the helpers that read and
// validate manifests from a component directory.
package component

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AuthRequiredMessage is the failure message a handler reports when the
// component needs the user to (re)authenticate with its upstream service.
const AuthRequiredMessage = "Not authenticated"

// UnknownErrorMessage stands in for a failure that carries no message.
const UnknownErrorMessage = "Unknown error"

// ErrNotAuthenticated is the error form of AuthRequiredMessage.
var ErrNotAuthenticated = errors.New(AuthRequiredMessage)

// Source identifies where a component was discovered.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourcePlugin  Source = "plugin"
)

// Settings is the persisted per-component configuration handed to a handler.
type Settings map[string]any

// String returns the string value stored under key, or "".
func (s Settings) String(key string) string {
	if s == nil {
		return ""
	}
	v, _ := s[key].(string)
	return strings.TrimSpace(v)
}

// Handler produces a component's data payload. req is nil when the call
// does not originate from an HTTP request.
type Handler func(ctx context.Context, settings Settings, req *http.Request) (any, error)

// Component is a discovered widget. Components are immutable once the
// registry inserts them.
type Component struct {
	ID       string
	Manifest Manifest
	Handler  Handler
	Source   Source
	Dir      string
}

// HasHandler reports whether the component exposes server-side behaviour.
func (c Component) HasHandler() bool {
	return c.Handler != nil
}

// Failure is a handler result that signals a domain error without failing
// the call itself.
type Failure struct {
	Error string `json:"error"`
}

// Fail builds a Failure result.
func Fail(message string) Failure {
	return Failure{Error: message}
}

// FailureMessage reports whether result carries an error field and returns
// its message. Interpreted plugins cannot reference Failure, so maps with an
// "error" key are recognised too, whatever the value.
func FailureMessage(result any) (string, bool) {
	switch v := result.(type) {
	case Failure:
		return v.Error, true
	case *Failure:
		if v == nil {
			return "", false
		}
		return v.Error, true
	case map[string]any:
		return mapFailure(v)
	case Settings:
		return mapFailure(v)
	case map[string]string:
		msg, ok := v["error"]
		return msg, ok
	}
	return "", false
}

func mapFailure(m map[string]any) (string, bool) {
	raw, ok := m["error"]
	if !ok {
		return "", false
	}
	switch msg := raw.(type) {
	case nil:
		return UnknownErrorMessage, true
	case string:
		return msg, true
	case error:
		return msg.Error(), true
	default:
		return fmt.Sprint(msg), true
	}
}
