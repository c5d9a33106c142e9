package plugins

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"net/http"
	"path"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/kingrea/smart-mirror/internal/component"
)

// HandlerFile is the source file an external component may ship to expose
// server-side behaviour.
const HandlerFile = "handler.go"

const (
	defaultHandlerSymbol = "Handler"
	namedHandlerSymbol   = "GET"
)

// ErrNoHandler is returned when a handler file exists but exports neither
// Handler nor GET.
var ErrNoHandler = errors.New("plugin: no Handler or GET function")

// LoadHandler interprets dir/handler.go from fsys and returns the exported
// handler. It returns (nil, nil) when the directory has no handler file.
//
// Accepted signatures, using standard library types only:
//
//	func(context.Context, map[string]any, *http.Request) (any, error)
//	func(map[string]any, *http.Request) (any, error)
//	func(map[string]any) (any, error)
func LoadHandler(fsys fs.FS, dir string) (component.Handler, error) {
	file := path.Join(dir, HandlerFile)
	code, err := fs.ReadFile(fsys, file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("plugin: read %s: %w", file, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("plugin: %s is empty", file)
	}
	pkg, err := packageName(file, code)
	if err != nil {
		return nil, err
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin: load stdlib symbols: %w", err)
	}
	if _, err := i.Eval(string(code)); err != nil {
		return nil, fmt.Errorf("plugin: interpret %s: %w", file, err)
	}
	for _, symbol := range []string{defaultHandlerSymbol, namedHandlerSymbol} {
		value, err := i.Eval(qualify(pkg, symbol))
		if err != nil {
			continue
		}
		handler, err := adaptHandler(value)
		if err != nil {
			return nil, fmt.Errorf("plugin: %s %s: %w", file, symbol, err)
		}
		return handler, nil
	}
	return nil, fmt.Errorf("%w in %s", ErrNoHandler, file)
}

func packageName(file string, code []byte) (string, error) {
	parsed, err := parser.ParseFile(token.NewFileSet(), file, code, parser.PackageClauseOnly)
	if err != nil {
		return "", fmt.Errorf("plugin: parse %s: %w", file, err)
	}
	return parsed.Name.Name, nil
}

func qualify(pkg, symbol string) string {
	if pkg == "" || pkg == "main" {
		return symbol
	}
	return pkg + "." + symbol
}

func adaptHandler(value reflect.Value) (component.Handler, error) {
	if !value.IsValid() {
		return nil, errors.New("symbol has no value")
	}
	if value.Kind() != reflect.Func {
		return nil, fmt.Errorf("is a %s, not a function", value.Kind())
	}
	switch fn := value.Interface().(type) {
	case func(context.Context, map[string]any, *http.Request) (any, error):
		return func(ctx context.Context, settings component.Settings, req *http.Request) (any, error) {
			return fn(ctx, map[string]any(settings), req)
		}, nil
	case func(map[string]any, *http.Request) (any, error):
		return func(_ context.Context, settings component.Settings, req *http.Request) (any, error) {
			return fn(map[string]any(settings), req)
		}, nil
	case func(map[string]any) (any, error):
		return func(_ context.Context, settings component.Settings, _ *http.Request) (any, error) {
			return fn(map[string]any(settings))
		}, nil
	}
	return nil, fmt.Errorf("unsupported signature %s", value.Type())
}
