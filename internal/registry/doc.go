// Package registry is the catalog of dashboard components.
//
// Components are discovered from an ordered list of sources: the built-in
// components compiled into the binary come first, then the external plugin
// directory. Each subdirectory holding a valid manifest.json becomes a
// component; its handler is resolved by the source's HandlerResolver.
//
// Loading is idempotent and safe for concurrent use. The first Load starts a
// single discovery pass and every caller that arrives while it runs waits
// for that same pass. Discovery problems (missing or malformed manifests,
// unreadable directories, broken plugin handlers) are logged and skipped;
// they never fail the load. Clear returns the registry to its empty state so
// the next Load rediscovers everything.
package registry
