package locator

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Factory constructs a Locator and its Driver from the portion of a locator
// string following the scheme prefix (e.g. for "postgres://host/db#table",
// the factory for "postgres:" receives "//host/db#table").
type Factory func(tail string) (Locator, Driver, error)

// Registry maps scheme prefixes to driver factories (spec.md §4.4) and
// caches the Locator/Driver pairs it builds, the way the teacher's
// CacheingConnectionManager (go/materialize/driver/sql/interface.go) avoids
// reconnecting for repeated requests against the same URI within one
// process.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	cache     *lru.Cache[string, resolved]
}

type resolved struct {
	loc    Locator
	driver Driver
}

// NewRegistry returns an empty Registry with a bounded resolution cache.
func NewRegistry() *Registry {
	cache, err := lru.New[string, resolved](256)
	if err != nil {
		// Only fails for a non-positive size, which is a programmer error.
		panic(err)
	}
	return &Registry{factories: make(map[string]Factory), cache: cache}
}

// Register adds a driver factory for the given scheme (including the
// trailing ':'). Registering the same scheme twice is a programmer error
// and panics, mirroring the teacher's init-time driver registration.
func (r *Registry) Register(scheme string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[scheme]; dup {
		panic(fmt.Sprintf("locator scheme %q registered twice", scheme))
	}
	r.factories[scheme] = factory
}

// Schemes returns every registered scheme, for the `features` CLI command.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	return out
}

// Resolve parses s, looks up its driver by scheme, and builds a
// Locator/Driver pair, reusing a cached pair for the same string if one
// exists.
func (r *Registry) Resolve(s string) (Locator, Driver, error) {
	if cached, ok := r.cache.Get(s); ok {
		return cached.loc, cached.driver, nil
	}

	scheme, err := ParseScheme(s)
	if err != nil {
		return nil, nil, err
	}

	r.mu.RLock()
	factory, ok := r.factories[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown locator scheme in %q", s)
	}

	tail := s[len(scheme):]
	loc, driver, err := factory(tail)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing locator %q: %w", s, err)
	}

	r.cache.Add(s, resolved{loc: loc, driver: driver})
	return loc, driver, nil
}
