package compiler

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"

	"github.com/matthewbaird/reportfilter/internal/fql"
)

// Constructor builds a ready-to-use compiler.
type Constructor func() QueryCompiler

// Registry maps compiler names to constructors. It is populated at startup
// and only read afterwards.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry creates a registry with one SQLCompiler per supported dialect,
// each sharing mapper, cfg and logger.
func NewRegistry(mapper TableMapper, cfg OptimizationConfig, logger hclog.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{constructors: make(map[string]Constructor)}
	for _, d := range Dialects {
		c, err := New(WithDialect(d), WithTableMapper(mapper), WithOptimizationConfig(cfg), WithLogger(logger))
		if err != nil {
			return nil, err
		}
		r.Register(d, func() QueryCompiler { return c })
	}
	return r, nil
}

// Register adds or replaces the constructor for name.
func (r *Registry) Register(name string, ctor Constructor) {
	if r.constructors == nil {
		r.constructors = make(map[string]Constructor)
	}
	r.constructors[name] = ctor
}

// Lookup constructs the compiler registered under name.
func (r *Registry) Lookup(name string) (QueryCompiler, error) {
	ctor, ok := r.constructors[name]
	if !ok {
		if s := fql.SuggestFrom(name, r.Names(), 3); s != "" {
			return nil, fmt.Errorf("%w '%s' (%s)", ErrUnknownCompiler, name, s)
		}
		return nil, fmt.Errorf("%w '%s'", ErrUnknownCompiler, name)
	}
	return ctor(), nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
