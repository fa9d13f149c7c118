package retriever

import (
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrUnknownRetriever is returned for names that are not registered.
var ErrUnknownRetriever = errors.New("unknown retriever")

// Registry selects retrievers by explicit name.
type Registry struct {
	byName map[string]Retriever
}

// NewRegistry registers rs under their names. Duplicate names are an error.
func NewRegistry(rs ...Retriever) (*Registry, error) {
	reg := &Registry{byName: make(map[string]Retriever, len(rs))}
	for _, r := range rs {
		if _, dup := reg.byName[r.Name()]; dup {
			return nil, fmt.Errorf("duplicate retriever name %q", r.Name())
		}
		reg.byName[r.Name()] = r
	}
	return reg, nil
}

// Get returns the retriever called name.
func (reg *Registry) Get(name string) (Retriever, error) {
	r, ok := reg.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownRetriever, name, reg.Names())
	}
	return r, nil
}

// Names returns the registered names in sorted order.
func (reg *Registry) Names() []string {
	names := make([]string, 0, len(reg.byName))
	for n := range reg.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of the name to retriever mapping.
func (reg *Registry) All() map[string]Retriever {
	out := make(map[string]Retriever, len(reg.byName))
	for n, r := range reg.byName {
		out[n] = r
	}
	return out
}

// Close closes every retriever holding resources.
func (reg *Registry) Close() error {
	var errs []error
	for _, name := range reg.Names() {
		if c, ok := reg.byName[name].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
