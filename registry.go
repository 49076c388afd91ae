package flatwire

import (
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/xerrors"
)

// Registry maps type identity to TypeDescriptor. It replaces hidden
// global lookup state: callers construct one, register every
// descriptor at startup, and inject it where tables are decoded.
// Nested table references name their target type and are resolved
// through the registry only when followed, so mutually referential
// types need no declaration order.
//
// Registration is concurrency-safe and lookups are lock-free, matching
// the read-mostly access pattern of a descriptor set that is built once
// and consulted by many concurrent readers.
type Registry struct {
	types *xsync.MapOf[string, *TypeDescriptor]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: xsync.NewMapOf[string, *TypeDescriptor]()}
}

// Register adds a descriptor under its type name. Registering the same
// name twice is an error; descriptors are static startup data and a
// collision means two types claim one identity.
func (r *Registry) Register(d *TypeDescriptor) error {
	if _, loaded := r.types.LoadOrStore(d.Name(), d); loaded {
		return xerrors.Errorf("flatwire: type %q already registered", d.Name())
	}
	return nil
}

// MustRegister registers static startup descriptors, panicking on a
// duplicate name.
func (r *Registry) MustRegister(ds ...*TypeDescriptor) *Registry {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup resolves a type name to its descriptor.
func (r *Registry) Lookup(name string) (*TypeDescriptor, bool) {
	return r.types.Load(name)
}
