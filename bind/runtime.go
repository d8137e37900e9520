// Package bind is the runtime object model over a loaded native library. It
// tracks, per wrapped object, the views of one native allocation keyed by
// lattice type, decides who owns the allocation, and guarantees that the
// native destructor runs at most once per allocation.
package bind

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/maxpert/unitsffi/lattice"
	"github.com/maxpert/unitsffi/native"
	"github.com/maxpert/unitsffi/telemetry"
	"github.com/rs/zerolog/log"
)

// Resolver binds native entry points by name. *native.Registry implements it.
type Resolver interface {
	Resolve(name string) (*native.Proc, error)
}

// RuntimeConfig tunes object construction.
type RuntimeConfig struct {
	// LazyCasts defers materializing base views until they are first used.
	LazyCasts bool
}

// Runtime creates and tracks bound objects for one library and lattice.
// It is safe for concurrent use.
type Runtime struct {
	resolver Resolver
	graph    *lattice.Graph
	config   RuntimeConfig
	tracker  *tracker
	nextID   atomic.Uint64
}

// NewRuntime creates a runtime resolving entry points through resolver.
func NewRuntime(resolver Resolver, graph *lattice.Graph, config RuntimeConfig) *Runtime {
	return &Runtime{
		resolver: resolver,
		graph:    graph,
		config:   config,
		tracker:  newTracker(),
	}
}

// Graph returns the lattice the runtime binds.
func (rt *Runtime) Graph() *lattice.Graph {
	return rt.graph
}

// New constructs an originating object of typeName. No arguments selects the
// default constructor; otherwise the value constructor of matching arity is
// used.
func (rt *Runtime) New(typeName string, args ...int32) (*Object, error) {
	t, err := rt.graph.Describe(typeName)
	if err != nil {
		return nil, err
	}

	ctor, ok := t.Constructor(len(args))
	if !ok {
		return nil, &UnsupportedConstructorError{Type: t.Name, Got: len(args), Accepted: t.Arities()}
	}

	create, err := rt.resolver.Resolve(ctor.Symbol)
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", t.Name, err)
	}
	// resolved before allocating, a missing destructor fails construction
	destroy, err := rt.resolver.Resolve(t.Destructor)
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", t.Name, err)
	}

	raw := make([]uintptr, len(args))
	for i, v := range args {
		raw[i] = native.IntArg(v)
	}
	r, err := create.Call(raw...)
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", t.Name, err)
	}
	ptr := native.Pointer(r)
	if ptr.IsNull() {
		return nil, fmt.Errorf("construct %s: %s returned %w", t.Name, ctor.Symbol, ErrNullPointer)
	}

	a := rt.tracker.originate(t, ptr)
	o := rt.newObject(t, a, ptr)
	o.originator = true
	o.destroy = destroy

	a.mu.Lock()
	err = rt.populate(o, ptr)
	a.mu.Unlock()
	if err != nil {
		return nil, errors.Join(err, o.Release())
	}

	rt.tracker.originated.Store(o.id, o)
	telemetry.ObjectsCreatedTotal.With(t.Name, "originate").Inc()
	log.Debug().
		Str("type", t.Name).
		Uint64("object", o.id).
		Uint64("alloc", a.id).
		Str("pointer", ptr.String()).
		Msg("Originated native object")
	return o, nil
}

// Wrap constructs a non-owning object viewing ptr as typeName. No native
// allocation occurs and releasing the object never frees ptr. When ptr is a
// known view of a tracked allocation the object joins that allocation's group.
func (rt *Runtime) Wrap(typeName string, ptr native.Pointer) (*Object, error) {
	t, err := rt.graph.Describe(typeName)
	if err != nil {
		return nil, err
	}
	if ptr.IsNull() {
		return nil, fmt.Errorf("wrap %s: %w", t.Name, ErrNullPointer)
	}

	a, err := rt.tracker.join(t, ptr)
	if err != nil {
		return nil, fmt.Errorf("wrap %s at %s: %w", t.Name, ptr, err)
	}
	defer a.mu.Unlock()
	return rt.attach(t, a, ptr, "wrap")
}

// attach creates a shallow object on a locked allocation.
func (rt *Runtime) attach(t *lattice.Type, a *allocation, ptr native.Pointer, mode string) (*Object, error) {
	o := rt.newObject(t, a, ptr)
	if err := rt.populate(o, ptr); err != nil {
		o.released = true
		o.views = nil
		rt.tracker.detach(a)
		return nil, err
	}
	telemetry.ObjectsCreatedTotal.With(t.Name, mode).Inc()
	return o, nil
}

func (rt *Runtime) newObject(t *lattice.Type, a *allocation, ptr native.Pointer) *Object {
	o := &Object{
		rt:       rt,
		id:       rt.nextID.Add(1),
		declared: t,
		alloc:    a,
		views:    make(map[*lattice.Type]native.Pointer),
	}
	o.views[t] = ptr
	o.order = append(o.order, t)
	return o
}

// populate materializes every ancestor view unless casts are lazy. Caller
// holds the allocation lock.
func (rt *Runtime) populate(o *Object, ptr native.Pointer) error {
	if rt.config.LazyCasts {
		return nil
	}
	return o.materialize(o.declared, ptr)
}

// Scope runs fn with a fresh scope and releases every object the scope
// acquired when fn returns or panics.
func (rt *Runtime) Scope(fn func(s *Scope) error) (err error) {
	s := rt.NewScope()
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(s)
}

// AllocationStats counts live originated allocations by declared type.
func (rt *Runtime) AllocationStats() map[string]int {
	stats := make(map[string]int)
	rt.tracker.originated.Range(func(_ uint64, o *Object) bool {
		stats[o.declared.Name]++
		return true
	})
	return stats
}

// Allocations describes every tracked allocation group.
func (rt *Runtime) Allocations() []AllocationInfo {
	return rt.tracker.allocations()
}

// Reclaim releases every originator that is still alive and returns how
// many there were.
func (rt *Runtime) Reclaim() (int, error) {
	var leaked []*Object
	rt.tracker.originated.Range(func(_ uint64, o *Object) bool {
		leaked = append(leaked, o)
		return true
	})

	var errs []error
	for _, o := range leaked {
		log.Warn().
			Str("type", o.declared.Name).
			Uint64("object", o.id).
			Uint64("alloc", o.alloc.id).
			Msg("Reclaiming leaked native object")
		telemetry.ReleasesTotal.With(o.declared.Name, "leaked").Inc()
		if err := o.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return len(leaked), errors.Join(errs...)
}

// Close reclaims leaked originators. The runtime stays usable afterwards.
func (rt *Runtime) Close() error {
	n, err := rt.Reclaim()
	if n > 0 {
		log.Warn().Int("objects", n).Msg("Runtime closed with live native objects")
	}
	return err
}
