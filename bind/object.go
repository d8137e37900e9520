package bind

import (
	"fmt"

	"github.com/maxpert/unitsffi/lattice"
	"github.com/maxpert/unitsffi/native"
	"github.com/maxpert/unitsffi/telemetry"
	"github.com/rs/zerolog/log"
)

// Object is one wrapped native instance: the views of a single allocation
// keyed by lattice type, plus ownership state. An originating object frees
// the allocation when released; a shallow object never does.
//
// Objects must be released explicitly with Release, Close or a Scope. There
// is no finalizer.
type Object struct {
	rt       *Runtime
	id       uint64
	declared *lattice.Type
	alloc    *allocation

	// guarded by alloc.mu
	views      map[*lattice.Type]native.Pointer
	order      []*lattice.Type
	originator bool
	destroy    *native.Proc
	released   bool
}

// ID is unique per runtime.
func (o *Object) ID() uint64 {
	return o.id
}

// Runtime returns the runtime that created o.
func (o *Object) Runtime() *Runtime {
	return o.rt
}

// Type returns the declared type.
func (o *Object) Type() *lattice.Type {
	return o.declared
}

func (o *Object) String() string {
	o.alloc.mu.Lock()
	defer o.alloc.mu.Unlock()

	state := "shallow"
	switch {
	case o.released:
		state = "released"
	case o.originator:
		state = "originator"
	}
	return fmt.Sprintf("%s#%d(%s)", o.declared.Name, o.id, state)
}

// IsOriginator reports whether releasing o frees the native allocation.
func (o *Object) IsOriginator() bool {
	o.alloc.mu.Lock()
	defer o.alloc.mu.Unlock()
	return o.originator
}

// Released reports whether o was released.
func (o *Object) Released() bool {
	o.alloc.mu.Lock()
	defer o.alloc.mu.Unlock()
	return o.released
}

// checkLocked fails when o or its allocation is no longer usable. Caller
// holds the allocation lock.
func (o *Object) checkLocked() error {
	if o.released {
		return fmt.Errorf("%s#%d: %w", o.declared.Name, o.id, ErrUseAfterRelease)
	}
	if o.alloc.freed {
		return fmt.Errorf("%s#%d: allocation %d freed by its originator: %w",
			o.declared.Name, o.id, o.alloc.id, ErrUseAfterRelease)
	}
	return nil
}

// Views returns the materialized views by type name.
func (o *Object) Views() (map[string]native.Pointer, error) {
	o.alloc.mu.Lock()
	defer o.alloc.mu.Unlock()

	if err := o.checkLocked(); err != nil {
		return nil, err
	}
	out := make(map[string]native.Pointer, len(o.views))
	for _, t := range o.order {
		out[t.Name] = o.views[t]
	}
	return out, nil
}

// Pointer returns the view of the declared type.
func (o *Object) Pointer() (native.Pointer, error) {
	return o.ViewAs(o.declared.Name)
}

// ViewAs returns the pointer viewing o as typeName, which must be the
// declared type or one of its ancestors.
func (o *Object) ViewAs(typeName string) (native.Pointer, error) {
	target, err := o.target(typeName)
	if err != nil {
		return 0, err
	}

	o.alloc.mu.Lock()
	defer o.alloc.mu.Unlock()

	if err := o.checkLocked(); err != nil {
		return 0, err
	}
	return o.viewLocked(target)
}

// target looks up a view target. A name the graph does not know is outside
// o's lattice as well.
func (o *Object) target(typeName string) (*lattice.Type, error) {
	t, err := o.rt.graph.Describe(typeName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", o.declared.Name, ErrNotInLattice, err)
	}
	return t, nil
}

// Cast returns a new shallow object of type typeName aliasing o's
// allocation. Writes through either object are visible through the other.
func (o *Object) Cast(typeName string) (*Object, error) {
	target, err := o.target(typeName)
	if err != nil {
		return nil, err
	}

	a := o.alloc
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := o.checkLocked(); err != nil {
		return nil, err
	}
	ptr, err := o.viewLocked(target)
	if err != nil {
		return nil, err
	}

	a.objects++
	alias := o.rt.newObject(target, a, ptr)
	for _, t := range o.rt.graph.AncestorsOf(target) {
		if p, ok := o.views[t]; ok {
			alias.views[t] = p
			alias.order = append(alias.order, t)
		}
	}
	if err := o.rt.populate(alias, ptr); err != nil {
		alias.released = true
		alias.views = nil
		o.rt.tracker.detach(a)
		return nil, err
	}
	telemetry.ObjectsCreatedTotal.With(target.Name, "cast").Inc()
	return alias, nil
}

// Get reads an int field declared by the type or one of its ancestors,
// through the declaring type's view.
func (o *Object) Get(field string) (int32, error) {
	owner, acc, ok := o.rt.graph.FieldOwner(o.declared, field)
	if !ok {
		return 0, fmt.Errorf("%s.%s: %w", o.declared.Name, field, ErrUnknownField)
	}
	r, err := o.rt.call(owner.GetterSignature(acc), []any{o})
	if err != nil {
		return 0, err
	}
	return r.Int(), nil
}

// Set writes an int field through the declaring type's view.
func (o *Object) Set(field string, value int32) error {
	owner, acc, ok := o.rt.graph.FieldOwner(o.declared, field)
	if !ok {
		return fmt.Errorf("%s.%s: %w", o.declared.Name, field, ErrUnknownField)
	}
	_, err := o.rt.call(owner.SetterSignature(acc), []any{o, value})
	return err
}

// Print delegates to the nearest Print entry point in o's lineage.
func (o *Object) Print() error {
	_, err := o.Call("Print")
	return err
}

// Call invokes a method declared by the type or one of its ancestors. The
// receiver is passed as the declaring type's view.
func (o *Object) Call(method string, args ...any) (Result, error) {
	_, m, ok := o.rt.graph.MethodOwner(o.declared, method)
	if !ok {
		return Result{}, fmt.Errorf("%s.%s: %w", o.declared.Name, method, ErrUnknownMethod)
	}
	return o.rt.call(m.Sig, append([]any{o}, args...))
}

// Release tears o down. An originator calls the declared type's destructor
// exactly once; a shallow object only drops its bookkeeping. Releasing twice
// is a no-op.
func (o *Object) Release() error {
	a := o.alloc
	a.mu.Lock()
	defer a.mu.Unlock()

	if o.released {
		telemetry.ReleasesTotal.With(o.declared.Name, "duplicate").Inc()
		log.Debug().
			Err(ErrDoubleRelease).
			Str("type", o.declared.Name).
			Uint64("object", o.id).
			Msg("Ignoring duplicate release")
		return nil
	}

	ptr := o.views[o.declared]
	o.released = true
	o.views = nil
	o.order = nil

	if !o.originator {
		o.rt.tracker.detach(a)
		telemetry.ReleasesTotal.With(o.declared.Name, "alias").Inc()
		return nil
	}

	destroy := o.destroy
	o.originator = false
	o.destroy = nil
	a.freed = true
	a.objects--
	o.rt.tracker.retire(a)
	o.rt.tracker.originated.Delete(o.id)

	if _, err := destroy.Call(uintptr(ptr)); err != nil {
		return fmt.Errorf("release %s#%d: %w", o.declared.Name, o.id, err)
	}
	telemetry.ReleasesTotal.With(o.declared.Name, "destroyed").Inc()
	log.Debug().
		Str("type", o.declared.Name).
		Uint64("object", o.id).
		Uint64("alloc", a.id).
		Msg("Destroyed native object")
	return nil
}

// Close implements io.Closer.
func (o *Object) Close() error {
	return o.Release()
}
