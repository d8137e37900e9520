package bind

import (
	"fmt"

	"github.com/maxpert/unitsffi/lattice"
	"github.com/maxpert/unitsffi/native"
	"github.com/maxpert/unitsffi/telemetry"
	"github.com/rs/zerolog/log"
)

// materialize casts ptr, a view of t, to each direct base of t in declared
// order and recurses with the base's own pointer. Bases already viewed, as
// happens in a diamond, are left untouched. Caller holds the allocation lock.
func (o *Object) materialize(t *lattice.Type, ptr native.Pointer) error {
	for _, base := range t.Bases {
		if _, ok := o.views[base]; ok {
			continue
		}
		basePtr, err := o.castStep(t, base, ptr)
		if err != nil {
			return err
		}
		if err := o.materialize(base, basePtr); err != nil {
			return err
		}
	}
	return nil
}

// viewLocked returns the view for target, composing pairwise casts along the
// lattice path from the declared type when it is not memoized yet. Caller
// holds the allocation lock.
func (o *Object) viewLocked(target *lattice.Type) (native.Pointer, error) {
	if ptr, ok := o.views[target]; ok {
		telemetry.CastsTotal.With("memo").Inc()
		return ptr, nil
	}

	path, err := o.rt.graph.CastPath(o.declared, target)
	if err != nil {
		return 0, fmt.Errorf("%s#%d: %w", o.declared.Name, o.id, err)
	}

	cur := o.views[path[0]]
	for i := 1; i < len(path); i++ {
		if ptr, ok := o.views[path[i]]; ok {
			cur = ptr
			continue
		}
		cur, err = o.castStep(path[i-1], path[i], cur)
		if err != nil {
			return 0, err
		}
	}
	return cur, nil
}

// castStep calls the native cast from a view of t to its direct base and
// memoizes the result.
func (o *Object) castStep(t, base *lattice.Type, ptr native.Pointer) (native.Pointer, error) {
	sym, ok := t.CastSymbol(base)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a direct base of %s", ErrNotInLattice, base.Name, t.Name)
	}
	proc, err := o.rt.resolver.Resolve(sym)
	if err != nil {
		return 0, fmt.Errorf("cast %s to %s: %w", t.Name, base.Name, err)
	}
	r, err := proc.Call(uintptr(ptr))
	if err != nil {
		return 0, fmt.Errorf("cast %s to %s: %w", t.Name, base.Name, err)
	}
	out := native.Pointer(r)
	if out.IsNull() {
		return 0, fmt.Errorf("cast %s to %s: %s returned %w", t.Name, base.Name, sym, ErrNullPointer)
	}

	o.views[base] = out
	o.order = append(o.order, base)
	o.rt.tracker.bind(o.alloc, out, base)

	telemetry.CastsTotal.With("computed").Inc()
	log.Debug().
		Str("symbol", sym).
		Uint64("object", o.id).
		Str("pointer", out.String()).
		Msg("Materialized view")
	return out, nil
}
