package bind

import (
	"fmt"
	"math"
	"runtime"
	"slices"
	"sort"
	"unsafe"

	"github.com/maxpert/unitsffi/native"
)

// Result is the return value of a native call.
type Result struct {
	kind native.Kind
	raw  uintptr
}

// Kind is the declared result kind.
func (r Result) Kind() native.Kind {
	return r.kind
}

func (r Result) Int() int32 {
	return native.IntResult(r.raw)
}

func (r Result) Bool() bool {
	return native.BoolResult(r.raw)
}

func (r Result) Pointer() native.Pointer {
	return native.Pointer(r.raw)
}

// Invoke calls a free function of the lattice. Arguments are converted by
// parameter kind:
//
//	int      int32 or int
//	bool     bool
//	int*     *int32, written by the callee
//	T*       *Object, passed as its view of T
func (rt *Runtime) Invoke(name string, args ...any) (Result, error) {
	fn, err := rt.graph.Function(name)
	if err != nil {
		return Result{}, err
	}
	return rt.call(fn.Sig, args)
}

func (rt *Runtime) call(sig native.Signature, args []any) (Result, error) {
	if len(args) != len(sig.Params) {
		return Result{}, fmt.Errorf("%s: %w: got %d, want %d", sig.Name, native.ErrArity, len(args), len(sig.Params))
	}

	proc, err := rt.resolver.Resolve(sig.Name)
	if err != nil {
		return Result{}, err
	}

	var objects []*Object
	for _, arg := range args {
		if o, ok := arg.(*Object); ok && o != nil {
			objects = append(objects, o)
		}
	}
	unlock := lockGroups(objects)
	defer unlock()

	raw := make([]uintptr, len(args))
	for i, p := range sig.Params {
		v, err := rt.marshal(p, args[i])
		if err != nil {
			return Result{}, fmt.Errorf("%s argument %d: %w", sig.Name, i+1, err)
		}
		raw[i] = v
	}

	r, err := proc.Call(raw...)
	runtime.KeepAlive(args)
	if err != nil {
		return Result{}, err
	}
	return Result{kind: sig.Result.Kind, raw: r}, nil
}

// marshal converts one argument. Object groups are locked by the caller.
func (rt *Runtime) marshal(p native.Param, arg any) (uintptr, error) {
	switch p.Kind {
	case native.KindInt:
		switch v := arg.(type) {
		case int32:
			return native.IntArg(v), nil
		case int:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return 0, fmt.Errorf("%w: %d overflows int", ErrArgumentType, v)
			}
			return native.IntArg(int32(v)), nil
		}
	case native.KindBool:
		if v, ok := arg.(bool); ok {
			return native.BoolArg(v), nil
		}
	case native.KindIntPointer:
		if v, ok := arg.(*int32); ok && v != nil {
			return uintptr(unsafe.Pointer(v)), nil
		}
	case native.KindPointer:
		o, ok := arg.(*Object)
		if !ok || o == nil {
			break
		}
		if o.rt != rt {
			return 0, fmt.Errorf("%w: %s#%d belongs to another runtime", ErrArgumentType, o.declared.Name, o.id)
		}
		if err := o.checkLocked(); err != nil {
			return 0, err
		}
		t, err := rt.graph.Describe(p.Type)
		if err != nil {
			return 0, err
		}
		ptr, err := o.viewLocked(t)
		if err != nil {
			return 0, err
		}
		return uintptr(ptr), nil
	}
	return 0, fmt.Errorf("%w: %T for %s parameter", ErrArgumentType, arg, p.CType())
}

// lockGroups locks the distinct allocations of objects in id order so calls
// spanning several groups cannot deadlock.
func lockGroups(objects []*Object) func() {
	var groups []*allocation
	for _, o := range objects {
		if !slices.Contains(groups, o.alloc) {
			groups = append(groups, o.alloc)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].id < groups[j].id })

	for _, g := range groups {
		g.mu.Lock()
	}
	return func() {
		for i := len(groups) - 1; i >= 0; i-- {
			groups[i].mu.Unlock()
		}
	}
}
