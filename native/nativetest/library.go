// Package nativetest provides an in-process stand-in for the units native
// library and helpers to install it (or the real C build) for tests.
//
// The fake hands out synthetic addresses. Every view of an allocation lives
// at a distinct offset from the allocation base, so passing the wrong view to
// an entry point is detected and recorded as a violation instead of silently
// working.
package nativetest

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/maxpert/unitsffi/native"
)

//go:embed testdata/units.h
var Header string

//go:embed testdata/units.c
var Source string

const (
	baseAddress = 0x7f0000010000
	allocStride = 0x100
)

var viewOffsets = map[string]uintptr{
	"Vec4": 0x00,
	"Vec3": 0x10,
	"X":    0x20,
	"Y":    0x30,
	"Z":    0x40,
}

var lineages = map[string][]string{
	"X":    {"X"},
	"Y":    {"Y"},
	"Z":    {"Z"},
	"Vec3": {"Vec3", "X", "Y", "Z"},
	"Vec4": {"Vec4", "Vec3", "X", "Y", "Z"},
}

type allocation struct {
	base       uintptr
	kind       string
	x, y, z, d int32
	freed      bool
}

type view struct {
	alloc *allocation
	typ   string
}

// Library is a fake native.Library implementing the units entry points.
type Library struct {
	mu         sync.Mutex
	path       string
	opens      int
	closed     bool
	next       uintptr
	views      map[uintptr]view
	live       int
	destroys   map[string]int
	calls      map[string]int
	hidden     map[string]bool
	printed    []string
	violations []string
}

// New creates an unopened fake library.
func New() *Library {
	return &Library{
		next:     baseAddress,
		views:    make(map[uintptr]view),
		destroys: make(map[string]int),
		calls:    make(map[string]int),
		hidden:   make(map[string]bool),
	}
}

// Opener returns a native.Opener that hands out this library.
func (l *Library) Opener() native.Opener {
	return func(path string) (native.Library, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.path = path
		l.opens++
		l.closed = false
		return l, nil
	}
}

// Hide makes Lookup fail for the given symbols, as if the binary did not
// export them.
func (l *Library) Hide(symbols ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range symbols {
		l.hidden[s] = true
	}
}

func (l *Library) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("%s already closed", l.path)
	}
	l.closed = true
	return nil
}

func (l *Library) Lookup(name string) (native.Func, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("%s is closed", l.path)
	}
	if l.hidden[name] {
		return nil, fmt.Errorf("%s: undefined symbol: %s", l.path, name)
	}
	fn, ok := l.entryPoints()[name]
	if !ok {
		return nil, fmt.Errorf("%s: undefined symbol: %s", l.path, name)
	}
	return func(args ...uintptr) uintptr {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.calls[name]++
		return fn(args)
	}, nil
}

// Opens counts how many times the library was opened.
func (l *Library) Opens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens
}

// Live returns the number of allocations not yet destroyed.
func (l *Library) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

// Destroys returns how many allocations of typ were destroyed.
func (l *Library) Destroys(typ string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.destroys[typ]
}

// TotalDestroys returns the number of destructor calls of any type.
func (l *Library) TotalDestroys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.destroys {
		n += c
	}
	return n
}

// Calls returns how many times symbol was invoked.
func (l *Library) Calls(symbol string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[symbol]
}

// Printed returns everything the Print entry points wrote.
func (l *Library) Printed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.printed...)
}

// Violations returns memory-safety violations observed so far: use after
// free, double free, wrong view type and unknown pointers.
func (l *Library) Violations() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.violations...)
}

func (l *Library) violate(format string, args ...any) {
	l.violations = append(l.violations, fmt.Sprintf(format, args...))
}

func (l *Library) create(kind string) uintptr {
	a := &allocation{base: l.next, kind: kind}
	l.next += allocStride
	for _, typ := range lineages[kind] {
		l.views[a.base+viewOffsets[typ]] = view{alloc: a, typ: typ}
	}
	l.live++
	return a.base + viewOffsets[kind]
}

// self validates that ptr is a live view of type typ.
func (l *Library) self(symbol string, ptr uintptr, typ string) (*allocation, bool) {
	v, ok := l.views[ptr]
	switch {
	case !ok:
		l.violate("%s: unknown pointer 0x%x", symbol, ptr)
		return nil, false
	case v.typ != typ:
		l.violate("%s: got %s view 0x%x, want %s", symbol, v.typ, ptr, typ)
		return nil, false
	case v.alloc.freed:
		l.violate("%s: use after free of 0x%x", symbol, ptr)
		return nil, false
	}
	return v.alloc, true
}

func (l *Library) destroy(symbol string, ptr uintptr, typ string) {
	v, ok := l.views[ptr]
	if ok && v.typ == typ && v.alloc.freed {
		l.violate("%s: double free of 0x%x", symbol, ptr)
		return
	}
	a, ok := l.self(symbol, ptr, typ)
	if !ok {
		return
	}
	if a.kind != typ {
		l.violate("%s: destroying %s allocation through %s view", symbol, a.kind, typ)
		return
	}
	a.freed = true
	l.live--
	l.destroys[typ]++
}

func (l *Library) cast(symbol string, ptr uintptr, from, to string) uintptr {
	a, ok := l.self(symbol, ptr, from)
	if !ok {
		return 0
	}
	return a.base + viewOffsets[to]
}

func (l *Library) entryPoints() map[string]func([]uintptr) uintptr {
	eps := map[string]func([]uintptr) uintptr{}

	field := func(typ, name string, get func(*allocation) *int32) {
		eps[typ+"_Get"+name] = func(a []uintptr) uintptr {
			alloc, ok := l.self(typ+"_Get"+name, a[0], typ)
			if !ok {
				return 0
			}
			return native.IntArg(*get(alloc))
		}
		eps[typ+"_Set"+name] = func(a []uintptr) uintptr {
			alloc, ok := l.self(typ+"_Set"+name, a[0], typ)
			if ok {
				*get(alloc) = native.IntResult(a[1])
			}
			return 0
		}
	}
	common := func(typ string, format func(*allocation) string) {
		eps[typ+"_Create"] = func([]uintptr) uintptr { return l.create(typ) }
		eps[typ+"_Destroy"] = func(a []uintptr) uintptr {
			l.destroy(typ+"_Destroy", a[0], typ)
			return 0
		}
		eps[typ+"_Print"] = func(a []uintptr) uintptr {
			if alloc, ok := l.self(typ+"_Print", a[0], typ); ok {
				l.printed = append(l.printed, format(alloc))
			}
			return 0
		}
	}
	castTo := func(from, to string) {
		sym := from + "_As" + to
		eps[sym] = func(a []uintptr) uintptr { return l.cast(sym, a[0], from, to) }
	}
	valued := func(typ string, set func(*allocation, []int32)) {
		eps[typ+"_Create_1"] = func(a []uintptr) uintptr {
			ptr := l.create(typ)
			vals := make([]int32, len(a))
			for i, r := range a {
				vals[i] = native.IntResult(r)
			}
			set(l.views[ptr].alloc, vals)
			return ptr
		}
	}

	common("X", func(a *allocation) string { return fmt.Sprintf("X(x=%d)", a.x) })
	field("X", "X", func(a *allocation) *int32 { return &a.x })
	valued("X", func(a *allocation, v []int32) { a.x = v[0] })
	eps["X_IsZero"] = func(a []uintptr) uintptr {
		alloc, ok := l.self("X_IsZero", a[0], "X")
		return native.BoolArg(ok && alloc.x == 0)
	}

	common("Y", func(a *allocation) string { return fmt.Sprintf("Y(y=%d)", a.y) })
	field("Y", "Y", func(a *allocation) *int32 { return &a.y })
	valued("Y", func(a *allocation, v []int32) { a.y = v[0] })

	common("Z", func(a *allocation) string { return fmt.Sprintf("Z(z=%d)", a.z) })
	field("Z", "Z", func(a *allocation) *int32 { return &a.z })
	valued("Z", func(a *allocation, v []int32) { a.z = v[0] })

	common("Vec3", func(a *allocation) string {
		return fmt.Sprintf("Vec3(x=%d, y=%d, z=%d)", a.x, a.y, a.z)
	})
	valued("Vec3", func(a *allocation, v []int32) { a.x, a.y, a.z = v[0], v[1], v[2] })
	eps["Vec3_GetVec3"] = func(a []uintptr) uintptr {
		alloc, ok := l.self("Vec3_GetVec3", a[0], "Vec3")
		if !ok {
			return 0
		}
		*(*int32)(unsafe.Pointer(a[1])) = alloc.x
		*(*int32)(unsafe.Pointer(a[2])) = alloc.y
		*(*int32)(unsafe.Pointer(a[3])) = alloc.z
		return 0
	}
	eps["Vec3_SetVec3"] = func(a []uintptr) uintptr {
		if alloc, ok := l.self("Vec3_SetVec3", a[0], "Vec3"); ok {
			alloc.x, alloc.y, alloc.z = native.IntResult(a[1]), native.IntResult(a[2]), native.IntResult(a[3])
		}
		return 0
	}
	castTo("Vec3", "X")
	castTo("Vec3", "Y")
	castTo("Vec3", "Z")

	common("Vec4", func(a *allocation) string {
		return fmt.Sprintf("Vec4(x=%d, y=%d, z=%d, d=%d)", a.x, a.y, a.z, a.d)
	})
	field("Vec4", "D", func(a *allocation) *int32 { return &a.d })
	valued("Vec4", func(a *allocation, v []int32) { a.x, a.y, a.z, a.d = v[0], v[1], v[2], v[3] })
	castTo("Vec4", "Vec3")

	eps["Units_Sum"] = func(a []uintptr) uintptr {
		x, okX := l.self("Units_Sum", a[0], "X")
		y, okY := l.self("Units_Sum", a[1], "Y")
		z, okZ := l.self("Units_Sum", a[2], "Z")
		if !okX || !okY || !okZ {
			return 0
		}
		return native.IntArg(x.x + y.y + z.z)
	}
	eps["Units_Zero_Y"] = func(a []uintptr) uintptr {
		if y, ok := l.self("Units_Zero_Y", a[0], "Y"); ok {
			y.y = 0
		}
		return 0
	}
	eps["Units_LiveCount"] = func([]uintptr) uintptr {
		return native.IntArg(int32(l.live))
	}
	return eps
}

// Symbols returns every entry point the fake exports, sorted.
func (l *Library) Symbols() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for name := range l.entryPoints() {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
