package bind

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/maxpert/unitsffi/lattice"
	"github.com/maxpert/unitsffi/native"
	"github.com/puzpuzpuz/xsync/v3"
)

// allocation is the aliasing group of one native allocation. Every object
// viewing the allocation shares it, and every native call on the allocation
// is made while holding mu.
type allocation struct {
	id uint64
	mu sync.Mutex

	// typ is the originator's declared type, or the first wrapped type for
	// foreign allocations.
	typ   *lattice.Type
	owned bool
	// freed is set once the originator destroyed the allocation.
	freed bool
	// retired allocations are no longer reachable through the tracker.
	retired bool
	objects int
	// pointers maps every known view pointer to the type names it was
	// obtained as. Layouts may place several views at one address.
	pointers map[native.Pointer][]string
}

func (a *allocation) addView(ptr native.Pointer, typeName string) {
	if !slices.Contains(a.pointers[ptr], typeName) {
		a.pointers[ptr] = append(a.pointers[ptr], typeName)
	}
}

func (a *allocation) hasView(ptr native.Pointer, typeName string) bool {
	return slices.Contains(a.pointers[ptr], typeName)
}

// tracker maps view pointers to their allocation group and keeps the live
// originators so leaks can be reclaimed.
type tracker struct {
	nextID     atomic.Uint64
	byPointer  *xsync.MapOf[native.Pointer, *allocation]
	originated *xsync.MapOf[uint64, *Object]
}

func newTracker() *tracker {
	return &tracker{
		byPointer:  xsync.NewMapOf[native.Pointer, *allocation](),
		originated: xsync.NewMapOf[uint64, *Object](),
	}
}

func (tr *tracker) newAllocation(t *lattice.Type, owned bool) *allocation {
	return &allocation{
		id:       tr.nextID.Add(1),
		typ:      t,
		owned:    owned,
		pointers: make(map[native.Pointer][]string),
	}
}

// originate registers a freshly constructed allocation. Any stale entry for
// the same address belongs to memory the native side has since reused.
func (tr *tracker) originate(t *lattice.Type, ptr native.Pointer) *allocation {
	a := tr.newAllocation(t, true)
	a.objects = 1
	a.addView(ptr, t.Name)
	tr.byPointer.Store(ptr, a)
	return a
}

// join attaches a wrapping object to the allocation ptr belongs to,
// creating a foreign group when ptr is unknown. The allocation is returned
// locked.
func (tr *tracker) join(t *lattice.Type, ptr native.Pointer) (*allocation, error) {
	for {
		a, loaded := tr.byPointer.LoadOrCompute(ptr, func() *allocation {
			a := tr.newAllocation(t, false)
			a.addView(ptr, t.Name)
			return a
		})

		a.mu.Lock()
		if a.retired {
			// being unregistered, retry against the fresh state
			a.mu.Unlock()
			continue
		}
		if loaded && !a.hasView(ptr, t.Name) {
			a.mu.Unlock()
			return nil, ErrViewMismatch
		}
		a.objects++
		return a, nil
	}
}

// bind records a materialized view. Caller holds a.mu.
func (tr *tracker) bind(a *allocation, ptr native.Pointer, t *lattice.Type) {
	a.addView(ptr, t.Name)
	tr.byPointer.Store(ptr, a)
}

// retire unregisters every pointer of a. Caller holds a.mu.
func (tr *tracker) retire(a *allocation) {
	a.retired = true
	for ptr := range a.pointers {
		tr.byPointer.Compute(ptr, func(old *allocation, loaded bool) (*allocation, bool) {
			if !loaded {
				return old, true
			}
			return old, old == a
		})
	}
}

// detach drops one object from a. Foreign groups retire with their last
// object. Caller holds a.mu.
func (tr *tracker) detach(a *allocation) {
	a.objects--
	if !a.owned && a.objects <= 0 {
		tr.retire(a)
	}
}

// AllocationInfo describes one tracked allocation group.
type AllocationInfo struct {
	ID      uint64     `json:"id"`
	Type    string     `json:"type"`
	Owned   bool       `json:"owned"`
	Freed   bool       `json:"freed"`
	Objects int        `json:"objects"`
	Views   []ViewInfo `json:"views"`
}

// ViewInfo is one known view pointer of an allocation.
type ViewInfo struct {
	Pointer string   `json:"pointer"`
	Types   []string `json:"types"`
}

func (tr *tracker) allocations() []AllocationInfo {
	seen := make(map[*allocation]bool)
	tr.byPointer.Range(func(_ native.Pointer, a *allocation) bool {
		seen[a] = true
		return true
	})

	out := make([]AllocationInfo, 0, len(seen))
	for a := range seen {
		a.mu.Lock()
		if a.retired {
			a.mu.Unlock()
			continue
		}
		info := AllocationInfo{
			ID:      a.id,
			Type:    a.typ.Name,
			Owned:   a.owned,
			Freed:   a.freed,
			Objects: a.objects,
		}
		for ptr, types := range a.pointers {
			info.Views = append(info.Views, ViewInfo{Pointer: ptr.String(), Types: slices.Clone(types)})
		}
		a.mu.Unlock()

		sort.Slice(info.Views, func(i, j int) bool { return info.Views[i].Pointer < info.Views[j].Pointer })
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
