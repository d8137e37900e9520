// Package lattice describes the wrapped native types and their base
// relationships. A Graph is a static registry: every base of a type must be
// defined before the type itself, so the graph is acyclic by construction,
// and it may contain diamonds.
package lattice

import (
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maxpert/unitsffi/native"
)

var (
	ErrUnknownType     = errors.New("unknown type")
	ErrUnknownFunction = errors.New("unknown function")
	ErrDuplicateType   = errors.New("duplicate type")
	ErrInvalidSpec     = errors.New("invalid type spec")
	ErrNotInLattice    = errors.New("type not in lattice")
)

const pathCacheSize = 256

// Spec is the compact definition of a type. Symbol names are derived from
// the naming convention.
type Spec struct {
	Name  string
	Bases []string
	// Fields are int fields declared directly on this type.
	Fields []string
	// ValueConstructors lists the argument field names of each value
	// constructor. A default constructor is always declared.
	ValueConstructors [][]string
	Methods           []MethodSpec
}

// MethodSpec declares a method; Params excludes the receiver.
type MethodSpec struct {
	Name   string
	Result native.Param
	Params []native.Param
}

type pathKey struct {
	from, to string
}

// Graph is the registry of wrapped types and free functions.
type Graph struct {
	mu        sync.RWMutex
	types     map[string]*Type
	order     []*Type
	funcs     map[string]Function
	funcOrder []string
	paths     *lru.Cache[pathKey, []*Type]
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	paths, err := lru.New[pathKey, []*Type](pathCacheSize)
	if err != nil {
		// only possible for a non-positive size
		panic(err)
	}
	return &Graph{
		types: make(map[string]*Type),
		funcs: make(map[string]Function),
		paths: paths,
	}
}

// Define adds a type built from spec.
func (g *Graph) Define(spec Spec) (*Type, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if spec.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidSpec)
	}
	if _, ok := g.types[spec.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateType, spec.Name)
	}

	t := &Type{
		Name:       spec.Name,
		Destructor: DestroySymbol(spec.Name),
		Fields:     make(map[string]Accessor),
		Methods:    make(map[string]Method),
		Casts:      make(map[string]string),
	}

	for _, name := range spec.Bases {
		base, ok := g.types[name]
		if !ok {
			return nil, fmt.Errorf("%s: base %w: %s", spec.Name, ErrUnknownType, name)
		}
		if _, dup := t.Casts[name]; dup {
			return nil, fmt.Errorf("%w: %s lists base %s twice", ErrInvalidSpec, spec.Name, name)
		}
		t.Bases = append(t.Bases, base)
		t.Casts[name] = CastSymbol(spec.Name, name)
	}

	for _, field := range spec.Fields {
		if _, dup := t.Fields[field]; dup {
			return nil, fmt.Errorf("%w: %s declares field %s twice", ErrInvalidSpec, spec.Name, field)
		}
		for _, anc := range ancestors(t) {
			if _, shadow := anc.Fields[field]; shadow {
				return nil, fmt.Errorf("%w: %s.%s shadows %s.%s", ErrInvalidSpec, spec.Name, field, anc.Name, field)
			}
		}
		t.Fields[field] = Accessor{
			Field:  field,
			Getter: GetterSymbol(spec.Name, field),
			Setter: SetterSymbol(spec.Name, field),
		}
		t.fieldOrder = append(t.fieldOrder, field)
	}

	t.Constructors = append(t.Constructors, Constructor{Symbol: CreateSymbol(spec.Name)})
	for i, fields := range spec.ValueConstructors {
		if len(fields) == 0 {
			return nil, fmt.Errorf("%w: %s value constructor %d has no arguments", ErrInvalidSpec, spec.Name, i+1)
		}
		if _, dup := t.Constructor(len(fields)); dup {
			return nil, fmt.Errorf("%w: %s has two constructors of arity %d", ErrInvalidSpec, spec.Name, len(fields))
		}
		t.Constructors = append(t.Constructors, Constructor{
			Symbol: ValueCreateSymbol(spec.Name, i+1),
			Fields: fields,
		})
	}

	for _, m := range spec.Methods {
		if _, dup := t.Methods[m.Name]; dup {
			return nil, fmt.Errorf("%w: %s declares method %s twice", ErrInvalidSpec, spec.Name, m.Name)
		}
		sig := native.Signature{
			Name:   MethodSymbol(spec.Name, m.Name),
			Result: m.Result,
			Params: append([]native.Param{native.Ptr(spec.Name)}, m.Params...),
		}
		t.Methods[m.Name] = Method{Name: m.Name, Sig: sig}
	}

	g.types[t.Name] = t
	g.order = append(g.order, t)
	return t, nil
}

// DefineFunction adds a free function. Pointer parameters must name defined
// types.
func (g *Graph) DefineFunction(name string, result native.Param, params ...native.Param) (Function, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.funcs[name]; ok {
		return Function{}, fmt.Errorf("%w: function %s", ErrDuplicateType, name)
	}
	for _, p := range append([]native.Param{result}, params...) {
		if p.Kind != native.KindPointer {
			continue
		}
		if _, ok := g.types[p.Type]; !ok {
			return Function{}, fmt.Errorf("%s: %w: %s", name, ErrUnknownType, p.Type)
		}
	}

	fn := Function{
		Name: name,
		Sig:  native.Signature{Name: name, Result: result, Params: params},
	}
	g.funcs[name] = fn
	g.funcOrder = append(g.funcOrder, name)
	return fn, nil
}

// Describe returns the type with the given name.
func (g *Graph) Describe(name string) (*Type, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, ok := g.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

// Types returns every type in definition order.
func (g *Graph) Types() []*Type {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Type, len(g.order))
	copy(out, g.order)
	return out
}

// Function returns the free function with the given name.
func (g *Graph) Function(name string) (Function, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	fn, ok := g.funcs[name]
	if !ok {
		return Function{}, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	return fn, nil
}

// Functions returns every free function in definition order.
func (g *Graph) Functions() []Function {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Function, 0, len(g.funcOrder))
	for _, name := range g.funcOrder {
		out = append(out, g.funcs[name])
	}
	return out
}

// AncestorsOf returns every ancestor of t, depth-first in declared base
// order. Ancestors reachable through several paths appear once.
func (g *Graph) AncestorsOf(t *Type) []*Type {
	return ancestors(t)
}

// Lineage returns t followed by its ancestors.
func (g *Graph) Lineage(t *Type) []*Type {
	return append([]*Type{t}, ancestors(t)...)
}

// IsA reports whether target is t or one of its ancestors.
func (g *Graph) IsA(t, target *Type) bool {
	if t == target {
		return true
	}
	for _, anc := range ancestors(t) {
		if anc == target {
			return true
		}
	}
	return false
}

// CastPath returns the chain of direct-base hops from one type to an
// ancestor, both ends included. Paths are memoized.
func (g *Graph) CastPath(from, to *Type) ([]*Type, error) {
	key := pathKey{from: from.Name, to: to.Name}
	if path, ok := g.paths.Get(key); ok {
		return path, nil
	}

	path := findPath(from, to)
	if path == nil {
		return nil, fmt.Errorf("%w: %s is not %s or one of its ancestors", ErrNotInLattice, to.Name, from.Name)
	}
	g.paths.Add(key, path)
	return path, nil
}

// FieldOwner finds the type in t's lineage that declares field.
func (g *Graph) FieldOwner(t *Type, field string) (*Type, Accessor, bool) {
	for _, candidate := range g.Lineage(t) {
		if a, ok := candidate.Fields[field]; ok {
			return candidate, a, true
		}
	}
	return nil, Accessor{}, false
}

// MethodOwner finds the nearest type in t's lineage that declares method.
func (g *Graph) MethodOwner(t *Type, method string) (*Type, Method, bool) {
	for _, candidate := range g.Lineage(t) {
		if m, ok := candidate.Methods[method]; ok {
			return candidate, m, true
		}
	}
	return nil, Method{}, false
}

func ancestors(t *Type) []*Type {
	var out []*Type
	seen := map[*Type]bool{t: true}
	var walk func(*Type)
	walk = func(cur *Type) {
		for _, base := range cur.Bases {
			if seen[base] {
				continue
			}
			seen[base] = true
			out = append(out, base)
			walk(base)
		}
	}
	walk(t)
	return out
}

func findPath(from, to *Type) []*Type {
	if from == to {
		return []*Type{from}
	}
	for _, base := range from.Bases {
		if rest := findPath(base, to); rest != nil {
			return append([]*Type{from}, rest...)
		}
	}
	return nil
}
