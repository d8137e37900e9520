package lattice

import (
	"sort"

	"github.com/maxpert/unitsffi/native"
)

// Constructor is a native entry point that allocates a new instance.
type Constructor struct {
	Symbol string
	// Fields names the C int arguments in order. Empty for the default
	// constructor.
	Fields []string
}

// Arity returns the number of arguments the constructor takes.
func (c Constructor) Arity() int {
	return len(c.Fields)
}

func (c Constructor) signature(owner string) native.Signature {
	sig := native.Signature{Name: c.Symbol, Result: native.Ptr(owner)}
	for _, f := range c.Fields {
		p := native.Int()
		p.Name = f
		sig.Params = append(sig.Params, p)
	}
	return sig
}

// Accessor is the getter/setter pair of an int field. Both operate on the
// owning type's own view.
type Accessor struct {
	Field  string
	Getter string
	Setter string
}

// Method is any other per-type entry point. The first parameter of Sig is
// always the receiver view.
type Method struct {
	Name string
	Sig  native.Signature
}

// Type describes one wrapped native type.
type Type struct {
	Name         string
	Bases        []*Type
	Constructors []Constructor
	Destructor   string
	Fields       map[string]Accessor
	Methods      map[string]Method
	// Casts maps each direct base name to the cast entry point.
	Casts map[string]string

	fieldOrder []string
}

func (t *Type) String() string {
	return t.Name
}

// FieldNames returns the fields declared directly on t, in declaration order.
func (t *Type) FieldNames() []string {
	out := make([]string, len(t.fieldOrder))
	copy(out, t.fieldOrder)
	return out
}

// MethodNames returns the methods declared directly on t, sorted.
func (t *Type) MethodNames() []string {
	out := make([]string, 0, len(t.Methods))
	for name := range t.Methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Constructor returns the constructor taking n arguments.
func (t *Type) Constructor(n int) (Constructor, bool) {
	for _, c := range t.Constructors {
		if c.Arity() == n {
			return c, true
		}
	}
	return Constructor{}, false
}

// Arities lists the accepted constructor argument counts.
func (t *Type) Arities() []int {
	out := make([]int, 0, len(t.Constructors))
	for _, c := range t.Constructors {
		out = append(out, c.Arity())
	}
	return out
}

// CastSymbol returns the entry point casting t to a direct base.
func (t *Type) CastSymbol(base *Type) (string, bool) {
	sym, ok := t.Casts[base.Name]
	return sym, ok
}

// DestructorSignature is the expected prototype of the destructor.
func (t *Type) DestructorSignature() native.Signature {
	return native.Signature{
		Name:   t.Destructor,
		Result: native.Void(),
		Params: []native.Param{native.Ptr(t.Name)},
	}
}

// ConstructorSignature is the expected prototype of c.
func (t *Type) ConstructorSignature(c Constructor) native.Signature {
	return c.signature(t.Name)
}

// GetterSignature and SetterSignature are the expected accessor prototypes.
func (t *Type) GetterSignature(a Accessor) native.Signature {
	return native.Signature{
		Name:   a.Getter,
		Result: native.Int(),
		Params: []native.Param{native.Ptr(t.Name)},
	}
}

func (t *Type) SetterSignature(a Accessor) native.Signature {
	return native.Signature{
		Name:   a.Setter,
		Result: native.Void(),
		Params: []native.Param{native.Ptr(t.Name), native.Int()},
	}
}

// CastSignature is the expected prototype of the cast from t to base.
func (t *Type) CastSignature(base *Type) native.Signature {
	return native.Signature{
		Name:   t.Casts[base.Name],
		Result: native.Ptr(base.Name),
		Params: []native.Param{native.Ptr(t.Name)},
	}
}

// Function is a free native function taking views of possibly different
// types.
type Function struct {
	Name string
	Sig  native.Signature
}
