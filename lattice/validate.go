package lattice

import (
	"errors"
	"fmt"

	"github.com/maxpert/unitsffi/native"
)

var ErrSignatureMismatch = errors.New("signature mismatch")

// Declarations is the source of declared native prototypes, normally the
// parsed interface description held by a native.Registry.
type Declarations interface {
	Declaration(name string) (native.Signature, bool)
}

// Expected returns every native prototype the graph relies on, types first in
// definition order, then free functions.
func (g *Graph) Expected() []native.Signature {
	var out []native.Signature
	for _, t := range g.Types() {
		for _, c := range t.Constructors {
			out = append(out, t.ConstructorSignature(c))
		}
		out = append(out, t.DestructorSignature())
		for _, field := range t.FieldNames() {
			a := t.Fields[field]
			out = append(out, t.GetterSignature(a), t.SetterSignature(a))
		}
		for _, name := range t.MethodNames() {
			out = append(out, t.Methods[name].Sig)
		}
		for _, base := range t.Bases {
			out = append(out, t.CastSignature(base))
		}
	}
	for _, fn := range g.Functions() {
		out = append(out, fn.Sig)
	}
	return out
}

// Validate checks every expected prototype against decls. All problems are
// reported together.
func (g *Graph) Validate(decls Declarations) error {
	var errs []error
	for _, want := range g.Expected() {
		got, ok := decls.Declaration(want.Name)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s not declared", native.ErrSymbolNotFound, want))
			continue
		}
		if !got.Matches(want) {
			errs = append(errs, fmt.Errorf("%w: declared %s, expected %s", ErrSignatureMismatch, got, want))
		}
	}
	return errors.Join(errs...)
}
