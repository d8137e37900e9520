package bind

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/maxpert/unitsffi/lattice"
)

var (
	ErrUnsupportedConstructor = errors.New("unsupported constructor signature")
	ErrNotInLattice           = lattice.ErrNotInLattice
	// ErrDoubleRelease is logged when an object is released twice. Release
	// never returns it.
	ErrDoubleRelease   = errors.New("object already released")
	ErrUseAfterRelease = errors.New("use after release")
	ErrNullPointer     = errors.New("null native pointer")
	ErrViewMismatch    = errors.New("pointer is not a view of the requested type")
	ErrUnknownField    = errors.New("unknown field")
	ErrUnknownMethod   = errors.New("unknown method")
	ErrArgumentType    = errors.New("invalid argument")
)

// UnsupportedConstructorError reports a construction request whose argument
// count matches no declared constructor.
type UnsupportedConstructorError struct {
	Type     string
	Got      int
	Accepted []int
}

func (e *UnsupportedConstructorError) Error() string {
	accepted := make([]string, len(e.Accepted))
	for i, n := range e.Accepted {
		accepted[i] = strconv.Itoa(n)
	}
	return fmt.Sprintf("%s: %v: %d arguments (accepted: %s)",
		e.Type, ErrUnsupportedConstructor, e.Got, strings.Join(accepted, ", "))
}

func (e *UnsupportedConstructorError) Is(target error) bool {
	return target == ErrUnsupportedConstructor
}
