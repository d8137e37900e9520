package native

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrLibraryNotFound   = errors.New("native library not found")
	ErrSymbolNotFound    = errors.New("native symbol not found")
	ErrUnknownNativeType = errors.New("unknown native type")
	ErrNotInitialized    = errors.New("native registry not initialized")
	ErrArity             = errors.New("wrong number of arguments")
)

// LibraryNotFoundError is returned when the library binary or its header
// cannot be located. Searched lists every candidate path that was tried.
type LibraryNotFoundError struct {
	Name     string
	Kind     string // "library" or "header"
	Searched []string
	Err      error
}

func (e *LibraryNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q not found", e.Kind, e.Name)
	if len(e.Searched) > 0 {
		fmt.Fprintf(&b, " (searched: %s)", strings.Join(e.Searched, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *LibraryNotFoundError) Is(target error) bool {
	return target == ErrLibraryNotFound
}

func (e *LibraryNotFoundError) Unwrap() error {
	return e.Err
}

// SymbolNotFoundError is returned when an entry point is not declared by the
// interface description or not exported by the loaded binary.
type SymbolNotFoundError struct {
	Symbol  string
	Header  string
	Library string
	Reason  string
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol %q not found: %s (header %s, library %s)",
		e.Symbol, e.Reason, e.Header, e.Library)
}

func (e *SymbolNotFoundError) Is(target error) bool {
	return target == ErrSymbolNotFound
}
