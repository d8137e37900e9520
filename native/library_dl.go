//go:build darwin || freebsd || linux

package native

import (
	"fmt"

	"github.com/ebitengine/purego"
)

type dlLibrary struct {
	path   string
	handle uintptr
}

// OpenLibrary opens a shared library with dlopen. Symbols are bound on
// first lookup.
func OpenLibrary(path string) (Library, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, &LibraryNotFoundError{
			Name:     path,
			Kind:     "library",
			Searched: []string{path},
			Err:      fmt.Errorf("dlopen: %w", err),
		}
	}
	return &dlLibrary{path: path, handle: h}, nil
}

func (l *dlLibrary) Path() string {
	return l.path
}

func (l *dlLibrary) Lookup(name string) (Func, error) {
	addr, err := purego.Dlsym(l.handle, name)
	if err != nil {
		return nil, fmt.Errorf("dlsym(%q): %w", name, err)
	}
	if addr == 0 {
		return nil, fmt.Errorf("dlsym(%q): null address", name)
	}
	return func(args ...uintptr) uintptr {
		r1, _, _ := purego.SyscallN(addr, args...)
		return r1
	}, nil
}

func (l *dlLibrary) Close() error {
	if l.handle == 0 {
		return nil
	}
	err := purego.Dlclose(l.handle)
	l.handle = 0
	return err
}
