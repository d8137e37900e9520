//go:build windows

package native

import (
	"fmt"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/windows"
)

type dllLibrary struct {
	path   string
	handle windows.Handle
}

// OpenLibrary loads a DLL. Symbols are bound on first lookup.
func OpenLibrary(path string) (Library, error) {
	h, err := windows.LoadLibrary(path)
	if err != nil {
		return nil, &LibraryNotFoundError{
			Name:     path,
			Kind:     "library",
			Searched: []string{path},
			Err:      fmt.Errorf("LoadLibrary: %w", err),
		}
	}
	return &dllLibrary{path: path, handle: h}, nil
}

func (l *dllLibrary) Path() string {
	return l.path
}

func (l *dllLibrary) Lookup(name string) (Func, error) {
	addr, err := windows.GetProcAddress(l.handle, name)
	if err != nil {
		return nil, fmt.Errorf("GetProcAddress(%q): %w", name, err)
	}
	return func(args ...uintptr) uintptr {
		r1, _, _ := purego.SyscallN(addr, args...)
		return r1
	}, nil
}

func (l *dllLibrary) Close() error {
	if l.handle == 0 {
		return nil
	}
	err := windows.FreeLibrary(l.handle)
	l.handle = 0
	return err
}
