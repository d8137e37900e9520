//go:build !darwin && !freebsd && !linux && !windows

package native

import (
	"fmt"
	"runtime"
)

// OpenLibrary is unavailable on this platform.
func OpenLibrary(path string) (Library, error) {
	return nil, &LibraryNotFoundError{
		Name:     path,
		Kind:     "library",
		Searched: []string{path},
		Err:      fmt.Errorf("dynamic loading is not supported on %s", runtime.GOOS),
	}
}
