package native

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// librarySuffixes returns the file suffixes tried for a shared library on the
// current platform.
func librarySuffixes() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"", ".dylib", ".so"}
	case "windows":
		return []string{"", ".dll"}
	default:
		return []string{"", ".so"}
	}
}

// LocateLibrary resolves a library name to an absolute path by searching dirs
// in order. It tries the plain name, a platform suffix, and a "lib" prefix:
//   - Linux: units, units.so, libunits, libunits.so
//   - macOS: units, units.dylib, units.so, libunits.dylib, ...
//   - Windows: units, units.dll, libunits.dll
func LocateLibrary(name string, dirs []string) (string, error) {
	patterns := []string{name}
	if !strings.HasPrefix(name, "lib") {
		patterns = append(patterns, "lib"+name)
	}

	var candidates []string
	for _, pattern := range patterns {
		for _, suffix := range librarySuffixes() {
			candidates = append(candidates, pattern+suffix)
		}
	}
	return locate("library", name, dirs, candidates)
}

// LocateHeader resolves a header file name by searching dirs in order.
func LocateHeader(name string, dirs []string) (string, error) {
	return locate("header", name, dirs, []string{name})
}

func locate(kind, name string, dirs, candidates []string) (string, error) {
	// Reject names with path separators, the search directories are the only
	// places a library may come from.
	if strings.ContainsAny(name, "/\\") {
		return "", &LibraryNotFoundError{
			Name: name,
			Kind: kind,
			Err:  fmt.Errorf("%s name cannot contain path separators", kind),
		}
	}

	if len(dirs) == 0 {
		return "", &LibraryNotFoundError{
			Name: name,
			Kind: kind,
			Err:  fmt.Errorf("no %s directory configured", kind),
		}
	}

	var searched []string
	for _, dir := range dirs {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			searched = append(searched, dir)
			continue
		}
		for _, c := range candidates {
			candidate := filepath.Join(absDir, c)
			searched = append(searched, candidate)

			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			if !strings.HasPrefix(candidate, absDir+string(os.PathSeparator)) {
				return "", &LibraryNotFoundError{
					Name:     name,
					Kind:     kind,
					Searched: searched,
					Err:      fmt.Errorf("resolved path escapes search directory: %s", candidate),
				}
			}
			return candidate, nil
		}
	}

	return "", &LibraryNotFoundError{Name: name, Kind: kind, Searched: searched}
}
