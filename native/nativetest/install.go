package nativetest

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/maxpert/unitsffi/native"
)

const (
	LibraryName = "units"
	HeaderName  = "units.h"
)

func sharedLibraryFile() string {
	switch runtime.GOOS {
	case "darwin":
		return "libunits.dylib"
	case "windows":
		return "units.dll"
	default:
		return "libunits.so"
	}
}

// WriteHeader writes the units header into dir and returns its path.
func WriteHeader(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, HeaderName)
	if err := os.WriteFile(path, []byte(Header), 0o644); err != nil {
		t.Fatalf("write header: %v", err)
	}
	return path
}

// Install lays out a temporary install directory holding the header and a
// placeholder library file, and returns registry options that open lib
// instead of the placeholder.
func Install(t testing.TB, lib *Library) native.Options {
	t.Helper()
	dir := t.TempDir()
	WriteHeader(t, dir)
	placeholder := filepath.Join(dir, sharedLibraryFile())
	if err := os.WriteFile(placeholder, nil, 0o644); err != nil {
		t.Fatalf("write library placeholder: %v", err)
	}
	return native.Options{
		LibraryName: LibraryName,
		SearchDirs:  []string{dir},
		HeaderName:  HeaderName,
		HeaderDirs:  []string{dir},
		Exports:     []string{"*"},
		Opener:      lib.Opener(),
	}
}

// Registry returns a registry initialized with a fresh fake library. The
// registry is closed when the test ends.
func Registry(t testing.TB) (*native.Registry, *Library) {
	t.Helper()
	lib := New()
	reg := native.NewRegistry()
	if err := reg.Init(Install(t, lib)); err != nil {
		t.Fatalf("init registry: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	return reg, lib
}

// BuildShared compiles the C units library with the system compiler and
// returns options for loading it. The test is skipped when no compiler or
// dynamic loader is available.
func BuildShared(t testing.TB) native.Options {
	t.Helper()
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
	default:
		t.Skipf("dynamic loading not supported on %s", runtime.GOOS)
	}
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler available")
	}

	dir := t.TempDir()
	WriteHeader(t, dir)
	src := filepath.Join(dir, "units.c")
	if err := os.WriteFile(src, []byte(Source), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	out := filepath.Join(dir, sharedLibraryFile())
	cmd := exec.Command(cc, "-shared", "-fPIC", "-o", out, src)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("failed to build units library: %v\n%s", err, output)
	}

	return native.Options{
		LibraryName: LibraryName,
		SearchDirs:  []string{dir},
		HeaderName:  HeaderName,
		HeaderDirs:  []string{dir},
		Exports:     []string{"*"},
	}
}
