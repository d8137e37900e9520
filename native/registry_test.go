package native_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maxpert/unitsffi/native"
	"github.com/maxpert/unitsffi/native/nativetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInitIsIdempotent(t *testing.T) {
	lib := nativetest.New()
	opts := nativetest.Install(t, lib)
	reg := native.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })

	require.NoError(t, reg.Init(opts))
	_, err := reg.Resolve("X_Create")
	require.NoError(t, err)
	_, err = reg.Resolve("Vec3_AsX")
	require.NoError(t, err)
	first := reg.Resolved()
	digest := reg.Interface().Digest()

	require.NoError(t, reg.Init(opts))

	assert.Equal(t, 1, lib.Opens())
	assert.Equal(t, 1, reg.Loads())
	assert.Equal(t, first, reg.Resolved())
	assert.Equal(t, []string{"Vec3_AsX", "X_Create"}, first)
	assert.Equal(t, digest, reg.Interface().Digest())

	// different options keep the loaded library
	other := opts
	other.LibraryName = "other"
	require.NoError(t, reg.Init(other))
	assert.Equal(t, 1, lib.Opens())
}

func TestRegistryResolveIsLazyAndMemoized(t *testing.T) {
	reg, lib := nativetest.Registry(t)
	assert.Empty(t, reg.Resolved())

	p1, err := reg.Resolve("X_Create_1")
	require.NoError(t, err)
	p2, err := reg.Resolve("X_Create_1")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, "X_Create_1", p1.Name())

	ptr, err := p1.Call(native.IntArg(7))
	require.NoError(t, err)
	get, err := reg.Resolve("X_GetX")
	require.NoError(t, err)
	v, err := get.Call(ptr)
	require.NoError(t, err)
	assert.Equal(t, int32(7), native.IntResult(v))

	_, err = p1.Call()
	assert.ErrorIs(t, err, native.ErrArity)
	assert.Equal(t, 1, lib.Calls("X_Create_1"))
}

func TestRegistrySymbolNotFound(t *testing.T) {
	lib := nativetest.New()
	lib.Hide("Vec4_AsVec3")
	opts := nativetest.Install(t, lib)
	reg := native.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	require.NoError(t, reg.Init(opts))

	_, err := reg.Resolve("Vec5_Create")
	require.Error(t, err)
	assert.True(t, errors.Is(err, native.ErrSymbolNotFound))
	var notFound *native.SymbolNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "Vec5_Create", notFound.Symbol)
	assert.Contains(t, notFound.Reason, "not declared")
	assert.Equal(t, filepath.Join(opts.HeaderDirs[0], nativetest.HeaderName), notFound.Header)

	// declared by the header but missing from the binary
	_, err = reg.Resolve("Vec4_AsVec3")
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.Reason, "undefined symbol")
	assert.Equal(t, reg.LibraryPath(), notFound.Library)
	assert.NotContains(t, reg.Resolved(), "Vec4_AsVec3")
}

func TestRegistryLibraryNotFound(t *testing.T) {
	headerDir := t.TempDir()
	nativetest.WriteHeader(t, headerDir)
	libDir := t.TempDir()

	reg := native.NewRegistry()
	err := reg.Init(native.Options{
		LibraryName: "units",
		SearchDirs:  []string{libDir},
		HeaderName:  "units.h",
		HeaderDirs:  []string{headerDir},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, native.ErrLibraryNotFound)
	assert.Contains(t, err.Error(), libDir)
	assert.False(t, reg.Loaded())

	err = reg.Init(native.Options{
		LibraryName: "units",
		SearchDirs:  []string{libDir},
		HeaderName:  "units.h",
		HeaderDirs:  []string{libDir},
	})
	var notFound *native.LibraryNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "header", notFound.Kind)
}

func TestRegistryBadHeader(t *testing.T) {
	lib := nativetest.New()
	opts := nativetest.Install(t, lib)
	header := "extern \"C\" {\nint f(void);\nint f(void);\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(opts.HeaderDirs[0], nativetest.HeaderName), []byte(header), 0o644))

	reg := native.NewRegistry()
	err := reg.Init(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate declaration")
	assert.False(t, reg.Loaded())
	assert.Equal(t, 0, lib.Opens())
}

func TestRegistryUnsupportedDeclaration(t *testing.T) {
	lib := nativetest.New()
	opts := nativetest.Install(t, lib)
	header := nativetest.Header + "\nextern \"C\" {\ndouble Vec3_Length(Vec3* self);\nconst char* Units_Version(void);\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(opts.HeaderDirs[0], nativetest.HeaderName), []byte(header), 0o644))

	reg := native.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	require.NoError(t, reg.Init(opts))

	_, err := reg.Resolve("Units_LiveCount")
	require.NoError(t, err)

	for _, name := range []string{"Vec3_Length", "Units_Version"} {
		_, err = reg.Resolve(name)
		require.ErrorIs(t, err, native.ErrSymbolNotFound)
		var notFound *native.SymbolNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, name, notFound.Symbol)
		assert.Contains(t, notFound.Reason, "unsupported declaration")
	}
}

func TestRegistryCloseInvalidatesProcs(t *testing.T) {
	lib := nativetest.New()
	opts := nativetest.Install(t, lib)
	reg := native.NewRegistry()
	require.NoError(t, reg.Init(opts))

	p, err := reg.Resolve("Units_LiveCount")
	require.NoError(t, err)
	_, err = p.Call()
	require.NoError(t, err)

	require.NoError(t, reg.Close())
	_, err = p.Call()
	assert.ErrorIs(t, err, native.ErrNotInitialized)

	// a reload binds fresh procs, stale ones stay dead
	require.NoError(t, reg.Init(opts))
	t.Cleanup(func() { _ = reg.Close() })
	_, err = p.Call()
	assert.ErrorIs(t, err, native.ErrNotInitialized)

	fresh, err := reg.Resolve("Units_LiveCount")
	require.NoError(t, err)
	assert.NotSame(t, p, fresh)
	_, err = fresh.Call()
	assert.NoError(t, err)
}

func TestRegistryNotInitialized(t *testing.T) {
	reg := native.NewRegistry()

	_, err := reg.Resolve("X_Create")
	assert.ErrorIs(t, err, native.ErrNotInitialized)
	_, err = reg.ResolveType("X")
	assert.ErrorIs(t, err, native.ErrNotInitialized)
	_, ok := reg.Declaration("X_Create")
	assert.False(t, ok)
	assert.Equal(t, "", reg.LibraryPath())
	assert.NoError(t, reg.Close())
}

func TestRegistryResolveType(t *testing.T) {
	reg, _ := nativetest.Registry(t)

	tok, err := reg.ResolveType("Vec3")
	require.NoError(t, err)
	assert.Equal(t, "Vec3", tok.Name)

	_, err = reg.ResolveType("Vec5")
	assert.ErrorIs(t, err, native.ErrUnknownNativeType)
}

func TestRegistryCloseAndReload(t *testing.T) {
	lib := nativetest.New()
	opts := nativetest.Install(t, lib)
	reg := native.NewRegistry()

	require.NoError(t, reg.Init(opts))
	_, err := reg.Resolve("X_Create")
	require.NoError(t, err)

	require.NoError(t, reg.Close())
	assert.False(t, reg.Loaded())
	assert.Empty(t, reg.Resolved())

	require.NoError(t, reg.Init(opts))
	assert.Equal(t, 2, lib.Opens())
	assert.Equal(t, 2, reg.Loads())
	require.NoError(t, reg.Close())
}

func TestRegistrySharedLibrary(t *testing.T) {
	opts := nativetest.BuildShared(t)
	reg := native.NewRegistry()
	require.NoError(t, reg.Init(opts))
	t.Cleanup(func() { _ = reg.Close() })

	call := func(name string, args ...uintptr) uintptr {
		p, err := reg.Resolve(name)
		require.NoError(t, err)
		r, err := p.Call(args...)
		require.NoError(t, err)
		return r
	}

	v := call("Vec3_Create_1", native.IntArg(10), native.IntArg(20), native.IntArg(-30))
	require.NotZero(t, v)
	x := call("Vec3_AsX", v)
	y := call("Vec3_AsY", v)
	z := call("Vec3_AsZ", v)
	assert.Equal(t, int32(0), native.IntResult(call("Units_Sum", x, y, z)))
	assert.Equal(t, int32(-30), native.IntResult(call("Z_GetZ", z)))
	assert.False(t, native.BoolResult(call("X_IsZero", x)))
	assert.Equal(t, int32(1), native.IntResult(call("Units_LiveCount")))

	call("Vec3_Destroy", v)
	assert.Equal(t, int32(0), native.IntResult(call("Units_LiveCount")))
}

func TestRegistrySharedLibraryCallAfterClose(t *testing.T) {
	opts := nativetest.BuildShared(t)
	reg := native.NewRegistry()
	require.NoError(t, reg.Init(opts))

	create, err := reg.Resolve("Vec3_Create")
	require.NoError(t, err)
	destroy, err := reg.Resolve("Vec3_Destroy")
	require.NoError(t, err)
	v, err := create.Call()
	require.NoError(t, err)

	require.NoError(t, reg.Close())
	_, err = destroy.Call(v)
	assert.ErrorIs(t, err, native.ErrNotInitialized)
}
