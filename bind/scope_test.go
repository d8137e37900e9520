package bind_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/maxpert/unitsffi/bind"
	"github.com/maxpert/unitsffi/native"
	"github.com/maxpert/unitsffi/native/nativetest"
	"github.com/maxpert/unitsffi/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeReleasesOnError(t *testing.T) {
	rt, lib := newRuntime(t)
	boom := errors.New("boom")

	var kept *bind.Object
	err := rt.Scope(func(s *bind.Scope) error {
		v, err := s.New(units.TypeVec3, 1, 2, 3)
		if err != nil {
			return err
		}
		kept = v
		if _, err := s.Cast(v, units.TypeX); err != nil {
			return err
		}
		assert.Equal(t, 2, s.Len())
		assert.Equal(t, 1, lib.Live())
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, lib.Live())
	assert.True(t, kept.Released())
}

func TestScopeReleasesOnPanic(t *testing.T) {
	rt, lib := newRuntime(t)

	assert.Panics(t, func() {
		_ = rt.Scope(func(s *bind.Scope) error {
			if _, err := s.New(units.TypeVec4, 1, 2, 3, 4); err != nil {
				return err
			}
			panic("unexpected")
		})
	})
	assert.Equal(t, 0, lib.Live())
	assert.Equal(t, 1, lib.Destroys(units.TypeVec4))
}

func TestScopeReleasesInReverseOrder(t *testing.T) {
	rt, lib := newRuntime(t)

	s := rt.NewScope()
	v, err := s.New(units.TypeVec3, 1, 2, 3)
	require.NoError(t, err)
	ptr, err := v.ViewAs(units.TypeZ)
	require.NoError(t, err)
	z, err := s.Wrap(units.TypeZ, ptr)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.True(t, v.Released())
	assert.True(t, z.Released())
	assert.Equal(t, 1, lib.TotalDestroys())

	// closing again is harmless, late adoptions are released immediately
	require.NoError(t, s.Close())
	late, err := s.New(units.TypeX, 1)
	require.NoError(t, err)
	assert.True(t, late.Released())
	assert.Equal(t, 0, lib.Live())
}

func TestScopeAsAllocator(t *testing.T) {
	rt, lib := newRuntime(t)

	var alloc bind.Allocator = rt.NewScope()
	o, err := alloc.New(units.TypeY, 4)
	require.NoError(t, err)
	y, err := o.Get("y")
	require.NoError(t, err)
	assert.Equal(t, int32(4), y)
	require.NoError(t, alloc.(*bind.Scope).Close())
	assert.Equal(t, 0, lib.Live())

	alloc = rt
	o, err = alloc.New(units.TypeY)
	require.NoError(t, err)
	require.NoError(t, o.Close())
}

func TestConcurrentAliases(t *testing.T) {
	rt, lib := newRuntime(t)

	v, err := rt.New(units.TypeVec3, 0, 0, 0)
	require.NoError(t, err)

	const workers = 8
	const rounds = 200
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			alias, err := v.Cast(units.TypeX)
			if !assert.NoError(t, err) {
				return
			}
			defer alias.Release()
			for r := 0; r < rounds; r++ {
				if !assert.NoError(t, alias.Set("x", int32(i))) {
					return
				}
				_, err := rt.Invoke(units.FuncSum, alias, v, v)
				if !assert.NoError(t, err) {
					return
				}
			}
		}(i)
	}
	wg.Wait()

	x, err := v.Get("x")
	require.NoError(t, err)
	assert.True(t, x >= 0 && x < workers)

	// racing releases reach the destructor once
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, v.Release())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, lib.Destroys(units.TypeVec3))
	assert.Equal(t, 0, lib.Live())
}

func TestRuntimeWithSharedLibrary(t *testing.T) {
	opts := nativetest.BuildShared(t)
	reg := native.NewRegistry()
	require.NoError(t, reg.Init(opts))
	t.Cleanup(func() { _ = reg.Close() })

	g, err := units.NewGraph()
	require.NoError(t, err)
	require.NoError(t, g.Validate(reg))
	rt := bind.NewRuntime(reg, g, bind.RuntimeConfig{})

	live := func() int32 {
		r, err := rt.Invoke(units.FuncLiveCount)
		require.NoError(t, err)
		return r.Int()
	}

	err = rt.Scope(func(s *bind.Scope) error {
		v, err := s.New(units.TypeVec3, 10, 20, 30)
		require.NoError(t, err)
		zView, err := s.Cast(v, units.TypeZ)
		require.NoError(t, err)
		require.NoError(t, zView.Set("z", 5))
		z, err := v.Get("z")
		require.NoError(t, err)
		assert.Equal(t, int32(5), z)

		r, err := rt.Invoke(units.FuncSum, v, v, v)
		require.NoError(t, err)
		assert.Equal(t, int32(35), r.Int())

		v4, err := s.New(units.TypeVec4, 1, 2, 3, 4)
		require.NoError(t, err)
		var x, y, zz int32
		_, err = v4.Call("GetVec3", &x, &y, &zz)
		require.NoError(t, err)
		assert.Equal(t, []int32{1, 2, 3}, []int32{x, y, zz})
		d, err := v4.Get("d")
		require.NoError(t, err)
		assert.Equal(t, int32(4), d)

		assert.Equal(t, int32(2), live())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), live())
}

func TestSharedLibraryObjectsAfterRegistryClose(t *testing.T) {
	opts := nativetest.BuildShared(t)
	reg := native.NewRegistry()
	require.NoError(t, reg.Init(opts))
	g, err := units.NewGraph()
	require.NoError(t, err)
	rt := bind.NewRuntime(reg, g, bind.RuntimeConfig{})

	v, err := rt.New(units.TypeVec3, 1, 2, 3)
	require.NoError(t, err)
	require.NoError(t, reg.Close())

	_, err = v.Get("x")
	assert.ErrorIs(t, err, native.ErrNotInitialized)
	assert.ErrorIs(t, v.Release(), native.ErrNotInitialized)
}

