package units_test

import (
	"testing"

	"github.com/maxpert/unitsffi/bind"
	"github.com/maxpert/unitsffi/native"
	"github.com/maxpert/unitsffi/native/nativetest"
	"github.com/maxpert/unitsffi/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*bind.Runtime, *nativetest.Library) {
	t.Helper()
	reg, lib := nativetest.Registry(t)
	g, err := units.NewGraph()
	require.NoError(t, err)
	require.NoError(t, g.Validate(reg))
	t.Cleanup(func() { assert.Empty(t, lib.Violations()) })
	return bind.NewRuntime(reg, g, bind.RuntimeConfig{}), lib
}

func TestSumOfSeparateObjects(t *testing.T) {
	rt, lib := setup(t)

	err := rt.Scope(func(s *bind.Scope) error {
		x, err := units.NewXWithValue(s, 10)
		require.NoError(t, err)
		y, err := units.NewYWithValue(s, 20)
		require.NoError(t, err)
		z, err := units.NewZWithValue(s, 30)
		require.NoError(t, err)

		sum, err := units.Sum(x, y, z)
		require.NoError(t, err)
		assert.Equal(t, int32(60), sum)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, lib.Live())
}

func TestSumOfOneVec3(t *testing.T) {
	rt, _ := setup(t)

	v, err := units.NewVec3WithValues(rt, 10, 20, 30)
	require.NoError(t, err)
	defer v.Close()

	sum, err := units.Sum(v, v, v)
	require.NoError(t, err)
	assert.Equal(t, int32(60), sum)

	x, y, z, err := v.GetVec3()
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 20, 30}, []int32{x, y, z})
}

func TestZeroYThroughVec3(t *testing.T) {
	rt, _ := setup(t)

	v, err := units.NewVec3WithValues(rt, 1, 2, 3)
	require.NoError(t, err)
	defer v.Close()

	require.NoError(t, units.ZeroY(v))
	y, err := v.GetY()
	require.NoError(t, err)
	assert.Equal(t, int32(0), y)

	x, err := v.GetX()
	require.NoError(t, err)
	assert.Equal(t, int32(1), x)
}

func TestCastingDownIsShallow(t *testing.T) {
	rt, lib := setup(t)

	v, err := units.NewVec3WithValues(rt, 10, 20, 30)
	require.NoError(t, err)

	zv, err := v.AsZ()
	require.NoError(t, err)
	assert.False(t, zv.Object().IsOriginator())
	require.NoError(t, zv.SetZ(5))
	z, err := v.GetZ()
	require.NoError(t, err)
	assert.Equal(t, int32(5), z)

	require.NoError(t, zv.Close())
	assert.Equal(t, 0, lib.TotalDestroys())
	require.NoError(t, v.Close())
	assert.Equal(t, 1, lib.Destroys(units.TypeVec3))

	_, err = zv.GetZ()
	assert.ErrorIs(t, err, bind.ErrUseAfterRelease)
}

func TestWrapOwningPointer(t *testing.T) {
	rt, lib := setup(t)

	v, err := units.NewVec3WithValues(rt, 1, 2, 3)
	require.NoError(t, err)
	ptr, err := v.Object().Pointer()
	require.NoError(t, err)

	w, err := units.WrapVec3(rt, ptr)
	require.NoError(t, err)
	require.NoError(t, w.SetVec3(4, 5, 6))
	require.NoError(t, w.Close())

	x, y, z, err := v.GetVec3()
	require.NoError(t, err)
	assert.Equal(t, []int32{4, 5, 6}, []int32{x, y, z})

	require.NoError(t, v.Close())
	assert.Equal(t, 1, lib.TotalDestroys())
}

func TestVec4(t *testing.T) {
	rt, lib := setup(t)

	v, err := units.NewVec4WithValues(rt, 1, 2, 3, 4)
	require.NoError(t, err)
	defer v.Close()

	d, err := v.GetD()
	require.NoError(t, err)
	assert.Equal(t, int32(4), d)
	require.NoError(t, v.SetD(9))
	d, err = v.GetD()
	require.NoError(t, err)
	assert.Equal(t, int32(9), d)

	sum, err := units.Sum(v, v, v)
	require.NoError(t, err)
	assert.Equal(t, int32(6), sum)

	base, err := v.AsVec3()
	require.NoError(t, err)
	defer base.Close()
	require.NoError(t, base.SetX(0))
	zero, err := v.IsZero()
	require.NoError(t, err)
	assert.True(t, zero)

	x, err := base.AsX()
	require.NoError(t, err)
	defer x.Close()
	got, err := x.GetX()
	require.NoError(t, err)
	assert.Equal(t, int32(0), got)

	require.NoError(t, v.Print())
	require.NoError(t, base.Print())
	assert.Equal(t, []string{"Vec4(x=0, y=2, z=3, d=9)", "Vec3(x=0, y=2, z=3)"}, lib.Printed())
}

func TestDefaultConstructors(t *testing.T) {
	rt, lib := setup(t)
	s := rt.NewScope()
	defer s.Close()

	x, err := units.NewX(s)
	require.NoError(t, err)
	zero, err := x.IsZero()
	require.NoError(t, err)
	assert.True(t, zero)

	_, err = units.NewY(s)
	require.NoError(t, err)
	_, err = units.NewZ(s)
	require.NoError(t, err)
	_, err = units.NewVec3(s)
	require.NoError(t, err)
	_, err = units.NewVec4(s)
	require.NoError(t, err)

	n, err := units.LiveCount(rt)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, lib.Live())
}

func TestWrapTypedFromViews(t *testing.T) {
	rt, _ := setup(t)

	v, err := units.NewVec4WithValues(rt, 7, 8, 9, 10)
	require.NoError(t, err)
	defer v.Close()

	view := func(typeName string) native.Pointer {
		p, err := v.Object().ViewAs(typeName)
		require.NoError(t, err)
		return p
	}

	x, err := units.WrapX(rt, view(units.TypeX))
	require.NoError(t, err)
	y, err := units.WrapY(rt, view(units.TypeY))
	require.NoError(t, err)
	z, err := units.WrapZ(rt, view(units.TypeZ))
	require.NoError(t, err)
	v4, err := units.WrapVec4(rt, view(units.TypeVec4))
	require.NoError(t, err)

	sum, err := units.Sum(x, y, z)
	require.NoError(t, err)
	assert.Equal(t, int32(24), sum)
	d, err := v4.GetD()
	require.NoError(t, err)
	assert.Equal(t, int32(10), d)

	for _, c := range []interface{ Close() error }{x, y, z, v4} {
		require.NoError(t, c.Close())
	}
	_, err = v.GetD()
	require.NoError(t, err)

	_, err = units.WrapX(rt, view(units.TypeY))
	assert.ErrorIs(t, err, bind.ErrViewMismatch)
}

func TestRegisterTwiceFails(t *testing.T) {
	g, err := units.NewGraph()
	require.NoError(t, err)
	assert.Error(t, units.Register(g))
}

func TestSelfTest(t *testing.T) {
	rt, lib := setup(t)

	checks, err := units.SelfTest(rt)
	require.NoError(t, err)
	require.Len(t, checks, 6)
	for _, c := range checks {
		assert.True(t, c.Passed, "%s: %s", c.Name, c.Detail)
	}
	assert.Equal(t, 0, lib.Live())
	assert.Empty(t, rt.AllocationStats())
}

func TestSelfTestReportsMissingSymbols(t *testing.T) {
	rt, lib := setup(t)
	lib.Hide(units.FuncZeroY)

	_, err := units.SelfTest(rt)
	require.Error(t, err)
	assert.ErrorIs(t, err, native.ErrSymbolNotFound)
	assert.Equal(t, 0, lib.Live())
}
