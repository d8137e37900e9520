// Package units is the typed Go surface of the units native library. The
// wrappers embed each other the way the native types derive from each other,
// so a *Vec3 can be passed wherever an X, Y or Z view is expected.
package units

import (
	"github.com/maxpert/unitsffi/bind"
	"github.com/maxpert/unitsffi/native"
)

// XView, YView and ZView are implemented by every wrapper whose lattice
// includes the respective type.
type XView interface {
	xObject() *bind.Object
}

type YView interface {
	yObject() *bind.Object
}

type ZView interface {
	zObject() *bind.Object
}

// X wraps the native X type.
type X struct {
	obj *bind.Object
}

func NewX(a bind.Allocator) (*X, error) {
	return newTyped(a, TypeX, func(o *bind.Object) *X { return &X{obj: o} })
}

func NewXWithValue(a bind.Allocator, x int32) (*X, error) {
	return newTyped(a, TypeX, func(o *bind.Object) *X { return &X{obj: o} }, x)
}

func WrapX(a bind.Allocator, ptr native.Pointer) (*X, error) {
	return wrapTyped(a, TypeX, ptr, func(o *bind.Object) *X { return &X{obj: o} })
}

func (v *X) xObject() *bind.Object { return v.obj }
func (v *X) Object() *bind.Object  { return v.obj }
func (v *X) GetX() (int32, error)  { return v.obj.Get("x") }
func (v *X) SetX(x int32) error    { return v.obj.Set("x", x) }
func (v *X) Print() error          { return v.obj.Print() }
func (v *X) Close() error          { return v.obj.Release() }

func (v *X) IsZero() (bool, error) {
	r, err := v.obj.Call("IsZero")
	if err != nil {
		return false, err
	}
	return r.Bool(), nil
}

// Y wraps the native Y type.
type Y struct {
	obj *bind.Object
}

func NewY(a bind.Allocator) (*Y, error) {
	return newTyped(a, TypeY, func(o *bind.Object) *Y { return &Y{obj: o} })
}

func NewYWithValue(a bind.Allocator, y int32) (*Y, error) {
	return newTyped(a, TypeY, func(o *bind.Object) *Y { return &Y{obj: o} }, y)
}

func WrapY(a bind.Allocator, ptr native.Pointer) (*Y, error) {
	return wrapTyped(a, TypeY, ptr, func(o *bind.Object) *Y { return &Y{obj: o} })
}

func (v *Y) yObject() *bind.Object { return v.obj }
func (v *Y) Object() *bind.Object  { return v.obj }
func (v *Y) GetY() (int32, error)  { return v.obj.Get("y") }
func (v *Y) SetY(y int32) error    { return v.obj.Set("y", y) }
func (v *Y) Print() error          { return v.obj.Print() }
func (v *Y) Close() error          { return v.obj.Release() }

// Z wraps the native Z type.
type Z struct {
	obj *bind.Object
}

func NewZ(a bind.Allocator) (*Z, error) {
	return newTyped(a, TypeZ, func(o *bind.Object) *Z { return &Z{obj: o} })
}

func NewZWithValue(a bind.Allocator, z int32) (*Z, error) {
	return newTyped(a, TypeZ, func(o *bind.Object) *Z { return &Z{obj: o} }, z)
}

func WrapZ(a bind.Allocator, ptr native.Pointer) (*Z, error) {
	return wrapTyped(a, TypeZ, ptr, func(o *bind.Object) *Z { return &Z{obj: o} })
}

func (v *Z) zObject() *bind.Object { return v.obj }
func (v *Z) Object() *bind.Object  { return v.obj }
func (v *Z) GetZ() (int32, error)  { return v.obj.Get("z") }
func (v *Z) SetZ(z int32) error    { return v.obj.Set("z", z) }
func (v *Z) Print() error          { return v.obj.Print() }
func (v *Z) Close() error          { return v.obj.Release() }

// Vec3 wraps the native Vec3 type, which derives from X, Y and Z. The
// embedded wrappers share the Vec3 object, so their accessors go through
// the matching base view.
type Vec3 struct {
	X
	Y
	Z
}

func newVec3(o *bind.Object) *Vec3 {
	return &Vec3{X: X{obj: o}, Y: Y{obj: o}, Z: Z{obj: o}}
}

func NewVec3(a bind.Allocator) (*Vec3, error) {
	return newTyped(a, TypeVec3, newVec3)
}

func NewVec3WithValues(a bind.Allocator, x, y, z int32) (*Vec3, error) {
	return newTyped(a, TypeVec3, newVec3, x, y, z)
}

func WrapVec3(a bind.Allocator, ptr native.Pointer) (*Vec3, error) {
	return wrapTyped(a, TypeVec3, ptr, newVec3)
}

func (v *Vec3) Object() *bind.Object { return v.X.obj }
func (v *Vec3) Print() error         { return v.X.obj.Print() }
func (v *Vec3) Close() error         { return v.X.obj.Release() }

// GetVec3 reads all three coordinates in one native call.
func (v *Vec3) GetVec3() (x, y, z int32, err error) {
	_, err = v.X.obj.Call("GetVec3", &x, &y, &z)
	return x, y, z, err
}

func (v *Vec3) SetVec3(x, y, z int32) error {
	_, err := v.X.obj.Call("SetVec3", x, y, z)
	return err
}

// AsX, AsY and AsZ return shallow wrappers aliasing v.
func (v *Vec3) AsX() (*X, error) {
	return castTyped(v.X.obj, TypeX, func(o *bind.Object) *X { return &X{obj: o} })
}

func (v *Vec3) AsY() (*Y, error) {
	return castTyped(v.X.obj, TypeY, func(o *bind.Object) *Y { return &Y{obj: o} })
}

func (v *Vec3) AsZ() (*Z, error) {
	return castTyped(v.X.obj, TypeZ, func(o *bind.Object) *Z { return &Z{obj: o} })
}

// Vec4 wraps the native Vec4 type, which extends Vec3 with d.
type Vec4 struct {
	Vec3
}

func newVec4(o *bind.Object) *Vec4 {
	return &Vec4{Vec3: *newVec3(o)}
}

func NewVec4(a bind.Allocator) (*Vec4, error) {
	return newTyped(a, TypeVec4, newVec4)
}

func NewVec4WithValues(a bind.Allocator, x, y, z, d int32) (*Vec4, error) {
	return newTyped(a, TypeVec4, newVec4, x, y, z, d)
}

func WrapVec4(a bind.Allocator, ptr native.Pointer) (*Vec4, error) {
	return wrapTyped(a, TypeVec4, ptr, newVec4)
}

func (v *Vec4) GetD() (int32, error) { return v.X.obj.Get("d") }
func (v *Vec4) SetD(d int32) error   { return v.X.obj.Set("d", d) }

func (v *Vec4) AsVec3() (*Vec3, error) {
	return castTyped(v.X.obj, TypeVec3, newVec3)
}

// Sum adds the x, y and z fields of three views, which may belong to the
// same object.
func Sum(x XView, y YView, z ZView) (int32, error) {
	xo := x.xObject()
	r, err := xo.Runtime().Invoke(FuncSum, xo, y.yObject(), z.zObject())
	if err != nil {
		return 0, err
	}
	return r.Int(), nil
}

// ZeroY clears the y field of a view.
func ZeroY(y YView) error {
	o := y.yObject()
	_, err := o.Runtime().Invoke(FuncZeroY, o)
	return err
}

// LiveCount returns the number of allocations the native library holds.
func LiveCount(rt *bind.Runtime) (int, error) {
	r, err := rt.Invoke(FuncLiveCount)
	if err != nil {
		return 0, err
	}
	return int(r.Int()), nil
}

func newTyped[T any](a bind.Allocator, typeName string, wrap func(*bind.Object) *T, args ...int32) (*T, error) {
	o, err := a.New(typeName, args...)
	if err != nil {
		return nil, err
	}
	return wrap(o), nil
}

func wrapTyped[T any](a bind.Allocator, typeName string, ptr native.Pointer, wrap func(*bind.Object) *T) (*T, error) {
	o, err := a.Wrap(typeName, ptr)
	if err != nil {
		return nil, err
	}
	return wrap(o), nil
}

func castTyped[T any](o *bind.Object, typeName string, wrap func(*bind.Object) *T) (*T, error) {
	alias, err := o.Cast(typeName)
	if err != nil {
		return nil, err
	}
	return wrap(alias), nil
}
