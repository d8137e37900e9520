package units

import (
	"fmt"

	"github.com/maxpert/unitsffi/lattice"
	"github.com/maxpert/unitsffi/native"
)

// Type names of the units library.
const (
	TypeX    = "X"
	TypeY    = "Y"
	TypeZ    = "Z"
	TypeVec3 = "Vec3"
	TypeVec4 = "Vec4"
)

// Free function names of the units library.
const (
	FuncSum       = "Units_Sum"
	FuncZeroY     = "Units_Zero_Y"
	FuncLiveCount = "Units_LiveCount"
)

var printMethod = lattice.MethodSpec{Name: "Print", Result: native.Void()}

// Specs describes the units lattice: three independent roots, Vec3 deriving
// from all of them and Vec4 extending Vec3.
var Specs = []lattice.Spec{
	{
		Name:              TypeX,
		Fields:            []string{"x"},
		ValueConstructors: [][]string{{"x"}},
		Methods: []lattice.MethodSpec{
			printMethod,
			{Name: "IsZero", Result: native.Bool()},
		},
	},
	{
		Name:              TypeY,
		Fields:            []string{"y"},
		ValueConstructors: [][]string{{"y"}},
		Methods:           []lattice.MethodSpec{printMethod},
	},
	{
		Name:              TypeZ,
		Fields:            []string{"z"},
		ValueConstructors: [][]string{{"z"}},
		Methods:           []lattice.MethodSpec{printMethod},
	},
	{
		Name:              TypeVec3,
		Bases:             []string{TypeX, TypeY, TypeZ},
		ValueConstructors: [][]string{{"x", "y", "z"}},
		Methods: []lattice.MethodSpec{
			printMethod,
			{Name: "GetVec3", Result: native.Void(), Params: []native.Param{native.IntOut(), native.IntOut(), native.IntOut()}},
			{Name: "SetVec3", Result: native.Void(), Params: []native.Param{native.Int(), native.Int(), native.Int()}},
		},
	},
	{
		Name:              TypeVec4,
		Bases:             []string{TypeVec3},
		Fields:            []string{"d"},
		ValueConstructors: [][]string{{"x", "y", "z", "d"}},
		Methods:           []lattice.MethodSpec{printMethod},
	},
}

// Register defines the units types and free functions on g.
func Register(g *lattice.Graph) error {
	for _, spec := range Specs {
		if _, err := g.Define(spec); err != nil {
			return fmt.Errorf("define %s: %w", spec.Name, err)
		}
	}

	funcs := []struct {
		name   string
		result native.Param
		params []native.Param
	}{
		{FuncSum, native.Int(), []native.Param{native.Ptr(TypeX), native.Ptr(TypeY), native.Ptr(TypeZ)}},
		{FuncZeroY, native.Void(), []native.Param{native.Ptr(TypeY)}},
		{FuncLiveCount, native.Int(), nil},
	}
	for _, f := range funcs {
		if _, err := g.DefineFunction(f.name, f.result, f.params...); err != nil {
			return fmt.Errorf("define %s: %w", f.name, err)
		}
	}
	return nil
}

// NewGraph returns a graph holding the units lattice.
func NewGraph() (*lattice.Graph, error) {
	g := lattice.NewGraph()
	if err := Register(g); err != nil {
		return nil, err
	}
	return g, nil
}
