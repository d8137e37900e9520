package native

import (
	"fmt"
	"strings"
)

// Pointer is an opaque native address. The zero value is the null pointer.
type Pointer uintptr

// IsNull reports whether p is the null pointer.
func (p Pointer) IsNull() bool {
	return p == 0
}

func (p Pointer) String() string {
	if p == 0 {
		return "(nil)"
	}
	return fmt.Sprintf("0x%x", uintptr(p))
}

// Kind is the ABI class of a parameter or result.
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt
	KindBool
	KindPointer    // opaque struct pointer, Param.Type names the struct
	KindIntPointer // int* out-parameter
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindPointer:
		return "pointer"
	case KindIntPointer:
		return "int*"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Param describes one parameter (or the result) of a native entry point.
type Param struct {
	Kind Kind
	Type string // struct name when Kind == KindPointer
	Name string // optional, ignored when comparing signatures
}

// Void, Int, Bool, IntOut and Ptr build parameters for hand-written signatures.
func Void() Param               { return Param{Kind: KindVoid} }
func Int() Param                { return Param{Kind: KindInt} }
func Bool() Param               { return Param{Kind: KindBool} }
func IntOut() Param             { return Param{Kind: KindIntPointer} }
func Ptr(typeName string) Param { return Param{Kind: KindPointer, Type: typeName} }

func (p Param) sameType(o Param) bool {
	return p.Kind == o.Kind && p.Type == o.Type
}

// CType renders the parameter as C source text.
func (p Param) CType() string {
	switch p.Kind {
	case KindPointer:
		return p.Type + "*"
	case KindIntPointer:
		return "int*"
	default:
		return p.Kind.String()
	}
}

// Signature is the full prototype of a native entry point.
type Signature struct {
	Name   string
	Result Param
	Params []Param
}

// Matches reports whether both signatures have the same name, result and
// parameter types. Parameter names are ignored.
func (s Signature) Matches(o Signature) bool {
	if s.Name != o.Name || !s.Result.sameType(o.Result) || len(s.Params) != len(o.Params) {
		return false
	}
	for i := range s.Params {
		if !s.Params[i].sameType(o.Params[i]) {
			return false
		}
	}
	return true
}

func (s Signature) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.CType()
	}
	return fmt.Sprintf("%s %s(%s)", s.Result.CType(), s.Name, strings.Join(params, ", "))
}

// IntArg converts a C int argument to a register value. Negative values are
// sign extended, the callee only reads the low 32 bits.
func IntArg(v int32) uintptr {
	return uintptr(int64(v))
}

// BoolArg converts a C bool argument to a register value.
func BoolArg(v bool) uintptr {
	if v {
		return 1
	}
	return 0
}

// IntResult truncates a register value to a C int.
func IntResult(r uintptr) int32 {
	return int32(r)
}

// BoolResult reads a C bool from the low byte of a register value.
func BoolResult(r uintptr) bool {
	return uint8(r) != 0
}
