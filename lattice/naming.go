package lattice

import (
	"fmt"
	"strings"
	"unicode"
)

// Symbol names follow the native library's export convention:
//
//	Vec3_Create          default constructor
//	Vec3_Create_1        first value constructor
//	Vec3_Destroy         destructor
//	X_GetX / X_SetX      field accessors
//	Vec3_AsX             cast to a direct base
//	Vec3_Print           any other method

func CreateSymbol(typeName string) string {
	return typeName + "_Create"
}

// ValueCreateSymbol names the n-th (1-based) value constructor.
func ValueCreateSymbol(typeName string, n int) string {
	return fmt.Sprintf("%s_Create_%d", typeName, n)
}

func DestroySymbol(typeName string) string {
	return typeName + "_Destroy"
}

func GetterSymbol(typeName, field string) string {
	return typeName + "_Get" + toPascal(field)
}

func SetterSymbol(typeName, field string) string {
	return typeName + "_Set" + toPascal(field)
}

func CastSymbol(typeName, base string) string {
	return typeName + "_As" + base
}

func MethodSymbol(typeName, method string) string {
	return typeName + "_" + method
}

// toPascal converts a field name to PascalCase.
// e.g., "x" → "X", "offset_d" → "OffsetD"
func toPascal(s string) string {
	var b strings.Builder
	nextUpper := true
	for _, r := range s {
		if r == '-' || r == '_' {
			nextUpper = true
			continue
		}
		if nextUpper {
			b.WriteRune(unicode.ToUpper(r))
			nextUpper = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
