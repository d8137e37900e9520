package admin

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/unitsffi/lattice"
)

type fieldInfo struct {
	Field      string `json:"field"`
	DeclaredBy string `json:"declared_by"`
	Getter     string `json:"getter"`
	Setter     string `json:"setter"`
}

type methodInfo struct {
	Name       string `json:"name"`
	DeclaredBy string `json:"declared_by"`
	Signature  string `json:"signature"`
}

type constructorInfo struct {
	Symbol string   `json:"symbol"`
	Fields []string `json:"fields"`
}

type typeInfo struct {
	Name         string            `json:"name"`
	Bases        []string          `json:"bases"`
	Ancestors    []string          `json:"ancestors"`
	Constructors []constructorInfo `json:"constructors,omitempty"`
	Destructor   string            `json:"destructor,omitempty"`
	Casts        map[string]string `json:"casts,omitempty"`
	Fields       []fieldInfo       `json:"fields,omitempty"`
	Methods      []methodInfo      `json:"methods,omitempty"`
	Live         int               `json:"live"`
}

func typeNames(types []*lattice.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.Name
	}
	return out
}

func (h *AdminHandlers) describeType(t *lattice.Type, detailed bool, live map[string]int) typeInfo {
	g := h.runtime.Graph()
	info := typeInfo{
		Name:      t.Name,
		Bases:     typeNames(t.Bases),
		Ancestors: typeNames(g.AncestorsOf(t)),
		Live:      live[t.Name],
	}
	if !detailed {
		return info
	}

	info.Destructor = t.Destructor
	info.Casts = t.Casts
	for _, c := range t.Constructors {
		info.Constructors = append(info.Constructors, constructorInfo{Symbol: c.Symbol, Fields: c.Fields})
	}

	// inherited members are listed with the type that declares them
	seen := make(map[string]bool)
	for _, owner := range g.Lineage(t) {
		for _, name := range owner.FieldNames() {
			acc := owner.Fields[name]
			info.Fields = append(info.Fields, fieldInfo{
				Field:      name,
				DeclaredBy: owner.Name,
				Getter:     acc.Getter,
				Setter:     acc.Setter,
			})
		}
		for _, name := range owner.MethodNames() {
			if seen[name] {
				continue
			}
			seen[name] = true
			info.Methods = append(info.Methods, methodInfo{
				Name:       name,
				DeclaredBy: owner.Name,
				Signature:  owner.Methods[name].Sig.String(),
			})
		}
	}
	return info
}

// handleListTypes lists every wrapped type with its bases
func (h *AdminHandlers) handleListTypes(w http.ResponseWriter, r *http.Request) {
	live := h.runtime.AllocationStats()
	types := h.runtime.Graph().Types()

	result := make([]typeInfo, 0, len(types))
	for _, t := range types {
		result = append(result, h.describeType(t, false, live))
	}
	writeJSONResponse(w, result, false, "")
}

// handleDescribeType returns the members and entry points of one type
func (h *AdminHandlers) handleDescribeType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	t, err := h.runtime.Graph().Describe(name)
	if err != nil {
		if errors.Is(err, lattice.ErrUnknownType) {
			writeErrorResponse(w, http.StatusNotFound, err.Error())
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONResponse(w, h.describeType(t, true, h.runtime.AllocationStats()), false, "")
}

type functionInfo struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Declared  string `json:"declared,omitempty"`
}

// handleListFunctions lists the free functions with their expected and
// header-declared prototypes
func (h *AdminHandlers) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	funcs := h.runtime.Graph().Functions()
	result := make([]functionInfo, 0, len(funcs))
	for _, fn := range funcs {
		info := functionInfo{Name: fn.Name, Signature: fn.Sig.String()}
		if sig, ok := h.registry.Declaration(fn.Name); ok {
			info.Declared = sig.String()
		}
		result = append(result, info)
	}
	writeJSONResponse(w, result, false, "")
}
