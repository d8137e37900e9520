package native

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

// TypeToken identifies an opaque struct type declared by the interface
// description.
type TypeToken struct {
	Name  string
	Index int
}

// Interface is the parsed interface description of a native library: the
// opaque types it declares and the prototypes of its exported functions.
type Interface struct {
	Path        string
	types       map[string]TypeToken
	decls       map[string]Signature
	unsupported map[string]string
	order       []string
}

func newInterface(path string) *Interface {
	return &Interface{
		Path:        path,
		types:       make(map[string]TypeToken),
		decls:       make(map[string]Signature),
		unsupported: make(map[string]string),
	}
}

// Declaration returns the declared signature of an entry point.
func (i *Interface) Declaration(name string) (Signature, bool) {
	sig, ok := i.decls[name]
	return sig, ok
}

// Unsupported reports why a declared entry point was skipped.
func (i *Interface) Unsupported(name string) (string, bool) {
	why, ok := i.unsupported[name]
	return why, ok
}

// Type returns the token of a declared opaque type.
func (i *Interface) Type(name string) (TypeToken, bool) {
	tok, ok := i.types[name]
	return tok, ok
}

// Names returns the declared entry point names in header order.
func (i *Interface) Names() []string {
	out := make([]string, len(i.order))
	copy(out, i.order)
	return out
}

// TypeNames returns the declared opaque type names in header order.
func (i *Interface) TypeNames() []string {
	out := make([]string, len(i.types))
	for name, tok := range i.types {
		out[tok.Index] = name
	}
	return out
}

// Len returns the number of declared entry points.
func (i *Interface) Len() int {
	return len(i.decls)
}

// Digest is a stable hash of every accepted declaration.
func (i *Interface) Digest() uint64 {
	lines := make([]string, 0, len(i.decls)+len(i.types))
	for _, sig := range i.decls {
		lines = append(lines, sig.String())
	}
	for name := range i.types {
		lines = append(lines, "struct "+name)
	}
	sort.Strings(lines)

	d := xxhash.New()
	for _, l := range lines {
		_, _ = d.WriteString(l)
		_, _ = d.WriteString("\n")
	}
	return d.Sum64()
}

// CompileExports compiles export filter patterns. An empty list accepts
// every declaration.
func CompileExports(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid export pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

var (
	typedefRe = regexp.MustCompile(`^typedef\s+struct\s+(\w+)\s+(\w+)\s*;$`)
	funcRe    = regexp.MustCompile(`^(.+?)\b(\w+)\s*\(([^)]*)\)\s*;$`)
	identRe   = regexp.MustCompile(`^[A-Za-z_]\w*$`)
)

// ParseHeaderFile reads and parses a header from disk.
func ParseHeaderFile(path string, exports []string) (*Interface, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	iface, err := ParseHeader(f, exports)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	iface.Path = path
	return iface, nil
}

// ParseHeader extracts opaque struct typedefs and function prototypes from a
// C header. Only declarations inside an extern "C" block, or following
// extern "C" on the same line, are recognized; comments, preprocessor lines
// and everything outside are skipped. Prototypes may span several lines.
//
// Declarations the binding cannot express are skipped and remembered, so
// resolving one of them later fails with a SymbolNotFoundError explaining why.
// Only conflicting declarations fail the parse.
func ParseHeader(r io.Reader, exports []string) (*Interface, error) {
	filters, err := CompileExports(exports)
	if err != nil {
		return nil, err
	}

	iface := newInterface("")
	scanner := bufio.NewScanner(r)
	inExtern := false
	inComment := false
	nested := 0
	pending := ""
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		line, inComment = stripComments(line, inComment)
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if rest, ok := strings.CutPrefix(line, `extern "C"`); ok && !inExtern {
			rest = strings.TrimSpace(rest)
			switch {
			case rest == "":
				inExtern = true
				continue
			case strings.HasPrefix(rest, "{"):
				inExtern = true
				line = strings.TrimSpace(rest[1:])
				if line == "" {
					continue
				}
			default:
				if err := iface.declare(rest, lineNo, filters); err != nil {
					return nil, err
				}
				continue
			}
		} else if !inExtern {
			continue
		}
		if line == "{" {
			continue
		}

		opens := strings.Count(line, "{")
		closes := strings.Count(line, "}")
		closing := nested == 0 && closes > opens
		if closing {
			line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(line, ";"), "}"))
		} else {
			nested = max(nested+opens-closes, 0)
		}

		if pending != "" {
			line = strings.TrimSpace(pending + " " + line)
			pending = ""
		}
		if line != "" && strings.Contains(line, "(") && !strings.HasSuffix(line, ";") && !closing {
			pending = line
			continue
		}
		if line != "" {
			if err := iface.declare(line, lineNo, filters); err != nil {
				return nil, err
			}
		}
		if closing {
			inExtern = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if pending != "" {
		log.Debug().Int("line", lineNo).Str("text", pending).Msg("Skipping unterminated header declaration")
	}

	return iface, nil
}

// declare records one complete declaration.
func (i *Interface) declare(line string, lineNo int, filters []glob.Glob) error {
	if m := typedefRe.FindStringSubmatch(line); m != nil {
		if _, ok := i.types[m[2]]; !ok {
			i.types[m[2]] = TypeToken{Name: m[2], Index: len(i.types)}
		}
		return nil
	}

	m := funcRe.FindStringSubmatch(line)
	if m == nil {
		log.Debug().Int("line", lineNo).Str("text", line).Msg("Skipping unrecognized header line")
		return nil
	}
	name := m[2]
	if !exported(filters, name) {
		return nil
	}
	_, dup := i.decls[name]
	if _, skipped := i.unsupported[name]; dup || skipped {
		return fmt.Errorf("line %d: duplicate declaration of %s", lineNo, name)
	}

	sig, err := i.parseSignature(name, m[1], m[3])
	if err != nil {
		i.unsupported[name] = err.Error()
		log.Debug().Int("line", lineNo).Str("symbol", name).Err(err).Msg("Skipping unsupported header declaration")
		return nil
	}
	i.decls[name] = sig
	i.order = append(i.order, name)
	return nil
}

func exported(filters []glob.Glob, name string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, g := range filters {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func stripComments(line string, inComment bool) (string, bool) {
	var b strings.Builder
	for len(line) > 0 {
		if inComment {
			end := strings.Index(line, "*/")
			if end < 0 {
				return b.String(), true
			}
			line = line[end+2:]
			inComment = false
			continue
		}
		lineIdx := strings.Index(line, "//")
		blockIdx := strings.Index(line, "/*")
		switch {
		case lineIdx >= 0 && (blockIdx < 0 || lineIdx < blockIdx):
			b.WriteString(line[:lineIdx])
			return b.String(), false
		case blockIdx >= 0:
			b.WriteString(line[:blockIdx])
			line = line[blockIdx+2:]
			inComment = true
		default:
			b.WriteString(line)
			line = ""
		}
	}
	return b.String(), inComment
}

func (i *Interface) parseSignature(name, result, params string) (Signature, error) {
	res, err := i.parseParam(result)
	if err != nil {
		return Signature{}, fmt.Errorf("%s result: %w", name, err)
	}
	sig := Signature{Name: name, Result: res}

	params = strings.TrimSpace(params)
	if params == "" || params == "void" {
		return sig, nil
	}
	for n, text := range strings.Split(params, ",") {
		p, err := i.parseParam(text)
		if err != nil {
			return Signature{}, fmt.Errorf("%s parameter %d: %w", name, n+1, err)
		}
		if p.Kind == KindVoid {
			return Signature{}, fmt.Errorf("%s parameter %d: void parameter", name, n+1)
		}
		sig.Params = append(sig.Params, p)
	}
	return sig, nil
}

func (i *Interface) parseParam(text string) (Param, error) {
	fields := strings.Fields(strings.ReplaceAll(text, "*", " * "))

	var words []string
	stars := 0
	for _, f := range fields {
		switch f {
		case "*":
			stars++
		case "const", "struct":
		default:
			words = append(words, f)
		}
	}

	var p Param
	if len(words) == 2 && identRe.MatchString(words[1]) {
		p.Name = words[1]
		words = words[:1]
	}
	if len(words) != 1 {
		return Param{}, fmt.Errorf("unsupported type %q", strings.TrimSpace(text))
	}

	base := words[0]
	switch {
	case base == "void" && stars == 0:
		p.Kind = KindVoid
	case base == "int" && stars == 0:
		p.Kind = KindInt
	case base == "int" && stars == 1:
		p.Kind = KindIntPointer
	case (base == "bool" || base == "_Bool") && stars == 0:
		p.Kind = KindBool
	case stars == 1:
		if _, ok := i.types[base]; !ok {
			return Param{}, fmt.Errorf("%w: %s", ErrUnknownNativeType, base)
		}
		p.Kind = KindPointer
		p.Type = base
	default:
		return Param{}, fmt.Errorf("unsupported type %q", strings.TrimSpace(text))
	}
	return p, nil
}
