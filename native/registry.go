package native

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/maxpert/unitsffi/telemetry"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// Options locate the native library and its interface description.
type Options struct {
	LibraryName string
	SearchDirs  []string
	HeaderName  string
	HeaderDirs  []string
	// Exports restricts accepted declarations to names matching one of the
	// glob patterns. Empty accepts everything.
	Exports []string
	// Opener opens the located library. Defaults to OpenLibrary.
	Opener Opener
}

func (o Options) equal(other Options) bool {
	return o.LibraryName == other.LibraryName &&
		o.HeaderName == other.HeaderName &&
		slices.Equal(o.SearchDirs, other.SearchDirs) &&
		slices.Equal(o.HeaderDirs, other.HeaderDirs) &&
		slices.Equal(o.Exports, other.Exports)
}

// Registry resolves entry points of one loaded native library into typed
// callables. The library and its header are loaded once by Init; symbols are
// bound lazily on first Resolve and memoized.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	opts  Options
	lib   Library
	iface *Interface
	procs *xsync.MapOf[string, *Proc]
	gen   *generation
	loads int
}

// NewRegistry creates an empty, unloaded registry.
func NewRegistry() *Registry {
	return &Registry{
		procs: xsync.NewMapOf[string, *Proc](),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Init loads the process-wide registry.
func Init(opts Options) error {
	return defaultRegistry.Init(opts)
}

// Shutdown unloads the process-wide registry.
func Shutdown() error {
	return defaultRegistry.Close()
}

// Init locates and parses the header, then locates and opens the library.
// Calling Init on a loaded registry is a no-op; the library is not reopened.
func (r *Registry) Init(opts Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lib != nil {
		if !r.opts.equal(opts) {
			log.Warn().
				Str("library", r.lib.Path()).
				Str("requested", opts.LibraryName).
				Msg("Native registry already initialized with different options, keeping loaded library")
		} else {
			log.Debug().Str("library", r.lib.Path()).Msg("Native registry already initialized")
		}
		return nil
	}

	start := time.Now()

	headerPath, err := LocateHeader(opts.HeaderName, opts.HeaderDirs)
	if err != nil {
		return err
	}
	iface, err := ParseHeaderFile(headerPath, opts.Exports)
	if err != nil {
		return fmt.Errorf("failed to load interface description: %w", err)
	}

	libPath, err := LocateLibrary(opts.LibraryName, opts.SearchDirs)
	if err != nil {
		return err
	}
	opener := opts.Opener
	if opener == nil {
		opener = OpenLibrary
	}
	lib, err := opener(libPath)
	if err != nil {
		return err
	}

	r.opts = opts
	r.lib = lib
	r.iface = iface
	r.gen = &generation{}
	r.loads++

	telemetry.LibraryLoadsTotal.Inc()
	telemetry.LibraryLoadSeconds.Observe(time.Since(start).Seconds())

	log.Info().
		Str("library", libPath).
		Str("header", headerPath).
		Int("symbols", iface.Len()).
		Str("digest", fmt.Sprintf("%016x", iface.Digest())).
		Msg("Native library loaded")
	return nil
}

// Loaded reports whether Init succeeded and Close has not been called since.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lib != nil
}

// Loads returns how many times a library was actually opened.
func (r *Registry) Loads() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loads
}

// LibraryPath returns the path of the loaded library, or "" when unloaded.
func (r *Registry) LibraryPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lib == nil {
		return ""
	}
	return r.lib.Path()
}

// Interface returns the parsed interface description, or nil when unloaded.
func (r *Registry) Interface() *Interface {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.iface
}

// Declaration returns the header-declared signature of an entry point
// without binding it.
func (r *Registry) Declaration(name string) (Signature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.iface == nil {
		return Signature{}, false
	}
	return r.iface.Declaration(name)
}

// ResolveType returns the token of an opaque type declared by the header.
func (r *Registry) ResolveType(name string) (TypeToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.iface == nil {
		return TypeToken{}, ErrNotInitialized
	}
	tok, ok := r.iface.Type(name)
	if !ok {
		return TypeToken{}, fmt.Errorf("%w: %s (header %s)", ErrUnknownNativeType, name, r.iface.Path)
	}
	return tok, nil
}

// Resolve returns the callable for an entry point, binding it on first use.
func (r *Registry) Resolve(name string) (*Proc, error) {
	if p, ok := r.procs.Load(name); ok {
		telemetry.SymbolResolutionsTotal.With("hit").Inc()
		return p, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.lib == nil {
		return nil, fmt.Errorf("resolve %s: %w", name, ErrNotInitialized)
	}

	sig, ok := r.iface.Declaration(name)
	if !ok {
		reason := "not declared by interface description"
		if why, skipped := r.iface.Unsupported(name); skipped {
			reason = "unsupported declaration: " + why
		}
		telemetry.SymbolResolutionsTotal.With("error").Inc()
		return nil, &SymbolNotFoundError{
			Symbol:  name,
			Header:  r.iface.Path,
			Library: r.lib.Path(),
			Reason:  reason,
		}
	}

	fn, err := r.lib.Lookup(name)
	if err != nil {
		telemetry.SymbolResolutionsTotal.With("error").Inc()
		return nil, &SymbolNotFoundError{
			Symbol:  name,
			Header:  r.iface.Path,
			Library: r.lib.Path(),
			Reason:  err.Error(),
		}
	}

	p, loaded := r.procs.LoadOrStore(name, &Proc{sig: sig, fn: fn, gen: r.gen})
	if !loaded {
		telemetry.SymbolResolutionsTotal.With("miss").Inc()
		log.Debug().Str("symbol", name).Str("signature", sig.String()).Msg("Bound native symbol")
	}
	return p, nil
}

// Resolved returns the names of all symbols bound so far, sorted.
func (r *Registry) Resolved() []string {
	var names []string
	r.procs.Range(func(name string, _ *Proc) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Close unloads the library. Procs obtained before Close stay safe to hold:
// calling them afterwards returns ErrNotInitialized, also after a later Init.
// Close waits for in-flight calls to return. Close on an unloaded registry is
// a no-op.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lib == nil {
		return nil
	}

	r.gen.close()
	path := r.lib.Path()
	err := r.lib.Close()
	r.gen = nil
	r.lib = nil
	r.iface = nil
	r.opts = Options{}
	r.procs.Clear()

	if err != nil {
		return fmt.Errorf("failed to unload %s: %w", path, err)
	}
	log.Info().Str("library", path).Msg("Native library unloaded")
	return nil
}
