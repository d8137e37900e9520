package native

import (
	"fmt"
	"sync"

	"github.com/maxpert/unitsffi/telemetry"
)

// generation tracks one Init/Close cycle of a registry. Procs bound during the
// cycle hold the generation and refuse to call into the library once it has
// been unloaded.
type generation struct {
	mu     sync.RWMutex
	closed bool
}

func (g *generation) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// Proc is a resolved, typed native entry point.
type Proc struct {
	sig Signature
	fn  Func
	gen *generation
}

// NewProc binds a signature to a callable. The returned Proc is not tied to
// any registry and stays callable for as long as fn is valid.
func NewProc(sig Signature, fn Func) *Proc {
	return &Proc{sig: sig, fn: fn}
}

// Name returns the symbol name.
func (p *Proc) Name() string {
	return p.sig.Name
}

// Signature returns the declared prototype.
func (p *Proc) Signature() Signature {
	return p.sig
}

// Call invokes the entry point. The argument count must match the
// declared signature. Calling a Proc whose registry has been closed returns
// ErrNotInitialized.
func (p *Proc) Call(args ...uintptr) (uintptr, error) {
	if len(args) != len(p.sig.Params) {
		return 0, fmt.Errorf("%s: %w: got %d, want %d", p.sig.Name, ErrArity, len(args), len(p.sig.Params))
	}
	if p.gen != nil {
		// held across the call so Close waits for in-flight calls
		p.gen.mu.RLock()
		defer p.gen.mu.RUnlock()
		if p.gen.closed {
			return 0, fmt.Errorf("call %s: %w", p.sig.Name, ErrNotInitialized)
		}
	}
	telemetry.NativeCallsTotal.With(p.sig.Name).Inc()
	return p.fn(args...), nil
}
