package native

// Func performs one foreign call with every argument already converted to a
// register value.
type Func func(args ...uintptr) uintptr

// Library is an opened native library.
type Library interface {
	// Path is the file the library was loaded from.
	Path() string
	// Lookup returns a callable for an exported symbol.
	Lookup(name string) (Func, error)
	// Close unloads the library. Funcs obtained from it must not be used
	// afterwards.
	Close() error
}

// Opener opens the library found at path.
type Opener func(path string) (Library, error)
