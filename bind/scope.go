package bind

import (
	"errors"
	"sync"

	"github.com/maxpert/unitsffi/native"
	"github.com/rs/zerolog/log"
)

// Allocator creates bound objects. *Runtime and *Scope implement it.
type Allocator interface {
	New(typeName string, args ...int32) (*Object, error)
	Wrap(typeName string, ptr native.Pointer) (*Object, error)
}

// Scope collects objects and releases them together, newest first.
type Scope struct {
	rt      *Runtime
	mu      sync.Mutex
	objects []*Object
	closed  bool
}

// NewScope creates an empty scope. Callers must Close it, usually with
// defer; Runtime.Scope does both.
func (rt *Runtime) NewScope() *Scope {
	return &Scope{rt: rt}
}

func (s *Scope) New(typeName string, args ...int32) (*Object, error) {
	o, err := s.rt.New(typeName, args...)
	if err != nil {
		return nil, err
	}
	return s.Adopt(o), nil
}

func (s *Scope) Wrap(typeName string, ptr native.Pointer) (*Object, error) {
	o, err := s.rt.Wrap(typeName, ptr)
	if err != nil {
		return nil, err
	}
	return s.Adopt(o), nil
}

// Cast casts o and adopts the resulting alias.
func (s *Scope) Cast(o *Object, typeName string) (*Object, error) {
	alias, err := o.Cast(typeName)
	if err != nil {
		return nil, err
	}
	return s.Adopt(alias), nil
}

// Adopt makes the scope responsible for releasing o. Objects adopted after
// Close are released immediately.
func (s *Scope) Adopt(o *Object) *Object {
	s.mu.Lock()
	if !s.closed {
		s.objects = append(s.objects, o)
		s.mu.Unlock()
		return o
	}
	s.mu.Unlock()

	log.Warn().Str("type", o.declared.Name).Uint64("object", o.id).Msg("Object adopted by closed scope, releasing")
	if err := o.Release(); err != nil {
		log.Error().Err(err).Uint64("object", o.id).Msg("Failed to release object")
	}
	return o
}

// Len returns the number of objects the scope holds.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Close releases every adopted object in reverse order. Closing twice is a
// no-op.
func (s *Scope) Close() error {
	s.mu.Lock()
	objects := s.objects
	s.objects = nil
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for i := len(objects) - 1; i >= 0; i-- {
		if err := objects[i].Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
