package vectis

import (
	"fmt"

	"github.com/google/uuid"
)

// Freeze freezes e. Entities that own other entities (see Dataset) cascade the
// latch to everything they own.
func Freeze(e Entity) {
	if f, ok := e.(interface{ Freeze() }); ok {
		f.Freeze()
		return
	}
	e.Core().Freeze()
}

// DeepCopy returns an independent clone of e (nested entities included) with
// the requested freeze state. The clone keeps e's view version; observers are
// not copied.
func (r *Registry) DeepCopy(e Entity, frozen bool) (Entity, error) {
	c, err := r.clone(e, frozen)
	if err != nil {
		return nil, err
	}
	if frozen {
		Freeze(c)
	}
	return c, nil
}

// DeepCopyNewViewVersion is like DeepCopy, but the clone (and only the clone,
// not its nested entities) gets a fresh view version.
func (r *Registry) DeepCopyNewViewVersion(e Entity, frozen bool) (Entity, error) {
	c, err := r.clone(e, frozen)
	if err != nil {
		return nil, err
	}
	c.Core().viewVersion = uuid.NewString()
	if frozen {
		Freeze(c)
	}
	return c, nil
}

// clone copies e field by field. Nested entities are cloned recursively and
// frozen when frozen is set; e's clone itself is left for the caller to freeze.
func (r *Registry) clone(e Entity, frozen bool) (Entity, error) {
	s, err := r.SchemaOf(e)
	if err != nil {
		return nil, err
	}
	c := s.New()
	end := c.Core().BeginBulkLoad()
	defer end()
	child := func(x Entity) (Entity, error) {
		y, err := r.clone(x, frozen)
		if err != nil {
			return nil, err
		}
		if frozen {
			Freeze(y)
		}
		return y, nil
	}
	for _, f := range s.Fields {
		if err := f.access.copy(c, e, child); err != nil {
			return nil, fmt.Errorf("copy %s.%s: %w", s.Discriminator, f.Name, err)
		}
	}
	return c, nil
}

// CopyOf is the typed form of Registry.DeepCopy.
func CopyOf[T Entity](r *Registry, e T, frozen bool) (T, error) {
	c, err := r.DeepCopy(e, frozen)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.(T), nil
}
