package vectis

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Schema is the static registration table of one entity type: its
// discriminator, a constructor, the family tags it indexes under and its
// ordered field table.
type Schema struct {
	// Discriminator is the stable tag identifying the type on the wire and in
	// create events.
	Discriminator string
	// New returns a zero-valued, unfrozen entity of the type.
	New func() Entity
	// Families lists additional tags under which a Dataset indexes entities of
	// the type (e.g. "Loan" for every kind of loan).
	Families []string
	// Fields is the field table. Callers pass the declared fields only, ordered
	// base-level first (see Fields); Register prepends the system fields shared
	// by every entity.
	Fields []Field

	byName map[string]int            // lower-cased name -> index
	byWire map[string]map[string]int // backend -> wire name -> index
}

// Fields concatenates field levels in order. Pass the fields of the most
// general level first, so that ancestors' fields precede their descendants'.
func Fields(levels ...[]Field) []Field {
	var n int
	for _, l := range levels {
		n += len(l)
	}
	out := make([]Field, 0, n)
	for _, l := range levels {
		out = append(out, l...)
	}
	return out
}

// Field looks up a field by its declared name, ignoring case.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// FieldByWire reverse-maps a wire name written by the given backend to its
// declared field.
func (s *Schema) FieldByWire(backend, wire string) (Field, bool) {
	m, ok := s.byWire[backend]
	if !ok {
		m = s.byWire[""]
	}
	i, ok := m[wire]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// Tags returns the discriminator followed by the family tags.
func (s *Schema) Tags() []string {
	return append([]string{s.Discriminator}, s.Families...)
}

// Walk calls visit for each field in table order until visit returns false.
func (s *Schema) Walk(visit func(Field) bool) {
	for _, f := range s.Fields {
		if !visit(f) {
			return
		}
	}
}

func (s *Schema) index() error {
	s.byName = make(map[string]int, len(s.Fields))
	backends := map[string]bool{"": true}
	for i, f := range s.Fields {
		key := strings.ToLower(f.Name)
		if _, dup := s.byName[key]; dup {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		if f.access == nil {
			return fmt.Errorf("field %q has no accessor", f.Name)
		}
		s.byName[key] = i
		for b := range f.wireNames {
			backends[b] = true
		}
	}
	s.byWire = make(map[string]map[string]int, len(backends))
	for b := range backends {
		m := make(map[string]int, len(s.Fields))
		for i, f := range s.Fields {
			if f.Is(FlagIgnore) {
				continue
			}
			w := f.WireName(b)
			if _, dup := m[w]; dup {
				return fmt.Errorf("duplicate wire name %q", w)
			}
			m[w] = i
		}
		s.byWire[b] = m
	}
	return nil
}

// The system fields come first in every field table. Events never address them
// by name; the replay engine derives them from event headers.
var systemFields = []Field{
	StringField("PartitionKey", func(e Entity) *string { return &e.Core().partitionKey }).WithWireName("pk").asSystem(),
	StringField("Id", func(e Entity) *string { return &e.Core().id }).WithWireName("id").asSystem(),
	StringField("ViewVersion", func(e Entity) *string { return &e.Core().viewVersion }).asSystem(),
	TimeField("CreatedAt", func(e Entity) *time.Time { return &e.Core().createdAt }).asSystem(),
	StringField("CreatedBy", func(e Entity) *string { return &e.Core().createdBy }).asSystem(),
	StringField("EventId", func(e Entity) *string { return &e.Core().eventID }).asSystem(),
	BoolField("Deleted", func(e Entity) *bool { return &e.Core().deleted }).asSystem(),
}

// A Registry maps discriminators to schemas. It is passed explicitly to the
// codecs and to the replay engine.
//
// Registries are usually populated once at start-up. Lookups are safe for
// concurrent use, including concurrently with Register.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds s to the registry. It fails if the discriminator is already
// registered or if the field table is inconsistent.
func (r *Registry) Register(s Schema) error {
	if s.Discriminator == "" {
		return fmt.Errorf("register: empty discriminator")
	}
	if s.New == nil {
		return fmt.Errorf("register %q: nil constructor", s.Discriminator)
	}
	if got := s.New().Discriminator(); got != s.Discriminator {
		return fmt.Errorf("register %q: constructor returns %q", s.Discriminator, got)
	}
	var families []string
	for _, f := range s.Families {
		if f != s.Discriminator && !slices.Contains(families, f) {
			families = append(families, f)
		}
	}
	s.Families = families
	s.Fields = Fields(systemFields, s.Fields)
	if err := s.index(); err != nil {
		return fmt.Errorf("register %q: %w", s.Discriminator, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.schemas[s.Discriminator]; dup {
		return fmt.Errorf("register %q: discriminator already registered", s.Discriminator)
	}
	r.schemas[s.Discriminator] = &s
	return nil
}

// MustRegister is like Register but panics on error. Use it from
// initialisation code, where a failure is a programming error.
func (r *Registry) MustRegister(schemas ...Schema) {
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			panic("vectis: " + err.Error())
		}
	}
}

// Lookup returns the schema registered under discriminator, or fails with
// ErrUnknownDiscriminator.
func (r *Registry) Lookup(discriminator string) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[discriminator]
	if !ok {
		return nil, Errorf(KindUnknownDiscriminator, "%q is not registered", discriminator)
	}
	return s, nil
}

// SchemaOf returns the schema of e's concrete type.
func (r *Registry) SchemaOf(e Entity) (*Schema, error) {
	return r.Lookup(e.Discriminator())
}

// Discriminators lists the registered discriminators in lexical order.
func (r *Registry) Discriminators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.schemas))
	for d := range r.schemas {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}
