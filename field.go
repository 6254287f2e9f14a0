package vectis

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldKind tells codecs how a field's value is represented on the wire.
type FieldKind int

const (
	StringKind FieldKind = iota + 1
	IntKind
	BoolKind
	DecimalKind
	TimeKind
	EnumKind
	EntityKind     // A single nested entity.
	EntityListKind // An ordered list of nested entities.
)

var kindNames = map[FieldKind]string{
	StringKind:     "string",
	IntKind:        "int",
	BoolKind:       "bool",
	DecimalKind:    "decimal",
	TimeKind:       "time",
	EnumKind:       "enum",
	EntityKind:     "entity",
	EntityListKind: "entity list",
}

func (k FieldKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "FieldKind(" + strconv.Itoa(int(k)) + ")"
}

// Nested reports whether values of kind k are entities rather than scalars.
func (k FieldKind) Nested() bool {
	return k == EntityKind || k == EntityListKind
}

// Quoted reports whether the canonical string of a scalar of kind k is written
// as a JSON string (as opposed to a bare literal such as a number or boolean).
func (k FieldKind) Quoted() bool {
	switch k {
	case IntKind, BoolKind, DecimalKind:
		return false
	}
	return true
}

// FieldFlag modifies how the registry, codecs and the replay engine treat a
// field.
type FieldFlag uint8

const (
	// FlagSystem marks the identity and provenance fields every entity shares.
	// Events never set them by name; the replay engine derives them from event
	// headers.
	FlagSystem FieldFlag = 1 << iota
	// FlagReadOnly marks a field that only a create event may set.
	FlagReadOnly
	// FlagIgnore excludes a field from serialization. It is still copied.
	FlagIgnore
)

// A Field describes one declared property of an entity type along with typed
// accessors for it. Fields are built with the constructors of this package
// (StringField, DecimalField, EntityListField, ...) and never use reflection.
type Field struct {
	Name  string
	Kind  FieldKind
	Flags FieldFlag

	wire      string
	wireNames map[string]string // backend -> wire name
	access    accessor
}

// Is reports whether all flags in fl are set on f.
func (f Field) Is(fl FieldFlag) bool { return f.Flags&fl == fl }

// AsReadOnly returns a copy of f flagged with FlagReadOnly.
func (f Field) AsReadOnly() Field { f.Flags |= FlagReadOnly; return f }

// AsIgnored returns a copy of f flagged with FlagIgnore.
func (f Field) AsIgnored() Field { f.Flags |= FlagIgnore; return f }

func (f Field) asSystem() Field { f.Flags |= FlagSystem | FlagReadOnly; return f }

// WithWireName returns a copy of f written as w by every backend that does not
// remap it otherwise.
func (f Field) WithWireName(w string) Field {
	f.wire = w
	return f
}

// WithBackendWireName returns a copy of f written as w by the named codec
// backend only.
func (f Field) WithBackendWireName(backend, w string) Field {
	m := make(map[string]string, len(f.wireNames)+1)
	for k, v := range f.wireNames {
		m[k] = v
	}
	m[backend] = w
	f.wireNames = m
	return f
}

// WireName returns the name under which the given backend writes f.
func (f Field) WireName(backend string) string {
	if w, ok := f.wireNames[backend]; ok {
		return w
	}
	if f.wire != "" {
		return f.wire
	}
	return f.Name
}

// Format returns the canonical string of f's value on e. It reports false when
// the value is absent (an empty string, an invalid nullable value, ...).
// Nested kinds cannot be formatted.
func (f Field) Format(e Entity) (string, bool, error) { return f.access.format(e) }

// Parse assigns the value whose canonical string is s to f on e. It has the
// semantics of SetField: it fails with ErrFrozen on frozen entities and
// notifies observers when the value changes. A string that does not parse fails
// with ErrMalformedWireData and leaves e untouched.
func (f Field) Parse(e Entity, s string) error { return f.access.parse(e, s) }

// Reset assigns the zero value of f on e.
func (f Field) Reset(e Entity) error { return f.access.reset(e) }

// Children returns the entities nested under f on e. It is empty when absent.
func (f Field) Children(e Entity) ([]Entity, error) { return f.access.children(e) }

// SetChildren replaces the entities nested under f on e. A single-entity field
// accepts at most one child.
func (f Field) SetChildren(e Entity, children []Entity) error {
	return f.access.setChildren(e, children)
}

type accessor interface {
	format(e Entity) (string, bool, error)
	parse(e Entity, s string) error
	reset(e Entity) error
	copy(dst, src Entity, clone func(Entity) (Entity, error)) error
	children(e Entity) ([]Entity, error)
	setChildren(e Entity, children []Entity) error
}

func target[E Entity](e Entity, field string) (E, error) {
	x, ok := e.(E)
	if !ok {
		var zero E
		return zero, Errorf(KindTypeMismatch, "field %q is not declared by %q", field, e.Discriminator())
	}
	return x, nil
}

// scalar implements accessor for every non-nested kind.
type scalar[E Entity, T any] struct {
	name   string
	kind   FieldKind
	ref    func(E) *T
	equal  func(a, b T) bool
	encode func(T) (string, bool)
	decode func(string) (T, error)
}

func newScalar[E Entity, T any](s scalar[E, T]) Field {
	return Field{Name: s.name, Kind: s.kind, access: s}
}

func (s scalar[E, T]) format(e Entity) (string, bool, error) {
	x, err := target[E](e, s.name)
	if err != nil {
		return "", false, err
	}
	str, ok := s.encode(*s.ref(x))
	return str, ok, nil
}

func (s scalar[E, T]) parse(e Entity, str string) error {
	x, err := target[E](e, s.name)
	if err != nil {
		return err
	}
	v, err := s.decode(str)
	if err != nil {
		return Wrap(KindMalformedWireData, fmt.Sprintf("field %q: parse %s %q", s.name, s.kind, str), err)
	}
	_, err = SetFieldFunc(x.Core(), s.ref(x), v, s.name, s.equal)
	return err
}

func (s scalar[E, T]) reset(e Entity) error {
	x, err := target[E](e, s.name)
	if err != nil {
		return err
	}
	var zero T
	_, err = SetFieldFunc(x.Core(), s.ref(x), zero, s.name, s.equal)
	return err
}

func (s scalar[E, T]) copy(dst, src Entity, _ func(Entity) (Entity, error)) error {
	d, err := target[E](dst, s.name)
	if err != nil {
		return err
	}
	x, err := target[E](src, s.name)
	if err != nil {
		return err
	}
	*s.ref(d) = *s.ref(x)
	return nil
}

func (s scalar[E, T]) children(Entity) ([]Entity, error) {
	return nil, Errorf(KindTypeMismatch, "field %q holds a %s, not entities", s.name, s.kind)
}

func (s scalar[E, T]) setChildren(Entity, []Entity) error {
	return Errorf(KindTypeMismatch, "field %q holds a %s, not entities", s.name, s.kind)
}

func eq[T comparable](a, b T) bool { return a == b }

// StringField declares a string property. The empty string is absent.
func StringField[E Entity](name string, ref func(E) *string) Field {
	return newScalar(scalar[E, string]{
		name:   name,
		kind:   StringKind,
		ref:    ref,
		equal:  eq[string],
		encode: func(v string) (string, bool) { return v, v != "" },
		decode: func(s string) (string, error) { return s, nil },
	})
}

// IntField declares an integer property.
func IntField[E Entity](name string, ref func(E) *int) Field {
	return newScalar(scalar[E, int]{
		name:   name,
		kind:   IntKind,
		ref:    ref,
		equal:  eq[int],
		encode: func(v int) (string, bool) { return strconv.Itoa(v), true },
		decode: func(s string) (int, error) { return strconv.Atoi(strings.TrimSpace(s)) },
	})
}

// BoolField declares a boolean property.
func BoolField[E Entity](name string, ref func(E) *bool) Field {
	return newScalar(scalar[E, bool]{
		name:   name,
		kind:   BoolKind,
		ref:    ref,
		equal:  eq[bool],
		encode: func(v bool) (string, bool) { return strconv.FormatBool(v), true },
		decode: func(s string) (bool, error) { return strconv.ParseBool(strings.TrimSpace(s)) },
	})
}

// DecimalField declares a fixed-point property (amounts, rates, ratios).
func DecimalField[E Entity](name string, ref func(E) *decimal.Decimal) Field {
	return newScalar(scalar[E, decimal.Decimal]{
		name:   name,
		kind:   DecimalKind,
		ref:    ref,
		equal:  func(a, b decimal.Decimal) bool { return a.Equal(b) },
		encode: func(v decimal.Decimal) (string, bool) { return v.String(), true },
		decode: func(s string) (decimal.Decimal, error) { return decimal.NewFromString(strings.TrimSpace(s)) },
	})
}

// NullDecimalField declares an optional fixed-point property. It is absent
// unless Valid.
func NullDecimalField[E Entity](name string, ref func(E) *decimal.NullDecimal) Field {
	return newScalar(scalar[E, decimal.NullDecimal]{
		name: name,
		kind: DecimalKind,
		ref:  ref,
		equal: func(a, b decimal.NullDecimal) bool {
			return a.Valid == b.Valid && (!a.Valid || a.Decimal.Equal(b.Decimal))
		},
		encode: func(v decimal.NullDecimal) (string, bool) {
			if !v.Valid {
				return "", false
			}
			return v.Decimal.String(), true
		},
		decode: func(s string) (decimal.NullDecimal, error) {
			if strings.TrimSpace(s) == "" {
				return decimal.NullDecimal{}, nil
			}
			d, err := decimal.NewFromString(strings.TrimSpace(s))
			return decimal.NullDecimal{Decimal: d, Valid: err == nil}, err
		},
	})
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	return t.UTC(), err
}

// TimeField declares an instant. Values are normalised to UTC.
func TimeField[E Entity](name string, ref func(E) *time.Time) Field {
	return newScalar(scalar[E, time.Time]{
		name:   name,
		kind:   TimeKind,
		ref:    ref,
		equal:  func(a, b time.Time) bool { return a.Equal(b) },
		encode: func(v time.Time) (string, bool) { return formatTime(v), true },
		decode: parseTime,
	})
}

// NullTimeField declares an optional instant. It is absent unless Valid.
func NullTimeField[E Entity](name string, ref func(E) *sql.NullTime) Field {
	return newScalar(scalar[E, sql.NullTime]{
		name: name,
		kind: TimeKind,
		ref:  ref,
		equal: func(a, b sql.NullTime) bool {
			return a.Valid == b.Valid && (!a.Valid || a.Time.Equal(b.Time))
		},
		encode: func(v sql.NullTime) (string, bool) {
			if !v.Valid {
				return "", false
			}
			return formatTime(v.Time), true
		},
		decode: func(s string) (sql.NullTime, error) {
			if strings.TrimSpace(s) == "" {
				return sql.NullTime{}, nil
			}
			t, err := parseTime(s)
			return sql.NullTime{Time: t, Valid: err == nil}, err
		},
	})
}

// EnumField declares an enumerated property whose canonical string is the
// value's name in names. Parsing matches names case-insensitively and also
// accepts the underlying integer.
func EnumField[E Entity, T ~int](name string, ref func(E) *T, names map[T]string) Field {
	byName := make(map[string]T, len(names))
	for v, n := range names {
		byName[strings.ToLower(n)] = v
	}
	return newScalar(scalar[E, T]{
		name:  name,
		kind:  EnumKind,
		ref:   ref,
		equal: eq[T],
		encode: func(v T) (string, bool) {
			if n, ok := names[v]; ok {
				return n, true
			}
			return strconv.Itoa(int(v)), true
		},
		decode: func(s string) (T, error) {
			s = strings.TrimSpace(s)
			if v, ok := byName[strings.ToLower(s)]; ok {
				return v, nil
			}
			i, err := strconv.Atoi(s)
			if err != nil {
				return 0, fmt.Errorf("no enumerator named %q", s)
			}
			return T(i), nil
		},
	})
}

// nested implements accessor for entity and entity-list kinds.
type nested[E Entity] struct {
	name string
	kind FieldKind
	get  func(E) []Entity
	set  func(E, []Entity) error
}

func (n nested[E]) format(Entity) (string, bool, error) {
	return "", false, Errorf(KindTypeMismatch, "field %q holds entities, not a scalar", n.name)
}

func (n nested[E]) parse(Entity, string) error {
	return Errorf(KindUnknownProperty, "field %q holds entities and cannot be set from a string", n.name)
}

func (n nested[E]) reset(e Entity) error { return n.setChildren(e, nil) }

func (n nested[E]) children(e Entity) ([]Entity, error) {
	x, err := target[E](e, n.name)
	if err != nil {
		return nil, err
	}
	return n.get(x), nil
}

func (n nested[E]) setChildren(e Entity, children []Entity) error {
	x, err := target[E](e, n.name)
	if err != nil {
		return err
	}
	if n.kind == EntityKind && len(children) > 1 {
		return Errorf(KindMalformedWireData, "field %q holds a single entity, got %d", n.name, len(children))
	}
	b := x.Core()
	if err := b.checkMutable(); err != nil {
		return err
	}
	if len(children) == 0 && len(n.get(x)) == 0 {
		return nil
	}
	if err := n.set(x, children); err != nil {
		return err
	}
	b.changed(n.name)
	return nil
}

func (n nested[E]) copy(dst, src Entity, clone func(Entity) (Entity, error)) error {
	children, err := n.children(src)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}
	clones := make([]Entity, len(children))
	for i, c := range children {
		if clones[i], err = clone(c); err != nil {
			return fmt.Errorf("copy %s[%d]: %w", n.name, i, err)
		}
	}
	return n.setChildren(dst, clones)
}

// EntityFunc declares a property holding a single nested entity through a pair
// of accessors. A nil entity is absent.
func EntityFunc[E Entity](name string, get func(E) Entity, set func(E, Entity) error) Field {
	return Field{Name: name, Kind: EntityKind, access: nested[E]{
		name: name,
		kind: EntityKind,
		get: func(x E) []Entity {
			if c := get(x); c != nil {
				return []Entity{c}
			}
			return nil
		},
		set: func(x E, children []Entity) error {
			if len(children) == 0 {
				return set(x, nil)
			}
			return set(x, children[0])
		},
	}}
}

// EntityListFunc declares a property holding an ordered list of nested entities
// through a pair of accessors. An empty list is absent.
func EntityListFunc[E Entity](name string, get func(E) []Entity, set func(E, []Entity) error) Field {
	return Field{Name: name, Kind: EntityListKind, access: nested[E]{
		name: name,
		kind: EntityListKind,
		get:  get,
		set:  set,
	}}
}

func isNil[C Entity](c C) bool {
	var zero C
	return any(c) == any(zero)
}

func narrow[C Entity](field string, e Entity) (C, error) {
	c, ok := e.(C)
	if !ok {
		var zero C
		return zero, Errorf(KindTypeMismatch, "field %q cannot hold %q", field, e.Discriminator())
	}
	return c, nil
}

// EntityField declares a property holding a single nested entity of type C.
func EntityField[E Entity, C Entity](name string, ref func(E) *C) Field {
	return EntityFunc(name,
		func(x E) Entity {
			if c := *ref(x); !isNil(c) {
				return c
			}
			return nil
		},
		func(x E, e Entity) error {
			if e == nil {
				var zero C
				*ref(x) = zero
				return nil
			}
			c, err := narrow[C](name, e)
			if err != nil {
				return err
			}
			*ref(x) = c
			return nil
		},
	)
}

// EntityListField declares a property holding an ordered list of nested
// entities of type C.
func EntityListField[E Entity, C Entity](name string, ref func(E) *[]C) Field {
	return EntityListFunc(name,
		func(x E) []Entity {
			list := *ref(x)
			if len(list) == 0 {
				return nil
			}
			out := make([]Entity, len(list))
			for i, c := range list {
				out[i] = c
			}
			return out
		},
		func(x E, children []Entity) error {
			if len(children) == 0 {
				*ref(x) = nil
				return nil
			}
			list := make([]C, len(children))
			for i, e := range children {
				c, err := narrow[C](name, e)
				if err != nil {
					return err
				}
				list[i] = c
			}
			*ref(x) = list
			return nil
		},
	)
}
