package vectis

// A Visitor defines a Visit method invoked for each entity encountered by
// Walk. If the result visitor w is not nil, Walk visits each nested entity of
// the node with the visitor w, followed by a call of w.Visit(nil).
type Visitor interface {
	Visit(node Entity) (w Visitor)
}

// Walk traverses an entity tree in depth-first order: It starts by calling
// v.Visit(root). If the visitor w returned by v.Visit(root) is not nil, Walk is
// invoked recursively with visitor w for each entity held by the nested fields
// of root, in table order, followed by a call of w.Visit(nil).
//
// Entities whose discriminator is not registered in r are visited but not
// descended into.
func (r *Registry) Walk(v Visitor, root Entity) {
	if v = v.Visit(root); v == nil {
		return
	}
	if s, err := r.SchemaOf(root); err == nil {
		for _, f := range s.Fields {
			if !f.Kind.Nested() || f.Is(FlagIgnore) {
				continue
			}
			children, err := f.Children(root)
			if err != nil {
				continue
			}
			for _, c := range children {
				r.Walk(v, c)
			}
		}
	}
	v.Visit(nil)
}

type inspector func(Entity) bool

func (f inspector) Visit(node Entity) Visitor {
	if f(node) {
		return f
	}
	return nil
}

// Inspect traverses an entity tree in depth-first order: It starts by calling
// f(root). If f returns true, Inspect invokes f recursively for each nested
// entity of root, followed by a call of f(nil).
func (r *Registry) Inspect(root Entity, f func(Entity) bool) {
	r.Walk(inspector(f), root)
}

// A Description is the registry's view of an entity: its discriminator, the
// canonical text of every present scalar field and the descriptions of its
// nested entities, all in table order. Two entities with equal descriptions
// carry the same declared state.
type Description struct {
	Discriminator string
	Properties    PropertyList
	Nested        map[string][]Description `json:",omitempty"`
}

// Describe builds the Description of e. Ignored fields are left out.
func (r *Registry) Describe(e Entity) (Description, error) {
	s, err := r.SchemaOf(e)
	if err != nil {
		return Description{}, err
	}
	desc := Description{Discriminator: s.Discriminator}
	for _, f := range s.Fields {
		if f.Is(FlagIgnore) {
			continue
		}
		if !f.Kind.Nested() {
			v, ok, err := f.Format(e)
			if err != nil {
				return Description{}, err
			}
			if ok {
				desc.Properties = append(desc.Properties, Property{Name: f.Name, Value: v})
			}
			continue
		}
		children, err := f.Children(e)
		if err != nil {
			return Description{}, err
		}
		if len(children) == 0 {
			continue
		}
		if desc.Nested == nil {
			desc.Nested = make(map[string][]Description)
		}
		for _, c := range children {
			cd, err := r.Describe(c)
			if err != nil {
				return Description{}, err
			}
			desc.Nested[f.Name] = append(desc.Nested[f.Name], cd)
		}
	}
	return desc, nil
}
