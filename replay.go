package vectis

import (
	"fmt"
	"strings"
)

// A Replayer reconstructs entity state from the mutation log. Apply is a pure
// function of its inputs: it performs no I/O, never mutates its arguments, and
// identical inputs always produce identical (frozen) outputs.
//
// Each object follows a three-state lifecycle: absent, live and deleted.
//
//	absent  --create-->   live
//	live    --update-->   live
//	live    --delete-->   deleted  (no-op on deleted)
//	deleted --undelete--> live     (no-op on live)
//
// Any other combination fails with ErrInvalidTransition.
type Replayer struct {
	reg *Registry
}

// NewReplayer returns a Replayer resolving discriminators and fields with reg.
func NewReplayer(reg *Registry) *Replayer {
	return &Replayer{reg: reg}
}

// Apply returns the state following current (nil when the object is absent)
// after ev. The returned entity is frozen and its view version is derived
// from the object and event ids.
func (r *Replayer) Apply(current Entity, ev Event) (Entity, error) {
	h := ev.Header()
	if h.ID == "" || h.ObjectID == "" {
		return nil, Errorf(KindMalformedWireData, "%s event without an event id or object id", ev.Kind())
	}
	if current != nil && current.Core().ID() != h.ObjectID {
		return nil, Errorf(KindInvalidTransition, "%s event for %q applied to %q", ev.Kind(), h.ObjectID, current.Core().ID())
	}
	switch ev := ev.(type) {
	case CreateObjectEvent:
		return r.create(current, ev)
	case UpdatePropertyEvent:
		return r.update(current, ev)
	case DeleteObjectEvent:
		return r.setDeleted(current, h, true)
	case UndeleteObjectEvent:
		return r.setDeleted(current, h, false)
	default:
		return nil, Errorf(KindMalformedWireData, "unsupported event type %T", ev)
	}
}

func (r *Replayer) create(current Entity, ev CreateObjectEvent) (Entity, error) {
	if current != nil {
		return nil, Errorf(KindInvalidTransition, "object %q already exists", ev.ObjectID)
	}
	s, err := r.reg.Lookup(ev.Discriminator)
	if err != nil {
		return nil, err
	}

	// Validate every supplied name before allocating, then assign in table
	// order so that base-level fields are set before derived ones.
	values := make(map[int]string, len(ev.Properties))
	for _, p := range ev.Properties {
		i, ok := s.byName[strings.ToLower(p.Name)]
		if !ok {
			return nil, Errorf(KindUnknownProperty, "%q has no property %q", s.Discriminator, p.Name)
		}
		f := s.Fields[i]
		if f.Is(FlagSystem) || f.Kind.Nested() {
			return nil, Errorf(KindUnknownProperty, "property %q of %q cannot be set by a create event", f.Name, s.Discriminator)
		}
		if _, dup := values[i]; dup {
			return nil, Errorf(KindMalformedWireData, "property %q supplied more than once", f.Name)
		}
		values[i] = p.Value
	}

	e := s.New()
	b := e.Core()
	end := b.BeginBulkLoad()
	defer end()
	for i, f := range s.Fields {
		v, ok := values[i]
		if !ok {
			continue
		}
		if err := f.Parse(e, v); err != nil {
			return nil, fmt.Errorf("create %q: %w", ev.ObjectID, err)
		}
	}
	b.id = ev.ObjectID
	b.partitionKey = ev.PartitionKey
	if b.partitionKey == "" {
		b.partitionKey = ev.ObjectID
	}
	b.createdAt = ev.Timestamp.UTC()
	b.createdBy = ev.UserID
	stamp(b, ev.EventHeader)
	end()
	Freeze(e)
	return e, nil
}

func (r *Replayer) update(current Entity, ev UpdatePropertyEvent) (Entity, error) {
	if current == nil {
		return nil, Errorf(KindInvalidTransition, "object %q does not exist", ev.ObjectID)
	}
	if current.Core().Deleted() {
		return nil, Errorf(KindInvalidTransition, "object %q is deleted", ev.ObjectID)
	}
	s, err := r.reg.SchemaOf(current)
	if err != nil {
		return nil, err
	}
	f, ok := s.Field(ev.PropertyName)
	if !ok {
		return nil, Errorf(KindUnknownProperty, "%q has no property %q", s.Discriminator, ev.PropertyName)
	}
	if f.Is(FlagSystem) || f.Is(FlagReadOnly) || f.Kind.Nested() {
		return nil, Errorf(KindUnknownProperty, "property %q of %q is read-only", f.Name, s.Discriminator)
	}

	next, err := r.successor(current)
	if err != nil {
		return nil, err
	}
	b := next.Core()
	end := b.BeginBulkLoad()
	defer end()
	if err := f.Parse(next, ev.NextValue); err != nil {
		return nil, fmt.Errorf("update %q: %w", ev.ObjectID, err)
	}
	stamp(b, ev.EventHeader)
	end()
	Freeze(next)
	return next, nil
}

func (r *Replayer) setDeleted(current Entity, h EventHeader, deleted bool) (Entity, error) {
	if current == nil {
		return nil, Errorf(KindInvalidTransition, "object %q does not exist", h.ObjectID)
	}
	next, err := r.successor(current)
	if err != nil {
		return nil, err
	}
	b := next.Core()
	b.deleted = deleted
	stamp(b, h)
	Freeze(next)
	return next, nil
}

// successor returns an unfrozen copy of e to apply an event to. Datasets share
// their items with the copy.
func (r *Replayer) successor(e Entity) (Entity, error) {
	if d, ok := e.(*Dataset); ok {
		return d.shallow(), nil
	}
	return r.reg.clone(e, true)
}

func stamp(b *Base, h EventHeader) {
	b.eventID = h.ID
	b.viewVersion = replayVersion(b.id, h.ID)
}

// ApplyDataset applies ev to the dataset member it addresses and returns the
// resulting frozen dataset. The event addresses the owner, the dataset itself
// or one of its items; a create event for an unknown id adds a new item.
//
// Given a nil dataset, ev must be a create event. If it creates a Dataset, that
// dataset is returned; otherwise the created entity becomes the owner of a new
// dataset sharing its identity.
func (r *Replayer) ApplyDataset(d *Dataset, ev Event) (*Dataset, error) {
	h := ev.Header()
	if d == nil {
		e, err := r.Apply(nil, ev)
		if err != nil {
			return nil, err
		}
		if ds, ok := e.(*Dataset); ok {
			return ds, nil
		}
		ds := &Dataset{Base: e.Core().inherit(), owner: e, reg: r.reg}
		ds.Freeze()
		return ds, nil
	}

	var next *Dataset
	switch owner := d.Owner(); {
	case owner != nil && owner.Core().ID() == h.ObjectID:
		e, err := r.Apply(owner, ev)
		if err != nil {
			return nil, err
		}
		next = d.WithOwner(e)
	case d.ID() == h.ObjectID:
		e, err := r.Apply(d, ev)
		if err != nil {
			return nil, err
		}
		return e.(*Dataset), nil
	default:
		var current Entity
		if e, ok := d.Item(h.ObjectID); ok {
			current = e
		}
		e, err := r.Apply(current, ev)
		if err != nil {
			return nil, err
		}
		next = d.Upsert(e)
	}
	stamp(&next.Base, h)
	next.Freeze()
	return next, nil
}

// ReplayAll folds events over d (which may be nil) with ApplyDataset. It stops
// at the first failing event.
func (r *Replayer) ReplayAll(d *Dataset, events ...Event) (*Dataset, error) {
	for i, ev := range events {
		next, err := r.ApplyDataset(d, ev)
		if err != nil {
			return d, fmt.Errorf("event %d (%s %s): %w", i, ev.Kind(), ev.Header().ID, err)
		}
		d = next
	}
	return d, nil
}
