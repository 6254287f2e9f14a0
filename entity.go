package vectis

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Entity is the contract of every versioned business object.
//
// Implementations are pointers to structs that embed Base. Discriminator must
// return the type's registered tag without dereferencing its receiver, so that
// it is safe to call on a nil pointer.
type Entity interface {
	Discriminator() string
	Core() *Base
}

// A Change describes a single observable mutation of an entity.
type Change struct {
	Field       string // Declared name of the modified field.
	ViewVersion string // View version after the change.
}

// Base holds the state shared by every entity: its identity, provenance and the
// freeze latch. Embed it (by value) in every entity type.
//
// Base must not be copied after its first use; entities are copied through
// Registry.DeepCopy.
type Base struct {
	partitionKey string
	id           string
	viewVersion  string
	createdAt    time.Time
	createdBy    string
	eventID      string
	deleted      bool

	frozen    uint32 // Accessed atomically; only ever goes from 0 to 1.
	bulk      int
	observers []observer
	observed  int
}

type observer struct {
	id int
	fn func(Change)
}

// Core returns b itself. It is promoted to every type embedding Base.
func (b *Base) Core() *Base { return b }

func (b *Base) PartitionKey() string { return b.partitionKey }
func (b *Base) ID() string           { return b.id }

// ViewVersion is an opaque token that changes on every observable mutation of
// the entity. Consumers use it to invalidate caches.
func (b *Base) ViewVersion() string  { return b.viewVersion }
func (b *Base) CreatedAt() time.Time { return b.createdAt }
func (b *Base) CreatedBy() string    { return b.createdBy }

// EventID is the id of the event that produced the entity's current state.
func (b *Base) EventID() string { return b.eventID }

// Deleted reports whether the entity is a tombstone.
func (b *Base) Deleted() bool { return b.deleted }

// Handle returns the entity's partition key and id.
func (b *Base) Handle() Handle {
	return Handle{PartitionKey: b.partitionKey, ID: b.id}
}

// Frozen reports whether Freeze was called.
//
// Frozen is safe for concurrent use.
func (b *Base) Frozen() bool {
	return atomic.LoadUint32(&b.frozen) == 1
}

// Freeze sets the one-way immutability latch. Afterwards, every mutation fails
// with ErrFrozen. Calling Freeze more than once has no effect.
//
// Freeze is safe for concurrent use.
func (b *Base) Freeze() {
	atomic.StoreUint32(&b.frozen, 1)
}

func (b *Base) SetID(id string) error {
	_, err := SetField(b, &b.id, id, "Id")
	return err
}

func (b *Base) SetPartitionKey(pk string) error {
	_, err := SetField(b, &b.partitionKey, pk, "PartitionKey")
	return err
}

func (b *Base) SetCreatedBy(user string) error {
	_, err := SetField(b, &b.createdBy, user, "CreatedBy")
	return err
}

// Observe registers fn to be called after every observable change of the
// entity. It returns a function that cancels the registration.
//
// Observers are not copied by Registry.DeepCopy and are never called while the
// entity is in bulk-load mode.
func (b *Base) Observe(fn func(Change)) (cancel func()) {
	b.observed++
	id := b.observed
	b.observers = append(b.observers, observer{id: id, fn: fn})
	return func() {
		for i, o := range b.observers {
			if o.id == id {
				b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
				return
			}
		}
	}
}

// BeginBulkLoad suppresses change notifications (and view version
// regeneration) until the returned function is called. Calls nest.
func (b *Base) BeginBulkLoad() (end func()) {
	b.bulk++
	var done bool
	return func() {
		if !done {
			done = true
			b.bulk--
		}
	}
}

func (b *Base) checkMutable() error {
	if b.Frozen() {
		return Errorf(KindFrozen, "entity %q is frozen", b.id)
	}
	return nil
}

// changed records an observable change of the named field.
func (b *Base) changed(name string) {
	if b.bulk > 0 {
		return
	}
	b.viewVersion = uuid.NewString()
	c := Change{Field: name, ViewVersion: b.viewVersion}
	for _, o := range b.observers {
		o.fn(c)
	}
}

// inherit returns a copy of b's state suitable for a new entity: identity and
// provenance are kept, the latch, bulk-load depth and observers are not.
func (b *Base) inherit() Base {
	return Base{
		partitionKey: b.partitionKey,
		id:           b.id,
		viewVersion:  b.viewVersion,
		createdAt:    b.createdAt,
		createdBy:    b.createdBy,
		eventID:      b.eventID,
		deleted:      b.deleted,
	}
}

// SetField replaces *field with v on behalf of the entity owning b.
//
// It fails with ErrFrozen if the entity is frozen. Otherwise, when v differs
// from the current value, SetField assigns it and, unless the entity is in
// bulk-load mode, regenerates the view version and notifies observers with the
// given field name. It reports whether the value changed.
func SetField[T comparable](b *Base, field *T, v T, name string) (bool, error) {
	return SetFieldFunc(b, field, v, name, func(a, b T) bool { return a == b })
}

// SetFieldFunc is like SetField for values that are not comparable with ==.
func SetFieldFunc[T any](b *Base, field *T, v T, name string, equal func(a, b T) bool) (bool, error) {
	if err := b.checkMutable(); err != nil {
		return false, err
	}
	if equal(*field, v) {
		return false, nil
	}
	*field = v
	b.changed(name)
	return true, nil
}
