package vectis

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"time"
)

// Register the event variants with gob, so that an Event interface value
// survives a round trip through EncodeEvent and DecodeEvent.
func init() {
	gob.Register(CreateObjectEvent{})
	gob.Register(UpdatePropertyEvent{})
	gob.Register(DeleteObjectEvent{})
	gob.Register(UndeleteObjectEvent{})
}

// EventKind names a concrete event variant.
type EventKind string

const (
	CreateObject   EventKind = "CreateObject"
	UpdateProperty EventKind = "UpdateProperty"
	DeleteObject   EventKind = "DeleteObject"
	UndeleteObject EventKind = "UndeleteObject"
)

// EventHeader holds the fields common to every log entry.
type EventHeader struct {
	PartitionKey string // Partition of the target object.
	ID           string
	UserID       string
	Origin       string // Address of the host that recorded the event.
	Timestamp    time.Time
	ObjectID     string
	// PreviousEventID is a causal hint naming the event the author observed
	// last on the object. It is recorded but never validated.
	PreviousEventID string
}

// NewEventHeader returns a header for an event on the given object, stamped
// with a fresh id, the current UTC time and the local host name.
func NewEventHeader(userID, partitionKey, objectID string) EventHeader {
	origin, _ := os.Hostname()
	return EventHeader{
		PartitionKey: partitionKey,
		ID:           NewID(),
		UserID:       userID,
		Origin:       origin,
		Timestamp:    time.Now().UTC(),
		ObjectID:     objectID,
	}
}

// Follows returns a copy of h whose PreviousEventID names the event that
// produced e's current state.
func (h EventHeader) Follows(e Entity) EventHeader {
	h.PreviousEventID = e.Core().EventID()
	return h
}

// An Event is an entry of the append-only mutation log.
type Event interface {
	Header() EventHeader
	Kind() EventKind
}

// CreateObjectEvent brings a new object to life. Properties holds the
// canonical strings of its declared, non-system fields.
type CreateObjectEvent struct {
	EventHeader
	Discriminator string
	Properties    PropertyList
}

// UpdatePropertyEvent assigns a new value to a single field of a live object.
// Values are canonical strings; PreviousValue is informational.
type UpdatePropertyEvent struct {
	EventHeader
	PropertyName  string
	PreviousValue string
	NextValue     string
}

// DeleteObjectEvent turns an object into a tombstone.
type DeleteObjectEvent struct {
	EventHeader
}

// UndeleteObjectEvent revives a tombstone.
type UndeleteObjectEvent struct {
	EventHeader
}

func (e CreateObjectEvent) Header() EventHeader   { return e.EventHeader }
func (e UpdatePropertyEvent) Header() EventHeader { return e.EventHeader }
func (e DeleteObjectEvent) Header() EventHeader   { return e.EventHeader }
func (e UndeleteObjectEvent) Header() EventHeader { return e.EventHeader }

func (CreateObjectEvent) Kind() EventKind   { return CreateObject }
func (UpdatePropertyEvent) Kind() EventKind { return UpdateProperty }
func (DeleteObjectEvent) Kind() EventKind   { return DeleteObject }
func (UndeleteObjectEvent) Kind() EventKind { return UndeleteObject }

// envelope carries an Event interface value through gob.
type envelope struct {
	Event Event
}

// EncodeEvent serialises ev with gob.
func EncodeEvent(ev Event) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope{Event: ev}); err != nil {
		return nil, fmt.Errorf("encode gob: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeEvent reverses EncodeEvent.
func DecodeEvent(p []byte) (Event, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode gob: %w", err)
	}
	if env.Event == nil {
		return nil, Errorf(KindMalformedWireData, "empty event envelope")
	}
	return env.Event, nil
}

// CreateEventFor returns the create event that reproduces e's declared fields.
// Absent values are left out. e must have an id (see EnsureIdentity).
func CreateEventFor(reg *Registry, e Entity, userID string) (CreateObjectEvent, error) {
	s, err := reg.SchemaOf(e)
	if err != nil {
		return CreateObjectEvent{}, err
	}
	b := e.Core()
	if b.ID() == "" {
		return CreateObjectEvent{}, Errorf(KindMalformedWireData, "%q has no id", s.Discriminator)
	}
	var props PropertyList
	for _, f := range s.Fields {
		if f.Is(FlagSystem) || f.Kind.Nested() {
			continue
		}
		v, ok, err := f.Format(e)
		if err != nil {
			return CreateObjectEvent{}, fmt.Errorf("format %s: %w", f.Name, err)
		}
		if ok {
			props = append(props, Property{Name: f.Name, Value: v})
		}
	}
	return CreateObjectEvent{
		EventHeader:   NewEventHeader(userID, b.PartitionKey(), b.ID()),
		Discriminator: s.Discriminator,
		Properties:    props,
	}, nil
}

// UpdateEventFor returns the event that assigns next (a canonical string) to
// the named field of e.
func UpdateEventFor(reg *Registry, e Entity, name, next, userID string) (UpdatePropertyEvent, error) {
	s, err := reg.SchemaOf(e)
	if err != nil {
		return UpdatePropertyEvent{}, err
	}
	f, ok := s.Field(name)
	if !ok || f.Is(FlagSystem) || f.Is(FlagReadOnly) || f.Kind.Nested() {
		return UpdatePropertyEvent{}, Errorf(KindUnknownProperty, "%q has no updatable property %q", s.Discriminator, name)
	}
	prev, _, err := f.Format(e)
	if err != nil {
		return UpdatePropertyEvent{}, err
	}
	b := e.Core()
	return UpdatePropertyEvent{
		EventHeader:   NewEventHeader(userID, b.PartitionKey(), b.ID()).Follows(e),
		PropertyName:  f.Name,
		PreviousValue: prev,
		NextValue:     next,
	}, nil
}
