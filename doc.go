// Package vectis provides a versioned entity store; An entity is a typed record
// with a stable identity (partition key and id) and a view version that changes
// every time any of its declared fields changes.
//
// Entity types describe their fields once, in a Schema registered with a
// Registry. The schema is an ordered field table: the system fields every
// entity carries come first, followed by the type's own levels of fields. The
// table drives everything generic in this package and its sub-packages: deep
// copies, fingerprints, the wire codecs (see package codec) and event replay.
//
// Entities are mutable until frozen. Setters route through SetField so that
// equal assignments are no-ops and real changes mint a new view version and
// notify observers; after Freeze every setter fails with ErrFrozen. Frozen
// entities are shared freely between goroutines.
//
// A Dataset groups an owner entity with its related items. Datasets are
// persistent: Upsert, Remove and WithOwner return a new Dataset sharing
// unchanged items with the old one.
//
// State changes are carried by events (CreateObjectEvent, UpdatePropertyEvent,
// DeleteObjectEvent and UndeleteObjectEvent). A Replayer applies them one at a
// time and never mutates its input: every accepted event yields a new frozen
// entity whose view version is derived from the object and event ids, so
// replaying a stream twice produces identical results. A Projection keeps the
// latest datasets of an event stream and announces EntityChanged messages
// after each accepted event.
package vectis
