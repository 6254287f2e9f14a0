// Package codec defines the wire contract shared by the document backends.
//
// A document is a JSON object whose first member is DiscriminatorField, holding
// the registered tag of the entity's type. The declared, non-ignored fields
// follow in field-table order, each under the wire name the backend resolves
// for it (see vectis.Field.WireName). Absent values are omitted and decode to
// the type's default, as does an explicit null.
//
// Scalar values are written in their canonical text form: as JSON strings for
// text-like kinds, and as bare JSON literals for integers, booleans and
// decimals (see vectis.FieldKind.Quoted). Decoders also accept those literals
// quoted, and enumerations given by their integer value (see AcceptsNumber).
// Nested entities are objects, entity lists are arrays of objects.
//
// Decoders skip the SystemColumns a storage engine adds to documents. Every
// other unknown member fails with vectis.ErrUnknownProperty. A document whose
// discriminator is missing or not first fails with vectis.ErrMalformedWireData.
package codec

import (
	"github.com/go-vectis/vectis"
)

// DiscriminatorField is the reserved member carrying the type tag.
const DiscriminatorField = "__typeDiscriminator"

// SystemColumns lists the metadata members that storage engines inject into
// stored documents.
var SystemColumns = []string{"_rid", "_ts", "_self", "_etag", "_attachments", "_lsn"}

// IsSystemColumn reports whether name is one of SystemColumns.
func IsSystemColumn(name string) bool {
	switch name {
	case "_rid", "_ts", "_self", "_etag", "_attachments", "_lsn":
		return true
	}
	return false
}

// An Encoder writes entities as documents.
type Encoder interface {
	Encode(e vectis.Entity) ([]byte, error)
}

// A Decoder reads documents written by any conforming Encoder whose wire names
// agree with its own.
type Decoder interface {
	// Decode returns the entity described by p. The entity, and every entity
	// nested in it, is frozen.
	Decode(p []byte) (vectis.Entity, error)
}

// A Codec is a named backend. Backend names key the per-backend wire names of
// vectis.Field.
type Codec interface {
	Backend() string
	Encoder
	Decoder
}

// AcceptsNumber reports whether decoders take a bare JSON number for a field of
// kind k.
func AcceptsNumber(k vectis.FieldKind) bool {
	return k == vectis.IntKind || k == vectis.DecimalKind || k == vectis.EnumKind
}
