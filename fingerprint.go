package vectis

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// A Fingerprint is the content address of an entity's serialized state: two
// entities of the same type whose serializable fields hold equal values share a
// fingerprint, no matter how they were produced.
//
// The view version does not participate, nor do fields flagged FlagIgnore.
// Nested entities contribute their own fingerprints, in order.
type Fingerprint [sha1.Size]byte

// Fingerprint computes the content address of e.
func (r *Registry) Fingerprint(e Entity) (Fingerprint, error) {
	h := sha1.New()
	if err := r.digest(h, e); err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint(h.Sum(nil)), nil
}

func (r *Registry) digest(h hash.Hash, e Entity) error {
	s, err := r.SchemaOf(e)
	if err != nil {
		return err
	}
	writeString(h, s.Discriminator)
	for _, f := range s.Fields {
		if f.Is(FlagIgnore) || f.Name == "ViewVersion" {
			continue
		}
		writeString(h, f.Name)
		if f.Kind.Nested() {
			children, err := f.Children(e)
			if err != nil {
				return err
			}
			writeLength(h, len(children))
			for _, c := range children {
				if err := r.digest(h, c); err != nil {
					return fmt.Errorf("%s: %w", f.Name, err)
				}
			}
			continue
		}
		v, ok, err := f.Format(e)
		if err != nil {
			return err
		}
		if !ok {
			// Absent values hash like a zero-length list, never like a present
			// empty string.
			writeLength(h, 0)
			continue
		}
		writeLength(h, 1)
		writeString(h, v)
	}
	return nil
}

func writeLength(w io.Writer, n int) {
	var buf [binary.MaxVarintLen64]byte
	w.Write(buf[:binary.PutUvarint(buf[:], uint64(n))])
}

// writeString writes a length-prefixed s so that adjacent strings cannot
// collide ("ab"+"c" vs "a"+"bc").
func writeString(w io.Writer, s string) {
	writeLength(w, len(s))
	io.WriteString(w, s)
}

// replayVersion derives the view version of an entity produced by replaying
// the given event, so that replays are reproducible bit for bit.
func replayVersion(objectID, eventID string) string {
	h := sha1.New()
	writeString(h, objectID)
	writeString(h, eventID)
	return hex.EncodeToString(h.Sum(nil))
}

func (f Fingerprint) MarshalText() ([]byte, error) {
	text := make([]byte, hex.EncodedLen(len(f)))
	hex.Encode(text, f[:])
	return text, nil
}

// UnmarshalText decodes the hex form written by MarshalText. f is left
// unchanged on error.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	if n := hex.DecodedLen(len(text)); n != len(f) {
		return fmt.Errorf("decode hex: %d bytes, want %d", n, len(f))
	}
	var v Fingerprint
	if _, err := hex.Decode(v[:], text); err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}
	*f = v
	return nil
}

func (f Fingerprint) String() string { return "fingerprint(" + hex.EncodeToString(f[:]) + ")" }

// IsZero reports whether f is the zero value of the type.
func (f Fingerprint) IsZero() bool { return f == Fingerprint{} }
