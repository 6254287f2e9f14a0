// Package jsonstream implements the document codec over the token stream of
// encoding/json. The encoder writes documents directly into a buffer, member by
// member; the decoder consumes them token by token without building an
// intermediate tree.
package jsonstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/codec"
)

// Backend names the wire-name overrides this codec honours.
const Backend = "jsonstream"

// Codec reads and writes documents of the types registered with its registry.
type Codec struct {
	reg *vectis.Registry
}

// New returns a Codec resolving discriminators with reg.
func New(reg *vectis.Registry) *Codec {
	return &Codec{reg: reg}
}

func (c *Codec) Backend() string { return Backend }

// Encode writes e as a document.
func (c *Codec) Encode(e vectis.Entity) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.encode(&buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Codec) encode(buf *bytes.Buffer, e vectis.Entity) error {
	s, err := c.reg.SchemaOf(e)
	if err != nil {
		return err
	}
	buf.WriteByte('{')
	writeString(buf, codec.DiscriminatorField)
	buf.WriteByte(':')
	writeString(buf, s.Discriminator)
	for _, f := range s.Fields {
		if f.Is(vectis.FlagIgnore) {
			continue
		}
		if f.Kind.Nested() {
			children, err := f.Children(e)
			if err != nil {
				return err
			}
			if len(children) == 0 {
				continue
			}
			member(buf, f.WireName(Backend))
			if f.Kind == vectis.EntityKind {
				if err := c.encode(buf, children[0]); err != nil {
					return fmt.Errorf("%s: %w", f.Name, err)
				}
				continue
			}
			buf.WriteByte('[')
			for i, child := range children {
				if i > 0 {
					buf.WriteByte(',')
				}
				if err := c.encode(buf, child); err != nil {
					return fmt.Errorf("%s[%d]: %w", f.Name, i, err)
				}
			}
			buf.WriteByte(']')
			continue
		}

		v, ok, err := f.Format(e)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		member(buf, f.WireName(Backend))
		if f.Kind.Quoted() {
			writeString(buf, v)
		} else {
			buf.WriteString(v)
		}
	}
	buf.WriteByte('}')
	return nil
}

func member(buf *bytes.Buffer, name string) {
	buf.WriteByte(',')
	writeString(buf, name)
	buf.WriteByte(':')
}

func writeString(buf *bytes.Buffer, s string) {
	p, _ := json.Marshal(s) // never fails for a string
	buf.Write(p)
}

// Decode reads the document p.
func (c *Codec) Decode(p []byte) (vectis.Entity, error) {
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	e, err := c.decodeObject(dec)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, vectis.Errorf(vectis.KindMalformedWireData, "document is null")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, vectis.Errorf(vectis.KindMalformedWireData, "trailing data after the document")
	}
	return e, nil
}

func malformed(err error) error {
	return vectis.Wrap(vectis.KindMalformedWireData, "read token", err)
}

// decodeObject reads an object (or null, returning a nil entity) from dec.
func (c *Codec) decodeObject(dec *json.Decoder) (vectis.Entity, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, malformed(err)
	}
	if tok == nil {
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, vectis.Errorf(vectis.KindMalformedWireData, "expected an object, got %v", tok)
	}

	if tok, err = dec.Token(); err != nil {
		return nil, malformed(err)
	}
	if key, ok := tok.(string); !ok || key != codec.DiscriminatorField {
		return nil, vectis.Errorf(vectis.KindMalformedWireData, "object does not start with %q", codec.DiscriminatorField)
	}
	if tok, err = dec.Token(); err != nil {
		return nil, malformed(err)
	}
	discriminator, ok := tok.(string)
	if !ok {
		return nil, vectis.Errorf(vectis.KindMalformedWireData, "discriminator is %v, not a string", tok)
	}
	s, err := c.reg.Lookup(discriminator)
	if err != nil {
		return nil, err
	}

	e := s.New()
	end := e.Core().BeginBulkLoad()
	defer end()
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed(err)
		}
		key, _ := tok.(string)
		switch {
		case key == codec.DiscriminatorField:
			return nil, vectis.Errorf(vectis.KindMalformedWireData, "%q out of position", codec.DiscriminatorField)
		case codec.IsSystemColumn(key):
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, malformed(err)
			}
			continue
		}
		f, ok := s.FieldByWire(Backend, key)
		if !ok {
			return nil, vectis.Errorf(vectis.KindUnknownProperty, "%q has no member %q", discriminator, key)
		}
		if seen[f.Name] {
			return nil, vectis.Errorf(vectis.KindMalformedWireData, "member %q appears twice", key)
		}
		seen[f.Name] = true
		if err := c.decodeField(dec, e, f); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", discriminator, f.Name, err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, malformed(err)
	}
	end()
	vectis.Freeze(e)
	return e, nil
}

func (c *Codec) decodeField(dec *json.Decoder, e vectis.Entity, f vectis.Field) error {
	switch f.Kind {
	case vectis.EntityKind:
		child, err := c.decodeObject(dec)
		if err != nil {
			return err
		}
		if child == nil {
			return f.Reset(e)
		}
		return f.SetChildren(e, []vectis.Entity{child})

	case vectis.EntityListKind:
		tok, err := dec.Token()
		if err != nil {
			return malformed(err)
		}
		if tok == nil {
			return f.Reset(e)
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			return vectis.Errorf(vectis.KindMalformedWireData, "expected an array, got %v", tok)
		}
		var children []vectis.Entity
		for dec.More() {
			child, err := c.decodeObject(dec)
			if err != nil {
				return fmt.Errorf("[%d]: %w", len(children), err)
			}
			if child == nil {
				return vectis.Errorf(vectis.KindMalformedWireData, "[%d]: null element", len(children))
			}
			children = append(children, child)
		}
		if _, err := dec.Token(); err != nil {
			return malformed(err)
		}
		return f.SetChildren(e, children)
	}

	tok, err := dec.Token()
	if err != nil {
		return malformed(err)
	}
	switch v := tok.(type) {
	case nil:
		return f.Reset(e)
	case string:
		return f.Parse(e, v)
	case json.Number:
		if !codec.AcceptsNumber(f.Kind) {
			return vectis.Errorf(vectis.KindMalformedWireData, "number for a %s field", f.Kind)
		}
		return f.Parse(e, v.String())
	case bool:
		if f.Kind != vectis.BoolKind {
			return vectis.Errorf(vectis.KindMalformedWireData, "boolean for a %s field", f.Kind)
		}
		return f.Parse(e, strconv.FormatBool(v))
	default:
		return vectis.Errorf(vectis.KindMalformedWireData, "%v for a %s field", tok, f.Kind)
	}
}
