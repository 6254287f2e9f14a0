// Package jsondoc implements the document codec with path-addressed edits:
// documents are assembled member by member with sjson and read back through
// gjson. It shares no code with package jsonstream beyond the contract of
// package codec, which makes each backend a check on the other.
package jsondoc

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/codec"
)

// Backend names the wire-name overrides this codec honours.
const Backend = "jsondoc"

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
	doc, err := c.encode(e)
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (c *Codec) encode(e vectis.Entity) (string, error) {
	s, err := c.reg.SchemaOf(e)
	if err != nil {
		return "", err
	}
	doc, err := sjson.Set("{}", escape(codec.DiscriminatorField), s.Discriminator)
	if err != nil {
		return "", fmt.Errorf("set discriminator: %w", err)
	}
	for _, f := range s.Fields {
		if f.Is(vectis.FlagIgnore) {
			continue
		}
		path := escape(f.WireName(Backend))
		if f.Kind.Nested() {
			children, err := f.Children(e)
			if err != nil {
				return "", err
			}
			if len(children) == 0 {
				continue
			}
			raws := make([]string, len(children))
			for i, child := range children {
				if raws[i], err = c.encode(child); err != nil {
					return "", fmt.Errorf("%s[%d]: %w", f.Name, i, err)
				}
			}
			raw := raws[0]
			if f.Kind == vectis.EntityListKind {
				raw = "[" + strings.Join(raws, ",") + "]"
			}
			if doc, err = sjson.SetRaw(doc, path, raw); err != nil {
				return "", fmt.Errorf("set %s: %w", f.Name, err)
			}
			continue
		}

		v, ok, err := f.Format(e)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if f.Kind.Quoted() {
			doc, err = sjson.Set(doc, path, v)
		} else {
			doc, err = sjson.SetRaw(doc, path, v)
		}
		if err != nil {
			return "", fmt.Errorf("set %s: %w", f.Name, err)
		}
	}
	return doc, nil
}

// escape quotes the characters that gjson and sjson read as path syntax, so
// that a wire name always addresses a single member of the root object.
func escape(name string) string {
	if !strings.ContainsAny(name, `\.*?|#@!:`) {
		return name
	}
	var sb strings.Builder
	for _, r := range name {
		if strings.ContainsRune(`\.*?|#@!:`, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Decode reads the document p.
func (c *Codec) Decode(p []byte) (vectis.Entity, error) {
	if !gjson.ValidBytes(p) {
		return nil, vectis.Errorf(vectis.KindMalformedWireData, "not a JSON document")
	}
	return c.decode(gjson.ParseBytes(p))
}

func (c *Codec) decode(doc gjson.Result) (vectis.Entity, error) {
	if !doc.IsObject() {
		return nil, vectis.Errorf(vectis.KindMalformedWireData, "expected an object, got %s", doc.Type)
	}
	var (
		s    *vectis.Schema
		e    vectis.Entity
		end  func()
		err  error
		seen = make(map[string]bool)
	)
	doc.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if e == nil {
			if name != codec.DiscriminatorField {
				err = vectis.Errorf(vectis.KindMalformedWireData, "object does not start with %q", codec.DiscriminatorField)
				return false
			}
			if value.Type != gjson.String {
				err = vectis.Errorf(vectis.KindMalformedWireData, "discriminator is a %s, not a string", value.Type)
				return false
			}
			if s, err = c.reg.Lookup(value.Str); err != nil {
				return false
			}
			e = s.New()
			end = e.Core().BeginBulkLoad()
			return true
		}
		switch {
		case name == codec.DiscriminatorField:
			err = vectis.Errorf(vectis.KindMalformedWireData, "%q out of position", codec.DiscriminatorField)
			return false
		case codec.IsSystemColumn(name):
			return true
		}
		f, ok := s.FieldByWire(Backend, name)
		if !ok {
			err = vectis.Errorf(vectis.KindUnknownProperty, "%q has no member %q", s.Discriminator, name)
			return false
		}
		if seen[f.Name] {
			err = vectis.Errorf(vectis.KindMalformedWireData, "member %q appears twice", name)
			return false
		}
		seen[f.Name] = true
		if ferr := c.decodeField(e, f, value); ferr != nil {
			err = fmt.Errorf("%s.%s: %w", s.Discriminator, f.Name, ferr)
			return false
		}
		return true
	})
	if end != nil {
		end()
	}
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, vectis.Errorf(vectis.KindMalformedWireData, "missing %q", codec.DiscriminatorField)
	}
	vectis.Freeze(e)
	return e, nil
}

func (c *Codec) decodeField(e vectis.Entity, f vectis.Field, v gjson.Result) error {
	if v.Type == gjson.Null {
		return f.Reset(e)
	}
	switch f.Kind {
	case vectis.EntityKind:
		child, err := c.decode(v)
		if err != nil {
			return err
		}
		return f.SetChildren(e, []vectis.Entity{child})

	case vectis.EntityListKind:
		if !v.IsArray() {
			return vectis.Errorf(vectis.KindMalformedWireData, "expected an array, got %s", v.Type)
		}
		var (
			children []vectis.Entity
			err      error
		)
		v.ForEach(func(_, el gjson.Result) bool {
			var child vectis.Entity
			if child, err = c.decode(el); err != nil {
				err = fmt.Errorf("[%d]: %w", len(children), err)
				return false
			}
			children = append(children, child)
			return true
		})
		if err != nil {
			return err
		}
		return f.SetChildren(e, children)
	}

	switch v.Type {
	case gjson.String:
		return f.Parse(e, v.Str)
	case gjson.Number:
		if !codec.AcceptsNumber(f.Kind) {
			return vectis.Errorf(vectis.KindMalformedWireData, "number for a %s field", f.Kind)
		}
		return f.Parse(e, v.Raw)
	case gjson.True, gjson.False:
		if f.Kind != vectis.BoolKind {
			return vectis.Errorf(vectis.KindMalformedWireData, "boolean for a %s field", f.Kind)
		}
		return f.Parse(e, v.Raw)
	default:
		return vectis.Errorf(vectis.KindMalformedWireData, "%s for a %s field", v.Type, f.Kind)
	}
}
