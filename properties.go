package vectis

import (
	"errors"
	"fmt"
	"strings"
)

// A Property is a (name, canonical value) pair of a create event.
type Property struct {
	Name  string
	Value string
}

// PropertyList is the ordered property list of a create event.
//
// Its text form is a single CSV record alternating names and values, every
// field quoted: "Name","Senior Facility","Ranking","1".
type PropertyList []Property

// Get returns the value of the first property with the given name.
func (l PropertyList) Get(name string) (string, bool) {
	for _, p := range l {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}

func (l PropertyList) String() string {
	var sb strings.Builder
	for i, p := range l {
		if i > 0 {
			sb.WriteByte(',')
		}
		quote(&sb, p.Name)
		sb.WriteByte(',')
		quote(&sb, p.Value)
	}
	return sb.String()
}

func quote(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	sb.WriteString(strings.ReplaceAll(s, `"`, `""`))
	sb.WriteByte('"')
}

func (l PropertyList) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *PropertyList) UnmarshalText(text []byte) error {
	parsed, err := ParsePropertyList(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParsePropertyList parses the text form of a PropertyList. Every byte between
// the quotes of a field is kept, line breaks included. It fails with
// ErrMalformedWireData if a field is unquoted or unterminated, if fields are
// not separated by single commas, or if a name has no value.
func ParsePropertyList(s string) (PropertyList, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var fields []string
	for i := 0; ; {
		field, n, err := unquote(s[i:])
		if err != nil {
			return nil, Wrap(KindMalformedWireData, fmt.Sprintf("parse property list: field %d", len(fields)), err)
		}
		fields = append(fields, field)
		i += n
		if i == len(s) {
			break
		}
		if s[i] != ',' {
			return nil, Errorf(KindMalformedWireData, "parse property list: unexpected %q after field %d", s[i], len(fields)-1)
		}
		i++
	}
	if len(fields)%2 != 0 {
		return nil, Errorf(KindMalformedWireData, "property list has a name without a value")
	}
	l := make(PropertyList, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		if fields[i] == "" {
			return nil, Errorf(KindMalformedWireData, "property %d has no name", i/2)
		}
		l = append(l, Property{Name: fields[i], Value: fields[i+1]})
	}
	return l, nil
}

// unquote reads the quoted field at the start of s, undoubling its inner
// quotes. It returns the field and the number of bytes consumed.
func unquote(s string) (string, int, error) {
	if s == "" || s[0] != '"' {
		return "", 0, errors.New("field is not quoted")
	}
	var sb strings.Builder
	i := 1
	for {
		j := strings.IndexByte(s[i:], '"')
		if j < 0 {
			return "", 0, errors.New("unterminated quoted field")
		}
		sb.WriteString(s[i : i+j])
		i += j + 1
		if i < len(s) && s[i] == '"' {
			sb.WriteByte('"')
			i++
			continue
		}
		return sb.String(), i, nil
	}
}
