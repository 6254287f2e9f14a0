package vectis_test

import (
	"strings"
	"testing"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/model"
)

func TestFingerprint(t *testing.T) {
	reg := newRegistry(t)
	named := func(name string) *model.Scheme {
		s := newScheme("scheme-1")
		s.Name = name
		return s
	}
	revision := func(name string) *model.CapitalStructureRevision {
		r := new(model.CapitalStructureRevision)
		_ = r.SetID("scheme-1")
		_ = r.SetPartitionKey("scheme-1")
		r.Name = name
		return r
	}
	withNote := func(note string) *widget {
		w := &widget{Label: "w", Note: note}
		_ = w.SetID("w-1")
		return w
	}
	withParts := func(labels ...string) *widget {
		w := &widget{Label: "w"}
		_ = w.SetID("w-1")
		for _, l := range labels {
			w.Parts = append(w.Parts, &widget{Label: l})
		}
		return w
	}

	tests := []struct {
		Name        string
		Left, Right vectis.Entity
		Equals      bool
	}{
		{Name: "types=same,values=same", Left: named("a"), Right: named("a"), Equals: true},
		{Name: "types=same,values=different", Left: named("a"), Right: named("b"), Equals: false},
		{Name: "types=different,values=same", Left: named("a"), Right: revision("a"), Equals: false},
		{Name: "no parts vs blank part", Left: withParts(), Right: withParts(""), Equals: false},
		{Name: "ignored fields", Left: withNote("x"), Right: withNote("y"), Equals: true},
		{Name: "nested order", Left: withParts("a", "b"), Right: withParts("b", "a"), Equals: false},
		{Name: "nested boundaries", Left: withParts("ab", "c"), Right: withParts("a", "bc"), Equals: false},
	}
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			l, err := reg.Fingerprint(tt.Left)
			if err != nil {
				t.Fatalf("Fingerprint(left): %v", err)
			}
			r, err := reg.Fingerprint(tt.Right)
			if err != nil {
				t.Fatalf("Fingerprint(right): %v", err)
			}
			if (l == r) != tt.Equals {
				t.Errorf("Fingerprint(left) == Fingerprint(right) is %v, want %v (%s, %s)", l == r, tt.Equals, l, r)
			}
		})
	}
}

func TestFingerprintIgnoresViewVersion(t *testing.T) {
	reg := newRegistry(t)
	s := newScheme("scheme-1")
	before, err := reg.Fingerprint(s)
	if err != nil {
		t.Fatal(err)
	}
	c, err := reg.DeepCopyNewViewVersion(s, false)
	if err != nil {
		t.Fatal(err)
	}
	after, err := reg.Fingerprint(c)
	if err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Errorf("fingerprints differ after a view version change: %s, %s", before, after)
	}
}

func TestFingerprintText(t *testing.T) {
	reg := newRegistry(t)
	want, err := reg.Fingerprint(newScheme("scheme-1"))
	if err != nil {
		t.Fatal(err)
	}
	if want.IsZero() {
		t.Fatalf("Fingerprint is zero")
	}
	text, err := want.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var got vectis.Fingerprint
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText(%s): %v", text, err)
	}
	if got != want {
		t.Errorf("UnmarshalText(MarshalText(%s)) = %s", want, got)
	}

	for _, bad := range []string{
		string(text[:10]),
		string(text) + "ab",
		string(text) + "a",
		"zz",
		strings.Repeat("zz", len(want)),
	} {
		if err := got.UnmarshalText([]byte(bad)); err == nil {
			t.Errorf("UnmarshalText(%q) succeeded", bad)
		}
		if got != want {
			t.Errorf("UnmarshalText(%q) changed the fingerprint to %s", bad, got)
		}
	}
}
