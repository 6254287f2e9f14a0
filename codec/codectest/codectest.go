/*
Package codectest provides a suite of tests designed to assess document codecs
(e.g. jsonstream, jsondoc).

The tests operate on the codec via the [codec.Codec] interface to check
functional correctness and compliance with the document contract described by
package codec.

Call codectest.Run in its own test to invoke the test-suite:

	func TestCodec(t *testing.T) {
		codectest.Run(t, func(reg *vectis.Registry) codec.Codec {
			return jsonstream.New(reg)
		})
	}

The suite registers its own types (see Registry), so that codecs are exercised
with every field kind. Specific codecs are encouraged to perform additional
tests which are specific to their wire format.
*/
package codectest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/codec"
	"github.com/go-vectis/vectis/model"
)

// A decodeCase feeds a hand-written document to the decoder.
type decodeCase struct {
	// Subtest name.
	name string
	// A path leading to the test-case's file and line in the source code.
	location string
	doc      string
	// Either wantErr is set, or check inspects the decoded entity and returns
	// a description of any problem.
	wantErr error
	check   func(vectis.Entity) (problem string)
}

var decodeCases = []decodeCase{
	{
		name:     "not-json",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "not-an-object",
		location: locateSource(),
		doc:      `["Scheme Record"]`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "null-document",
		location: locateSource(),
		doc:      `null`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "empty-object",
		location: locateSource(),
		doc:      `{}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "discriminator-out-of-position",
		location: locateSource(),
		doc:      `{"id":"scheme-1","__typeDiscriminator":"Scheme Record"}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "discriminator-twice",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Scheme Record","__typeDiscriminator":"Scheme Record"}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "discriminator-not-a-string",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":42}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "unknown-discriminator",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Spaceship","id":"x"}`,
		wantErr:  vectis.ErrUnknownDiscriminator,
	},
	{
		name:     "unknown-member",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Scheme Record","Colour":"red"}`,
		wantErr:  vectis.ErrUnknownProperty,
	},
	{
		name:     "declared-name-of-renamed-member",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Scheme Record","PartitionKey":"scheme-1"}`,
		wantErr:  vectis.ErrUnknownProperty,
	},
	{
		name:     "ignored-member",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Codec Gauge","Scratch":"x"}`,
		wantErr:  vectis.ErrUnknownProperty,
	},
	{
		name:     "member-twice",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Scheme Record","Name":"a","Name":"b"}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "unparsable-integer",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Scheme Record","VatReclaimMonths":"three"}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "fractional-integer",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Scheme Record","VatReclaimMonths":1.5}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "number-for-string",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Scheme Record","Name":12}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "boolean-for-integer",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Scheme Record","VatReclaimMonths":true}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "object-for-scalar",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Scheme Record","Name":{"first":"a"}}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "unknown-enumerator",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Loan","Frequency":"Fortnightly"}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "string-for-entity",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Codec Gauge","Primary":"x"}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "object-for-entity-list",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Codec Gauge","Spares":{}}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "null-in-entity-list",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Codec Gauge","Spares":[null]}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "nested-without-discriminator",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Codec Gauge","Primary":{"label":"x"}}`,
		wantErr:  vectis.ErrMalformedWireData,
	},
	{
		name:     "nested-of-wrong-type",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Codec Gauge","Primary":{"__typeDiscriminator":"Scheme Record"}}`,
		wantErr:  vectis.ErrTypeMismatch,
	},
	{
		name:     "nested-unknown-member",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Codec Gauge","Spares":[{"__typeDiscriminator":"Codec Gauge","Colour":"red"}]}`,
		wantErr:  vectis.ErrUnknownProperty,
	},
	{
		name:     "system-columns",
		location: locateSource(),
		doc: `{"__typeDiscriminator":"Scheme Record","_rid":"AbCd==","id":"scheme-1",` +
			`"_self":"dbs/x/colls/y/docs/z","_etag":"\"0700\"","Name":"Riverside",` +
			`"_attachments":"attachments/","_ts":1709285400,"_lsn":{"n":[1,2,3]}}`,
		check: func(e vectis.Entity) string {
			s := e.(*model.Scheme)
			if s.ID() != "scheme-1" || s.Name != "Riverside" {
				return fmt.Sprintf("decoded (%q, %q), want (scheme-1, Riverside)", s.ID(), s.Name)
			}
			return ""
		},
	},
	{
		name:     "nulls-restore-defaults",
		location: locateSource(),
		doc: `{"__typeDiscriminator":"Scheme Record","id":null,"Name":null,` +
			`"VatReclaimMonths":null,"Deleted":null}`,
		check: func(e vectis.Entity) string {
			s := e.(*model.Scheme)
			if s.ID() != "" || s.Name != "" || s.VatReclaimMonths != 0 || s.Deleted() {
				return fmt.Sprintf("decoded %q/%q/%d/%v, want defaults", s.ID(), s.Name, s.VatReclaimMonths, s.Deleted())
			}
			return ""
		},
	},
	{
		name:     "null-nested",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Codec Gauge","Primary":null,"Spares":null,"reading.value":null}`,
		check: func(e vectis.Entity) string {
			g := e.(*Gauge)
			if g.Primary != nil || g.Spares != nil || g.Reading.Valid {
				return fmt.Sprintf("decoded %v/%v/%v, want absent values", g.Primary, g.Spares, g.Reading)
			}
			return ""
		},
	},
	{
		name:     "quoted-literals",
		location: locateSource(),
		doc: `{"__typeDiscriminator":"Loan","Ranking":"2","TotalLTC":"0.65",` +
			`"ApplyFacility":"true","Security":1,"Frequency":"monthly"}`,
		check: func(e vectis.Entity) string {
			l := e.(*model.Loan)
			if l.Ranking != 2 || !l.TotalLTC.Equal(decimal.RequireFromString("0.65")) || !l.ApplyFacility ||
				l.Security != model.Unsecured || l.Frequency != model.Monthly {
				return fmt.Sprintf("decoded %d/%s/%v/%s/%s", l.Ranking, l.TotalLTC, l.ApplyFacility, l.Security, l.Frequency)
			}
			return ""
		},
	},
	{
		name:     "exact-decimals",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Loan","TotalCommitmentAmount":98765432109876543210.000000000123}`,
		check: func(e vectis.Entity) string {
			want := decimal.RequireFromString("98765432109876543210.000000000123")
			if got := e.(*model.Loan).TotalCommitmentAmount; !got.Equal(want) {
				return fmt.Sprintf("decoded %s, want %s", got, want)
			}
			return ""
		},
	},
	{
		name:     "frozen-result",
		location: locateSource(),
		doc:      `{"__typeDiscriminator":"Codec Gauge","Primary":{"__typeDiscriminator":"Codec Gauge"}}`,
		check: func(e vectis.Entity) string {
			g := e.(*Gauge)
			if !g.Frozen() || !g.Primary.Frozen() {
				return fmt.Sprintf("frozen = %v, primary frozen = %v; want both", g.Frozen(), g.Primary.Frozen())
			}
			return ""
		},
	},
}

// Run runs the suite against the codec that newCodec returns for the suite's
// registry.
func Run(t *testing.T, newCodec func(*vectis.Registry) codec.Codec) {
	t.Helper()
	reg := Registry()
	c := newCodec(reg)

	for _, f := range Fixtures(reg) {
		t.Run("round-trip/"+f.Name, func(t *testing.T) {
			p, err := c.Encode(f.Entity)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !json.Valid(p) {
				t.Fatalf("Encode wrote invalid JSON:\n%s", p)
			}
			got, err := c.Decode(p)
			if err != nil {
				t.Fatalf("Decode(%s): %v", p, err)
			}
			if diff := cmp.Diff(Describe(t, reg, f.Entity), Describe(t, reg, got)); diff != "" {
				t.Errorf("Decode(Encode(x)) mismatch (-want +got):\n%s", diff)
			}
			if !got.Core().Frozen() {
				t.Errorf("Decode returned an unfrozen entity")
			}
		})

		t.Run("member-order/"+f.Name, func(t *testing.T) {
			p, err := c.Encode(f.Entity)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Members(p)
			if err != nil {
				t.Fatalf("Members(%s): %v", p, err)
			}
			want, err := expectedMembers(reg, c.Backend(), f.Entity)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("members mismatch (-want +got):\n%s", diff)
			}
		})
	}

	for _, tc := range decodeCases {
		t.Run("decode/"+tc.name, func(t *testing.T) {
			// We encourage developers to read the source code directly, especially when
			// failures are not clear enough.
			t.Logf("Read the source for test-case %v at %v", tc.name, tc.location)
			got, err := c.Decode([]byte(tc.doc))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("Decode(%s) = (%v, %v), want %v", tc.doc, got, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%s): %v", tc.doc, err)
			}
			if problem := tc.check(got); problem != "" {
				t.Errorf("Decode(%s): %s", tc.doc, problem)
			}
		})
	}
}

// Describe returns the registry's description of e, failing t on error.
func Describe(t testing.TB, reg *vectis.Registry, e vectis.Entity) vectis.Description {
	t.Helper()
	d, err := reg.Describe(e)
	if err != nil {
		t.Fatalf("Describe(%s): %v", e.Discriminator(), err)
	}
	return d
}

// Members returns the member names of the JSON object p, in document order.
func Members(p []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(p))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("not an object (%v)", err)
	}
	var names []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		names = append(names, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// expectedMembers lists the members a conforming encoder writes for e: the
// discriminator, then every present, non-ignored field in table order.
func expectedMembers(reg *vectis.Registry, backend string, e vectis.Entity) ([]string, error) {
	s, err := reg.SchemaOf(e)
	if err != nil {
		return nil, err
	}
	names := []string{codec.DiscriminatorField}
	for _, f := range s.Fields {
		if f.Is(vectis.FlagIgnore) {
			continue
		}
		var present bool
		if f.Kind.Nested() {
			children, err := f.Children(e)
			if err != nil {
				return nil, err
			}
			present = len(children) > 0
		} else if _, present, err = f.Format(e); err != nil {
			return nil, err
		}
		if present {
			names = append(names, f.WireName(backend))
		}
	}
	return names, nil
}

// Call this function to set the location of every test-case in the source file.
// The returned string is used to guide developers of codecs to the source of
// failing test-cases.
func locateSource() (path string) {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		panic("runtime.Caller failed")
	}
	return fmt.Sprintf("%v:%v", file, line)
}
