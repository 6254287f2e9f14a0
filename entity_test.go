package vectis_test

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/model"
)

func TestSetField(t *testing.T) {
	var s model.Scheme
	var got []vectis.Change
	s.Observe(func(c vectis.Change) { got = append(got, c) })

	if err := s.SetName("Riverside"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	first := s.ViewVersion()
	if first == "" {
		t.Fatalf("ViewVersion() is empty after a change")
	}

	// Assigning an equal value is not a change.
	if err := s.SetName("Riverside"); err != nil {
		t.Fatalf("SetName(same): %v", err)
	}
	if s.ViewVersion() != first {
		t.Errorf("ViewVersion() changed on an equal assignment: %q -> %q", first, s.ViewVersion())
	}

	if err := s.SetDescription("Phase one"); err != nil {
		t.Fatalf("SetDescription: %v", err)
	}
	want := []vectis.Change{
		{Field: "Name", ViewVersion: first},
		{Field: "Description", ViewVersion: s.ViewVersion()},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
	if s.ViewVersion() == first {
		t.Errorf("ViewVersion() did not change after SetDescription")
	}
}

func TestFreeze(t *testing.T) {
	var s model.Scheme
	if err := s.SetName("before"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	s.Freeze()
	if !s.Frozen() {
		t.Fatalf("Frozen() = false after Freeze")
	}
	version := s.ViewVersion()

	err := s.SetName("after")
	if !errors.Is(err, vectis.ErrFrozen) {
		t.Errorf("SetName on a frozen entity: got %v, want ErrFrozen", err)
	}
	if s.Name != "before" {
		t.Errorf("Name = %q after a rejected assignment, want %q", s.Name, "before")
	}
	if s.ViewVersion() != version {
		t.Errorf("ViewVersion() changed after a rejected assignment")
	}
	if err := s.SetID("x"); !errors.Is(err, vectis.ErrFrozen) {
		t.Errorf("SetID on a frozen entity: got %v, want ErrFrozen", err)
	}

	// Freezing is idempotent.
	s.Freeze()
	if !s.Frozen() {
		t.Errorf("Frozen() = false after a second Freeze")
	}
}

func TestBeginBulkLoad(t *testing.T) {
	var s model.Scheme
	var notified int
	s.Observe(func(vectis.Change) { notified++ })

	end := s.BeginBulkLoad()
	nested := s.BeginBulkLoad()
	for i := range 3 {
		if err := s.SetName(fmt.Sprint("name-", i)); err != nil {
			t.Fatalf("SetName: %v", err)
		}
	}
	nested()
	nested() // ending twice has no effect
	if err := s.SetDescription("still loading"); err != nil {
		t.Fatalf("SetDescription: %v", err)
	}
	if notified != 0 || s.ViewVersion() != "" {
		t.Errorf("bulk load: %d notifications, ViewVersion() = %q; want none", notified, s.ViewVersion())
	}
	end()

	if err := s.SetName("loaded"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if notified != 1 || s.ViewVersion() == "" {
		t.Errorf("after bulk load: %d notifications, ViewVersion() = %q; want one and a version", notified, s.ViewVersion())
	}
}

func TestObserveCancel(t *testing.T) {
	var s model.Scheme
	var a, b int
	cancelA := s.Observe(func(vectis.Change) { a++ })
	s.Observe(func(vectis.Change) { b++ })

	_ = s.SetName("one")
	cancelA()
	cancelA()
	_ = s.SetName("two")

	if a != 1 || b != 2 {
		t.Errorf("notifications = (%d, %d), want (1, 2)", a, b)
	}
}

func TestTicks(t *testing.T) {
	tests := []struct {
		Time time.Time
		Want int64
	}{
		{Time: time.Unix(0, 0), Want: 621355968000000000},
		{Time: time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC), Want: 0},
		{Time: time.Unix(1, 0), Want: 621355968010000000},
		{Time: time.Date(9999, time.December, 31, 23, 59, 59, 999999999, time.UTC), Want: 3155378975999999999},
		{Time: time.Date(1, time.January, 1, 0, 0, 1, 250, time.FixedZone("east", 0)), Want: 10000002},
	}
	for _, tt := range tests {
		if got := vectis.Ticks(tt.Time); got != tt.Want {
			t.Errorf("Ticks(%s) = %d, want %d", tt.Time, got, tt.Want)
		}
	}
}

func TestNewID(t *testing.T) {
	before := vectis.Ticks(time.Now())
	id := vectis.NewID()
	after := vectis.Ticks(time.Now())

	ticks, rest, ok := strings.Cut(id, "|")
	if !ok {
		t.Fatalf("NewID() = %q, want <ticks>|<uuid>", id)
	}
	n, err := strconv.ParseInt(ticks, 10, 64)
	if err != nil {
		t.Fatalf("NewID() = %q: ticks: %v", id, err)
	}
	if n < before || n > after {
		t.Errorf("NewID() ticks = %d, want within [%d, %d]", n, before, after)
	}
	if _, err := uuid.Parse(rest); err != nil {
		t.Errorf("NewID() = %q: uuid: %v", id, err)
	}
	if vectis.NewID() == id {
		t.Errorf("NewID() returned %q twice", id)
	}
}

func TestEnsureIdentity(t *testing.T) {
	var s model.Scheme
	if err := vectis.EnsureIdentity(&s); err != nil {
		t.Fatalf("EnsureIdentity: %v", err)
	}
	if s.ID() == "" || s.PartitionKey() == "" {
		t.Fatalf("EnsureIdentity left (%q, %q)", s.PartitionKey(), s.ID())
	}

	// An existing identity is kept, even on a frozen entity.
	id, pk := s.ID(), s.PartitionKey()
	s.Freeze()
	if err := vectis.EnsureIdentity(&s); err != nil {
		t.Fatalf("EnsureIdentity(frozen, identified): %v", err)
	}
	if s.ID() != id || s.PartitionKey() != pk {
		t.Errorf("EnsureIdentity replaced the identity")
	}

	var frozen model.Scheme
	frozen.Freeze()
	if err := vectis.EnsureIdentity(&frozen); !errors.Is(err, vectis.ErrFrozen) {
		t.Errorf("EnsureIdentity(frozen, anonymous): got %v, want ErrFrozen", err)
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("load: %w", vectis.Errorf(vectis.KindUnknownProperty, "no field %q", "Colour"))
	if !errors.Is(err, vectis.ErrUnknownProperty) {
		t.Errorf("errors.Is(%v, ErrUnknownProperty) = false", err)
	}
	if errors.Is(err, vectis.ErrMalformedWireData) {
		t.Errorf("errors.Is(%v, ErrMalformedWireData) = true", err)
	}

	cause := errors.New("boom")
	wrapped := vectis.Wrap(vectis.KindMalformedWireData, "parse", cause)
	if !errors.Is(wrapped, cause) || !errors.Is(wrapped, vectis.ErrMalformedWireData) {
		t.Errorf("Wrap does not match both its kind and its cause: %v", wrapped)
	}
	var e *vectis.Error
	if !errors.As(err, &e) || e.Kind != vectis.KindUnknownProperty {
		t.Errorf("errors.As(%v) = %v, want kind %q", err, e, vectis.KindUnknownProperty)
	}
}
