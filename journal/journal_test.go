package journal_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/journal"
	"github.com/go-vectis/vectis/model"
)

var epoch = time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)

func open(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func header(eventID, partitionKey, objectID string, seq int) vectis.EventHeader {
	return vectis.EventHeader{
		PartitionKey: partitionKey,
		ID:           eventID,
		UserID:       "alice",
		Origin:       "test-host",
		Timestamp:    epoch.Add(time.Duration(seq) * time.Minute),
		ObjectID:     objectID,
	}
}

func createScheme(eventID, id string) vectis.CreateObjectEvent {
	return vectis.CreateObjectEvent{
		EventHeader:   header(eventID, id, id, 0),
		Discriminator: model.SchemeDiscriminator,
		Properties:    vectis.PropertyList{{Name: "Name", Value: "Scheme " + id}},
	}
}

func rename(eventID, partitionKey, name string, seq int) vectis.UpdatePropertyEvent {
	return vectis.UpdatePropertyEvent{
		EventHeader:  header(eventID, partitionKey, partitionKey, seq),
		PropertyName: "Name",
		NextValue:    name,
	}
}

func eventIDs(records []journal.Record) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.Event.Header().ID)
	}
	return out
}

func TestAppendList(t *testing.T) {
	ctx := context.Background()
	j := open(t)

	events := []vectis.Event{
		createScheme("ev-1", "scheme-a"),
		createScheme("ev-2", "scheme-b"),
		rename("ev-3", "scheme-a", "Riverside", 1),
		rename("ev-4", "scheme-b", "Hillside", 1),
		rename("ev-5", "scheme-a", "Riverside II", 2),
	}
	for i, ev := range events {
		seq, err := j.Append(ctx, ev)
		if err != nil {
			t.Fatalf("Append(%s): %v", ev.Header().ID, err)
		}
		if want := int64(i + 1); seq != want {
			t.Errorf("Append(%s) seq = %d, want %d", ev.Header().ID, seq, want)
		}
	}

	tests := []struct {
		name      string
		partition string
		after     int64
		limit     int
		want      []string
	}{
		{"all", "", 0, 10, []string{"ev-1", "ev-2", "ev-3", "ev-4", "ev-5"}},
		{"partition", "scheme-a", 0, 10, []string{"ev-1", "ev-3", "ev-5"}},
		{"after", "scheme-a", 1, 10, []string{"ev-3", "ev-5"}},
		{"limit", "", 0, 2, []string{"ev-1", "ev-2"}},
		{"second page", "", 2, 2, []string{"ev-3", "ev-4"}},
		{"unknown partition", "scheme-z", 0, 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := j.List(ctx, tt.partition, tt.after, tt.limit)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if diff := cmp.Diff(tt.want, eventIDs(got)); diff != "" {
				t.Errorf("List() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := j.List(ctx, "", 0, 0); err == nil {
		t.Error("List(limit=0) succeeded, want error")
	}
}

// Events read back from the journal equal the appended ones.
func TestAppendPreservesEvent(t *testing.T) {
	ctx := context.Background()
	j := open(t)

	ev := rename("ev-2", "scheme-a", "Riverside", 1)
	ev.PreviousEventID = "ev-1"
	ev.PreviousValue = "Old"
	if _, err := j.Append(ctx, ev); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := j.List(ctx, "scheme-a", 0, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("List() returned %d records, want 1", len(got))
	}
	if diff := cmp.Diff(vectis.Event(ev), got[0].Event); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendDuplicate(t *testing.T) {
	ctx := context.Background()
	j := open(t)

	if _, err := j.Append(ctx, createScheme("ev-1", "scheme-a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_, err := j.Append(ctx, rename("ev-1", "scheme-a", "Again", 1))
	if !errors.Is(err, journal.ErrDuplicateEvent) {
		t.Errorf("Append(duplicate id) = %v, want ErrDuplicateEvent", err)
	}

	var empty vectis.CreateObjectEvent
	if _, err := j.Append(ctx, empty); err == nil {
		t.Error("Append(no id) succeeded, want error")
	}
}

func TestPartitions(t *testing.T) {
	ctx := context.Background()
	j := open(t)

	root := createScheme("ev-1", "scheme-c")
	root.PartitionKey = ""
	for _, ev := range []vectis.Event{
		createScheme("ev-0", "scheme-b"),
		root,
		createScheme("ev-2", "scheme-a"),
		rename("ev-3", "scheme-b", "x", 1),
	} {
		if _, err := j.Append(ctx, ev); err != nil {
			t.Fatalf("Append(%s): %v", ev.Header().ID, err)
		}
	}
	got, err := j.Partitions(ctx)
	if err != nil {
		t.Fatalf("Partitions: %v", err)
	}
	if diff := cmp.Diff([]string{"scheme-a", "scheme-b", "scheme-c"}, got); diff != "" {
		t.Errorf("Partitions() mismatch (-want +got):\n%s", diff)
	}
}

// Replaying the journal through a projection rebuilds the datasets.
func TestReplay(t *testing.T) {
	ctx := context.Background()
	j := open(t)

	var events []vectis.Event
	events = append(events, createScheme("ev-000", "scheme-a"))
	// Cross the page boundary.
	for i := 1; i <= journal.DefaultPageSize+5; i++ {
		events = append(events, rename(fmt.Sprintf("ev-%03d", i), "scheme-a", fmt.Sprintf("Name %d", i), i))
	}
	events = append(events, createScheme("ev-b", "scheme-b"))
	for _, ev := range events {
		if _, err := j.Append(ctx, ev); err != nil {
			t.Fatalf("Append(%s): %v", ev.Header().ID, err)
		}
	}

	p := vectis.NewProjection("test", vectis.NewReplayer(model.NewRegistry()), nil)
	n, err := j.Replay(ctx, "scheme-a", 0, p.Handle)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if want := journal.DefaultPageSize + 6; n != want {
		t.Errorf("Replay() handled %d events, want %d", n, want)
	}
	d, ok := p.Find("scheme-a")
	if !ok {
		t.Fatal("Find(scheme-a) found nothing after replay")
	}
	s := d.Owner().(*model.Scheme)
	if want := fmt.Sprintf("Name %d", journal.DefaultPageSize+5); s.Name != want {
		t.Errorf("replayed scheme name = %q, want %q", s.Name, want)
	}
	if _, ok := p.Find("scheme-b"); ok {
		t.Error("Replay(scheme-a) also replayed scheme-b")
	}

	boom := errors.New("boom")
	n, err = j.Replay(ctx, "", 0, func(context.Context, vectis.Event) error { return boom })
	if !errors.Is(err, boom) || n != 0 {
		t.Errorf("Replay(failing handler) = %d, %v; want 0, boom", n, err)
	}
}

// Replaying after the event a snapshot was taken at resumes from there.
func TestReplayAfterSeq(t *testing.T) {
	ctx := context.Background()
	j := open(t)
	for _, ev := range []vectis.Event{
		createScheme("ev-1", "scheme-a"),
		createScheme("ev-2", "scheme-b"),
		rename("ev-3", "scheme-a", "Riverside", 1),
		rename("ev-4", "scheme-a", "Riverside II", 2),
	} {
		if _, err := j.Append(ctx, ev); err != nil {
			t.Fatalf("Append(%s): %v", ev.Header().ID, err)
		}
	}

	seq, err := j.Seq(ctx, "ev-3")
	if err != nil {
		t.Fatalf("Seq: %v", err)
	}
	if seq != 3 {
		t.Errorf("Seq(ev-3) = %d, want 3", seq)
	}
	var got []string
	_, err = j.Replay(ctx, "scheme-a", seq, func(_ context.Context, ev vectis.Event) error {
		got = append(got, ev.Header().ID)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if diff := cmp.Diff([]string{"ev-4"}, got); diff != "" {
		t.Errorf("Replay(after ev-3) mismatch (-want +got):\n%s", diff)
	}

	if _, err := j.Seq(ctx, "ev-9"); !errors.Is(err, journal.ErrUnknownEvent) {
		t.Errorf("Seq(unknown) = %v, want ErrUnknownEvent", err)
	}
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	j := open(t)

	var handled []string
	h := j.Record(func(_ context.Context, ev vectis.Event) error {
		handled = append(handled, ev.Header().ID)
		return nil
	})
	for _, ev := range []vectis.Event{
		createScheme("ev-1", "scheme-a"),
		rename("ev-2", "scheme-a", "x", 1),
		rename("ev-2", "scheme-a", "x", 1),
	} {
		if err := h(ctx, ev); err != nil {
			t.Fatalf("handler(%s): %v", ev.Header().ID, err)
		}
	}
	if diff := cmp.Diff([]string{"ev-1", "ev-2"}, handled); diff != "" {
		t.Errorf("handled events mismatch (-want +got):\n%s", diff)
	}
	records, err := j.List(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"ev-1", "ev-2"}, eventIDs(records)); diff != "" {
		t.Errorf("journaled events mismatch (-want +got):\n%s", diff)
	}
}

// Reopening a journal keeps its events and does not rerun migrations.
func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := j.Append(ctx, createScheme("ev-1", "scheme-a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j, err = journal.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	got, err := j.Partitions(ctx)
	if err != nil {
		t.Fatalf("Partitions: %v", err)
	}
	if diff := cmp.Diff([]string{"scheme-a"}, got); diff != "" {
		t.Errorf("Partitions() mismatch (-want +got):\n%s", diff)
	}

	if _, err := journal.Open(ctx, "  "); err == nil {
		t.Error("Open(blank path) succeeded, want error")
	}
}
