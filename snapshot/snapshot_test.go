package snapshot_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/codec/codectest"
	"github.com/go-vectis/vectis/codec/jsondoc"
	"github.com/go-vectis/vectis/model"
	"github.com/go-vectis/vectis/snapshot"
)

var epoch = time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)

// replay builds the dataset of the given scheme with one loan.
func replay(t *testing.T, reg *vectis.Registry, scheme string) *vectis.Dataset {
	t.Helper()
	h := func(eventID, objectID string, seq int) vectis.EventHeader {
		return vectis.EventHeader{
			PartitionKey: scheme,
			ID:           eventID,
			UserID:       "alice",
			Timestamp:    epoch.Add(time.Duration(seq) * time.Minute),
			ObjectID:     objectID,
		}
	}
	d, err := vectis.NewReplayer(reg).ReplayAll(nil,
		vectis.CreateObjectEvent{
			EventHeader:   h(scheme+"-ev-1", scheme, 0),
			Discriminator: model.SchemeDiscriminator,
			Properties:    vectis.PropertyList{{Name: "Name", Value: "Scheme " + scheme}},
		},
		vectis.CreateObjectEvent{
			EventHeader:   h(scheme+"-ev-2", scheme+"|loan", 1),
			Discriminator: model.LoanDiscriminator,
			Properties:    vectis.PropertyList{{Name: "Name", Value: "Senior"}, {Name: "EntryFee", Value: "0.015"}},
		},
	)
	if err != nil {
		t.Fatalf("ReplayAll: %v", err)
	}
	return d
}

func setup(t *testing.T) (*vectis.Registry, *blob.Bucket, *snapshot.Archive) {
	t.Helper()
	reg := model.NewRegistry()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { _ = bucket.Close() })
	return reg, bucket, snapshot.New(bucket, reg, jsondoc.New(reg))
}

func TestKey(t *testing.T) {
	tests := []struct {
		h    vectis.Handle
		want string
	}{
		{vectis.Handle{PartitionKey: "scheme-1", ID: "scheme-1"}, "scheme-1/scheme-1.json"},
		{vectis.Handle{PartitionKey: "a/b", ID: "638000000000000000|x"}, "a%2Fb/638000000000000000%7Cx.json"},
	}
	for _, tt := range tests {
		if got := snapshot.Key(tt.h); got != tt.want {
			t.Errorf("Key(%+v) = %q, want %q", tt.h, got, tt.want)
		}
	}
}

func TestArchiveRestore(t *testing.T) {
	ctx := context.Background()
	reg, bucket, archive := setup(t)
	d := replay(t, reg, "scheme-1")

	if err := archive.Archive(ctx, d); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := archive.Restore(ctx, d.Handle())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if diff := cmp.Diff(codectest.Describe(t, reg, d), codectest.Describe(t, reg, got)); diff != "" {
		t.Errorf("Restore() mismatch (-want +got):\n%s", diff)
	}
	if !got.Frozen() {
		t.Error("Restore() returned an unfrozen dataset")
	}

	attrs, err := bucket.Attributes(ctx, snapshot.Key(d.Handle()))
	if err != nil {
		t.Fatalf("Attributes: %v", err)
	}
	fp, err := reg.Fingerprint(d)
	if err != nil {
		t.Fatal(err)
	}
	text, _ := fp.MarshalText()
	want := map[string]string{
		"backend":      jsondoc.Backend,
		"view-version": d.ViewVersion(),
		"fingerprint":  string(text),
	}
	if diff := cmp.Diff(want, attrs.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestRestoreErrors(t *testing.T) {
	ctx := context.Background()
	reg, bucket, archive := setup(t)

	_, err := archive.Restore(ctx, vectis.Handle{PartitionKey: "nowhere", ID: "x"})
	if !errors.Is(err, snapshot.ErrNotFound) {
		t.Errorf("Restore(missing) = %v, want ErrNotFound", err)
	}

	scheme := new(model.Scheme)
	_ = scheme.SetID("scheme-1")
	p, err := jsondoc.New(reg).Encode(scheme)
	if err != nil {
		t.Fatal(err)
	}
	h := vectis.Handle{PartitionKey: "scheme-1", ID: "scheme-1"}
	if err := bucket.WriteAll(ctx, snapshot.Key(h), p, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := archive.Restore(ctx, h); !errors.Is(err, vectis.ErrTypeMismatch) {
		t.Errorf("Restore(scheme document) = %v, want ErrTypeMismatch", err)
	}

	if err := bucket.WriteAll(ctx, snapshot.Key(vectis.Handle{PartitionKey: "p", ID: "bad"}), []byte("{"), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := archive.Restore(ctx, vectis.Handle{PartitionKey: "p", ID: "bad"}); !errors.Is(err, vectis.ErrMalformedWireData) {
		t.Errorf("Restore(malformed) = %v, want ErrMalformedWireData", err)
	}
}

func TestArchiveAllRestoreAll(t *testing.T) {
	ctx := context.Background()
	reg, bucket, archive := setup(t)

	p := vectis.NewProjection("test", vectis.NewReplayer(reg), nil)
	var want []string
	for i := range 20 {
		d := replay(t, reg, fmt.Sprintf("scheme-%02d", i))
		p.Seed(d)
		want = append(want, d.PartitionKey())
	}
	n, err := archive.ArchiveAll(ctx, p.All())
	if err != nil {
		t.Fatalf("ArchiveAll: %v", err)
	}
	if n != len(want) {
		t.Errorf("ArchiveAll() archived %d datasets, want %d", n, len(want))
	}

	// Not snapshots.
	_ = bucket.WriteAll(ctx, "README.txt", []byte("hello"), nil)
	_ = bucket.WriteAll(ctx, "a/b/c.json", []byte("{}"), nil)

	restored, err := archive.RestoreAll(ctx)
	if err != nil {
		t.Fatalf("RestoreAll: %v", err)
	}
	var got []string
	for _, d := range restored {
		got = append(got, d.PartitionKey())
		orig, _ := p.Find(d.PartitionKey())
		if diff := cmp.Diff(codectest.Describe(t, reg, orig), codectest.Describe(t, reg, d)); diff != "" {
			t.Errorf("RestoreAll() %s mismatch (-want +got):\n%s", d.PartitionKey(), diff)
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RestoreAll() partitions mismatch (-want +got):\n%s", diff)
	}
}

func TestMirror(t *testing.T) {
	ctx := context.Background()
	reg, bucket, archive := setup(t)
	p := vectis.NewProjection("test", vectis.NewReplayer(reg), nil)
	d := replay(t, reg, "scheme-1")
	p.Seed(d)
	mirror := archive.Mirror(p)

	member := vectis.EntityChanged{Dataset: d.Handle(), ObjectID: "scheme-1|loan"}
	if err := mirror(ctx, member); err != nil {
		t.Fatalf("mirror(member): %v", err)
	}
	if ok, _ := bucket.Exists(ctx, snapshot.Key(d.Handle())); ok {
		t.Error("member notification archived the dataset")
	}

	owner := vectis.EntityChanged{Dataset: d.Handle(), ObjectID: d.ID(), Discriminator: model.SchemeDiscriminator}
	if err := mirror(ctx, owner); err != nil {
		t.Fatalf("mirror(owner): %v", err)
	}
	if ok, _ := bucket.Exists(ctx, snapshot.Key(d.Handle())); ok {
		t.Error("owner notification archived the dataset")
	}

	unknown := vectis.EntityChanged{Dataset: vectis.Handle{PartitionKey: "other", ID: "other"}, ObjectID: "other", Discriminator: vectis.DatasetDiscriminator}
	if err := mirror(ctx, unknown); err != nil {
		t.Fatalf("mirror(unknown): %v", err)
	}

	dataset := vectis.EntityChanged{Dataset: d.Handle(), ObjectID: d.ID(), Discriminator: vectis.DatasetDiscriminator}
	if err := mirror(ctx, dataset); err != nil {
		t.Fatalf("mirror(dataset): %v", err)
	}
	if ok, err := bucket.Exists(ctx, snapshot.Key(d.Handle())); !ok || err != nil {
		t.Errorf("dataset notification did not archive the dataset: exists = %t, %v", ok, err)
	}
}
