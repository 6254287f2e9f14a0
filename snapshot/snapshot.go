// Package snapshot archives dataset snapshots to a gocloud.dev/blob bucket, so
// that a projection can be seeded at start-up instead of replaying the whole
// journal.
//
// Each dataset is stored as one object, encoded by a codec.Codec, under a key
// derived from its handle (see Key). Archiving a dataset replaces the previous
// snapshot of the same handle.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
	"golang.org/x/sync/errgroup"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/codec"
)

var tracer = otel.Tracer("github.com/go-vectis/vectis/snapshot")

// ErrNotFound is returned by Restore when no snapshot exists for a handle.
var ErrNotFound = errors.New("snapshot: not found")

// Concurrency bounds the number of objects ArchiveAll and RestoreAll transfer at
// once.
const Concurrency = 8

const extension = ".json"

// Key returns the object key of the snapshot of the dataset with handle h.
func Key(h vectis.Handle) string {
	return url.PathEscape(h.PartitionKey) + "/" + url.PathEscape(h.ID) + extension
}

// Archive stores dataset snapshots in a bucket. It does not own the bucket.
type Archive struct {
	bucket *blob.Bucket
	reg    *vectis.Registry
	codec  codec.Codec
}

// New returns an Archive writing to bucket with c.
func New(bucket *blob.Bucket, reg *vectis.Registry, c codec.Codec) *Archive {
	return &Archive{bucket: bucket, reg: reg, codec: c}
}

// Archive writes the snapshot of d.
func (a *Archive) Archive(ctx context.Context, d *vectis.Dataset) (err error) {
	key := Key(d.Handle())
	ctx, span := tracer.Start(ctx, "Archive", trace.WithAttributes(
		attribute.String("blob.key", key),
		attribute.String("dataset.view_version", d.ViewVersion()),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p, err := a.codec.Encode(d)
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	fp, err := a.reg.Fingerprint(d)
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	fpText, err := fp.MarshalText()
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	err = a.bucket.WriteAll(ctx, key, p, &blob.WriterOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"backend":      a.codec.Backend(),
			"view-version": d.ViewVersion(),
			"fingerprint":  string(fpText),
		},
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	return nil
}

// Restore reads the snapshot of the dataset with handle h. The dataset is
// frozen.
func (a *Archive) Restore(ctx context.Context, h vectis.Handle) (*vectis.Dataset, error) {
	return a.restore(ctx, Key(h))
}

func (a *Archive) restore(ctx context.Context, key string) (*vectis.Dataset, error) {
	p, err := a.bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, fmt.Errorf("restore %s: %w", key, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("restore %s: %w", key, err)
	}
	e, err := a.codec.Decode(p)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", key, err)
	}
	d, ok := e.(*vectis.Dataset)
	if !ok {
		return nil, vectis.Errorf(vectis.KindTypeMismatch, "restore %s: snapshot holds a %q", key, e.Discriminator())
	}
	return d, nil
}

// ArchiveAll archives every dataset of all, for example Projection.All. It
// returns the number of datasets archived before the first failure.
func (a *Archive) ArchiveAll(ctx context.Context, all iter.Seq2[string, *vectis.Dataset]) (int, error) {
	var (
		mu sync.Mutex
		n  int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(Concurrency)
	for _, d := range all {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := a.Archive(ctx, d); err != nil {
				return err
			}
			mu.Lock()
			n++
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return n, err
}

// RestoreAll reads every snapshot of the bucket, ordered by partition key and
// id. Objects that are not snapshots are ignored.
func (a *Archive) RestoreAll(ctx context.Context) ([]*vectis.Dataset, error) {
	var keys []string
	it := a.bucket.List(nil)
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		if !obj.IsDir && path.Ext(obj.Key) == extension && strings.Count(obj.Key, "/") == 1 {
			keys = append(keys, obj.Key)
		}
	}

	datasets := make([]*vectis.Dataset, len(keys))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(Concurrency)
	for i, key := range keys {
		g.Go(func() (err error) {
			datasets[i], err = a.restore(ctx, key)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(datasets, func(x, y *vectis.Dataset) int {
		if c := strings.Compare(x.PartitionKey(), y.PartitionKey()); c != 0 {
			return c
		}
		return strings.Compare(x.ID(), y.ID())
	})
	component.Logger(ctx).Debug("Restored snapshots", "count", len(datasets))
	return datasets, nil
}

// Mirror returns a ChangeHandler archiving the dataset named by every
// dataset-level notification, as resolved through ds. Notifications about
// members, and about datasets ds no longer knows, are ignored.
func (a *Archive) Mirror(ds vectis.Datasets) vectis.ChangeHandler {
	return func(ctx context.Context, c vectis.EntityChanged) error {
		if !c.IsDataset() {
			return nil
		}
		d, ok := ds.Resolve(c.Dataset)
		if !ok {
			component.Logger(ctx).Warn("Dataset of notification is unknown, skipping",
				"partition-key", c.Dataset.PartitionKey,
				"dataset-id", c.Dataset.ID,
			)
			return nil
		}
		return a.Archive(ctx, d)
	}
}
