package vectis

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/pubsub"
	"golang.org/x/sync/errgroup"
)

// EntityChanged notifies subscribers that replaying an event produced a new
// state of an entity. Datasets are entities too: every applied event yields
// one notification for the dataset and, when the event addresses its owner or
// an item, one for that member.
//
// A dataset seeded by creating its owner shares the owner's id, so ObjectID
// alone does not tell the two notifications apart; use IsDataset.
type EntityChanged struct {
	Dataset       Handle
	ObjectID      string
	Discriminator string
	EventID       string
	ViewVersion   string
	Deleted       bool
}

// IsDataset reports whether c is about the dataset itself rather than one of
// its members.
func (c EntityChanged) IsDataset() bool {
	return c.ObjectID == c.Dataset.ID && c.Discriminator == DatasetDiscriminator
}

// A Projection maintains the latest dataset snapshot of every partition by
// applying events to them. It implements Datasets.
//
// Readers hold on to the snapshots they were given while newer ones replace
// them; a Projection is safe for concurrent use.
type Projection struct {
	name     string
	replayer *Replayer
	changes  *pubsub.Topic // Optional; receives gob-encoded EntityChanged.

	mu sync.Mutex
	m  map[string]*Dataset // Keyed by partition key.
}

// NewProjection returns an empty projection. The name labels its telemetry.
// If changes is non-nil, Handle publishes an EntityChanged notification to it
// for every applied event.
func NewProjection(name string, r *Replayer, changes *pubsub.Topic) *Projection {
	return &Projection{
		name:     name,
		replayer: r,
		changes:  changes,
		m:        make(map[string]*Dataset),
	}
}

// Seed installs d as the latest snapshot of its partition, typically after
// loading it from durable storage at start-up.
func (p *Projection) Seed(d *Dataset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[d.PartitionKey()] = d
}

// Find returns the latest snapshot of the given partition.
func (p *Projection) Find(partitionKey string) (*Dataset, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.m[partitionKey]
	return d, ok
}

// Resolve implements Datasets. A handle with an empty ID matches any dataset
// of its partition.
func (p *Projection) Resolve(h Handle) (*Dataset, bool) {
	d, ok := p.Find(h.PartitionKey)
	if !ok || (h.ID != "" && h.ID != d.ID()) {
		return nil, false
	}
	return d, true
}

// All returns an iterator over the latest snapshots, ordered by partition key.
// It iterates a copy, so it may run concurrently with Apply.
func (p *Projection) All() iter.Seq2[string, *Dataset] {
	p.mu.Lock()
	m := maps.Clone(p.m)
	p.mu.Unlock()
	return func(yield func(string, *Dataset) bool) {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}

func partitionOf(h EventHeader) string {
	if h.PartitionKey != "" {
		return h.PartitionKey
	}
	return h.ObjectID
}

// Apply replays ev onto the snapshot of its partition and installs the result.
// Errors of the replay engine leave the projection unchanged.
func (p *Projection) Apply(ctx context.Context, ev Event) (*Dataset, error) {
	h := ev.Header()
	pk := partitionOf(h)

	p.mu.Lock()
	defer p.mu.Unlock()
	next, err := p.replayer.ApplyDataset(p.m[pk], ev)
	if err != nil {
		return nil, err
	}
	p.m[pk] = next
	return next, nil
}

// Handle is an EventHandler applying events to the projection. Events rejected
// by the replay engine are logged and dropped, because replaying them again
// cannot succeed. Only a failure to publish change notifications is returned.
func (p *Projection) Handle(ctx context.Context, ev Event) (err error) {
	h := ev.Header()
	ctx, span := tracer.Start(ctx, "Projection.Handle", trace.WithAttributes(
		attribute.String("event.id", h.ID),
		attribute.String("event.kind", string(ev.Kind())),
		attribute.String("object.id", h.ObjectID),
	))
	defer span.End()
	logger := component.Logger(ctx).With(
		slog.String("projection", p.name),
		slog.String("event-id", h.ID),
		slog.String("object-id", h.ObjectID),
	)

	start := time.Now()
	d, err := p.Apply(ctx, ev)
	if err != nil {
		measureReplay(ctx, p.name, ev.Kind(), false, time.Since(start))
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("Rejected event, skipping", slog.Any("error", err))
		return nil
	}
	defer func() {
		measureReplay(ctx, p.name, ev.Kind(), err == nil, time.Since(start))
	}()
	logger.Debug("Applied event", slog.String("view-version", d.ViewVersion()))

	if p.changes == nil {
		return nil
	}
	if err := p.notify(ctx, d, h.ObjectID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// notify publishes the changes caused by an event on the given object of d.
// The object is resolved as ApplyDataset addresses it: owner first, then the
// dataset itself, then its items.
func (p *Projection) notify(ctx context.Context, d *Dataset, objectID string) error {
	changes := []EntityChanged{changeOf(d, d)}
	var member Entity
	switch owner := d.Owner(); {
	case owner != nil && owner.Core().ID() == objectID:
		member = owner
	case objectID == d.ID():
	default:
		member, _ = d.Item(objectID)
	}
	if member != nil {
		changes = append(changes, changeOf(d, member))
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, c := range changes {
		g.Go(func() error {
			var body bytes.Buffer
			if err := gob.NewEncoder(&body).Encode(c); err != nil {
				return fmt.Errorf("encode gob: %w", err)
			}
			return p.changes.Send(ctx, &pubsub.Message{
				Body: body.Bytes(),
				Metadata: map[string]string{
					"partition.key": c.Dataset.PartitionKey,
					"object.id":     c.ObjectID,
				},
			})
		})
	}
	return g.Wait()
}

func changeOf(d *Dataset, e Entity) EntityChanged {
	b := e.Core()
	return EntityChanged{
		Dataset:       d.Handle(),
		ObjectID:      b.ID(),
		Discriminator: e.Discriminator(),
		EventID:       b.EventID(),
		ViewVersion:   b.ViewVersion(),
		Deleted:       b.Deleted(),
	}
}

// Track returns a component.Proc feeding the projection from a subscription of
// gob-encoded events.
func (p *Projection) Track(source *pubsub.Subscription) component.Proc {
	return NewEventSource(source).Stream(p.Handle)
}

// DecodeEntityChanged decodes a notification published by a Projection.
func DecodeEntityChanged(body []byte) (EntityChanged, error) {
	var c EntityChanged
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&c); err != nil {
		return EntityChanged{}, fmt.Errorf("decode gob: %w", err)
	}
	if c.ObjectID == "" {
		return EntityChanged{}, errors.New("decode gob: notification without object id")
	}
	return c, nil
}
