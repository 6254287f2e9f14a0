package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/danielorbach/go-component"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"gocloud.dev/blob"
	"gocloud.dev/pubsub"

	// Drivers of the snapshot bucket URL.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	// Driver of in-process topics, for local runs.
	_ "gocloud.dev/pubsub/mempubsub"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/codec"
	"github.com/go-vectis/vectis/codec/jsondoc"
	"github.com/go-vectis/vectis/codec/jsonstream"
	"github.com/go-vectis/vectis/internal/config"
	"github.com/go-vectis/vectis/journal"
	"github.com/go-vectis/vectis/model"
	"github.com/go-vectis/vectis/neo4jstore"
	"github.com/go-vectis/vectis/snapshot"
)

func bootstrap(l *component.L, linker component.Linker, _ any) error {
	logger := component.Logger(l.Context())
	ctx := l.GraceContext()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	reg := model.NewRegistry()
	c := newCodec(cfg.Codec, reg)

	logger.Debug("Opening journal...", slog.String("path", cfg.JournalPath))
	j, err := journal.Open(ctx, cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	l.CleanupBackground(func(context.Context) error { return j.Close() })

	logger.Debug("Opening aspect topic...", slog.String("topic-name", changesAspect))
	changes, err := linker.LinkAspect(ctx, changesAspect)
	if err != nil {
		return fmt.Errorf("open aspect %q: %w", changesAspect, err)
	}
	l.CleanupContext(changes.Shutdown)

	p := vectis.NewProjection(cfg.Projection, vectis.NewReplayer(reg), changes)

	var mirrors []vectis.ChangeHandler
	var archive *snapshot.Archive
	if cfg.SnapshotBucketURL != "" {
		logger.Debug("Opening snapshot bucket...", slog.String("url", cfg.SnapshotBucketURL))
		bucket, err := blob.OpenBucket(ctx, cfg.SnapshotBucketURL)
		if err != nil {
			return fmt.Errorf("open snapshot bucket: %w", err)
		}
		l.CleanupBackground(func(context.Context) error { return bucket.Close() })
		archive = snapshot.New(bucket, reg, c)
		mirrors = append(mirrors, archive.Mirror(p))
	}
	if cfg.Neo4jURI != "" {
		store, err := openStore(l, cfg, reg, c)
		if err != nil {
			return err
		}
		mirrors = append(mirrors, store.Mirror(p))
	}

	if err := catchUp(ctx, j, archive, p); err != nil {
		return err
	}
	if archive != nil {
		// A last snapshot of everything saves replaying the journal at the next
		// start-up.
		l.CleanupContext(func(ctx context.Context) error {
			n, err := archive.ArchiveAll(ctx, p.All())
			logger.Info("Archived snapshots", slog.Int("count", n))
			return err
		})
	}

	if len(mirrors) > 0 {
		logger.Debug("Opening interest subscription...", slog.String("topic-name", changesAspect))
		notifications, err := linker.LinkInterest(ctx, changesAspect)
		if err != nil {
			return fmt.Errorf("open interest %q: %w", changesAspect, err)
		}
		l.CleanupBackground(notifications.Shutdown)
		l.Fork("mirror", vectis.StreamChanges(notifications, fanOut(mirrors)))
	}

	logger.Debug("Opening interest subscription...", slog.String("topic-name", eventsInterest))
	events, err := linker.LinkInterest(ctx, eventsInterest)
	if err != nil {
		return fmt.Errorf("open interest %q: %w", eventsInterest, err)
	}
	l.CleanupBackground(events.Shutdown)
	logger.Info("Interest subscriptions opened successfully")

	l.Fork("project", track(j, p, events))
	return nil
}

func newCodec(backend string, reg *vectis.Registry) codec.Codec {
	if backend == jsondoc.Backend {
		return jsondoc.New(reg)
	}
	return jsonstream.New(reg)
}

func openStore(l *component.L, cfg config.Daemon, reg *vectis.Registry, c codec.Codec) (*neo4jstore.Store, error) {
	ctx := l.GraceContext()
	auth := neo4j.NoAuth()
	if cfg.Neo4jUser != "" {
		auth = neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, auth)
	if err != nil {
		return nil, fmt.Errorf("open neo4j driver: %w", err)
	}
	l.CleanupBackground(driver.Close)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	if err := neo4jstore.BootstrapDatabase(ctx, driver, cfg.Neo4jDatabase, reg); err != nil {
		return nil, fmt.Errorf("bootstrap neo4j database: %w", err)
	}
	return neo4jstore.New(driver, cfg.Neo4jDatabase, reg, c), nil
}

// catchUp seeds p with the archived snapshots, then replays the journal from
// the last event of each snapshot. Partitions without a snapshot are replayed
// from the start.
func catchUp(ctx context.Context, j *journal.Journal, archive *snapshot.Archive, p *vectis.Projection) error {
	logger := component.Logger(ctx)
	after := make(map[string]int64)
	if archive != nil {
		datasets, err := archive.RestoreAll(ctx)
		if err != nil {
			return fmt.Errorf("restore snapshots: %w", err)
		}
		for _, d := range datasets {
			seq, err := j.Seq(ctx, d.EventID())
			if err != nil {
				// The snapshot is ahead of the journal; rebuild the partition instead.
				logger.Warn("Ignoring snapshot of unknown event", slog.String("partition-key", d.PartitionKey()), slog.Any("error", err))
				continue
			}
			p.Seed(d)
			after[d.PartitionKey()] = seq
		}
	}

	partitions, err := j.Partitions(ctx)
	if err != nil {
		return err
	}
	var total int
	for _, pk := range partitions {
		n, err := j.Replay(ctx, pk, after[pk], p.Handle)
		if err != nil {
			return fmt.Errorf("catch up %q: %w", pk, err)
		}
		total += n
	}
	logger.Info("Caught up with the journal", slog.Int("partitions", len(partitions)), slog.Int("events", total))
	return nil
}

// track returns the procedure journaling and projecting the received events.
func track(j *journal.Journal, p *vectis.Projection, events *pubsub.Subscription) component.Proc {
	return vectis.NewEventSource(events).Stream(j.Record(p.Handle))
}

// fanOut passes each notification to every handler in turn.
func fanOut(handlers []vectis.ChangeHandler) vectis.ChangeHandler {
	return func(ctx context.Context, c vectis.EntityChanged) error {
		for _, h := range handlers {
			if err := h(ctx, c); err != nil {
				return err
			}
		}
		return nil
	}
}
