package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/danielorbach/go-component"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/codec"
)

// ErrNotFound is returned when no document has the requested handle.
var ErrNotFound = errors.New("neo4jstore: document not found")

// Store reads and writes entity documents in a single Neo4j database. Each call
// runs in its own session and transaction.
//
// A Store is safe for concurrent use.
type Store struct {
	driver   neo4j.DriverWithContext // Connection to the neo4j server/cluster.
	database string                  // Target database, prepared by BootstrapDatabase.
	reg      *vectis.Registry
	codec    codec.Codec
}

// New returns a Store writing documents encoded by c to the given database.
func New(driver neo4j.DriverWithContext, database string, reg *vectis.Registry, c codec.Codec) *Store {
	return &Store{driver: driver, database: database, reg: reg, codec: c}
}

// A document is an entity prepared for writing.
type document struct {
	label       string
	discrim     string
	handle      vectis.Handle
	viewVersion string
	deleted     bool
	fingerprint string
	body        string
}

func (s *Store) prepare(e vectis.Entity) (document, error) {
	body, err := s.codec.Encode(e)
	if err != nil {
		return document{}, fmt.Errorf("encode %q: %w", e.Core().ID(), err)
	}
	fp, err := s.reg.Fingerprint(e)
	if err != nil {
		return document{}, fmt.Errorf("fingerprint %q: %w", e.Core().ID(), err)
	}
	text, err := fp.MarshalText()
	if err != nil {
		return document{}, fmt.Errorf("fingerprint %q: %w", e.Core().ID(), err)
	}
	b := e.Core()
	return document{
		label:       Label(e.Discriminator()),
		discrim:     e.Discriminator(),
		handle:      b.Handle(),
		viewVersion: b.ViewVersion(),
		deleted:     b.Deleted(),
		fingerprint: string(text),
		body:        string(body),
	}, nil
}

// prepareAll encodes the given entities concurrently, preserving their order.
func (s *Store) prepareAll(ctx context.Context, entities []vectis.Entity) ([]document, error) {
	docs := make([]document, len(entities))
	g, _ := errgroup.WithContext(ctx)
	for i, e := range entities {
		g.Go(func() (err error) {
			docs[i], err = s.prepare(e)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// PutResult reports the outcome of a write.
type PutResult struct {
	Written   int // Documents created or modified.
	Unchanged int // Documents that already held the same fingerprint.
}

func (r *PutResult) count(changed bool) {
	if changed {
		r.Written++
	} else {
		r.Unchanged++
	}
}

// Put writes the documents of the given entities in a single transaction.
// Nested entities are written as part of their parent's document only.
func (s *Store) Put(ctx context.Context, entities ...vectis.Entity) (PutResult, error) {
	ctx, span := tracer.Start(ctx, "Put", trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
		attribute.Int("documents", len(entities)),
	))
	defer span.End()

	docs, err := s.prepareAll(ctx, entities)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return PutResult{}, err
	}
	res, err := s.write(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) (PutResult, error) {
		var res PutResult
		for _, doc := range docs {
			changed, err := mergeDocument(ctx, tx, doc)
			if err != nil {
				return PutResult{}, err
			}
			res.count(changed)
		}
		return res, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return PutResult{}, err
	}
	s.measure(ctx, res)
	return res, nil
}

// PutDataset writes the documents of d, its owner and its items in a single
// transaction, and makes the dataset node hold exactly the owner and the
// current items. Documents of removed items are kept, but no longer held.
func (s *Store) PutDataset(ctx context.Context, d *vectis.Dataset) (PutResult, error) {
	ctx, span := tracer.Start(ctx, "PutDataset", trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
		attribute.String("dataset.id", d.ID()),
		attribute.Int("dataset.items", d.Len()),
	))
	defer span.End()

	members := d.Items()
	if d.Owner() != nil {
		members = append([]vectis.Entity{d.Owner()}, members...)
	}
	docs, err := s.prepareAll(ctx, append([]vectis.Entity{d}, members...))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return PutResult{}, err
	}
	res, err := s.write(ctx, func(ctx context.Context, tx neo4j.ManagedTransaction) (PutResult, error) {
		var res PutResult
		for _, doc := range docs {
			changed, err := mergeDocument(ctx, tx, doc)
			if err != nil {
				return PutResult{}, err
			}
			res.count(changed)
		}
		if err := hold(ctx, tx, docs[0], docs[1:]); err != nil {
			return PutResult{}, err
		}
		return res, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return PutResult{}, err
	}
	s.measure(ctx, res)
	return res, nil
}

func (s *Store) measure(ctx context.Context, res PutResult) {
	db := attribute.String("neo4j.database", s.database)
	documentsWritten.Add(ctx, int64(res.Written), metric.WithAttributes(db, attribute.String("outcome", "written")))
	documentsWritten.Add(ctx, int64(res.Unchanged), metric.WithAttributes(db, attribute.String("outcome", "unchanged")))
}

// write runs fn in a write transaction of a fresh session.
func (s *Store) write(ctx context.Context, fn func(context.Context, neo4j.ManagedTransaction) (PutResult, error)) (PutResult, error) {
	logger := component.Logger(ctx).With("neo4j.database", s.database)
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer func() {
		if err := session.Close(ctx); err != nil {
			logger.Error("Failed to close session", "error", err, "mode", "write")
		}
	}()

	// Managed transactions are retried by the driver on transient failures, so
	// fn must not have side effects outside tx.
	v, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return fn(ctx, tx)
	})
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return PutResult{}, err
	} else if errors.Is(err, errPropertyNotFound) || errors.As(err, &unexpectedPropertyTypeError{}) {
		logger.Error("A Cypher query was modified without care", "error", err)
		panic(fmt.Errorf("seek developer attention: neo4j cypher query: %w", err))
	} else if err != nil {
		return PutResult{}, fmt.Errorf("neo4j execute: %w", err)
	}
	res := v.(PutResult)
	logger.Debug("Wrote documents", "written", res.Written, "unchanged", res.Unchanged)
	return res, nil
}

// mergeDocument creates or updates the node of doc and reports whether the node
// was modified.
func mergeDocument(ctx context.Context, tx neo4j.ManagedTransaction, doc document) (bool, error) {
	query := `
		MERGE (n:` + doc.label + ` {_pk: $pk, _id: $id})
		ON CREATE SET n:` + documentLabel + `, n._created_at = datetime()
		WITH n, coalesce(n._fingerprint, '') <> $fingerprint AS changed
		FOREACH (_ IN CASE WHEN changed THEN [1] ELSE [] END |
			SET n._discriminator = $discriminator,
				n._fingerprint = $fingerprint,
				n._view_version = $view_version,
				n._deleted = $deleted,
				n._body = $body,
				n._last_modified = datetime()
		)
		RETURN changed
	`
	result, err := tx.Run(ctx, query, map[string]any{
		"pk":            doc.handle.PartitionKey,
		"id":            doc.handle.ID,
		"discriminator": doc.discrim,
		"fingerprint":   doc.fingerprint,
		"view_version":  doc.viewVersion,
		"deleted":       doc.deleted,
		"body":          doc.body,
	})
	if err != nil {
		return false, fmt.Errorf("merge %s %q: run cypher: %w", doc.label, doc.handle.ID, err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return false, fmt.Errorf("merge %s %q: query single result: %w", doc.label, doc.handle.ID, err)
	}
	return getRecordProperty[bool](record, "changed")
}

// hold makes the dataset node hold exactly the given member documents.
func hold(ctx context.Context, tx neo4j.ManagedTransaction, dataset document, members []document) error {
	refs := make([]map[string]any, len(members))
	ids := make([]string, len(members))
	for i, m := range members {
		refs[i] = map[string]any{"label": m.label, "id": m.handle.ID}
		ids[i] = m.handle.ID
	}
	params := map[string]any{
		"pk":      dataset.handle.PartitionKey,
		"id":      dataset.handle.ID,
		"members": refs,
		"ids":     ids,
	}
	// Stale memberships first: the owner shares the dataset's id, so members are
	// told apart by label as well.
	_, err := tx.Run(ctx, `
		MATCH (d:`+dataset.label+` {_pk: $pk, _id: $id})-[r:HOLDS]->(m)
		WHERE NOT any(x IN $members WHERE x.id = m._id AND x.label IN labels(m))
		DELETE r
	`, params)
	if err != nil {
		return fmt.Errorf("hold %q: release stale members: %w", dataset.handle.ID, err)
	}
	result, err := tx.Run(ctx, `
		MATCH (d:`+dataset.label+` {_pk: $pk, _id: $id})
		UNWIND $members AS x
		MATCH (m:`+documentLabel+` {_pk: $pk, _id: x.id})
		WHERE x.label IN labels(m)
		MERGE (d)-[:HOLDS]->(m)
		RETURN count(m) AS held
	`, params)
	if err != nil {
		return fmt.Errorf("hold %q: run cypher: %w", dataset.handle.ID, err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return fmt.Errorf("hold %q: query single result: %w", dataset.handle.ID, err)
	}
	held, err := getRecordProperty[int64](record, "held")
	if err != nil {
		return err
	}
	if int(held) != len(members) {
		return fmt.Errorf("hold %q: held %d of %d members", dataset.handle.ID, held, len(members))
	}
	return nil
}

// Load reads and decodes the document of the entity with the given
// discriminator and handle. The entity is frozen.
func (s *Store) Load(ctx context.Context, discriminator string, h vectis.Handle) (e vectis.Entity, err error) {
	ctx, span := tracer.Start(ctx, "Load", trace.WithAttributes(
		attribute.String("neo4j.database", s.database),
		attribute.String("discriminator", discriminator),
		attribute.String("id", h.ID),
	))
	defer func() {
		if err != nil && !errors.Is(err, ErrNotFound) {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer func() {
		if err := session.Close(ctx); err != nil {
			component.Logger(ctx).Error("Failed to close session", "error", err, "mode", "read")
		}
	}()

	body, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (string, error) {
		result, err := tx.Run(ctx, `
			MATCH (n:`+Label(discriminator)+` {_pk: $pk, _id: $id})
			RETURN n._body AS body
		`, map[string]any{"pk": h.PartitionKey, "id": h.ID})
		if err != nil {
			return "", fmt.Errorf("run cypher: %w", err)
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return "", fmt.Errorf("collect: %w", err)
		}
		if len(records) == 0 {
			return "", ErrNotFound
		}
		return getRecordProperty[string](records[0], "body")
	})
	if err != nil {
		return nil, fmt.Errorf("load %s %q: %w", discriminator, h.ID, err)
	}
	return s.codec.Decode([]byte(body))
}

// LoadDataset reads the dataset with the given handle.
func (s *Store) LoadDataset(ctx context.Context, h vectis.Handle) (*vectis.Dataset, error) {
	e, err := s.Load(ctx, vectis.DatasetDiscriminator, h)
	if err != nil {
		return nil, err
	}
	d, ok := e.(*vectis.Dataset)
	if !ok {
		return nil, vectis.Errorf(vectis.KindTypeMismatch, "document %q holds a %q", h.ID, e.Discriminator())
	}
	return d, nil
}

// Held returns the handles of the documents held by the dataset with the given
// handle, ordered by id.
func (s *Store) Held(ctx context.Context, h vectis.Handle) ([]vectis.Handle, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer func() { _ = session.Close(ctx) }()

	return neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]vectis.Handle, error) {
		result, err := tx.Run(ctx, `
			MATCH (:`+Label(vectis.DatasetDiscriminator)+` {_pk: $pk, _id: $id})-[:HOLDS]->(m)
			RETURN m._pk AS pk, m._id AS id
			ORDER BY m._id, m._discriminator
		`, map[string]any{"pk": h.PartitionKey, "id": h.ID})
		if err != nil {
			return nil, fmt.Errorf("held %q: run cypher: %w", h.ID, err)
		}
		var out []vectis.Handle
		for result.Next(ctx) {
			pk, err := getRecordProperty[string](result.Record(), "pk")
			if err != nil {
				return nil, err
			}
			id, err := getRecordProperty[string](result.Record(), "id")
			if err != nil {
				return nil, err
			}
			out = append(out, vectis.Handle{PartitionKey: pk, ID: id})
		}
		return out, result.Err()
	})
}

// A errPropertyNotFound occurs when a record lacks a column a query returns.
//
// When encountering this error, it most likely occurs when changing a Cypher
// query without modifying the surrounding code properly. Expect a panic
// eventually.
var errPropertyNotFound = errors.New("property not found")

// An unexpectedPropertyTypeError occurs when a column of a record has a runtime
// type that is different from the expected type.
type unexpectedPropertyTypeError struct {
	Type reflect.Type // Effective type encountered at runtime.
}

func (e unexpectedPropertyTypeError) Error() string {
	return "unexpected property type: " + e.Type.String()
}

type recordProperty interface {
	bool | int64 | string
}

func getRecordProperty[T recordProperty](record *neo4j.Record, key string) (value T, err error) {
	prop, exists := record.Get(key)
	if !exists {
		return value, errPropertyNotFound
	}
	v, ok := prop.(T)
	if !ok {
		return value, unexpectedPropertyTypeError{Type: reflect.TypeOf(prop)}
	}
	return v, nil
}

// Mirror returns a ChangeHandler writing the dataset named by every
// dataset-level notification, as resolved through ds. Notifications about
// members, and about datasets ds no longer knows, are ignored.
func (s *Store) Mirror(ds vectis.Datasets) vectis.ChangeHandler {
	return func(ctx context.Context, c vectis.EntityChanged) error {
		if !c.IsDataset() {
			return nil
		}
		d, ok := ds.Resolve(c.Dataset)
		if !ok {
			component.Logger(ctx).Warn("Dataset of notification is unknown, skipping",
				"neo4j.database", s.database,
				"dataset-id", c.Dataset.ID,
			)
			return nil
		}
		_, err := s.PutDataset(ctx, d)
		return err
	}
}
