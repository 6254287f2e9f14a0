/*
Package journal is a durable, append-only log of vectis events on SQLite.

Events are stored in arrival order, each under a journal-assigned sequence
number, and can be listed or replayed per partition. The event body is the gob
envelope produced by vectis.EncodeEvent; the header fields are duplicated into
columns for querying.

An event id can be appended only once. Appending it again fails with
ErrDuplicateEvent, which makes redelivered messages easy to recognise.
*/
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/danielorbach/go-component"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/go-vectis/vectis"
)

var tracer = otel.Tracer("github.com/go-vectis/vectis/journal")

// ErrDuplicateEvent is returned by Append for an event id already in the
// journal.
var ErrDuplicateEvent = errors.New("journal: duplicate event")

// ErrUnknownEvent is returned by Seq for an event id missing from the journal.
var ErrUnknownEvent = errors.New("journal: unknown event")

// DefaultPageSize is the page size Replay reads the journal with.
const DefaultPageSize = 256

// Record is an event together with its position in the journal.
type Record struct {
	Seq   int64
	Event vectis.Event
}

// Journal is an event log stored in a SQLite database. It is safe for
// concurrent use.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path and applies
// pending migrations.
func Open(ctx context.Context, path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// partitionOf returns the partition an event is journaled under. Creates of
// partition roots may leave the partition key empty; their object id is the
// partition.
func partitionOf(h vectis.EventHeader) string {
	if h.PartitionKey != "" {
		return h.PartitionKey
	}
	return h.ObjectID
}

// Append stores ev at the end of the journal and returns its sequence number.
// The previous event id of the header is recorded as given; the journal does
// not check it.
func (j *Journal) Append(ctx context.Context, ev vectis.Event) (seq int64, err error) {
	h := ev.Header()
	ctx, span := tracer.Start(ctx, "Journal.Append", trace.WithAttributes(
		attribute.String("event.id", h.ID),
		attribute.String("event.kind", string(ev.Kind())),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if h.ID == "" {
		return 0, fmt.Errorf("append: event id is required")
	}
	body, err := vectis.EncodeEvent(ev)
	if err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}
	res, err := j.db.ExecContext(ctx, `
INSERT INTO events (
	event_id,
	partition_key,
	object_id,
	kind,
	previous_event_id,
	user_id,
	occurred_at,
	body
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		h.ID,
		partitionOf(h),
		h.ObjectID,
		string(ev.Kind()),
		h.PreviousEventID,
		h.UserID,
		h.Timestamp.UTC().UnixMilli(),
		body,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("append %q: %w", h.ID, ErrDuplicateEvent)
		}
		return 0, fmt.Errorf("append %q: %w", h.ID, err)
	}
	seq, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append %q: last insert id: %w", h.ID, err)
	}
	return seq, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

// List returns up to limit records of the given partition whose sequence
// number is greater than after, in journal order. An empty partition key lists
// every partition.
func (j *Journal) List(ctx context.Context, partitionKey string, after int64, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("list: limit must be greater than zero")
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT seq, body
FROM events
WHERE seq > ? AND (? = '' OR partition_key = ?)
ORDER BY seq
LIMIT ?
`, after, partitionKey, partitionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			r    Record
			body []byte
		)
		if err := rows.Scan(&r.Seq, &body); err != nil {
			return nil, fmt.Errorf("list: scan: %w", err)
		}
		r.Event, err = vectis.DecodeEvent(body)
		if err != nil {
			return nil, fmt.Errorf("list: event #%d: %w", r.Seq, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return records, nil
}

// Partitions returns the distinct partition keys of the journal in lexical
// order.
func (j *Journal) Partitions(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT DISTINCT partition_key FROM events ORDER BY partition_key`)
	if err != nil {
		return nil, fmt.Errorf("partitions: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("partitions: scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("partitions: %w", err)
	}
	return keys, nil
}

// Replay passes the events of the given partition (of every partition, for an
// empty key) whose sequence number is greater than after to h, in journal
// order, stopping at the first error. It returns the number of events handled.
func (j *Journal) Replay(ctx context.Context, partitionKey string, after int64, h vectis.EventHandler) (int, error) {
	var n int
	for {
		page, err := j.List(ctx, partitionKey, after, DefaultPageSize)
		if err != nil {
			return n, fmt.Errorf("replay: %w", err)
		}
		for _, r := range page {
			if err := h(ctx, r.Event); err != nil {
				return n, fmt.Errorf("replay event #%d: %w", r.Seq, err)
			}
			n++
			after = r.Seq
		}
		if len(page) < DefaultPageSize {
			return n, nil
		}
	}
}

// Seq returns the sequence number of the event with the given id, or fails
// with ErrUnknownEvent.
func (j *Journal) Seq(ctx context.Context, eventID string) (int64, error) {
	var seq int64
	err := j.db.QueryRowContext(ctx, `SELECT seq FROM events WHERE event_id = ?`, eventID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("seq %q: %w", eventID, ErrUnknownEvent)
	} else if err != nil {
		return 0, fmt.Errorf("seq %q: %w", eventID, err)
	}
	return seq, nil
}

// Record returns an EventHandler that appends each event to the journal before
// passing it to next. Events already journaled are redeliveries; they are
// logged and skipped without reaching next.
func (j *Journal) Record(next vectis.EventHandler) vectis.EventHandler {
	return func(ctx context.Context, ev vectis.Event) error {
		seq, err := j.Append(ctx, ev)
		if errors.Is(err, ErrDuplicateEvent) {
			component.Logger(ctx).Info("Skipping redelivered event", slog.String("event-id", ev.Header().ID))
			return nil
		}
		if err != nil {
			return err
		}
		component.Logger(ctx).Debug("Journaled event",
			slog.String("event-id", ev.Header().ID),
			slog.Int64("seq", seq),
		)
		return next(ctx, ev)
	}
}
