// Package eventstore records the timeline of each tone stream: encoded
// frames, rendered audio, encode failures, and terminal status.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tonewirelabs/tonewire-core/internal/config"
)

// Well-known event types appended by the pipeline and playback services.
const (
	TypeFrameEncoded = "frame.encoded"
	TypeFramePlayed  = "frame.played"
	TypeEncodeError  = "encode.error"
	TypeStreamDone   = "stream.done"
)

// Event is one recorded timeline entry for a stream.
type Event struct {
	ID        int64
	StreamID  string
	Type      string
	Scheme    string
	Payload   []byte
	CreatedAt time.Time
}

// Store wraps a SQLite-backed stream timeline.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the event store according to config. In ephemeral mode
// no database is opened and every call is a no-op.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS streams (
    stream_id TEXT PRIMARY KEY,
    scheme TEXT,
    prompt TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS stream_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    stream_id TEXT NOT NULL,
    event_type TEXT,
    scheme TEXT,
    payload BLOB,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(stream_id) REFERENCES streams(stream_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_stream_events_created ON stream_events(stream_id, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendStream ensures a stream row exists, updating scheme and prompt on
// replays of the same stream id.
func (s *Store) AppendStream(ctx context.Context, streamID, scheme, prompt string) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO streams(stream_id, scheme, prompt, created_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(stream_id) DO UPDATE SET scheme=excluded.scheme, prompt=excluded.prompt`,
		streamID, scheme, prompt, s.clock().UTC())
	return err
}

// AppendEvent writes an event into the store.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stream_events(stream_id, event_type, scheme, payload, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		evt.StreamID, evt.Type, evt.Scheme, evt.Payload, evt.CreatedAt)
	return err
}

// ListStreamEvents retrieves up to limit events for a stream ordered
// ascending by time.
func (s *Store) ListStreamEvents(ctx context.Context, streamID string, limit int) ([]Event, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stream_id, event_type, scheme, payload, created_at
		 FROM stream_events WHERE stream_id = ? ORDER BY created_at ASC LIMIT ?`, streamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created string
		if err := rows.Scan(&e.ID, &e.StreamID, &e.Type, &e.Scheme, &e.Payload, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies the configured retention: drop streams older than
// retention_days and keep at most max_streams most recent streams. Events
// follow their stream via the cascading foreign key.
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM streams WHERE created_at < ?`, cutoff); err != nil {
			return fmt.Errorf("prune by age: %w", err)
		}
	}

	if s.cfg.MaxStreams > 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM streams WHERE stream_id NOT IN (
			   SELECT stream_id FROM streams ORDER BY created_at DESC LIMIT ?
			 )`, s.cfg.MaxStreams); err != nil {
			return fmt.Errorf("prune by count: %w", err)
		}
	}

	return nil
}
