package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/tonewirelabs/tonewire-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.AppendEvent(ctx, Event{StreamID: "s", Type: TypeFrameEncoded}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
	events, err := es.ListStreamEvents(ctx, "s", 10)
	if err != nil || events != nil {
		t.Fatalf("ephemeral store must not record, got %v, %v", events, err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	streamID := "stream-123"
	if err := es.AppendStream(context.Background(), streamID, "dtmf", "say hi"); err != nil {
		t.Fatalf("append stream: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{StreamID: streamID, Type: TypeFrameEncoded, Scheme: "dtmf", Payload: []byte(`{"tones":4}`)}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := es.ListStreamEvents(context.Background(), streamID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != TypeFrameEncoded || events[0].Scheme != "dtmf" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestPruneByDaysAndStreams(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "persistent", RetentionDays: 1, MaxStreams: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendStream(context.Background(), "old-stream", "fsk", "p"); err != nil {
		t.Fatalf("append stream: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{StreamID: "old-stream", Type: TypeFrameEncoded}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendStream(context.Background(), "new-stream", "fsk", "p"); err != nil {
		t.Fatalf("append stream: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListStreamEvents(context.Background(), "old-stream", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old stream pruned")
	}
}
