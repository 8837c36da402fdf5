package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/tonewirelabs/tonewire-core/internal/buffer"
	"github.com/tonewirelabs/tonewire-core/internal/config"
	"github.com/tonewirelabs/tonewire-core/internal/encoding"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewServiceRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.EncoderConfig
	}{
		{"unknown scheme", config.EncoderConfig{Scheme: "morse", BufferThreshold: 1}},
		{"negative duration", config.EncoderConfig{Scheme: "dtmf", ToneDurationMS: -10, BufferThreshold: 1}},
		{"zero threshold", config.EncoderConfig{Scheme: "dtmf", BufferThreshold: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewService(context.Background(), tc.cfg, nil, nil, testLogger()); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestNewServiceReportsScheme(t *testing.T) {
	s, err := NewService(context.Background(), config.EncoderConfig{
		Scheme:          "ultrasonic",
		BufferThreshold: 4,
	}, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer s.Close()

	if s.Scheme() != encoding.SchemeUltrasonic {
		t.Fatalf("scheme = %q", s.Scheme())
	}
}

// TestFlushOrderThroughBuffer drives the buffer-to-encoder composition the
// fragment handler uses, with a stub publish step, and checks that frames
// come out in flush order carrying contiguous sequence numbers.
func TestFlushOrderThroughBuffer(t *testing.T) {
	enc, err := encoding.New(encoding.SchemeDTMF, 0)
	if err != nil {
		t.Fatalf("build encoder: %v", err)
	}

	type published struct {
		sequence int
		text     string
		tones    int
	}
	var frames []published

	sequence := 0
	buf, err := buffer.New(2, func(text string) error {
		frame, err := enc.Encode(text)
		if err != nil {
			return err
		}
		frames = append(frames, published{sequence: sequence, text: frame.Text, tones: len(frame.Tones)})
		sequence++
		return nil
	})
	if err != nil {
		t.Fatalf("buffer.New: %v", err)
	}

	for _, frag := range []string{"ab", "cd", "ef", "gh", "i"} {
		if err := buf.Add(frag); err != nil {
			t.Fatalf("Add(%q): %v", frag, err)
		}
	}
	if err := buf.Flush(); err != nil {
		t.Fatalf("final flush: %v", err)
	}

	want := []published{
		{sequence: 0, text: "abcd", tones: 8},
		{sequence: 1, text: "efgh", tones: 8},
		{sequence: 2, text: "i", tones: 2},
	}
	if len(frames) != len(want) {
		t.Fatalf("expected %d frames, got %d: %+v", len(want), len(frames), frames)
	}
	for i, w := range want {
		if frames[i] != w {
			t.Errorf("frame %d = %+v, want %+v", i, frames[i], w)
		}
	}
}

// An encode failure must leave the buffered text intact so the stream can
// fail the whole flush rather than emit a partial frame.
func TestFlushFailureKeepsBufferState(t *testing.T) {
	enc, err := encoding.New(encoding.SchemeDTMF, 0)
	if err != nil {
		t.Fatalf("build encoder: %v", err)
	}

	flushes := 0
	buf, err := buffer.New(1, func(text string) error {
		flushes++
		_, err := enc.Encode(text)
		return err
	})
	if err != nil {
		t.Fatalf("buffer.New: %v", err)
	}

	if err := buf.Add("☃"); err == nil {
		t.Fatal("expected range error from flush")
	}
	if buf.Len() == 0 {
		t.Fatal("buffer text discarded after failed flush")
	}
	if flushes != 1 {
		t.Fatalf("expected 1 flush attempt, got %d", flushes)
	}
}
