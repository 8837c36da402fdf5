package playback

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"github.com/tonewirelabs/tonewire-core/internal/config"
)

func TestWavSinkWritesDecodableFile(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewWavSink(dir)
	if err != nil {
		t.Fatalf("NewWavSink: %v", err)
	}

	samples := make([]float32, 441)
	for i := range samples {
		samples[i] = 0.5
	}
	frame := RenderedFrame{
		SessionID:  "sess-1",
		Sequence:   3,
		SampleRate: 44100,
		Samples:    samples,
		DurationMS: 10,
	}
	if err := sink.Play(context.Background(), frame); err != nil {
		t.Fatalf("Play: %v", err)
	}

	path := filepath.Join(dir, "sess-1-0003.wav")
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("expected wav file at %s: %v", path, err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	if dec.SampleRate != 44100 {
		t.Errorf("sample rate = %d, want 44100", dec.SampleRate)
	}
	if dec.NumChans != 1 {
		t.Errorf("channels = %d, want 1", dec.NumChans)
	}
	if dec.BitDepth != 16 {
		t.Errorf("bit depth = %d, want 16", dec.BitDepth)
	}
	if len(buf.Data) != len(samples) {
		t.Errorf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
	// 0.5 scaled to 16-bit.
	if got := buf.Data[100]; got != 16383 {
		t.Errorf("sample value = %d, want 16383", got)
	}
}

func TestSamplesToPCMClamps(t *testing.T) {
	out := SamplesToPCM([]float32{0, 1, -1, 2.5, -2.5})
	want := []int{0, 32767, -32767, 32767, -32767}
	for i, v := range want {
		if out[i] != v {
			t.Errorf("index %d: got %d, want %d", i, out[i], v)
		}
	}
}

func TestMockSinkRecordsInOrder(t *testing.T) {
	sink := NewMockSink()
	for seq := 0; seq < 3; seq++ {
		err := sink.Play(context.Background(), RenderedFrame{SessionID: "sess-1", Sequence: seq})
		if err != nil {
			t.Fatalf("Play %d: %v", seq, err)
		}
	}

	frames := sink.Frames()
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, frame := range frames {
		if frame.Sequence != i {
			t.Errorf("frame %d has sequence %d", i, frame.Sequence)
		}
	}
}

func TestNewSinkSelectsMode(t *testing.T) {
	if _, err := NewSink(config.PlaybackConfig{Mode: "mock"}); err != nil {
		t.Errorf("mock sink: %v", err)
	}
	if _, err := NewSink(config.PlaybackConfig{Mode: "wav", OutputDir: t.TempDir()}); err != nil {
		t.Errorf("wav sink: %v", err)
	}
	if _, err := NewSink(config.PlaybackConfig{Mode: "vinyl"}); err == nil {
		t.Error("expected error for unknown mode")
	}
}
