package synth

import (
	"math"
	"testing"

	"github.com/tonewirelabs/tonewire-core/internal/encoding"
)

func TestRenderLength(t *testing.T) {
	cases := []struct {
		durationMS int
		sampleRate int
		want       int
	}{
		{100, 44100, 4410},
		{100, 22050, 2205},
		{5, 44100, 221}, // round(220.5)
		{1, 44100, 44},  // round(44.1)
	}
	for _, c := range cases {
		got := Render([]float64{440}, c.durationMS, c.sampleRate)
		if len(got) != c.want {
			t.Fatalf("%dms@%dHz: expected %d samples, got %d", c.durationMS, c.sampleRate, c.want, len(got))
		}
	}
}

func TestRenderNormalized(t *testing.T) {
	samples := Render([]float64{697, 1209}, 100, 44100)
	for i, s := range samples {
		if s < -1 || s > 1 {
			t.Fatalf("sample %d out of range: %v", i, s)
		}
	}
}

func TestRenderEnvelope(t *testing.T) {
	samples := Render([]float64{440}, 100, 44100)
	if math.Abs(float64(samples[0])) >= 0.01 {
		t.Fatalf("expected faded-in start, got %v", samples[0])
	}
	if math.Abs(float64(samples[len(samples)-1])) >= 0.01 {
		t.Fatalf("expected faded-out end, got %v", samples[len(samples)-1])
	}
}

func TestRenderShortToneSkipsEnvelope(t *testing.T) {
	// 2ms at 44.1kHz is 88 samples, under twice the 441-sample fade window.
	samples := Render([]float64{17500}, 2, 44100)
	if len(samples) != 88 {
		t.Fatalf("expected 88 samples, got %d", len(samples))
	}
	var peak float64
	for _, s := range samples {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	if peak < 0.5 {
		t.Fatalf("short tone should be emitted at full amplitude, peak %v", peak)
	}
}

func TestRenderEmptyFrequencies(t *testing.T) {
	samples := Render(nil, 100, 44100)
	if len(samples) != 4410 {
		t.Fatalf("expected 4410 samples, got %d", len(samples))
	}
	for i, s := range samples {
		if s != 0 {
			t.Fatalf("expected silence, sample %d is %v", i, s)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	a := Render([]float64{852, 1477}, 40, 44100)
	b := Render([]float64{852, 1477}, 40, 44100)
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRenderFrameConcatenates(t *testing.T) {
	frame := encoding.Frame{
		Tones: []encoding.ToneEvent{
			{Frequencies: []float64{440}, DurationMS: 10},
			{Frequencies: []float64{880}, DurationMS: 20},
		},
	}
	samples := RenderFrame(frame, 44100)
	want := 441 + 882
	if len(samples) != want {
		t.Fatalf("expected %d samples, got %d", want, len(samples))
	}
}
